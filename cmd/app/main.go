package main

import (
	"flag"
	"log"
	"os"

	"SentiGate/internal/di"
	"SentiGate/pkg/config"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "config/config.yaml", "config file path")
	flag.Parse()

	// Load config
	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	log.Printf("env=%s events=%s decisions=%s", cfg.Environment, cfg.Kafka.EventsTopic, cfg.Kafka.DecisionsTopic)

	// Wire DI: Initialize all dependencies
	app, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	log.Printf("kafka: connected brokers=%v group=%s", cfg.Kafka.Brokers, cfg.Kafka.Consumer.GroupID)

	// Run application (blocks until signal)
	if err := app.Run(); err != nil {
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}
