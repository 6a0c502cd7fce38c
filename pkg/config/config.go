package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

type Config struct {
	Environment string `yaml:"environment" default:"development"`

	Logging struct {
		Level  string `yaml:"level" default:"info"`
		Format string `yaml:"format" default:"console"`
		Output string `yaml:"output" default:"stdout"`
	} `yaml:"logging"`

	Server struct {
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	} `yaml:"server"`

	Kafka struct {
		Brokers        []string `yaml:"brokers"`
		EventsTopic    string   `yaml:"events_topic" default:"market-events"`
		DecisionsTopic string   `yaml:"decisions_topic" default:"trade-decisions"`
		RequiredAcks   int      `yaml:"required_acks" default:"-1"`
		Compression    string   `yaml:"compression" default:"gzip"`
		Producer       struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"4"`
			BackoffMin   time.Duration `yaml:"backoff_min" default:"100ms"`
			BackoffMax   time.Duration `yaml:"backoff_max" default:"3s"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			Linger       time.Duration `yaml:"linger" default:"500ms"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"sentigate"`
			Workers    int           `yaml:"workers" default:"4"`
			BufferSize int           `yaml:"buffer_size" default:"256"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"50ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"2s"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes" default:"10000"`
			MaxBytes   int           `yaml:"max_bytes" default:"10000000"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr" default:"localhost:6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix" default:"sentigate"`
	} `yaml:"redis"`

	ClickHouse struct {
		Enabled      bool          `yaml:"enabled"`
		Host         string        `yaml:"host" default:"localhost"`
		Port         int           `yaml:"port" default:"9000"`
		Database     string        `yaml:"database" default:"sentigate"`
		User         string        `yaml:"user" default:"default"`
		Password     string        `yaml:"password"`
		DialTimeout  time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
	} `yaml:"clickhouse"`

	Feed struct {
		Enabled        bool          `yaml:"enabled"`
		WebSocketURL   string        `yaml:"websocket_url"`
		Instruments    []string      `yaml:"instruments"`
		Timeframe      string        `yaml:"timeframe" default:"1h"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"5s"`
		PingInterval   time.Duration `yaml:"ping_interval" default:"30s"`
		MaxRPS         int           `yaml:"max_rps" default:"50"`
		BufferSize     int           `yaml:"buffer_size" default:"2000"`
	} `yaml:"feed"`

	Scorer struct {
		URL     string        `yaml:"url"`
		Timeout time.Duration `yaml:"timeout" default:"5s"`
	} `yaml:"scorer"`

	Indicators struct {
		URL     string        `yaml:"url"`
		Timeout time.Duration `yaml:"timeout" default:"5s"`
	} `yaml:"indicators"`

	Pipeline struct {
		WindowLength       time.Duration `yaml:"window_length" default:"24h"`
		SmoothingMethod    string        `yaml:"smoothing_method" default:"exponential" validate:"oneof=exponential sma"`
		SmoothingAlpha     float64       `yaml:"smoothing_alpha" default:"0.3" validate:"gt=0,lte=1"`
		SmoothingK         int           `yaml:"smoothing_k" default:"5" validate:"gt=0"`
		StalenessThreshold time.Duration `yaml:"staleness_threshold" default:"4h"`
		MergeTolerance     time.Duration `yaml:"merge_tolerance"` // zero = no hard cutoff
		DedupSize          int           `yaml:"dedup_size" default:"4096" validate:"gt=0"`
		DedupTTL           time.Duration `yaml:"dedup_ttl" default:"24h"`
	} `yaml:"pipeline"`

	Gate struct {
		BullishThreshold float64 `yaml:"bullish_threshold" default:"0.6" validate:"gte=-1,lte=1"`
		BearishThreshold float64 `yaml:"bearish_threshold" default:"-0.6" validate:"gte=-1,lte=1"`
	} `yaml:"gate"`

	Risk struct {
		PortfolioValue        float64             `yaml:"portfolio_value" default:"10000" validate:"gt=0"`
		RiskFraction          float64             `yaml:"risk_fraction" default:"0.02" validate:"gt=0,lt=1"`
		DailyLossFraction     float64             `yaml:"daily_loss_fraction" default:"0.05" validate:"gt=0,lt=1"`
		StopPct               float64             `yaml:"stop_pct" default:"0.03" validate:"gt=0,lt=1"`
		TakeProfitPct         float64             `yaml:"take_profit_pct" default:"0.06" validate:"gt=0,lt=1"`
		MaxPositions          int                 `yaml:"max_positions" default:"5" validate:"gt=0"`
		MaxExposurePerInstr   float64             `yaml:"max_exposure_per_instrument" default:"2500" validate:"gt=0"`
		MaxPerCorrelatedGroup int                 `yaml:"max_per_correlated_group" default:"2" validate:"gt=0"`
		CorrelationGroups     map[string][]string `yaml:"correlation_groups"`
	} `yaml:"risk"`
}

// Load reads and parses a YAML configuration file, applies defaults, and
// validates the result.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_EVENTS_TOPIC"); v != "" {
		c.Kafka.EventsTopic = v
	}
	if v := os.Getenv("KAFKA_DECISIONS_TOPIC"); v != "" {
		c.Kafka.DecisionsTopic = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v := os.Getenv("INSTRUMENTS"); v != "" {
		c.Feed.Instruments = strings.Split(v, ",")
	}
	if v := os.Getenv("SCORER_URL"); v != "" {
		c.Scorer.URL = v
	}
	if v := os.Getenv("INDICATORS_URL"); v != "" {
		c.Indicators.URL = v
	}

	return c, nil
}

// Validate checks structural tags plus the cross-field rules the tags cannot
// express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty")
	}
	if c.Gate.BearishThreshold >= c.Gate.BullishThreshold {
		return fmt.Errorf("gate.bearish_threshold must be below gate.bullish_threshold")
	}
	if c.Pipeline.WindowLength <= 0 {
		return fmt.Errorf("pipeline.window_length must be positive")
	}
	if c.Pipeline.StalenessThreshold <= 0 {
		return fmt.Errorf("pipeline.staleness_threshold must be positive")
	}
	if c.Feed.Enabled && c.Feed.WebSocketURL == "" {
		return fmt.Errorf("feed.websocket_url is required when feed is enabled")
	}
	if c.Feed.Enabled && len(c.Feed.Instruments) == 0 {
		return fmt.Errorf("feed.instruments cannot be empty when feed is enabled")
	}
	return nil
}
