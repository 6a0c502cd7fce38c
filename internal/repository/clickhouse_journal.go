package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"SentiGate/internal/domain/models"
	domrepo "SentiGate/internal/domain/repository"
	pkgch "SentiGate/pkg/clickhouse"
	applogger "SentiGate/pkg/logger"
)

const (
	decisionsTable    = "sentigate.decisions"
	mergedPointsTable = "sentigate.merged_points"
)

// SchemaStatements are the idempotent DDL the journal needs.
var SchemaStatements = []string{
	`CREATE DATABASE IF NOT EXISTS sentigate`,
	`CREATE TABLE IF NOT EXISTS ` + decisionsTable + ` (
        id            String,
        instrument_id String,
        action        LowCardinality(String),
        reasons       String,
        position_size Float64,
        ts            DateTime64(3, 'UTC')
    ) ENGINE = MergeTree()
    PARTITION BY toYYYYMM(ts)
    ORDER BY (instrument_id, ts)`,
	`CREATE TABLE IF NOT EXISTS ` + mergedPointsTable + ` (
        instrument_id   String,
        candle_open     DateTime64(3, 'UTC'),
        timeframe       LowCardinality(String),
        close           Float64,
        volume          Float64,
        has_sentiment   UInt8,
        sentiment_score Float64,
        sentiment_age_s Float64,
        sample_count    UInt32
    ) ENGINE = MergeTree()
    PARTITION BY toYYYYMM(candle_open)
    ORDER BY (instrument_id, candle_open)`,
}

// CHJournal records decisions and merged points in ClickHouse for offline
// analysis and replay audits. It is an observer of the pipeline, never a
// participant: callers log its errors and move on.
type CHJournal struct {
	db *sql.DB
	l  *applogger.Logger
}

func NewCHJournal(ch *pkgch.Client, l *applogger.Logger) *CHJournal {
	return &CHJournal{db: ch.DB(), l: l}
}

func (j *CHJournal) RecordDecision(ctx context.Context, d models.Decision) error {
	reasons, err := json.Marshal(d.Reasons)
	if err != nil {
		return fmt.Errorf("marshal reasons: %w", err)
	}
	q := fmt.Sprintf("INSERT INTO %s (id, instrument_id, action, reasons, position_size, ts) VALUES (?, ?, ?, ?, ?, ?)", decisionsTable)
	start := time.Now()
	_, err = j.db.ExecContext(ctx, q,
		d.ID,
		d.InstrumentID,
		string(d.Action),
		string(reasons),
		d.PositionSize,
		d.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert decision: %w", err)
	}
	j.l.Debug("decision journaled",
		applogger.String("instrument", d.InstrumentID),
		applogger.String("action", string(d.Action)),
		applogger.Duration("duration_ms", time.Since(start)))
	return nil
}

func (j *CHJournal) RecordMergedPoint(ctx context.Context, p models.MergedPoint) error {
	q := fmt.Sprintf("INSERT INTO %s (instrument_id, candle_open, timeframe, close, volume, has_sentiment, sentiment_score, sentiment_age_s, sample_count) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)", mergedPointsTable)
	hasSentiment := uint8(0)
	if p.HasSentiment {
		hasSentiment = 1
	}
	_, err := j.db.ExecContext(ctx, q,
		p.InstrumentID,
		p.CandleOpenTime,
		p.Candle.Timeframe,
		p.Candle.Close,
		p.Candle.Volume,
		hasSentiment,
		p.SentimentScore,
		p.SentimentAge.Seconds(),
		uint32(p.SampleCount),
	)
	if err != nil {
		return fmt.Errorf("insert merged point: %w", err)
	}
	return nil
}

func (j *CHJournal) Close() error {
	return nil // pool is owned by pkg/clickhouse
}

var _ domrepo.Journal = (*CHJournal)(nil)
