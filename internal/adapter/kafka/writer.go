package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/couchcryptid/floodsense-service/internal/config"
	"github.com/couchcryptid/floodsense-service/internal/domain"
	"github.com/couchcryptid/storm-data-shared/retry"
	kafkago "github.com/segmentio/kafka-go"
)

const (
	publishAttempts = 3
	initialBackoff  = 200 * time.Millisecond
	maxBackoff      = 2 * time.Second
)

// messageWriter is the subset of *kafkago.Writer used by Publisher.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher produces prediction run summaries to a Kafka topic.
// It implements state.RunSink.
type Publisher struct {
	writer messageWriter
	logger *slog.Logger
}

// NewPublisher creates a Kafka producer for the configured prediction topic.
func NewPublisher(cfg *config.Config, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaPredictionTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		BatchSize:    cfg.KafkaBatchSize,
		BatchTimeout: cfg.KafkaBatchTimeout,
	}
	return &Publisher{writer: w, logger: logger}
}

// Publish serializes the report and writes it, retrying transient failures
// with exponential backoff.
func (p *Publisher) Publish(ctx context.Context, report domain.RunReport) error {
	msg, err := serializeToMessage(report)
	if err != nil {
		return err
	}

	backoff := initialBackoff
	for attempt := 1; ; attempt++ {
		err = p.writer.WriteMessages(ctx, msg)
		if err == nil {
			return nil
		}
		if attempt == publishAttempts || ctx.Err() != nil {
			return fmt.Errorf("publish run %s: %w", report.ID, err)
		}
		p.logger.Warn("publish run failed, retrying", "request_id", report.ID, "attempt", attempt, "error", err)
		if !retry.SleepWithContext(ctx, backoff) {
			return fmt.Errorf("publish run %s: %w", report.ID, ctx.Err())
		}
		backoff = retry.NextBackoff(backoff, maxBackoff)
	}
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// runMessage is the JSON value of a published run.
type runMessage struct {
	domain.RunSummary
	Points []domain.Coordinate `json:"points"`
}

// serializeToMessage marshals a RunReport into a Kafka message keyed by run id.
func serializeToMessage(report domain.RunReport) (kafkago.Message, error) {
	body := runMessage{RunSummary: report.Summary(), Points: []domain.Coordinate{}}
	if report.Result != nil {
		body.Points = domain.Coordinates(report.Result.Positives)
	}
	data, err := json.Marshal(body)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize run report: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(report.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "succeeded", Value: []byte(strconv.FormatBool(report.Succeeded()))},
			{Key: "finished_at", Value: []byte(report.FinishedAt.UTC().Format(time.RFC3339))},
		},
	}, nil
}
