package events

import (
	"context"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/segmentio/kafka-go"

	"github.com/itstheanurag/coderunner/internal/executor"
)

// Publisher announces finished reports to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, report *executor.Report) error
	Close() error
}

type ReportEvent struct {
	Type       string           `json:"type"`
	OccurredAt time.Time        `json:"occurred_at"`
	Report     *executor.Report `json:"report"`
}

const TypeReportFinished = "submission.evaluated"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer messageWriter
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}}
}

func (p *KafkaPublisher) Publish(ctx context.Context, report *executor.Report) error {
	data, err := json.Marshal(ReportEvent{
		Type:       TypeReportFinished,
		OccurredAt: time.Now().UTC(),
		Report:     report,
	})
	if err != nil {
		return fmt.Errorf("marshal report event: %w", err)
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(report.SubmissionID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "language", Value: []byte(report.Language)},
			{Key: "status", Value: []byte(report.Status)},
		},
	})
	if err != nil {
		return fmt.Errorf("write report event: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NopPublisher is used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, *executor.Report) error { return nil }

func (NopPublisher) Close() error { return nil }
