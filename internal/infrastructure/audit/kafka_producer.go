// Package audit forwards durable audit entries to downstream consumers.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/turtacn/compliance-advisor/internal/config"
	"github.com/turtacn/compliance-advisor/internal/domain/models"
	"github.com/turtacn/compliance-advisor/pkg/logger"
)

// Publisher forwards an audit entry after it has been committed to the ledger.
type Publisher interface {
	Publish(ctx context.Context, entry *models.AuditLogEntry) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaProducer publishes audit entries to a Kafka topic keyed by tenant.
type KafkaProducer struct {
	writer     messageWriter
	signingKey string
	logger     logger.Logger
}

// NewKafkaProducer creates a new KafkaProducer.
func NewKafkaProducer(cfg config.KafkaConfig, log logger.Logger) *KafkaProducer {
	writeTimeout := time.Duration(cfg.WriteTimeout) * time.Second
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.AuditTopic,
		Balancer:     &kafka.Hash{},
		WriteTimeout: writeTimeout,
		RequiredAcks: kafka.RequireAll,
	}
	return newKafkaProducer(writer, cfg.SigningKey, log)
}

func newKafkaProducer(w messageWriter, signingKey string, log logger.Logger) *KafkaProducer {
	return &KafkaProducer{
		writer:     w,
		signingKey: signingKey,
		logger:     log.WithComponent("KafkaProducer"),
	}
}

// Publish sends the entry. Failures are logged and returned; callers treat
// them as non-fatal because the database row is the record of truth.
func (p *KafkaProducer) Publish(ctx context.Context, entry *models.AuditLogEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		p.logger.Error(ctx, "failed to marshal audit entry", err)
		return err
	}

	msg := kafka.Message{
		Key:   []byte(entry.TenantID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "action", Value: []byte(entry.Action)},
			{Key: "operation_key", Value: []byte(entry.OperationKey)},
		},
	}
	if p.signingKey != "" {
		msg.Headers = append(msg.Headers, kafka.Header{Key: "signature", Value: []byte(Sign(payload, p.signingKey))})
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error(ctx, "failed to write audit entry to Kafka", err,
			logger.String("tenant_id", entry.TenantID),
			logger.String("operation_key", entry.OperationKey),
		)
		return err
	}
	return nil
}

// Close closes the underlying Kafka writer.
func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}

// NoopPublisher drops entries. Used when Kafka is disabled.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, *models.AuditLogEntry) error { return nil }

func (NoopPublisher) Close() error { return nil }
