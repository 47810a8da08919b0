package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"facecards/internal/models"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	AccountCreatedType = "facecards.account.created"
	specVersion        = "1.0"
	writeTimeout       = 5 * time.Second
)

// CloudEvent is the envelope every published event uses.
type CloudEvent struct {
	ID          string          `json:"id"`
	Source      string          `json:"source"`
	SpecVersion string          `json:"specversion"`
	Type        string          `json:"type"`
	Time        time.Time       `json:"time"`
	Subject     string          `json:"subject,omitempty"`
	ContentType string          `json:"datacontenttype"`
	Data        json.RawMessage `json:"data"`
}

// AccountCreatedData carries no profile text beyond what the card shows.
type AccountCreatedData struct {
	AccountID  int64     `json:"account_id"`
	TelegramID string    `json:"telegram_id"`
	Username   *string   `json:"username,omitempty"`
	IsPremium  bool      `json:"is_premium"`
	CreatedAt  time.Time `json:"created_at"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher emits account lifecycle events to Kafka.
type Publisher struct {
	writer messageWriter
	source string
	logger *zap.Logger
	now    func() time.Time
}

func NewKafkaPublisher(brokers []string, topic, source string, logger *zap.Logger) *Publisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: writeTimeout,
	}
	return newPublisher(writer, source, logger)
}

func newPublisher(w messageWriter, source string, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{writer: w, source: source, logger: logger, now: time.Now}
}

// AccountCreated publishes an account.created event keyed by Telegram id,
// so all events of one user land on one partition.
func (p *Publisher) AccountCreated(ctx context.Context, acc *models.Account) error {
	data, err := json.Marshal(AccountCreatedData{
		AccountID:  acc.ID,
		TelegramID: acc.TelegramID,
		Username:   acc.Username,
		IsPremium:  acc.IsPremium,
		CreatedAt:  acc.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	event := CloudEvent{
		ID:          uuid.NewString(),
		Source:      p.source,
		SpecVersion: specVersion,
		Type:        AccountCreatedType,
		Time:        p.now().UTC(),
		Subject:     strconv.FormatInt(acc.ID, 10),
		ContentType: "application/json",
		Data:        data,
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(acc.TelegramID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "ce_id", Value: []byte(event.ID)},
			{Key: "ce_type", Value: []byte(event.Type)},
			{Key: "ce_source", Value: []byte(event.Source)},
			{Key: "ce_specversion", Value: []byte(event.SpecVersion)},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.Type, err)
	}

	p.logger.Debug("Event published",
		zap.String("type", event.Type),
		zap.String("event_id", event.ID),
		zap.Int64("account_id", acc.ID))
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
