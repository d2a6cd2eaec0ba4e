package pub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Izanagi078/Final-Work/internal/domain"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	LedgerEventsChannel = "ledger_events"
)

// LedgerEvent describes one committed change to one account.
type LedgerEvent struct {
	EventType       string          `json:"event_type"` // ledger.deposit, ledger.transfer_out, account.purged ...
	AccountNumber   string          `json:"account_number"`
	Counterparty    string          `json:"counterparty,omitempty"`
	TransactionID   string          `json:"transaction_id,omitempty"`
	TransactionType string          `json:"transaction_type,omitempty"`
	Amount          decimal.Decimal `json:"amount"`
	BalanceAfter    decimal.Decimal `json:"balance_after"`
	LoanAmount      decimal.Decimal `json:"loan_amount"`
	CreditScore     int             `json:"credit_score"`
	Timestamp       time.Time       `json:"timestamp"`
}

// NewMutationEvent builds the event for a committed mutation result.
func NewMutationEvent(eventType string, res *domain.MutationResult, counterparty string) *LedgerEvent {
	ev := &LedgerEvent{
		EventType:     eventType,
		AccountNumber: res.AccountNumber,
		Counterparty:  counterparty,
		BalanceAfter:  res.Balance,
		LoanAmount:    res.LoanAmount,
		CreditScore:   res.CreditScore,
	}
	if res.Transaction != nil {
		ev.TransactionID = res.Transaction.ID
		ev.TransactionType = string(res.Transaction.Type)
		ev.Amount = res.Transaction.Amount
		ev.Timestamp = res.Transaction.Timestamp
	}
	return ev
}

// Publisher delivers ledger events. Delivery is best effort.
type Publisher interface {
	Publish(ctx context.Context, event *LedgerEvent) error
}

func marshal(event *LedgerEvent) ([]byte, error) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return payload, nil
}

// RedisPublisher fans events out on a redis pub/sub channel.
type RedisPublisher struct {
	rdb     *redis.Client
	channel string
	logger  *zap.Logger
}

func NewRedisPublisher(rdb *redis.Client, logger *zap.Logger) *RedisPublisher {
	return &RedisPublisher{rdb: rdb, channel: LedgerEventsChannel, logger: logger}
}

func (p *RedisPublisher) Publish(ctx context.Context, event *LedgerEvent) error {
	payload, err := marshal(event)
	if err != nil {
		return err
	}
	if err := p.rdb.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debug("ledger event published",
		zap.String("channel", p.channel),
		zap.String("event_type", event.EventType),
		zap.String("account_number", event.AccountNumber))
	return nil
}

// MessageWriter is the part of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaPublisher writes events keyed by account number, so one account's
// events stay ordered within a partition.
type KafkaPublisher struct {
	writer MessageWriter
}

func NewKafkaPublisher(writer MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: writer}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event *LedgerEvent) error {
	payload, err := marshal(event)
	if err != nil {
		return err
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.AccountNumber),
		Value: payload,
		Time:  event.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("failed to write kafka message: %w", err)
	}
	return nil
}

// NewKafkaWriter builds the async writer used in production.
func NewKafkaWriter(brokers []string, topic string, logger *zap.Logger) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		Async:                  true,
		MaxAttempts:            3,
		BatchSize:              100,
		BatchTimeout:           10 * time.Millisecond,
		WriteTimeout:           10 * time.Second,
		AllowAutoTopicCreation: true,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Warn(fmt.Sprintf("kafka: "+msg, args...))
		}),
	}
}

// Multi publishes to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, event *LedgerEvent) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, *LedgerEvent) error { return nil }
