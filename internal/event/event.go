package event

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// DefaultChannel is the pub/sub channel balance events are published on.
const DefaultChannel = "dealerbook:balance_changed"

// BalanceChanged announces a committed balance change. Downstream aggregate
// consumers (route/group counters, dashboards) subscribe to it instead of
// being invoked inline on the write path.
type BalanceChanged struct {
	TenantID      string          `json:"tenant_id"`
	AccountID     string          `json:"account_id"`
	TransactionID string          `json:"transaction_id,omitempty"`
	Direction     string          `json:"direction,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
	Cause         string          `json:"cause"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// Publisher delivers balance events to downstream systems. Publication happens
// after commit; a failed publish never unwinds the committed write.
type Publisher interface {
	Publish(ctx context.Context, ev BalanceChanged) error
}

// RedisPublisher emits events on a Redis pub/sub channel as JSON.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

// NewRedisPublisher constructs a Redis-backed publisher.
func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{client: client, channel: channel}
}

// Publish marshals the event and publishes it on the configured channel.
func (p *RedisPublisher) Publish(ctx context.Context, ev BalanceChanged) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, p.channel, payload).Err()
}

// LogPublisher is a stub that writes events to the logger. Used in dev mode
// and tests when Redis is absent.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher constructs a logging publisher stub.
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

// Publish writes the event to the structured logger.
func (p *LogPublisher) Publish(_ context.Context, ev BalanceChanged) error {
	if p == nil || p.logger == nil {
		return nil
	}
	p.logger.Info("balance changed",
		"tenant_id", ev.TenantID,
		"account_id", ev.AccountID,
		"transaction_id", ev.TransactionID,
		"cause", ev.Cause,
		"balance_after", ev.BalanceAfter.String(),
	)
	return nil
}
