package notification

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// KindMint is emitted once when the genesis supply is minted.
	KindMint = "ft_mint"
	// KindTransfer is emitted for every ledger transfer, refunds included.
	KindTransfer = "ft_transfer"
	// KindProposalCreated and the following kinds track the proposal lifecycle.
	KindProposalCreated   = "proposal_created"
	KindProposalVoted     = "proposal_voted"
	KindProposalFinalized = "proposal_finalized"
	KindProposalExecuted  = "proposal_executed"
	// KindRoleAssigned is emitted when a role changes, promotions included.
	KindRoleAssigned = "role_assigned"
	// KindDividendPayout describes one entry of a dividend payout plan.
	KindDividendPayout = "dividend_payout"

	// DefaultChannel is the Redis channel RedisNotifier publishes on.
	DefaultChannel = "dao:events"
)

// Event describes a committed state change. Delivery is best effort and never
// feeds back into ledger state.
type Event struct {
	Kind    string            `json:"event"`
	Subject string            `json:"subject"`
	Data    map[string]string `json:"data,omitempty"`
	At      time.Time         `json:"at"`
}

// Notifier delivers events to downstream systems.
type Notifier interface {
	Send(ctx context.Context, event Event) error
}

// LoggerNotifier writes events to the structured logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the event to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, event Event) error {
	if n == nil || n.logger == nil {
		return nil
	}
	attrs := []any{"kind", event.Kind, "subject", event.Subject}
	for k, v := range event.Data {
		attrs = append(attrs, k, v)
	}
	n.logger.Info("event", attrs...)
	return nil
}

// RedisNotifier publishes JSON encoded events on a Redis channel.
type RedisNotifier struct {
	client  *redis.Client
	channel string
}

// NewRedisNotifier builds a publisher; an empty channel selects DefaultChannel.
func NewRedisNotifier(client *redis.Client, channel string) *RedisNotifier {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisNotifier{client: client, channel: channel}
}

// Send publishes the event.
func (n *RedisNotifier) Send(ctx context.Context, event Event) error {
	if n == nil || n.client == nil {
		return nil
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return n.client.Publish(ctx, n.channel, payload).Err()
}

// Multi fans an event out to every notifier and joins their errors.
type Multi []Notifier

// Send delivers to all notifiers even if some of them fail.
func (m Multi) Send(ctx context.Context, event Event) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Send(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
