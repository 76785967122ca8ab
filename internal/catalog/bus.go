package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"royalties/internal/logging"
)

const allTenants = "*"

// Invalidator is the subset of Cache the bus drives.
type Invalidator interface {
	Invalidate(tenantID string)
	InvalidateAll()
}

// Bus fans catalog invalidations out to every process sharing a redis server.
type Bus struct {
	client  *redis.Client
	channel string
	target  Invalidator
	logger  *slog.Logger
}

// NewBus constructs a bus publishing on channel and applying messages to target.
func NewBus(client *redis.Client, channel string, target Invalidator, logger *slog.Logger) *Bus {
	return &Bus{
		client:  client,
		channel: channel,
		target:  target,
		logger:  logging.NewComponentLogger(logger, "catalog-bus"),
	}
}

// Invalidate drops the tenant locally and tells other processes to do the same.
func (b *Bus) Invalidate(ctx context.Context, tenantID string) error {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		tenantID = allTenants
	}
	b.apply(tenantID)
	if b.client == nil {
		return nil
	}
	if err := b.client.Publish(ctx, b.channel, tenantID).Err(); err != nil {
		return fmt.Errorf("publish catalog invalidation: %w", err)
	}
	return nil
}

// Run subscribes to the channel until ctx is cancelled.
func (b *Bus) Run(ctx context.Context) error {
	if b.client == nil {
		return errors.New("catalog bus: redis client not configured")
	}
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}
	b.logger.Info("catalog invalidation subscriber started", logging.String("channel", b.channel))

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			b.apply(msg.Payload)
		}
	}
}

func (b *Bus) apply(payload string) {
	tenantID := strings.TrimSpace(payload)
	switch tenantID {
	case "":
		return
	case allTenants:
		b.target.InvalidateAll()
	default:
		b.target.Invalidate(tenantID)
	}
	b.logger.Debug("catalog invalidation applied", logging.String(logging.FieldTenantID, tenantID))
}
