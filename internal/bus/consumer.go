package bus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Message is one queue delivery handed to a Handler.
type Message struct {
	ID         string
	Body       []byte
	Deliveries int64
}

// Handler processes a single message. A nil return acknowledges the message;
// any error leaves it pending so the stream redelivers it later.
type Handler func(ctx context.Context, msg Message) error

type ConsumerOptions struct {
	Stream        string
	Group         string
	Consumer      string
	BatchSize     int64
	Block         time.Duration
	ClaimMinIdle  time.Duration // how long a pending entry idles before another pass claims it
	MaxDeliveries int64         // deliveries after which a message is dropped as dead
}

// Consumer reads batches from one stream through a consumer group and feeds
// them to a handler one message at a time. A message failure is isolated:
// the message stays pending and its batch siblings are still processed.
type Consumer struct {
	rdb     *redis.Client
	opts    ConsumerOptions
	handler Handler
	log     *zap.Logger
}

func NewConsumer(rdb *redis.Client, opts ConsumerOptions, handler Handler, log *zap.Logger) *Consumer {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10
	}
	if opts.Block <= 0 {
		opts.Block = 5 * time.Second
	}
	if opts.ClaimMinIdle <= 0 {
		opts.ClaimMinIdle = time.Minute
	}
	if opts.MaxDeliveries <= 0 {
		opts.MaxDeliveries = 5
	}

	return &Consumer{
		rdb:     rdb,
		opts:    opts,
		handler: handler,
		log:     log.With(zap.String("stream", opts.Stream), zap.String("group", opts.Group)),
	}
}

// Run consumes until ctx is cancelled. Each iteration first reclaims stale
// pending entries from dead consumers, then reads a fresh batch.
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.ensureGroup(ctx); err != nil {
		return err
	}

	c.log.Info("consumer started", zap.String("consumer", c.opts.Consumer))

	for {
		if ctx.Err() != nil {
			c.log.Info("consumer stopping")
			return nil
		}

		c.claimStale(ctx)

		res, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.opts.Group,
			Consumer: c.opts.Consumer,
			Streams:  []string{c.opts.Stream, ">"},
			Count:    c.opts.BatchSize,
			Block:    c.opts.Block,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				c.log.Info("consumer stopping")
				return nil
			}
			c.log.Error("read from stream", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		for _, stream := range res {
			c.handleBatch(ctx, stream.Messages, nil)
		}
	}
}

func (c *Consumer) ensureGroup(ctx context.Context) error {
	err := c.rdb.XGroupCreateMkStream(ctx, c.opts.Stream, c.opts.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group %s on %s: %w", c.opts.Group, c.opts.Stream, err)
	}
	return nil
}

// claimStale takes over pending entries whose owner went quiet. Entries that
// have been delivered more than MaxDeliveries times are acked and logged as
// dead so one poison message cannot wedge the group.
func (c *Consumer) claimStale(ctx context.Context) {
	msgs, _, err := c.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   c.opts.Stream,
		Group:    c.opts.Group,
		Consumer: c.opts.Consumer,
		MinIdle:  c.opts.ClaimMinIdle,
		Start:    "0-0",
		Count:    c.opts.BatchSize,
	}).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			c.log.Error("claim stale messages", zap.Error(err))
		}
		return
	}
	if len(msgs) == 0 {
		return
	}

	deliveries := c.deliveryCounts(ctx, msgs)
	c.handleBatch(ctx, msgs, deliveries)
}

func (c *Consumer) deliveryCounts(ctx context.Context, msgs []redis.XMessage) map[string]int64 {
	pend, err := c.rdb.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream:   c.opts.Stream,
		Group:    c.opts.Group,
		Start:    msgs[0].ID,
		End:      msgs[len(msgs)-1].ID,
		Count:    int64(len(msgs)),
		Consumer: c.opts.Consumer,
	}).Result()
	if err != nil {
		return nil
	}

	counts := make(map[string]int64, len(pend))
	for _, p := range pend {
		counts[p.ID] = p.RetryCount
	}
	return counts
}

func (c *Consumer) handleBatch(ctx context.Context, msgs []redis.XMessage, deliveries map[string]int64) {
	for _, m := range msgs {
		count := int64(1)
		if n, ok := deliveries[m.ID]; ok {
			count = n
		}

		if count > c.opts.MaxDeliveries {
			c.log.Warn("dropping message after too many deliveries",
				zap.String("message_id", m.ID),
				zap.Int64("deliveries", count),
			)
			c.ack(ctx, m.ID)
			continue
		}

		body, ok := m.Values[bodyField].(string)
		if !ok {
			c.log.Error("message has no body field", zap.String("message_id", m.ID))
			c.ack(ctx, m.ID)
			continue
		}

		err := c.handler(ctx, Message{ID: m.ID, Body: []byte(body), Deliveries: count})
		if err != nil {
			// Left pending on purpose: the stream redelivers it after
			// the min-idle window.
			c.log.Error("message processing failed",
				zap.String("message_id", m.ID),
				zap.Int64("deliveries", count),
				zap.Error(err),
			)
			continue
		}

		c.ack(ctx, m.ID)
	}
}

func (c *Consumer) ack(ctx context.Context, id string) {
	if err := c.rdb.XAck(ctx, c.opts.Stream, c.opts.Group, id).Err(); err != nil && ctx.Err() == nil {
		c.log.Error("ack message", zap.String("message_id", id), zap.Error(err))
	}
}
