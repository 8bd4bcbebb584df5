package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/maltedev/parts-catalog-importer/internal/catalog"
)

// StreamClient is the subset of *redis.Client the consumer needs
type StreamClient interface {
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
}

// ProductImporter imports a single query.
type ProductImporter interface {
	ImportProduct(ctx context.Context, query string) *Outcome
}

type ConsumerConfig struct {
	Stream   string
	Group    string
	Consumer string
	Block    time.Duration
	Count    int64
}

// StreamConsumer imports the query carried by every message of a Redis
// stream. A message is acknowledged once its import reaches a terminal
// outcome; imports interrupted by shutdown stay pending for redelivery.
type StreamConsumer struct {
	client   StreamClient
	importer ProductImporter
	cfg      ConsumerConfig
	logger   *slog.Logger
}

func NewStreamConsumer(client StreamClient, imp ProductImporter, cfg ConsumerConfig, logger *slog.Logger) *StreamConsumer {
	if cfg.Consumer == "" {
		cfg.Consumer = "consumer-1"
	}
	if cfg.Block == 0 {
		cfg.Block = 5 * time.Second
	}
	if cfg.Count == 0 {
		cfg.Count = 1
	}

	return &StreamConsumer{
		client:   client,
		importer: imp,
		cfg:      cfg,
		logger:   logger.With("component", "stream_consumer", "stream", cfg.Stream, "group", cfg.Group),
	}
}

// Run reads the stream until ctx is done.
func (c *StreamConsumer) Run(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.cfg.Stream, c.cfg.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	c.logger.Info("starting consumer", "consumer", c.cfg.Consumer)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := c.poll(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error("failed to read from stream", "error", err)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
		}
	}
}

func (c *StreamConsumer) poll(ctx context.Context) error {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.cfg.Group,
		Consumer: c.cfg.Consumer,
		Streams:  []string{c.cfg.Stream, ">"},
		Count:    c.cfg.Count,
		Block:    c.cfg.Block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}

	for _, stream := range streams {
		for _, msg := range stream.Messages {
			c.handle(ctx, msg)
		}
	}
	return nil
}

func (c *StreamConsumer) handle(ctx context.Context, msg redis.XMessage) {
	query, _ := msg.Values["query"].(string)
	if strings.TrimSpace(query) == "" {
		c.logger.Warn("discarding message without query", "id", msg.ID)
		c.ack(ctx, msg.ID)
		return
	}

	out := c.importer.ImportProduct(ctx, query)
	if out.Reason == catalog.KindCanceled {
		c.logger.Info("import interrupted, leaving message pending", "id", msg.ID, "query", query)
		return
	}

	c.logger.Info("processed import request", "id", msg.ID, "query", query, "status", out.Status, "reason", out.Reason)
	c.ack(ctx, msg.ID)
}

func (c *StreamConsumer) ack(ctx context.Context, id string) {
	if err := c.client.XAck(ctx, c.cfg.Stream, c.cfg.Group, id).Err(); err != nil {
		c.logger.Error("failed to acknowledge message", "id", id, "error", err)
	}
}
