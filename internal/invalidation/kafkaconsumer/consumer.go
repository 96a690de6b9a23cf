// Package kafkaconsumer drops cached WCS documents when invalidation events arrive on Kafka.
package kafkaconsumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/IBM/sarama"

	obs "github.com/mohammed-shakir/simple-wcs/internal/core/observability"
	"github.com/mohammed-shakir/simple-wcs/internal/core/ogc"
	"github.com/mohammed-shakir/simple-wcs/internal/invalidation"
	mylog "github.com/mohammed-shakir/simple-wcs/internal/logger"
)

type Config struct {
	Brokers             []string
	Topic               string
	GroupID             string
	SessionTimeout      time.Duration
	Heartbeat           time.Duration
	RebalanceTimeout    time.Duration
	InitialOffsetOldest bool
	RetryBackoff        time.Duration
}

func (c Config) withDefaults() Config {
	if c.SessionTimeout <= 0 {
		c.SessionTimeout = 30 * time.Second
	}
	if c.Heartbeat <= 0 {
		c.Heartbeat = 3 * time.Second
	}
	if c.RebalanceTimeout <= 0 {
		c.RebalanceTimeout = 30 * time.Second
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 2 * time.Second
	}
	return c
}

// DocumentCache is the view of the document cache the consumer needs;
// *doccache.Fetcher implements it.
type DocumentCache interface {
	Cached(ctx context.Context, rawURL string) ([]byte, bool)
	Forget(ctx context.Context, rawURL string)
}

type Consumer struct {
	cfg    Config
	logger *slog.Logger
	cache  DocumentCache
}

func New(cfg Config, logger *slog.Logger, c DocumentCache) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{cfg: cfg.withDefaults(), logger: logger, cache: c}
}

// Start joins the consumer group and processes events until ctx is done.
func (c *Consumer) Start(ctx context.Context) error {
	if c.cache == nil {
		return errors.New("kafkaconsumer: missing cache")
	}

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_1_0_0
	cfg.Consumer.Group.Session.Timeout = c.cfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = c.cfg.Heartbeat
	cfg.Consumer.Group.Rebalance.Timeout = c.cfg.RebalanceTimeout
	if c.cfg.InitialOffsetOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Offsets.AutoCommit.Enable = true

	group, err := sarama.NewConsumerGroup(c.cfg.Brokers, c.cfg.GroupID, cfg)
	if err != nil {
		return fmt.Errorf("create consumer group: %w", err)
	}
	defer func() { _ = group.Close() }()

	handler := &groupHandler{process: c.ProcessOne, logger: c.logger}
	c.logger.Info("kafka invalidation consumer starting",
		"brokers", c.cfg.Brokers, "topic", c.cfg.Topic, "group", c.cfg.GroupID)

	for {
		if err := group.Consume(ctx, []string{c.cfg.Topic}, handler); err != nil && ctx.Err() == nil {
			c.logger.Error("kafka consumer error", "err", err, "topic", c.cfg.Topic)
			select {
			case <-ctx.Done():
			case <-time.After(c.cfg.RetryBackoff):
			}
		}
		if ctx.Err() != nil {
			c.logger.Info("kafka invalidation consumer shutting down")
			return nil
		}
	}
}

// ProcessOne handles a single message. Malformed events are logged, counted and
// skipped so a poison message cannot stall the partition.
func (c *Consumer) ProcessOne(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var ev invalidation.Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		c.reject(ctx, msg, "decode", err)
		return nil
	}
	if err := ev.Validate(); err != nil {
		c.reject(ctx, msg, "validate", err)
		return nil
	}

	urls := ev.StaleURLs(c.describeEndpoints(ctx, ev)...)
	for _, u := range urls {
		if err := ctx.Err(); err != nil {
			obs.ObserveInvalidation(0, err)
			return fmt.Errorf("invalidate: %w", err)
		}
		c.cache.Forget(ctx, u)
	}
	obs.ObserveInvalidation(len(urls), nil)
	c.logger.DebugContext(ctx, "invalidated documents",
		"op", ev.Op, "service_url", ev.ServiceURL, "coverage_id", ev.CoverageID, "urls", len(urls))
	return nil
}

// describeEndpoints reads the cached capabilities of the service to learn the
// DescribeCoverage endpoints it advertises, which sessions use instead of the
// service URL.
func (c *Consumer) describeEndpoints(ctx context.Context, ev invalidation.Event) []string {
	if !ev.TouchesDescription() {
		return nil
	}
	var out []string
	for _, u := range ev.CapabilitiesURLs() {
		b, ok := c.cache.Cached(ctx, u)
		if !ok {
			continue
		}
		caps, err := ogc.ParseCapabilitiesBytes(b)
		if err != nil {
			c.logger.DebugContext(ctx, "cached capabilities unreadable", "url", u, "err", err)
			continue
		}
		if ep := caps.DescribeCoverageURL(); !slices.Contains(out, ep) {
			out = append(out, ep)
		}
	}
	return out
}

func (c *Consumer) reject(ctx context.Context, msg *sarama.ConsumerMessage, kind string, err error) {
	obs.ObserveInvalidation(0, err)
	c.logger.WarnContext(mylog.WithComponent(ctx, "kafka_consumer"), "invalidation event rejected",
		"kind", kind, "err", err,
		"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset)
}
