package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"
	"github.com/talmeida/linktrace/internal/app/model"
	"github.com/talmeida/linktrace/internal/app/repository"
	infraprom "github.com/talmeida/linktrace/internal/infra/prometheus"
	"go.uber.org/zap"
)

// fetchBackoff spaces out fetch attempts after a non-timeout error so a dead
// connection does not spin the consume loop hot.
const fetchBackoff = time.Second

// LinkEvictor drops a link record from the redirect cache.
type LinkEvictor interface {
	Invalidate(ctx context.Context, slug string)
}

// AccessConsumer drains access events from JetStream and gives each one its
// durable home: append to the access-log store, bump the link's click
// counter, then dispatch the webhook callback if the link defines one. The
// append happens-before the callback, so the callback body always carries a
// persisted record id.
type AccessConsumer struct {
	js       nats.JetStreamContext
	logger   *zap.Logger
	logs     repository.AccessLogRepository
	links    repository.LinkRepository
	cache    LinkEvictor
	callback *CallbackDispatcher
	metrics  *infraprom.Metrics
	stopChan chan struct{}
}

// AccessConsumerDeps groups dependencies for NewAccessConsumer.
type AccessConsumerDeps struct {
	JetStream nats.JetStreamContext
	Logger    *zap.Logger
	Logs      repository.AccessLogRepository
	Links     repository.LinkRepository
	Cache     LinkEvictor
	Callback  *CallbackDispatcher
	Metrics   *infraprom.Metrics
}

// NewAccessConsumer creates a consumer.
func NewAccessConsumer(deps AccessConsumerDeps) *AccessConsumer {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccessConsumer{
		js:       deps.JetStream,
		logger:   logger,
		logs:     deps.Logs,
		links:    deps.Links,
		cache:    deps.Cache,
		callback: deps.Callback,
		metrics:  deps.Metrics,
		stopChan: make(chan struct{}),
	}
}

// Start ensures the stream and durable consumer exist and begins consuming.
func (c *AccessConsumer) Start() error {
	_, err := c.js.StreamInfo(model.AccessStreamName)
	if err != nil {
		_, err = c.js.AddStream(&nats.StreamConfig{
			Name:     model.AccessStreamName,
			Subjects: []string{model.AccessStreamSubject},
			MaxBytes: model.AccessStreamMaxBytes,
		})
		if err != nil {
			return fmt.Errorf("failed to create stream: %w", err)
		}
	}

	_, err = c.js.ConsumerInfo(model.AccessStreamName, model.AccessConsumerName)
	if err != nil {
		_, err = c.js.AddConsumer(model.AccessStreamName, &nats.ConsumerConfig{
			Durable:   model.AccessConsumerName,
			AckPolicy: nats.AckExplicitPolicy,
		})
		if err != nil {
			return fmt.Errorf("failed to create consumer: %w", err)
		}
	}

	sub, err := c.js.PullSubscribe(model.AccessStreamSubject, model.AccessConsumerName)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	go c.consume(sub.Fetch)
	return nil
}

// Stop ends the consume loop. Pending acks are not waited for.
func (c *AccessConsumer) Stop() {
	close(c.stopChan)
}

func (c *AccessConsumer) consume(fetch func(int, ...nats.PullOpt) ([]*nats.Msg, error)) {
	ctx := context.Background()
	for {
		select {
		case <-c.stopChan:
			c.logger.Info("access event consumer stopped")
			return
		default:
		}

		msgs, err := fetch(10, nats.MaxWait(5*time.Second))
		if err != nil && !errors.Is(err, nats.ErrTimeout) {
			c.logger.Error("failed to fetch access events", zap.Error(err))
			select {
			case <-c.stopChan:
				c.logger.Info("access event consumer stopped")
				return
			case <-time.After(fetchBackoff):
			}
			continue
		}

		for _, msg := range msgs {
			c.process(ctx, msg.Data, msg.Ack, msg.Nak)
		}
	}
}

// process settles one delivery. Nak asks the stream to redeliver and is
// reserved for failures before the entry is durable; everything after the
// append runs at most once per delivery and is never retried.
func (c *AccessConsumer) process(ctx context.Context, data []byte, ack, nak func(...nats.AckOpt) error) {
	var entry model.AccessLogEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		c.logger.Error("failed to unmarshal access event", zap.Error(err))
		c.count(infraprom.ResultError)
		nak()
		return
	}

	if err := c.logs.Append(ctx, &entry); err != nil {
		c.logger.Error("failed to store access event",
			zap.String("id", entry.ID),
			zap.String("slug", entry.Slug),
			zap.Error(err))
		c.count(infraprom.ResultError)
		nak()
		return
	}

	// The entry is durable from here on: ack regardless of what the click
	// counter or callback do, since neither is retried.
	ack()
	c.count(infraprom.ResultOK)

	if err := c.links.IncrementClicks(ctx, entry.Slug); err != nil {
		c.logger.Warn("failed to increment click counter",
			zap.String("slug", entry.Slug), zap.Error(err))
	}

	c.settleLink(ctx, &entry)

	c.logger.Debug("access event stored",
		zap.String("id", entry.ID),
		zap.String("slug", entry.Slug),
		zap.String("ip", entry.IP),
		zap.Time("timestamp", entry.Timestamp),
	)
}

// settleLink handles the per-link consequences of a stored click: evicting
// limit-bound links from the cache and dispatching the webhook callback.
func (c *AccessConsumer) settleLink(ctx context.Context, entry *model.AccessLogEntry) {
	link, err := c.links.GetBySlug(ctx, entry.Slug)
	if err != nil {
		// The link may have been deleted between redirect and consume;
		// the log entry stays, the callback is simply not owed.
		if !errors.Is(err, repository.ErrLinkNotFound) {
			c.logger.Warn("failed to load link for callback",
				zap.String("slug", entry.Slug), zap.Error(err))
		}
		return
	}

	if link.MaxClicks != nil && c.cache != nil {
		// Redirects read the cached record, which now carries a stale
		// click counter. Evict it so limit enforcement sees the fresh
		// count instead of redirecting until the TTL runs out.
		c.cache.Invalidate(ctx, link.Slug)
	}

	if link.CallbackURL != "" && c.callback != nil {
		c.callback.Dispatch(ctx, link.CallbackURL, entry)
	}
}

func (c *AccessConsumer) count(result string) {
	if c.metrics != nil {
		c.metrics.EventsConsumed.WithLabelValues(result).Inc()
	}
}
