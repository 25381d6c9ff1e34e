package service

import (
	"context"
	"time"

	"github.com/talmeida/linktrace/internal/app/repository"
	"go.uber.org/zap"
)

// AccessRetention periodically purges access-log entries older than the
// configured age. Entries are otherwise retained indefinitely; this job is
// the only thing that removes them.
type AccessRetention struct {
	logger   *zap.Logger
	logs     repository.AccessLogRepository
	maxAge   time.Duration
	interval time.Duration
	stopChan chan struct{}
}

// NewAccessRetention creates a retention job purging entries older than maxAge.
func NewAccessRetention(logger *zap.Logger, logs repository.AccessLogRepository, maxAge, interval time.Duration) *AccessRetention {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &AccessRetention{
		logger:   logger,
		logs:     logs,
		maxAge:   maxAge,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start begins the periodic purge loop.
func (r *AccessRetention) Start() {
	go r.run()
}

// Stop stops the loop.
func (r *AccessRetention) Stop() {
	close(r.stopChan)
}

func (r *AccessRetention) run() {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.purge()
		case <-r.stopChan:
			r.logger.Info("access log retention job stopped")
			return
		}
	}
}

func (r *AccessRetention) purge() {
	ctx := context.Background()
	cutoff := time.Now().Add(-r.maxAge)

	purged, err := r.logs.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		r.logger.Error("failed to purge expired access logs", zap.Error(err))
		return
	}

	if purged > 0 {
		r.logger.Info("purged expired access logs",
			zap.Int64("count", purged),
			zap.Time("cutoff", cutoff),
		)
	}
}
