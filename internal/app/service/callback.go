package service

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/talmeida/linktrace/internal/app/model"
	infraprom "github.com/talmeida/linktrace/internal/infra/prometheus"
	"github.com/talmeida/linktrace/internal/http/util"
	"go.uber.org/zap"
)

// SignatureHeader carries the HMAC of the callback body when signing is
// configured.
const SignatureHeader = "X-Linktrace-Signature"

// CallbackDispatcher fires best-effort webhook notifications for access-log
// entries. A dispatch is one POST with a short timeout and no retries; every
// failure mode (timeout, connection error, non-2xx) is logged, counted, and
// swallowed. Dispatch never reports an error to its caller.
type CallbackDispatcher struct {
	client  *http.Client
	signer  *util.PayloadSigner
	logger  *zap.Logger
	metrics *infraprom.Metrics
	timeout time.Duration
}

// CallbackDeps groups dependencies for NewCallbackDispatcher.
type CallbackDeps struct {
	Logger  *zap.Logger
	Signer  *util.PayloadSigner
	Metrics *infraprom.Metrics
	Timeout time.Duration
}

// NewCallbackDispatcher creates a dispatcher.
func NewCallbackDispatcher(deps CallbackDeps) *CallbackDispatcher {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := deps.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &CallbackDispatcher{
		client:  &http.Client{Timeout: timeout},
		signer:  deps.Signer,
		logger:  logger,
		metrics: deps.Metrics,
		timeout: timeout,
	}
}

// Dispatch POSTs the entry as JSON to callbackURL. The entry is already
// persisted when this runs, so the receiver always sees a durable record id.
func (d *CallbackDispatcher) Dispatch(ctx context.Context, callbackURL string, entry *model.AccessLogEntry) {
	if callbackURL == "" {
		return
	}

	body, err := json.Marshal(entry)
	if err != nil {
		d.fail(callbackURL, entry, err)
		return
	}

	dispatchCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(dispatchCtx, http.MethodPost, callbackURL, bytes.NewReader(body))
	if err != nil {
		d.fail(callbackURL, entry, err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if d.signer.Enabled() {
		req.Header.Set(SignatureHeader, d.signer.Sign(body))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		d.fail(callbackURL, entry, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		d.logger.Warn("callback returned non-2xx",
			zap.String("callback_url", callbackURL),
			zap.String("entry_id", entry.ID),
			zap.Int("status", resp.StatusCode),
		)
		d.count(infraprom.ResultError)
		return
	}

	d.count(infraprom.ResultOK)
	d.logger.Debug("callback delivered",
		zap.String("callback_url", callbackURL),
		zap.String("entry_id", entry.ID),
	)
}

func (d *CallbackDispatcher) fail(callbackURL string, entry *model.AccessLogEntry, err error) {
	d.logger.Warn("callback dispatch failed",
		zap.String("callback_url", callbackURL),
		zap.String("entry_id", entry.ID),
		zap.Error(err),
	)
	d.count(infraprom.ResultError)
}

func (d *CallbackDispatcher) count(result string) {
	if d.metrics != nil {
		d.metrics.CallbackDispatch.WithLabelValues(result).Inc()
	}
}
