package checkout

import (
	"context"
	"sync"
	"time"

	"github.com/burgl/checkout/internal/domain/transaction"
	"github.com/burgl/checkout/internal/infrastructure/observability"
	"github.com/rs/zerolog"
)

// StatusFetcher is the slice of Gateway the watcher needs.
type StatusFetcher interface {
	Fetch(ctx context.Context, id string) (*transaction.Transaction, error)
}

// Watcher follows one transaction's status. Run refreshes on a fixed
// interval; Refresh is the same operation on demand. The two share one code
// path, the timer is just a repeated caller.
//
// Once the held status is AUTHORIZED, ticks skip the fetch but the loop
// keeps running until the context is cancelled; FAILED and CHARGEBACK do
// not stop refreshing. Cancellation is the only teardown, and it is
// mandatory.
type Watcher struct {
	fetcher  StatusFetcher
	txID     string
	interval time.Duration
	logger   zerolog.Logger
	metrics  *observability.Metrics

	onAuthorized func(txID string)
	started      time.Time

	mu       sync.Mutex
	status   transaction.Status
	notified bool
}

type WatcherOption func(*Watcher)

func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.interval = d }
}

func WithLogger(logger zerolog.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = logger }
}

func WithWatcherMetrics(m *observability.Metrics) WatcherOption {
	return func(w *Watcher) { w.metrics = m }
}

// WithOnAuthorized registers the success notification, fired exactly once,
// on the first observed transition into AUTHORIZED.
func WithOnAuthorized(fn func(txID string)) WatcherOption {
	return func(w *Watcher) { w.onAuthorized = fn }
}

func NewWatcher(fetcher StatusFetcher, txID string, initial transaction.Status, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		fetcher:  fetcher,
		txID:     txID,
		interval: 5 * time.Second,
		status:   initial,
		started:  time.Now(),
		logger:   zerolog.Nop(),
	}
	for _, o := range opts {
		o(w)
	}
	w.logger = w.logger.With().Str("transaction_id", txID).Logger()
	return w
}

// Status returns the most recently observed status.
func (w *Watcher) Status() transaction.Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// Run blocks until ctx is cancelled. The delay re-arms only after a tick
// finishes, so ticks never overlap even when the gateway is slow.
func (w *Watcher) Run(ctx context.Context) {
	timer := time.NewTimer(w.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			w.tick(ctx)
			timer.Reset(w.interval)
		}
	}
}

// tick swallows refresh errors: one failed fetch must not break the cadence.
func (w *Watcher) tick(ctx context.Context) {
	if err := w.Refresh(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		w.logger.Warn().Err(err).Msg("status refresh failed, keeping cadence")
		w.observeTick("error")
		return
	}
	w.observeTick("ok")
}

// Refresh fetches the current status and applies it. Skips the fetch when
// the held status is already AUTHORIZED.
func (w *Watcher) Refresh(ctx context.Context) error {
	w.mu.Lock()
	current := w.status
	w.mu.Unlock()

	if current.Authorized() {
		return nil
	}

	tx, err := w.fetcher.Fetch(ctx, w.txID)
	if err != nil {
		return err
	}

	w.mu.Lock()
	changed := tx.Status != w.status
	w.status = tx.Status
	notify := tx.Status.Authorized() && !w.notified
	if notify {
		w.notified = true
	}
	callback := w.onAuthorized
	w.mu.Unlock()

	if changed {
		w.logger.Info().
			Str("from", string(current)).
			Str("to", string(tx.Status)).
			Msg("transaction status changed")
	}
	if notify {
		if w.metrics != nil {
			w.metrics.AuthorizationLatency.Observe(time.Since(w.started).Seconds())
		}
		if callback != nil {
			callback(w.txID)
		}
	}
	return nil
}

func (w *Watcher) observeTick(result string) {
	if w.metrics != nil {
		w.metrics.WatcherTicksTotal.WithLabelValues(result).Inc()
	}
}
