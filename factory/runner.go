package factory

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/ledgerone/warehouse/config"
	"github.com/ledgerone/warehouse/ledger"
	"github.com/ledgerone/warehouse/metrics"
	"github.com/ledgerone/warehouse/notify"
	"github.com/ledgerone/warehouse/store/sqlite"
)

// Wiring is a runner with every collaborator the configuration asks for.
type Wiring struct {
	Runner *ledger.Runner
	Cache  *ledger.BalanceCache

	closers []func()
}

// Close releases the source connection and the notifier.
func (w *Wiring) Close() {
	for i := len(w.closers) - 1; i >= 0; i-- {
		w.closers[i]()
	}
}

// NewRunner wires a runner that publishes into store and reads events from
// the configured source. observer may be nil to skip metrics.
func NewRunner(ctx context.Context, cfg config.Config, store *sqlite.Store, observer *metrics.Observer, logger zerolog.Logger) (*Wiring, error) {
	pipeline, err := NewPipeline(cfg.Pipeline, logger)
	if err != nil {
		return nil, err
	}

	source, closeSource, err := NewSource(ctx, cfg, store)
	if err != nil {
		return nil, err
	}
	w := &Wiring{closers: []func(){closeSource}}

	runner := ledger.NewRunner(source, store, pipeline, logger)
	runner.Recorder = store
	runner.Cache = ledger.NewBalanceCache(store)
	if observer != nil {
		runner.Observer = observer
	}

	notifiers := notify.Multi{notify.NewLog(logger)}
	if cfg.Kafka.Enabled() {
		k := notify.NewKafka(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		notifiers = append(notifiers, k)
		w.closers = append(w.closers, func() {
			if err := k.Close(); err != nil {
				logger.Warn().Err(err).Msg("failed to close kafka writer")
			}
		})
	}
	runner.Notifier = notifiers

	// Seed the cache generation with what is already published.
	if fp, err := store.PublishedFingerprint(ctx); err == nil {
		runner.Cache.Invalidate(fp)
	}

	w.Runner = runner
	w.Cache = runner.Cache
	return w, nil
}
