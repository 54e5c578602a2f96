// Package pricewatch runs the background price observer: on a fixed interval
// it prices every registered liquidity token and persists the observation.
package pricewatch

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/nebula-network/oracle_layer/internal/app/domain/market"
	"github.com/nebula-network/oracle_layer/internal/app/domain/oracle"
	"github.com/nebula-network/oracle_layer/internal/app/metrics"
	"github.com/nebula-network/oracle_layer/internal/app/registry"
	"github.com/nebula-network/oracle_layer/internal/app/storage"
	"github.com/nebula-network/oracle_layer/internal/app/system"
	"github.com/nebula-network/oracle_layer/pkg/logger"
)

var _ system.Service = (*Watcher)(nil)

// Watcher periodically reads every registered token's price through the
// registry and stores a snapshot per observation.
type Watcher struct {
	registry  *registry.Registry
	snapshots storage.SnapshotStore
	log       *logger.Logger
	interval  time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewWatcher creates a lifecycle-managed price watcher.
func NewWatcher(reg *registry.Registry, snapshots storage.SnapshotStore, interval time.Duration, log *logger.Logger) *Watcher {
	if log == nil {
		log = logger.NewDefault("pricewatch")
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Watcher{
		registry:  reg,
		snapshots: snapshots,
		log:       log,
		interval:  interval,
	}
}

func (w *Watcher) Name() string { return "price-watcher" }

func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.running = true
	w.mu.Unlock()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				w.tick(runCtx)
			}
		}
	}()

	w.log.Info("price watcher started")
	return nil
}

func (w *Watcher) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	cancel := w.cancel
	w.running = false
	w.cancel = nil
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		w.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	w.log.Info("price watcher stopped")
	return nil
}

func (w *Watcher) tick(ctx context.Context) {
	if w.registry == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	for _, token := range w.registry.Tokens() {
		w.observe(ctx, token)
	}
}

func (w *Watcher) observe(ctx context.Context, token market.Address) {
	price, err := w.registry.PriceOf(ctx, token)
	if err != nil {
		w.log.WithError(err).
			WithField("token", string(token)).
			Warn("price observation failed")
		return
	}

	metrics.SetLPPrice(string(token), toFloat(price))

	if w.snapshots == nil {
		return
	}
	snap := oracle.Snapshot{
		Token:      token,
		Instance:   w.registry.InstanceFor(token),
		Price:      price.String(),
		ObservedAt: time.Now().UTC(),
	}
	if _, err := w.snapshots.CreateSnapshot(ctx, snap); err != nil {
		w.log.WithError(err).
			WithField("token", string(token)).
			Warn("record price snapshot failed")
	}
}

// toFloat renders an 18-decimal fixed-point value for gauge export. Precision
// loss is acceptable here; snapshots keep the exact string.
func toFloat(price *big.Int) float64 {
	f, _ := new(big.Float).Quo(
		new(big.Float).SetInt(price),
		big.NewFloat(1e18),
	).Float64()
	return f
}
