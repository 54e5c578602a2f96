// Package app assembles the oracle layer: registry, nebula instances, storage
// and background services, under one lifecycle manager.
package app

import (
	"context"
	"fmt"

	"github.com/nebula-network/oracle_layer/internal/app/domain/market"
	"github.com/nebula-network/oracle_layer/internal/app/metrics"
	"github.com/nebula-network/oracle_layer/internal/app/nebula"
	"github.com/nebula-network/oracle_layer/internal/app/pricewatch"
	"github.com/nebula-network/oracle_layer/internal/app/registry"
	"github.com/nebula-network/oracle_layer/internal/app/storage"
	"github.com/nebula-network/oracle_layer/internal/app/storage/memory"
	"github.com/nebula-network/oracle_layer/internal/app/system"
	"github.com/nebula-network/oracle_layer/internal/config"
	"github.com/nebula-network/oracle_layer/pkg/logger"
)

// Stores encapsulates persistence dependencies. A nil store defaults to the
// in-memory implementation.
type Stores struct {
	Oracle storage.OracleStore
}

// Application ties the oracle components together and manages their
// lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Registry *registry.Registry
	Store    storage.OracleStore
	Source   market.Source
}

// New builds a fully initialised application from configuration. The source
// resolves pools, feeds and assets; instances declared in the configuration
// are created and rehydrated from the store before any service starts.
func New(cfg *config.Config, source market.Source, stores Stores, log *logger.Logger) (*Application, error) {
	if cfg == nil {
		return nil, fmt.Errorf("app: config required")
	}
	if log == nil {
		log = logger.NewDefault("app")
	}
	if stores.Oracle == nil {
		stores.Oracle = memory.New()
	}

	admin := market.NewAddress(cfg.Registry.Admin)
	reg, err := registry.New(registry.Config{
		Address: market.NewAddress(cfg.Registry.Address),
		Admin:   admin,
		Store:   stores.Oracle,
		Log:     log.WithField("component", "registry"),
	})
	if err != nil {
		return nil, fmt.Errorf("build registry: %w", err)
	}

	manager := system.NewManager()
	if err := manager.Register(system.NoopService{ServiceName: "registry"}); err != nil {
		return nil, fmt.Errorf("register registry service: %w", err)
	}

	ctx := context.Background()
	for _, nebCfg := range cfg.Nebulas {
		nebAdmin := market.NewAddress(nebCfg.Admin)
		if nebAdmin.IsZero() {
			nebAdmin = admin
		}
		inst, err := nebula.New(nebula.Config{
			Name:                 nebCfg.Name,
			Address:              market.NewAddress(nebCfg.Address),
			Admin:                nebAdmin,
			Registrar:            reg.Address(),
			DenominationFeed:     market.NewAddress(nebCfg.DenominationFeed),
			DenominationDecimals: nebCfg.DenominationDecimals,
			Source:               source,
			Log:                  log.WithField("nebula", nebCfg.Name),
		})
		if err != nil {
			return nil, fmt.Errorf("build nebula %q: %w", nebCfg.Name, err)
		}
		if _, err := reg.CreateOracleInstance(ctx, admin, inst); err != nil {
			return nil, fmt.Errorf("create nebula %q: %w", nebCfg.Name, err)
		}
		if err := rehydrate(ctx, stores.Oracle, reg, inst); err != nil {
			return nil, fmt.Errorf("rehydrate nebula %q: %w", nebCfg.Name, err)
		}
	}

	if cfg.Watch.Enabled {
		watcher := pricewatch.NewWatcher(reg, stores.Oracle, cfg.Watch.Interval, log.WithField("component", "pricewatch"))
		if err := manager.Register(watcher); err != nil {
			return nil, fmt.Errorf("register price watcher: %w", err)
		}
	}

	metrics.SetNebulaCount(len(cfg.Nebulas))

	return &Application{
		manager:  manager,
		log:      log,
		Registry: reg,
		Store:    stores.Oracle,
		Source:   source,
	}, nil
}

// rehydrate replays persisted records into a freshly built instance and
// re-indexes its tokens in the registry.
func rehydrate(ctx context.Context, store storage.OracleStore, reg *registry.Registry, inst *nebula.Instance) error {
	recs, err := store.ListRecords(ctx, inst.Address())
	if err != nil {
		return fmt.Errorf("list records: %w", err)
	}
	if len(recs) == 0 {
		return nil
	}
	if err := inst.Restore(recs); err != nil {
		return fmt.Errorf("restore records: %w", err)
	}
	reg.AdoptRecords(inst)
	return nil
}

// Attach registers an additional lifecycle-managed service. Call before
// Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
