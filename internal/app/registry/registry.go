// Package registry implements the top-level oracle directory: it maps each
// liquidity token to the nebula instance responsible for it, gates instance
// creation and token registration, and aggregates price queries.
package registry

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/nebula-network/oracle_layer/internal/app/domain/market"
	"github.com/nebula-network/oracle_layer/internal/app/domain/oracle"
	"github.com/nebula-network/oracle_layer/internal/app/metrics"
	"github.com/nebula-network/oracle_layer/internal/app/nebula"
	"github.com/nebula-network/oracle_layer/internal/app/storage"
	"github.com/nebula-network/oracle_layer/pkg/logger"
)

// Config describes the registry.
type Config struct {
	Address market.Address
	Admin   market.Address
	Store   storage.OracleStore
	Log     *logger.Logger
}

// Registry owns the nebula descriptors and the liquidity-token index. Like
// the instances it manages, all mutable state sits behind a single mutex.
type Registry struct {
	mu sync.Mutex

	addr  market.Address
	admin oracle.AdminState

	// descriptors is an arena indexed by nebula id.
	descriptors []*oracle.NebulaDescriptor
	instances   map[market.Address]*nebula.Instance
	byInstance  map[market.Address]oracle.NebulaDescriptor
	tokenIndex  map[market.Address]market.Address
	tokens      []market.Address

	store storage.OracleStore
	log   *logger.Logger
}

// New builds an empty registry.
func New(cfg Config) (*Registry, error) {
	if cfg.Admin.IsZero() {
		return nil, oracle.ErrAdminCantBeZero
	}
	log := cfg.Log
	if log == nil {
		log = logger.NewDefault("registry")
	}
	return &Registry{
		addr:       cfg.Address,
		admin:      oracle.AdminState{Admin: cfg.Admin},
		instances:  make(map[market.Address]*nebula.Instance),
		byInstance: make(map[market.Address]oracle.NebulaDescriptor),
		tokenIndex: make(map[market.Address]market.Address),
		store:      cfg.Store,
		log:        log,
	}, nil
}

// Address returns the registry's own identity, used as registrar when
// delegating registrations to instances.
func (r *Registry) Address() market.Address { return r.addr }

// Admin returns the registry admin.
func (r *Registry) Admin() market.Address {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.admin.Admin
}

// ProposeAdmin stages a registry admin transfer.
func (r *Registry) ProposeAdmin(caller, candidate market.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.admin.Propose(caller, candidate); err != nil {
		return err
	}
	r.appendEventLocked(oracle.Event{Kind: oracle.EventAdminProposed, Caller: caller, Subject: candidate})
	return nil
}

// AcceptAdmin commits a staged registry admin transfer.
func (r *Registry) AcceptAdmin(caller market.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.admin.Accept(caller); err != nil {
		return err
	}
	r.appendEventLocked(oracle.Event{Kind: oracle.EventAdminAccepted, Caller: caller})
	return nil
}

// CreateOracleInstance adds a nebula instance to the directory. The duplicate
// check is a linear scan: the number of distinct instances stays small, unlike
// the number of priced tokens.
func (r *Registry) CreateOracleInstance(ctx context.Context, caller market.Address, inst *nebula.Instance) (oracle.NebulaDescriptor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.admin.IsAdmin(caller) {
		return oracle.NebulaDescriptor{}, oracle.ErrNotAdmin
	}
	for _, desc := range r.descriptors {
		if desc != nil && desc.Instance == inst.Address() {
			return oracle.NebulaDescriptor{}, oracle.ErrOracleAlreadyAdded
		}
	}

	desc := &oracle.NebulaDescriptor{
		Name:      inst.Name(),
		Instance:  inst.Address(),
		NebulaID:  uint64(len(r.descriptors)),
		CreatedAt: time.Now().UTC(),
	}
	r.descriptors = append(r.descriptors, desc)
	r.instances[inst.Address()] = inst
	r.byInstance[inst.Address()] = *desc

	r.persistDescriptorLocked(ctx, *desc)
	r.appendEventLocked(oracle.Event{Kind: oracle.EventNebulaCreated, Instance: inst.Address(), Caller: caller})
	metrics.SetNebulaCount(len(r.instances))

	r.log.WithField("nebula", inst.Name()).
		WithField("nebula_id", desc.NebulaID).
		Info("oracle instance created")
	return *desc, nil
}

// RegisterLiquidityToken delegates registration to the nebula identified by
// nebulaID and indexes the token on success.
func (r *Registry) RegisterLiquidityToken(ctx context.Context, caller market.Address, nebulaID uint64, lpToken market.Address, feedAddrs []market.Address) (oracle.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.admin.IsAdmin(caller) {
		return oracle.Record{}, oracle.ErrNotAdmin
	}
	desc, inst, err := r.nebulaLocked(nebulaID)
	if err != nil {
		return oracle.Record{}, err
	}
	// A token already owned by any instance cannot be bound to a second one.
	if _, taken := r.tokenIndex[lpToken]; taken {
		return oracle.Record{}, oracle.ErrPairAlreadyInitialized
	}

	rec, err := inst.RegisterLiquidityToken(ctx, r.addr, lpToken, feedAddrs)
	if err != nil {
		return oracle.Record{}, err
	}

	desc.TotalOraclesRegistered++
	r.byInstance[desc.Instance] = *desc
	r.tokenIndex[lpToken] = desc.Instance
	r.tokens = append(r.tokens, lpToken)

	r.persistDescriptorLocked(ctx, *desc)
	r.persistRecordLocked(ctx, desc.Instance, rec)
	r.appendEventLocked(oracle.Event{Kind: oracle.EventTokenRegistered, Instance: desc.Instance, Subject: lpToken, Caller: caller, Record: &rec})
	metrics.RecordRegistration()

	return rec, nil
}

// UnregisterLiquidityToken tombstones a registration. The caller identity is
// passed through to the instance, which enforces its own admin.
func (r *Registry) UnregisterLiquidityToken(ctx context.Context, caller market.Address, lpToken market.Address) (oracle.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	instAddr, ok := r.tokenIndex[lpToken]
	if !ok {
		return oracle.Record{}, oracle.ErrPairNotInitialized
	}
	inst := r.instances[instAddr]

	removed, err := inst.Unregister(ctx, caller, lpToken)
	if err != nil {
		return oracle.Record{}, err
	}
	delete(r.tokenIndex, lpToken)
	for idx, tok := range r.tokens {
		if tok == lpToken {
			r.tokens = append(r.tokens[:idx], r.tokens[idx+1:]...)
			break
		}
	}

	tombstone := oracle.Record{OracleID: removed.OracleID, Deleted: true}
	r.persistRecordLocked(ctx, instAddr, tombstone)
	r.appendEventLocked(oracle.Event{Kind: oracle.EventTokenDeleted, Instance: instAddr, Subject: lpToken, Caller: caller})
	return removed, nil
}

// PriceOf resolves the owning instance and delegates. A zero result from a
// degenerate feed state is rejected rather than reported.
func (r *Registry) PriceOf(ctx context.Context, lpToken market.Address) (*big.Int, error) {
	start := time.Now()
	price, err := r.priceOf(ctx, lpToken)
	if err != nil {
		metrics.RecordPriceRead("error", time.Since(start))
		return nil, err
	}
	metrics.RecordPriceRead("ok", time.Since(start))
	return price, nil
}

func (r *Registry) priceOf(ctx context.Context, lpToken market.Address) (*big.Int, error) {
	inst, err := r.instanceFor(lpToken)
	if err != nil {
		return nil, err
	}
	price, err := inst.PriceOf(ctx, lpToken)
	if err != nil {
		return nil, err
	}
	if price.Sign() == 0 {
		return nil, oracle.ErrPriceCantBeZero
	}
	return price, nil
}

// AssetPrices delegates to the owning instance.
func (r *Registry) AssetPrices(ctx context.Context, lpToken market.Address) ([]*big.Int, error) {
	inst, err := r.instanceFor(lpToken)
	if err != nil {
		return nil, err
	}
	return inst.AssetPrices(ctx, lpToken)
}

// RecordOf returns the registration snapshot of lpToken.
func (r *Registry) RecordOf(lpToken market.Address) (oracle.Record, error) {
	inst, err := r.instanceFor(lpToken)
	if err != nil {
		return oracle.Record{}, err
	}
	return inst.Record(lpToken)
}

// Nebulas returns every live descriptor in id order.
func (r *Registry) Nebulas() []oracle.NebulaDescriptor {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]oracle.NebulaDescriptor, 0, len(r.descriptors))
	for _, desc := range r.descriptors {
		if desc != nil {
			out = append(out, *desc)
		}
	}
	return out
}

// Nebula returns the descriptor and instance for a nebula id.
func (r *Registry) Nebula(nebulaID uint64) (oracle.NebulaDescriptor, *nebula.Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	desc, inst, err := r.nebulaLocked(nebulaID)
	if err != nil {
		return oracle.NebulaDescriptor{}, nil, err
	}
	return *desc, inst, nil
}

// Tokens returns every registered liquidity token in registration order.
func (r *Registry) Tokens() []market.Address {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]market.Address(nil), r.tokens...)
}

// InstanceFor returns the instance address owning lpToken, or the zero
// address when unregistered. The lookup itself never fails; the delegated
// call does.
func (r *Registry) InstanceFor(lpToken market.Address) market.Address {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tokenIndex[lpToken]
}

// AdoptRecords re-indexes an instance's live registrations, used after the
// instance was rehydrated from storage.
func (r *Registry) AdoptRecords(inst *nebula.Instance) {
	r.mu.Lock()
	defer r.mu.Unlock()

	desc, ok := r.byInstance[inst.Address()]
	if !ok {
		return
	}
	for _, rec := range inst.Records() {
		if !rec.Initialized {
			continue
		}
		if _, indexed := r.tokenIndex[rec.Underlying]; indexed {
			continue
		}
		r.tokenIndex[rec.Underlying] = inst.Address()
		r.tokens = append(r.tokens, rec.Underlying)
		desc.TotalOraclesRegistered++
	}
	r.descriptors[desc.NebulaID].TotalOraclesRegistered = desc.TotalOraclesRegistered
	r.byInstance[inst.Address()] = desc
}

func (r *Registry) instanceFor(lpToken market.Address) (*nebula.Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	instAddr, ok := r.tokenIndex[lpToken]
	if !ok {
		return nil, oracle.ErrPairNotInitialized
	}
	return r.instances[instAddr], nil
}

func (r *Registry) nebulaLocked(nebulaID uint64) (*oracle.NebulaDescriptor, *nebula.Instance, error) {
	if nebulaID >= uint64(len(r.descriptors)) || r.descriptors[nebulaID] == nil {
		return nil, nil, oracle.ErrNebulaNotFound
	}
	desc := r.descriptors[nebulaID]
	return desc, r.instances[desc.Instance], nil
}

// Store writes are a best-effort mirror of the in-memory state machine; a
// failed write is logged, never allowed to fail the already-committed
// operation.
func (r *Registry) persistDescriptorLocked(ctx context.Context, desc oracle.NebulaDescriptor) {
	if r.store == nil {
		return
	}
	if err := r.store.SaveDescriptor(ctx, desc); err != nil {
		r.log.WithError(err).Warn("persist nebula descriptor")
	}
}

func (r *Registry) persistRecordLocked(ctx context.Context, instance market.Address, rec oracle.Record) {
	if r.store == nil {
		return
	}
	if err := r.store.SaveRecord(ctx, instance, rec); err != nil {
		r.log.WithError(err).Warn("persist oracle record")
	}
}

func (r *Registry) appendEventLocked(ev oracle.Event) {
	if r.store == nil {
		return
	}
	if _, err := r.store.AppendEvent(context.Background(), ev); err != nil {
		r.log.WithError(err).Warn("append audit event")
	}
}
