// Package nebula implements the per-family oracle instance: the registration
// state machine for liquidity tokens and the manipulation-resistant fair-price
// computation over externally sourced feed prices.
package nebula

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/nebula-network/oracle_layer/internal/app/domain/market"
	"github.com/nebula-network/oracle_layer/internal/app/domain/oracle"
	"github.com/nebula-network/oracle_layer/internal/app/feeds"
	"github.com/nebula-network/oracle_layer/internal/app/normalizer"
	"github.com/nebula-network/oracle_layer/internal/fixedpoint"
	"github.com/nebula-network/oracle_layer/pkg/logger"
)

var two = big.NewInt(2)

// Config describes one oracle instance.
type Config struct {
	Name    string
	Address market.Address
	Admin   market.Address

	// Registrar is the identity allowed to register liquidity tokens,
	// normally the owning registry. The admin is always allowed as well.
	Registrar market.Address

	// DenominationFeed prices the asset the output is expressed in;
	// DenominationDecimals is the oracle's configured output precision.
	DenominationFeed     market.Address
	DenominationDecimals uint8

	Source market.Source
	Log    *logger.Logger
}

// Instance prices the liquidity tokens registered with it. All mutable state
// sits behind one mutex so a partially applied registration is never
// observable, mirroring serialized on-ledger execution.
type Instance struct {
	mu sync.Mutex

	name      string
	addr      market.Address
	admin     oracle.AdminState
	registrar market.Address

	denomFeed   market.Address
	outDecimals uint8
	outScalar   *big.Int

	source market.Source
	norm   *normalizer.Normalizer
	reader *feeds.Reader

	// records is an arena indexed by oracle id; deletion tombstones a slot and
	// the id counter only ever grows.
	records []*oracle.Record
	index   map[market.Address]uint64

	log *logger.Logger
}

// New validates the configuration and builds an empty instance.
func New(cfg Config) (*Instance, error) {
	if cfg.Admin.IsZero() {
		return nil, oracle.ErrAdminCantBeZero
	}
	if cfg.Source == nil {
		return nil, fmt.Errorf("nebula %q: market source is required", cfg.Name)
	}
	if cfg.Address.IsZero() {
		return nil, fmt.Errorf("nebula %q: instance address is required", cfg.Name)
	}
	if cfg.DenominationFeed.IsZero() {
		return nil, fmt.Errorf("nebula %q: denomination feed is required", cfg.Name)
	}
	if cfg.DenominationDecimals == 0 {
		return nil, oracle.ErrDecimalsZero
	}
	if cfg.DenominationDecimals > 18 {
		return nil, oracle.ErrDecimalsTooLarge
	}

	log := cfg.Log
	if log == nil {
		log = logger.NewDefault("nebula")
	}

	norm := normalizer.New()
	outScalar := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(18-cfg.DenominationDecimals)), nil)

	return &Instance{
		name:        cfg.Name,
		addr:        cfg.Address,
		admin:       oracle.AdminState{Admin: cfg.Admin},
		registrar:   cfg.Registrar,
		denomFeed:   cfg.DenominationFeed,
		outDecimals: cfg.DenominationDecimals,
		outScalar:   outScalar,
		source:      cfg.Source,
		norm:        norm,
		reader:      feeds.NewReader(norm),
		index:       make(map[market.Address]uint64),
		log:         log.WithField("nebula", cfg.Name),
	}, nil
}

// Name returns the instance's display name.
func (i *Instance) Name() string { return i.name }

// Address returns the instance's identity.
func (i *Instance) Address() market.Address { return i.addr }

// Admin returns the current admin.
func (i *Instance) Admin() market.Address {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.admin.Admin
}

// PendingAdmin returns the staged admin, if any.
func (i *Instance) PendingAdmin() market.Address {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.admin.PendingAdmin
}

// ProposeAdmin stages a new admin; only the current admin may call it.
func (i *Instance) ProposeAdmin(caller, candidate market.Address) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.admin.Propose(caller, candidate)
}

// AcceptAdmin commits a staged admin transfer; only the pending admin may
// accept.
func (i *Instance) AcceptAdmin(caller market.Address) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.admin.Accept(caller)
}

// RegisterLiquidityToken binds lpToken to the ordered feed list and snapshots
// everything the read path needs: constituent tokens, their decimals and the
// feeds' decimals. All collaborator reads happen before any state is touched,
// so a failed registration leaves the instance unchanged.
func (i *Instance) RegisterLiquidityToken(ctx context.Context, caller, lpToken market.Address, feedAddrs []market.Address) (oracle.Record, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if caller != i.registrar && !i.admin.IsAdmin(caller) {
		return oracle.Record{}, oracle.ErrNotRegistrar
	}
	if id, ok := i.index[lpToken]; ok && i.records[id].Initialized {
		return oracle.Record{}, oracle.ErrPairAlreadyInitialized
	}

	pool, err := i.source.Pool(ctx, lpToken)
	if err != nil {
		return oracle.Record{}, fmt.Errorf("resolve pool %s: %w", lpToken, err)
	}
	token0, err := pool.Token0(ctx)
	if err != nil {
		return oracle.Record{}, err
	}
	token1, err := pool.Token1(ctx)
	if err != nil {
		return oracle.Record{}, err
	}
	poolTokens := []market.Address{token0, token1}
	if len(feedAddrs) != len(poolTokens) {
		return oracle.Record{}, oracle.ErrFeedCountMismatch
	}

	lpAsset, err := i.source.Asset(ctx, lpToken)
	if err != nil {
		return oracle.Record{}, fmt.Errorf("resolve asset %s: %w", lpToken, err)
	}
	displayName, err := lpAsset.Name(ctx)
	if err != nil {
		return oracle.Record{}, err
	}

	tokenDecimals := make([]uint8, 0, len(poolTokens))
	for _, addr := range poolTokens {
		asset, err := i.source.Asset(ctx, addr)
		if err != nil {
			return oracle.Record{}, fmt.Errorf("resolve asset %s: %w", addr, err)
		}
		_, decimals, err := i.norm.ComputeScalar(ctx, asset)
		if err != nil {
			return oracle.Record{}, err
		}
		tokenDecimals = append(tokenDecimals, decimals)
	}

	feedDecimals := make([]uint8, 0, len(feedAddrs))
	for _, addr := range feedAddrs {
		feed, err := i.source.Feed(ctx, addr)
		if err != nil {
			return oracle.Record{}, fmt.Errorf("resolve feed %s: %w", addr, err)
		}
		_, decimals, err := i.norm.ComputeScalar(ctx, feed)
		if err != nil {
			return oracle.Record{}, err
		}
		feedDecimals = append(feedDecimals, decimals)
	}

	rec := &oracle.Record{
		Initialized:       true,
		OracleID:          uint64(len(i.records)),
		DisplayName:       displayName,
		Underlying:        lpToken,
		PoolTokens:        poolTokens,
		PoolTokenDecimals: tokenDecimals,
		PriceFeeds:        append([]market.Address(nil), feedAddrs...),
		PriceFeedDecimals: feedDecimals,
		RegisteredAt:      time.Now().UTC(),
	}
	i.records = append(i.records, rec)
	i.index[lpToken] = rec.OracleID

	i.log.WithField("lp_token", lpToken).
		WithField("oracle_id", rec.OracleID).
		WithField("display_name", displayName).
		Info("liquidity token registered")
	return rec.Clone(), nil
}

// Unregister tombstones a registration. The slot's id is never reused; a later
// re-registration of the same token receives a fresh id.
func (i *Instance) Unregister(ctx context.Context, caller, lpToken market.Address) (oracle.Record, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.admin.IsAdmin(caller) {
		return oracle.Record{}, oracle.ErrNotAdmin
	}
	id, ok := i.index[lpToken]
	if !ok || !i.records[id].Initialized {
		return oracle.Record{}, oracle.ErrPairNotInitialized
	}

	removed := i.records[id].Clone()
	i.records[id] = &oracle.Record{OracleID: id, Deleted: true}
	delete(i.index, lpToken)

	i.log.WithField("lp_token", lpToken).WithField("oracle_id", id).Info("liquidity token unregistered")
	return removed, nil
}

// PriceOf computes the fair price of one liquidity-token unit, expressed in
// the denomination asset at the configured output decimals.
//
// The step order and the placement of the factor of two are load-bearing:
// every division truncates immediately and reordering would change the low
// bits of the result.
func (i *Instance) PriceOf(ctx context.Context, lpToken market.Address) (*big.Int, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	rec, err := i.recordLocked(lpToken)
	if err != nil {
		return nil, err
	}
	pool, err := i.source.Pool(ctx, lpToken)
	if err != nil {
		return nil, fmt.Errorf("resolve pool %s: %w", lpToken, err)
	}

	// Context guard: refuse to price while the pool is mid-operation and its
	// reserves may be transiently inconsistent.
	if err := pool.AssertIdle(ctx); err != nil {
		if errors.Is(err, market.ErrPoolBusy) {
			return nil, oracle.ErrAlreadyInContext
		}
		return nil, err
	}

	// 1. Reserves, normalized to 18 decimals with the registration scalars.
	reserve0, reserve1, _, err := pool.Reserves(ctx)
	if err != nil {
		return nil, err
	}
	reserve0Norm := i.norm.Normalize(rec.PoolTokens[0], reserve0.ToBig())
	reserve1Norm := i.norm.Normalize(rec.PoolTokens[1], reserve1.ToBig())

	// 2. Geometric mean of the normalized reserves.
	reserveProduct, err := fixedpoint.GeometricMean(reserve0Norm, reserve1Norm)
	if err != nil {
		return nil, err
	}

	// 3-4. Feed prices, normalized, then their geometric mean.
	price0, err := i.feedPriceLocked(ctx, rec.PriceFeeds[0])
	if err != nil {
		return nil, err
	}
	price1, err := i.feedPriceLocked(ctx, rec.PriceFeeds[1])
	if err != nil {
		return nil, err
	}
	priceProduct, err := fixedpoint.GeometricMean(price0, price1)
	if err != nil {
		return nil, err
	}

	// 5. Liquidity-token supply (18-decimal accounting by contract).
	supply, err := pool.TotalSupply(ctx)
	if err != nil {
		return nil, err
	}

	// 6. rawPrice = (reserveProduct * priceProduct / supply) * 2. The factor
	// of two comes from the constant-product invariant: fair value per unit
	// is 2*sqrt(r0*p0*r1*p1)/supply.
	raw, err := fixedpoint.Mul(reserveProduct, priceProduct)
	if err != nil {
		return nil, err
	}
	raw, err = fixedpoint.Div(raw, supply.ToBig())
	if err != nil {
		return nil, err
	}
	raw.Mul(raw, two)
	if raw.BitLen() > 256 {
		return nil, fixedpoint.ErrOverflow
	}

	// 7. Re-denominate and rescale to the output decimals.
	return i.denominateLocked(ctx, raw)
}

// AssetPrices returns each underlying asset's feed price, re-denominated and
// rescaled, in pool-token order. Reserves play no part here.
func (i *Instance) AssetPrices(ctx context.Context, lpToken market.Address) ([]*big.Int, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	rec, err := i.recordLocked(lpToken)
	if err != nil {
		return nil, err
	}

	out := make([]*big.Int, 0, len(rec.PriceFeeds))
	for _, feedAddr := range rec.PriceFeeds {
		price, err := i.feedPriceLocked(ctx, feedAddr)
		if err != nil {
			return nil, err
		}
		denominated, err := i.denominateLocked(ctx, price)
		if err != nil {
			return nil, err
		}
		out = append(out, denominated)
	}
	return out, nil
}

// Record returns the registration snapshot for lpToken.
func (i *Instance) Record(lpToken market.Address) (oracle.Record, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	rec, err := i.recordLocked(lpToken)
	if err != nil {
		return oracle.Record{}, err
	}
	return rec.Clone(), nil
}

// Records returns every arena slot, tombstones included, in id order.
func (i *Instance) Records() []oracle.Record {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make([]oracle.Record, 0, len(i.records))
	for _, rec := range i.records {
		out = append(out, rec.Clone())
	}
	return out
}

// Count returns the number of ids ever assigned, deleted slots included.
func (i *Instance) Count() uint64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	return uint64(len(i.records))
}

// Restore rehydrates the arena from persisted records without touching the
// ledger: scalars are re-derived from the decimal snapshots.
func (i *Instance) Restore(recs []oracle.Record) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if len(i.records) != 0 {
		return fmt.Errorf("nebula %q: restore onto a non-empty instance", i.name)
	}
	maxID := uint64(0)
	for _, rec := range recs {
		if rec.OracleID+1 > maxID {
			maxID = rec.OracleID + 1
		}
	}
	i.records = make([]*oracle.Record, maxID)
	for id := range i.records {
		i.records[id] = &oracle.Record{OracleID: uint64(id), Deleted: true}
	}
	for _, rec := range recs {
		clone := rec.Clone()
		i.records[rec.OracleID] = &clone
		if !rec.Initialized {
			continue
		}
		i.index[rec.Underlying] = rec.OracleID
		for idx, addr := range rec.PoolTokens {
			if err := i.norm.Seed(addr, rec.PoolTokenDecimals[idx]); err != nil {
				return err
			}
		}
		for idx, addr := range rec.PriceFeeds {
			if err := i.norm.Seed(addr, rec.PriceFeedDecimals[idx]); err != nil {
				return err
			}
		}
	}
	return nil
}

func (i *Instance) recordLocked(lpToken market.Address) (*oracle.Record, error) {
	id, ok := i.index[lpToken]
	if !ok || !i.records[id].Initialized {
		return nil, oracle.ErrPairNotInitialized
	}
	return i.records[id], nil
}

func (i *Instance) feedPriceLocked(ctx context.Context, addr market.Address) (*big.Int, error) {
	feed, err := i.source.Feed(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("resolve feed %s: %w", addr, err)
	}
	return i.reader.Latest(ctx, feed)
}

// denominateLocked divides by the denomination feed's normalized price and
// rescales from 18 decimals to the configured output decimals.
func (i *Instance) denominateLocked(ctx context.Context, value *big.Int) (*big.Int, error) {
	if i.norm.ScalarOf(i.denomFeed).Sign() == 0 {
		feed, err := i.source.Feed(ctx, i.denomFeed)
		if err != nil {
			return nil, fmt.Errorf("resolve denomination feed %s: %w", i.denomFeed, err)
		}
		if _, _, err := i.norm.ComputeScalar(ctx, feed); err != nil {
			return nil, err
		}
	}
	denomPrice, err := i.feedPriceLocked(ctx, i.denomFeed)
	if err != nil {
		return nil, err
	}
	out, err := fixedpoint.Div(value, denomPrice)
	if err != nil {
		return nil, err
	}
	if i.outScalar.Cmp(big.NewInt(1)) != 0 {
		out.Quo(out, i.outScalar)
	}
	return out, nil
}
