// Package testutil provides in-memory fakes of the market collaborators used
// across the engine's tests.
package testutil

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/holiman/uint256"

	"github.com/nebula-network/oracle_layer/internal/app/domain/market"
)

// FakeAsset is a scripted market.Asset.
type FakeAsset struct {
	Addr         market.Address
	AssetName    string
	DecimalCount uint8
	DecimalsErr  error
}

func (a *FakeAsset) Address() market.Address { return a.Addr }

func (a *FakeAsset) Decimals(context.Context) (uint8, error) {
	if a.DecimalsErr != nil {
		return 0, a.DecimalsErr
	}
	return a.DecimalCount, nil
}

func (a *FakeAsset) Name(context.Context) (string, error) { return a.AssetName, nil }

// FakeFeed is a scripted market.PriceFeed.
type FakeFeed struct {
	mu           sync.Mutex
	Addr         market.Address
	DecimalCount uint8
	Price        *big.Int
	UpdatedAt    time.Time
	PriceErr     error
}

func (f *FakeFeed) Address() market.Address { return f.Addr }

func (f *FakeFeed) Decimals(context.Context) (uint8, error) { return f.DecimalCount, nil }

func (f *FakeFeed) LatestPrice(context.Context) (*big.Int, time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PriceErr != nil {
		return nil, time.Time{}, f.PriceErr
	}
	return new(big.Int).Set(f.Price), f.UpdatedAt, nil
}

// SetPrice replaces the reported raw price.
func (f *FakeFeed) SetPrice(price *big.Int) {
	f.mu.Lock()
	f.Price = new(big.Int).Set(price)
	f.mu.Unlock()
}

// FakePool is a scripted market.Pool.
type FakePool struct {
	mu        sync.Mutex
	Addr      market.Address
	T0, T1    market.Address
	R0, R1    *uint256.Int
	Supply    *uint256.Int
	UpdatedAt time.Time
	Busy      bool
}

func (p *FakePool) Address() market.Address { return p.Addr }

func (p *FakePool) Token0(context.Context) (market.Address, error) { return p.T0, nil }

func (p *FakePool) Token1(context.Context) (market.Address, error) { return p.T1, nil }

func (p *FakePool) Reserves(context.Context) (*uint256.Int, *uint256.Int, time.Time, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.R0.Clone(), p.R1.Clone(), p.UpdatedAt, nil
}

func (p *FakePool) TotalSupply(context.Context) (*uint256.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Supply.Clone(), nil
}

func (p *FakePool) AssertIdle(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Busy {
		return market.ErrPoolBusy
	}
	return nil
}

// SetBusy scripts the pool's reentrancy state.
func (p *FakePool) SetBusy(busy bool) {
	p.mu.Lock()
	p.Busy = busy
	p.mu.Unlock()
}

// FakeSource resolves addresses against registered fakes.
type FakeSource struct {
	mu     sync.Mutex
	pools  map[market.Address]market.Pool
	feeds  map[market.Address]market.PriceFeed
	assets map[market.Address]market.Asset
}

// NewFakeSource returns an empty source.
func NewFakeSource() *FakeSource {
	return &FakeSource{
		pools:  make(map[market.Address]market.Pool),
		feeds:  make(map[market.Address]market.PriceFeed),
		assets: make(map[market.Address]market.Asset),
	}
}

// AddPool registers a pool fake.
func (s *FakeSource) AddPool(p market.Pool) {
	s.mu.Lock()
	s.pools[p.Address()] = p
	s.mu.Unlock()
}

// AddFeed registers a feed fake.
func (s *FakeSource) AddFeed(f market.PriceFeed) {
	s.mu.Lock()
	s.feeds[f.Address()] = f
	s.mu.Unlock()
}

// AddAsset registers an asset fake.
func (s *FakeSource) AddAsset(a market.Asset) {
	s.mu.Lock()
	s.assets[a.Address()] = a
	s.mu.Unlock()
}

func (s *FakeSource) Pool(_ context.Context, addr market.Address) (market.Pool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.pools[addr]; ok {
		return p, nil
	}
	return nil, market.ErrNotFound
}

func (s *FakeSource) Feed(_ context.Context, addr market.Address) (market.PriceFeed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.feeds[addr]; ok {
		return f, nil
	}
	return nil, market.ErrNotFound
}

func (s *FakeSource) Asset(_ context.Context, addr market.Address) (market.Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.assets[addr]; ok {
		return a, nil
	}
	return nil, market.ErrNotFound
}
