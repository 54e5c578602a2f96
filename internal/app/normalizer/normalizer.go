// Package normalizer lifts decimal-scaled integers into the canonical
// 18-decimal fixed-point representation. Each asset's multiplicative scalar
// 10^(18-decimals) is computed once, at registration time, and memoized.
package normalizer

import (
	"context"
	"math/big"
	"sync"

	"github.com/nebula-network/oracle_layer/internal/app/domain/market"
	"github.com/nebula-network/oracle_layer/internal/app/domain/oracle"
)

var ten = big.NewInt(10)

// Normalizer caches per-asset decimal scalars. Safe for concurrent use.
type Normalizer struct {
	mu      sync.RWMutex
	scalars map[market.Address]*big.Int
}

// New returns an empty scalar cache.
func New() *Normalizer {
	return &Normalizer{scalars: make(map[market.Address]*big.Int)}
}

// ComputeScalar queries the reporter's decimal count, validates it, caches the
// scalar and returns it together with the decimals snapshot. A second call for
// the same address returns the cached scalar without re-deriving it.
func (n *Normalizer) ComputeScalar(ctx context.Context, rep market.DecimalReporter) (*big.Int, uint8, error) {
	decimals, err := rep.Decimals(ctx)
	if err != nil {
		return nil, 0, err
	}
	scalar, err := scalarFor(decimals)
	if err != nil {
		return nil, 0, err
	}

	n.mu.Lock()
	if cached, ok := n.scalars[rep.Address()]; ok {
		scalar = cached
	} else {
		n.scalars[rep.Address()] = scalar
	}
	n.mu.Unlock()

	return new(big.Int).Set(scalar), decimals, nil
}

// Seed installs a scalar from a previously snapshotted decimal count, used
// when rehydrating registrations from storage without touching the ledger.
func (n *Normalizer) Seed(addr market.Address, decimals uint8) error {
	scalar, err := scalarFor(decimals)
	if err != nil {
		return err
	}
	n.mu.Lock()
	n.scalars[addr] = scalar
	n.mu.Unlock()
	return nil
}

// ScalarOf returns the cached scalar for addr, or zero when none was computed.
func (n *Normalizer) ScalarOf(addr market.Address) *big.Int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if scalar, ok := n.scalars[addr]; ok {
		return new(big.Int).Set(scalar)
	}
	return new(big.Int)
}

// Normalize multiplies amount by the cached scalar of addr. Callers must have
// computed the scalar first; an uncached address normalizes to zero. A scalar
// of one short-circuits to the unchanged amount.
func (n *Normalizer) Normalize(addr market.Address, amount *big.Int) *big.Int {
	n.mu.RLock()
	scalar, ok := n.scalars[addr]
	n.mu.RUnlock()

	if !ok {
		return new(big.Int)
	}
	if scalar.Cmp(big.NewInt(1)) == 0 {
		return new(big.Int).Set(amount)
	}
	return new(big.Int).Mul(amount, scalar)
}

func scalarFor(decimals uint8) (*big.Int, error) {
	if decimals == 0 {
		return nil, oracle.ErrDecimalsZero
	}
	if decimals > 18 {
		return nil, oracle.ErrDecimalsTooLarge
	}
	return new(big.Int).Exp(ten, big.NewInt(int64(18-decimals)), nil), nil
}
