// Package market declares the capability contracts of the external
// collaborators the pricing engine reads from: constant-product pools, price
// feeds and ERC20-style assets. The engine consumes these interfaces; it never
// implements them.
package market

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"time"

	"github.com/holiman/uint256"
)

// ErrPoolBusy is returned by Pool.AssertIdle when the pool is mid-operation
// and its reserves may be transiently inconsistent.
var ErrPoolBusy = errors.New("market: pool is mid-operation")

// ErrNotFound is returned by a Source when no collaborator exists at the
// requested address.
var ErrNotFound = errors.New("market: address not found")

// Address identifies an on-ledger entity. Addresses are compared
// case-insensitively; NewAddress canonicalises to lower case.
type Address string

// ZeroAddress is the empty address.
const ZeroAddress Address = ""

// NewAddress canonicalises a raw address string.
func NewAddress(raw string) Address {
	return Address(strings.ToLower(strings.TrimSpace(raw)))
}

// IsZero reports whether the address is empty.
func (a Address) IsZero() bool { return a == ZeroAddress }

func (a Address) String() string { return string(a) }

// DecimalReporter is the slice of Asset and PriceFeed the decimal normalizer
// needs: a stable identity plus a decimal count.
type DecimalReporter interface {
	Address() Address
	Decimals(ctx context.Context) (uint8, error)
}

// Asset is an ERC20-style token exposing its metadata.
type Asset interface {
	DecimalReporter
	Name(ctx context.Context) (string, error)
}

// PriceFeed reports the latest externally-aggregated price of a single asset.
// The raw value is signed and scaled by the feed's own decimal count; the
// feed's internal consensus is not modelled here.
type PriceFeed interface {
	DecimalReporter
	LatestPrice(ctx context.Context) (price *big.Int, updatedAt time.Time, err error)
}

// Pool is a constant-product liquidity pool. Reserves are reported in each
// token's native decimals; total supply of the liquidity token uses 18-decimal
// accounting.
type Pool interface {
	Address() Address
	Token0(ctx context.Context) (Address, error)
	Token1(ctx context.Context) (Address, error)
	Reserves(ctx context.Context) (reserve0, reserve1 *uint256.Int, lastUpdate time.Time, err error)
	TotalSupply(ctx context.Context) (*uint256.Int, error)

	// AssertIdle performs the pool-side "not mid-operation" check backing the
	// reentrancy context guard. It returns nil when the pool is idle and
	// ErrPoolBusy when a pool operation is in flight.
	AssertIdle(ctx context.Context) error
}

// Source resolves addresses to live collaborator handles.
type Source interface {
	Pool(ctx context.Context, addr Address) (Pool, error)
	Feed(ctx context.Context, addr Address) (PriceFeed, error)
	Asset(ctx context.Context, addr Address) (Asset, error)
}
