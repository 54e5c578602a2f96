// Package oracle holds the data model shared by the nebula pricing engine and
// the registry: per-token oracle records, nebula descriptors, admin state and
// audit events.
package oracle

import (
	"time"

	"github.com/nebula-network/oracle_layer/internal/app/domain/market"
)

// Record captures one registered liquidity token and everything snapshotted at
// registration time. Records are immutable after creation; deletion tombstones
// the slot without reassigning its id.
type Record struct {
	Initialized bool
	Deleted     bool

	// OracleID equals the count of prior registrations on the owning nebula.
	// Ids are never reused; a deleted slot leaves a gap.
	OracleID uint64

	DisplayName string
	Underlying  market.Address

	// PoolTokens pairs positionally with PriceFeeds: PoolTokens[i] is priced
	// by PriceFeeds[i].
	PoolTokens        []market.Address
	PoolTokenDecimals []uint8
	PriceFeeds        []market.Address
	PriceFeedDecimals []uint8

	RegisteredAt time.Time
}

// Clone returns a deep copy so callers can hand records out without exposing
// internal slices.
func (r Record) Clone() Record {
	out := r
	out.PoolTokens = append([]market.Address(nil), r.PoolTokens...)
	out.PoolTokenDecimals = append([]uint8(nil), r.PoolTokenDecimals...)
	out.PriceFeeds = append([]market.Address(nil), r.PriceFeeds...)
	out.PriceFeedDecimals = append([]uint8(nil), r.PriceFeedDecimals...)
	return out
}

// NebulaDescriptor is the registry's view of one oracle instance.
type NebulaDescriptor struct {
	Name     string
	Instance market.Address

	// NebulaID reflects creation order within the registry.
	NebulaID uint64

	// TotalOraclesRegistered counts liquidity-token registrations routed
	// through the registry to this instance.
	TotalOraclesRegistered uint64

	CreatedAt time.Time
}

// Event is a structured audit entry mirroring on-ledger event emission.
type Event struct {
	ID       string
	Kind     EventKind
	Instance market.Address
	Subject  market.Address
	Caller   market.Address
	Record   *Record
	At       time.Time
}

// EventKind enumerates audit event types.
type EventKind string

const (
	EventNebulaCreated   EventKind = "nebula_created"
	EventTokenRegistered EventKind = "token_registered"
	EventTokenDeleted    EventKind = "token_deleted"
	EventAdminProposed   EventKind = "admin_proposed"
	EventAdminAccepted   EventKind = "admin_accepted"
)

// Snapshot is one observed LP price, persisted by the price watcher.
type Snapshot struct {
	ID         string
	Token      market.Address
	Instance   market.Address
	Price      string
	ObservedAt time.Time
}
