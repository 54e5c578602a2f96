// Package storage declares the persistence interfaces behind the oracle
// registry. The authoritative state machine lives in memory, mirroring
// serialized ledger execution; stores are a write-through mirror used for
// restart rehydration and audit.
package storage

import (
	"context"

	"github.com/nebula-network/oracle_layer/internal/app/domain/market"
	"github.com/nebula-network/oracle_layer/internal/app/domain/oracle"
)

// NebulaStore persists nebula descriptors and registration records.
type NebulaStore interface {
	SaveDescriptor(ctx context.Context, desc oracle.NebulaDescriptor) error
	ListDescriptors(ctx context.Context) ([]oracle.NebulaDescriptor, error)

	// SaveRecord upserts by (instance, oracle id); tombstoned records are
	// saved the same way.
	SaveRecord(ctx context.Context, instance market.Address, rec oracle.Record) error
	ListRecords(ctx context.Context, instance market.Address) ([]oracle.Record, error)
}

// EventStore persists audit events.
type EventStore interface {
	AppendEvent(ctx context.Context, ev oracle.Event) (oracle.Event, error)
	ListEvents(ctx context.Context, instance market.Address) ([]oracle.Event, error)
}

// SnapshotStore persists observed LP prices.
type SnapshotStore interface {
	CreateSnapshot(ctx context.Context, snap oracle.Snapshot) (oracle.Snapshot, error)
	ListSnapshots(ctx context.Context, token market.Address) ([]oracle.Snapshot, error)
}

// OracleStore bundles every persistence concern of the registry.
type OracleStore interface {
	NebulaStore
	EventStore
	SnapshotStore
}
