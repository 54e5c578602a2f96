// Package memory is the in-memory implementation of the storage interfaces.
// It is safe for concurrent use and primarily intended for tests and local
// development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nebula-network/oracle_layer/internal/app/domain/market"
	"github.com/nebula-network/oracle_layer/internal/app/domain/oracle"
	"github.com/nebula-network/oracle_layer/internal/app/storage"
)

// Store keeps everything in maps keyed the way the registry queries.
type Store struct {
	mu          sync.RWMutex
	nextID      int64
	descriptors map[market.Address]oracle.NebulaDescriptor
	descOrder   []market.Address
	records     map[market.Address]map[uint64]oracle.Record
	events      map[market.Address][]oracle.Event
	snapshots   map[market.Address][]oracle.Snapshot
}

var _ storage.OracleStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextID:      1,
		descriptors: make(map[market.Address]oracle.NebulaDescriptor),
		records:     make(map[market.Address]map[uint64]oracle.Record),
		events:      make(map[market.Address][]oracle.Event),
		snapshots:   make(map[market.Address][]oracle.Snapshot),
	}
}

func (s *Store) nextIDLocked() string {
	id := s.nextID
	s.nextID++
	return fmt.Sprintf("%d", id)
}

// --- NebulaStore ------------------------------------------------------------

func (s *Store) SaveDescriptor(_ context.Context, desc oracle.NebulaDescriptor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.descriptors[desc.Instance]; !exists {
		s.descOrder = append(s.descOrder, desc.Instance)
	}
	s.descriptors[desc.Instance] = desc
	return nil
}

func (s *Store) ListDescriptors(_ context.Context) ([]oracle.NebulaDescriptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]oracle.NebulaDescriptor, 0, len(s.descOrder))
	for _, addr := range s.descOrder {
		out = append(out, s.descriptors[addr])
	}
	return out, nil
}

func (s *Store) SaveRecord(_ context.Context, instance market.Address, rec oracle.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byID, ok := s.records[instance]
	if !ok {
		byID = make(map[uint64]oracle.Record)
		s.records[instance] = byID
	}
	byID[rec.OracleID] = rec.Clone()
	return nil
}

func (s *Store) ListRecords(_ context.Context, instance market.Address) ([]oracle.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byID := s.records[instance]
	out := make([]oracle.Record, 0, len(byID))
	for _, rec := range byID {
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(a, b int) bool { return out[a].OracleID < out[b].OracleID })
	return out, nil
}

// --- EventStore -------------------------------------------------------------

func (s *Store) AppendEvent(_ context.Context, ev oracle.Event) (oracle.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ev.ID == "" {
		ev.ID = s.nextIDLocked()
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	s.events[ev.Instance] = append(s.events[ev.Instance], ev)
	return ev, nil
}

func (s *Store) ListEvents(_ context.Context, instance market.Address) ([]oracle.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]oracle.Event(nil), s.events[instance]...), nil
}

// --- SnapshotStore ----------------------------------------------------------

func (s *Store) CreateSnapshot(_ context.Context, snap oracle.Snapshot) (oracle.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if snap.ID == "" {
		snap.ID = s.nextIDLocked()
	}
	if snap.ObservedAt.IsZero() {
		snap.ObservedAt = time.Now().UTC()
	}
	s.snapshots[snap.Token] = append(s.snapshots[snap.Token], snap)
	return snap, nil
}

func (s *Store) ListSnapshots(_ context.Context, token market.Address) ([]oracle.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]oracle.Snapshot(nil), s.snapshots[token]...), nil
}
