// Package postgres implements the storage interfaces backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/nebula-network/oracle_layer/internal/app/domain/market"
	"github.com/nebula-network/oracle_layer/internal/app/domain/oracle"
	"github.com/nebula-network/oracle_layer/internal/app/storage"
)

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ storage.OracleStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// --- NebulaStore ------------------------------------------------------------

func (s *Store) SaveDescriptor(ctx context.Context, desc oracle.NebulaDescriptor) error {
	if desc.CreatedAt.IsZero() {
		desc.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO oracle_nebulas (nebula_id, name, instance, total_oracles, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (nebula_id) DO UPDATE
		SET name = EXCLUDED.name, total_oracles = EXCLUDED.total_oracles
	`, desc.NebulaID, desc.Name, string(desc.Instance), desc.TotalOraclesRegistered, desc.CreatedAt)
	return err
}

func (s *Store) ListDescriptors(ctx context.Context) ([]oracle.NebulaDescriptor, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT nebula_id, name, instance, total_oracles, created_at
		FROM oracle_nebulas
		ORDER BY nebula_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []oracle.NebulaDescriptor
	for rows.Next() {
		var (
			desc     oracle.NebulaDescriptor
			instance string
		)
		if err := rows.Scan(&desc.NebulaID, &desc.Name, &instance, &desc.TotalOraclesRegistered, &desc.CreatedAt); err != nil {
			return nil, err
		}
		desc.Instance = market.Address(instance)
		result = append(result, desc)
	}
	return result, rows.Err()
}

func (s *Store) SaveRecord(ctx context.Context, instance market.Address, rec oracle.Record) error {
	tokensJSON, err := json.Marshal(rec.PoolTokens)
	if err != nil {
		return err
	}
	tokenDecJSON, err := json.Marshal(rec.PoolTokenDecimals)
	if err != nil {
		return err
	}
	feedsJSON, err := json.Marshal(rec.PriceFeeds)
	if err != nil {
		return err
	}
	feedDecJSON, err := json.Marshal(rec.PriceFeedDecimals)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO oracle_records (instance, oracle_id, initialized, deleted, display_name, underlying, pool_tokens, pool_token_decimals, price_feeds, price_feed_decimals, registered_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (instance, oracle_id) DO UPDATE
		SET initialized = EXCLUDED.initialized,
		    deleted = EXCLUDED.deleted,
		    display_name = EXCLUDED.display_name,
		    underlying = EXCLUDED.underlying,
		    pool_tokens = EXCLUDED.pool_tokens,
		    pool_token_decimals = EXCLUDED.pool_token_decimals,
		    price_feeds = EXCLUDED.price_feeds,
		    price_feed_decimals = EXCLUDED.price_feed_decimals
	`, string(instance), rec.OracleID, rec.Initialized, rec.Deleted, rec.DisplayName, string(rec.Underlying), tokensJSON, tokenDecJSON, feedsJSON, feedDecJSON, toNullTime(rec.RegisteredAt))
	return err
}

func (s *Store) ListRecords(ctx context.Context, instance market.Address) ([]oracle.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT oracle_id, initialized, deleted, display_name, underlying, pool_tokens, pool_token_decimals, price_feeds, price_feed_decimals, registered_at
		FROM oracle_records
		WHERE instance = $1
		ORDER BY oracle_id
	`, string(instance))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []oracle.Record
	for rows.Next() {
		var (
			rec          oracle.Record
			underlying   string
			tokensRaw    []byte
			tokenDecRaw  []byte
			feedsRaw     []byte
			feedDecRaw   []byte
			registeredAt sql.NullTime
		)
		if err := rows.Scan(&rec.OracleID, &rec.Initialized, &rec.Deleted, &rec.DisplayName, &underlying, &tokensRaw, &tokenDecRaw, &feedsRaw, &feedDecRaw, &registeredAt); err != nil {
			return nil, err
		}
		rec.Underlying = market.Address(underlying)
		if len(tokensRaw) > 0 {
			_ = json.Unmarshal(tokensRaw, &rec.PoolTokens)
		}
		if len(tokenDecRaw) > 0 {
			_ = json.Unmarshal(tokenDecRaw, &rec.PoolTokenDecimals)
		}
		if len(feedsRaw) > 0 {
			_ = json.Unmarshal(feedsRaw, &rec.PriceFeeds)
		}
		if len(feedDecRaw) > 0 {
			_ = json.Unmarshal(feedDecRaw, &rec.PriceFeedDecimals)
		}
		if registeredAt.Valid {
			rec.RegisteredAt = registeredAt.Time.UTC()
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

// --- EventStore -------------------------------------------------------------

func (s *Store) AppendEvent(ctx context.Context, ev oracle.Event) (oracle.Event, error) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	var recordJSON []byte
	if ev.Record != nil {
		var err error
		recordJSON, err = json.Marshal(ev.Record)
		if err != nil {
			return oracle.Event{}, err
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO oracle_events (id, kind, instance, subject, caller, record, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, ev.ID, string(ev.Kind), string(ev.Instance), string(ev.Subject), string(ev.Caller), recordJSON, ev.At)
	if err != nil {
		return oracle.Event{}, err
	}
	return ev, nil
}

func (s *Store) ListEvents(ctx context.Context, instance market.Address) ([]oracle.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, instance, subject, caller, record, occurred_at
		FROM oracle_events
		WHERE $1 = '' OR instance = $1
		ORDER BY occurred_at
	`, string(instance))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []oracle.Event
	for rows.Next() {
		var (
			ev        oracle.Event
			kind      string
			inst      string
			subject   string
			caller    string
			recordRaw []byte
		)
		if err := rows.Scan(&ev.ID, &kind, &inst, &subject, &caller, &recordRaw, &ev.At); err != nil {
			return nil, err
		}
		ev.Kind = oracle.EventKind(kind)
		ev.Instance = market.Address(inst)
		ev.Subject = market.Address(subject)
		ev.Caller = market.Address(caller)
		if len(recordRaw) > 0 {
			rec := &oracle.Record{}
			if err := json.Unmarshal(recordRaw, rec); err == nil {
				ev.Record = rec
			}
		}
		result = append(result, ev)
	}
	return result, rows.Err()
}

// --- SnapshotStore ----------------------------------------------------------

func (s *Store) CreateSnapshot(ctx context.Context, snap oracle.Snapshot) (oracle.Snapshot, error) {
	if snap.ID == "" {
		snap.ID = uuid.NewString()
	}
	if snap.ObservedAt.IsZero() {
		snap.ObservedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO oracle_price_snapshots (id, token, instance, price, observed_at)
		VALUES ($1, $2, $3, $4, $5)
	`, snap.ID, string(snap.Token), string(snap.Instance), snap.Price, snap.ObservedAt)
	if err != nil {
		return oracle.Snapshot{}, err
	}
	return snap, nil
}

func (s *Store) ListSnapshots(ctx context.Context, token market.Address) ([]oracle.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, token, instance, price, observed_at
		FROM oracle_price_snapshots
		WHERE token = $1
		ORDER BY observed_at DESC
	`, string(token))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []oracle.Snapshot
	for rows.Next() {
		var (
			snap oracle.Snapshot
			tok  string
			inst string
		)
		if err := rows.Scan(&snap.ID, &tok, &inst, &snap.Price, &snap.ObservedAt); err != nil {
			return nil, err
		}
		snap.Token = market.Address(tok)
		snap.Instance = market.Address(inst)
		result = append(result, snap)
	}
	return result, rows.Err()
}

func toNullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
