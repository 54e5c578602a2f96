package postgres

import (
	"context"
	"database/sql"
	"os"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	_ "github.com/lib/pq"

	"github.com/nebula-network/oracle_layer/internal/app/domain/market"
	"github.com/nebula-network/oracle_layer/internal/app/domain/oracle"
)

func TestStoreIntegration(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping postgres integration test")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	store := New(db)
	ctx := context.Background()

	desc := oracle.NebulaDescriptor{Name: "constant-product-v1", Instance: market.NewAddress("0xnebula1"), NebulaID: 0}
	if err := store.SaveDescriptor(ctx, desc); err != nil {
		t.Fatalf("save descriptor: %v", err)
	}

	rec := oracle.Record{
		Initialized:       true,
		OracleID:          0,
		DisplayName:       "WETH-DAI LP",
		Underlying:        market.NewAddress("0xlp"),
		PoolTokens:        []market.Address{"0xweth", "0xdai"},
		PoolTokenDecimals: []uint8{18, 18},
		PriceFeeds:        []market.Address{"0xfeed-weth", "0xfeed-dai"},
		PriceFeedDecimals: []uint8{8, 8},
		RegisteredAt:      time.Now().UTC(),
	}
	if err := store.SaveRecord(ctx, desc.Instance, rec); err != nil {
		t.Fatalf("save record: %v", err)
	}

	got, err := store.ListRecords(ctx, desc.Instance)
	if err != nil {
		t.Fatalf("list records: %v", err)
	}
	if len(got) != 1 || got[0].Underlying != rec.Underlying {
		t.Fatalf("unexpected records: %+v", got)
	}
}

func TestSaveRecordUpserts(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO oracle_records")).
		WithArgs("0xnebula1", uint64(0), true, false, "WETH-DAI LP", "0xlp",
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	store := New(db)
	rec := oracle.Record{
		Initialized:       true,
		DisplayName:       "WETH-DAI LP",
		Underlying:        market.NewAddress("0xlp"),
		PoolTokens:        []market.Address{"0xweth", "0xdai"},
		PoolTokenDecimals: []uint8{18, 18},
		PriceFeeds:        []market.Address{"0xfeed-weth", "0xfeed-dai"},
		PriceFeedDecimals: []uint8{8, 8},
		RegisteredAt:      time.Now().UTC(),
	}
	if err := store.SaveRecord(context.Background(), market.NewAddress("0xnebula1"), rec); err != nil {
		t.Fatalf("save record: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListDescriptorsScans(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"nebula_id", "name", "instance", "total_oracles", "created_at"}).
		AddRow(uint64(0), "constant-product-v1", "0xnebula1", uint64(3), created)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT nebula_id, name, instance, total_oracles, created_at")).
		WillReturnRows(rows)

	store := New(db)
	descs, err := store.ListDescriptors(context.Background())
	if err != nil {
		t.Fatalf("list descriptors: %v", err)
	}
	if len(descs) != 1 {
		t.Fatalf("got %d descriptors", len(descs))
	}
	if descs[0].Instance != market.NewAddress("0xnebula1") || descs[0].TotalOraclesRegistered != 3 {
		t.Fatalf("unexpected descriptor: %+v", descs[0])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
