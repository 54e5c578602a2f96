package feeds

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/nebula-network/oracle_layer/internal/app/domain/market"
	"github.com/nebula-network/oracle_layer/internal/app/domain/oracle"
	"github.com/nebula-network/oracle_layer/internal/app/normalizer"
	"github.com/nebula-network/oracle_layer/pkg/testutil"
)

func TestLatestNormalizes(t *testing.T) {
	norm := normalizer.New()
	feed := &testutil.FakeFeed{
		Addr:         market.NewAddress("0xfeed"),
		DecimalCount: 8,
		Price:        big.NewInt(250_000_000_000), // 2500 at 8 decimals
	}
	if _, _, err := norm.ComputeScalar(context.Background(), feed); err != nil {
		t.Fatalf("compute scalar: %v", err)
	}

	reader := NewReader(norm)
	got, err := reader.Latest(context.Background(), feed)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if got.String() != "2500000000000000000000" {
		t.Fatalf("normalized price mismatch: %s", got)
	}
}

func TestLatestRejectsNegative(t *testing.T) {
	norm := normalizer.New()
	feed := &testutil.FakeFeed{
		Addr:         market.NewAddress("0xfeed"),
		DecimalCount: 8,
		Price:        big.NewInt(-1),
	}
	if _, _, err := norm.ComputeScalar(context.Background(), feed); err != nil {
		t.Fatalf("compute scalar: %v", err)
	}

	reader := NewReader(norm)
	if _, err := reader.Latest(context.Background(), feed); !errors.Is(err, oracle.ErrInvalidFeedValue) {
		t.Fatalf("expected ErrInvalidFeedValue, got %v", err)
	}
}

func TestLatestPropagatesFeedError(t *testing.T) {
	norm := normalizer.New()
	feedErr := errors.New("feed offline")
	feed := &testutil.FakeFeed{
		Addr:         market.NewAddress("0xfeed"),
		DecimalCount: 8,
		PriceErr:     feedErr,
	}
	reader := NewReader(norm)
	if _, err := reader.Latest(context.Background(), feed); !errors.Is(err, feedErr) {
		t.Fatalf("expected feed error to propagate, got %v", err)
	}
}
