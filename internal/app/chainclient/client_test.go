package chainclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nebula-network/oracle_layer/internal/app/domain/market"
)

func newGateway(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/pools/0xpool", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"token0":"0xWETH","token1":"0xdai"}`))
	})
	mux.HandleFunc("GET /v1/pools/0xpool/state", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"reserve0": "1000000000000000000000",
			"reserve1": "4000000000000000000000",
			"total_supply": "100000000000000000000",
			"updated_at": "2026-01-02T15:04:05Z",
			"mid_operation": false
		}`))
	})
	mux.HandleFunc("GET /v1/pools/0xbusy", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"token0":"0xa","token1":"0xb"}`))
	})
	mux.HandleFunc("GET /v1/pools/0xbusy/state", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"reserve0":"1","reserve1":"1","total_supply":"1","mid_operation":true}`))
	})
	mux.HandleFunc("GET /v1/feeds/0xfeed", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"decimals":8}`))
	})
	mux.HandleFunc("GET /v1/feeds/0xfeed/latest", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer sekret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"price":"200000000","updated_at":"2026-01-02T15:04:05Z"}`))
	})
	mux.HandleFunc("GET /v1/assets/0xweth", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"name":"Wrapped Ether","decimals":18}`))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestPoolResolution(t *testing.T) {
	server := newGateway(t)
	client, err := New(server.Client(), server.URL, "sekret", nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	ctx := context.Background()
	pool, err := client.Pool(ctx, market.NewAddress("0xpool"))
	if err != nil {
		t.Fatalf("resolve pool: %v", err)
	}

	t0, _ := pool.Token0(ctx)
	if t0 != market.NewAddress("0xweth") {
		t.Fatalf("token0 = %q", t0)
	}

	r0, r1, updated, err := pool.Reserves(ctx)
	if err != nil {
		t.Fatalf("reserves: %v", err)
	}
	if r0.Dec() != "1000000000000000000000" || r1.Dec() != "4000000000000000000000" {
		t.Fatalf("reserves = %s / %s", r0.Dec(), r1.Dec())
	}
	if updated != time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC) {
		t.Fatalf("updated_at = %v", updated)
	}

	supply, err := pool.TotalSupply(ctx)
	if err != nil {
		t.Fatalf("supply: %v", err)
	}
	if supply.Dec() != "100000000000000000000" {
		t.Fatalf("supply = %s", supply.Dec())
	}
	if err := pool.AssertIdle(ctx); err != nil {
		t.Fatalf("assert idle: %v", err)
	}
}

func TestBusyPool(t *testing.T) {
	server := newGateway(t)
	client, err := New(server.Client(), server.URL, "", nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	pool, err := client.Pool(context.Background(), market.NewAddress("0xbusy"))
	if err != nil {
		t.Fatalf("resolve pool: %v", err)
	}
	if err := pool.AssertIdle(context.Background()); !errors.Is(err, market.ErrPoolBusy) {
		t.Fatalf("expected ErrPoolBusy, got %v", err)
	}
}

func TestFeedLatestPrice(t *testing.T) {
	server := newGateway(t)
	client, err := New(server.Client(), server.URL, "sekret", nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	ctx := context.Background()
	feed, err := client.Feed(ctx, market.NewAddress("0xfeed"))
	if err != nil {
		t.Fatalf("resolve feed: %v", err)
	}
	dec, _ := feed.Decimals(ctx)
	if dec != 8 {
		t.Fatalf("decimals = %d", dec)
	}

	price, _, err := feed.LatestPrice(ctx)
	if err != nil {
		t.Fatalf("latest price: %v", err)
	}
	if price.String() != "200000000" {
		t.Fatalf("price = %s", price)
	}
}

func TestAssetMetadata(t *testing.T) {
	server := newGateway(t)
	client, err := New(server.Client(), server.URL, "", nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	asset, err := client.Asset(context.Background(), market.NewAddress("0xweth"))
	if err != nil {
		t.Fatalf("resolve asset: %v", err)
	}
	name, _ := asset.Name(context.Background())
	if name != "Wrapped Ether" {
		t.Fatalf("name = %q", name)
	}
}

func TestUnknownAddressIsNotFound(t *testing.T) {
	server := newGateway(t)
	client, err := New(server.Client(), server.URL, "", nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	if _, err := client.Pool(context.Background(), market.NewAddress("0xmissing")); !errors.Is(err, market.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
