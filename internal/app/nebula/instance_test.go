package nebula

import (
	"context"
	"errors"
	"math/big"
	"reflect"
	"testing"

	"github.com/holiman/uint256"

	"github.com/nebula-network/oracle_layer/internal/app/domain/market"
	"github.com/nebula-network/oracle_layer/internal/app/domain/oracle"
	"github.com/nebula-network/oracle_layer/pkg/testutil"
)

var (
	adminAddr     = market.NewAddress("0xadmin")
	registryAddr  = market.NewAddress("0xregistry")
	instanceAddr  = market.NewAddress("0xnebula1")
	lpAddr        = market.NewAddress("0xlp-weth-dai")
	wethAddr      = market.NewAddress("0xweth")
	daiAddr       = market.NewAddress("0xdai")
	wethFeedAddr  = market.NewAddress("0xfeed-weth")
	daiFeedAddr   = market.NewAddress("0xfeed-dai")
	denomFeedAddr = market.NewAddress("0xfeed-usd")
)

func wad(n int64) *big.Int {
	out := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	return out.Mul(out, big.NewInt(n))
}

func u256(x *big.Int) *uint256.Int {
	out, overflow := uint256.FromBig(x)
	if overflow {
		panic("test value exceeds 256 bits")
	}
	return out
}

// newFixture wires the worked reference scenario: an 18/18-decimal pool with
// reserves 1000/4000, feed prices 2 and 0.5 at 8 decimals, supply 100 and a
// USD-pegged denomination feed reporting exactly 1.
func newFixture(t *testing.T) (*Instance, *testutil.FakeSource, *testutil.FakePool) {
	t.Helper()
	source := testutil.NewFakeSource()

	source.AddAsset(&testutil.FakeAsset{Addr: lpAddr, AssetName: "WETH-DAI LP", DecimalCount: 18})
	source.AddAsset(&testutil.FakeAsset{Addr: wethAddr, AssetName: "Wrapped Ether", DecimalCount: 18})
	source.AddAsset(&testutil.FakeAsset{Addr: daiAddr, AssetName: "Dai", DecimalCount: 18})

	source.AddFeed(&testutil.FakeFeed{Addr: wethFeedAddr, DecimalCount: 8, Price: big.NewInt(200_000_000)})
	source.AddFeed(&testutil.FakeFeed{Addr: daiFeedAddr, DecimalCount: 8, Price: big.NewInt(50_000_000)})
	source.AddFeed(&testutil.FakeFeed{Addr: denomFeedAddr, DecimalCount: 8, Price: big.NewInt(100_000_000)})

	pool := &testutil.FakePool{
		Addr: lpAddr,
		T0:   wethAddr, T1: daiAddr,
		R0:     u256(wad(1000)),
		R1:     u256(wad(4000)),
		Supply: u256(wad(100)),
	}
	source.AddPool(pool)

	inst, err := New(Config{
		Name:                 "constant-product-v1",
		Address:              instanceAddr,
		Admin:                adminAddr,
		Registrar:            registryAddr,
		DenominationFeed:     denomFeedAddr,
		DenominationDecimals: 18,
		Source:               source,
	})
	if err != nil {
		t.Fatalf("new instance: %v", err)
	}
	return inst, source, pool
}

func register(t *testing.T, inst *Instance) oracle.Record {
	t.Helper()
	rec, err := inst.RegisterLiquidityToken(context.Background(), registryAddr, lpAddr, []market.Address{wethFeedAddr, daiFeedAddr})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return rec
}

func TestRegisterSnapshotsRecord(t *testing.T) {
	inst, _, _ := newFixture(t)
	rec := register(t, inst)

	if rec.OracleID != 0 {
		t.Fatalf("first oracle id should be 0, got %d", rec.OracleID)
	}
	if rec.DisplayName != "WETH-DAI LP" {
		t.Fatalf("display name not snapshotted: %q", rec.DisplayName)
	}
	if !reflect.DeepEqual(rec.PoolTokens, []market.Address{wethAddr, daiAddr}) {
		t.Fatalf("pool tokens mismatch: %v", rec.PoolTokens)
	}
	if !reflect.DeepEqual(rec.PoolTokenDecimals, []uint8{18, 18}) {
		t.Fatalf("token decimals mismatch: %v", rec.PoolTokenDecimals)
	}
	if !reflect.DeepEqual(rec.PriceFeeds, []market.Address{wethFeedAddr, daiFeedAddr}) {
		t.Fatalf("feeds mismatch: %v", rec.PriceFeeds)
	}
	if !reflect.DeepEqual(rec.PriceFeedDecimals, []uint8{8, 8}) {
		t.Fatalf("feed decimals mismatch: %v", rec.PriceFeedDecimals)
	}
	if inst.Count() != 1 {
		t.Fatalf("count mismatch: %d", inst.Count())
	}
}

func TestRegisterTwiceFails(t *testing.T) {
	inst, _, _ := newFixture(t)
	first := register(t, inst)

	_, err := inst.RegisterLiquidityToken(context.Background(), registryAddr, lpAddr, []market.Address{wethFeedAddr, daiFeedAddr})
	if !errors.Is(err, oracle.ErrPairAlreadyInitialized) {
		t.Fatalf("expected ErrPairAlreadyInitialized, got %v", err)
	}

	// The original record must be untouched by the rejected call.
	after, err := inst.Record(lpAddr)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if !reflect.DeepEqual(first, after) {
		t.Fatalf("record mutated by failed registration:\nbefore %#v\nafter  %#v", first, after)
	}
}

func TestRegisterAuthorization(t *testing.T) {
	inst, _, _ := newFixture(t)

	_, err := inst.RegisterLiquidityToken(context.Background(), market.NewAddress("0xmallory"), lpAddr, []market.Address{wethFeedAddr, daiFeedAddr})
	if !errors.Is(err, oracle.ErrNotRegistrar) {
		t.Fatalf("expected ErrNotRegistrar, got %v", err)
	}

	// The admin may register directly as well as the registrar.
	if _, err := inst.RegisterLiquidityToken(context.Background(), adminAddr, lpAddr, []market.Address{wethFeedAddr, daiFeedAddr}); err != nil {
		t.Fatalf("admin registration: %v", err)
	}
}

func TestRegisterFeedCountMismatch(t *testing.T) {
	inst, _, _ := newFixture(t)
	_, err := inst.RegisterLiquidityToken(context.Background(), registryAddr, lpAddr, []market.Address{wethFeedAddr})
	if !errors.Is(err, oracle.ErrFeedCountMismatch) {
		t.Fatalf("expected ErrFeedCountMismatch, got %v", err)
	}
}

func TestPriceOfWorkedExample(t *testing.T) {
	inst, _, _ := newFixture(t)
	register(t, inst)

	// sqrt(1000*4000)=2000, sqrt(2*0.5)=1: (2000*1/100)*2 = 40 per LP unit.
	price, err := inst.PriceOf(context.Background(), lpAddr)
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	if price.Cmp(wad(40)) != 0 {
		t.Fatalf("worked example mismatch: want %s, got %s", wad(40), price)
	}
}

func TestPriceOfDeterministic(t *testing.T) {
	inst, _, _ := newFixture(t)
	register(t, inst)

	first, err := inst.PriceOf(context.Background(), lpAddr)
	if err != nil {
		t.Fatalf("first read: %v", err)
	}
	for n := 0; n < 5; n++ {
		again, err := inst.PriceOf(context.Background(), lpAddr)
		if err != nil {
			t.Fatalf("read %d: %v", n, err)
		}
		if first.Cmp(again) != 0 {
			t.Fatalf("non-deterministic price: %s vs %s", first, again)
		}
	}
}

func TestPriceOfHeterogeneousDecimals(t *testing.T) {
	// Same economic pool, but token1 is a 6-decimal stable: reserves arrive in
	// native units and must be lifted before the geometric mean.
	source := testutil.NewFakeSource()
	usdcAddr := market.NewAddress("0xusdc")
	source.AddAsset(&testutil.FakeAsset{Addr: lpAddr, AssetName: "WETH-USDC LP", DecimalCount: 18})
	source.AddAsset(&testutil.FakeAsset{Addr: wethAddr, AssetName: "Wrapped Ether", DecimalCount: 18})
	source.AddAsset(&testutil.FakeAsset{Addr: usdcAddr, AssetName: "USD Coin", DecimalCount: 6})
	source.AddFeed(&testutil.FakeFeed{Addr: wethFeedAddr, DecimalCount: 8, Price: big.NewInt(200_000_000)})
	source.AddFeed(&testutil.FakeFeed{Addr: daiFeedAddr, DecimalCount: 8, Price: big.NewInt(50_000_000)})
	source.AddFeed(&testutil.FakeFeed{Addr: denomFeedAddr, DecimalCount: 8, Price: big.NewInt(100_000_000)})

	reserve1 := new(big.Int).Mul(big.NewInt(4000), big.NewInt(1_000_000)) // 4000 USDC native
	pool := &testutil.FakePool{
		Addr: lpAddr,
		T0:   wethAddr, T1: usdcAddr,
		R0:     u256(wad(1000)),
		R1:     u256(reserve1),
		Supply: u256(wad(100)),
	}
	source.AddPool(pool)

	inst, err := New(Config{
		Name: "constant-product-v1", Address: instanceAddr, Admin: adminAddr,
		Registrar: registryAddr, DenominationFeed: denomFeedAddr,
		DenominationDecimals: 18, Source: source,
	})
	if err != nil {
		t.Fatalf("new instance: %v", err)
	}
	if _, err := inst.RegisterLiquidityToken(context.Background(), registryAddr, lpAddr, []market.Address{wethFeedAddr, daiFeedAddr}); err != nil {
		t.Fatalf("register: %v", err)
	}

	price, err := inst.PriceOf(context.Background(), lpAddr)
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	if price.Cmp(wad(40)) != 0 {
		t.Fatalf("decimal lifting changed the fair price: want %s, got %s", wad(40), price)
	}
}

func TestPriceOfUnregistered(t *testing.T) {
	inst, _, _ := newFixture(t)
	if _, err := inst.PriceOf(context.Background(), lpAddr); !errors.Is(err, oracle.ErrPairNotInitialized) {
		t.Fatalf("expected ErrPairNotInitialized, got %v", err)
	}
	if _, err := inst.AssetPrices(context.Background(), lpAddr); !errors.Is(err, oracle.ErrPairNotInitialized) {
		t.Fatalf("expected ErrPairNotInitialized for asset prices, got %v", err)
	}
}

func TestPriceOfContextGuard(t *testing.T) {
	inst, _, pool := newFixture(t)
	register(t, inst)

	pool.SetBusy(true)
	if _, err := inst.PriceOf(context.Background(), lpAddr); !errors.Is(err, oracle.ErrAlreadyInContext) {
		t.Fatalf("expected ErrAlreadyInContext, got %v", err)
	}

	pool.SetBusy(false)
	if _, err := inst.PriceOf(context.Background(), lpAddr); err != nil {
		t.Fatalf("idle pool should price: %v", err)
	}
}

func TestPriceOfNegativeFeed(t *testing.T) {
	inst, source, _ := newFixture(t)
	register(t, inst)

	bad := &testutil.FakeFeed{Addr: wethFeedAddr, DecimalCount: 8, Price: big.NewInt(-200_000_000)}
	source.AddFeed(bad)

	if _, err := inst.PriceOf(context.Background(), lpAddr); !errors.Is(err, oracle.ErrInvalidFeedValue) {
		t.Fatalf("expected ErrInvalidFeedValue, got %v", err)
	}
}

func TestAssetPrices(t *testing.T) {
	inst, _, _ := newFixture(t)
	register(t, inst)

	prices, err := inst.AssetPrices(context.Background(), lpAddr)
	if err != nil {
		t.Fatalf("asset prices: %v", err)
	}
	if len(prices) != 2 {
		t.Fatalf("expected 2 prices, got %d", len(prices))
	}
	if prices[0].Cmp(wad(2)) != 0 {
		t.Fatalf("weth price mismatch: %s", prices[0])
	}
	half := new(big.Int).Quo(wad(1), big.NewInt(2))
	if prices[1].Cmp(half) != 0 {
		t.Fatalf("dai price mismatch: %s", prices[1])
	}
}

func TestOutputDecimalsRescale(t *testing.T) {
	// A 6-decimal denomination asset scales the output down to 10^6 units.
	source := testutil.NewFakeSource()
	source.AddAsset(&testutil.FakeAsset{Addr: lpAddr, AssetName: "WETH-DAI LP", DecimalCount: 18})
	source.AddAsset(&testutil.FakeAsset{Addr: wethAddr, AssetName: "Wrapped Ether", DecimalCount: 18})
	source.AddAsset(&testutil.FakeAsset{Addr: daiAddr, AssetName: "Dai", DecimalCount: 18})
	source.AddFeed(&testutil.FakeFeed{Addr: wethFeedAddr, DecimalCount: 8, Price: big.NewInt(200_000_000)})
	source.AddFeed(&testutil.FakeFeed{Addr: daiFeedAddr, DecimalCount: 8, Price: big.NewInt(50_000_000)})
	source.AddFeed(&testutil.FakeFeed{Addr: denomFeedAddr, DecimalCount: 8, Price: big.NewInt(100_000_000)})
	source.AddPool(&testutil.FakePool{
		Addr: lpAddr, T0: wethAddr, T1: daiAddr,
		R0: u256(wad(1000)), R1: u256(wad(4000)), Supply: u256(wad(100)),
	})

	inst, err := New(Config{
		Name: "constant-product-v1", Address: instanceAddr, Admin: adminAddr,
		Registrar: registryAddr, DenominationFeed: denomFeedAddr,
		DenominationDecimals: 6, Source: source,
	})
	if err != nil {
		t.Fatalf("new instance: %v", err)
	}
	if _, err := inst.RegisterLiquidityToken(context.Background(), registryAddr, lpAddr, []market.Address{wethFeedAddr, daiFeedAddr}); err != nil {
		t.Fatalf("register: %v", err)
	}

	price, err := inst.PriceOf(context.Background(), lpAddr)
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	if price.Cmp(big.NewInt(40_000_000)) != 0 {
		t.Fatalf("expected 40e6, got %s", price)
	}
}

func TestUnregisterLeavesGap(t *testing.T) {
	inst, _, _ := newFixture(t)
	register(t, inst)

	if _, err := inst.Unregister(context.Background(), registryAddr, lpAddr); !errors.Is(err, oracle.ErrNotAdmin) {
		t.Fatalf("expected ErrNotAdmin for registrar deletion, got %v", err)
	}

	removed, err := inst.Unregister(context.Background(), adminAddr, lpAddr)
	if err != nil {
		t.Fatalf("unregister: %v", err)
	}
	if removed.OracleID != 0 {
		t.Fatalf("removed id mismatch: %d", removed.OracleID)
	}

	if _, err := inst.PriceOf(context.Background(), lpAddr); !errors.Is(err, oracle.ErrPairNotInitialized) {
		t.Fatalf("deleted token should not price, got %v", err)
	}

	// Re-registration receives a fresh id; the tombstone keeps its slot.
	rec, err := inst.RegisterLiquidityToken(context.Background(), registryAddr, lpAddr, []market.Address{wethFeedAddr, daiFeedAddr})
	if err != nil {
		t.Fatalf("re-register: %v", err)
	}
	if rec.OracleID != 1 {
		t.Fatalf("expected fresh id 1, got %d", rec.OracleID)
	}
	all := inst.Records()
	if len(all) != 2 || !all[0].Deleted || all[1].OracleID != 1 {
		t.Fatalf("arena shape unexpected: %#v", all)
	}
}

func TestRestore(t *testing.T) {
	inst, _, _ := newFixture(t)
	rec := register(t, inst)

	fresh, _, _ := newFixture(t)
	if err := fresh.Restore([]oracle.Record{rec}); err != nil {
		t.Fatalf("restore: %v", err)
	}

	price, err := fresh.PriceOf(context.Background(), lpAddr)
	if err != nil {
		t.Fatalf("price after restore: %v", err)
	}
	if price.Cmp(wad(40)) != 0 {
		t.Fatalf("restored instance mispriced: %s", price)
	}
}
