// Package feeds reads external price feeds and lifts their values to the
// canonical 18-decimal representation.
package feeds

import (
	"context"
	"math/big"

	"github.com/nebula-network/oracle_layer/internal/app/domain/market"
	"github.com/nebula-network/oracle_layer/internal/app/domain/oracle"
	"github.com/nebula-network/oracle_layer/internal/app/normalizer"
)

// Reader normalizes feed prices using scalars cached at registration time.
// Feed decimals are assumed stable for a feed's lifetime, so they are never
// re-queried on the read path.
type Reader struct {
	norm *normalizer.Normalizer
}

// NewReader builds a reader over the given scalar cache.
func NewReader(norm *normalizer.Normalizer) *Reader {
	return &Reader{norm: norm}
}

// Latest returns the feed's current price at 18 decimals. The feed's own
// timestamp is not checked for staleness; recency is the feed's contract.
// A negative raw value is rejected rather than wrapped into the unsigned
// domain.
func (r *Reader) Latest(ctx context.Context, feed market.PriceFeed) (*big.Int, error) {
	raw, _, err := feed.LatestPrice(ctx)
	if err != nil {
		return nil, err
	}
	if raw.Sign() < 0 {
		return nil, oracle.ErrInvalidFeedValue
	}
	return r.norm.Normalize(feed.Address(), raw), nil
}
