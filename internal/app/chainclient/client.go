// Package chainclient resolves market collaborators over an HTTP chain
// gateway. Each handle is a thin view over the gateway's JSON API; the
// pricing engine stays unaware of the transport.
package chainclient

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/holiman/uint256"

	"github.com/nebula-network/oracle_layer/internal/app/domain/market"
	"github.com/nebula-network/oracle_layer/pkg/logger"
)

var _ market.Source = (*Client)(nil)

// Client talks to a chain gateway exposing pools, feeds and assets as JSON
// resources.
type Client struct {
	client *http.Client
	base   *url.URL
	apiKey string
	log    *logger.Logger
}

// New constructs a client for the given gateway endpoint.
func New(client *http.Client, endpoint, apiKey string, log *logger.Logger) (*Client, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("gateway endpoint required")
	}
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse gateway endpoint: %w", err)
	}
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	if log == nil {
		log = logger.NewDefault("chainclient")
	}
	return &Client{
		client: client,
		base:   parsed,
		apiKey: strings.TrimSpace(apiKey),
		log:    log,
	}, nil
}

// Pool resolves a constant-product pool handle. Static pool metadata is
// fetched once at resolution; reserves and supply are read per call.
func (c *Client) Pool(ctx context.Context, addr market.Address) (market.Pool, error) {
	var meta struct {
		Token0 string `json:"token0"`
		Token1 string `json:"token1"`
	}
	if err := c.getJSON(ctx, "/v1/pools/"+url.PathEscape(string(addr)), &meta); err != nil {
		return nil, err
	}
	return &httpPool{
		client: c,
		addr:   addr,
		token0: market.NewAddress(meta.Token0),
		token1: market.NewAddress(meta.Token1),
	}, nil
}

// Feed resolves a price feed handle.
func (c *Client) Feed(ctx context.Context, addr market.Address) (market.PriceFeed, error) {
	var meta struct {
		Decimals uint8 `json:"decimals"`
	}
	if err := c.getJSON(ctx, "/v1/feeds/"+url.PathEscape(string(addr)), &meta); err != nil {
		return nil, err
	}
	return &httpFeed{client: c, addr: addr, decimals: meta.Decimals}, nil
}

// Asset resolves an asset handle.
func (c *Client) Asset(ctx context.Context, addr market.Address) (market.Asset, error) {
	var meta struct {
		Name     string `json:"name"`
		Decimals uint8  `json:"decimals"`
	}
	if err := c.getJSON(ctx, "/v1/assets/"+url.PathEscape(string(addr)), &meta); err != nil {
		return nil, err
	}
	return &httpAsset{addr: addr, name: meta.Name, decimals: meta.Decimals}, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	requestURL := *c.base
	requestURL.Path = strings.TrimRight(requestURL.Path, "/") + path

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL.String(), nil)
	if err != nil {
		return fmt.Errorf("build gateway request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return market.ErrNotFound
	default:
		return fmt.Errorf("gateway status %d for %s", resp.StatusCode, path)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode gateway response: %w", err)
	}
	return nil
}

// --- pool -------------------------------------------------------------------

type httpPool struct {
	client *Client
	addr   market.Address
	token0 market.Address
	token1 market.Address
}

type poolState struct {
	Reserve0     string    `json:"reserve0"`
	Reserve1     string    `json:"reserve1"`
	TotalSupply  string    `json:"total_supply"`
	UpdatedAt    time.Time `json:"updated_at"`
	MidOperation bool      `json:"mid_operation"`
}

func (p *httpPool) Address() market.Address { return p.addr }

func (p *httpPool) Token0(_ context.Context) (market.Address, error) { return p.token0, nil }

func (p *httpPool) Token1(_ context.Context) (market.Address, error) { return p.token1, nil }

func (p *httpPool) Reserves(ctx context.Context) (*uint256.Int, *uint256.Int, time.Time, error) {
	state, err := p.state(ctx)
	if err != nil {
		return nil, nil, time.Time{}, err
	}
	r0, err := parseUint256(state.Reserve0)
	if err != nil {
		return nil, nil, time.Time{}, fmt.Errorf("reserve0: %w", err)
	}
	r1, err := parseUint256(state.Reserve1)
	if err != nil {
		return nil, nil, time.Time{}, fmt.Errorf("reserve1: %w", err)
	}
	return r0, r1, state.UpdatedAt, nil
}

func (p *httpPool) TotalSupply(ctx context.Context) (*uint256.Int, error) {
	state, err := p.state(ctx)
	if err != nil {
		return nil, err
	}
	supply, err := parseUint256(state.TotalSupply)
	if err != nil {
		return nil, fmt.Errorf("total_supply: %w", err)
	}
	return supply, nil
}

func (p *httpPool) AssertIdle(ctx context.Context) error {
	state, err := p.state(ctx)
	if err != nil {
		return err
	}
	if state.MidOperation {
		return market.ErrPoolBusy
	}
	return nil
}

func (p *httpPool) state(ctx context.Context) (poolState, error) {
	var state poolState
	err := p.client.getJSON(ctx, "/v1/pools/"+url.PathEscape(string(p.addr))+"/state", &state)
	return state, err
}

func parseUint256(raw string) (*uint256.Int, error) {
	out, err := uint256.FromDecimal(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", raw, err)
	}
	return out, nil
}

// --- feed -------------------------------------------------------------------

type httpFeed struct {
	client   *Client
	addr     market.Address
	decimals uint8
}

func (f *httpFeed) Address() market.Address { return f.addr }

func (f *httpFeed) Decimals(_ context.Context) (uint8, error) { return f.decimals, nil }

func (f *httpFeed) LatestPrice(ctx context.Context) (*big.Int, time.Time, error) {
	var payload struct {
		Price     string    `json:"price"`
		UpdatedAt time.Time `json:"updated_at"`
	}
	if err := f.client.getJSON(ctx, "/v1/feeds/"+url.PathEscape(string(f.addr))+"/latest", &payload); err != nil {
		return nil, time.Time{}, err
	}
	price, ok := new(big.Int).SetString(strings.TrimSpace(payload.Price), 10)
	if !ok {
		return nil, time.Time{}, fmt.Errorf("parse feed price %q", payload.Price)
	}
	return price, payload.UpdatedAt, nil
}

// --- asset ------------------------------------------------------------------

type httpAsset struct {
	addr     market.Address
	name     string
	decimals uint8
}

func (a *httpAsset) Address() market.Address { return a.addr }

func (a *httpAsset) Decimals(_ context.Context) (uint8, error) { return a.decimals, nil }

func (a *httpAsset) Name(_ context.Context) (string, error) { return a.name, nil }
