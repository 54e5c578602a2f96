// Package httpapi exposes the oracle layer over REST: nebula directory,
// token registration, price reads and admin lifecycle.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	app "github.com/nebula-network/oracle_layer/internal/app"
	"github.com/nebula-network/oracle_layer/internal/app/domain/market"
	"github.com/nebula-network/oracle_layer/internal/app/domain/oracle"
	"github.com/nebula-network/oracle_layer/internal/app/nebula"
)

// Config wires the handler's collaborators. Tokens maps bearer tokens to the
// caller identity they authenticate; mutating endpoints require one.
type Config struct {
	App    *app.Application
	Tokens map[string]market.Address
}

// handler bundles HTTP endpoints for the oracle application.
type handler struct {
	app    *app.Application
	tokens map[string]market.Address
}

// NewHandler returns a mux exposing the oracle REST API.
func NewHandler(cfg Config) http.Handler {
	h := &handler{app: cfg.App, tokens: cfg.Tokens}
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.health)
	mux.HandleFunc("/nebulas", h.nebulas)
	mux.HandleFunc("/nebulas/", h.nebulaResources)
	mux.HandleFunc("/prices/", h.priceResources)
	mux.HandleFunc("/admin/propose", h.adminPropose)
	mux.HandleFunc("/admin/accept", h.adminAccept)
	return mux
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type nebulaView struct {
	NebulaID               uint64    `json:"nebula_id"`
	Name                   string    `json:"name"`
	Instance               string    `json:"instance"`
	TotalOraclesRegistered uint64    `json:"total_oracles_registered"`
	CreatedAt              time.Time `json:"created_at"`
}

func toNebulaView(desc oracle.NebulaDescriptor) nebulaView {
	return nebulaView{
		NebulaID:               desc.NebulaID,
		Name:                   desc.Name,
		Instance:               string(desc.Instance),
		TotalOraclesRegistered: desc.TotalOraclesRegistered,
		CreatedAt:              desc.CreatedAt,
	}
}

func (h *handler) nebulas(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		descs := h.app.Registry.Nebulas()
		out := make([]nebulaView, 0, len(descs))
		for _, desc := range descs {
			out = append(out, toNebulaView(desc))
		}
		writeJSON(w, http.StatusOK, out)
	case http.MethodPost:
		h.createNebula(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) createNebula(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, fmt.Errorf("missing or unknown bearer token"))
		return
	}

	var payload struct {
		Name                 string `json:"name"`
		Address              string `json:"address"`
		Admin                string `json:"admin"`
		DenominationFeed     string `json:"denomination_feed"`
		DenominationDecimals uint8  `json:"denomination_decimals"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	admin := market.NewAddress(payload.Admin)
	if admin.IsZero() {
		admin = caller
	}
	inst, err := nebula.New(nebula.Config{
		Name:                 payload.Name,
		Address:              market.NewAddress(payload.Address),
		Admin:                admin,
		Registrar:            h.app.Registry.Address(),
		DenominationFeed:     market.NewAddress(payload.DenominationFeed),
		DenominationDecimals: payload.DenominationDecimals,
		Source:               h.app.Source,
	})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	desc, err := h.app.Registry.CreateOracleInstance(r.Context(), caller, inst)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, toNebulaView(desc))
}

func (h *handler) nebulaResources(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, "/nebulas"), "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) == 0 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	nebulaID, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid nebula id %q", parts[0]))
		return
	}

	desc, inst, err := h.app.Registry.Nebula(nebulaID)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, struct {
			nebulaView
			Admin        string `json:"admin"`
			PendingAdmin string `json:"pending_admin,omitempty"`
		}{
			nebulaView:   toNebulaView(desc),
			Admin:        string(inst.Admin()),
			PendingAdmin: string(inst.PendingAdmin()),
		})
		return
	}

	switch parts[1] {
	case "records":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, toRecordViews(inst.Records()))
	case "events":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		events, err := h.app.Store.ListEvents(r.Context(), desc.Instance)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, events)
	case "tokens":
		h.nebulaTokens(w, r, nebulaID)
	case "admin":
		h.nebulaAdmin(w, r, inst, parts[2:])
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// nebulaAdmin exposes the instance-level two-step admin transfer.
func (h *handler) nebulaAdmin(w http.ResponseWriter, r *http.Request, inst *nebula.Instance, rest []string) {
	if r.Method != http.MethodPost || len(rest) != 1 {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	caller, ok := h.caller(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, fmt.Errorf("missing or unknown bearer token"))
		return
	}

	switch rest[0] {
	case "propose":
		var payload struct {
			Candidate string `json:"candidate"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if payload.Candidate == "" {
			writeError(w, http.StatusBadRequest, fmt.Errorf("candidate is required"))
			return
		}
		if err := inst.ProposeAdmin(caller, market.NewAddress(payload.Candidate)); err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case "accept":
		if err := inst.AcceptAdmin(caller); err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

type recordView struct {
	OracleID          uint64    `json:"oracle_id"`
	Deleted           bool      `json:"deleted,omitempty"`
	DisplayName       string    `json:"display_name,omitempty"`
	Underlying        string    `json:"underlying,omitempty"`
	PoolTokens        []string  `json:"pool_tokens,omitempty"`
	PoolTokenDecimals []uint8   `json:"pool_token_decimals,omitempty"`
	PriceFeeds        []string  `json:"price_feeds,omitempty"`
	PriceFeedDecimals []uint8   `json:"price_feed_decimals,omitempty"`
	RegisteredAt      time.Time `json:"registered_at"`
}

func toRecordView(rec oracle.Record) recordView {
	out := recordView{
		OracleID:          rec.OracleID,
		Deleted:           rec.Deleted,
		DisplayName:       rec.DisplayName,
		Underlying:        string(rec.Underlying),
		PoolTokenDecimals: rec.PoolTokenDecimals,
		PriceFeedDecimals: rec.PriceFeedDecimals,
		RegisteredAt:      rec.RegisteredAt,
	}
	for _, tok := range rec.PoolTokens {
		out.PoolTokens = append(out.PoolTokens, string(tok))
	}
	for _, feed := range rec.PriceFeeds {
		out.PriceFeeds = append(out.PriceFeeds, string(feed))
	}
	return out
}

func toRecordViews(recs []oracle.Record) []recordView {
	out := make([]recordView, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toRecordView(rec))
	}
	return out
}

func (h *handler) nebulaTokens(w http.ResponseWriter, r *http.Request, nebulaID uint64) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	caller, ok := h.caller(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, fmt.Errorf("missing or unknown bearer token"))
		return
	}

	var payload struct {
		LPToken    string   `json:"lp_token"`
		PriceFeeds []string `json:"price_feeds"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if payload.LPToken == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("lp_token is required"))
		return
	}

	feeds := make([]market.Address, 0, len(payload.PriceFeeds))
	for _, feed := range payload.PriceFeeds {
		feeds = append(feeds, market.NewAddress(feed))
	}

	rec, err := h.app.Registry.RegisterLiquidityToken(r.Context(), caller, nebulaID, market.NewAddress(payload.LPToken), feeds)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, toRecordView(rec))
}

func (h *handler) priceResources(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, "/prices"), "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) == 0 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	token := market.NewAddress(parts[0])

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			price, err := h.app.Registry.PriceOf(r.Context(), token)
			if err != nil {
				writeError(w, statusFor(err), err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"token":       string(token),
				"price":       price.String(),
				"observed_at": time.Now().UTC(),
			})
		case http.MethodDelete:
			caller, ok := h.caller(r)
			if !ok {
				writeError(w, http.StatusUnauthorized, fmt.Errorf("missing or unknown bearer token"))
				return
			}
			removed, err := h.app.Registry.UnregisterLiquidityToken(r.Context(), caller, token)
			if err != nil {
				writeError(w, statusFor(err), err)
				return
			}
			writeJSON(w, http.StatusOK, toRecordView(removed))
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	switch parts[1] {
	case "assets":
		prices, err := h.app.Registry.AssetPrices(r.Context(), token)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		rec, err := h.app.Registry.RecordOf(token)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		out := make([]map[string]string, 0, len(prices))
		for i, price := range prices {
			out = append(out, map[string]string{
				"asset": string(rec.PoolTokens[i]),
				"price": price.String(),
			})
		}
		writeJSON(w, http.StatusOK, out)
	case "record":
		rec, err := h.app.Registry.RecordOf(token)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, toRecordView(rec))
	case "snapshots":
		snaps, err := h.app.Store.ListSnapshots(r.Context(), token)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, snaps)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *handler) adminPropose(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	caller, ok := h.caller(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, fmt.Errorf("missing or unknown bearer token"))
		return
	}

	var payload struct {
		Candidate string `json:"candidate"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if payload.Candidate == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("candidate is required"))
		return
	}

	if err := h.app.Registry.ProposeAdmin(caller, market.NewAddress(payload.Candidate)); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) adminAccept(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	caller, ok := h.caller(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, fmt.Errorf("missing or unknown bearer token"))
		return
	}
	if err := h.app.Registry.AcceptAdmin(caller); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// caller maps the request's bearer token to an authenticated identity.
func (h *handler) caller(r *http.Request) (market.Address, bool) {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return market.ZeroAddress, false
	}
	addr, ok := h.tokens[strings.TrimSpace(strings.TrimPrefix(auth, prefix))]
	return addr, ok
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, oracle.ErrNebulaNotFound),
		errors.Is(err, oracle.ErrPairNotInitialized),
		errors.Is(err, market.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, oracle.ErrNotAdmin),
		errors.Is(err, oracle.ErrNotRegistrar):
		return http.StatusForbidden
	case errors.Is(err, oracle.ErrPairAlreadyInitialized),
		errors.Is(err, oracle.ErrOracleAlreadyAdded),
		errors.Is(err, oracle.ErrPendingAdminAlreadySet):
		return http.StatusConflict
	case errors.Is(err, oracle.ErrAlreadyInContext),
		errors.Is(err, market.ErrPoolBusy):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
