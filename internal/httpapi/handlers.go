package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"authright.org/internal/auth"
	"authright.org/internal/obs"
	"authright.org/internal/registry"
	"authright.org/internal/stream"
)

const (
	serviceName     = "authright-registry"
	maxRequestBytes = 1 << 20
	defaultTokenTTL = time.Hour
)

// ReadyProbe: простая проверка готовности (например, ping БД).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API: HTTP слой.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string

	registry  *registry.Registry
	stream    *stream.Stream
	tokens    *auth.Tokens
	directory *auth.Directory
	blocks    registry.BlockSource

	tokenTTL   time.Duration
	rateBurst  int
	ratePerSec float64
}

// Option configures API.
type Option func(*API)

// WithTokens enables the token endpoint and bearer authentication.
func WithTokens(tokens *auth.Tokens, dir *auth.Directory, ttl time.Duration) Option {
	return func(a *API) {
		a.tokens = tokens
		a.directory = dir
		if ttl > 0 {
			a.tokenTTL = ttl
		}
	}
}

// WithStream serves registry events on /v1/events.
func WithStream(s *stream.Stream) Option {
	return func(a *API) { a.stream = s }
}

// WithBlocks reports the current block height on /v1/info.
func WithBlocks(b registry.BlockSource) Option {
	return func(a *API) { a.blocks = b }
}

// WithRateLimit sets the per-client token bucket. A zero rate disables limiting.
func WithRateLimit(burst int, perSecond float64) Option {
	return func(a *API) {
		a.rateBurst = burst
		a.ratePerSec = perSecond
	}
}

func New(rp ReadyProbe, version string, reg *registry.Registry, opts ...Option) *API {
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: rp,
		version:    version,
		registry:   reg,
		tokenTTL:   defaultTokenTTL,
		rateBurst:  200,
		ratePerSec: 100,
	}
	for _, opt := range opts {
		opt(a)
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	a.mux.HandleFunc("/v1/auth/token", a.handleAuthToken)
	a.mux.HandleFunc("/v1/orgs", a.handleOrganizations)
	a.mux.HandleFunc("/v1/orgs/", a.handleOrganizationResource)
	a.mux.HandleFunc("/v1/claims", a.handleClaims)
	a.mux.HandleFunc("/v1/claims/", a.handleClaimResource)
	a.mux.HandleFunc("/v1/events", a.Stream)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "resource not found")
	})

	return a
}

// Handler returns the fully wrapped handler for the server.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = MaxBodyBytes(h, maxRequestBytes)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	info := map[string]any{
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	}
	if a.blocks != nil {
		info["block"] = a.blocks.BlockNumber()
	}
	writeJSON(w, http.StatusOK, info)
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
