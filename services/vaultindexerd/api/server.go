package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"stakevault/gateway/middleware"
	"stakevault/observability"
	"stakevault/services/vaultindexerd/archive"
	"stakevault/services/vaultindexerd/models"
)

// Scopes accepted by the REST surface.
const (
	ScopeRead    = "vault.read"
	ScopeArchive = "vault.archive"
)

const (
	defaultPageLimit = 100
	maxPageLimit     = 500
)

// Archiver triggers an on-demand export for POST /v1/archive/run.
type Archiver interface {
	Export(ctx context.Context, start, end time.Time) (*archive.Result, error)
}

// Config captures the dependencies required to construct the server.
type Config struct {
	DB          *gorm.DB
	Logger      *slog.Logger
	Auth        middleware.AuthConfig
	CORS        middleware.CORSConfig
	RateLimits  map[string]middleware.RateLimit
	LogRequests bool
	Archiver    Archiver
	Now         func() time.Time
}

// Server exposes the indexed event stream and stake projections over REST.
type Server struct {
	db       *gorm.DB
	logger   *slog.Logger
	archiver Archiver
	now      func() time.Time
	router   http.Handler
}

// New constructs a configured HTTP router with auth, rate limiting, and
// request observability applied per route group.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	srv := &Server{
		db:       cfg.DB,
		logger:   logger,
		archiver: cfg.Archiver,
		now:      cfg.Now,
	}
	if srv.now == nil {
		srv.now = time.Now
	}
	srv.router = srv.buildRouter(cfg)
	return srv
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter(cfg Config) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.CORS(cfg.CORS))

	auth := middleware.NewAuthenticator(cfg.Auth, s.logger)
	limiter := middleware.NewRateLimiter(cfg.RateLimits, s.logger)
	obs := middleware.NewObservability(middleware.ObservabilityConfig{
		ServiceName: "stakevault-indexer",
		LogRequests: cfg.LogRequests,
		Enabled:     true,
	}, s.logger, func(route, _ string, status int, _ time.Duration) {
		observability.Indexer().RecordAPIRequest(route, status)
	})

	r.Route("/v1", func(api chi.Router) {
		api.Group(func(protected chi.Router) {
			protected.Use(auth.Middleware(ScopeRead))
			protected.With(obs.Middleware("events"), limiter.Middleware("events")).Get("/events", s.ListEvents)
			protected.With(obs.Middleware("stakes"), limiter.Middleware("stakes")).Get("/stakes", s.ListStakes)
			protected.With(obs.Middleware("stakes"), limiter.Middleware("stakes")).Get("/stakes/{address}", s.GetStake)
			protected.With(obs.Middleware("summary"), limiter.Middleware("summary")).Get("/summary", s.GetSummary)
		})
		api.With(obs.Middleware("archive"), limiter.Middleware("archive"), auth.Middleware(ScopeRead, ScopeArchive)).
			Post("/archive/run", s.TriggerArchive)
	})
	r.Get("/healthz", s.handleHealthz)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

type eventView struct {
	Sequence   uint64            `json:"sequence"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	Digest     string            `json:"digest"`
	EmittedAt  int64             `json:"emittedAt"`
}

type eventsResponse struct {
	Events     []eventView `json:"events"`
	NextCursor uint64      `json:"nextCursor"`
}

// ListEvents serves indexed events ordered by sequence with cursor paging and
// an optional type filter.
func (s *Server) ListEvents(w http.ResponseWriter, r *http.Request) {
	cursor, err := parseUintParam(r, "cursor", 0)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid cursor")
		return
	}
	limit, err := parseUintParam(r, "limit", defaultPageLimit)
	if err != nil || limit == 0 {
		respondError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	query := s.db.Where("sequence > ?", cursor).Order("sequence asc").Limit(int(limit))
	if eventType := r.URL.Query().Get("type"); eventType != "" {
		query = query.Where("type = ?", eventType)
	}
	var rows []models.Event
	if err := query.Find(&rows).Error; err != nil {
		s.logger.Error("list events failed", "component", "api", "error", err)
		respondError(w, http.StatusInternalServerError, "query failed")
		return
	}

	resp := eventsResponse{Events: make([]eventView, 0, len(rows)), NextCursor: cursor}
	for _, row := range rows {
		attrs := map[string]string{}
		if row.Payload != "" {
			if err := json.Unmarshal([]byte(row.Payload), &attrs); err != nil {
				s.logger.Warn("corrupt event payload", "component", "api", "sequence", row.Sequence)
			}
		}
		resp.Events = append(resp.Events, eventView{
			Sequence:   row.Sequence,
			Type:       row.Type,
			Attributes: attrs,
			Digest:     row.Digest,
			EmittedAt:  row.EmittedAt,
		})
		resp.NextCursor = row.Sequence
	}
	respondJSON(w, http.StatusOK, resp)
}

type stakeView struct {
	Address      string   `json:"address"`
	StakedCount  uint32   `json:"stakedCount"`
	Items        []string `json:"items"`
	TotalClaimed uint64   `json:"totalClaimed"`
	LastSequence uint64   `json:"lastSequence"`
}

// ListStakes serves every position that currently holds items in custody.
func (s *Server) ListStakes(w http.ResponseWriter, r *http.Request) {
	var rows []models.StakePosition
	if err := s.db.Where("staked_count > 0").Order("address asc").Find(&rows).Error; err != nil {
		s.logger.Error("list stakes failed", "component", "api", "error", err)
		respondError(w, http.StatusInternalServerError, "query failed")
		return
	}
	out := make([]stakeView, 0, len(rows))
	for _, row := range rows {
		out = append(out, stakeViewFrom(row))
	}
	respondJSON(w, http.StatusOK, out)
}

// GetStake serves one position by address, including fully unstaked ones.
func (s *Server) GetStake(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	var row models.StakePosition
	err := s.db.Where("address = ?", address).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		respondError(w, http.StatusNotFound, "unknown address")
		return
	}
	if err != nil {
		s.logger.Error("get stake failed", "component", "api", "error", err)
		respondError(w, http.StatusInternalServerError, "query failed")
		return
	}
	respondJSON(w, http.StatusOK, stakeViewFrom(row))
}

type summaryResponse struct {
	Events        int64  `json:"events"`
	LastSequence  uint64 `json:"lastSequence"`
	ActiveStakers int64  `json:"activeStakers"`
	ItemsStaked   int64  `json:"itemsStaked"`
	TotalClaimed  uint64 `json:"totalClaimed"`
}

// GetSummary aggregates the indexed state into a single snapshot.
func (s *Server) GetSummary(w http.ResponseWriter, r *http.Request) {
	var out summaryResponse
	if err := s.db.Model(&models.Event{}).Count(&out.Events).Error; err != nil {
		respondError(w, http.StatusInternalServerError, "query failed")
		return
	}
	var cp models.Checkpoint
	if err := s.db.Where("name = ?", "events").First(&cp).Error; err == nil {
		out.LastSequence = cp.Value
	}
	if err := s.db.Model(&models.StakePosition{}).Where("staked_count > 0").Count(&out.ActiveStakers).Error; err != nil {
		respondError(w, http.StatusInternalServerError, "query failed")
		return
	}
	type totals struct {
		Items   int64
		Claimed uint64
	}
	var agg totals
	err := s.db.Model(&models.StakePosition{}).
		Select("COALESCE(SUM(staked_count), 0) AS items, COALESCE(SUM(total_claimed), 0) AS claimed").
		Scan(&agg).Error
	if err != nil {
		respondError(w, http.StatusInternalServerError, "query failed")
		return
	}
	out.ItemsStaked = agg.Items
	out.TotalClaimed = agg.Claimed
	respondJSON(w, http.StatusOK, out)
}

type archiveRequest struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type archiveResponse struct {
	Rows        int    `json:"rows"`
	CSVPath     string `json:"csvPath,omitempty"`
	ParquetPath string `json:"parquetPath,omitempty"`
	Start       string `json:"start"`
	End         string `json:"end"`
}

// TriggerArchive runs an export for the requested window, defaulting to the
// previous 24 hours.
func (s *Server) TriggerArchive(w http.ResponseWriter, r *http.Request) {
	if s.archiver == nil {
		respondError(w, http.StatusServiceUnavailable, "archiving disabled")
		return
	}
	var req archiveRequest
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	end := s.now().UTC()
	if req.End != "" {
		parsed, err := time.Parse(time.RFC3339, req.End)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid end timestamp")
			return
		}
		end = parsed
	}
	start := end.Add(-24 * time.Hour)
	if req.Start != "" {
		parsed, err := time.Parse(time.RFC3339, req.Start)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid start timestamp")
			return
		}
		start = parsed
	}
	if !end.After(start) {
		respondError(w, http.StatusBadRequest, "end must follow start")
		return
	}
	result, err := s.archiver.Export(r.Context(), start, end)
	if err != nil {
		s.logger.Error("archive export failed", "component", "api", "error", err)
		respondError(w, http.StatusInternalServerError, "export failed")
		return
	}
	respondJSON(w, http.StatusOK, archiveResponse{
		Rows:        result.Rows,
		CSVPath:     result.CSVPath,
		ParquetPath: result.ParquetPath,
		Start:       result.Start.Format(time.RFC3339),
		End:         result.End.Format(time.RFC3339),
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	status := struct {
		Status       string `json:"status"`
		LastSequence uint64 `json:"lastSequence"`
	}{Status: "ok"}
	var cp models.Checkpoint
	if err := s.db.Where("name = ?", "events").First(&cp).Error; err == nil {
		status.LastSequence = cp.Value
	}
	respondJSON(w, http.StatusOK, status)
}

func stakeViewFrom(row models.StakePosition) stakeView {
	items := []string{}
	if row.Items != "" {
		_ = json.Unmarshal([]byte(row.Items), &items)
	}
	return stakeView{
		Address:      row.Address,
		StakedCount:  row.StakedCount,
		Items:        items,
		TotalClaimed: row.TotalClaimed,
		LastSequence: row.LastSequence,
	}
}

func parseUintParam(r *http.Request, name string, fallback uint64) (uint64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	return strconv.ParseUint(raw, 10, 64)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
