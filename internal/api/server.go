// Package api exposes the decision engine over HTTP: ingest and decide
// operations, the decision log, feed quality, and the verification
// budget, plus health and metrics endpoints.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/tcollier/threatgate/internal/config"
	"github.com/tcollier/threatgate/internal/feedquality"
	"github.com/tcollier/threatgate/internal/model"
	"github.com/tcollier/threatgate/internal/normalization"
	"github.com/tcollier/threatgate/internal/pipeline"
	"github.com/tcollier/threatgate/internal/storage"
	"github.com/tcollier/threatgate/internal/verification"
)

// Version information (injected at build time via ldflags).
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// Server holds the HTTP surface and its collaborators.
type Server struct {
	cfg        config.ServerConfig
	feeds      []model.FeedSource
	pipeline   *pipeline.Pipeline
	normalizer *normalization.Normalizer
	deduper    *normalization.Deduper
	verifier   *verification.Verifier
	store      storage.Store
	scorer     *feedquality.Scorer
	breaker    *feedquality.Breaker
	limiter    *RateLimiter
	registry   *prometheus.Registry
	logger     *zap.Logger
}

// Deps collects the server's collaborators.
type Deps struct {
	Feeds      []model.FeedSource
	Pipeline   *pipeline.Pipeline
	Normalizer *normalization.Normalizer
	Deduper    *normalization.Deduper
	Verifier   *verification.Verifier
	Store      storage.Store
	Scorer     *feedquality.Scorer
	Breaker    *feedquality.Breaker
	Limiter    *RateLimiter // optional, needs Redis
	Registry   *prometheus.Registry
	Logger     *zap.Logger
}

// NewServer builds the Server.
func NewServer(cfg config.ServerConfig, deps Deps) *Server {
	return &Server{
		cfg:        cfg,
		feeds:      deps.Feeds,
		pipeline:   deps.Pipeline,
		normalizer: deps.Normalizer,
		deduper:    deps.Deduper,
		verifier:   deps.Verifier,
		store:      deps.Store,
		scorer:     deps.Scorer,
		breaker:    deps.Breaker,
		limiter:    deps.Limiter,
		registry:   deps.Registry,
		logger:     deps.Logger.Named("api"),
	}
}

// Router builds the chi router with the full route table.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		if s.limiter != nil {
			r.Use(s.limiter.Middleware)
		}
		r.Post("/ingest", s.handleIngest)
		r.Post("/decide", s.handleDecide)
		r.Get("/decisions", s.handleListDecisions)
		r.Get("/decisions/{item_id}", s.handleItemDecisions)
		r.Get("/feeds/quality", s.handleFeedQuality)
		r.Get("/verification/budget", s.handleBudget)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": Version,
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// IngestRequest carries one fetched batch: the feed it came from and
// its raw entries. The caller supplies fetch health when it has it;
// otherwise a synthetic sample records the ingest itself.
type IngestRequest struct {
	Feed    model.FeedSource         `json:"feed"`
	Entries []normalization.RawEntry `json:"entries"`
	Sample  *model.FeedHealthSample  `json:"sample,omitempty"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Feed.Name == "" {
		writeError(w, http.StatusBadRequest, "feed.name is required")
		return
	}

	sample := model.FeedHealthSample{
		FeedName:   req.Feed.Name,
		FetchedUTC: time.Now().UTC(),
		HTTPStatus: http.StatusOK,
		ParseOK:    true,
		ItemCount:  len(req.Entries),
	}
	if req.Sample != nil {
		sample = *req.Sample
		sample.FeedName = req.Feed.Name
	}

	result, err := s.pipeline.ProcessFeed(r.Context(), req.Feed, req.Entries, sample)
	if err != nil {
		s.logger.Error("ingest failed", zap.String("feed", req.Feed.Name), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "processing failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// DecideRequest routes a single entry through the full pipeline.
type DecideRequest struct {
	Entry normalization.RawEntry     `json:"entry"`
	Feed  normalization.FeedMetadata `json:"feed"`
}

// DecideResponse pairs the decision with the item it was made for.
type DecideResponse struct {
	Item     *model.ThreatItem     `json:"item"`
	Decision model.RoutingDecision `json:"decision"`
}

func (s *Server) handleDecide(w http.ResponseWriter, r *http.Request) {
	var req DecideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	item, drop := s.normalizer.Normalize(req.Entry, req.Feed)
	if drop != nil {
		writeJSON(w, http.StatusUnprocessableEntity, drop)
		return
	}
	item, _ = s.deduper.Resolve(item)

	decision, err := s.pipeline.ProcessItem(r.Context(), item)
	if err != nil {
		s.logger.Error("decide failed", zap.String("item_id", item.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "processing failed")
		return
	}
	writeJSON(w, http.StatusOK, DecideResponse{Item: item, Decision: decision})
}

func (s *Server) handleListDecisions(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	decisions, err := s.store.ListDecisions(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "listing decisions failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"decisions": decisions,
		"count":     len(decisions),
	})
}

func (s *Server) handleItemDecisions(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "item_id")
	decisions, err := s.store.DecisionsForItem(r.Context(), itemID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "listing decisions failed")
		return
	}
	if len(decisions) == 0 {
		writeError(w, http.StatusNotFound, "no decisions for item")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"item_id":   itemID,
		"decisions": decisions,
	})
}

// FeedQualityEntry is one feed's scorecard.
type FeedQualityEntry struct {
	Feed        string                   `json:"feed"`
	Score       feedquality.QualityScore `json:"score"`
	BreakerOpen bool                     `json:"breaker_open"`
}

func (s *Server) handleFeedQuality(w http.ResponseWriter, r *http.Request) {
	out := make([]FeedQualityEntry, 0, len(s.feeds))
	for _, feed := range s.feeds {
		samples, err := s.store.HealthSamples(r.Context(), feed.Name)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "loading samples failed")
			return
		}
		out = append(out, FeedQualityEntry{
			Feed:        feed.Name,
			Score:       s.scorer.Score(samples),
			BreakerOpen: s.breaker.Open(feed.Name),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"feeds": out})
}

func (s *Server) handleBudget(w http.ResponseWriter, _ *http.Request) {
	ledger := s.verifier.Ledger()
	writeJSON(w, http.StatusOK, map[string]float64{
		"spent":     ledger.Spent(),
		"remaining": ledger.Remaining(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
