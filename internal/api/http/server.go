package apihttp

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"pricescout/searchservice/internal/domain"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type SearchService interface {
	SearchDetailed(ctx context.Context, request domain.SearchRequest) domain.SearchResponse
	Sources() []domain.SourceInfo
	SourceDiagnostics() []domain.SourceDiagnostics
}

type Server struct {
	search         SearchService
	logger         *slog.Logger
	rateLimitRPS   float64
	rateLimitBurst int
	allowedOrigins []string
	imageClient    *http.Client
}

const maxQueryLength = 500

type ServerOption func(*Server)

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithRateLimit sets the global request budget. Non-positive values keep the
// defaults.
func WithRateLimit(rps float64, burst int) ServerOption {
	return func(s *Server) {
		if rps > 0 {
			s.rateLimitRPS = rps
		}
		if burst > 0 {
			s.rateLimitBurst = burst
		}
	}
}

// WithAllowedOrigins sets the CORS allow list. An entry ending in * matches by
// prefix, so "*" alone allows every origin.
func WithAllowedOrigins(origins []string) ServerOption {
	return func(s *Server) {
		s.allowedOrigins = append([]string(nil), origins...)
	}
}

func NewServer(searchService SearchService, options ...ServerOption) *Server {
	server := &Server{
		search:         searchService,
		logger:         slog.Default(),
		rateLimitRPS:   50,
		rateLimitBurst: 100,
		allowedOrigins: []string{"*"},
	}
	for _, option := range options {
		if option != nil {
			option(server)
		}
	}
	if server.logger == nil {
		server.logger = slog.Default()
	}
	server.imageClient = newImageProxyClient()
	return server
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/api/sources", s.handleSources)
	mux.HandleFunc("/api/sources/health", s.handleSourcesHealth)
	mux.HandleFunc("/api/image", s.handleImageProxy)
	mux.HandleFunc("/api/search", s.handleSearch)
	return chain(mux,
		recoveryMiddleware(s.logger),
		corsMiddleware(s.allowedOrigins),
		requestIDMiddleware,
		rateLimitMiddleware(s.rateLimitRPS, s.rateLimitBurst),
		metricsMiddleware,
		tracingMiddleware,
		loggingMiddleware(s.logger),
	)
}

func tracingMiddleware(next http.Handler) http.Handler {
	return otelhttp.NewHandler(next, "pricescout-search",
		otelhttp.WithFilter(func(r *http.Request) bool {
			return !isProbePath(r.URL.Path)
		}),
	)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if !s.acceptSearchCall(w, r, "/api/search") {
		return
	}

	values := r.URL.Query()
	query := strings.TrimSpace(values.Get("q"))
	if len(query) > maxQueryLength {
		writeError(w, http.StatusBadRequest, "invalid_request", "query too long (max 500 characters)")
		return
	}
	verbose := parseOptionalBool(values.Get("verbose"))
	if query == "" {
		if verbose {
			writeJSON(w, http.StatusOK, domain.SearchResponse{
				Items:   []domain.Offer{},
				Sources: []domain.SourceStatus{},
				Sort:    domain.SortDefault,
			})
			return
		}
		writeJSON(w, http.StatusOK, []domain.Offer{})
		return
	}

	request := domain.SearchRequest{
		Query:       query,
		InStockOnly: parseOptionalBool(values.Get("inStock")) || parseOptionalBool(values.Get("in_stock")),
		Sort:        domain.NormalizeSortMode(values.Get("sort")),
		NoCache:     parseOptionalBool(values.Get("nocache")) || parseOptionalBool(values.Get("noCache")),
	}
	response := s.search.SearchDetailed(r.Context(), request)

	failedSources := make([]string, 0, len(response.Sources))
	for _, status := range response.Sources {
		if !status.OK {
			failedSources = append(failedSources, status.Name)
		}
	}
	s.logger.Info("search completed",
		slog.String("query", truncate(query, 80)),
		slog.String("sort", string(response.Sort)),
		slog.Int("totalItems", response.TotalItems),
		slog.Int64("elapsedMs", response.ElapsedMS),
		slog.Bool("fallback", response.Fallback),
		slog.Bool("cached", response.Cached),
	)
	if len(failedSources) > 0 {
		s.logger.Warn("search sources partially failed",
			slog.String("query", truncate(query, 80)),
			slog.Any("failedSources", failedSources),
		)
	}

	if verbose {
		writeJSON(w, http.StatusOK, response)
		return
	}
	items := response.Items
	if items == nil {
		items = []domain.Offer{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	if !s.acceptSearchCall(w, r, "/api/sources") {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": s.search.Sources(),
	})
}

func (s *Server) handleSourcesHealth(w http.ResponseWriter, r *http.Request) {
	if !s.acceptSearchCall(w, r, "/api/sources/health") {
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"checkedAt": time.Now().UTC(),
		"items":     s.search.SourceDiagnostics(),
	})
}

// acceptSearchCall answers requests that cannot reach the search service and
// reports whether the handler should go on.
func (s *Server) acceptSearchCall(w http.ResponseWriter, r *http.Request, route string) bool {
	switch {
	case r.URL.Path != route:
		http.NotFound(w, r)
	case r.Method != http.MethodGet:
		w.WriteHeader(http.StatusMethodNotAllowed)
	case s.search == nil:
		writeError(w, http.StatusInternalServerError, "internal_error", "search service is not configured")
	default:
		return true
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}

func parseOptionalBool(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
