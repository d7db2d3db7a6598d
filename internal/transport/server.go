// Package transport exposes the admission state, cache and quote fetching
// over HTTP for the dashboard and for operators.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/stockwatchdog/marketdata/internal/adapters"
	"github.com/stockwatchdog/marketdata/internal/cache"
	"github.com/stockwatchdog/marketdata/internal/fetch"
	"github.com/stockwatchdog/marketdata/internal/observ"
	"github.com/stockwatchdog/marketdata/internal/ratelimit"
	"github.com/stockwatchdog/marketdata/internal/store"
)

// Server serves the HTTP API. The store is optional; without it the usage
// endpoint reports not configured.
type Server struct {
	manager *ratelimit.Manager
	cache   *cache.Cache
	orch    *fetch.Orchestrator
	store   *store.Store
	started time.Time

	srv *http.Server
}

func NewServer(addr string, manager *ratelimit.Manager, c *cache.Cache, orch *fetch.Orchestrator, st *store.Store) *Server {
	s := &Server{
		manager: manager,
		cache:   c,
		orch:    orch,
		store:   st,
		started: time.Now(),
	}
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/metrics", observ.Handler().ServeHTTP)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/quotes/{symbol}", s.handleQuote)
		r.Get("/usage", s.handleUsage)
		r.Post("/cache/clear", s.handleCacheClear)
	})
	return r
}

// Start blocks serving until Shutdown or a listener error.
func (s *Server) Start() error {
	observ.Log("http_listen", map[string]any{"addr": s.srv.Addr})
	err := s.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"uptime_seconds": int(time.Since(s.started).Seconds()),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"apis": s.manager.Status(),
		"cache": map[string]any{
			"entries": s.cache.Len(),
		},
	})
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	priority := ratelimit.PriorityNormal
	if q := r.URL.Query().Get("priority"); q != "" {
		p, err := ratelimit.ParsePriority(q)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown priority %q", q))
			return
		}
		priority = p
	}
	forceRefresh := r.URL.Query().Get("refresh") == "true"

	snap, err := s.orch.Fetch(r.Context(), symbol, priority, forceRefresh)
	if err != nil {
		writeFetchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotFound, "usage store not configured")
		return
	}

	hours := 24
	if q := r.URL.Query().Get("since_hours"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "since_hours must be a positive integer")
			return
		}
		hours = n
	}
	since := time.Now().Add(-time.Duration(hours) * time.Hour)

	stats, err := s.store.UsageStats(r.Context(), since)
	if err != nil {
		observ.Error("usage_query_failed", map[string]any{"error": err.Error()})
		writeError(w, http.StatusInternalServerError, "usage query failed")
		return
	}
	recent, err := s.store.RecentEntries(r.Context(), 50)
	if err != nil {
		observ.Error("usage_query_failed", map[string]any{"error": err.Error()})
		writeError(w, http.StatusInternalServerError, "usage query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"since":  since.UTC(),
		"stats":  stats,
		"recent": recent,
	})
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	s.cache.Clear()
	writeJSON(w, http.StatusOK, map[string]any{"cleared": true})
}

// requestLogger emits one structured line per completed request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		observ.Log("http_request", map[string]any{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"elapsed_ms": time.Since(start).Milliseconds(),
		})
	})
}

// writeFetchError maps fetch failures onto response codes: 429 is reserved
// for this service's own admission denials; upstream failures become 502.
func writeFetchError(w http.ResponseWriter, err error) {
	var rle *fetch.RateLimitError
	if errors.As(err, &rle) {
		w.Header().Set("Retry-After", strconv.Itoa(int(rle.WaitSeconds)+1))
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"error":        "rate limited",
			"api":          rle.API,
			"wait_seconds": rle.WaitSeconds,
		})
		return
	}

	var fe *adapters.FetchError
	if errors.As(err, &fe) {
		switch fe.Kind {
		case adapters.ErrKindBadSymbol:
			writeError(w, http.StatusBadRequest, fe.Message)
		case adapters.ErrKindNotFound:
			writeError(w, http.StatusNotFound, fe.Message)
		default:
			writeError(w, http.StatusBadGateway, fe.Error())
		}
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		observ.Error("response_encode_failed", map[string]any{"error": err.Error()})
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}
