// Package httpapi serves a read-only JSON view of dividend instances next
// to the Prometheus metrics endpoint.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/bitfsorg/libdividends-go/dividends"
	"github.com/bitfsorg/libdividends-go/internal/metrics"
	"github.com/bitfsorg/libdividends-go/ledger"
)

// Default per-client request budget.
const (
	DefaultRate  = rate.Limit(20)
	DefaultBurst = 40
)

// Server routes API requests to a fixed set of instances.
type Server struct {
	router    chi.Router
	instances map[ledger.Address]*dividends.Token
	order     []ledger.Address
	limiter   *RateLimiter
	rate      rate.Limit
	burst     int
	clock     clockwork.Clock
	log       *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithRateLimit replaces the default per-client limit.
func WithRateLimit(r rate.Limit, burst int) Option {
	return func(s *Server) { s.rate, s.burst = r, burst }
}

// WithClock sets the clock the rate limiter reads.
func WithClock(c clockwork.Clock) Option {
	return func(s *Server) { s.clock = c }
}

// New builds a server over toks.
func New(toks []*dividends.Token, log *slog.Logger, opts ...Option) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		instances: make(map[ledger.Address]*dividends.Token, len(toks)),
		rate:      DefaultRate,
		burst:     DefaultBurst,
		clock:     clockwork.NewRealClock(),
		log:       log,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.limiter = NewRateLimiter(s.rate, s.burst, s.clock)
	for _, tok := range toks {
		s.instances[tok.Address()] = tok
		s.order = append(s.order, tok.Address())
	}
	s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(metricsMiddleware)

	s.router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/v1/instances", func(r chi.Router) {
		r.Use(s.limiter.Middleware)
		r.Get("/", s.handleListInstances)
		r.Get("/{instance}", s.handleGetInstance)
		r.Get("/{instance}/holders", s.handleListHolders)
		r.Get("/{instance}/holders/{holder}", s.handleGetHolder)
	})
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path := chi.RouteContext(r.Context()).RoutePattern()
		if path == "" {
			path = r.URL.Path
		}
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(ww.Status())).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.log.Error("api request failed", "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()), "error", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

var errUnknownInstance = errors.New("unknown instance")

func (s *Server) instance(w http.ResponseWriter, r *http.Request) (*dividends.Token, bool) {
	addr, err := ledger.ParseAddress(chi.URLParam(r, "instance"))
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return nil, false
	}
	tok, ok := s.instances[addr]
	if !ok {
		s.writeError(w, r, http.StatusNotFound, errUnknownInstance)
		return nil, false
	}
	return tok, true
}
