package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"trading-backtestv1/internal/backtest"
	"trading-backtestv1/internal/logger"
	"trading-backtestv1/internal/metrics"
	"trading-backtestv1/internal/notification"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// kindBadRequest marks malformed requests rejected before reaching the engine.
const kindBadRequest = "bad_request"

const maxBodyBytes = 1 << 20

// DefaultOptimizeTimeout bounds a single optimization when the server is
// built without one.
const DefaultOptimizeTimeout = 2 * time.Minute

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// Options configures a Server.
type Options struct {
	OptimizeTimeout time.Duration
	Metrics         *metrics.Metrics
	Gatherer        prometheus.Gatherer // nil serves the default registry
	Health          http.Handler
	Notifier        notification.Notifier // optional, told about finished searches
	Logger          *slog.Logger
}

// Server exposes the backtest service over HTTP and websocket.
type Server struct {
	svc             *backtest.Service
	optimizeTimeout time.Duration
	metrics         *metrics.Metrics
	gatherer        prometheus.Gatherer
	health          http.Handler
	notifier        notification.Notifier
	log             *slog.Logger

	start     time.Time
	inFlight  atomic.Int64
	wsClients atomic.Int64
}

// NewServer builds the HTTP layer around svc.
func NewServer(svc *backtest.Service, opts Options) *Server {
	s := &Server{
		svc:             svc,
		optimizeTimeout: opts.OptimizeTimeout,
		metrics:         opts.Metrics,
		gatherer:        opts.Gatherer,
		health:          opts.Health,
		notifier:        opts.Notifier,
		log:             opts.Logger,
		start:           time.Now(),
	}
	if s.optimizeTimeout <= 0 {
		s.optimizeTimeout = DefaultOptimizeTimeout
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s
}

// Handler returns a mux with every route registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return mux
}

// RegisterRoutes registers all HTTP routes on the provided mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/backtest", s.route("backtest", http.MethodPost, s.handleBacktest))
	mux.HandleFunc("/api/optimize", s.route("optimize", http.MethodPost, s.handleOptimize))
	mux.HandleFunc("/api/weights", s.route("weights", http.MethodPost, s.handleWeights))
	mux.HandleFunc("/api/strategies", s.route("strategies", http.MethodGet, s.handleStrategies))
	mux.HandleFunc("/api/system", s.route("system", http.MethodGet, s.handleSystem))
	mux.HandleFunc("/ws/optimize", s.handleOptimizeWS)

	if s.health != nil {
		mux.Handle("/healthz", s.health)
	}
	if s.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	} else {
		mux.Handle("/metrics", promhttp.Handler())
	}
}

// statusRecorder captures the response code for request metrics.
type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

// route wraps a JSON handler with CORS, preflight, method checks and request
// metrics.
func (s *Server) route(name, method string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		defer func() { s.metrics.ObserveRequest(name, rec.code) }()

		if r.Method == http.MethodOptions {
			rec.WriteHeader(http.StatusNoContent)
			return
		}
		if r.Method != method {
			writeError(rec, http.StatusMethodNotAllowed, kindBadRequest, "method "+r.Method+" not allowed")
			return
		}
		h(rec, r)
	}
}

func (s *Server) handleBacktest(w http.ResponseWriter, r *http.Request) {
	var req BacktestRequest
	if !decode(w, r, &req) {
		return
	}
	if msg := requireFields(req.Symbol, req.Strategy); msg != "" {
		writeError(w, http.StatusBadRequest, kindBadRequest, msg)
		return
	}
	ctx := logger.EnsureRunID(r.Context(), req.Symbol)
	rep, err := s.svc.RunBacktest(ctx, req.Symbol, req.Strategy, req.Period, req.Params)
	if err != nil {
		s.fail(ctx, w, "backtest", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	var req OptimizeRequest
	if !decode(w, r, &req) {
		return
	}
	if msg := requireFields(req.Symbol, req.Strategy); msg != "" {
		writeError(w, http.StatusBadRequest, kindBadRequest, msg)
		return
	}
	ctx, cancel := context.WithTimeout(logger.EnsureRunID(r.Context(), req.Symbol), s.optimizeTimeout)
	defer cancel()

	s.inFlight.Add(1)
	defer s.inFlight.Add(-1)

	rep, err := s.svc.OptimizeStrategy(ctx, req.Symbol, req.Strategy, req.Period, req.ParamGrid, nil)
	if err != nil {
		s.fail(ctx, w, "optimize", err)
		return
	}
	s.notify(ctx, notification.OptimizationAlert(rep))
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleWeights(w http.ResponseWriter, r *http.Request) {
	var req WeightsRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Symbol) == "" {
		writeError(w, http.StatusBadRequest, kindBadRequest, "symbol is required")
		return
	}
	ctx, cancel := context.WithTimeout(logger.EnsureRunID(r.Context(), req.Symbol), s.optimizeTimeout)
	defer cancel()

	rep, err := s.svc.CalculateStrategyWeights(ctx, req.Symbol, req.Period, req.Strategies)
	if err != nil {
		s.fail(ctx, w, "weights", err)
		return
	}
	s.notify(ctx, notification.WeightsAlert(rep))
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleStrategies(w http.ResponseWriter, r *http.Request) {
	cat := s.svc.Engine().Catalog()
	out := make([]StrategyInfo, 0, len(cat.Names()))
	for _, name := range cat.Names() {
		st, err := cat.Lookup(name)
		if err != nil {
			continue
		}
		out = append(out, StrategyInfo{
			Name:     st.Name(),
			Keys:     st.Keys(),
			Defaults: st.Defaults(),
			Grid:     st.Grid(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSystem(w http.ResponseWriter, r *http.Request) {
	stats := collectSystem(s.start, time.Now())
	stats.InFlight = s.inFlight.Load()
	stats.WSClients = s.wsClients.Load()
	writeJSON(w, http.StatusOK, stats)
}

// notify delivers alert in the background so a slow channel never holds
// up the response.
func (s *Server) notify(ctx context.Context, alert notification.Alert) {
	if s.notifier == nil {
		return
	}
	alert.RunID = logger.RunID(ctx)
	go func() {
		nctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := s.notifier.Send(nctx, alert); err != nil {
			s.log.Warn("notification failed", "title", alert.Title, "run_id", alert.RunID, "error", err)
		}
	}()
}

// fail logs a failed engine call and writes the mapped error response.
func (s *Server) fail(ctx context.Context, w http.ResponseWriter, op string, err error) {
	kind := backtest.Kind(err)
	code := StatusFor(err)
	attrs := append(logger.LogWithRun(ctx), "op", op, "kind", kind, "error", err)
	if code >= http.StatusInternalServerError {
		s.log.WarnContext(ctx, "request failed", attrs...)
	} else {
		s.log.InfoContext(ctx, "request rejected", attrs...)
	}
	writeError(w, code, kind, err.Error())
}

// StatusFor maps an engine or provider error to an HTTP status code.
func StatusFor(err error) int {
	switch backtest.Kind(err) {
	case backtest.KindInsufficientData, backtest.KindUnsupportedStrategy, backtest.KindConstraintViolation:
		return http.StatusBadRequest
	case backtest.KindComputation:
		return http.StatusUnprocessableEntity
	case backtest.KindCanceled:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func requireFields(symbol, strategy string) string {
	switch {
	case strings.TrimSpace(symbol) == "":
		return "symbol is required"
	case strings.TrimSpace(strategy) == "":
		return "strategy is required"
	}
	return ""
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, kindBadRequest, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, kindBadRequest, "invalid JSON: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, kind, msg string) {
	writeJSON(w, code, ErrorResponse{Error: msg, Kind: kind})
}
