package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/you/turnbell/internal/core"
	"github.com/you/turnbell/internal/metrics"
	"github.com/you/turnbell/internal/service"
)

// Service is what the handlers need from the application.
type Service interface {
	HandleTurn(ctx context.Context, ev core.TurnEvent, deliveryID string) (service.Delivery, error)
	ActiveGames(ctx context.Context) ([]core.TurnRecord, error)
	History(ctx context.Context, key string) ([]core.HistoryRecord, error)
}

type Options struct {
	Addr            string
	CORSOrigins     []string
	RateLimitRPS    int
	RateLimitBurst  int
	EnableMetrics   bool
	EnableAccessLog bool
	Build           BuildInfo
	ConfigSnapshot  map[string]any
	Metrics         *metrics.Metrics
	Logger          *slog.Logger
	// Clock drives the webhook rate limiter; the real clock when nil.
	Clock clockwork.Clock
}

const webhookRoute = "/pydt-webhook"

type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	svc        Service
	opts       Options
	metrics    *metrics.Metrics
	limiter    *senderLimiter
	cors       *originPolicy
	log        *slog.Logger

	mu      sync.Mutex
	clients map[chan core.TurnNotice]struct{}
	closed  bool
}

func New(svc Service, opts Options) *Server {
	srv := &Server{
		svc:     svc,
		opts:    opts,
		metrics: opts.Metrics,
		limiter: newSenderLimiter(opts.RateLimitRPS, opts.RateLimitBurst, opts.Clock),
		cors:    newOriginPolicy(opts.CORSOrigins),
		log:     opts.Logger,
		clients: make(map[chan core.TurnNotice]struct{}),
	}
	if srv.log == nil {
		srv.log = slog.Default()
	}

	mux := http.NewServeMux()
	srv.mux = mux
	srv.route(http.MethodPost, webhookRoute, srv.throttle(webhookRoute, srv.handleWebhook))
	srv.route(http.MethodGet, "/health", srv.handleHealth)
	srv.route(http.MethodGet, "/active-games", srv.handleActiveGames)
	srv.route(http.MethodGet, "/games/{key}/history", srv.handleHistory)
	srv.route(http.MethodGet, "/info", srv.handleInfo)
	srv.route(http.MethodGet, "/config", srv.handleConfig)
	srv.route(http.MethodGet, "/stream", srv.handleStream)
	if opts.EnableMetrics && srv.metrics != nil {
		mux.Handle("GET /metrics", srv.metrics.Handler())
	}

	srv.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return srv
}

// Mux lets other packages mount extra routes before Start.
func (s *Server) Mux() *http.ServeMux { return s.mux }

// Handler is the root handler, for tests.
func (s *Server) Handler() http.Handler { return s.mux }

// route registers h plus its CORS preflight.
func (s *Server) route(method, path string, h http.HandlerFunc) {
	s.mux.Handle(method+" "+path, s.wrap(path, h))
	s.mux.HandleFunc(http.MethodOptions+" "+path, s.cors.preflight(method))
}

// wrap applies CORS, panic recovery, metrics and access logging.
func (s *Server) wrap(route string, h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w}
		defer func() {
			if p := recover(); p != nil {
				if p == http.ErrAbortHandler {
					panic(p)
				}
				s.log.Error("http: handler panic", "route", route, "panic", p, "stack", string(debug.Stack()))
				if !sw.committed() {
					writeJSON(sw, http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
				}
			}
			s.metrics.ObserveRequest(route, r.Method, sw.status(), time.Since(start))
			if s.opts.EnableAccessLog {
				s.log.Info("http: request",
					"method", r.Method, "route", route, "path", r.URL.Path,
					"status", sw.status(), "bytes", sw.size,
					"remote", senderIP(r), "dur", time.Since(start))
			}
		}()

		if !s.cors.decorate(sw, r) {
			writeJSON(sw, http.StatusForbidden, map[string]string{"error": "Origin not allowed"})
			return
		}
		h(sw, r)
	})
}

// throttle turns away senders that deliver faster than the configured rate.
func (s *Server) throttle(route string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ok, wait := s.limiter.admit(senderIP(r)); !ok {
			s.metrics.IncRateLimited(route)
			s.log.Warn("webhook: sender throttled", "remote", senderIP(r), "wait", wait)
			w.Header().Set("Retry-After", retryAfter(wait))
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "Too many requests"})
			return
		}
		h(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

type activeGame struct {
	GameName      string `json:"gameName"`
	SteamUsername string `json:"steamUsername"`
	RoundNumber   string `json:"roundNumber"`
	TurnStartedAt string `json:"turnStartedAt"`
	ReminderCount int    `json:"reminderCount"`
}

func (s *Server) handleActiveGames(w http.ResponseWriter, r *http.Request) {
	records, err := s.svc.ActiveGames(r.Context())
	if err != nil {
		s.log.Error("http: list active games", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	games := make([]activeGame, 0, len(records))
	for _, rec := range records {
		games = append(games, activeGame{
			GameName:      rec.GameName,
			SteamUsername: rec.SteamUsername,
			RoundNumber:   rec.RoundNumber,
			TurnStartedAt: rec.TurnStartedAt,
			ReminderCount: rec.ReminderCount,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"activeGames": games, "count": len(games)})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	rows, err := s.svc.History(r.Context(), key)
	if err != nil {
		s.log.Error("http: list turn history", "key", key, "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if rows == nil {
		rows = []core.HistoryRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"gameKey": key, "turns": rows, "count": len(rows)})
}

func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	snapshot := s.opts.ConfigSnapshot
	if snapshot == nil {
		snapshot = map[string]any{}
	}
	writeJSON(w, http.StatusOK, snapshot)
}

// Publish fans a tracked turn out to stream clients. Slow clients miss
// events rather than block the webhook.
func (s *Server) Publish(n core.TurnNotice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.clients {
		select {
		case ch <- n:
		default:
			s.metrics.IncBroadcastDrops()
		}
	}
}

func (s *Server) Start() error {
	s.log.Info("http: listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for ch := range s.clients {
		close(ch)
	}
	s.clients = make(map[chan core.TurnNotice]struct{})
	s.mu.Unlock()
	return s.httpServer.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
