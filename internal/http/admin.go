// Package httpadmin mounts operator endpoints next to the public API.
package httpadmin

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/pkg/errors"

	"github.com/you/turnbell/internal/store"
	"github.com/you/turnbell/internal/turns"
)

type Controller interface {
	RunReminders(ctx context.Context) (turns.Summary, error)
	ReloadMapping() (int, error)
	RemoveGame(ctx context.Context, key string) error
	Ping(ctx context.Context) error
}

type Server struct {
	ctrl  Controller
	token string
}

// New returns admin handlers. A non-empty token is required as a bearer
// token on every route except healthz.
func New(ctrl Controller, token string) *Server {
	return &Server{ctrl: ctrl, token: strings.TrimSpace(token)}
}

func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /admin/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := s.ctrl.Ping(r.Context()); err != nil {
			http.Error(w, "store unavailable: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("POST /admin/reminders/run", s.authorized(func(w http.ResponseWriter, r *http.Request) {
		summary, err := s.ctrl.RunReminders(r.Context())
		if err != nil {
			http.Error(w, "reminder run failed: "+err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "summary": summary})
	}))
	mux.HandleFunc("POST /admin/mapping/reload", s.authorized(func(w http.ResponseWriter, _ *http.Request) {
		n, err := s.ctrl.ReloadMapping()
		if err != nil {
			http.Error(w, "reload failed: "+err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "entries": n})
	}))
	mux.HandleFunc("DELETE /admin/games/{key}", s.authorized(func(w http.ResponseWriter, r *http.Request) {
		key := r.PathValue("key")
		err := s.ctrl.RemoveGame(r.Context(), key)
		switch {
		case errors.Is(err, store.ErrNotFound):
			http.Error(w, "game not tracked: "+key, http.StatusNotFound)
		case err != nil:
			http.Error(w, "remove failed: "+err.Error(), http.StatusInternalServerError)
		default:
			writeJSON(w, http.StatusOK, map[string]any{"ok": true, "removed": key})
		}
	}))
}

func (s *Server) authorized(h http.HandlerFunc) http.HandlerFunc {
	if s.token == "" {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.token)) != 1 {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		h(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
