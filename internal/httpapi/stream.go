package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/you/turnbell/internal/core"
)

const (
	streamBuffer       = 32
	streamWriteTimeout = 5 * time.Second
)

// handleStream pushes every tracked turn to a websocket client as JSON.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	ch, ok := s.subscribe()
	if !ok {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "Server shutting down"})
		return
	}
	defer s.unsubscribe(ch)

	conn, err := websocket.Accept(baseWriter(w), r, &websocket.AcceptOptions{
		OriginPatterns: originPatterns(s.opts.CORSOrigins),
	})
	if err != nil {
		s.log.Warn("stream: accept failed", "remote", senderIP(r), "err", err)
		return
	}
	defer conn.CloseNow()

	s.metrics.IncWSClients(1)
	defer s.metrics.IncWSClients(-1)

	ctx := conn.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			return
		case notice, open := <-ch:
			if !open {
				_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			if err := writeNotice(ctx, conn, notice); err != nil {
				s.log.Debug("stream: write failed", "remote", senderIP(r), "err", err)
				return
			}
		}
	}
}

func writeNotice(ctx context.Context, conn *websocket.Conn, n core.TurnNotice) error {
	ctx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, n)
}

// originPatterns turns CORS origins into the host patterns websocket.Accept
// matches against.
func originPatterns(origins []string) []string {
	var out []string
	for _, o := range origins {
		o = strings.TrimSpace(o)
		o = strings.TrimPrefix(o, "https://")
		o = strings.TrimPrefix(o, "http://")
		if o != "" {
			out = append(out, o)
		}
	}
	return out
}

func (s *Server) subscribe() (chan core.TurnNotice, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false
	}
	ch := make(chan core.TurnNotice, streamBuffer)
	s.clients[ch] = struct{}{}
	return ch, true
}

func (s *Server) unsubscribe(ch chan core.TurnNotice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[ch]; ok {
		delete(s.clients, ch)
		close(ch)
	}
}

// Subscribers reports how many stream clients are attached.
func (s *Server) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}
