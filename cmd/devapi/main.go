// Command devapi is a local stand-in for the Discord webhook and the turn
// service, for exercising turnbell without real accounts.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"io"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"
)

type post struct {
	Content    string    `json:"content"`
	ReceivedAt time.Time `json:"received_at"`
}

type emitReq struct {
	GameName   string `json:"gameName"`
	UserName   string `json:"userName"`
	Round      int    `json:"round"`
	CivName    string `json:"civName,omitempty"`
	LeaderName string `json:"leaderName,omitempty"`
	GameID     string `json:"gameId,omitempty"`
}

type devServer struct {
	target string
	client *http.Client

	mu     sync.Mutex
	status int
	posts  []post
}

func newDevServer(target string, status int) *devServer {
	return &devServer{
		target: target,
		status: status,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (d *devServer) routes() *http.ServeMux {
	mux := http.NewServeMux()

	// Discord-compatible webhook sink.
	mux.HandleFunc("POST /webhook", func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		var body struct {
			Content string `json:"content"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Content == "" {
			http.Error(w, `{"message": "Cannot send an empty message", "code": 50006}`, http.StatusBadRequest)
			return
		}
		d.mu.Lock()
		d.posts = append(d.posts, post{Content: body.Content, ReceivedAt: time.Now().UTC()})
		status := d.status
		d.mu.Unlock()
		log.Printf("devapi: webhook post (%d chars) -> %d", len(body.Content), status)
		w.WriteHeader(status)
	})

	mux.HandleFunc("GET /messages", func(w http.ResponseWriter, _ *http.Request) {
		d.mu.Lock()
		out := append([]post(nil), d.posts...)
		d.mu.Unlock()
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_ = json.NewEncoder(w).Encode(out)
	})

	mux.HandleFunc("DELETE /messages", func(w http.ResponseWriter, _ *http.Request) {
		d.mu.Lock()
		d.posts = nil
		d.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})

	// Switch the webhook answer, e.g. POST /status?code=429.
	mux.HandleFunc("POST /status", func(w http.ResponseWriter, r *http.Request) {
		code, err := strconv.Atoi(r.URL.Query().Get("code"))
		if err != nil || code < 100 || code > 599 {
			http.Error(w, "code must be an HTTP status", http.StatusBadRequest)
			return
		}
		d.mu.Lock()
		d.status = code
		d.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})

	// Forward a fake turn notification to turnbell.
	mux.HandleFunc("POST /emit", func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		var req emitReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if req.GameName == "" || req.UserName == "" {
			http.Error(w, "gameName, userName required", http.StatusBadRequest)
			return
		}
		payload, _ := json.Marshal(req)
		resp, err := d.client.Post(d.target, "application/json", bytes.NewReader(payload))
		if err != nil {
			http.Error(w, "forward failed: "+err.Error(), http.StatusBadGateway)
			return
		}
		defer resp.Body.Close()
		w.Header().Set("Content-Type", resp.Header.Get("Content-Type"))
		w.WriteHeader(resp.StatusCode)
		_, _ = io.Copy(w, resp.Body)
	})

	return mux
}

func main() {
	var (
		addr   string
		target string
		status int
	)
	flag.StringVar(&addr, "addr", ":8765", "HTTP listen address")
	flag.StringVar(&target, "target", "http://localhost:8080/pydt-webhook", "turnbell webhook URL for /emit")
	flag.IntVar(&status, "status", http.StatusNoContent, "status code returned by the fake webhook")
	flag.Parse()

	d := newDevServer(target, status)
	log.Printf("devapi listening on %s (webhook=http://localhost%s/webhook target=%s)", addr, addr, target)

	srv := &http.Server{
		Addr:              addr,
		Handler:           d.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("listen: %v", err)
	}
}
