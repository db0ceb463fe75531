package httpapi

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

// statusWriter remembers what a handler wrote so the access log, the
// request metrics and panic recovery can see it.
type statusWriter struct {
	http.ResponseWriter
	code int
	size int64
}

func (w *statusWriter) WriteHeader(code int) {
	if w.code == 0 {
		w.code = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.code == 0 {
		w.code = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.size += int64(n)
	return n, err
}

// committed reports whether the status line has gone out.
func (w *statusWriter) committed() bool { return w.code != 0 }

func (w *statusWriter) status() int {
	if w.code == 0 {
		return http.StatusOK
	}
	return w.code
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// baseWriter returns the connection's own writer; websocket upgrades need
// its http.Hijacker.
func baseWriter(w http.ResponseWriter) http.ResponseWriter {
	if sw, ok := w.(*statusWriter); ok {
		return sw.ResponseWriter
	}
	return w
}

// senderLimiter throttles turn deliveries per sending address. Senders
// idle for longer than idle are swept once the table passes sweepAt.
type senderLimiter struct {
	clock   clockwork.Clock
	every   rate.Limit
	burst   int
	idle    time.Duration
	sweepAt int

	mu      sync.Mutex
	senders map[string]*sender
}

type sender struct {
	lim  *rate.Limiter
	seen time.Time
}

// newSenderLimiter returns nil, which admits everything, when rps or burst
// is not positive.
func newSenderLimiter(rps, burst int, clock clockwork.Clock) *senderLimiter {
	if rps <= 0 || burst <= 0 {
		return nil
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &senderLimiter{
		clock:   clock,
		every:   rate.Limit(rps),
		burst:   burst,
		idle:    5 * time.Minute,
		sweepAt: 1024,
		senders: make(map[string]*sender),
	}
}

// admit reports whether ip may deliver now. When it may not, wait is how
// long until its next token.
func (l *senderLimiter) admit(ip string) (ok bool, wait time.Duration) {
	if l == nil {
		return true, 0
	}
	now := l.clock.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	s, found := l.senders[ip]
	if !found {
		s = &sender{lim: rate.NewLimiter(l.every, l.burst)}
		l.senders[ip] = s
	}
	s.seen = now
	if len(l.senders) > l.sweepAt {
		l.sweep(now)
	}

	res := s.lim.ReserveN(now, 1)
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return false, delay
	}
	return true, 0
}

func (l *senderLimiter) sweep(now time.Time) {
	cutoff := now.Add(-l.idle)
	for ip, s := range l.senders {
		if s.seen.Before(cutoff) {
			delete(l.senders, ip)
		}
	}
}

func (l *senderLimiter) tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.senders)
}

// retryAfter renders a wait as whole seconds, never less than one.
func retryAfter(wait time.Duration) string {
	secs := int(math.Ceil(wait.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

// senderIP is the first X-Forwarded-For hop when the service sits behind a
// proxy, else the peer address.
func senderIP(r *http.Request) string {
	for _, hop := range strings.Split(r.Header.Get("X-Forwarded-For"), ",") {
		if hop = strings.TrimSpace(hop); hop != "" {
			return hop
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// originPolicy decides which dashboard origins may call the API from a
// browser. A nil policy sends no CORS headers and refuses nothing.
type originPolicy struct {
	any     bool
	allowed map[string]bool
}

func newOriginPolicy(origins []string) *originPolicy {
	p := &originPolicy{allowed: make(map[string]bool)}
	for _, o := range origins {
		switch o = strings.TrimSpace(o); o {
		case "":
		case "*":
			p.any = true
		default:
			p.allowed[o] = true
		}
	}
	if !p.any && len(p.allowed) == 0 {
		return nil
	}
	return p
}

func (p *originPolicy) permits(origin string) bool {
	if p == nil {
		return false
	}
	if !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
		return false
	}
	return p.any || p.allowed[origin]
}

// preflight answers OPTIONS for a route served by method.
func (p *originPolicy) preflight(method string) http.HandlerFunc {
	methods := method + ", " + http.MethodOptions
	return func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		switch {
		case p == nil || origin == "":
		case !p.permits(origin):
			w.WriteHeader(http.StatusForbidden)
			return
		default:
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Methods", methods)
			if asked := r.Header.Get("Access-Control-Request-Headers"); asked != "" {
				h.Set("Access-Control-Allow-Headers", asked)
			}
			h.Set("Access-Control-Max-Age", "300")
			h.Add("Vary", "Origin")
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// decorate sets CORS headers on a simple request. It returns false when
// the request names an origin the policy refuses.
func (p *originPolicy) decorate(w http.ResponseWriter, r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if p == nil || origin == "" {
		return true
	}
	if !p.permits(origin) {
		return false
	}
	w.Header().Set("Access-Control-Allow-Origin", origin)
	w.Header().Add("Vary", "Origin")
	return true
}
