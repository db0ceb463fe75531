package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveRequest("/health", "GET", 200, time.Millisecond)
	m.IncWebhook("sent")
	m.IncTransition("first")
	m.AddReminders("sent", 2)
	m.IncReminderRuns()
	m.IncStoreErrors("get")
	m.IncWSClients(1)
	m.IncBroadcastDrops()
	m.IncRateLimited("/pydt-webhook")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 404 {
		t.Fatalf("expected 404 from nil handler, got %d", rec.Code)
	}
}

func TestHandlerExposesCounters(t *testing.T) {
	m := New()
	m.AddReminders("sent", 3)
	m.IncWebhook("ok")
	m.IncStoreErrors("upsert_turn")
	m.IncRateLimited("/pydt-webhook")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	text := string(body)

	for _, want := range []string{
		`turnbell_reminders_total{outcome="sent"} 3`,
		`turnbell_webhook_deliveries_total{outcome="ok"} 1`,
		`turnbell_store_errors_total{op="upsert_turn"} 1`,
		`turnbell_http_rate_limited_total{route="/pydt-webhook"} 1`,
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("metrics output missing %q\n%s", want, text)
		}
	}
}
