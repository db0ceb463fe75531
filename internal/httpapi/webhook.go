package httpapi

import (
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/you/turnbell/internal/notify"
	"github.com/you/turnbell/internal/trace"
)

const deliveryHeader = "X-Delivery-ID"

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	d := trace.NewDelivery(senderIP(r))
	w.Header().Set(deliveryHeader, d.ID)
	defer d.Log(s.log, "webhook: delivery")

	ev, err := ParsePayload(r)
	if err != nil {
		if errors.Is(err, errUnreadable) {
			d.Mark(trace.StageFailed("decode"))
			s.metrics.IncWebhook("invalid")
			s.log.Warn("webhook: unreadable payload", "delivery", d.ID, "err", err)
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request data"})
			return
		}
		d.Mark(trace.StageFailed("validation"))
		s.metrics.IncWebhook("invalid")
		s.log.Warn("webhook: invalid payload", "delivery", d.ID, "err", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request"})
		return
	}
	ev.ReceivedAt = time.Now().UTC()
	d.Mark(trace.StageValid)
	d.Describe(ev.GameName, ev.UserName, ev.Round)
	s.log.Info("webhook: turn notification", "delivery", d.ID,
		"player", ev.UserName, "game", ev.GameName, "round", ev.Round)

	res, err := s.svc.HandleTurn(r.Context(), ev, d.ID)
	if res.Key != "" {
		d.Mark(trace.StageTracked)
	}

	var statusErr *notify.StatusError
	switch {
	case err == nil:
		d.Mark(trace.StageSent)
		writeJSON(w, http.StatusOK, map[string]string{"status": "success", "message": "Posted to Discord"})
	case errors.Is(err, notify.ErrNotConfigured):
		d.Mark(trace.StageFailed("not_configured"))
		s.log.Error("webhook: chat notifier not configured", "delivery", d.ID)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Discord webhook not configured"})
	case errors.As(err, &statusErr):
		d.Mark(trace.StageFailed("rejected"))
		s.log.Error("webhook: chat post rejected", "delivery", d.ID, "status", statusErr.Code, "body", statusErr.Body)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "Failed to post to Discord", "details": statusErr.Body})
	default:
		d.Mark(trace.StageFailed("unreachable"))
		s.log.Error("webhook: chat post failed", "delivery", d.ID, "err", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "Failed to reach Discord"})
	}
}
