package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// URLSource yields the current webhook URL. An empty URL means not configured.
type URLSource func() (string, error)

// StaticURL wraps a fixed webhook URL.
func StaticURL(u string) URLSource {
	return func() (string, error) { return u, nil }
}

// Discord posts messages through a channel webhook.
type Discord struct {
	url    URLSource
	client *http.Client
}

// NewDiscord builds a Discord notifier. A nil client gets one with timeout.
func NewDiscord(url URLSource, client *http.Client, timeout time.Duration) *Discord {
	if client == nil {
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	if url == nil {
		url = StaticURL("")
	}
	return &Discord{url: url, client: client}
}

func (d *Discord) Name() string { return "discord" }

func (d *Discord) Mention(chatID string) string { return "<@" + chatID + ">" }

func (d *Discord) Everyone() string { return "@everyone" }

// Send succeeds only on 204 No Content, which is what Discord answers for an
// accepted webhook post without ?wait=true.
func (d *Discord) Send(ctx context.Context, text string) error {
	target, err := d.url()
	if err != nil {
		return errors.Wrapf(ErrNotConfigured, "discord webhook url: %v", err)
	}
	target = strings.TrimSpace(target)
	if target == "" {
		return ErrNotConfigured
	}

	payload, err := json.Marshal(map[string]string{"content": text})
	if err != nil {
		return errors.Wrap(err, "encode discord payload")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "build discord request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "post discord webhook")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &StatusError{Service: "discord", Code: resp.StatusCode, Body: string(body)}
}

// Configured reports whether a webhook URL is currently available.
func (d *Discord) Configured() bool {
	u, err := d.url()
	return err == nil && strings.TrimSpace(u) != ""
}
