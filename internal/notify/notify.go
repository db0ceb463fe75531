// Package notify delivers turn announcements and reminders to a chat
// channel.
package notify

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

// ErrNotConfigured is returned when no destination is set up.
var ErrNotConfigured = errors.New("notify: destination not configured")

// Addresser renders chat-specific mentions.
type Addresser interface {
	Mention(chatID string) string
	Everyone() string
}

// Notifier posts plain text to the configured channel. Send returns nil
// only when the chat service acknowledged the message.
type Notifier interface {
	Addresser
	Name() string
	Send(ctx context.Context, text string) error
}

// StatusError is a response the chat service did not acknowledge.
type StatusError struct {
	Service string
	Code    int
	Body    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("notify: %s returned %d: %s", e.Service, e.Code, e.Body)
}
