// Package push delivers best-effort notifications to users who are not
// connected to the gateway.
package push

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Notification is what the external push channel renders on a device.
type Notification struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// Notifier sends a notification to every device of a user. It never
// returns an error: failures are logged and reported as false.
type Notifier interface {
	SendToUser(ctx context.Context, userID int64, n Notification) bool
}

// LogNotifier only logs. It is used when no push endpoint is configured.
type LogNotifier struct{}

func (LogNotifier) SendToUser(_ context.Context, userID int64, n Notification) bool {
	log.Info().Int64("user_id", userID).Str("title", n.Title).Msg("push: no endpoint configured, notification logged")
	return true
}
