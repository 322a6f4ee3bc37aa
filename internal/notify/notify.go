// Package notify defines the notification boundary C7 calls after a
// submission succeeds or terminally fails. The core only calls
// Notify(kind, to, metadata); the wire format of the actual email is
// left to the concrete implementation.
package notify

import "context"

// Notifier sends a notification about a submission outcome. kind is a
// short event name ("submit_success", "submit_failed_permanent"); to is
// typically a staff or student identifier the caller resolves to an
// address; metadata carries whatever context the concrete implementation
// needs to render a message.
type Notifier interface {
	Notify(ctx context.Context, kind, to string, metadata map[string]any) error
}
