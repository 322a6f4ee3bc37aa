package notify

import (
	"context"
	"testing"
)

func TestNotifyWithoutTransportConfiguredIsANoop(t *testing.T) {
	n := NewMailNotifier("", "", "", "", "", "noreply@examsync.local")
	err := n.Notify(context.Background(), "submit_success", "staff@example.edu", map[string]any{"artifact_id": "abc"})
	if err != nil {
		t.Fatalf("expected no-op success, got %v", err)
	}
}
