package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/smtp"
)

const sendgridMailURL = "https://api.sendgrid.com/v3/mail/send"

// MailNotifier is the concrete Notifier used in production: SendGrid's
// HTTP API when an API key is configured, SMTP as a fallback, and a log
// line when neither is configured — mail delivery is optional
// infrastructure, not a hard dependency of the core workflow.
type MailNotifier struct {
	sendgridAPIKey string
	smtpHost       string
	smtpPort       string
	smtpUser       string
	smtpPass       string
	from           string
	httpClient     *http.Client
}

// NewMailNotifier builds a MailNotifier from config-sourced settings.
func NewMailNotifier(sendgridAPIKey, smtpHost, smtpPort, smtpUser, smtpPass, from string) *MailNotifier {
	return &MailNotifier{
		sendgridAPIKey: sendgridAPIKey,
		smtpHost:       smtpHost,
		smtpPort:       smtpPort,
		smtpUser:       smtpUser,
		smtpPass:       smtpPass,
		from:           from,
		httpClient:     &http.Client{},
	}
}

// Notify sends a short plaintext notification built from kind and
// metadata. The body format is intentionally minimal — the wire format
// of notification email is out of scope for this service.
func (n *MailNotifier) Notify(ctx context.Context, kind, to string, metadata map[string]any) error {
	subject := fmt.Sprintf("examsync: %s", kind)
	body := fmt.Sprintf("%s\n\n%v", kind, metadata)

	switch {
	case n.sendgridAPIKey != "":
		return n.sendViaSendgrid(ctx, to, subject, body)
	case n.smtpHost != "":
		return n.sendViaSMTP(to, subject, body)
	default:
		slog.Info("notification (no mail transport configured)", "kind", kind, "to", to, "metadata", metadata)
		return nil
	}
}

func (n *MailNotifier) sendViaSendgrid(ctx context.Context, to, subject, body string) error {
	payload := map[string]any{
		"personalizations": []map[string]any{
			{"to": []map[string]string{{"email": to}}},
		},
		"from":    map[string]string{"email": n.from},
		"subject": subject,
		"content": []map[string]string{
			{"type": "text/plain", "value": body},
		},
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal sendgrid payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sendgridMailURL, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("create sendgrid request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+n.sendgridAPIKey)

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sendgrid request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid returned status %d", resp.StatusCode)
	}
	return nil
}

func (n *MailNotifier) sendViaSMTP(to, subject, body string) error {
	addr := n.smtpHost + ":" + n.smtpPort
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n", n.from, to, subject, body)

	var auth smtp.Auth
	if n.smtpUser != "" {
		auth = smtp.PlainAuth("", n.smtpUser, n.smtpPass, n.smtpHost)
	}
	if err := smtp.SendMail(addr, auth, n.from, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("smtp send failed: %w", err)
	}
	return nil
}
