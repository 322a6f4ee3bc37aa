// Package config loads all environment variables for the exam-ingestion core.
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the service.
type Config struct {
	// Server
	APIHost string
	APIPort string

	// Database
	DatabaseURL string

	// Auth
	SecretKey                string
	AccessTokenExpireMinutes int
	SessionExpireHours       int
	BcryptCost               int

	// Student LMS token encryption
	EncryptionKey []byte

	// LMS
	MoodleBaseURL    string
	MoodleAdminToken string
	LMSCallTimeoutMS int

	// Remote AI extraction
	HFSpaceURL           string
	ExtractionTimeoutS   int
	ExtractionConfidence float64

	// Upload
	UploadDir     string
	MaxFileSizeMB int

	// Retry worker
	RetryIntervalS   int
	RetryMaxAttempts int

	// Startup crash-guard
	StaleSubmittingMinutes int

	// Email notifications — external collaborator, config passthrough only
	SendgridAPIKey string
	SMTPHost       string
	SMTPPort       string
	SMTPUser       string
	SMTPPass       string
	SMTPTLS        bool
	MailFrom       string
	StaffNotifyTo  string

	// Timeouts
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{
		APIHost: envOr("API_HOST", "0.0.0.0"),
		APIPort: envOr("API_PORT", "8000"),

		DatabaseURL: os.Getenv("DATABASE_URL"),

		SecretKey:                os.Getenv("SECRET_KEY"),
		AccessTokenExpireMinutes: envInt("ACCESS_TOKEN_EXPIRE_MINUTES", 60),
		SessionExpireHours:       envInt("SESSION_EXPIRE_HOURS", 24),
		BcryptCost:               envInt("BCRYPT_COST", 12),

		MoodleBaseURL:    os.Getenv("MOODLE_BASE_URL"),
		MoodleAdminToken: os.Getenv("MOODLE_ADMIN_TOKEN"),
		LMSCallTimeoutMS: envInt("LMS_CALL_TIMEOUT_MS", 60000),

		HFSpaceURL:           os.Getenv("HF_SPACE_URL"),
		ExtractionTimeoutS:   envInt("EXTRACTION_TIMEOUT_S", 300),
		ExtractionConfidence: envFloat("EXTRACTION_CONFIDENCE_THRESHOLD", 0.75),

		UploadDir:     envOr("UPLOAD_DIR", "./uploads"),
		MaxFileSizeMB: envInt("MAX_FILE_SIZE_MB", 50),

		RetryIntervalS:   envInt("RETRY_INTERVAL_S", 60),
		RetryMaxAttempts: envInt("RETRY_MAX_ATTEMPTS", 5),

		StaleSubmittingMinutes: envInt("STALE_SUBMITTING_MINUTES", 15),

		SendgridAPIKey: os.Getenv("SENDGRID_API_KEY"),
		SMTPHost:       os.Getenv("SMTP_HOST"),
		SMTPPort:       envOr("SMTP_PORT", "587"),
		SMTPUser:       os.Getenv("SMTP_USER"),
		SMTPPass:       os.Getenv("SMTP_PASS"),
		SMTPTLS:        envBool("SMTP_TLS", true),
		MailFrom:       envOr("MAIL_FROM", "noreply@examsync.local"),
		StaffNotifyTo:  envOr("STAFF_NOTIFY_EMAIL", envOr("MAIL_FROM", "noreply@examsync.local")),

		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second, // AI extraction calls can be slow
		IdleTimeout:  60 * time.Second,
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("SECRET_KEY is required")
	}
	if cfg.MoodleBaseURL == "" {
		return nil, fmt.Errorf("MOODLE_BASE_URL is required")
	}

	encKeyHex := os.Getenv("ENCRYPTION_KEY")
	if encKeyHex == "" {
		return nil, fmt.Errorf("ENCRYPTION_KEY is required")
	}
	key, err := decodeEncryptionKey(encKeyHex)
	if err != nil {
		return nil, fmt.Errorf("ENCRYPTION_KEY: %w", err)
	}
	cfg.EncryptionKey = key

	return cfg, nil
}

// decodeEncryptionKey accepts either a raw 32-byte string or 64 hex characters,
// and requires exactly 32 bytes (AES-256).
func decodeEncryptionKey(raw string) ([]byte, error) {
	if len(raw) == 64 {
		if b, err := hex.DecodeString(raw); err == nil && len(b) == 32 {
			return b, nil
		}
	}
	if len(raw) == 32 {
		return []byte(raw), nil
	}
	return nil, fmt.Errorf("must be 32 bytes (or 64 hex characters), got %d characters", len(raw))
}

// Addr returns the listen address as "host:port".
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%s", c.APIHost, c.APIPort)
}

// AccessTokenExpiry returns the staff bearer token lifetime.
func (c *Config) AccessTokenExpiry() time.Duration {
	return time.Duration(c.AccessTokenExpireMinutes) * time.Minute
}

// SessionExpiry returns the student session lifetime.
func (c *Config) SessionExpiry() time.Duration {
	return time.Duration(c.SessionExpireHours) * time.Hour
}

// LMSCallTimeout returns the per-call LMS client deadline.
func (c *Config) LMSCallTimeout() time.Duration {
	return time.Duration(c.LMSCallTimeoutMS) * time.Millisecond
}

// ExtractionTimeout returns the AI extraction service deadline.
func (c *Config) ExtractionTimeout() time.Duration {
	return time.Duration(c.ExtractionTimeoutS) * time.Second
}

// MaxFileSizeBytes returns the configured upload size limit in bytes.
func (c *Config) MaxFileSizeBytes() int64 {
	return int64(c.MaxFileSizeMB) * 1024 * 1024
}

// RetryInterval returns the retry worker's scan interval.
func (c *Config) RetryInterval() time.Duration {
	return time.Duration(c.RetryIntervalS) * time.Second
}

// ExtractionEnabled reports whether remote AI extraction is configured.
func (c *Config) ExtractionEnabled() bool {
	return c.HFSpaceURL != ""
}

// AdminFeaturesEnabled reports whether Moodle-admin-only features are available.
func (c *Config) AdminFeaturesEnabled() bool {
	return c.MoodleAdminToken != ""
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
