package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/examsync/core/internal/apperr"
	"github.com/examsync/core/internal/lms"
	"github.com/examsync/core/internal/model"
	"github.com/examsync/core/internal/repository"
)

// StudentAuth drives the student login protocol: exchange
// LMS credentials for a web-service token via C6, encrypt the token at
// rest, and mint a session.
type StudentAuth struct {
	lmsClient   *lms.Client
	sessions    *repository.SessionRepository
	cipher      *TokenCipher
	serviceName string
	sessionTTL  time.Duration
}

// NewStudentAuth builds a StudentAuth.
func NewStudentAuth(lmsClient *lms.Client, sessions *repository.SessionRepository, cipher *TokenCipher, serviceName string, sessionTTL time.Duration) *StudentAuth {
	return &StudentAuth{
		lmsClient:   lmsClient,
		sessions:    sessions,
		cipher:      cipher,
		serviceName: serviceName,
		sessionTTL:  sessionTTL,
	}
}

// Login exchanges credentials for an LMS token, encrypts it, and creates
// a session with a 128-bit random id and default 24h expiry.
func (s *StudentAuth) Login(ctx context.Context, moodleUsername, moodlePassword string) (*model.StudentSession, error) {
	token, err := s.lmsClient.ExchangeToken(ctx, moodleUsername, moodlePassword, s.serviceName)
	if err != nil {
		if cerr, ok := err.(*lms.CallError); ok {
			return nil, apperr.Wrap(apperr.AuthInvalid, "LMS rejected credentials", cerr)
		}
		return nil, fmt.Errorf("exchange LMS token: %w", err)
	}

	encrypted, err := s.cipher.Encrypt([]byte(token))
	if err != nil {
		return nil, fmt.Errorf("encrypt LMS token: %w", err)
	}

	sessionID, err := NewSessionID()
	if err != nil {
		return nil, err
	}

	session, err := s.sessions.Create(ctx, sessionID, moodleUsername, encrypted, time.Now().Add(s.sessionTTL))
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

// Logout invalidates a session by deleting its row.
func (s *StudentAuth) Logout(ctx context.Context, sessionID string) error {
	return s.sessions.Delete(ctx, sessionID)
}

// DecryptToken loads a session and decrypts its LMS token, for C7's use
// within request scope only — the plaintext is never persisted.
func (s *StudentAuth) DecryptToken(ctx context.Context, sessionID string) (string, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return "", err
	}
	plaintext, err := s.cipher.Decrypt(session.EncryptedMoodleToken)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
