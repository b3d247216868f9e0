// Package session holds the backend-issued access token for the current
// login. The token is issued and signature-verified by the hosted backend;
// the client only inspects registered claims (subject, expiry) to attach the
// right identity to outbound calls and to detect expiry early.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/akuznecov/whisperkit/internal/shared"
)

type Session struct {
	mu     sync.RWMutex
	raw    string
	userID string
	expiry time.Time
}

func New() *Session {
	return &Session{}
}

// SetToken parses and stores a backend-issued JWT. The signature is not
// checked client-side; only well-formedness and registered claims are read.
func (s *Session) SetToken(raw string) error {
	parser := jwt.NewParser()
	claims := &jwt.RegisteredClaims{}
	if _, _, err := parser.ParseUnverified(raw, claims); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return fmt.Errorf("%w: missing subject", shared.ErrInvalidToken)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.raw = raw
	s.userID = claims.Subject
	if claims.ExpiresAt != nil {
		s.expiry = claims.ExpiresAt.Time
	} else {
		s.expiry = time.Time{}
	}
	return nil
}

// Token returns the raw token for Authorization headers, or
// shared.ErrTokenExpired when it is expired or absent.
func (s *Session) Token() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.raw == "" {
		return "", shared.ErrInvalidToken
	}
	if !s.expiry.IsZero() && time.Now().After(s.expiry) {
		return "", shared.ErrTokenExpired
	}
	return s.raw, nil
}

// UserID returns the subject of the current token, empty when logged out.
func (s *Session) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

// Clear forgets the token. Called on logout.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.raw = ""
	s.userID = ""
	s.expiry = time.Time{}
}
