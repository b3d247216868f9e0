package session

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akuznecov/whisperkit/internal/shared"
)

func signedToken(t *testing.T, claims jwt.RegisteredClaims) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("backend-key"))
	require.NoError(t, err)
	return raw
}

func TestSetToken_ExtractsSubject(t *testing.T) {
	s := New()
	raw := signedToken(t, jwt.RegisteredClaims{
		Subject:   "alice",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})

	require.NoError(t, s.SetToken(raw))
	assert.Equal(t, "alice", s.UserID())

	got, err := s.Token()
	require.NoError(t, err)
	assert.Equal(t, raw, got)
}

func TestSetToken_RejectsGarbage(t *testing.T) {
	s := New()
	err := s.SetToken("not-a-jwt")
	require.ErrorIs(t, err, shared.ErrInvalidToken)
}

func TestSetToken_RejectsMissingSubject(t *testing.T) {
	s := New()
	raw := signedToken(t, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	err := s.SetToken(raw)
	require.ErrorIs(t, err, shared.ErrInvalidToken)
}

func TestToken_Expired(t *testing.T) {
	s := New()
	raw := signedToken(t, jwt.RegisteredClaims{
		Subject:   "alice",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	})
	require.NoError(t, s.SetToken(raw))

	_, err := s.Token()
	require.ErrorIs(t, err, shared.ErrTokenExpired)
}

func TestToken_AbsentAfterClear(t *testing.T) {
	s := New()
	raw := signedToken(t, jwt.RegisteredClaims{
		Subject:   "alice",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	require.NoError(t, s.SetToken(raw))

	s.Clear()

	assert.Empty(t, s.UserID())
	_, err := s.Token()
	require.ErrorIs(t, err, shared.ErrInvalidToken)
}
