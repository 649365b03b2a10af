package auth

import (
	"context"
	"testing"
	"time"

	"remo-voting/pkg/logger"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsJWTToken(t *testing.T) {
	tests := []struct {
		name     string
		token    string
		expected bool
	}{
		{
			name:     "Valid JWT token",
			token:    "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9.eyJzdWIiOiIxIn0.sig",
			expected: true,
		},
		{
			name:     "Too few segments",
			token:    "abc.def",
			expected: false,
		},
		{
			name:     "Empty token",
			token:    "",
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isJWTToken(tt.token); got != tt.expected {
				t.Errorf("isJWTToken(%s) = %v, want %v", tt.token, got, tt.expected)
			}
		})
	}
}

func TestService_IssueAndValidate(t *testing.T) {
	svc := NewService("test-secret", logger.NewNop())

	token, err := svc.IssueToken(42, "rep@example.com", time.Hour)
	require.NoError(t, err)

	principal, err := svc.ValidateToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), principal.UserID)
	assert.Equal(t, "rep@example.com", principal.Email)
}

func TestService_RejectsBadTokens(t *testing.T) {
	svc := NewService("test-secret", logger.NewNop())
	other := NewService("other-secret", logger.NewNop())
	ctx := context.Background()

	foreign, err := other.IssueToken(42, "", time.Hour)
	require.NoError(t, err)
	_, err = svc.ValidateToken(ctx, foreign)
	assert.Error(t, err, "wrong signature")

	expired, err := svc.IssueToken(42, "", -time.Minute)
	require.NoError(t, err)
	_, err = svc.ValidateToken(ctx, expired)
	assert.Error(t, err, "expired")

	noSubject := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{RegisteredClaims: jwt.RegisteredClaims{
		Issuer:    issuer,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}})
	signed, err := noSubject.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	_, err = svc.ValidateToken(ctx, signed)
	assert.Error(t, err, "missing subject")

	_, err = svc.ValidateToken(ctx, "not-a-token")
	assert.Error(t, err)
}

func TestService_NoSecretConfigured(t *testing.T) {
	svc := NewService("", logger.NewNop())
	_, err := svc.ValidateToken(context.Background(), "a.b.c")
	assert.Error(t, err)
}
