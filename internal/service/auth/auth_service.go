package auth

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"remo-voting/internal/domain"
	"remo-voting/internal/service"
	"remo-voting/pkg/errors"
	"remo-voting/pkg/logger"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "remo-voting"

// Claims carried by voting tokens. The subject is the numeric user id.
type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Service implements the AuthService interface with HS256 tokens
type Service struct {
	secret []byte
	logger *logger.Logger
	now    func() time.Time
}

// NewService creates a new auth service
func NewService(secret string, logger *logger.Logger) *Service {
	return &Service{
		secret: []byte(secret),
		logger: logger,
		now:    time.Now,
	}
}

var _ service.AuthService = (*Service)(nil)

// ValidateToken parses and verifies a bearer token
func (s *Service) ValidateToken(ctx context.Context, tokenString string) (*domain.Principal, error) {
	if len(s.secret) == 0 {
		s.logger.Error("JWT secret not configured")
		return nil, errors.NewAuthenticationError("Token validation not configured")
	}
	if !isJWTToken(tokenString) {
		return nil, errors.NewAuthenticationError("Unrecognized token format")
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid {
		s.logger.WithError(err).Debug("JWT validation failed")
		return nil, errors.NewAuthenticationError("Invalid or expired token")
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return nil, errors.NewAuthenticationError("Invalid token: no user identifier")
	}

	s.logger.WithField("user_id", userID).Debug("JWT token validated successfully")
	return &domain.Principal{UserID: userID, Email: claims.Email}, nil
}

// IssueToken signs a token for the given user
func (s *Service) IssueToken(userID int64, email string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func isJWTToken(token string) bool {
	return token != "" && strings.Count(token, ".") == 2
}
