package service

import (
	"context"
	"time"

	"remo-voting/internal/domain"
)

// AuthService defines the interface for authentication operations
type AuthService interface {
	// ValidateToken checks a bearer token and returns the caller
	ValidateToken(ctx context.Context, token string) (*domain.Principal, error)

	// IssueToken signs a token for the user, used by tooling and tests
	IssueToken(userID int64, email string, ttl time.Duration) (string, error)
}

// Clock returns the current time. Services take one so tests can pin now.
type Clock func() time.Time

// SystemClock is the wall clock in UTC
func SystemClock() time.Time {
	return time.Now().UTC()
}

// Locker serialises lifecycle hook firings for one key across instances
type Locker interface {
	// TryLock returns a release func when the lock was acquired, nil otherwise
	TryLock(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// Services groups the application services handed to the HTTP layer
type Services struct {
	Auth      AuthService
	Voting    *VotingService
	Polls     *PollService
	Comments  *CommentService
	Lifecycle *LifecycleService
	Cache     *CacheService
}
