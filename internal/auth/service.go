package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"pos-service/internal/models"
	"pos-service/internal/repository"
	"pos-service/internal/util"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Revocations stores logged-out token ids until they expire.
type Revocations interface {
	RevokeToken(ctx context.Context, jti string, ttl time.Duration) error
	IsTokenRevoked(ctx context.Context, jti string) (bool, error)
}

type LoginResult struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
	User      *models.User `json:"user"`
}

type Service struct {
	users   repository.UserRepository
	tokens  *TokenManager
	revoked Revocations
}

func NewService(users repository.UserRepository, tokens *TokenManager, revoked Revocations) *Service {
	if revoked == nil {
		revoked = NewMemoryRevocations(nil)
	}
	return &Service{users: users, tokens: tokens, revoked: revoked}
}

func (s *Service) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	logger := util.LoggerFromContext(ctx)

	user, err := s.users.GetUserByUsername(ctx, username)
	if errors.Is(err, repository.ErrNotFound) {
		logger.Info("Login failed: unknown user", zap.String("username", username))
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		logger.Info("Login failed: wrong password", zap.String("username", username))
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrInactiveUser
	}

	token, claims, err := s.tokens.Issue(user.ID, user.Username, user.Role)
	if err != nil {
		return nil, err
	}

	logger.Info("User logged in", zap.Int64("user_id", user.ID), zap.String("role", user.Role))
	return &LoginResult{Token: token, ExpiresAt: claims.ExpiresAt.Time, User: user}, nil
}

// Logout revokes the token for the rest of its lifetime.
func (s *Service) Logout(ctx context.Context, claims *Claims) error {
	ttl := s.tokens.Remaining(claims)
	if ttl <= 0 {
		return nil
	}
	return s.revoked.RevokeToken(ctx, claims.ID, ttl)
}

// Authenticate parses a bearer token and rejects revoked ones. A failing
// revocation store is treated as not revoked.
func (s *Service) Authenticate(ctx context.Context, token string) (*Claims, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil, err
	}

	revoked, err := s.revoked.IsTokenRevoked(ctx, claims.ID)
	if err != nil {
		util.LoggerFromContext(ctx).Warn("Revocation check failed", zap.Error(err))
		return claims, nil
	}
	if revoked {
		return nil, ErrTokenRevoked
	}
	return claims, nil
}

// HashPassword is used to seed accounts.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// MemoryRevocations is the single-process fallback when Redis is not configured.
type MemoryRevocations struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

func NewMemoryRevocations(now func() time.Time) *MemoryRevocations {
	if now == nil {
		now = time.Now
	}
	return &MemoryRevocations{entries: make(map[string]time.Time), now: now}
}

func (m *MemoryRevocations) RevokeToken(_ context.Context, jti string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for id, exp := range m.entries {
		if !exp.After(now) {
			delete(m.entries, id)
		}
	}
	m.entries[jti] = now.Add(ttl)
	return nil
}

func (m *MemoryRevocations) IsTokenRevoked(_ context.Context, jti string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	exp, ok := m.entries[jti]
	return ok && exp.After(m.now()), nil
}
