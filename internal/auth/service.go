package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vovakirdan/connectus-realtime/internal/store"
)

var (
	// ErrMissingToken is returned when no credential was presented.
	ErrMissingToken = errors.New("missing token")
	// ErrInvalidToken is returned when the token fails validation.
	ErrInvalidToken = errors.New("invalid token")
	// ErrUnknownUser is returned when the token names a user that does not exist.
	ErrUnknownUser = errors.New("unknown user")
)

// Service validates bearer tokens. It implements core.Authenticator.
type Service struct {
	users     store.UserStore
	jwtConfig *JWTConfig
}

// NewService creates a new authentication service. users is optional;
// when set, tokens for users absent from the store are rejected.
func NewService(users store.UserStore, jwtConfig *JWTConfig) *Service {
	return &Service{
		users:     users,
		jwtConfig: jwtConfig,
	}
}

// Authenticate resolves a bearer token to a user id.
func (s *Service) Authenticate(ctx context.Context, credential string) (int64, error) {
	credential = strings.TrimSpace(strings.TrimPrefix(credential, "Bearer "))
	if credential == "" {
		return 0, ErrMissingToken
	}

	claims, err := s.ValidateToken(credential)
	if err != nil {
		return 0, err
	}
	if claims.IsService() {
		return 0, fmt.Errorf("%w: service token has no user", ErrInvalidToken)
	}
	userID, err := claims.ResolveUserID()
	if err != nil {
		return 0, err
	}

	if s.users != nil {
		if _, err := s.users.GetUserByID(ctx, userID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return 0, fmt.Errorf("%w: %d", ErrUnknownUser, userID)
			}
			return 0, fmt.Errorf("lookup user: %w", err)
		}
	}

	return userID, nil
}

// IssueToken signs a token for the user with the configured secret.
func (s *Service) IssueToken(userID int64, username string) (string, error) {
	token, err := GenerateToken(s.jwtConfig, userID, username)
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return token, nil
}

// IssueServiceToken signs a service token for a backend caller.
func (s *Service) IssueServiceToken(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", errors.New("service name required")
	}
	token, err := GenerateServiceToken(s.jwtConfig, name)
	if err != nil {
		return "", fmt.Errorf("generate service token: %w", err)
	}
	return token, nil
}

// ValidateToken validates a JWT token and returns the claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	return ValidateToken(s.jwtConfig, tokenString)
}
