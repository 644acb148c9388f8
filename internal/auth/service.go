package auth

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidToken is returned when a token cannot be verified.
	ErrInvalidToken = errors.New("invalid token")
	// ErrInvalidIdentity is returned when an identity doesn't meet constraints.
	ErrInvalidIdentity = errors.New("invalid identity")
)

const maxIdentityLength = 64

// Service verifies bearer tokens and issues tokens for operator tooling.
// Account management lives outside this server; a verified subject is the identity.
type Service struct {
	jwtConfig *JWTConfig
}

// NewService creates a new authentication service.
func NewService(jwtConfig *JWTConfig) *Service {
	return &Service{jwtConfig: jwtConfig}
}

// IssueToken returns a signed token for identity.
func (s *Service) IssueToken(identity, name string) (string, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" || len(identity) > maxIdentityLength {
		return "", ErrInvalidIdentity
	}

	token, err := GenerateToken(s.jwtConfig, identity, name)
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return token, nil
}

// Authenticate validates token and returns the identity it was issued for.
func (s *Service) Authenticate(token string) (string, error) {
	claims, err := ValidateToken(s.jwtConfig, token)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims.Subject, nil
}
