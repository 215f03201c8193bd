package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/rifas-api/internal/domain"
	"golang.org/x/crypto/bcrypt"
)

// RoleAdmin is the only role the API issues.
const RoleAdmin = "admin"

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	Bearer    string    `json:"bearer"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TokenSigner issues bearer tokens.
type TokenSigner interface {
	Sign(subject, role string) (string, time.Time, error)
}

type Service interface {
	Login(ctx context.Context, req LoginRequest) (*LoginResponse, error)
}

type service struct {
	username     string
	passwordHash []byte
	signer       TokenSigner
}

// NewService gates the admin panel behind one username and a bcrypt hash.
// An empty hash or a nil signer disables login entirely.
func NewService(username, passwordHash string, signer TokenSigner) Service {
	return &service{username: username, passwordHash: []byte(passwordHash), signer: signer}
}

func (s *service) Login(_ context.Context, req LoginRequest) (*LoginResponse, error) {
	if len(s.passwordHash) == 0 || s.signer == nil {
		return nil, fmt.Errorf("admin login disabled: %w", domain.ErrUnauthorized)
	}
	userOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(s.username)) == 1
	if err := bcrypt.CompareHashAndPassword(s.passwordHash, []byte(req.Password)); err != nil || !userOK {
		return nil, fmt.Errorf("invalid credentials: %w", domain.ErrUnauthorized)
	}
	bearer, exp, err := s.signer.Sign(s.username, RoleAdmin)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	return &LoginResponse{Bearer: bearer, ExpiresAt: exp}, nil
}
