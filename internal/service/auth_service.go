package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/sevans717/aphila-sub004/internal/domain"
	"github.com/sevans717/aphila-sub004/internal/security"
)

var ErrInvalidCredentials = errors.New("incorrect username or password")

// AuthService authenticates handshakes and issues tokens.
type AuthService struct {
	users  domain.UserRepository
	tokens *security.TokenService
	hash   *security.PasswordHasher
}

func NewAuthService(users domain.UserRepository, tokens *security.TokenService, hash *security.PasswordHasher) *AuthService {
	return &AuthService{
		users:  users,
		tokens: tokens,
		hash:   hash,
	}
}

type LoginInput struct {
	Username string
	Password string
}

type TokenResponse struct {
	AccessToken string
	TokenType   string
	User        *domain.User
}

// Authenticate resolves a bearer token to an active user. Every failure,
// including lookup errors, wraps domain.ErrAuthenticationFailed.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*domain.User, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: missing bearer token", domain.ErrAuthenticationFailed)
	}
	sub, err := s.tokens.Subject(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrAuthenticationFailed, err)
	}
	user, err := s.users.GetByUsername(ctx, sub)
	if err != nil {
		return nil, fmt.Errorf("%w: get user: %v", domain.ErrAuthenticationFailed, err)
	}
	if user == nil || !user.IsActive {
		return nil, fmt.Errorf("%w: user not found or inactive", domain.ErrAuthenticationFailed)
	}
	return user, nil
}

// Login checks a password and issues an access token usable on both the
// HTTP API and the websocket handshake.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*TokenResponse, error) {
	user, err := s.users.GetByUsername(ctx, in.Username)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil || !user.IsActive {
		return nil, ErrInvalidCredentials
	}
	if err := s.hash.Verify(in.Password, user.HashedPassword); err != nil {
		if !errors.Is(err, security.ErrPasswordMismatch) {
			log.Error().Err(err).Int64("user_id", user.ID).Msg("auth: stored password hash unusable")
		}
		return nil, ErrInvalidCredentials
	}

	token, err := s.tokens.CreateForUser(user.Username)
	if err != nil {
		return nil, fmt.Errorf("create token: %w", err)
	}
	return &TokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		User:        user,
	}, nil
}
