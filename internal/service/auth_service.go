package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/alexedwards/argon2id"

	"github.com/meridianhq/visitdesk/internal/domain"
	"github.com/meridianhq/visitdesk/internal/repo/postgres"
	"github.com/meridianhq/visitdesk/pkg/auth"
	"github.com/meridianhq/visitdesk/pkg/config"
)

var ErrInvalidCredentials = errors.New("invalid email or password")

type AuthService interface {
	Login(ctx context.Context, email, password string) (*domain.LoginRes, error)
	Register(ctx context.Context, email, password, name string) (*domain.User, error)
}

type authService struct {
	users postgres.UsersRepo
	cfg   *config.Config
}

func NewAuthService(users postgres.UsersRepo, cfg *config.Config) AuthService {
	return &authService{users: users, cfg: cfg}
}

func (s *authService) Login(ctx context.Context, email, password string) (*domain.LoginRes, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}

	match, err := argon2id.ComparePasswordAndHash(password, user.PasswordHash)
	if err != nil || !match {
		return nil, ErrInvalidCredentials
	}

	token, err := auth.NewAccessToken(user.ID, user.Email, user.Role, s.cfg.Auth.JWTSecret, s.cfg.Auth.AccessTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return &domain.LoginRes{
		AccessToken: token,
		ExpiresIn:   int64(s.cfg.Auth.AccessTokenTTL.Seconds()),
	}, nil
}

func (s *authService) Register(ctx context.Context, email, password, name string) (*domain.User, error) {
	hash, err := argon2id.CreateHash(password, argon2id.DefaultParams)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	return s.users.Create(ctx, email, hash, name)
}
