package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mmynk/holocron/internal/auth"
	"github.com/mmynk/holocron/internal/models"
)

var errMissingFields = errors.New("email, display name and password are required")

// AuthService implements user registration and login.
type AuthService struct {
	authenticator auth.Authenticator
	jwtManager    *auth.JWTManager
	logger        *slog.Logger
}

// NewAuthService creates a new authentication service.
func NewAuthService(authenticator auth.Authenticator, jwtManager *auth.JWTManager, logger *slog.Logger) *AuthService {
	return &AuthService{
		authenticator: authenticator,
		jwtManager:    jwtManager,
		logger:        logger,
	}
}

// Register creates a new user account and signs it in.
func (s *AuthService) Register(ctx context.Context, req auth.RegisterRequest) (*auth.AuthResponse, error) {
	s.logger.Info("Register request", "email", req.Email)

	if req.Email == "" || req.DisplayName == "" || req.Password == "" {
		return nil, errMissingFields
	}

	user, err := s.authenticator.Register(ctx, req.Email, req.DisplayName, req.Password)
	if err != nil {
		s.logger.Error("Registration failed", "email", req.Email, "error", err)
		return nil, err
	}

	resp, err := s.issue(user)
	if err != nil {
		return nil, err
	}

	s.logger.Info("User registered successfully", "user_id", user.ID, "email", user.Email)
	return resp, nil
}

// Login authenticates a user and returns a JWT token.
func (s *AuthService) Login(ctx context.Context, req auth.LoginRequest) (*auth.AuthResponse, error) {
	s.logger.Info("Login request", "email", req.Email)

	if req.Email == "" || req.Password == "" {
		return nil, auth.ErrInvalidCredentials
	}

	user, err := s.authenticator.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		s.logger.Warn("Login failed", "email", req.Email, "error", err)
		return nil, auth.ErrInvalidCredentials
	}

	resp, err := s.issue(user)
	if err != nil {
		return nil, err
	}

	s.logger.Info("User logged in successfully", "user_id", user.ID, "email", user.Email)
	return resp, nil
}

func (s *AuthService) issue(user *models.User) (*auth.AuthResponse, error) {
	token, err := s.jwtManager.Generate(user)
	if err != nil {
		s.logger.Error("Failed to generate token", "user_id", user.ID, "error", err)
		return nil, err
	}
	return &auth.AuthResponse{
		User: auth.UserInfo{
			ID:          user.ID,
			Email:       user.Email,
			DisplayName: user.DisplayName,
		},
		Token: token,
	}, nil
}
