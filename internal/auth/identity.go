package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrTokenExpired = errors.New("session expired, sign in again")

// RegisterRequest is the body of POST /auth/register.
type RegisterRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	Password    string `json:"password"`
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UserInfo is the public part of a user.
type UserInfo struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
}

// AuthResponse is returned by register and login.
type AuthResponse struct {
	User  UserInfo `json:"user"`
	Token string   `json:"token"`
}

// Session is the identity of a client signed in with a server-issued token.
// The token is not verified here; the server does that on every request.
type Session struct {
	mu        sync.RWMutex
	user      UserInfo
	token     string
	expiresAt time.Time
	now       func() time.Time
}

// NewSession builds a session from a token issued by JWTManager.
func NewSession(user UserInfo, token string) (*Session, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if user.ID == "" {
		user.ID = claims.UserID
	}

	s := &Session{user: user, token: token, now: time.Now}
	if claims.ExpiresAt != nil {
		s.expiresAt = claims.ExpiresAt.Time
	}
	return s, nil
}

// Login signs in against the server at baseURL. A nil client means http.DefaultClient.
func Login(ctx context.Context, client *http.Client, baseURL, email, password string) (*Session, error) {
	if client == nil {
		client = http.DefaultClient
	}

	body, err := json.Marshal(LoginRequest{Email: email, Password: password})
	if err != nil {
		return nil, fmt.Errorf("failed to encode login request: %w", err)
	}

	url := strings.TrimRight(baseURL, "/") + "/auth/login"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach server: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, ErrInvalidCredentials
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("login failed: HTTP %d", resp.StatusCode)
	}

	var out AuthResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode login response: %w", err)
	}
	return NewSession(out.User, out.Token)
}

// UserID returns the signed-in user's ID.
func (s *Session) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user.ID
}

// User returns the signed-in user.
func (s *Session) User() UserInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

// Token returns the bearer token, or ErrTokenExpired once it has expired.
func (s *Session) Token(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.expiresAt.IsZero() && !s.now().Before(s.expiresAt) {
		return "", ErrTokenExpired
	}
	return s.token, nil
}

// SignOut forgets the user; afterwards UserID returns "".
func (s *Session) SignOut() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = UserInfo{}
	s.token = ""
}
