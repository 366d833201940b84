package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mmynk/holocron/internal/models"
)

type memUsers struct {
	byEmail map[string]*models.User
}

func (m *memUsers) CreateUser(_ context.Context, u *models.User) error {
	m.byEmail[u.Email] = u
	return nil
}

func (m *memUsers) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	return m.byEmail[email], nil
}

func (m *memUsers) GetUserByID(_ context.Context, id string) (*models.User, error) {
	for _, u := range m.byEmail {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, nil
}

func TestPasswordAuthenticator(t *testing.T) {
	ctx := context.Background()
	a := NewPasswordAuthenticator(&memUsers{byEmail: map[string]*models.User{}})

	t.Run("weak password", func(t *testing.T) {
		if _, err := a.Register(ctx, "a@example.com", "A", "short"); !errors.Is(err, ErrWeakPassword) {
			t.Errorf("err = %v, want ErrWeakPassword", err)
		}
	})

	user, err := a.Register(ctx, "a@example.com", "Alice", "correct horse")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if user.PasswordHash == "correct horse" {
		t.Error("password stored in clear text")
	}

	t.Run("duplicate email", func(t *testing.T) {
		if _, err := a.Register(ctx, "a@example.com", "Other", "correct horse"); !errors.Is(err, ErrEmailExists) {
			t.Errorf("err = %v, want ErrEmailExists", err)
		}
	})

	t.Run("authenticate", func(t *testing.T) {
		got, err := a.Authenticate(ctx, "a@example.com", "correct horse")
		if err != nil || got.ID != user.ID {
			t.Errorf("Authenticate = %+v, %v", got, err)
		}
		if _, err := a.Authenticate(ctx, "a@example.com", "wrong password"); !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("wrong password err = %v", err)
		}
		if _, err := a.Authenticate(ctx, "nobody@example.com", "correct horse"); !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("unknown user err = %v", err)
		}
	})
}

func TestJWTManager(t *testing.T) {
	m := NewJWTManager("secret", time.Hour)
	user := &models.User{ID: "u1", Email: "a@example.com", DisplayName: "Alice"}

	token, err := m.Generate(user)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	claims, err := m.Validate(token)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if claims.UserID != "u1" || claims.Name != "Alice" {
		t.Errorf("claims = %+v", claims)
	}

	if _, err := NewJWTManager("other", time.Hour).Validate(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("foreign secret err = %v, want ErrInvalidToken", err)
	}

	expired, _ := NewJWTManager("secret", -time.Minute).Generate(user)
	if _, err := m.Validate(expired); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expired err = %v, want ErrInvalidToken", err)
	}

	t.Run("expires after the ttl", func(t *testing.T) {
		later := NewJWTManager("secret", time.Hour)
		later.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		if _, err := later.Validate(token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("err = %v, want ErrInvalidToken", err)
		}
	})

	t.Run("other signing method", func(t *testing.T) {
		hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, &Claims{UserID: "u1"}).SignedString([]byte("secret"))
		if err != nil {
			t.Fatalf("SignedString failed: %v", err)
		}
		if _, err := m.Validate(hs512); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("err = %v, want ErrInvalidToken", err)
		}
	})

	t.Run("token without a member", func(t *testing.T) {
		anon, err := m.Generate(&models.User{Email: "a@example.com"})
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}
		if _, err := m.Validate(anon); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("err = %v, want ErrInvalidToken", err)
		}
	})
}

func TestLogin(t *testing.T) {
	m := NewJWTManager("secret", time.Hour)
	user := &models.User{ID: "u1", Email: "a@example.com", DisplayName: "Alice"}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if r.URL.Path != "/auth/login" || req.Password != "correct horse" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		token, _ := m.Generate(user)
		_ = json.NewEncoder(w).Encode(AuthResponse{
			User:  UserInfo{ID: user.ID, Email: user.Email, DisplayName: user.DisplayName},
			Token: token,
		})
	}))
	defer srv.Close()

	ctx := context.Background()
	if _, err := Login(ctx, nil, srv.URL, "a@example.com", "nope"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("err = %v, want ErrInvalidCredentials", err)
	}

	s, err := Login(ctx, nil, srv.URL+"/", "a@example.com", "correct horse")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if s.UserID() != "u1" || s.User().DisplayName != "Alice" {
		t.Errorf("session user = %+v", s.User())
	}
	token, err := s.Token(ctx)
	if err != nil || token == "" {
		t.Fatalf("Token = %q, %v", token, err)
	}

	s.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := s.Token(ctx); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("err = %v, want ErrTokenExpired", err)
	}

	s.SignOut()
	if s.UserID() != "" {
		t.Error("UserID should be empty after SignOut")
	}
}
