package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type memStore struct {
	data map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{data: map[string][]byte{}}
}

func (s *memStore) Get(key string) ([]byte, error) {
	v, ok := s.data[key]
	if !ok {
		return nil, nil
	}
	return v, nil
}

func (s *memStore) Set(key string, value []byte) error {
	s.data[key] = value
	return nil
}

func (s *memStore) Delete(key string) error {
	delete(s.data, key)
	return nil
}

func signedToken(t *testing.T, exp *time.Time) string {
	t.Helper()
	claims := jwt.MapClaims{"user_id": 7}
	if exp != nil {
		claims["exp"] = exp.Unix()
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestSaveAndToken(t *testing.T) {
	creds := NewCredentials(newMemStore())

	if _, err := creds.Token(); !errors.Is(err, ErrNoToken) {
		t.Errorf("Token() before Save: err = %v, want ErrNoToken", err)
	}

	if err := creds.Save("tok-123"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := creds.Token()
	if err != nil || got != "tok-123" {
		t.Errorf("Token() = %q, %v; want %q, nil", got, err, "tok-123")
	}

	if err := creds.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, err := creds.Token(); !errors.Is(err, ErrNoToken) {
		t.Errorf("Token() after Clear: err = %v, want ErrNoToken", err)
	}
}

func TestExpired(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name  string
		token string
		want  bool
	}{
		{"no token stored", "", true},
		{"expired token", "past", true},
		{"live token", "future", false},
		{"token without exp claim", "noexp", false},
		{"opaque non-jwt token", "not-a-jwt", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			creds := NewCredentials(newMemStore())
			switch tt.token {
			case "":
			case "past":
				creds.Save(signedToken(t, &past))
			case "future":
				creds.Save(signedToken(t, &future))
			case "noexp":
				creds.Save(signedToken(t, nil))
			default:
				creds.Save(tt.token)
			}

			if got := creds.Expired(now); got != tt.want {
				t.Errorf("Expired() = %v, want %v", got, tt.want)
			}
		})
	}
}
