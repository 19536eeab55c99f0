package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nikydiazc/tareas-service/internal/task"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func TestRoleFor(t *testing.T) {
	cases := []struct {
		username string
		want     task.Role
	}{
		{"crear_tarea", task.RoleCreator},
		{"administrador", task.RoleAdmin},
		{"maria", task.RoleFulfiller},
		{"", task.RoleFulfiller},
	}
	for _, tc := range cases {
		if got := RoleFor(tc.username); got != tc.want {
			t.Fatalf("RoleFor(%q) = %q, want %q", tc.username, got, tc.want)
		}
	}
}

func TestTokenRoundTrip(t *testing.T) {
	claims := BuildClaims("administrador", time.Hour)
	token, err := SignToken(claims, testSecret)
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}

	parsed, err := ParseToken(token, testSecret)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if parsed.Username != "administrador" {
		t.Fatalf("unexpected username: %q", parsed.Username)
	}
	if parsed.ID == "" {
		t.Fatal("token id must be set")
	}
}

func TestParseRejectsWrongSecret(t *testing.T) {
	claims := BuildClaims("maria", time.Hour)
	token, err := SignToken(claims, testSecret)
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	if _, err := ParseToken(token, []byte("another-secret-another-secret-xx")); err == nil {
		t.Fatal("expected parse failure with wrong secret")
	}
}

func TestProviderAuthorize(t *testing.T) {
	provider := NewProvider(testSecret, nil)

	claims := BuildClaims("crear_tarea", time.Hour)
	token, err := SignToken(claims, testSecret)
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}

	user, role, err := provider.Authorize(context.Background(), token)
	if err != nil {
		t.Fatalf("authorize failed: %v", err)
	}
	if user != "crear_tarea" || role != task.RoleCreator {
		t.Fatalf("unexpected identity: %q %q", user, role)
	}

	if _, _, err := provider.Authorize(context.Background(), "not-a-token"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestProviderRejectsExpiredToken(t *testing.T) {
	provider := NewProvider(testSecret, nil)

	claims := BuildClaims("maria", -time.Minute)
	token, err := SignToken(claims, testSecret)
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	if _, _, err := provider.Authorize(context.Background(), token); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for expired token, got %v", err)
	}
}
