package httpapi

import (
	"context"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"stokku/backend/internal/domain"
	"stokku/backend/internal/store"
)

type fakeUserStore struct {
	users map[string]domain.UserAccount
}

func (f *fakeUserStore) GetUser(_ context.Context, username string) (*domain.UserAccount, error) {
	user, ok := f.users[username]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &user, nil
}

func newFakeUsers(t *testing.T) *fakeUserStore {
	t.Helper()

	hash := func(plain string) string {
		h, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.MinCost)
		if err != nil {
			t.Fatalf("bcrypt: %v", err)
		}
		return string(h)
	}
	return &fakeUserStore{users: map[string]domain.UserAccount{
		"admin":  {Username: "admin", Password: hash("secret-admin"), Role: "admin", Active: true},
		"former": {Username: "former", Password: hash("left-the-shop"), Role: "cashier", Active: false},
	}}
}

func TestLoginAndParseToken(t *testing.T) {
	auth := NewAuthManager("unit-test-secret", time.Hour, newFakeUsers(t))

	resp, err := auth.Login(context.Background(), domain.LoginRequest{Username: "admin", Password: "secret-admin"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if resp.Role != "admin" || resp.AccessToken == "" {
		t.Fatalf("unexpected login response: %+v", resp)
	}

	actor, err := auth.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if actor.Username != "admin" || actor.Role != "admin" {
		t.Fatalf("unexpected actor: %+v", actor)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	auth := NewAuthManager("unit-test-secret", time.Hour, newFakeUsers(t))
	ctx := context.Background()

	if _, err := auth.Login(ctx, domain.LoginRequest{Username: "admin", Password: "wrong"}); err == nil {
		t.Fatalf("expected wrong password to fail")
	}
	if _, err := auth.Login(ctx, domain.LoginRequest{Username: "ghost", Password: "whatever"}); err == nil {
		t.Fatalf("expected unknown user to fail")
	}
	if _, err := auth.Login(ctx, domain.LoginRequest{Username: "former", Password: "left-the-shop"}); err == nil {
		t.Fatalf("expected inactive account to fail")
	}
}

func TestParseTokenRejectsTampering(t *testing.T) {
	auth := NewAuthManager("unit-test-secret", time.Hour, newFakeUsers(t))

	resp, err := auth.Login(context.Background(), domain.LoginRequest{Username: "admin", Password: "secret-admin"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	parts := strings.Split(resp.AccessToken, ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected token shape")
	}
	tampered := parts[0] + "." + parts[1] + ".AAAA" + parts[2][4:]
	if _, err := auth.ParseToken(tampered); err == nil {
		t.Fatalf("expected tampered token to be rejected")
	}

	other := NewAuthManager("a-different-secret", time.Hour, newFakeUsers(t))
	if _, err := other.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	auth := NewAuthManager("unit-test-secret", time.Hour, newFakeUsers(t))

	token, err := auth.sign("admin", "admin", time.Now().UTC().Add(-time.Minute))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := auth.ParseToken(token); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}
