// Roxy Bar - Point of Sale Order Synchronization and Event Distribution
// Copyright 2026 Antonio R. (antonio12761)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/antonio12761/roxy-bar-sub008

package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/antonio12761/roxy-bar-sub008/internal/config"
	"github.com/antonio12761/roxy-bar-sub008/internal/models"
	"github.com/antonio12761/roxy-bar-sub008/internal/storage"
	"github.com/antonio12761/roxy-bar-sub008/internal/storage/memory"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func testSecurityConfig() *config.SecurityConfig {
	return &config.SecurityConfig{
		JWTSecret:     testSecret,
		TokenLifetime: time.Hour,
	}
}

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	jwt, err := NewJWTManager(testSecurityConfig())
	if err != nil {
		t.Fatalf("NewJWTManager: %v", err)
	}
	return NewService(store, jwt), store
}

func seedUser(t *testing.T, store *memory.Store, username, password string, role models.Role) models.UserRef {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	user := &models.User{
		UserRef: models.UserRef{
			ID:       "user-" + username,
			Username: username,
			TenantID: "roxy",
			Role:     role,
		},
		PasswordHash: string(hash),
		Active:       true,
		CreatedAt:    time.Now().UTC(),
	}
	if err := store.UpsertUser(context.Background(), user); err != nil {
		t.Fatal(err)
	}
	return user.UserRef
}

func TestLoginRoundTrip(t *testing.T) {
	t.Parallel()
	svc, store := newTestService(t)
	seedUser(t, store, "anna", "segreto-lungo", models.RoleCameriere)

	token, ref, err := svc.Login(context.Background(), "roxy", "anna", "segreto-lungo")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if ref.Role != models.RoleCameriere {
		t.Errorf("role = %q, want CAMERIERE", ref.Role)
	}

	claims, err := svc.Validate(token)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if claims.Username != "anna" || claims.TenantID != "roxy" {
		t.Errorf("claims = %+v, want anna@roxy", claims)
	}
	if claims.Ref() != ref {
		t.Errorf("claims ref = %+v, want %+v", claims.Ref(), ref)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	t.Parallel()
	svc, store := newTestService(t)
	seedUser(t, store, "anna", "segreto-lungo", models.RoleCameriere)

	_, _, err := svc.Login(context.Background(), "roxy", "anna", "sbagliata")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
}

func TestLoginUnknownUserIndistinguishable(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)

	_, _, err := svc.Login(context.Background(), "roxy", "fantasma", "qualsiasi")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
}

func TestValidateRejectsTamperedToken(t *testing.T) {
	t.Parallel()
	svc, store := newTestService(t)
	ref := seedUser(t, store, "anna", "segreto-lungo", models.RoleCameriere)

	other, err := NewJWTManager(&config.SecurityConfig{
		JWTSecret:     "ffffffffffffffffffffffffffffffff",
		TokenLifetime: time.Hour,
	})
	if err != nil {
		t.Fatal(err)
	}
	forged, err := other.GenerateToken(ref)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Validate(forged); err == nil {
		t.Fatal("token signed with a different secret should be rejected")
	}
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	t.Parallel()
	jwt, err := NewJWTManager(&config.SecurityConfig{
		JWTSecret:     testSecret,
		TokenLifetime: -time.Minute,
	})
	if err != nil {
		t.Fatal(err)
	}
	token, err := jwt.GenerateToken(models.UserRef{ID: "u1", Username: "anna", TenantID: "roxy", Role: models.RoleCameriere})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := jwt.ValidateToken(token); err == nil {
		t.Fatal("expired token should be rejected")
	}
}

func TestBootstrapAdmin(t *testing.T) {
	t.Parallel()
	svc, store := newTestService(t)

	cfg := testSecurityConfig()
	cfg.AdminUsername = "admin"
	cfg.AdminPassword = "bootstrap-password"

	if err := svc.BootstrapAdmin(context.Background(), "roxy", cfg); err != nil {
		t.Fatalf("BootstrapAdmin: %v", err)
	}

	user, err := store.GetUserByUsername(context.Background(), "roxy", "admin")
	if err != nil {
		t.Fatalf("admin should exist: %v", err)
	}
	if user.Role != models.RoleAdmin {
		t.Errorf("role = %q, want ADMIN", user.Role)
	}

	// Idempotent on restart.
	if err := svc.BootstrapAdmin(context.Background(), "roxy", cfg); err != nil {
		t.Fatalf("second BootstrapAdmin: %v", err)
	}

	if _, _, err := svc.Login(context.Background(), "roxy", "admin", "bootstrap-password"); err != nil {
		t.Fatalf("admin login: %v", err)
	}
}

func TestBootstrapAdminDisabled(t *testing.T) {
	t.Parallel()
	svc, store := newTestService(t)

	if err := svc.BootstrapAdmin(context.Background(), "roxy", testSecurityConfig()); err != nil {
		t.Fatalf("BootstrapAdmin without config should be a no-op: %v", err)
	}
	if _, err := store.GetUserByUsername(context.Background(), "roxy", "admin"); !errors.Is(err, storage.ErrUserNotFound) {
		t.Fatalf("no account should be created, got %v", err)
	}
}
