// Roxy Bar - Point of Sale Order Synchronization and Event Distribution
// Copyright 2026 Antonio R. (antonio12761)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/antonio12761/roxy-bar-sub008

package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/antonio12761/roxy-bar-sub008/internal/config"
	"github.com/antonio12761/roxy-bar-sub008/internal/logging"
	"github.com/antonio12761/roxy-bar-sub008/internal/models"
	"github.com/antonio12761/roxy-bar-sub008/internal/storage"
)

// ErrInvalidCredentials is returned for a wrong username or password.
// The two cases are deliberately indistinguishable.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Service authenticates staff against the user store.
type Service struct {
	users storage.UserStore
	jwt   *JWTManager
}

// NewService wires the user store and token manager together.
func NewService(users storage.UserStore, jwt *JWTManager) *Service {
	return &Service{users: users, jwt: jwt}
}

// Login verifies the credentials and returns a signed token plus the
// authenticated identity.
func (s *Service) Login(ctx context.Context, tenantID, username, password string) (string, models.UserRef, error) {
	user, err := s.users.GetUserByUsername(ctx, tenantID, username)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			// Burn a comparison anyway so unknown users cost the
			// same as wrong passwords.
			_ = bcrypt.CompareHashAndPassword([]byte("$2a$10$0000000000000000000000000000000000000000000000000000"), []byte(password))
			return "", models.UserRef{}, ErrInvalidCredentials
		}
		return "", models.UserRef{}, fmt.Errorf("look up user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", models.UserRef{}, ErrInvalidCredentials
	}

	ref := user.Ref()
	token, err := s.jwt.GenerateToken(ref)
	if err != nil {
		return "", models.UserRef{}, err
	}
	return token, ref, nil
}

// Validate parses a token and returns the staff identity it carries.
func (s *Service) Validate(tokenString string) (*Claims, error) {
	return s.jwt.ValidateToken(tokenString)
}

// BootstrapAdmin creates the configured admin account in the given
// tenant when it does not exist yet. Called once at startup.
func (s *Service) BootstrapAdmin(ctx context.Context, tenantID string, cfg *config.SecurityConfig) error {
	if cfg.AdminUsername == "" {
		return nil
	}

	_, err := s.users.GetUserByUsername(ctx, tenantID, cfg.AdminUsername)
	if err == nil {
		return nil
	}
	if !errors.Is(err, storage.ErrUserNotFound) {
		return fmt.Errorf("check admin account: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	user := &models.User{
		UserRef: models.UserRef{
			ID:       uuid.NewString(),
			Username: cfg.AdminUsername,
			TenantID: tenantID,
			Role:     models.RoleAdmin,
		},
		PasswordHash: string(hash),
		Active:       true,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.users.UpsertUser(ctx, user); err != nil {
		return fmt.Errorf("create admin account: %w", err)
	}

	logging.Info().
		Str("tenant_id", tenantID).
		Str("username", cfg.AdminUsername).
		Msg("admin account bootstrapped")
	return nil
}

// HashPassword hashes a plaintext password for storage.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}
