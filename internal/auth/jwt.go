// Roxy Bar - Point of Sale Order Synchronization and Event Distribution
// Copyright 2026 Antonio R. (antonio12761)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/antonio12761/roxy-bar-sub008

// Package auth issues and validates the JWT tokens that identify
// staff sessions, and verifies credentials against the user store.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/antonio12761/roxy-bar-sub008/internal/config"
	"github.com/antonio12761/roxy-bar-sub008/internal/models"
)

// Claims carries the staff identity inside a signed token.
type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	TenantID string `json:"tenant_id"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Ref converts the claims back into a user reference.
func (c *Claims) Ref() models.UserRef {
	return models.UserRef{
		ID:       c.UserID,
		Username: c.Username,
		TenantID: c.TenantID,
		Role:     models.Role(c.Role),
	}
}

// JWTManager creates and validates HMAC-SHA256 signed tokens.
type JWTManager struct {
	secret   []byte
	lifetime time.Duration
}

// NewJWTManager builds a manager from the security configuration.
// The secret is required; Validate enforces its minimum length before
// the process gets this far.
func NewJWTManager(cfg *config.SecurityConfig) (*JWTManager, error) {
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("jwt secret is required but was empty")
	}
	return &JWTManager{
		secret:   []byte(cfg.JWTSecret),
		lifetime: cfg.TokenLifetime,
	}, nil
}

// GenerateToken signs a token for an authenticated staff member. The
// token is valid for the configured lifetime; it is stateless and
// cannot be revoked before expiry.
func (m *JWTManager) GenerateToken(user models.UserRef) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID:   user.ID,
		Username: user.Username,
		TenantID: user.TenantID,
		Role:     string(user.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.lifetime)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken checks the signature, algorithm and time claims, and
// returns the embedded identity. Tokens signed with anything other
// than HMAC are rejected to prevent algorithm confusion.
func (m *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	if !models.Role(claims.Role).Valid() {
		return nil, fmt.Errorf("unknown role in token: %q", claims.Role)
	}
	return claims, nil
}
