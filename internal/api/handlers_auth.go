// Roxy Bar - Point of Sale Order Synchronization and Event Distribution
// Copyright 2026 Antonio R. (antonio12761)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/antonio12761/roxy-bar-sub008

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/antonio12761/roxy-bar-sub008/internal/auth"
	"github.com/antonio12761/roxy-bar-sub008/internal/logging"
	"github.com/antonio12761/roxy-bar-sub008/internal/models"
)

type loginRequest struct {
	TenantID string `json:"tenant_id" validate:"required"`
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Token string         `json:"token"`
	User  models.UserRef `json:"user"`
}

// Login verifies credentials and issues a session token.
func (rt *Router) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, CodeInvalidRequest, "malformed request body", err)
		return
	}
	if err := rt.validate.Struct(&req); err != nil {
		respondError(w, http.StatusBadRequest, CodeInvalidRequest, "tenant_id, username and password are required", nil)
		return
	}

	token, ref, err := rt.auth.Login(r.Context(), req.TenantID, req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			respondError(w, http.StatusUnauthorized, CodeUnauthorized, "invalid credentials", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, CodeInternal, "login failed", err)
		return
	}

	logging.Info().
		Str("tenant_id", ref.TenantID).
		Str("username", ref.Username).
		Str("role", string(ref.Role)).
		Msg("staff login")
	respondJSON(w, http.StatusOK, loginResponse{Token: token, User: ref})
}

type createUserRequest struct {
	Username string `json:"username" validate:"required,min=2"`
	Password string `json:"password" validate:"required,min=8"`
	Role     string `json:"role" validate:"required"`
	Active   *bool  `json:"active"`
}

// CreateUser provisions a staff account in the caller's tenant.
func (rt *Router) CreateUser(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())

	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, CodeInvalidRequest, "malformed request body", err)
		return
	}
	if err := rt.validate.Struct(&req); err != nil {
		respondError(w, http.StatusBadRequest, CodeInvalidRequest, "username, password (min 8) and role are required", nil)
		return
	}
	role := models.Role(req.Role)
	if !role.Valid() {
		respondError(w, http.StatusBadRequest, CodeInvalidParameter, "unknown role", nil)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		respondError(w, http.StatusInternalServerError, CodeInternal, "could not store credentials", err)
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}
	user := &models.User{
		UserRef: models.UserRef{
			ID:       uuid.NewString(),
			Username: req.Username,
			TenantID: id.TenantID,
			Role:     role,
		},
		PasswordHash: hash,
		Active:       active,
		CreatedAt:    time.Now().UTC(),
	}
	if err := rt.store.UpsertUser(r.Context(), user); err != nil {
		respondError(w, http.StatusInternalServerError, CodeInternal, "could not save user", err)
		return
	}

	respondJSON(w, http.StatusCreated, user.UserRef)
}

// ListUsers returns every active staff account in the caller's tenant.
func (rt *Router) ListUsers(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())

	users, err := rt.store.FindUsersByTenantAndRoles(r.Context(), id.TenantID, models.AllRoles())
	if err != nil {
		respondError(w, http.StatusInternalServerError, CodeInternal, "could not list users", err)
		return
	}
	respondJSON(w, http.StatusOK, users)
}
