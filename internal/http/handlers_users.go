package httpx

import (
	"context"
	"net/http"

	"github.com/target/lms-access/internal/domain/access"
	domainauth "github.com/target/lms-access/internal/domain/auth"
	apperrors "github.com/target/lms-access/internal/errors"
	"github.com/target/lms-access/internal/ports"
	"github.com/target/lms-access/internal/service"
)

// ProfileServiceInterface defines the profile operations exposed over HTTP.
type ProfileServiceInterface interface {
	SetRole(ctx context.Context, caller access.Snapshot, targetID string, role domainauth.Role) (domainauth.Profile, error)
	CreateUser(ctx context.Context, caller access.Snapshot, in service.CreateUserInput) (domainauth.Profile, error)
	Get(ctx context.Context, caller access.Snapshot, id string) (domainauth.Profile, error)
	List(ctx context.Context, caller access.Snapshot, opts ports.ProfileListOptions) ([]domainauth.Profile, error)
}

// UserHandlers serves user and role management. Handlers expect the caller's snapshot in
// the request context, placed there by Guards.RequireRoles.
type UserHandlers struct {
	Svc ProfileServiceInterface
}

func callerSnapshot(r *http.Request) access.Snapshot {
	if s, ok := SnapshotFromContext(r.Context()); ok {
		return s
	}
	return access.AnonymousSnapshot()
}

type setRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=student lecturer admin"`
}

// SetRole changes a user's role.
// PUT /api/users/{id}/role.
func (h *UserHandlers) SetRole(w http.ResponseWriter, r *http.Request) {
	var req setRoleRequest
	if !DecodeAndValidate(w, r, &req) {
		return
	}
	p, err := h.Svc.SetRole(r.Context(), callerSnapshot(r), r.PathValue("id"), domainauth.Role(req.Role))
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, p)
}

type createUserRequest struct {
	Email       string `json:"email"        validate:"required,email"`
	Password    string `json:"password"     validate:"required"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"         validate:"omitempty,oneof=student lecturer admin"`
}

// CreateUser creates an identity and its profile.
// POST /api/users.
func (h *UserHandlers) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !DecodeAndValidate(w, r, &req) {
		return
	}
	p, err := h.Svc.CreateUser(r.Context(), callerSnapshot(r), service.CreateUserInput{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
		Role:        domainauth.Role(req.Role),
	})
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, p)
}

// GetUser returns one profile.
// GET /api/users/{id}.
func (h *UserHandlers) GetUser(w http.ResponseWriter, r *http.Request) {
	p, err := h.Svc.Get(r.Context(), callerSnapshot(r), r.PathValue("id"))
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, p)
}

// ListUsers lists profiles, optionally filtered by role.
// GET /api/users?role=<role>&limit=<n>&offset=<n>.
func (h *UserHandlers) ListUsers(w http.ResponseWriter, r *http.Request) {
	limit, offset := ParseLimitOffset(r, defaultUserListLimit, maxUserListLimit)
	opts := ports.ProfileListOptions{Limit: limit, Offset: offset}
	if raw := r.URL.Query().Get("role"); raw != "" {
		role, err := domainauth.ParseRole(raw)
		if err != nil {
			WriteAppError(w, apperrors.ValidationField("role", err.Error()))
			return
		}
		opts.Role = &role
	}

	out, err := h.Svc.List(r.Context(), callerSnapshot(r), opts)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"users": out, "limit": limit, "offset": offset})
}
