// internal/handlers/users.go
package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/ammerola/stockledger/internal/core/domain"
	"github.com/ammerola/stockledger/internal/core/ports"
)

// UserHandler serves user administration and the caller's own settings.
type UserHandler struct {
	users  ports.UserService
	logger *slog.Logger
}

func NewUserHandler(users ports.UserService, logger *slog.Logger) *UserHandler {
	return &UserHandler{
		users:  users,
		logger: logger.With(slog.String("handler", "users")),
	}
}

type CreateUserRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Role     string `json:"role"`
	Password string `json:"password"`
}

type UpdateUserRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

type UpdateProfileRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func parseRole(s string) domain.Role {
	return domain.Role(strings.ToUpper(strings.TrimSpace(s)))
}

// List handles GET /api/v1/users
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	users, err := h.users.List(ctx)
	if err != nil {
		respondServiceError(ctx, w, h.logger, "list users", err)
		return
	}
	if users == nil {
		users = []*domain.User{}
	}
	respondJSON(w, h.logger, http.StatusOK, map[string]any{"items": users})
}

// Get handles GET /api/v1/users/{id}
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := pathUUID(r, "id")
	if err != nil {
		respondValidation(w, h.logger, err.Error())
		return
	}

	user, err := h.users.Get(ctx, id)
	if err != nil {
		respondServiceError(ctx, w, h.logger, "get user", err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, user)
}

// Create handles POST /api/v1/users
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondValidation(w, h.logger, err.Error())
		return
	}

	user, err := h.users.Create(ctx, &domain.User{Email: req.Email, Name: req.Name, Role: parseRole(req.Role)}, req.Password)
	if err != nil {
		respondServiceError(ctx, w, h.logger, "create user", err)
		return
	}
	respondJSON(w, h.logger, http.StatusCreated, user)
}

// Update handles PUT /api/v1/users/{id}
func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := pathUUID(r, "id")
	if err != nil {
		respondValidation(w, h.logger, err.Error())
		return
	}

	var req UpdateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondValidation(w, h.logger, err.Error())
		return
	}

	user, err := h.users.Update(ctx, &domain.User{ID: id, Email: req.Email, Name: req.Name, Role: parseRole(req.Role)})
	if err != nil {
		respondServiceError(ctx, w, h.logger, "update user", err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, user)
}

// Delete handles DELETE /api/v1/users/{id}
func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := pathUUID(r, "id")
	if err != nil {
		respondValidation(w, h.logger, err.Error())
		return
	}
	actor, ok := requireActor(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.users.Delete(ctx, id, actor); err != nil {
		respondServiceError(ctx, w, h.logger, "delete user", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdateProfile handles PUT /api/v1/settings/profile
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actor, ok := requireActor(w, r, h.logger)
	if !ok {
		return
	}

	var req UpdateProfileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondValidation(w, h.logger, err.Error())
		return
	}

	user, err := h.users.UpdateProfile(ctx, actor, req.Name, req.Email)
	if err != nil {
		respondServiceError(ctx, w, h.logger, "update profile", err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, user)
}

// ChangePassword handles PUT /api/v1/settings/password
func (h *UserHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actor, ok := requireActor(w, r, h.logger)
	if !ok {
		return
	}

	var req ChangePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondValidation(w, h.logger, err.Error())
		return
	}

	if err := h.users.ChangePassword(ctx, actor, req.CurrentPassword, req.NewPassword); err != nil {
		respondServiceError(ctx, w, h.logger, "change password", err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, map[string]string{"message": "password updated"})
}
