package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"authgate.org/internal/audit"
	"authgate.org/internal/auth"
)

type userResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func userResponseFrom(u *auth.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

type updateUserRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type assignRoleRequest struct {
	Role string `json:"role"`
}

func (a *API) handleUsersCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	principal, _ := auth.PrincipalFromContext(r.Context())
	if !principal.HasRole("admin") {
		writeError(w, r, http.StatusForbidden, "admin role required")
		return
	}
	users, err := a.auth.Users(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "listing users failed")
		return
	}
	out := make([]userResponse, 0, len(users))
	for _, u := range users {
		out = append(out, userResponseFrom(u))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleUserResource routes /v1/users/{id}, /v1/users/{id}/password and
// /v1/users/{id}/roles[/{name}].
func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/users/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if parts[0] == "" {
		writeError(w, r, http.StatusNotFound, "not found")
		return
	}
	id := parts[0]

	principal, _ := auth.PrincipalFromContext(r.Context())
	self := principal.User != nil && principal.User.ID == id
	if !self && !principal.HasRole("admin") {
		writeError(w, r, http.StatusForbidden, "admin role required")
		return
	}

	switch {
	case len(parts) == 1:
		a.handleUser(w, r, id)
	case len(parts) == 2 && parts[1] == "password":
		a.handleChangePassword(w, r, id, self)
	case len(parts) == 2 && parts[1] == "roles":
		a.handleUserRoles(w, r, id, principal)
	case len(parts) == 3 && parts[1] == "roles":
		a.handleRemoveUserRole(w, r, id, parts[2], principal)
	default:
		writeError(w, r, http.StatusNotFound, "not found")
	}
}

func (a *API) handleUser(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		user, err := a.auth.User(r.Context(), id)
		if err != nil {
			userError(w, r, err, "loading user failed")
			return
		}
		writeJSON(w, http.StatusOK, userResponseFrom(user))
	case http.MethodPut:
		var req updateUserRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		user, err := a.auth.User(r.Context(), id)
		if err != nil {
			userError(w, r, err, "loading user failed")
			return
		}
		if strings.TrimSpace(req.Username) != "" {
			user.Username = strings.TrimSpace(req.Username)
		}
		if strings.TrimSpace(req.Email) != "" {
			user.Email = strings.ToLower(strings.TrimSpace(req.Email))
		}
		if err := a.auth.UpdateUser(r.Context(), user); err != nil {
			if errors.Is(err, auth.ErrAlreadyExists) {
				writeError(w, r, http.StatusConflict, "username or email already taken")
				return
			}
			userError(w, r, err, "updating user failed")
			return
		}
		_ = audit.LogEvent(r.Context(), "user.update", map[string]any{"target": id})
		writeJSON(w, http.StatusOK, userResponseFrom(user))
	case http.MethodDelete:
		if err := a.auth.DeleteUser(r.Context(), id); err != nil {
			userError(w, r, err, "deleting user failed")
			return
		}
		_ = audit.LogEvent(r.Context(), "user.delete", map[string]any{"target": id})
		writeJSON(w, http.StatusOK, map[string]any{"status": "deleted"})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) handleChangePassword(w http.ResponseWriter, r *http.Request, id string, self bool) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	// The current password is verified, so only the owner can rotate it.
	if !self {
		writeError(w, r, http.StatusForbidden, "password can only be changed by its owner")
		return
	}
	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.auth.ChangePassword(r.Context(), id, req.CurrentPassword, req.NewPassword); err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			writeError(w, r, http.StatusUnauthorized, "invalid credentials")
		case errors.Is(err, auth.ErrInvalidInput):
			writeError(w, r, http.StatusBadRequest, "new password must be at least 8 characters")
		default:
			userError(w, r, err, "changing password failed")
		}
		return
	}
	_ = audit.LogEvent(r.Context(), "user.change_password", map[string]any{"target": id})
	a.deleteTokenCookies(w)
	writeJSON(w, http.StatusOK, map[string]any{"status": "password_changed"})
}

func (a *API) handleUserRoles(w http.ResponseWriter, r *http.Request, id string, principal auth.Principal) {
	switch r.Method {
	case http.MethodGet:
		roles, err := a.auth.UserRoles(r.Context(), id)
		if err != nil {
			userError(w, r, err, "listing roles failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"roles": roles})
	case http.MethodPost:
		if !principal.HasRole("admin") {
			writeError(w, r, http.StatusForbidden, "admin role required")
			return
		}
		var req assignRoleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if err := a.auth.AddRoleToUser(r.Context(), id, req.Role); err != nil {
			userError(w, r, err, "assigning role failed")
			return
		}
		_ = audit.LogEvent(r.Context(), "user.role_assigned", map[string]any{
			"target": id,
			"role":   req.Role,
		})
		writeJSON(w, http.StatusOK, map[string]any{"status": "role_assigned"})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleRemoveUserRole(w http.ResponseWriter, r *http.Request, id, role string, principal auth.Principal) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	if !principal.HasRole("admin") {
		writeError(w, r, http.StatusForbidden, "admin role required")
		return
	}
	if err := a.auth.RemoveRoleFromUser(r.Context(), id, role); err != nil {
		userError(w, r, err, "removing role failed")
		return
	}
	_ = audit.LogEvent(r.Context(), "user.role_removed", map[string]any{
		"target": id,
		"role":   role,
	})
	writeJSON(w, http.StatusOK, map[string]any{"status": "role_removed"})
}

func userError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	if errors.Is(err, auth.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, "user not found")
		return
	}
	writeError(w, r, http.StatusInternalServerError, fallback)
}
