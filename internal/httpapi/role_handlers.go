package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"authgate.org/internal/audit"
	"authgate.org/internal/auth"
)

type roleResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type createRoleRequest struct {
	Name string `json:"name"`
}

func (a *API) handleRolesCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		roles, err := a.auth.Roles(r.Context())
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "listing roles failed")
			return
		}
		out := make([]roleResponse, 0, len(roles))
		for _, role := range roles {
			out = append(out, roleResponse{ID: role.ID, Name: role.Name, CreatedAt: role.CreatedAt})
		}
		writeJSON(w, http.StatusOK, out)
	case http.MethodPost:
		var req createRoleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		role, err := a.auth.CreateRole(r.Context(), req.Name)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrInvalidInput):
				writeError(w, r, http.StatusBadRequest, "role name is required")
			case errors.Is(err, auth.ErrAlreadyExists):
				writeError(w, r, http.StatusConflict, "role already exists")
			default:
				writeError(w, r, http.StatusInternalServerError, "creating role failed")
			}
			return
		}
		_ = audit.LogEvent(r.Context(), "role.create", map[string]any{"role": role.Name})
		writeJSON(w, http.StatusCreated, roleResponse{ID: role.ID, Name: role.Name, CreatedAt: role.CreatedAt})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleRoleResource(w http.ResponseWriter, r *http.Request) {
	name := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/roles/"), "/")
	if name == "" || strings.Contains(name, "/") {
		writeError(w, r, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	if err := a.auth.DeleteRole(r.Context(), name); err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "role not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "deleting role failed")
		return
	}
	_ = audit.LogEvent(r.Context(), "role.delete", map[string]any{"role": name})
	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted"})
}
