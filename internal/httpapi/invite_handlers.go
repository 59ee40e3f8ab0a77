package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"memorio.org/internal/audit"
	"memorio.org/internal/auth"
	"memorio.org/internal/ids"
	"memorio.org/internal/login"
	"memorio.org/internal/notify"
	"memorio.org/internal/obs"
)

type inviteRequest struct {
	Email          string `json:"email"`
	Name           string `json:"name,omitempty"`
	Phone          string `json:"phone,omitempty"`
	OrganizationID string `json:"organization_id,omitempty"`
}

// handleInvite creates an invited account with a temporary password. The
// account activates itself on first successful login.
func (a *API) handleInvite(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if a.users == nil {
		writeError(w, r, http.StatusServiceUnavailable, "unavailable", "invites disabled", nil)
		return
	}
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	role := auth.Role(strings.TrimPrefix(r.URL.Path, "/v1/invites/"))
	if !role.Valid() {
		writeError(w, r, http.StatusNotFound, "not_found", "unknown role", nil)
		return
	}
	if !canInvite(principal.Role, role) {
		writeError(w, r, http.StatusForbidden, "forbidden", "you cannot invite this role", nil)
		return
	}

	var req inviteRequest
	if err := a.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", err.Error(), nil)
		return
	}
	email := login.NormalizeEmail(req.Email)
	if email == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "email is required", nil)
		return
	}

	orgID := req.OrganizationID
	if principal.Role == auth.RoleDirector {
		// Directors always invite into their own organization.
		orgID = principal.OrganizationID
	}

	tempPassword, err := auth.GenerateTempPassword(12)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal_error", "internal error", nil)
		return
	}
	hash, err := auth.HashPassword(tempPassword)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal_error", "internal error", nil)
		return
	}

	now := time.Now().UTC()
	user := &auth.User{
		ID:             ids.New(),
		OrganizationID: orgID,
		Email:          email,
		PasswordHash:   hash,
		Role:           role,
		Status:         auth.StatusInvited,
		Name:           strings.TrimSpace(req.Name),
		Phone:          strings.TrimSpace(req.Phone),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := a.users.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, auth.ErrAlreadyExists) {
			writeError(w, r, http.StatusConflict, "already_exists", "an account with this email already exists", nil)
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal_error", "internal error", nil)
		return
	}

	if a.notifier != nil {
		n := &notify.Notification{
			EventType:  notify.EventUserInvited,
			Recipients: []string{email},
			Status:     notify.StatusPending,
			Payload: map[string]any{
				"role":          string(role),
				"temp_password": tempPassword,
			},
			CreatedAt: now,
		}
		if err := a.notifier.Enqueue(r.Context(), n); err != nil {
			obs.LogRequest(map[string]any{
				"ts":    now.Format(time.RFC3339Nano),
				"level": "warn",
				"msg":   "invite notification enqueue failed",
				"error": err.Error(),
			})
		}
	}

	if a.auditLog != nil {
		a.auditLog.Record(r.Context(), audit.Event{
			Action:     "INVITE_USER",
			TargetType: "user",
			TargetID:   user.ID,
			Payload:    map[string]any{"role": string(role), "email": email},
		})
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"success":       true,
		"user":          user,
		"temp_password": tempPassword,
	})
}

func canInvite(by, target auth.Role) bool {
	switch by {
	case auth.RoleAdmin:
		return true
	case auth.RoleDirector:
		return target == auth.RoleFamily
	default:
		return false
	}
}
