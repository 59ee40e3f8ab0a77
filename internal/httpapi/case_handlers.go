package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"memorio.org/internal/auth"
	"memorio.org/internal/cases"
)

type bindFamilyRequest struct {
	FamilyUserID string `json:"family_user_id"`
}

func (a *API) handleCasesCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.createCase(w, r)
	default:
		methodNotAllowed(w, r, http.MethodPost)
	}
}

func (a *API) handleCaseResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/cases/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "not_found", "resource not found", nil)
		return
	}

	if id, ok := strings.CutSuffix(path, "/submit"); ok {
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.submitCase(w, r, strings.TrimSuffix(id, "/"))
		return
	}
	if id, ok := strings.CutSuffix(path, "/family"); ok {
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.bindFamily(w, r, strings.TrimSuffix(id, "/"))
		return
	}

	if strings.Contains(path, "/") {
		writeError(w, r, http.StatusNotFound, "not_found", "resource not found", nil)
		return
	}

	switch r.Method {
	case http.MethodGet:
		a.getCase(w, r, path)
	default:
		methodNotAllowed(w, r, http.MethodGet)
	}
}

func (a *API) createCase(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	var req cases.NewCase
	if err := a.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", err.Error(), nil)
		return
	}

	c, err := a.cases.Create(r.Context(), principal, req)
	if err != nil {
		a.writeCaseError(w, r, err)
		return
	}

	w.Header().Set("Location", "/v1/cases/"+c.ID)
	writeJSON(w, http.StatusCreated, c)
}

func (a *API) getCase(w http.ResponseWriter, r *http.Request, id string) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	c, err := a.cases.Get(r.Context(), principal, id)
	if err != nil {
		a.writeCaseError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (a *API) bindFamily(w http.ResponseWriter, r *http.Request, id string) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	if principal.Role != auth.RoleDirector && principal.Role != auth.RoleAdmin {
		writeError(w, r, http.StatusForbidden, "forbidden", "only directors can bind family members", nil)
		return
	}
	var req bindFamilyRequest
	if err := a.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", err.Error(), nil)
		return
	}
	if strings.TrimSpace(req.FamilyUserID) == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "family_user_id is required", nil)
		return
	}

	if err := a.cases.BindFamily(r.Context(), id, req.FamilyUserID); err != nil {
		a.writeCaseError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// submitCase records the intake submission and immediately runs the
// balancer, so a family's single action covers both steps.
func (a *API) submitCase(w http.ResponseWriter, r *http.Request, id string) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	c, err := a.cases.Submit(r.Context(), principal, id)
	if err != nil {
		a.writeCaseError(w, r, err)
		return
	}

	resp := map[string]any{
		"success": true,
		"case":    c,
	}
	if a.balancer != nil {
		if result, err := a.balancer.Assign(r.Context(), id, principal); err == nil {
			resp["assignment"] = assignResponse(result)
		}
		// Assignment failures never undo the submission; the family can
		// retry via /v1/assign-worker.
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) writeCaseError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, cases.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, "invalid_request", err.Error(), nil)
	case errors.Is(err, cases.ErrForbidden):
		writeError(w, r, http.StatusForbidden, "forbidden", err.Error(), nil)
	case errors.Is(err, cases.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not_found", "case not found", nil)
	case errors.Is(err, cases.ErrInvalidTransition):
		writeError(w, r, http.StatusConflict, "invalid_transition", err.Error(), nil)
	default:
		writeError(w, r, http.StatusInternalServerError, "internal_error", "internal error", nil)
	}
}
