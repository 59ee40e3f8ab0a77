package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"memorio.org/internal/assign"
	"memorio.org/internal/cases"
	"memorio.org/internal/obs"
)

type assignWorkerRequest struct {
	CaseID string `json:"case_id"`
}

func (a *API) handleAssignWorker(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if a.balancer == nil {
		writeError(w, r, http.StatusServiceUnavailable, "unavailable", "assignment disabled", nil)
		return
	}
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	var req assignWorkerRequest
	if err := a.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", err.Error(), nil)
		return
	}
	caseID := strings.TrimSpace(req.CaseID)
	if caseID == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "case_id is required", nil)
		return
	}

	result, err := a.balancer.Assign(r.Context(), caseID, principal)
	if err != nil {
		a.writeAssignError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, assignResponse(result))
}

func assignResponse(result *assign.Result) map[string]any {
	if !result.Assigned {
		obs.ObserveAssignment("unassigned")
		return map[string]any{
			"success":  true,
			"assigned": false,
			"message":  "No editors are currently available. Our team has been notified and will assign one shortly.",
		}
	}
	if result.AlreadyAssigned {
		obs.ObserveAssignment("already_assigned")
		return map[string]any{
			"success":   true,
			"assigned":  true,
			"editor_id": result.EditorID,
			"message":   "An editor is already working on this tribute.",
		}
	}
	obs.ObserveAssignment("assigned")
	return map[string]any{
		"success":     true,
		"assigned":    true,
		"editor_id":   result.EditorID,
		"editor_name": result.EditorName,
		"message":     "Your tribute has been assigned to an editor.",
	}
}

func (a *API) writeAssignError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, assign.ErrForbidden):
		obs.ObserveAssignment("forbidden")
		writeError(w, r, http.StatusForbidden, "forbidden", "this case does not belong to you", nil)
	case errors.Is(err, cases.ErrNotFound):
		obs.ObserveAssignment("not_found")
		writeError(w, r, http.StatusNotFound, "not_found", "case not found", nil)
	default:
		obs.ObserveAssignment("error")
		writeError(w, r, http.StatusInternalServerError, "internal_error", "assignment temporarily unavailable", nil)
	}
}
