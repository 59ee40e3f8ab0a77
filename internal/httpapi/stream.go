package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"memorio.org/internal/auth"
)

// Stream handles Server-Sent Events for the audit feed. Admin only.
func (a *API) Stream(w http.ResponseWriter, r *http.Request) {
	if a.feed == nil {
		writeError(w, r, http.StatusServiceUnavailable, "unavailable", "streaming disabled", nil)
		return
	}
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	if principal.Role != auth.RoleAdmin {
		writeError(w, r, http.StatusForbidden, "forbidden", "admin access required", nil)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "internal_error", "streaming unsupported", nil)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	ch := a.feed.Subscribe(ctx)

	// Send an initial comment to establish the stream
	_, _ = w.Write([]byte(": stream started\n\n"))
	flusher.Flush()

	for event := range ch {
		payload, err := json.Marshal(event)
		if err != nil {
			continue
		}
		_, _ = w.Write([]byte("data: "))
		_, _ = w.Write(payload)
		_, _ = w.Write([]byte("\n\n"))
		flusher.Flush()
	}
}
