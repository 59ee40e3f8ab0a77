package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"memorio.org/internal/assign"
	"memorio.org/internal/audit"
	"memorio.org/internal/auth"
	"memorio.org/internal/cases"
	"memorio.org/internal/ids"
	"memorio.org/internal/login"
	"memorio.org/internal/notify"
	"memorio.org/internal/stream"
)

type apiClient struct {
	baseURL string
	client  *http.Client
	t       *testing.T
}

type testEnv struct {
	*apiClient
	users       *login.InMemoryUsers
	attempts    *login.InMemoryAttempts
	caseStore   *cases.InMemory
	assignStore *assign.InMemory
	notifier    *notify.InMemory
	sessions    *auth.Sessions
	caseSvc     *cases.Service
}

func newTestAPI(t *testing.T, configure ...func(*API)) *testEnv {
	t.Helper()

	users := login.NewInMemoryUsers()
	attempts := login.NewInMemoryAttempts()
	caseStore := cases.NewInMemory()
	assignStore := assign.NewInMemory(caseStore)
	notifier := notify.NewInMemory()
	auditLog := audit.New(audit.NewInMemory())

	sessions, err := auth.NewSessions("test-secret")
	if err != nil {
		t.Fatalf("NewSessions: %v", err)
	}
	gate, err := login.NewGate(attempts, users, sessions, auditLog)
	if err != nil {
		t.Fatalf("NewGate: %v", err)
	}
	balancer, err := assign.NewBalancer(assignStore, notifier, auditLog)
	if err != nil {
		t.Fatalf("NewBalancer: %v", err)
	}
	caseSvc := cases.NewService(caseStore, auditLog)

	api := New(ReadyProbe{}, "test", Deps{
		Gate:     gate,
		Balancer: balancer,
		Cases:    caseSvc,
		Sessions: sessions,
		Users:    users,
		Notifier: notifier,
		Audit:    auditLog,
		Feed:     stream.New(),
	})
	api.SetRateLimit(1000, 1000)
	for _, fn := range configure {
		fn(api)
	}

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &testEnv{
		apiClient: &apiClient{
			baseURL: srv.URL,
			client:  srv.Client(),
			t:       t,
		},
		users:       users,
		attempts:    attempts,
		caseStore:   caseStore,
		assignStore: assignStore,
		notifier:    notifier,
		sessions:    sessions,
		caseSvc:     caseSvc,
	}
}

// seedUser registers an account in the login directory and, for editors and
// admins, in the assignment store as well.
func (e *testEnv) seedUser(email, password string, role auth.Role, orgID string) *auth.User {
	e.t.Helper()
	hash, err := auth.HashPassword(password)
	if err != nil {
		e.t.Fatalf("HashPassword: %v", err)
	}
	user := &auth.User{
		ID:             ids.New(),
		OrganizationID: orgID,
		Email:          email,
		PasswordHash:   hash,
		Role:           role,
		Status:         auth.StatusActive,
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}
	e.users.Add(user)
	if role == auth.RoleEditor || role == auth.RoleAdmin {
		e.assignStore.AddUser(user)
	}
	return user
}

func (e *testEnv) tokenFor(user *auth.User) string {
	e.t.Helper()
	session, err := e.sessions.Issue(user)
	if err != nil {
		e.t.Fatalf("Issue: %v", err)
	}
	return session.Token
}

func authHeaderFor(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func (c *apiClient) post(path string, body any, headers map[string]string) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (c *apiClient) get(path string, params url.Values, headers map[string]string) *http.Response {
	c.t.Helper()
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		c.t.Fatalf("parse url: %v", err)
	}
	if params != nil {
		u.RawQuery = params.Encode()
	}
	req, err := http.NewRequest(http.MethodGet, u.String(), nil)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("get request: %v", err)
	}
	return resp
}

func decode[T any](t *testing.T, r *http.Response) T {
	t.Helper()
	defer r.Body.Close()
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestAPI(t)

	resp := env.get("/healthz", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status: %d", resp.StatusCode)
	}
	body := decode[map[string]any](t, resp)
	if body["status"] != "ok" {
		t.Fatalf("unexpected healthz body: %v", body)
	}

	resp = env.get("/readyz", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("readyz status: %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestLoginSuccessAndPortalCheck(t *testing.T) {
	env := newTestAPI(t)
	env.seedUser("pat@example.com", "correct-horse", auth.RoleFamily, "")

	// Wrong portal, correct credentials.
	resp := env.post("/v1/login", map[string]any{
		"email":        "pat@example.com",
		"password":     "correct-horse",
		"expectedRole": "director",
	}, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
	body := decode[map[string]any](t, resp)
	if body["error"] != "access_denied" {
		t.Fatalf("unexpected error code: %v", body["error"])
	}

	// Right portal.
	resp = env.post("/v1/login", map[string]any{
		"email":        "Pat@Example.com",
		"password":     "correct-horse",
		"expectedRole": "family",
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	success := decode[struct {
		Success bool `json:"success"`
		Session struct {
			Token string `json:"token"`
		} `json:"session"`
	}](t, resp)
	if !success.Success || success.Session.Token == "" {
		t.Fatalf("expected session token, got %+v", success)
	}
}

func TestLoginInvalidCredentialsAndLockout(t *testing.T) {
	env := newTestAPI(t)
	env.seedUser("pat@example.com", "correct-horse", auth.RoleFamily, "")

	for i := 0; i < 5; i++ {
		resp := env.post("/v1/login", map[string]any{
			"email":        "pat@example.com",
			"password":     "wrong",
			"expectedRole": "family",
		}, nil)
		if i < 4 {
			if resp.StatusCode != http.StatusUnauthorized {
				t.Fatalf("attempt %d: expected 401, got %d", i+1, resp.StatusCode)
			}
			body := decode[map[string]any](t, resp)
			if body["attempts_remaining"] != float64(4-i) {
				t.Fatalf("attempt %d: unexpected attempts_remaining %v", i+1, body["attempts_remaining"])
			}
		} else {
			if resp.StatusCode != http.StatusTooManyRequests {
				t.Fatalf("attempt 5: expected 429, got %d", resp.StatusCode)
			}
			if resp.Header.Get("Retry-After") == "" {
				t.Fatal("expected Retry-After header")
			}
			body := decode[map[string]any](t, resp)
			if body["error"] != "rate_limited" {
				t.Fatalf("unexpected error code: %v", body["error"])
			}
			if body["minutes_remaining"] == nil {
				t.Fatal("expected minutes_remaining in body")
			}
		}
	}

	// Locked out even with correct credentials.
	resp := env.post("/v1/login", map[string]any{
		"email":        "pat@example.com",
		"password":     "correct-horse",
		"expectedRole": "family",
	}, nil)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429 while locked, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestProtectedEndpointsRequireAuth(t *testing.T) {
	env := newTestAPI(t)

	resp := env.post("/v1/assign-worker", map[string]any{"case_id": "c-1"}, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = env.post("/v1/assign-worker", map[string]any{"case_id": "c-1"}, authHeaderFor("garbage"))
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestSubmitTriggersAssignment(t *testing.T) {
	env := newTestAPI(t)
	director := env.seedUser("director@example.com", "pw-director", auth.RoleDirector, "org-1")
	family := env.seedUser("family@example.com", "pw-family", auth.RoleFamily, "")
	env.seedUser("editor@example.com", "pw-editor", auth.RoleEditor, "")

	directorToken := env.tokenFor(director)
	familyToken := env.tokenFor(family)

	resp := env.post("/v1/cases", map[string]any{
		"deceased_name": "Jane Doe",
		"service_date":  "2026-09-01",
	}, authHeaderFor(directorToken))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create case: expected 201, got %d", resp.StatusCode)
	}
	created := decode[cases.Case](t, resp)

	resp = env.post("/v1/cases/"+created.ID+"/family", map[string]any{
		"family_user_id": family.ID,
	}, authHeaderFor(directorToken))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("bind family: expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Family cannot create cases.
	resp = env.post("/v1/cases", map[string]any{"deceased_name": "X"}, authHeaderFor(familyToken))
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("family create case: expected 403, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Move through intake before submit.
	if err := env.caseStore.UpdateStatus(t.Context(), created.ID, cases.StatusWaitingOnFamily, cases.StatusIntakeInProgress, time.Now().UTC()); err != nil {
		t.Fatalf("advance status: %v", err)
	}

	resp = env.post("/v1/cases/"+created.ID+"/submit", nil, authHeaderFor(familyToken))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("submit: expected 200, got %d", resp.StatusCode)
	}
	submitted := decode[struct {
		Success    bool `json:"success"`
		Assignment struct {
			Assigned bool   `json:"assigned"`
			EditorID string `json:"editor_id"`
		} `json:"assignment"`
	}](t, resp)
	if !submitted.Success || !submitted.Assignment.Assigned || submitted.Assignment.EditorID == "" {
		t.Fatalf("expected assignment in submit response, got %+v", submitted)
	}

	final, err := env.caseStore.Find(t.Context(), created.ID)
	if err != nil {
		t.Fatalf("find case: %v", err)
	}
	if final.Status != cases.StatusInProduction {
		t.Fatalf("expected in_production, got %s", final.Status)
	}

	// Re-running the balancer is idempotent.
	resp = env.post("/v1/assign-worker", map[string]any{"case_id": created.ID}, authHeaderFor(familyToken))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("assign-worker: expected 200, got %d", resp.StatusCode)
	}
	again := decode[map[string]any](t, resp)
	if again["editor_id"] != submitted.Assignment.EditorID {
		t.Fatalf("expected same editor, got %v", again["editor_id"])
	}
}

func TestInviteAndFirstLoginActivates(t *testing.T) {
	env := newTestAPI(t)
	admin := env.seedUser("admin@example.com", "pw-admin", auth.RoleAdmin, "")
	adminToken := env.tokenFor(admin)

	resp := env.post("/v1/invites/editor", map[string]any{
		"email": "newhire@example.com",
		"name":  "New Hire",
	}, authHeaderFor(adminToken))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("invite: expected 201, got %d", resp.StatusCode)
	}
	invited := decode[struct {
		TempPassword string `json:"temp_password"`
		User         struct {
			Status string `json:"status"`
		} `json:"user"`
	}](t, resp)
	if invited.TempPassword == "" || invited.User.Status != auth.StatusInvited {
		t.Fatalf("unexpected invite response: %+v", invited)
	}

	notifications := env.notifier.Notifications()
	if len(notifications) != 1 || notifications[0].EventType != notify.EventUserInvited {
		t.Fatalf("expected one invite notification, got %+v", notifications)
	}

	resp = env.post("/v1/login", map[string]any{
		"email":        "newhire@example.com",
		"password":     invited.TempPassword,
		"expectedRole": "editor",
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("first login: expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	if got := env.users.Get("newhire@example.com"); got == nil || got.Status != auth.StatusActive {
		t.Fatalf("expected invited user to activate, got %+v", got)
	}
}

func TestInvitePermissions(t *testing.T) {
	env := newTestAPI(t)
	director := env.seedUser("director@example.com", "pw", auth.RoleDirector, "org-1")
	family := env.seedUser("family@example.com", "pw", auth.RoleFamily, "")

	resp := env.post("/v1/invites/editor", map[string]any{"email": "x@example.com"},
		authHeaderFor(env.tokenFor(director)))
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("director inviting editor: expected 403, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = env.post("/v1/invites/family", map[string]any{"email": "kin@example.com"},
		authHeaderFor(env.tokenFor(director)))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("director inviting family: expected 201, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = env.post("/v1/invites/family", map[string]any{"email": "y@example.com"},
		authHeaderFor(env.tokenFor(family)))
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("family inviting: expected 403, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = env.post("/v1/invites/wizard", map[string]any{"email": "z@example.com"},
		authHeaderFor(env.tokenFor(director)))
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown role: expected 404, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestUnknownPath(t *testing.T) {
	env := newTestAPI(t)
	resp := env.get("/v1/nope", nil, nil)
	if resp.StatusCode != http.StatusNotFound && resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestMaxBodyBytesConfigured(t *testing.T) {
	env := newTestAPI(t, func(a *API) { a.SetMaxBodyBytes(64) })

	resp := env.post("/v1/login", map[string]any{
		"email":        "pat@example.com",
		"password":     strings.Repeat("x", 200),
		"expectedRole": "family",
	}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("oversized body: expected 400, got %d", resp.StatusCode)
	}
	body := decode[map[string]any](t, resp)
	if body["error"] != "invalid_request" {
		t.Fatalf("unexpected error code: %v", body["error"])
	}
}
