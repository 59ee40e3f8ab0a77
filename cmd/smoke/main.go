// Smoke-tests a running memorio-api end to end: invite accounts, open a
// case, bind the family, submit, and verify an editor was assigned. Needs a
// seeded admin account.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"time"
)

type client struct {
	base  string
	http  *http.Client
	token string
}

func (c *client) post(path string, body map[string]any, out any) (int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequest(http.MethodPost, c.base+path, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}

func (c *client) login(email, password, role string) string {
	var out struct {
		Session struct {
			Token string `json:"token"`
		} `json:"session"`
	}
	status, err := c.post("/v1/login", map[string]any{
		"email": email, "password": password, "expectedRole": role,
	}, &out)
	if err != nil || status != http.StatusOK {
		log.Fatalf("login %s as %s: status=%d err=%v", email, role, status, err)
	}
	return out.Session.Token
}

func (c *client) invite(role, email string) string {
	var out struct {
		TempPassword string `json:"temp_password"`
	}
	status, err := c.post("/v1/invites/"+role, map[string]any{"email": email}, &out)
	if err != nil || status != http.StatusCreated {
		log.Fatalf("invite %s %s: status=%d err=%v", role, email, status, err)
	}
	return out.TempPassword
}

func main() {
	base := os.Getenv("MEMORIO_ADDR")
	if base == "" {
		base = "http://localhost:8080"
	}
	adminEmail := os.Getenv("MEMORIO_SMOKE_ADMIN_EMAIL")
	adminPassword := os.Getenv("MEMORIO_SMOKE_ADMIN_PASSWORD")
	if adminEmail == "" || adminPassword == "" {
		log.Fatal("MEMORIO_SMOKE_ADMIN_EMAIL and MEMORIO_SMOKE_ADMIN_PASSWORD are required")
	}

	suffix := fmt.Sprintf("%d", rand.New(rand.NewSource(time.Now().UnixNano())).Int31())
	c := &client{base: base, http: &http.Client{Timeout: 10 * time.Second}}

	c.token = c.login(adminEmail, adminPassword, "admin")
	editorEmail := "smoke-editor-" + suffix + "@example.com"
	directorEmail := "smoke-director-" + suffix + "@example.com"
	familyEmail := "smoke-family-" + suffix + "@example.com"
	editorPassword := c.invite("editor", editorEmail)
	directorPassword := c.invite("director", directorEmail)
	familyPassword := c.invite("family", familyEmail)

	// First logins activate the invited accounts.
	familyToken := c.login(familyEmail, familyPassword, "family")
	c.login(editorEmail, editorPassword, "editor")
	c.token = c.login(directorEmail, directorPassword, "director")

	var created struct {
		ID string `json:"id"`
	}
	status, err := c.post("/v1/cases", map[string]any{
		"deceased_name": "Smoke Test Memorial",
	}, &created)
	if err != nil || status != http.StatusCreated {
		log.Fatalf("create case: status=%d err=%v", status, err)
	}

	var familyUser struct {
		User struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	// Resolve the family user id from the login response.
	status, err = c.post("/v1/login", map[string]any{
		"email": familyEmail, "password": familyPassword, "expectedRole": "family",
	}, &familyUser)
	if err != nil || status != http.StatusOK {
		log.Fatalf("family relogin: status=%d err=%v", status, err)
	}

	status, err = c.post("/v1/cases/"+created.ID+"/family", map[string]any{
		"family_user_id": familyUser.User.ID,
	}, nil)
	if err != nil || status != http.StatusOK {
		log.Fatalf("bind family: status=%d err=%v", status, err)
	}

	c.token = familyToken
	var submitted struct {
		Assignment struct {
			Assigned bool   `json:"assigned"`
			EditorID string `json:"editor_id"`
		} `json:"assignment"`
	}
	status, err = c.post("/v1/cases/"+created.ID+"/submit", nil, &submitted)
	if err != nil || status != http.StatusOK {
		log.Fatalf("submit: status=%d err=%v", status, err)
	}
	if !submitted.Assignment.Assigned || submitted.Assignment.EditorID == "" {
		log.Fatalf("expected an assigned editor, got %+v", submitted.Assignment)
	}

	fmt.Printf("smoke test passed: case=%s editor=%s\n", created.ID, submitted.Assignment.EditorID)
}
