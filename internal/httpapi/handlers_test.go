package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"devvault.dev/internal/auth"
	"devvault.dev/internal/store/memory"
	"devvault.dev/internal/tracker"
)

var testSecret = []byte("test-secret-test-secret-test-secret!")

type apiClient struct {
	baseURL string
	client  *http.Client
	store   *memory.Store
	t       *testing.T
}

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()

	store := memory.New()
	hasher := auth.NewArgon2idHasher(auth.Argon2Params{Time: 1, Memory: 1024, Threads: 1})
	cfg := auth.TokenConfig{Secret: testSecret, TTL: time.Hour}
	issuer, err := auth.NewTokenIssuer(cfg)
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}
	revoked := auth.NewRevocationList(nil)
	validator, err := auth.NewTokenValidator(cfg, auth.WithRevocations(revoked))
	if err != nil {
		t.Fatalf("NewTokenValidator: %v", err)
	}
	svc, err := auth.NewService(store, hasher, issuer, auth.WithLogoutRevocations(revoked))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	trk, err := tracker.NewService(store, auth.NewGuard(store))
	if err != nil {
		t.Fatalf("tracker.NewService: %v", err)
	}

	api, err := New(Options{
		Auth:       svc,
		Validator:  validator,
		Tracker:    trk,
		Ready:      ReadyProbe{Store: store},
		Version:    "test",
		RateBurst:  1000,
		RatePerSec: 1000,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{baseURL: srv.URL, client: srv.Client(), store: store, t: t}
}

func (c *apiClient) do(method, path string, body any, token string) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		if raw, ok := body.(string); ok {
			payload = []byte(raw)
		} else if payload, err = json.Marshal(body); err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (c *apiClient) register(username, email, password string) string {
	c.t.Helper()
	resp := c.do(http.MethodPost, "/auth/register", map[string]string{
		"username": username,
		"email":    email,
		"password": password,
	}, "")
	expectStatus(c.t, resp, http.StatusOK)
	tok := decode[tokenResponse](c.t, resp)
	if tok.Token == "" || tok.ExpiresAt.IsZero() {
		c.t.Fatalf("empty token issued: %+v", tok)
	}
	return tok.Token
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		var body bytes.Buffer
		_, _ = body.ReadFrom(resp.Body)
		resp.Body.Close()
		t.Fatalf("expected status %d, got %d: %s", want, resp.StatusCode, body.String())
	}
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

func TestOwnershipScenario(t *testing.T) {
	c := newTestAPI(t)

	aliceToken := c.register("alice", "alice@example.com", "alice-password")
	bobToken := c.register("bob", "bob@example.com", "bob-password")

	// Login works with the registered credentials.
	resp := c.do(http.MethodPost, "/auth/login", map[string]string{
		"email": "alice@example.com", "password": "alice-password",
	}, "")
	expectStatus(t, resp, http.StatusOK)
	aliceToken = decode[tokenResponse](t, resp).Token

	resp = c.do(http.MethodPost, "/api/projects", map[string]string{"name": "vault"}, aliceToken)
	expectStatus(t, resp, http.StatusCreated)
	project := decode[tracker.Project](t, resp)
	if project.ID == "" || project.OwnerID == "" {
		t.Fatalf("unexpected project: %+v", project)
	}

	resp = c.do(http.MethodPost, "/api/projects/"+project.ID+"/tasks", map[string]string{"title": "rotate keys"}, aliceToken)
	expectStatus(t, resp, http.StatusCreated)
	task := decode[tracker.Task](t, resp)

	// Bob does not see alice's project in his listing.
	resp = c.do(http.MethodGet, "/api/projects", nil, bobToken)
	expectStatus(t, resp, http.StatusOK)
	if got := decode[[]tracker.Project](t, resp); len(got) != 0 {
		t.Fatalf("bob sees foreign projects: %+v", got)
	}

	// Direct access to a foreign resource is forbidden.
	resp = c.do(http.MethodGet, "/api/projects/"+project.ID, nil, bobToken)
	expectStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()
	resp = c.do(http.MethodPut, "/api/projects/"+project.ID, map[string]string{"name": "hijacked"}, bobToken)
	expectStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()
	resp = c.do(http.MethodDelete, "/api/projects/"+project.ID, nil, bobToken)
	expectStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()
	resp = c.do(http.MethodDelete, "/api/tasks/"+task.ID, nil, bobToken)
	expectStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()
	resp = c.do(http.MethodPut, "/api/tasks/"+task.ID, map[string]any{"is_completed": true}, bobToken)
	expectStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()

	// Browsing a foreign project's tasks is reported as missing.
	resp = c.do(http.MethodGet, "/api/projects/"+project.ID+"/tasks", nil, bobToken)
	expectStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()

	// Missing resources are 404 for everyone.
	resp = c.do(http.MethodGet, "/api/projects/does-not-exist", nil, aliceToken)
	expectStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()

	// Alice keeps full access and bob's attempts changed nothing.
	resp = c.do(http.MethodGet, "/api/projects/"+project.ID, nil, aliceToken)
	expectStatus(t, resp, http.StatusOK)
	if got := decode[tracker.Project](t, resp); got.Name != "vault" {
		t.Fatalf("project modified by a foreign caller: %+v", got)
	}
	resp = c.do(http.MethodPut, "/api/tasks/"+task.ID, map[string]any{"is_completed": true}, aliceToken)
	expectStatus(t, resp, http.StatusOK)
	updated := decode[tracker.Task](t, resp)
	if !updated.IsCompleted || updated.Title != "rotate keys" {
		t.Fatalf("unexpected task after update: %+v", updated)
	}

	resp = c.do(http.MethodDelete, "/api/projects/"+project.ID, nil, aliceToken)
	expectStatus(t, resp, http.StatusNoContent)
	resp.Body.Close()
	resp = c.do(http.MethodGet, "/api/tasks/"+task.ID, nil, aliceToken)
	expectStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()
}

func TestRegisterDuplicateEmail(t *testing.T) {
	c := newTestAPI(t)
	c.register("alice", "alice@example.com", "pw-one")

	resp := c.do(http.MethodPost, "/auth/register", map[string]string{
		"username": "alice2", "email": "ALICE@example.com", "password": "pw-two",
	}, "")
	expectStatus(t, resp, http.StatusBadRequest)
	body := decode[map[string]any](t, resp)
	if body["error"] == "" || body["request_id"] == "" {
		t.Fatalf("expected error and request_id, got %v", body)
	}
	if n := c.store.CountIdentitiesByEmail("alice@example.com"); n != 1 {
		t.Fatalf("expected exactly one identity, got %d", n)
	}
}

func TestRegisterValidation(t *testing.T) {
	c := newTestAPI(t)
	cases := map[string]any{
		"missing email":  map[string]string{"username": "a", "password": "p"},
		"bad email":      map[string]string{"username": "a", "email": "nope", "password": "p"},
		"empty password": map[string]string{"username": "a", "email": "a@example.com"},
		"unknown field":  map[string]string{"username": "a", "email": "a@example.com", "password": "p", "role": "admin"},
		"malformed":      "{not json",
		"empty body":     "",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			resp := c.do(http.MethodPost, "/auth/register", body, "")
			expectStatus(t, resp, http.StatusBadRequest)
			resp.Body.Close()
		})
	}
}

func TestLoginFailuresLookTheSame(t *testing.T) {
	c := newTestAPI(t)
	c.register("alice", "alice@example.com", "correct-password")

	wrong := c.do(http.MethodPost, "/auth/login", map[string]string{
		"email": "alice@example.com", "password": "wrong-password",
	}, "")
	unknown := c.do(http.MethodPost, "/auth/login", map[string]string{
		"email": "nobody@example.com", "password": "whatever",
	}, "")
	expectStatus(t, wrong, http.StatusUnauthorized)
	expectStatus(t, unknown, http.StatusUnauthorized)

	a := decode[map[string]any](t, wrong)
	b := decode[map[string]any](t, unknown)
	if a["error"] != b["error"] {
		t.Fatalf("login failures differ: %v vs %v", a["error"], b["error"])
	}
	if wrong.Header.Get("WWW-Authenticate") == "" {
		t.Fatalf("expected WWW-Authenticate header")
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	c := newTestAPI(t)
	token := c.register("alice", "alice@example.com", "pw")

	resp := c.do(http.MethodGet, "/auth/me", nil, token)
	expectStatus(t, resp, http.StatusOK)
	me := decode[meResponse](t, resp)
	if me.Email != "alice@example.com" || me.Role != auth.RoleUser || me.ID == "" {
		t.Fatalf("unexpected me: %+v", me)
	}

	resp = c.do(http.MethodPost, "/auth/logout", nil, token)
	expectStatus(t, resp, http.StatusNoContent)
	resp.Body.Close()

	resp = c.do(http.MethodGet, "/auth/me", nil, token)
	expectStatus(t, resp, http.StatusUnauthorized)
	resp.Body.Close()
}

func TestHealthAndReady(t *testing.T) {
	c := newTestAPI(t)
	for _, path := range []string{"/healthz", "/readyz"} {
		resp := c.do(http.MethodGet, path, nil, "")
		expectStatus(t, resp, http.StatusOK)
		resp.Body.Close()
	}
}

func TestCreateProjectValidation(t *testing.T) {
	c := newTestAPI(t)
	token := c.register("alice", "alice@example.com", "pw")

	resp := c.do(http.MethodPost, "/api/projects", map[string]string{"name": "  "}, token)
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()
}
