package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/storesync/internal/config"
	"github.com/mbd888/storesync/internal/queue"
)

const testSealKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := &config.Config{
		Port:              "0",
		Env:               "production",
		LogLevel:          "error",
		SealKey:           testSealKey,
		WorkerConcurrency: 1,
	}
	s, err := New(cfg, WithBroker(queue.NewMemoryBroker()))
	require.NoError(t, err)
	return s
}

func doJSON(s *Server, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

// The store URL is a public IP literal so the SSRF check passes without
// DNS resolution.
func registerBody(email string) map[string]string {
	return map[string]string{
		"name":            "Ada's Store",
		"email":           email,
		"password":        "correct-horse",
		"store_url":       "https://203.0.113.10",
		"consumer_key":    "ck_live_abc",
		"consumer_secret": "cs_live_def",
	}
}

func TestRegister_CreatesClientAndStartsOnboarding(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(s, http.MethodPost, "/auth/register", registerBody("ada@example.com"))
	require.Equal(t, http.StatusCreated, w.Code)

	var resp struct {
		Client      map[string]any `json:"client"`
		AccessToken string         `json:"access_token"`
		TaskID      string         `json:"task_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.TaskID)
	assert.Equal(t, "PENDING", resp.Client["syncStatus"].(string) /* chain not yet run */)

	// Registration counts as a login and issues an API token.
	assert.Equal(t, true, resp.Client["isLoggedIn"])
	assert.True(t, strings.HasPrefix(resp.AccessToken, "sk_"))

	// Sealed credentials never appear in responses.
	assert.NotContains(t, w.Body.String(), "ck_live_abc")
	assert.NotContains(t, w.Body.String(), "cs_live_def")
	assert.NotContains(t, resp.Client, "consumerKey")

	// The onboarding chain is pollable right away.
	st := doJSON(s, http.MethodGet, "/auth/task-status/"+resp.TaskID, nil)
	require.Equal(t, http.StatusOK, st.Code)
	assert.Contains(t, st.Body.String(), "PENDING")
}

func TestRegister_ClientIsImmediatelySyncEligible(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(s, http.MethodPost, "/auth/register", registerBody("ada@example.com"))
	require.Equal(t, http.StatusCreated, w.Code)

	// The periodic scans must see the new client right away: if all chain
	// submission attempts fail, the scans are what recover the onboarding.
	eligible, err := s.clients.ListSyncEligible(context.Background())
	require.NoError(t, err)
	require.Len(t, eligible, 1)
	assert.Equal(t, "ada@example.com", eligible[0].Email)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	s := newTestServer(t)

	require.Equal(t, http.StatusCreated, doJSON(s, http.MethodPost, "/auth/register", registerBody("dup@example.com")).Code)
	assert.Equal(t, http.StatusConflict, doJSON(s, http.MethodPost, "/auth/register", registerBody("dup@example.com")).Code)
}

func TestRegister_MalformedBody(t *testing.T) {
	s := newTestServer(t)

	body := registerBody("bad@example.com")
	delete(body, "store_url")
	assert.Equal(t, http.StatusBadRequest, doJSON(s, http.MethodPost, "/auth/register", body).Code)
}

func TestRegister_RejectsInternalStoreURL(t *testing.T) {
	s := newTestServer(t)

	body := registerBody("ssrf@example.com")
	body["store_url"] = "https://127.0.0.1:8080"
	w := doJSON(s, http.MethodPost, "/auth/register", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_store_url")
}

func TestLogin_MarksLoggedInAndReturnsClient(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusCreated, doJSON(s, http.MethodPost, "/auth/register", registerBody("ada@example.com")).Code)

	w := doJSON(s, http.MethodPost, "/auth/login", map[string]string{
		"email": "ada@example.com", "password": "correct-horse",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Client struct {
			IsLoggedIn    bool    `json:"isLoggedIn"`
			LastLoginTime *string `json:"lastLoginTime"`
		} `json:"client"`
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Client.IsLoggedIn)
	assert.NotNil(t, resp.Client.LastLoginTime)
	assert.True(t, strings.HasPrefix(resp.AccessToken, "sk_"))
}

func TestLogin_WrongPassword(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusCreated, doJSON(s, http.MethodPost, "/auth/register", registerBody("ada@example.com")).Code)

	w := doJSON(s, http.MethodPost, "/auth/login", map[string]string{
		"email": "ada@example.com", "password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLogin_UnknownEmail(t *testing.T) {
	s := newTestServer(t)
	w := doJSON(s, http.MethodPost, "/auth/login", map[string]string{
		"email": "ghost@example.com", "password": "whatever",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func registerAndToken(t *testing.T, s *Server, email string) string {
	t.Helper()
	w := doJSON(s, http.MethodPost, "/auth/register", registerBody(email))
	require.Equal(t, http.StatusCreated, w.Code)
	var resp struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.AccessToken
}

func doLogout(s *Server, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func TestLogout_RemovesClientFromScanEligibility(t *testing.T) {
	s := newTestServer(t)
	token := registerAndToken(t, s, "ada@example.com")

	require.Equal(t, http.StatusOK, doLogout(s, token).Code)

	eligible, err := s.clients.ListSyncEligible(context.Background())
	require.NoError(t, err)
	assert.Empty(t, eligible)

	// The token was invalidated with the session.
	assert.Equal(t, http.StatusUnauthorized, doLogout(s, token).Code)
}

func TestLogout_RequiresValidToken(t *testing.T) {
	s := newTestServer(t)
	registerAndToken(t, s, "ada@example.com")

	assert.Equal(t, http.StatusUnauthorized, doLogout(s, "").Code)
	assert.Equal(t, http.StatusUnauthorized, doLogout(s, "sk_bogus").Code)
}

func TestLogin_RestoresScanEligibilityAfterLogout(t *testing.T) {
	s := newTestServer(t)
	token := registerAndToken(t, s, "ada@example.com")
	require.Equal(t, http.StatusOK, doLogout(s, token).Code)

	w := doJSON(s, http.MethodPost, "/auth/login", map[string]string{
		"email": "ada@example.com", "password": "correct-horse",
	})
	require.Equal(t, http.StatusOK, w.Code)

	eligible, err := s.clients.ListSyncEligible(context.Background())
	require.NoError(t, err)
	assert.Len(t, eligible, 1)
}

func TestTaskStatus_UnknownHandle(t *testing.T) {
	s := newTestServer(t)
	w := doJSON(s, http.MethodGet, "/auth/task-status/chain_nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSyncStatus_ByEmail(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusCreated, doJSON(s, http.MethodPost, "/auth/register", registerBody("ada@example.com")).Code)

	w := doJSON(s, http.MethodGet, "/auth/sync-status/ada@example.com", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"sync_status"`)

	assert.Equal(t, http.StatusNotFound, doJSON(s, http.MethodGet, "/auth/sync-status/ghost@example.com", nil).Code)
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t)

	assert.Equal(t, http.StatusOK, doJSON(s, http.MethodGet, "/health", nil).Code)
	assert.Equal(t, http.StatusOK, doJSON(s, http.MethodGet, "/health/live", nil).Code)
	assert.Equal(t, http.StatusOK, doJSON(s, http.MethodGet, "/health/ready", nil).Code)
	assert.Equal(t, http.StatusOK, doJSON(s, http.MethodGet, "/metrics", nil).Code)
}
