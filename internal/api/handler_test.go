package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hotspotbd/portal-backend/internal/approval"
	"github.com/hotspotbd/portal-backend/internal/auth"
	"github.com/hotspotbd/portal-backend/internal/credentials"
	"github.com/hotspotbd/portal-backend/internal/mikrotik"
	"github.com/hotspotbd/portal-backend/internal/store"
)

const testAdminToken = "secret-admin-token"

// memController is an in-memory hotspot controller for handler tests.
type memController struct {
	users    map[string]*mikrotik.User
	sessions map[string]*mikrotik.ActiveSession
	kicked   []string
}

func newMemController() *memController {
	return &memController{
		users:    make(map[string]*mikrotik.User),
		sessions: make(map[string]*mikrotik.ActiveSession),
	}
}

func (m *memController) CreateDisabledUser(ctx context.Context, user mikrotik.User) error {
	if _, ok := m.users[user.Name]; ok {
		return mikrotik.ErrUserExists
	}
	user.Disabled = true
	m.users[user.Name] = &user
	return nil
}

func (m *memController) SetEnabled(ctx context.Context, username string, enabled bool) error {
	u, ok := m.users[username]
	if !ok {
		return mikrotik.ErrUserNotFound
	}
	u.Disabled = !enabled
	return nil
}

func (m *memController) SetComment(ctx context.Context, username, comment string) error {
	if u, ok := m.users[username]; ok {
		u.Comment = comment
	}
	return nil
}

func (m *memController) RemoveUser(ctx context.Context, username string) error {
	delete(m.users, username)
	return nil
}

func (m *memController) GetUser(ctx context.Context, username string) (*mikrotik.User, error) {
	u, ok := m.users[username]
	if !ok {
		return nil, mikrotik.ErrUserNotFound
	}
	clone := *u
	return &clone, nil
}

func (m *memController) GetActiveSession(ctx context.Context, username string) (*mikrotik.ActiveSession, error) {
	return m.sessions[username], nil
}

func (m *memController) ListActiveSessions(ctx context.Context) ([]mikrotik.ActiveSession, error) {
	var out []mikrotik.ActiveSession
	for _, s := range m.sessions {
		out = append(out, *s)
	}
	return out, nil
}

func (m *memController) KickActiveSession(ctx context.Context, username string) error {
	m.kicked = append(m.kicked, username)
	delete(m.sessions, username)
	return nil
}

func (m *memController) ScheduleExpiry(ctx context.Context, username string, at time.Time) error {
	return nil
}

func (m *memController) TestConnection(ctx context.Context) error { return nil }

func newTestServer(t *testing.T) (*Router, *memController, *auth.JWTService) {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	controller := newMemController()
	orch := approval.NewOrchestrator(st, controller, nil, credentials.NewGenerator("user"), nil)

	kp, err := auth.GenerateKeyPair()
	require.NoError(t, err)
	jwtService := auth.NewJWTService(kp, "test-portal")

	handler := NewHandler(controller, orch, st, jwtService, t.TempDir(), time.Hour, testAdminToken, nil)
	return NewRouter(handler), controller, jwtService
}

func doJSON(t *testing.T, router *Router, method, path string, body interface{}, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func submitPurchase(t *testing.T, router *Router, pkg, contact string) map[string]interface{} {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("package", pkg))
	require.NoError(t, mw.WriteField("contact_number", contact))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/purchase", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestPurchaseReturnsCredentials(t *testing.T) {
	router, controller, _ := newTestServer(t)

	resp := submitPurchase(t, router, "7_days", "01712345678")

	username := resp["username"].(string)
	assert.Regexp(t, `^user\d{4}$`, username)
	assert.Regexp(t, `^\d{6}$`, resp["password"].(string))
	assert.Equal(t, "pending", resp["status"])

	// Backed by a disabled router account.
	user, err := controller.GetUser(context.Background(), username)
	require.NoError(t, err)
	assert.True(t, user.Disabled)
}

func TestPurchaseValidation(t *testing.T) {
	router, _, _ := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("package", "7_days"))
	require.NoError(t, mw.WriteField("contact_number", "12345"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/purchase", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	buf.Reset()
	mw = multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("package", "forever"))
	require.NoError(t, mw.WriteField("contact_number", "01712345678"))
	require.NoError(t, mw.Close())

	req = httptest.NewRequest(http.MethodPost, "/api/v1/purchase", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLoginPendingAccountRefused(t *testing.T) {
	router, _, _ := newTestServer(t)

	resp := submitPurchase(t, router, "1_day", "01712345678")

	w := doJSON(t, router, http.MethodPost, "/api/v1/login", map[string]string{
		"username": resp["username"].(string),
		"password": resp["password"].(string),
	}, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestLoginAfterApproval(t *testing.T) {
	router, _, _ := newTestServer(t)

	resp := submitPurchase(t, router, "1_day", "01712345678")
	username := resp["username"].(string)

	w := doJSON(t, router, http.MethodPost,
		"/api/v1/admin/requests/"+username+"/decision",
		map[string]string{"action": "approve"},
		map[string]string{"X-Admin-Token": testAdminToken},
	)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doJSON(t, router, http.MethodPost, "/api/v1/login", map[string]string{
		"username": username,
		"password": resp["password"].(string),
	}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var loginResp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &loginResp))
	assert.NotEmpty(t, loginResp["token"])
}

func TestLoginWrongPassword(t *testing.T) {
	router, controller, _ := newTestServer(t)
	controller.users["user1234"] = &mikrotik.User{Name: "user1234", Password: "123456"}

	w := doJSON(t, router, http.MethodPost, "/api/v1/login", map[string]string{
		"username": "user1234",
		"password": "654321",
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLoginUnknownUser(t *testing.T) {
	router, _, _ := newTestServer(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/login", map[string]string{
		"username": "user0000",
		"password": "000000",
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestStatusRequiresToken(t *testing.T) {
	router, _, _ := newTestServer(t)

	w := doJSON(t, router, http.MethodGet, "/api/v1/status", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestStatusWithActiveSession(t *testing.T) {
	router, controller, jwtService := newTestServer(t)

	controller.users["user1234"] = &mikrotik.User{Name: "user1234", Password: "123456", Profile: "7_days"}
	controller.sessions["user1234"] = &mikrotik.ActiveSession{
		Username:   "user1234",
		Address:    "10.0.0.9",
		MACAddress: "AA:BB:CC:DD:EE:FF",
		Uptime:     "01:02:03",
		BytesIn:    2048,
		BytesOut:   1024,
	}

	token, err := jwtService.GenerateToken("user1234", "7_days", time.Hour)
	require.NoError(t, err)

	w := doJSON(t, router, http.MethodGet, "/api/v1/status", nil, map[string]string{
		"Authorization": "Bearer " + token,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "10.0.0.9", resp["ip"])
	assert.Equal(t, "01h 02m 03s", resp["uptime"])
	assert.Equal(t, "1.00 KB", resp["upload"])
	assert.Equal(t, "2.00 KB", resp["download"])
}

func TestLogoutKicksSession(t *testing.T) {
	router, controller, jwtService := newTestServer(t)

	controller.users["user1234"] = &mikrotik.User{Name: "user1234", Password: "123456"}
	controller.sessions["user1234"] = &mikrotik.ActiveSession{Username: "user1234"}

	token, err := jwtService.GenerateToken("user1234", "1_day", time.Hour)
	require.NoError(t, err)

	w := doJSON(t, router, http.MethodPost, "/api/v1/logout", nil, map[string]string{
		"Authorization": "Bearer " + token,
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"user1234"}, controller.kicked)
}

func TestAdminEndpointsRequireToken(t *testing.T) {
	router, _, _ := newTestServer(t)

	w := doJSON(t, router, http.MethodGet, "/api/v1/admin/requests", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/v1/admin/requests", nil, map[string]string{
		"X-Admin-Token": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminListHidesPasswords(t *testing.T) {
	router, _, _ := newTestServer(t)
	submitPurchase(t, router, "30_days", "01712345678")

	w := doJSON(t, router, http.MethodGet, "/api/v1/admin/requests?status=pending", nil, map[string]string{
		"X-Admin-Token": testAdminToken,
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Requests []map[string]interface{} `json:"requests"`
		Count    int                      `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	assert.NotContains(t, resp.Requests[0], "password")
	assert.Equal(t, "30_days", resp.Requests[0]["package"])
}

func TestAdminDecisionUnknownRequest(t *testing.T) {
	router, _, _ := newTestServer(t)

	w := doJSON(t, router, http.MethodPost,
		"/api/v1/admin/requests/user0000/decision",
		map[string]string{"action": "reject"},
		map[string]string{"X-Admin-Token": testAdminToken},
	)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminDecisionBadAction(t *testing.T) {
	router, _, _ := newTestServer(t)

	w := doJSON(t, router, http.MethodPost,
		"/api/v1/admin/requests/user0000/decision",
		map[string]string{"action": "delete"},
		map[string]string{"X-Admin-Token": testAdminToken},
	)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListPackages(t *testing.T) {
	router, _, _ := newTestServer(t)

	w := doJSON(t, router, http.MethodGet, "/api/v1/packages", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Packages []map[string]interface{} `json:"packages"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Packages, 3)
	assert.Equal(t, "1_day", resp.Packages[0]["id"])
}

func TestHealthCheck(t *testing.T) {
	router, _, _ := newTestServer(t)

	w := doJSON(t, router, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])
	assert.Equal(t, true, resp["router_connected"])
}
