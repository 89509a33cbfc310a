package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"pettycash/internal/auth"
	"pettycash/internal/database"
	"pettycash/internal/middleware"
	"pettycash/internal/models"
	"pettycash/internal/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// renderRecorder stands in for the template registry and captures what the
// handler asked to render.
type renderRecorder struct {
	mu   sync.Mutex
	name string
	data map[string]interface{}
}

func (r *renderRecorder) ExecuteTemplate(w io.Writer, name string, data interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.name = name
	r.data, _ = data.(map[string]interface{})
	return nil
}

func (r *renderRecorder) last() (string, map[string]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.name, r.data
}

type testApp struct {
	server   *httptest.Server
	client   *http.Client
	tmpl     *renderRecorder
	users    *auth.UserService
	requests *services.RequestService
	receipts *services.ReceiptService
	audit    *services.AuditService
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	db, err := database.New(":memory:")
	require.NoError(t, err, "failed to create test database")
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	users := auth.NewUserService(db)
	sessions := auth.NewSessionManager("test-session-secret-32-bytes!!!!", 3600)
	audit := services.NewAuditService(db)
	requests := services.NewRequestService(db)
	receipts := services.NewReceiptService(db, t.TempDir())

	tmpl := &renderRecorder{}
	authHandler := NewAuthHandler(tmpl, sessions, users, audit)
	dashboardHandler := NewDashboardHandler(tmpl, sessions, requests, receipts)
	requestHandler := NewRequestHandler(tmpl, sessions, requests, audit)
	receiptHandler := NewReceiptHandler(tmpl, sessions, requests, receipts, audit, 5*1024*1024)
	adminHandler := NewAdminHandler(tmpl, sessions, users, audit, "admin", "admin123")
	authMiddleware := middleware.NewAuthMiddleware(sessions, users)

	server := httptest.NewServer(Routes(authMiddleware, authHandler, dashboardHandler, requestHandler, receiptHandler, adminHandler))
	t.Cleanup(server.Close)

	return &testApp{
		server:   server,
		client:   newClient(t),
		tmpl:     tmpl,
		users:    users,
		requests: requests,
		receipts: receipts,
		audit:    audit,
	}
}

// newClient returns a cookie-carrying client that does not follow
// redirects, so tests can assert on them.
func newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func (a *testApp) get(t *testing.T, client *http.Client, path string) *http.Response {
	t.Helper()
	resp, err := client.Get(a.server.URL + path)
	require.NoError(t, err)
	return resp
}

func (a *testApp) postForm(t *testing.T, client *http.Client, path string, form url.Values) *http.Response {
	t.Helper()
	resp, err := client.PostForm(a.server.URL+path, form)
	require.NoError(t, err)
	return resp
}

func (a *testApp) login(t *testing.T, client *http.Client, username, password string) *http.Response {
	t.Helper()
	return a.postForm(t, client, "/login", url.Values{
		"username": {username},
		"password": {password},
	})
}

func (a *testApp) uploadReceipt(t *testing.T, client *http.Client, filename, content string, fields map[string]string) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if filename != "" {
		fw, err := mw.CreateFormFile("receipt", filename)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, a.server.URL+"/receipts/upload", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := client.Do(req)
	require.NoError(t, err)
	return resp
}

func requireRedirect(t *testing.T, resp *http.Response, location string) {
	t.Helper()
	defer resp.Body.Close()
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, location, resp.Header.Get("Location"))
}

func TestUnauthenticatedRedirectsToLogin(t *testing.T) {
	app := newTestApp(t)

	for _, path := range []string{"/", "/requests/new", "/receipts/upload", "/approvals", "/admin/logs"} {
		resp := app.get(t, app.client, path)
		requireRedirect(t, resp, "/login")
	}
}

func TestBootstrapOnlyOnce(t *testing.T) {
	app := newTestApp(t)

	resp := app.postForm(t, app.client, "/bootstrap", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var created map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	resp.Body.Close()
	assert.Equal(t, "admin", created["username"])
	assert.Equal(t, "admin123", created["password"])

	resp = app.postForm(t, app.client, "/bootstrap", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var failed map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&failed))
	resp.Body.Close()
	assert.Equal(t, "users already exist", failed["error"])
}

func TestLoginFailureRendersError(t *testing.T) {
	app := newTestApp(t)
	app.postForm(t, app.client, "/bootstrap", nil).Body.Close()

	resp := app.login(t, app.client, "admin", "not-the-password")
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	name, data := app.tmpl.last()
	assert.Equal(t, "login.html", name)
	assert.Equal(t, "Invalid username or password", data["Error"])
}

// A flash queued before an error render must be shown on that render, not
// held over onto whatever unrelated page the user visits next.
func TestErrorRenderDrainsFlashes(t *testing.T) {
	app := newTestApp(t)
	app.postForm(t, app.client, "/bootstrap", nil).Body.Close()

	// Login queues a welcome flash; the redirect is not followed, so the
	// flash is still pending when the next request fails validation.
	requireRedirect(t, app.login(t, app.client, "admin", "admin123"), "/")

	resp := app.postForm(t, app.client, "/requests/new", url.Values{
		"purpose": {"Taxi"},
		"amount":  {"-1"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	name, data := app.tmpl.last()
	assert.Equal(t, "request_new.html", name)
	assert.Equal(t, "Amount must be a positive number.", data["Error"])
	flashes, _ := data["Flashes"].([]auth.FlashMessage)
	require.Len(t, flashes, 1, "pending flash shown alongside the error")
	assert.Contains(t, flashes[0].Message, "Welcome back")

	// Nothing left over for the next page
	resp = app.get(t, app.client, "/")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	_, data = app.tmpl.last()
	flashes, _ = data["Flashes"].([]auth.FlashMessage)
	assert.Empty(t, flashes)
}

// TestWorkflowScenario walks the whole lifecycle: bootstrap, login, submit,
// approve, upload a receipt, and check the audit trail.
func TestWorkflowScenario(t *testing.T) {
	app := newTestApp(t)

	resp := app.postForm(t, app.client, "/bootstrap", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	requireRedirect(t, app.login(t, app.client, "admin", "admin123"), "/")

	// Submit a spending request
	requireRedirect(t, app.postForm(t, app.client, "/requests/new", url.Values{
		"purpose": {"Taxi"},
		"amount":  {"42.50"},
	}), "/")

	// The pending queue shows it
	resp = app.get(t, app.client, "/approvals")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	name, data := app.tmpl.last()
	require.Equal(t, "approvals.html", name)
	pending, ok := data["Requests"].([]models.Request)
	require.True(t, ok)
	require.Len(t, pending, 1)
	assert.Equal(t, "Taxi", pending[0].Purpose)
	assert.Equal(t, models.StatusPending, pending[0].Status)
	requestID := pending[0].ID

	// Approve it
	requireRedirect(t, app.postForm(t, app.client, fmt.Sprintf("/approvals/%d/approve", requestID), nil), "/approvals")

	admin, err := app.users.GetByUsername("admin")
	require.NoError(t, err)
	approved, err := app.requests.Get(requestID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, approved.Status)
	require.NotNil(t, approved.ApprovedBy)
	assert.Equal(t, admin.ID, *approved.ApprovedBy)

	// Upload a receipt against the approved request
	requireRedirect(t, app.uploadReceipt(t, app.client, "taxi.png", "fake image bytes", map[string]string{
		"description": "Taxi fare",
		"amount":      "42.50",
		"request_id":  fmt.Sprint(requestID),
	}), "/")

	// The upload does not change the request's status
	stillApproved, err := app.requests.ListApprovedByUser(admin.ID)
	require.NoError(t, err)
	require.Len(t, stillApproved, 1)
	assert.Equal(t, requestID, stillApproved[0].ID)

	// Audit trail, oldest first
	entries, err := app.audit.Recent(10)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(entries), 4)
	var actions []string
	for i := len(entries) - 1; i >= 0; i-- {
		actions = append(actions, entries[i].Action)
	}
	assert.Equal(t, []string{
		"User admin logged in",
		"Created request: Taxi - $42.50",
		"Approved request: Taxi - $42.50",
		"Uploaded receipt: Taxi fare - $42.50",
	}, actions)

	// A second approve of the already-approved request is a silent no-op:
	// status and approver stay, and no fresh approval is logged
	requireRedirect(t, app.postForm(t, app.client, fmt.Sprintf("/approvals/%d/approve", requestID), nil), "/approvals")

	unchanged, err := app.requests.Get(requestID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, unchanged.Status)
	assert.Equal(t, admin.ID, *unchanged.ApprovedBy)

	after, err := app.audit.Recent(10)
	require.NoError(t, err)
	assert.Len(t, after, len(entries), "no-op resolution must not add a log entry")
}

func TestFirstLoginForcesPasswordChange(t *testing.T) {
	app := newTestApp(t)

	_, tempPassword, err := app.users.CreateWithTempPassword("bob", "Bob Brown", models.RoleUser)
	require.NoError(t, err)

	requireRedirect(t, app.login(t, app.client, "bob", tempPassword), "/change-password")

	// Everything except the password change is fenced off
	requireRedirect(t, app.get(t, app.client, "/"), "/change-password")
	requireRedirect(t, app.get(t, app.client, "/requests/new"), "/change-password")

	resp := app.get(t, app.client, "/change-password")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	requireRedirect(t, app.postForm(t, app.client, "/change-password", url.Values{
		"new_password":     {"brandnew"},
		"confirm_password": {"brandnew"},
	}), "/")

	resp = app.get(t, app.client, "/")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// The temp password no longer works; the new one does
	_, err = app.users.Authenticate("bob", tempPassword)
	assert.ErrorIs(t, err, auth.ErrInvalidPassword)
	_, err = app.users.Authenticate("bob", "brandnew")
	assert.NoError(t, err)
}

func TestRoleGating(t *testing.T) {
	app := newTestApp(t)

	_, tempPassword, err := app.users.CreateWithTempPassword("bob", "Bob Brown", models.RoleUser)
	require.NoError(t, err)

	requireRedirect(t, app.login(t, app.client, "bob", tempPassword), "/change-password")
	requireRedirect(t, app.postForm(t, app.client, "/change-password", url.Values{
		"new_password":     {"brandnew"},
		"confirm_password": {"brandnew"},
	}), "/")

	// A plain user is bounced off approver and admin pages but stays
	// signed in
	requireRedirect(t, app.get(t, app.client, "/approvals"), "/")
	requireRedirect(t, app.get(t, app.client, "/admin/users"), "/")
	requireRedirect(t, app.get(t, app.client, "/admin/logs"), "/")

	resp := app.get(t, app.client, "/")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestAdminCreatesUserWithTempPassword(t *testing.T) {
	app := newTestApp(t)
	app.postForm(t, app.client, "/bootstrap", nil).Body.Close()
	requireRedirect(t, app.login(t, app.client, "admin", "admin123"), "/")

	requireRedirect(t, app.postForm(t, app.client, "/admin/users/new", url.Values{
		"username": {"dana"},
		"name":     {"Dana White"},
		"role":     {"approver"},
	}), "/admin/users")

	// The temporary password is flashed exactly once on the users page
	resp := app.get(t, app.client, "/admin/users")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	_, data := app.tmpl.last()
	flashes, ok := data["Flashes"].([]auth.FlashMessage)
	require.True(t, ok)
	require.Len(t, flashes, 1)
	tempPassword := strings.TrimPrefix(flashes[0].Message, "User created! Temporary password: ")
	require.NotEqual(t, flashes[0].Message, tempPassword, "flash must carry the temp password")

	// The relayed password signs the new approver in, straight into the
	// forced password change
	other := newClient(t)
	requireRedirect(t, app.login(t, other, "dana", tempPassword), "/change-password")

	// Duplicate username fails without creating anything
	resp = app.postForm(t, app.client, "/admin/users/new", url.Values{
		"username": {"dana"},
		"name":     {"Dana Again"},
		"role":     {"user"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	name, data := app.tmpl.last()
	assert.Equal(t, "user_new.html", name)
	assert.Equal(t, "Username already exists.", data["Error"])
}

func TestUploadValidation(t *testing.T) {
	app := newTestApp(t)
	app.postForm(t, app.client, "/bootstrap", nil).Body.Close()
	requireRedirect(t, app.login(t, app.client, "admin", "admin123"), "/")

	// No file chosen
	resp := app.uploadReceipt(t, app.client, "", "", map[string]string{
		"description": "Lunch",
		"amount":      "10.00",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	name, data := app.tmpl.last()
	assert.Equal(t, "receipt_upload.html", name)
	assert.Equal(t, "Please choose a file to upload.", data["Error"])

	// Bad amount
	resp = app.uploadReceipt(t, app.client, "lunch.png", "bytes", map[string]string{
		"description": "Lunch",
		"amount":      "zero",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	_, data = app.tmpl.last()
	assert.Equal(t, "Amount must be a positive number.", data["Error"])
}
