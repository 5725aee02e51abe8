package http_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	nethttp "net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/taskdeck/taskdeck/internal/taskdeck/blob"
	taskdeckhttp "github.com/taskdeck/taskdeck/internal/taskdeck/http"
	"github.com/taskdeck/taskdeck/internal/taskdeck/identity"
	"github.com/taskdeck/taskdeck/internal/taskdeck/records"
	"github.com/taskdeck/taskdeck/internal/taskdeck/service"
	"github.com/taskdeck/taskdeck/internal/taskdeck/session"
	"github.com/taskdeck/taskdeck/internal/taskdeck/store/drivers/sqlite"
	"github.com/taskdeck/taskdeck/pkg/jwtx"
)

type testServer struct {
	srv     *httptest.Server
	store   *sqlite.Store
	records *records.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	dir := t.TempDir()
	st, err := sqlite.NewStore(filepath.Join(dir, "taskdeck.db"))
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations())
	t.Cleanup(func() { _ = st.Close() })

	rs := records.NewStore(st.Handle(), records.Tables())

	signer, err := jwtx.GenerateEdDSASigner("test-key")
	require.NoError(t, err)
	verifier := signer.Verifier("taskdeck-test")

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	resolver := session.NewResolver(st, logger, time.Millisecond)

	bs, err := blob.NewStore(filepath.Join(dir, "blobs"), "http://test/files", nil)
	require.NoError(t, err)

	r := taskdeckhttp.NewRouter(verifier, "test", st, rs, resolver, logger)
	r.Identity = identity.NewProvider(st, signer, verifier, "taskdeck-test", time.Hour)
	r.InviteService = &service.InviteService{Store: st, Records: rs}
	r.TaskService = &service.TaskService{Store: st, Records: rs}
	r.AccountService = &service.AccountService{Store: st, Records: rs}
	r.UserService = &service.UserService{Store: st, Records: rs}
	r.Blob = bs
	r.ApplyRoutes()

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &testServer{srv: srv, store: st, records: rs}
}

// do issues a JSON request and decodes the response body into out when
// out is non-nil.
func (ts *testServer) do(t *testing.T, method, path, token string, body, out any) int {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req, err := nethttp.NewRequest(method, ts.srv.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := ts.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

// signUp registers a user and resolves their session so the profile and
// first account exist, returning the token and the resolved session.
func (ts *testServer) signUp(t *testing.T, email, name, accountName string) (string, map[string]any) {
	t.Helper()

	var sess map[string]any
	code := ts.do(t, "POST", "/v1/auth/sign-up", "", map[string]any{
		"email":        email,
		"password":     "hunter2hunter2",
		"name":         name,
		"account_name": accountName,
	}, &sess)
	require.Equal(t, nethttp.StatusCreated, code)

	token := sess["token"].(string)

	var info map[string]any
	code = ts.do(t, "GET", "/v1/session", token, nil, &info)
	require.Equal(t, nethttp.StatusOK, code)
	return token, info
}

func accountID(t *testing.T, info map[string]any) string {
	t.Helper()
	acc, ok := info["account"].(map[string]any)
	require.True(t, ok, "session has no account")
	return acc["id"].(string)
}

func TestSignUpAndSessionBootstrap(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	_, info := ts.signUp(t, "alice@example.com", "Alice", "Acme")

	user := info["user"].(map[string]any)
	require.Equal(t, "Alice", user["name"])
	require.Equal(t, "alice@example.com", user["email"])

	acc := info["account"].(map[string]any)
	require.Equal(t, "Acme", acc["name"])
	require.Equal(t, "admin", info["role"])
}

func TestSignUpDuplicateEmail(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	ts.signUp(t, "bob@example.com", "", "")

	code := ts.do(t, "POST", "/v1/auth/sign-up", "", map[string]any{
		"email":    "BOB@example.com",
		"password": "hunter2hunter2",
	}, nil)
	require.Equal(t, nethttp.StatusConflict, code)
}

func TestSignInWrongPassword(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	ts.signUp(t, "carol@example.com", "", "")

	code := ts.do(t, "POST", "/v1/auth/sign-in", "", map[string]any{
		"email":    "carol@example.com",
		"password": "not-the-password",
	}, nil)
	require.Equal(t, nethttp.StatusUnauthorized, code)
}

func TestSessionRequiresAuth(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	code := ts.do(t, "GET", "/v1/session", "", nil, nil)
	require.Equal(t, nethttp.StatusUnauthorized, code)
}

func TestTaskLifecycleOverHTTP(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	token, info := ts.signUp(t, "dave@example.com", "Dave", "")
	accID := accountID(t, info)

	var task map[string]any
	code := ts.do(t, "POST", "/v1/accounts/"+accID+"/tasks", token, nil, &task)
	require.Equal(t, nethttp.StatusCreated, code)
	require.Equal(t, "New task", task["title"])
	require.Equal(t, "active", task["status"])
	taskID := task["id"].(string)

	code = ts.do(t, "PATCH", "/v1/tasks/"+taskID, token, map[string]any{
		"title":                "Ship the release",
		"description_markdown": "# Steps\n\n- tag\n- push",
	}, &task)
	require.Equal(t, nethttp.StatusOK, code)
	require.Equal(t, "Ship the release", task["title"])
	require.Equal(t, "Steps tag push", task["excerpt"])

	code = ts.do(t, "POST", "/v1/tasks/"+taskID+"/complete", token, nil, &task)
	require.Equal(t, nethttp.StatusOK, code)
	require.Equal(t, "completed", task["status"])
	require.NotEmpty(t, task["completed_at"])

	code = ts.do(t, "POST", "/v1/tasks/"+taskID+"/reopen", token, nil, &task)
	require.Equal(t, nethttp.StatusOK, code)
	require.Equal(t, "active", task["status"])
	require.Nil(t, task["completed_at"])

	code = ts.do(t, "DELETE", "/v1/tasks/"+taskID, token, nil, nil)
	require.Equal(t, nethttp.StatusNoContent, code)

	code = ts.do(t, "GET", "/v1/tasks/"+taskID, token, nil, nil)
	require.Equal(t, nethttp.StatusNotFound, code)
}

func TestTaskExportDownload(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	token, info := ts.signUp(t, "erin@example.com", "", "")
	accID := accountID(t, info)

	var task map[string]any
	ts.do(t, "POST", "/v1/accounts/"+accID+"/tasks", token, nil, &task)
	taskID := task["id"].(string)
	ts.do(t, "PATCH", "/v1/tasks/"+taskID, token, map[string]any{
		"title":                "Weekly Report",
		"description_markdown": "All good.",
	}, nil)

	req, err := nethttp.NewRequest("GET", ts.srv.URL+"/v1/tasks/"+taskID+"/export", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := ts.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, nethttp.StatusOK, resp.StatusCode)
	require.Contains(t, resp.Header.Get("Content-Disposition"), `weekly-report.md`)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(body), "# Weekly Report"))
	require.Contains(t, string(body), "All good.")
}

func TestAccountHiddenFromOutsiders(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	_, aliceInfo := ts.signUp(t, "alice@example.com", "", "")
	bobToken, _ := ts.signUp(t, "bob@example.com", "", "")

	accID := accountID(t, aliceInfo)
	code := ts.do(t, "GET", "/v1/accounts/"+accID, bobToken, nil, nil)
	require.Equal(t, nethttp.StatusNotFound, code)

	code = ts.do(t, "GET", "/v1/accounts/"+accID+"/tasks", bobToken, nil, nil)
	require.Equal(t, nethttp.StatusNotFound, code)
}

func TestInviteFlowOverHTTP(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	adminToken, adminInfo := ts.signUp(t, "owner@example.com", "", "Acme")
	accID := accountID(t, adminInfo)

	var inv map[string]any
	code := ts.do(t, "POST", "/v1/accounts/"+accID+"/invites", adminToken, map[string]any{
		"role": "manager",
	}, &inv)
	require.Equal(t, nethttp.StatusCreated, code)
	inviteCode := inv["code"].(string)

	// Anyone can preview the invite before signing in.
	var preview map[string]any
	code = ts.do(t, "GET", "/v1/invites/"+inviteCode, "", nil, &preview)
	require.Equal(t, nethttp.StatusOK, code)
	require.Equal(t, "Acme", preview["account_name"])
	require.Equal(t, "manager", preview["role"])

	guestToken, _ := ts.signUp(t, "newhire@example.com", "", "")

	var membership map[string]any
	code = ts.do(t, "POST", "/v1/invites/"+inviteCode+"/accept", guestToken, nil, &membership)
	require.Equal(t, nethttp.StatusOK, code)
	require.Equal(t, accID, membership["account_id"])
	require.Equal(t, "manager", membership["role"])

	// A third party hitting the burned code conflicts.
	thirdToken, _ := ts.signUp(t, "stranger@example.com", "", "")
	code = ts.do(t, "POST", "/v1/invites/"+inviteCode+"/accept", thirdToken, nil, nil)
	require.Equal(t, nethttp.StatusConflict, code)
}

func TestInviteMintRequiresManager(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	adminToken, adminInfo := ts.signUp(t, "owner@example.com", "", "")
	accID := accountID(t, adminInfo)

	var inv map[string]any
	ts.do(t, "POST", "/v1/accounts/"+accID+"/invites", adminToken, map[string]any{
		"role": "guest",
	}, &inv)

	guestToken, _ := ts.signUp(t, "guest@example.com", "", "")
	var m map[string]any
	code := ts.do(t, "POST", "/v1/invites/"+inv["code"].(string)+"/accept", guestToken, nil, &m)
	require.Equal(t, nethttp.StatusOK, code)

	code = ts.do(t, "POST", "/v1/accounts/"+accID+"/invites", guestToken, map[string]any{
		"role": "admin",
	}, nil)
	require.Equal(t, nethttp.StatusForbidden, code)
}

func TestChangeRoleRequiresAdmin(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	adminToken, adminInfo := ts.signUp(t, "owner@example.com", "", "")
	accID := accountID(t, adminInfo)

	var inv map[string]any
	ts.do(t, "POST", "/v1/accounts/"+accID+"/invites", adminToken, map[string]any{
		"role": "manager",
	}, &inv)

	managerToken, managerInfo := ts.signUp(t, "manager@example.com", "", "")
	var m map[string]any
	ts.do(t, "POST", "/v1/invites/"+inv["code"].(string)+"/accept", managerToken, nil, &m)
	managerID := managerInfo["user"].(map[string]any)["id"].(string)

	// Managers cannot change roles.
	adminID := adminInfo["user"].(map[string]any)["id"].(string)
	code := ts.do(t, "PUT",
		fmt.Sprintf("/v1/accounts/%s/members/%s/role", accID, adminID),
		managerToken, map[string]any{"role": "guest"}, nil)
	require.Equal(t, nethttp.StatusForbidden, code)

	// Admins can.
	var updated map[string]any
	code = ts.do(t, "PUT",
		fmt.Sprintf("/v1/accounts/%s/members/%s/role", accID, managerID),
		adminToken, map[string]any{"role": "default"}, &updated)
	require.Equal(t, nethttp.StatusOK, code)
	require.Equal(t, "default", updated["role"])
}

func TestSwitchAccountOverHTTP(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	adminToken, adminInfo := ts.signUp(t, "owner@example.com", "", "First")
	firstID := accountID(t, adminInfo)

	var inv map[string]any
	ts.do(t, "POST", "/v1/accounts/"+firstID+"/invites", adminToken, map[string]any{
		"role": "default",
	}, &inv)

	otherToken, otherInfo := ts.signUp(t, "other@example.com", "", "Second")
	secondID := accountID(t, otherInfo)

	var m map[string]any
	code := ts.do(t, "POST", "/v1/invites/"+inv["code"].(string)+"/accept", otherToken, nil, &m)
	require.Equal(t, nethttp.StatusOK, code)

	// Accepting touched the first account's membership, so switch back.
	var info map[string]any
	code = ts.do(t, "POST", "/v1/session/switch-account", otherToken, map[string]any{
		"account_id": secondID,
	}, &info)
	require.Equal(t, nethttp.StatusOK, code)
	require.Equal(t, secondID, accountID(t, info))

	// Switching to a foreign account changes nothing.
	strangerToken, strangerInfo := ts.signUp(t, "stranger@example.com", "", "Mine")
	mine := accountID(t, strangerInfo)
	code = ts.do(t, "POST", "/v1/session/switch-account", strangerToken, map[string]any{
		"account_id": firstID,
	}, &info)
	require.Equal(t, nethttp.StatusOK, code)
	require.Equal(t, mine, accountID(t, info))
}

func TestUpdateOwnProfile(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	token, _ := ts.signUp(t, "frank@example.com", "Frank", "")

	name := "Franklin"
	var user map[string]any
	code := ts.do(t, "PATCH", "/v1/users/me", token, map[string]any{
		"name": name,
	}, &user)
	require.Equal(t, nethttp.StatusOK, code)
	require.Equal(t, "Franklin", user["name"])
}

func TestUnknownFieldRejected(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	code := ts.do(t, "POST", "/v1/auth/sign-up", "", map[string]any{
		"email":    "zoe@example.com",
		"password": "hunter2hunter2",
		"surprise": true,
	}, nil)
	require.Equal(t, nethttp.StatusBadRequest, code)
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	var livez map[string]any
	code := ts.do(t, "GET", "/livez", "", nil, &livez)
	require.Equal(t, nethttp.StatusOK, code)
	require.Equal(t, "ok", livez["status"])

	var readyz map[string]any
	code = ts.do(t, "GET", "/readyz", "", nil, &readyz)
	require.Equal(t, nethttp.StatusOK, code)
	require.Equal(t, "ok", readyz["status"])
}
