package server_test

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dreamlog/go-approval-server/approval"
	"github.com/dreamlog/go-approval-server/approval/sessions"
	"github.com/dreamlog/go-approval-server/internal/config"
	"github.com/dreamlog/go-approval-server/server"
	"github.com/dreamlog/go-approval-server/telegram"
	"github.com/dreamlog/go-approval-server/token"
)

const (
	testSecret   = "test-signing-secret"
	testBotToken = "123456:ABC-DEF1234ghIkl-zyx57W2v1u123ew11"
	ownerID      = int64(42)
	strangerID   = int64(7)
)

func newTestServer(t *testing.T, webApp *telegram.Validator) (*server.Server, *token.Codec) {
	t.Helper()

	codec, err := token.NewCodec(testSecret)
	require.NoError(t, err)

	service, err := approval.NewService(sessions.NewInMemoryRepo(), codec)
	require.NoError(t, err)

	srv, err := server.New(config.New(), service, webApp)
	require.NoError(t, err)

	return srv, codec
}

func doJSON(t *testing.T, srv *server.Server, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reqBody bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&reqBody).Encode(body))
	}

	req := httptest.NewRequest(method, target, &reqBody)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func startLoginBody(userID int64) map[string]any {
	return map[string]any{
		"action":     "start_login",
		"user_id":    userID,
		"username":   "johndoe",
		"first_name": "John",
	}
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := doJSON(t, srv, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestStatusRequiresSessionID(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := doJSON(t, srv, http.MethodGet, "/auth/session-status", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusUnknownSessionIsOKNotFound(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := doJSON(t, srv, http.MethodGet, "/auth/session-status?session_id=nope", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	require.Equal(t, false, body["exists"])
	require.NotContains(t, body, "approved")
	require.NotContains(t, body, "token")
}

func TestApprovalFlowOverHTTP(t *testing.T) {
	srv, codec := newTestServer(t, nil)

	// Start a login session.
	rec := doJSON(t, srv, http.MethodPost, "/auth/session", startLoginBody(ownerID))
	require.Equal(t, http.StatusOK, rec.Code)
	sessionID := decodeBody(t, rec)["session_id"].(string)
	require.NotEmpty(t, sessionID)

	// Pending session is visible to the poller.
	rec = doJSON(t, srv, http.MethodGet, "/auth/session-status?session_id="+sessionID, nil)
	body := decodeBody(t, rec)
	require.Equal(t, true, body["exists"])
	require.Equal(t, false, body["approved"])

	// Approve it; the response carries the token exactly once.
	rec = doJSON(t, srv, http.MethodPost, "/auth/session", map[string]any{
		"action":     "approve",
		"session_id": sessionID,
		"user_id":    ownerID,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	rawToken := decodeBody(t, rec)["token"].(string)

	v := codec.Verify(rawToken)
	require.True(t, v.Valid)
	require.Equal(t, ownerID, v.SubjectID)

	// The session is consumed.
	rec = doJSON(t, srv, http.MethodGet, "/auth/session-status?session_id="+sessionID, nil)
	require.Equal(t, false, decodeBody(t, rec)["exists"])

	// A second approval gets a 404, never a second token.
	rec = doJSON(t, srv, http.MethodPost, "/auth/session", map[string]any{
		"action":     "approve",
		"session_id": sessionID,
		"user_id":    ownerID,
	})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestApproveByStrangerIsForbidden(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := doJSON(t, srv, http.MethodPost, "/auth/session", startLoginBody(ownerID))
	sessionID := decodeBody(t, rec)["session_id"].(string)

	rec = doJSON(t, srv, http.MethodPost, "/auth/session", map[string]any{
		"action":     "approve",
		"session_id": sessionID,
		"user_id":    strangerID,
	})
	require.Equal(t, http.StatusForbidden, rec.Code)

	// The session survives the forbidden attempt.
	rec = doJSON(t, srv, http.MethodGet, "/auth/session-status?session_id="+sessionID, nil)
	require.Equal(t, true, decodeBody(t, rec)["exists"])
}

func TestDenyOverHTTP(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := doJSON(t, srv, http.MethodPost, "/auth/session", startLoginBody(ownerID))
	sessionID := decodeBody(t, rec)["session_id"].(string)

	rec = doJSON(t, srv, http.MethodPost, "/auth/session", map[string]any{
		"action":     "deny",
		"session_id": sessionID,
		"user_id":    ownerID,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/auth/session-status?session_id="+sessionID, nil)
	require.Equal(t, false, decodeBody(t, rec)["exists"])
}

func TestMalformedActionRequests(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	tests := []struct {
		name string
		body any
	}{
		{name: "unknown action", body: map[string]any{"action": "explode", "user_id": ownerID}},
		{name: "missing user id", body: map[string]any{"action": "start_login"}},
		{name: "approve without session id", body: map[string]any{"action": "approve", "user_id": ownerID}},
		{name: "deny without session id", body: map[string]any{"action": "deny", "user_id": ownerID}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, srv, http.MethodPost, "/auth/session", tc.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestInvalidJSONBody(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/auth/session", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

// signInitData mirrors how a Telegram client signs Web-App init data.
func signInitData(t *testing.T, botToken string, userID int64, authDate time.Time) string {
	t.Helper()

	fields := map[string]string{
		"auth_date": fmt.Sprintf("%d", authDate.Unix()),
		"user":      fmt.Sprintf(`{"id":%d,"first_name":"John","username":"johndoe"}`, userID),
	}

	dataCheck := "auth_date=" + fields["auth_date"] + "\nuser=" + fields["user"]

	keyMAC := hmac.New(sha256.New, []byte("WebAppData"))
	keyMAC.Write([]byte(botToken))
	mac := hmac.New(sha256.New, keyMAC.Sum(nil))
	mac.Write([]byte(dataCheck))

	values := url.Values{}
	values.Set("auth_date", fields["auth_date"])
	values.Set("user", fields["user"])
	values.Set("hash", hex.EncodeToString(mac.Sum(nil)))
	return values.Encode()
}

func TestInitDataAuthentication(t *testing.T) {
	webApp, err := telegram.NewValidator(testBotToken)
	require.NoError(t, err)
	srv, _ := newTestServer(t, webApp)

	// Without init data the body identity is not trusted.
	rec := doJSON(t, srv, http.MethodPost, "/auth/session", startLoginBody(ownerID))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// Garbage init data is rejected the same way.
	rec = doJSON(t, srv, http.MethodPost, "/auth/session", map[string]any{
		"action":    "start_login",
		"init_data": "hash=deadbeef&auth_date=1",
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// Properly signed init data authenticates the caller.
	rec = doJSON(t, srv, http.MethodPost, "/auth/session", map[string]any{
		"action":    "start_login",
		"init_data": signInitData(t, testBotToken, ownerID, time.Now()),
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, decodeBody(t, rec)["session_id"])
}

func TestCorsAllowedOrigin(t *testing.T) {
	t.Setenv("ALLOWED_ORIGINS", "https://app.example.com")
	srv, _ := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/auth/session-status?session_id=x", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/auth/session-status?session_id=x", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
