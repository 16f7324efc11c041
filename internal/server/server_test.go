package server

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"openhands-enterprise/backend/internal/apikeys"
	"openhands-enterprise/backend/internal/auth"
	"openhands-enterprise/backend/internal/devicecode"
	devicedomain "openhands-enterprise/backend/internal/devicecode/domain"
	"openhands-enterprise/backend/internal/sharing"
	sharingdomain "openhands-enterprise/backend/internal/sharing/domain"
	"openhands-enterprise/backend/internal/telemetry"
	webhookdomain "openhands-enterprise/backend/internal/webhook/domain"
	webhookrepo "openhands-enterprise/backend/internal/webhook/repository"
)

var testNow = time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)

// The production services must satisfy the handler-facing interfaces.
var (
	_ LicenseReporter    = (*telemetry.Scheduler)(nil)
	_ DeviceCodeService  = (*devicecode.Service)(nil)
	_ APIKeyIssuer       = (*apikeys.Service)(nil)
	_ AuthService        = (*auth.Service)(nil)
	_ SessionParser      = (*auth.SessionMinter)(nil)
	_ ConversationReader = (*sharing.Service)(nil)
	_ WebhookLookup      = (*webhookrepo.PostgresRepository)(nil)
	_ Pinger             = (*sql.DB)(nil)
)

func newTestServer(t *testing.T, deps Deps) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	srv := New(Config{
		Addr:       ":0",
		Env:        "test",
		WebHost:    "https://app.example.com",
		SessionTTL: time.Hour,
	}, deps, zap.NewNop())
	srv.nowFn = func() time.Time { return testNow }
	return srv
}

func doRequest(t *testing.T, srv *Server, method, target string, body any, opts ...func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, opt := range opts {
		opt(req)
	}
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response body %q: %v", w.Body.String(), err)
	}
	return body
}

func withSessionCookie(token string) func(*http.Request) {
	return func(req *http.Request) {
		req.AddCookie(&http.Cookie{Name: auth.SessionCookieName, Value: token})
	}
}

// mintTestSession returns a parser wired to a real minter plus a valid token.
func mintTestSession(t *testing.T, userID string) (*auth.SessionMinter, string) {
	t.Helper()
	minter, err := auth.NewSessionMinter("server-test-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewSessionMinter: %v", err)
	}
	token, err := minter.Mint(userID, "dev@example.com", "refresh-1")
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	return minter, token
}

type fakePinger struct {
	err error
}

func (f *fakePinger) PingContext(context.Context) error { return f.err }

type fakeLicense struct {
	status telemetry.LicenseStatus
}

func (f *fakeLicense) LicenseWarningStatus(context.Context) telemetry.LicenseStatus {
	return f.status
}

type authorizeCall struct {
	userCode string
	userID   string
}

type fakeDeviceCodes struct {
	created      *devicedomain.DeviceCode
	createErr    error
	byDeviceCode map[string]*devicedomain.DeviceCode
	getErr       error

	authorizeOK    bool
	authorizeErr   error
	authorizeCalls []authorizeCall

	denyOK    bool
	denyErr   error
	denyCalls []string
}

func (f *fakeDeviceCodes) Create(context.Context) (*devicedomain.DeviceCode, error) {
	return f.created, f.createErr
}

func (f *fakeDeviceCodes) GetByDeviceCode(_ context.Context, deviceCode string) (*devicedomain.DeviceCode, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.byDeviceCode[deviceCode], nil
}

func (f *fakeDeviceCodes) Authorize(_ context.Context, userCode, userID string) (bool, error) {
	f.authorizeCalls = append(f.authorizeCalls, authorizeCall{userCode: userCode, userID: userID})
	return f.authorizeOK, f.authorizeErr
}

func (f *fakeDeviceCodes) Deny(_ context.Context, userCode string) (bool, error) {
	f.denyCalls = append(f.denyCalls, userCode)
	return f.denyOK, f.denyErr
}

type fakeAPIKeys struct {
	key   string
	err   error
	calls []string
}

func (f *fakeAPIKeys) GetOrCreateLitellmKey(_ context.Context, userID string) (string, error) {
	f.calls = append(f.calls, userID)
	return f.key, f.err
}

type fakeAuth struct {
	result          *auth.CallbackResult
	err             error
	callbackCode    string
	callbackState   string
	verifyReturnURI string
}

func (f *fakeAuth) HandleCallback(_ context.Context, code, state string) (*auth.CallbackResult, error) {
	f.callbackCode = code
	f.callbackState = state
	return f.result, f.err
}

func (f *fakeAuth) VerifyEmailURL(returnURI string) string {
	f.verifyReturnURI = returnURI
	return "https://keycloak.example.com/verify?redirect_uri=" + returnURI
}

func (f *fakeAuth) WebHost() string { return "https://app.example.com" }

type searchCall struct {
	conversationID string
	afterSeq       int64
	limit          int
}

type fakeConversations struct {
	conv     *sharingdomain.Conversation
	convErr  error
	event    *sharingdomain.ConversationEvent
	eventErr error
	page     sharing.EventPage
	pageErr  error
	count    int64
	countErr error

	searchCalls []searchCall
	eventCalls  []eventCall
}

type eventCall struct {
	conversationID string
	seq            int64
}

func (f *fakeConversations) GetConversation(_ context.Context, id string) (*sharingdomain.Conversation, error) {
	return f.conv, f.convErr
}

func (f *fakeConversations) GetEvent(_ context.Context, conversationID string, seq int64) (*sharingdomain.ConversationEvent, error) {
	f.eventCalls = append(f.eventCalls, eventCall{conversationID: conversationID, seq: seq})
	return f.event, f.eventErr
}

func (f *fakeConversations) SearchEvents(_ context.Context, conversationID string, afterSeq int64, limit int) (sharing.EventPage, error) {
	f.searchCalls = append(f.searchCalls, searchCall{conversationID: conversationID, afterSeq: afterSeq, limit: limit})
	return f.page, f.pageErr
}

func (f *fakeConversations) CountEvents(_ context.Context, conversationID string) (int64, error) {
	return f.count, f.countErr
}

type fakeWebhooks struct {
	projects map[string]*webhookdomain.GitlabWebhook
	groups   map[string]*webhookdomain.GitlabWebhook
	err      error
}

func (f *fakeWebhooks) GetByResourceOnly(_ context.Context, projectID, groupID *string) (*webhookdomain.GitlabWebhook, error) {
	if f.err != nil {
		return nil, f.err
	}
	if projectID != nil {
		return f.projects[*projectID], nil
	}
	if groupID != nil {
		return f.groups[*groupID], nil
	}
	return nil, nil
}
