package handlers

import (
	"database/sql"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/casaops/agentgate/internal/audit"
	"github.com/casaops/agentgate/internal/credential"
	"github.com/casaops/agentgate/internal/upstream"
	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"
	"golang.org/x/net/context"
)

// capturedCall records what the fake upstream received.
type capturedCall struct {
	method string
	path   string
	query  url.Values
	body   []byte
	auth   string
}

// newFakeUpstream returns a server that always answers with the given status
// and body, counting calls and capturing the most recent request.
func newFakeUpstream(status int, body string) (*httptest.Server, *int32, *capturedCall) {
	var calls int32
	last := &capturedCall{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		last.method = r.Method
		last.path = r.URL.Path
		last.query = r.URL.Query()
		last.body, _ = io.ReadAll(r.Body)
		last.auth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	return server, &calls, last
}

// errSource always fails the session lookup.
type errSource struct{}

func (errSource) Session(context.Context, string) (credential.Credential, error) {
	return credential.Credential{}, errors.New("session lookup failed")
}

func newTestRouter(src credential.Source, upstreamURL string, recorder *audit.Recorder) *gin.Engine {
	gin.SetMode(gin.TestMode)
	provider := credential.NewProvider(src, 30*time.Second, 5*time.Minute)
	client := upstream.New(upstreamURL, 5*time.Second, 0)
	h := New(provider, client, recorder)

	router := gin.New()
	router.GET("/agent/agents", h.ListAgents)
	router.GET("/agent/chats", h.ListChats)
	router.POST("/agent/chats", h.CreateChat)
	router.GET("/agent/chats/:chat_id", h.GetChat)
	router.POST("/agent/chats/:chat_id", h.TransitionChat)
	router.DELETE("/agent/chats/:chat_id", h.DeleteChat)
	router.GET("/agent/chats/:chat_id/messages", h.ListMessages)
	router.POST("/agent/chats/:chat_id/messages", h.SendMessage)
	router.POST("/agent/chats/:chat_id/messages/stream", h.StreamMessage)
	router.GET("/agent/inbox", h.Inbox)
	return router
}

func doRequest(router *gin.Engine, method, target, body string, authed bool) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if authed {
		req.Header.Set("Authorization", "Bearer session-key-1")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHandlers_ValidationRejectsBeforeUpstream(t *testing.T) {
	tests := []struct {
		name      string
		method    string
		target    string
		body      string
		wantError string
	}{
		{name: "list chats without org", method: http.MethodGet, target: "/agent/chats", wantError: "org_id is required"},
		{name: "list agents without org", method: http.MethodGet, target: "/agent/agents", wantError: "org_id is required"},
		{name: "create chat without org", method: http.MethodPost, target: "/agent/chats", body: `{"agent_slug":"ops"}`, wantError: "org_id is required"},
		{name: "create chat without agent slug", method: http.MethodPost, target: "/agent/chats", body: `{"org_id":"org-1"}`, wantError: "agent_slug is required"},
		{name: "get chat without org", method: http.MethodGet, target: "/agent/chats/chat-1", wantError: "org_id is required"},
		{name: "transition without org", method: http.MethodPost, target: "/agent/chats/chat-1", body: `{"action":"archive"}`, wantError: "org_id is required"},
		{name: "transition without action", method: http.MethodPost, target: "/agent/chats/chat-1", body: `{"org_id":"org-1"}`, wantError: "action is required"},
		{name: "transition with unknown verb", method: http.MethodPost, target: "/agent/chats/chat-1", body: `{"org_id":"org-1","action":"unarchive"}`, wantError: `action must be "archive" or "restore"`},
		{name: "delete without org", method: http.MethodDelete, target: "/agent/chats/chat-1", wantError: "org_id is required"},
		{name: "list messages without org", method: http.MethodGet, target: "/agent/chats/chat-1/messages", wantError: "org_id is required"},
		{name: "send without org", method: http.MethodPost, target: "/agent/chats/chat-1/messages", body: `{"message":"hi"}`, wantError: "org_id is required"},
		{name: "send without message", method: http.MethodPost, target: "/agent/chats/chat-1/messages", body: `{"org_id":"org-1"}`, wantError: "message is required"},
		{name: "send with blank message", method: http.MethodPost, target: "/agent/chats/chat-1/messages", body: `{"org_id":"org-1","message":"   "}`, wantError: "message is required"},
		{name: "stream without org", method: http.MethodPost, target: "/agent/chats/chat-1/messages/stream", body: `{"message":"hi"}`, wantError: "org_id is required"},
		{name: "stream without message", method: http.MethodPost, target: "/agent/chats/chat-1/messages/stream?org_id=org-1", body: `{}`, wantError: "message is required"},
		{name: "inbox without org", method: http.MethodGet, target: "/agent/inbox", wantError: "org_id is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, calls, _ := newFakeUpstream(http.StatusOK, `{}`)
			defer server.Close()
			router := newTestRouter(credential.StaticSource{Token: "tok"}, server.URL, nil)

			w := doRequest(router, tt.method, tt.target, tt.body, true)

			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
			if got := gjson.Get(w.Body.String(), "ok"); got.Type != gjson.False {
				t.Errorf("ok field = %s, want false", got.Raw)
			}
			if got := gjson.Get(w.Body.String(), "error").String(); got != tt.wantError {
				t.Errorf("error = %q, want %q", got, tt.wantError)
			}
			if n := atomic.LoadInt32(calls); n != 0 {
				t.Errorf("upstream calls = %d, want 0", n)
			}
		})
	}
}

func TestHandlers_UnauthenticatedRejectsBeforeUpstream(t *testing.T) {
	endpoints := []struct {
		name   string
		method string
		target string
		body   string
	}{
		{name: "list chats", method: http.MethodGet, target: "/agent/chats?org_id=org-1"},
		{name: "create chat", method: http.MethodPost, target: "/agent/chats", body: `{"org_id":"org-1","agent_slug":"ops"}`},
		{name: "get chat", method: http.MethodGet, target: "/agent/chats/chat-1?org_id=org-1"},
		{name: "transition", method: http.MethodPost, target: "/agent/chats/chat-1", body: `{"org_id":"org-1","action":"archive"}`},
		{name: "delete", method: http.MethodDelete, target: "/agent/chats/chat-1?org_id=org-1"},
		{name: "list messages", method: http.MethodGet, target: "/agent/chats/chat-1/messages?org_id=org-1"},
		{name: "send", method: http.MethodPost, target: "/agent/chats/chat-1/messages", body: `{"org_id":"org-1","message":"hi"}`},
		{name: "stream", method: http.MethodPost, target: "/agent/chats/chat-1/messages/stream?org_id=org-1", body: `{"message":"hi"}`},
		{name: "inbox", method: http.MethodGet, target: "/agent/inbox?org_id=org-1"},
		{name: "agents", method: http.MethodGet, target: "/agent/agents?org_id=org-1"},
	}
	for _, tt := range endpoints {
		t.Run(tt.name+" no credential presented", func(t *testing.T) {
			server, calls, _ := newFakeUpstream(http.StatusOK, `{}`)
			defer server.Close()
			router := newTestRouter(credential.StaticSource{Token: "tok"}, server.URL, nil)

			w := doRequest(router, tt.method, tt.target, tt.body, false)

			if w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
			}
			if got := gjson.Get(w.Body.String(), "error").String(); got != "authentication required" {
				t.Errorf("error = %q, want %q", got, "authentication required")
			}
			if n := atomic.LoadInt32(calls); n != 0 {
				t.Errorf("upstream calls = %d, want 0", n)
			}
		})
	}

	t.Run("session lookup failure reads as unauthenticated", func(t *testing.T) {
		server, calls, _ := newFakeUpstream(http.StatusOK, `{}`)
		defer server.Close()
		router := newTestRouter(errSource{}, server.URL, nil)

		w := doRequest(router, http.MethodGet, "/agent/chats?org_id=org-1", "", true)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
		}
		if n := atomic.LoadInt32(calls); n != 0 {
			t.Errorf("upstream calls = %d, want 0", n)
		}
	})
}

func TestProxy_RelaysUpstreamRejection(t *testing.T) {
	server, calls, _ := newFakeUpstream(http.StatusInternalServerError, `{"detail":"boom"}`)
	defer server.Close()
	router := newTestRouter(credential.StaticSource{Token: "tok"}, server.URL, nil)

	w := doRequest(router, http.MethodGet, "/agent/chats?org_id=org-1", "", true)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	if got := gjson.Get(w.Body.String(), "error").String(); got != "boom" {
		t.Errorf("error = %q, want %q", got, "boom")
	}
	if got := gjson.Get(w.Body.String(), "ok"); got.Type != gjson.False {
		t.Errorf("ok field = %s, want false", got.Raw)
	}
	if n := atomic.LoadInt32(calls); n != 1 {
		t.Errorf("upstream calls = %d, want 1", n)
	}
}

func TestProxy_UnreachableUpstreamIsBadGateway(t *testing.T) {
	server, _, _ := newFakeUpstream(http.StatusOK, `{}`)
	server.Close()
	router := newTestRouter(credential.StaticSource{Token: "tok"}, server.URL, nil)

	w := doRequest(router, http.MethodGet, "/agent/chats?org_id=org-1", "", true)

	if w.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadGateway)
	}
	if got := gjson.Get(w.Body.String(), "error").String(); got != "agent service is unreachable" {
		t.Errorf("error = %q, want %q", got, "agent service is unreachable")
	}
}

func TestProxy_RelaysSuccessBodyAndInjectsBearer(t *testing.T) {
	server, calls, last := newFakeUpstream(http.StatusOK, `{"organization_id":"org-1","archived":false,"data":[{"id":"chat-1"}]}`)
	defer server.Close()
	router := newTestRouter(credential.StaticSource{Token: "upstream-tok"}, server.URL, nil)

	w := doRequest(router, http.MethodGet, "/agent/chats?org_id=org-1&archived=true&limit=10", "", true)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if w.Body.String() != `{"organization_id":"org-1","archived":false,"data":[{"id":"chat-1"}]}` {
		t.Errorf("body = %s, want upstream body relayed verbatim", w.Body.String())
	}
	if n := atomic.LoadInt32(calls); n != 1 {
		t.Fatalf("upstream calls = %d, want 1", n)
	}
	if last.auth != "Bearer upstream-tok" {
		t.Errorf("upstream Authorization = %q, want %q", last.auth, "Bearer upstream-tok")
	}
	if got := last.query.Get("archived"); got != "true" {
		t.Errorf("upstream archived = %q, want %q", got, "true")
	}
	if got := last.query.Get("limit"); got != "10" {
		t.Errorf("upstream limit = %q, want %q", got, "10")
	}
}

func TestListings_CoerceLimits(t *testing.T) {
	tests := []struct {
		name      string
		target    string
		wantLimit string
	}{
		{name: "chats non-numeric falls back", target: "/agent/chats?org_id=org-1&limit=abc", wantLimit: "30"},
		{name: "chats above max clamps", target: "/agent/chats?org_id=org-1&limit=9999", wantLimit: "100"},
		{name: "chats absent uses default", target: "/agent/chats?org_id=org-1", wantLimit: "30"},
		{name: "messages absent uses default", target: "/agent/chats/chat-1/messages?org_id=org-1", wantLimit: "120"},
		{name: "messages above max clamps", target: "/agent/chats/chat-1/messages?org_id=org-1&limit=301", wantLimit: "300"},
		{name: "inbox zero clamps to floor", target: "/agent/inbox?org_id=org-1&limit=0", wantLimit: "1"},
		{name: "inbox absent uses default", target: "/agent/inbox?org_id=org-1", wantLimit: "60"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, _, last := newFakeUpstream(http.StatusOK, `{"data":[]}`)
			defer server.Close()
			router := newTestRouter(credential.StaticSource{Token: "tok"}, server.URL, nil)

			w := doRequest(router, http.MethodGet, tt.target, "", true)

			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
			}
			if got := last.query.Get("limit"); got != tt.wantLimit {
				t.Errorf("upstream limit = %q, want %q", got, tt.wantLimit)
			}
		})
	}
}

func TestSendMessage_StrictFlagTyping(t *testing.T) {
	tests := []struct {
		name               string
		body               string
		wantAllowMutations bool
		wantConfirmWrite   bool
	}{
		{
			name:               "absent flags default to false",
			body:               `{"org_id":"org-1","message":"hello"}`,
			wantAllowMutations: false,
			wantConfirmWrite:   false,
		},
		{
			name:               "string true stays false",
			body:               `{"org_id":"org-1","message":"hello","allow_mutations":"true","confirm_write":"true"}`,
			wantAllowMutations: false,
			wantConfirmWrite:   false,
		},
		{
			name:               "real booleans pass through",
			body:               `{"org_id":"org-1","message":"hello","allow_mutations":true,"confirm_write":true}`,
			wantAllowMutations: true,
			wantConfirmWrite:   true,
		},
		{
			name:               "mixed typing honors only the real boolean",
			body:               `{"org_id":"org-1","message":"hello","allow_mutations":true,"confirm_write":"true"}`,
			wantAllowMutations: true,
			wantConfirmWrite:   false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, _, last := newFakeUpstream(http.StatusOK, `{"reply":"done"}`)
			defer server.Close()
			router := newTestRouter(credential.StaticSource{Token: "tok"}, server.URL, nil)

			w := doRequest(router, http.MethodPost, "/agent/chats/chat-1/messages", tt.body, true)

			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
			}
			allow := gjson.GetBytes(last.body, "allow_mutations")
			if allow.Type != gjson.True && allow.Type != gjson.False {
				t.Fatalf("allow_mutations forwarded as %s, want strict boolean", allow.Raw)
			}
			if allow.Bool() != tt.wantAllowMutations {
				t.Errorf("allow_mutations = %v, want %v", allow.Bool(), tt.wantAllowMutations)
			}
			confirm := gjson.GetBytes(last.body, "confirm_write")
			if confirm.Type != gjson.True && confirm.Type != gjson.False {
				t.Fatalf("confirm_write forwarded as %s, want strict boolean", confirm.Raw)
			}
			if confirm.Bool() != tt.wantConfirmWrite {
				t.Errorf("confirm_write = %v, want %v", confirm.Bool(), tt.wantConfirmWrite)
			}
			if got := gjson.GetBytes(last.body, "message").String(); got != "hello" {
				t.Errorf("message = %q, want %q", got, "hello")
			}
		})
	}
}

func TestSendMessage_BodyOrgWinsOverQuery(t *testing.T) {
	server, _, last := newFakeUpstream(http.StatusOK, `{"reply":"done"}`)
	defer server.Close()
	router := newTestRouter(credential.StaticSource{Token: "tok"}, server.URL, nil)

	w := doRequest(router, http.MethodPost,
		"/agent/chats/chat-1/messages?org_id=org-query",
		`{"org_id":"org-body","message":"hello"}`, true)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if got := last.query.Get("org_id"); got != "org-body" {
		t.Errorf("upstream org_id = %q, want body value %q", got, "org-body")
	}

	w = doRequest(router, http.MethodPost,
		"/agent/chats/chat-1/messages?org_id=org-query",
		`{"message":"hello"}`, true)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if got := last.query.Get("org_id"); got != "org-query" {
		t.Errorf("upstream org_id = %q, want query fallback %q", got, "org-query")
	}
}

func TestTransitionChat_FansOutToVerbEndpoints(t *testing.T) {
	tests := []struct {
		name     string
		action   string
		wantPath string
	}{
		{name: "archive", action: "archive", wantPath: "/agent/chats/chat-42/archive"},
		{name: "restore", action: "restore", wantPath: "/agent/chats/chat-42/restore"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, calls, last := newFakeUpstream(http.StatusOK,
				`{"ok":true,"organization_id":"org-1","chat_id":"chat-42","is_archived":true}`)
			defer server.Close()
			router := newTestRouter(credential.StaticSource{Token: "tok"}, server.URL, nil)

			w := doRequest(router, http.MethodPost, "/agent/chats/chat-42",
				`{"org_id":"org-1","action":"`+tt.action+`"}`, true)

			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
			}
			if n := atomic.LoadInt32(calls); n != 1 {
				t.Fatalf("upstream calls = %d, want 1", n)
			}
			if last.method != http.MethodPost {
				t.Errorf("upstream method = %q, want %q", last.method, http.MethodPost)
			}
			if last.path != tt.wantPath {
				t.Errorf("upstream path = %q, want %q", last.path, tt.wantPath)
			}
			if got := last.query.Get("org_id"); got != "org-1" {
				t.Errorf("upstream org_id = %q, want %q", got, "org-1")
			}
		})
	}
}

func TestDeleteChat_CarriesOrgScope(t *testing.T) {
	server, calls, last := newFakeUpstream(http.StatusOK,
		`{"ok":true,"organization_id":"org-1","chat_id":"chat-42"}`)
	defer server.Close()
	router := newTestRouter(credential.StaticSource{Token: "tok"}, server.URL, nil)

	w := doRequest(router, http.MethodDelete, "/agent/chats/chat-42?org_id=org-1", "", true)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if n := atomic.LoadInt32(calls); n != 1 {
		t.Fatalf("upstream calls = %d, want 1", n)
	}
	if last.method != http.MethodDelete {
		t.Errorf("upstream method = %q, want %q", last.method, http.MethodDelete)
	}
	if last.path != "/agent/chats/chat-42" {
		t.Errorf("upstream path = %q, want %q", last.path, "/agent/chats/chat-42")
	}
	if got := last.query.Get("org_id"); got != "org-1" {
		t.Errorf("upstream org_id = %q, want %q", got, "org-1")
	}
}

func TestInbox_NormalizesUpstreamPayload(t *testing.T) {
	server, _, last := newFakeUpstream(http.StatusOK, `{
		"organization_id":"org-1",
		"data":[
			{"id":"a1","kind":"approval","priority":"high","title":"Approval needed"},
			{"kind":"anomaly","priority":"critical","title":"missing id"},
			{"id":"a3","kind":"task","priority":"medium"},
			{"id":"a4","kind":"billing_hold","priority":"urgent","title":"Unknown kind kept"}
		],
		"count":4
	}`)
	defer server.Close()
	router := newTestRouter(credential.StaticSource{Token: "tok"}, server.URL, nil)

	w := doRequest(router, http.MethodGet, "/agent/inbox?org_id=org-1&limit=50", "", true)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if got := last.query.Get("limit"); got != "50" {
		t.Errorf("upstream limit = %q, want %q", got, "50")
	}

	body := w.Body.String()
	if got := gjson.Get(body, "organization_id").String(); got != "org-1" {
		t.Errorf("organization_id = %q, want %q", got, "org-1")
	}
	if got := gjson.Get(body, "count").Int(); got != 2 {
		t.Errorf("count = %d, want 2 after dropping malformed items", got)
	}
	ids := gjson.Get(body, "data.#.id")
	if ids.Raw != `["a1","a4"]` {
		t.Errorf("data ids = %s, want [\"a1\",\"a4\"] in upstream order", ids.Raw)
	}
	if got := gjson.Get(body, "data.1.kind").String(); got != "billing_hold" {
		t.Errorf("unknown kind = %q, want passed through", got)
	}
}

func TestHandlers_RecordAuditTrail(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "audit.db")
	recorder, err := audit.Open(dbPath)
	if err != nil {
		t.Fatalf("audit.Open() error = %v", err)
	}
	defer func() { _ = recorder.Close() }()

	server, _, _ := newFakeUpstream(http.StatusOK,
		`{"id":"chat-77","organization_id":"org-1","title":"Leasing help","is_archived":false}`)
	defer server.Close()
	router := newTestRouter(credential.StaticSource{Token: "tok"}, server.URL, recorder)

	steps := []struct {
		method string
		target string
		body   string
	}{
		{method: http.MethodPost, target: "/agent/chats", body: `{"org_id":"org-1","agent_slug":"ops","title":"Leasing help"}`},
		{method: http.MethodPost, target: "/agent/chats/chat-77", body: `{"org_id":"org-1","action":"archive"}`},
		{method: http.MethodPost, target: "/agent/chats/chat-77", body: `{"org_id":"org-1","action":"restore"}`},
		{method: http.MethodPost, target: "/agent/chats/chat-77/messages", body: `{"org_id":"org-1","message":"update rent","allow_mutations":true,"confirm_write":true}`},
		{method: http.MethodPost, target: "/agent/chats/chat-77/messages", body: `{"org_id":"org-1","message":"read only"}`},
		{method: http.MethodDelete, target: "/agent/chats/chat-77?org_id=org-1"},
	}
	for _, step := range steps {
		if w := doRequest(router, step.method, step.target, step.body, true); w.Code != http.StatusOK {
			t.Fatalf("%s %s status = %d, want %d", step.method, step.target, w.Code, http.StatusOK)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open audit db: %v", err)
	}
	defer func() { _ = db.Close() }()

	wantActions := map[string]int{
		audit.ActionChatCreate:   1,
		audit.ActionChatArchive:  1,
		audit.ActionChatRestore:  1,
		audit.ActionWriteAttempt: 1,
		audit.ActionChatDelete:   1,
	}
	for action, want := range wantActions {
		var n int
		if err = db.QueryRow("SELECT COUNT(*) FROM audit_log WHERE action = ?", action).Scan(&n); err != nil {
			t.Fatalf("count %s: %v", action, err)
		}
		if n != want {
			t.Errorf("audit rows for %s = %d, want %d", action, n, want)
		}
	}

	var detail string
	if err = db.QueryRow("SELECT detail FROM audit_log WHERE action = ?", audit.ActionWriteAttempt).Scan(&detail); err != nil {
		t.Fatalf("read write_attempt detail: %v", err)
	}
	if got := gjson.Get(detail, "confirm_write"); got.Type != gjson.True {
		t.Errorf("write_attempt confirm_write = %s, want true", got.Raw)
	}
}

func TestSessionKeyExtraction(t *testing.T) {
	server, _, _ := newFakeUpstream(http.StatusOK, `{"data":[]}`)
	defer server.Close()
	router := newTestRouter(credential.StaticSource{Token: "tok"}, server.URL, nil)

	t.Run("cookie fallback authenticates", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/agent/chats?org_id=org-1", nil)
		req.AddCookie(&http.Cookie{Name: "agentgate_session", Value: "cookie-session"})
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
		}
	})

	t.Run("blank bearer is unauthenticated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/agent/chats?org_id=org-1", nil)
		req.Header.Set("Authorization", "Bearer   ")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})
}
