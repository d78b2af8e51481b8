// Package handlers implements the gateway's HTTP endpoints: chat CRUD relay,
// message send, stream relay, lifecycle transitions, and inbox normalization.
// Every handler validates locally, resolves the caller's credential, issues at
// most one upstream call, and relays the result.
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/casaops/agentgate/internal/api/middleware"
	"github.com/casaops/agentgate/internal/audit"
	"github.com/casaops/agentgate/internal/credential"
	"github.com/casaops/agentgate/internal/upstream"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// sessionCookieName is the fallback credential source for browser callers
// that cannot set an Authorization header.
const sessionCookieName = "agentgate_session"

// Logical endpoint names used for upstream metrics labels.
const (
	endpointAgents    = "agents"
	endpointChats     = "chats"
	endpointChat      = "chat"
	endpointLifecycle = "lifecycle"
	endpointDelete    = "delete"
	endpointMessages  = "messages"
	endpointSend      = "send"
	endpointStream    = "stream"
	endpointInbox     = "inbox"
)

// Handler carries the shared dependencies for all gateway endpoints. Handlers
// never read ambient state: the credential provider, upstream client, and
// audit recorder are injected so each endpoint is testable with fakes.
type Handler struct {
	credentials *credential.Provider
	upstream    *upstream.Client
	audit       *audit.Recorder
}

// New builds the endpoint handler set.
func New(credentials *credential.Provider, client *upstream.Client, recorder *audit.Recorder) *Handler {
	return &Handler{
		credentials: credentials,
		upstream:    client,
		audit:       recorder,
	}
}

// sessionKey returns the caller's session key from the Authorization header
// or, failing that, the session cookie. Empty means the caller presented no
// credential at all.
func sessionKey(c *gin.Context) string {
	authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		if key := strings.TrimSpace(authHeader[7:]); key != "" {
			return key
		}
	}
	if cookie, err := c.Cookie(sessionCookieName); err == nil {
		return strings.TrimSpace(cookie)
	}
	return ""
}

// writeError sends the gateway's uniform failure envelope. Once response
// headers have been committed (a stream relay in progress) nothing can be
// written, so the error is dropped and the stream simply ends.
func writeError(c *gin.Context, status int, message string) {
	if c.Writer.Written() {
		return
	}
	c.JSON(status, gin.H{"ok": false, "error": message})
}

// writeUpstreamError maps an upstream call failure onto the envelope: a
// rejection relays the upstream's own status and extracted message, a
// transport failure collapses to one fixed bad-gateway response.
func writeUpstreamError(c *gin.Context, endpoint string, err error) {
	var statusErr *upstream.StatusError
	if errors.As(err, &statusErr) {
		middleware.RecordUpstreamRequest(endpoint, statusErr.StatusCode)
		writeError(c, statusErr.StatusCode, statusErr.Message)
		return
	}
	middleware.RecordUpstreamUnreachable(endpoint)
	log.Errorf("upstream %s call failed: %v", endpoint, err)
	writeError(c, http.StatusBadGateway, "agent service is unreachable")
}

// resolveToken authenticates the caller. A false result means no credential
// could be resolved and the 401 envelope has already been written.
func (h *Handler) resolveToken(c *gin.Context) (string, bool) {
	token, ok := h.credentials.Resolve(c.Request.Context(), sessionKey(c))
	if !ok {
		writeError(c, http.StatusUnauthorized, "authentication required")
		return "", false
	}
	return token, true
}

// forward issues one non-streaming upstream call and records its outcome. A
// false result means the failure envelope has already been written.
func (h *Handler) forward(c *gin.Context, endpoint string, req upstream.Request) (*upstream.Response, bool) {
	resp, err := h.upstream.Do(c.Request.Context(), req)
	if err != nil {
		writeUpstreamError(c, endpoint, err)
		return nil, false
	}
	middleware.RecordUpstreamRequest(endpoint, resp.StatusCode)
	return resp, true
}

// relay writes an upstream reply through unchanged, preserving the upstream's
// declared content type.
func relay(c *gin.Context, resp *upstream.Response) {
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/json"
	}
	c.Data(resp.StatusCode, contentType, resp.Body)
}

// requireOrgID reads org_id from the query string. Validation happens before
// credential resolution and long before any upstream call.
func requireOrgID(c *gin.Context) (string, bool) {
	orgID := strings.TrimSpace(c.Query("org_id"))
	if orgID == "" {
		writeError(c, http.StatusBadRequest, "org_id is required")
		return "", false
	}
	return orgID, true
}

// requireChatID reads the chat id path segment.
func requireChatID(c *gin.Context) (string, bool) {
	chatID := strings.TrimSpace(c.Param("chat_id"))
	if chatID == "" {
		writeError(c, http.StatusBadRequest, "chat_id is required")
		return "", false
	}
	return chatID, true
}

// readBody buffers the request body. A false result means the 400 envelope
// has already been written.
func readBody(c *gin.Context) ([]byte, bool) {
	body, err := c.GetRawData()
	if err != nil {
		writeError(c, http.StatusBadRequest, "invalid request body")
		return nil, false
	}
	return body, true
}
