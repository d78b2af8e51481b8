package handlers

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/casaops/agentgate/internal/audit"
	"github.com/casaops/agentgate/internal/chat"
	"github.com/casaops/agentgate/internal/upstream"
	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"golang.org/x/net/context"
)

// ListMessages relays GET /agent/chats/:chat_id/messages with a bounded
// limit. Message order is whatever the backend stored; the gateway never
// reorders.
func (h *Handler) ListMessages(c *gin.Context) {
	chatID, ok := requireChatID(c)
	if !ok {
		return
	}
	orgID, ok := requireOrgID(c)
	if !ok {
		return
	}
	token, ok := h.resolveToken(c)
	if !ok {
		return
	}

	limit := chat.CoerceLimit(c.Query("limit"), chat.DefaultMessageLimit, chat.MaxMessageLimit)
	query := url.Values{}
	query.Set("org_id", orgID)
	query.Set("limit", strconv.Itoa(limit))

	resp, ok := h.forward(c, endpointMessages, upstream.Request{
		Method: http.MethodGet,
		Path:   "/agent/chats/" + chatID + "/messages",
		Query:  query,
		Token:  token,
	})
	if !ok {
		return
	}
	relay(c, resp)
}

// SendMessage relays a synchronous message send and waits for the agent's
// full reply. Approval flags are re-encoded as strict booleans so a coerced
// string can never grant capability the caller did not ask for.
func (h *Handler) SendMessage(c *gin.Context) {
	chatID, ok := requireChatID(c)
	if !ok {
		return
	}
	body, ok := readBody(c)
	if !ok {
		return
	}
	orgID := orgIDForSend(c, body)
	if orgID == "" {
		writeError(c, http.StatusBadRequest, "org_id is required")
		return
	}
	message := strings.TrimSpace(gjson.GetBytes(body, "message").String())
	if message == "" {
		writeError(c, http.StatusBadRequest, "message is required")
		return
	}
	token, ok := h.resolveToken(c)
	if !ok {
		return
	}

	flags := chat.ReadApprovalFlags(body)
	query := url.Values{}
	query.Set("org_id", orgID)

	resp, ok := h.forward(c, endpointSend, upstream.Request{
		Method: http.MethodPost,
		Path:   "/agent/chats/" + chatID + "/messages",
		Query:  query,
		Body:   sendPayload(message, flags),
		Token:  token,
	})
	if !ok {
		return
	}

	h.recordWriteAttempt(orgID, chatID, flags)
	relay(c, resp)
}

// orgIDForSend applies the documented tie-break for the send endpoints: a
// body org_id wins over the query parameter when both are supplied.
func orgIDForSend(c *gin.Context, body []byte) string {
	if v := strings.TrimSpace(gjson.GetBytes(body, "org_id").String()); v != "" {
		return v
	}
	return strings.TrimSpace(c.Query("org_id"))
}

// sendPayload builds the upstream send body from scratch rather than relaying
// the caller's bytes, so only the message and strictly typed flags go through.
func sendPayload(message string, flags chat.ApprovalFlags) []byte {
	payload := []byte(`{}`)
	payload, _ = sjson.SetBytes(payload, "message", message)
	payload, _ = sjson.SetBytes(payload, "allow_mutations", flags.AllowMutations)
	payload, _ = sjson.SetBytes(payload, "confirm_write", flags.ConfirmWrite)
	return payload
}

// recordWriteAttempt audits sends that requested mutation capability.
func (h *Handler) recordWriteAttempt(orgID, chatID string, flags chat.ApprovalFlags) {
	if !flags.AllowMutations {
		return
	}
	detail, _ := sjson.SetBytes([]byte(`{}`), "confirm_write", flags.ConfirmWrite)
	h.audit.Record(context.Background(), audit.Entry{
		OrganizationID: orgID,
		Action:         audit.ActionWriteAttempt,
		ChatID:         chatID,
		Detail:         string(detail),
	})
}
