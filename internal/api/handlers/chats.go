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

// ListChats relays GET /agent/chats with a bounded limit. The archived filter
// passes through as given; the backend owns its interpretation.
func (h *Handler) ListChats(c *gin.Context) {
	orgID, ok := requireOrgID(c)
	if !ok {
		return
	}
	token, ok := h.resolveToken(c)
	if !ok {
		return
	}

	limit := chat.CoerceLimit(c.Query("limit"), chat.DefaultChatLimit, chat.MaxChatLimit)
	query := url.Values{}
	query.Set("org_id", orgID)
	query.Set("limit", strconv.Itoa(limit))
	if archived := strings.TrimSpace(c.Query("archived")); archived != "" {
		query.Set("archived", archived)
	}

	resp, ok := h.forward(c, endpointChats, upstream.Request{
		Method: http.MethodGet,
		Path:   "/agent/chats",
		Query:  query,
		Token:  token,
	})
	if !ok {
		return
	}
	relay(c, resp)
}

// CreateChat relays POST /agent/chats. org_id and agent_slug live in the
// request body for this endpoint; both are required before the upstream is
// involved.
func (h *Handler) CreateChat(c *gin.Context) {
	body, ok := readBody(c)
	if !ok {
		return
	}
	orgID := strings.TrimSpace(gjson.GetBytes(body, "org_id").String())
	if orgID == "" {
		writeError(c, http.StatusBadRequest, "org_id is required")
		return
	}
	agentSlug := strings.TrimSpace(gjson.GetBytes(body, "agent_slug").String())
	if agentSlug == "" {
		writeError(c, http.StatusBadRequest, "agent_slug is required")
		return
	}
	token, ok := h.resolveToken(c)
	if !ok {
		return
	}

	resp, ok := h.forward(c, endpointChats, upstream.Request{
		Method: http.MethodPost,
		Path:   "/agent/chats",
		Body:   body,
		Token:  token,
	})
	if !ok {
		return
	}

	detail := []byte(`{}`)
	detail, _ = sjson.SetBytes(detail, "agent_slug", agentSlug)
	if title := gjson.GetBytes(resp.Body, "title").String(); title != "" {
		detail, _ = sjson.SetBytes(detail, "title", title)
	}
	h.audit.Record(context.Background(), audit.Entry{
		OrganizationID: orgID,
		Action:         audit.ActionChatCreate,
		ChatID:         gjson.GetBytes(resp.Body, "id").String(),
		Detail:         string(detail),
	})

	relay(c, resp)
}

// GetChat relays GET /agent/chats/:chat_id.
func (h *Handler) GetChat(c *gin.Context) {
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

	query := url.Values{}
	query.Set("org_id", orgID)

	resp, ok := h.forward(c, endpointChat, upstream.Request{
		Method: http.MethodGet,
		Path:   "/agent/chats/" + chatID,
		Query:  query,
		Token:  token,
	})
	if !ok {
		return
	}
	relay(c, resp)
}
