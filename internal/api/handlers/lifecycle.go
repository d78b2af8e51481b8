package handlers

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/casaops/agentgate/internal/audit"
	"github.com/casaops/agentgate/internal/chat"
	"github.com/casaops/agentgate/internal/upstream"
	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"golang.org/x/net/context"
)

// TransitionChat applies an archive or restore transition. The verb is a
// fixed enum validated locally; the gateway fans it out to the upstream's
// split per-verb endpoints.
func (h *Handler) TransitionChat(c *gin.Context) {
	chatID, ok := requireChatID(c)
	if !ok {
		return
	}
	body, ok := readBody(c)
	if !ok {
		return
	}
	orgID := strings.TrimSpace(gjson.GetBytes(body, "org_id").String())
	if orgID == "" {
		writeError(c, http.StatusBadRequest, "org_id is required")
		return
	}
	rawAction := gjson.GetBytes(body, "action").String()
	if strings.TrimSpace(rawAction) == "" {
		writeError(c, http.StatusBadRequest, "action is required")
		return
	}
	action, ok := chat.ParseAction(rawAction)
	if !ok {
		writeError(c, http.StatusBadRequest, `action must be "archive" or "restore"`)
		return
	}
	token, ok := h.resolveToken(c)
	if !ok {
		return
	}

	query := url.Values{}
	query.Set("org_id", orgID)

	resp, ok := h.forward(c, endpointLifecycle, upstream.Request{
		Method: http.MethodPost,
		Path:   "/agent/chats/" + chatID + "/" + action,
		Query:  query,
		Token:  token,
	})
	if !ok {
		return
	}

	auditAction := audit.ActionChatArchive
	if action == chat.ActionRestore {
		auditAction = audit.ActionChatRestore
	}
	detail, _ := sjson.SetBytes([]byte(`{}`), "is_archived", gjson.GetBytes(resp.Body, "is_archived").Bool())
	h.audit.Record(context.Background(), audit.Entry{
		OrganizationID: orgID,
		Action:         auditAction,
		ChatID:         chatID,
		Detail:         string(detail),
	})

	relay(c, resp)
}

// DeleteChat relays DELETE /agent/chats/:chat_id. The org scope is mandatory
// so a bare chat id can never delete across organizations.
func (h *Handler) DeleteChat(c *gin.Context) {
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

	resp, ok := h.forward(c, endpointDelete, upstream.Request{
		Method: http.MethodDelete,
		Path:   "/agent/chats/" + chatID,
		Query:  query,
		Token:  token,
	})
	if !ok {
		return
	}

	h.audit.Record(context.Background(), audit.Entry{
		OrganizationID: orgID,
		Action:         audit.ActionChatDelete,
		ChatID:         chatID,
	})

	relay(c, resp)
}
