package handlers

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/casaops/agentgate/internal/chat"
	"github.com/casaops/agentgate/internal/upstream"
	"github.com/gin-gonic/gin"
)

// Inbox fetches the organization's prioritized operational items and
// normalizes them: malformed entries are dropped, unknown kinds and
// priorities pass through, and the backend's ordering is preserved.
func (h *Handler) Inbox(c *gin.Context) {
	orgID, ok := requireOrgID(c)
	if !ok {
		return
	}
	token, ok := h.resolveToken(c)
	if !ok {
		return
	}

	limit := chat.CoerceLimit(c.Query("limit"), chat.DefaultInboxLimit, chat.MaxInboxLimit)
	query := url.Values{}
	query.Set("org_id", orgID)
	query.Set("limit", strconv.Itoa(limit))

	resp, ok := h.forward(c, endpointInbox, upstream.Request{
		Method: http.MethodGet,
		Path:   "/agent/inbox",
		Query:  query,
		Token:  token,
	})
	if !ok {
		return
	}

	items := chat.NormalizeInbox(resp.Body)
	c.JSON(http.StatusOK, gin.H{
		"organization_id": orgID,
		"data":            items,
		"count":           len(items),
	})
}
