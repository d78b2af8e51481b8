package handlers

import (
	"net/http"
	"net/url"

	"github.com/casaops/agentgate/internal/upstream"
	"github.com/gin-gonic/gin"
)

// ListAgents relays GET /agent/agents, the catalog of agent personas a chat
// can be created against.
func (h *Handler) ListAgents(c *gin.Context) {
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

	resp, ok := h.forward(c, endpointAgents, upstream.Request{
		Method: http.MethodGet,
		Path:   "/agent/agents",
		Query:  query,
		Token:  token,
	})
	if !ok {
		return
	}
	relay(c, resp)
}
