package handlers

import (
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/casaops/agentgate/internal/api/middleware"
	"github.com/casaops/agentgate/internal/chat"
	"github.com/casaops/agentgate/internal/upstream"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// StreamMessage relays a streaming message send. Failure reporting is
// two-phase: until the upstream produces its first bytes, errors return the
// structured envelope; once headers are committed, a failing upstream can
// only end the stream early. Event payloads pass through byte for byte, so
// event kinds introduced upstream need no gateway change.
func (h *Handler) StreamMessage(c *gin.Context) {
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

	// Get the http.Flusher interface to manually flush the response.
	flusher, canFlush := c.Writer.(http.Flusher)
	if !canFlush {
		writeError(c, http.StatusInternalServerError, "streaming not supported")
		return
	}

	flags := chat.ReadApprovalFlags(body)
	query := url.Values{}
	query.Set("org_id", orgID)

	resp, err := h.upstream.Stream(c.Request.Context(), upstream.Request{
		Method: http.MethodPost,
		Path:   "/agent/chats/" + chatID + "/messages/stream",
		Query:  query,
		Body:   sendPayload(message, flags),
		Token:  token,
	})
	if err != nil {
		writeUpstreamError(c, endpointStream, err)
		return
	}
	defer func() { _ = resp.Body.Close() }()
	middleware.RecordUpstreamRequest(endpointStream, resp.StatusCode)

	// A 2xx answer that produces no bytes is still a pre-stream failure:
	// peek the first chunk before committing headers.
	buf := make([]byte, 32*1024)
	n, readErr := resp.Body.Read(buf)
	if n == 0 {
		if readErr != nil && readErr != io.EOF {
			log.Errorf("upstream stream failed before first byte: %v", readErr)
		}
		writeError(c, http.StatusBadGateway, "agent service returned an empty stream")
		return
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "text/event-stream"
	}
	c.Header("Content-Type", contentType)
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(resp.StatusCode)

	middleware.RecordStreamOpened()
	start := time.Now()
	defer func() {
		middleware.RecordStreamClosed(time.Since(start))
		h.recordWriteAttempt(orgID, chatID, flags)
	}()

	for {
		if n > 0 {
			if _, errWrite := c.Writer.Write(buf[:n]); errWrite != nil {
				// Caller went away; the deferred body close cancels upstream.
				return
			}
			flusher.Flush()
		}
		if readErr != nil {
			// Upstream finished or dropped. Headers are committed either
			// way, so the relay just ends without a trailing error frame.
			if readErr != io.EOF {
				log.Debugf("upstream stream ended with error: %v", readErr)
			}
			return
		}
		n, readErr = resp.Body.Read(buf)
	}
}
