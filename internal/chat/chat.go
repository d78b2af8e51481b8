// Package chat holds the gateway-side domain rules for agent conversations:
// lifecycle verbs, pagination bounds, approval-flag typing, and inbox
// normalization. Everything else about a conversation is owned by the backend
// agent service and relayed opaquely.
package chat

import (
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// Pagination bounds per listing endpoint. Limits are advisory: out-of-range
// and non-numeric values are coerced, never rejected.
const (
	DefaultChatLimit    = 30
	MaxChatLimit        = 100
	DefaultMessageLimit = 120
	MaxMessageLimit     = 300
	DefaultInboxLimit   = 60
	MaxInboxLimit       = 200
)

// Lifecycle verbs accepted by the chat transition endpoint.
const (
	ActionArchive = "archive"
	ActionRestore = "restore"
)

// CoerceLimit parses raw as an integer and clamps it to [1, max]. Absent or
// non-numeric input falls back to def before clamping.
func CoerceLimit(raw string, def, max int) int {
	parsed, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		parsed = def
	}
	if parsed < 1 {
		parsed = 1
	}
	if parsed > max {
		parsed = max
	}
	return parsed
}

// ParseAction normalizes a lifecycle verb. Archive and restore are the only
// transitions a chat supports; anything else fails validation before an
// upstream call is attempted.
func ParseAction(raw string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case ActionArchive:
		return ActionArchive, true
	case ActionRestore:
		return ActionRestore, true
	default:
		return "", false
	}
}

// ApprovalFlags is the per-message capability grant for side-effecting agent
// actions. The backend agent service is the sole enforcement point; the
// gateway carries the flags verbatim and never widens them.
type ApprovalFlags struct {
	AllowMutations bool `json:"allow_mutations"`
	ConfirmWrite   bool `json:"confirm_write"`
}

// ReadApprovalFlags extracts both flags from a request body with strict
// boolean typing. Absent fields and non-boolean values, including the JSON
// string "true", read as false.
func ReadApprovalFlags(body []byte) ApprovalFlags {
	return ApprovalFlags{
		AllowMutations: gjson.GetBytes(body, "allow_mutations").Type == gjson.True,
		ConfirmWrite:   gjson.GetBytes(body, "confirm_write").Type == gjson.True,
	}
}
