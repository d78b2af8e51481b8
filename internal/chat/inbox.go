package chat

import (
	"strings"

	"github.com/tidwall/gjson"
)

// InboxItem is one prioritized operational item surfaced to the caller.
// Kind and Priority are open vocabularies: values the backend introduces
// later pass through unchanged rather than requiring a gateway release.
type InboxItem struct {
	ID        string `json:"id"`
	Kind      string `json:"kind,omitempty"`
	Priority  string `json:"priority,omitempty"`
	Title     string `json:"title"`
	Body      string `json:"body,omitempty"`
	LinkPath  string `json:"link_path,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

// NormalizeInbox extracts inbox items from an upstream payload, dropping
// entries that lack an id or title instead of rendering them malformed.
// Order is preserved as received; the backend owns priority ordering and the
// gateway never re-sorts. Accepts either the {data: [...]} envelope or a
// bare array, and returns an empty slice for anything else.
func NormalizeInbox(body []byte) []InboxItem {
	items := make([]InboxItem, 0)

	data := gjson.GetBytes(body, "data")
	if !data.IsArray() {
		if root := gjson.ParseBytes(body); root.IsArray() {
			data = root
		} else {
			return items
		}
	}

	data.ForEach(func(_, value gjson.Result) bool {
		item := InboxItem{
			ID:        strings.TrimSpace(value.Get("id").String()),
			Kind:      value.Get("kind").String(),
			Priority:  value.Get("priority").String(),
			Title:     strings.TrimSpace(value.Get("title").String()),
			Body:      value.Get("body").String(),
			LinkPath:  value.Get("link_path").String(),
			CreatedAt: value.Get("created_at").String(),
		}
		if item.ID == "" || item.Title == "" {
			return true
		}
		items = append(items, item)
		return true
	})
	return items
}
