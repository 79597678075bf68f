package types

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
)

// Record is the store's view of one list entry (a PRR case, a project, an
// invoice). RemoteItemID is assigned by the remote store on creation and
// never reassigned. Pending records were routed to the local queue and have
// no RemoteItemID yet.
type Record struct {
	RemoteItemID string         `json:"remote_item_id,omitempty"`
	WebURL       string         `json:"web_url,omitempty"`
	Fields       map[string]any `json:"fields"`
	Pending      bool           `json:"pending,omitempty"`
	QueueID      string         `json:"queue_id,omitempty"`
}

// Field returns a field value and whether it is present.
func (r Record) Field(name string) (any, bool) {
	v, ok := r.Fields[name]
	return v, ok
}

// RemoteItem is a raw item as returned by the remote store.
type RemoteItem struct {
	ID      string         `json:"id"`
	WebURL  string         `json:"web_url,omitempty"`
	Fields  map[string]any `json:"fields"`
	Created time.Time      `json:"created,omitempty"`
}

// Query is the shape of a list read. The zero value reads every item.
type Query struct {
	Top     int               `json:"top,omitempty"`
	Filter  map[string]string `json:"filter,omitempty"`
	OrderBy string            `json:"order_by,omitempty"`
}

// Key renders the query deterministically: filter keys are sorted so that
// equal queries always produce the same cache key.
func (q Query) Key() string {
	var b strings.Builder
	fmt.Fprintf(&b, "top=%d", q.Top)
	if q.OrderBy != "" {
		b.WriteString("&orderby=")
		b.WriteString(url.QueryEscape(q.OrderBy))
	}
	keys := make([]string, 0, len(q.Filter))
	for k := range q.Filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString("&f.")
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(q.Filter[k]))
	}
	return b.String()
}

// Folder is a folder in the remote document hierarchy.
type Folder struct {
	Path   string `json:"path"`
	WebURL string `json:"web_url,omitempty"`
}

// UploadedFile describes a document written to the remote store.
type UploadedFile struct {
	Path   string `json:"path"`
	Name   string `json:"name"`
	WebURL string `json:"web_url,omitempty"`
	Size   int    `json:"size"`
}

// JoinPath renders folder segments as a slash-separated remote path.
func JoinPath(segments []string) string {
	return strings.Join(segments, "/")
}
