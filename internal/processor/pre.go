// Package processor holds the pre-embedding and post-search transforms
// applied around the vector lookup.
package processor

import (
	"fmt"
	"strings"

	"github.com/thebtf/semcache/pkg/models"
)

// Splice separates message contents when a multi-turn query is flattened
// into a single embedding input.
const Splice = "###"

// PreFunc flattens a query into the text handed to the embedding model.
type PreFunc func(query models.QueryText) string

// NewPre returns the named pre-embedding transform.
func NewPre(name string) (PreFunc, error) {
	switch name {
	case "last_content":
		return LastContent, nil
	case "concat_content":
		return ConcatContent, nil
	case "content_with_role":
		return ContentWithRole, nil
	default:
		return nil, fmt.Errorf("unknown pre-embedding transform %q", name)
	}
}

// LastContent returns the raw string, or the content of the last message
// for chat-shaped queries.
func LastContent(query models.QueryText) string {
	if !query.IsChat() {
		return query.Raw
	}
	if len(query.Messages) == 0 {
		return ""
	}
	return query.Messages[len(query.Messages)-1].Content
}

// ConcatContent splices all message contents with the Splice separator.
func ConcatContent(query models.QueryText) string {
	if !query.IsChat() {
		return query.Raw
	}
	parts := make([]string, 0, len(query.Messages))
	for _, m := range query.Messages {
		parts = append(parts, m.Content)
	}
	return strings.Join(parts, Splice)
}

// ContentWithRole prefixes each message content with its role, one
// message per line.
func ContentWithRole(query models.QueryText) string {
	if !query.IsChat() {
		return query.Raw
	}
	parts := make([]string, 0, len(query.Messages))
	for _, m := range query.Messages {
		parts = append(parts, m.Role+": "+m.Content)
	}
	return strings.Join(parts, "\n")
}
