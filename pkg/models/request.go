package models

import (
	"fmt"

	json "github.com/goccy/go-json"
)

// Request types accepted on the cache surface.
const (
	RequestQuery    = "query"
	RequestInsert   = "insert"
	RequestRemove   = "remove"
	RequestRegister = "register"
)

// Remove modes.
const (
	RemoveSingle = "single"
	RemoveAll    = "all"
)

// Message is one turn of a chat-formatted query.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// QueryText is a query that arrives either as a plain string or as an
// ordered list of chat messages. The wire form is preserved so responses
// can echo it back unchanged.
type QueryText struct {
	Raw      string
	Messages []Message
}

// IsChat reports whether the query arrived in chat-message form.
func (q QueryText) IsChat() bool { return q.Messages != nil }

// UnmarshalJSON accepts both `"text"` and `[{"role":...,"content":...}]`.
func (q *QueryText) UnmarshalJSON(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	switch data[0] {
	case '"':
		return json.Unmarshal(data, &q.Raw)
	case '[':
		return json.Unmarshal(data, &q.Messages)
	case 'n': // null
		return nil
	default:
		return fmt.Errorf("query must be a string or a message list")
	}
}

// MarshalJSON emits the same shape the query arrived in.
func (q QueryText) MarshalJSON() ([]byte, error) {
	if q.IsChat() {
		return json.Marshal(q.Messages)
	}
	return json.Marshal(q.Raw)
}

// ChatTurn is one (query, answer) pair supplied on insert.
type ChatTurn struct {
	Query  QueryText `json:"query"`
	Answer string    `json:"answer"`
}

// Scope carries the model partition a request operates on.
type Scope struct {
	Model string `json:"model"`
}

// Request is the envelope accepted by the cache endpoint.
type Request struct {
	Type       string     `json:"type"`
	Scope      *Scope     `json:"scope"`
	Query      QueryText  `json:"query"`
	ChatInfo   []ChatTurn `json:"chat_info"`
	RemoveType string     `json:"remove_type"`
	IDList     []int64    `json:"id_list"`
}
