// Package processor holds the pre-embedding and post-search transforms
// applied around the vector lookup.
package processor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/semcache/pkg/models"
)

func chatQuery(messages ...models.Message) models.QueryText {
	return models.QueryText{Messages: messages}
}

// TestLastContent verifies plain strings pass through and chat queries
// yield the final message.
func TestLastContent(t *testing.T) {
	tests := []struct {
		name  string
		query models.QueryText
		want  string
	}{
		{
			name:  "plain string",
			query: models.QueryText{Raw: "what is a cache"},
			want:  "what is a cache",
		},
		{
			name: "multi turn chat",
			query: chatQuery(
				models.Message{Role: "system", Content: "be brief"},
				models.Message{Role: "user", Content: "what is a cache"},
			),
			want: "what is a cache",
		},
		{
			name:  "empty chat",
			query: models.QueryText{Messages: []models.Message{}},
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LastContent(tt.query))
		})
	}
}

// TestConcatContent verifies message contents are spliced together.
func TestConcatContent(t *testing.T) {
	q := chatQuery(
		models.Message{Role: "system", Content: "be brief"},
		models.Message{Role: "user", Content: "what is a cache"},
	)
	assert.Equal(t, "be brief###what is a cache", ConcatContent(q))
	assert.Equal(t, "plain", ConcatContent(models.QueryText{Raw: "plain"}))
}

// TestContentWithRole verifies role-tagged flattening.
func TestContentWithRole(t *testing.T) {
	q := chatQuery(
		models.Message{Role: "system", Content: "be brief"},
		models.Message{Role: "user", Content: "what is a cache"},
	)
	assert.Equal(t, "system: be brief\nuser: what is a cache", ContentWithRole(q))
}

// TestNewPre verifies transform lookup by name.
func TestNewPre(t *testing.T) {
	for _, name := range []string{"last_content", "concat_content", "content_with_role"} {
		fn, err := NewPre(name)
		require.NoError(t, err, name)
		require.NotNil(t, fn, name)
	}

	_, err := NewPre("shout")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shout")
}
