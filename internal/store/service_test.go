package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_CreateMessage(t *testing.T) {
	tests := []struct {
		name        string
		username    string
		content     string
		wantUser    string
		wantContent string
		wantErr     bool
	}{
		{"trims both fields", "  Alice ", "  Hello  ", "Alice", "Hello", false},
		{"keeps angle brackets", "Bob", "a<b and c>d", "Bob", "a<b and c>d", false},
		{"keeps unclosed bracket", "Bob", "if a<b {", "Bob", "if a<b {", false},
		{"keeps entities", "Bob", "AT&amp;T", "Bob", "AT&amp;T", false},
		{"keeps escaped markup", "Bob", "use &lt;b&gt; for bold", "Bob", "use &lt;b&gt; for bold", false},
		{"keeps tags", "Bob", "<b>bold</b> move", "Bob", "<b>bold</b> move", false},
		{"keeps plain ampersands", "Bob", "Tom & Jerry's", "Bob", "Tom & Jerry's", false},
		{"whitespace only", "Bob", "   ", "", "", true},
		{"invalid username", "Bob!", "Hi", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(NewMemoryStore(), nil)

			got, err := svc.CreateMessage(context.Background(), tt.username, tt.content)
			if tt.wantErr {
				var vErr *ValidationError
				assert.ErrorAs(t, err, &vErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantUser, got.Username)
			assert.Equal(t, tt.wantContent, got.Content)

			stored, err := svc.MessageByID(context.Background(), got.ID.String())
			require.NoError(t, err)
			assert.Equal(t, tt.wantContent, stored.Content)
		})
	}
}

func TestService_Messages(t *testing.T) {
	mem := NewMemoryStore()
	seed(t, mem, 5)
	svc := NewService(mem, nil)

	page, err := svc.Messages(context.Background(), 1, 2)
	require.NoError(t, err)

	require.Len(t, page.Messages, 2)
	assert.Equal(t, "message 3", page.Messages[0].Content)
	assert.Equal(t, "message 4", page.Messages[1].Content)
	assert.Equal(t, Pagination{
		CurrentPage:     1,
		TotalPages:      3,
		TotalMessages:   5,
		MessagesPerPage: 2,
		HasNextPage:     true,
		HasPrevPage:     false,
	}, page.Pagination)

	page, err = svc.Messages(context.Background(), 3, 2)
	require.NoError(t, err)
	assert.False(t, page.Pagination.HasNextPage)
	assert.True(t, page.Pagination.HasPrevPage)
	assert.Len(t, page.Messages, 1)
}

func TestService_MessagesDefaults(t *testing.T) {
	svc := NewService(NewMemoryStore(), nil)

	page, err := svc.Messages(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Pagination.CurrentPage)
	assert.Equal(t, DefaultPageLimit, page.Pagination.MessagesPerPage)
	assert.Zero(t, page.Pagination.TotalPages)
	assert.Empty(t, page.Messages)
}
