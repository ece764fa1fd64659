package validation

import (
	"net/http/httptest"
	"strings"
	"testing"

	"msgrelay/internal/errors"
	"msgrelay/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateEnqueue(t *testing.T) {
	tests := []struct {
		name        string
		req         EnqueueRequest
		expectError bool
		field       string
	}{
		{
			name: "plain text",
			req:  EnqueueRequest{ConversationID: "conv-1", Content: "hello"},
		},
		{
			name: "explicit type",
			req:  EnqueueRequest{ConversationID: "conv-1", Content: "hello", Type: models.MessageTypeText},
		},
		{
			name: "media without caption",
			req:  EnqueueRequest{ConversationID: "conv-1", Type: models.MessageTypeImage, MediaURI: "file:///tmp/a.jpg"},
		},
		{
			name:        "missing conversation",
			req:         EnqueueRequest{Content: "hello"},
			expectError: true,
			field:       "EnqueueRequest.ConversationID",
		},
		{
			name:        "no content and no media",
			req:         EnqueueRequest{ConversationID: "conv-1"},
			expectError: true,
			field:       "EnqueueRequest.Content",
		},
		{
			name:        "unknown type",
			req:         EnqueueRequest{ConversationID: "conv-1", Content: "hi", Type: "audio"},
			expectError: true,
			field:       "EnqueueRequest.Type",
		},
		{
			name:        "conversation with newline",
			req:         EnqueueRequest{ConversationID: "conv\n1", Content: "hi"},
			expectError: true,
			field:       "EnqueueRequest.ConversationID",
		},
		{
			name:        "conversation too long",
			req:         EnqueueRequest{ConversationID: strings.Repeat("c", 257), Content: "hi"},
			expectError: true,
			field:       "EnqueueRequest.ConversationID",
		},
		{
			name:        "content too long",
			req:         EnqueueRequest{ConversationID: "conv-1", Content: strings.Repeat("x", 65537)},
			expectError: true,
			field:       "EnqueueRequest.Content",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEnqueue(tt.req)
			if !tt.expectError {
				assert.NoError(t, err)
				return
			}

			require.Error(t, err)
			appErr, ok := errors.As(err)
			require.True(t, ok)
			assert.Equal(t, errors.ErrCodeValidationFailed, appErr.Code)
			assert.Equal(t, tt.field, appErr.Context["field"])
		})
	}
}

func TestValidateMessageID(t *testing.T) {
	assert.NoError(t, ValidateMessageID("0192b3c4-5d6e-7f80-9a1b-2c3d4e5f6a7b"))

	for _, id := range []string{"", strings.Repeat("a", 300), "id\x00x", "id\nx"} {
		err := ValidateMessageID(id)
		require.Error(t, err, "id %q", id)
		assert.Equal(t, errors.ErrCodeInvalidInput, errors.GetCode(err))
	}
}

func TestValidateHTTPRequestSize(t *testing.T) {
	req := httptest.NewRequest("POST", "/api/v1/messages", strings.NewReader("hello"))
	assert.NoError(t, ValidateHTTPRequestSize(req, 10))
	assert.Error(t, ValidateHTTPRequestSize(req, 2))
}

func TestValidateRetentionDays(t *testing.T) {
	assert.NoError(t, ValidateRetentionDays(30))
	assert.Error(t, ValidateRetentionDays(0))
	assert.Error(t, ValidateRetentionDays(4000))
}
