package privacy

import (
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"msgrelay/internal/constants"
)

// MaskConversationID masks a conversation identifier showing only the last 4 characters
// Example: "conv-1234567890" -> "***********7890"
func MaskConversationID(conversationID string) string {
	return maskString(conversationID, constants.DefaultMaskVisibleChars)
}

// MaskMessageID masks a message ID, keeping the tail for correlation
// Example: "0192b3c4-5d6e-7f80-9a1b-2c3d4e5f6a7b" -> "****************************4e5f6a7b"
func MaskMessageID(messageID string) string {
	return maskString(messageID, 8)
}

// MaskUserID masks a user identifier
// Example: "user123456" -> "******3456"
func MaskUserID(userID string) string {
	return maskString(userID, constants.DefaultMaskVisibleChars)
}

// MaskContent hides message text, keeping a short preview and the length
// Example: "hello there, friend" -> "hello th…(19 chars)"
func MaskContent(content string) string {
	if content == "" {
		return ""
	}

	n := utf8.RuneCountInString(content)
	if n <= constants.DefaultContentPreview {
		return strings.Repeat("*", n)
	}

	runes := []rune(content)
	return string(runes[:constants.DefaultContentPreview]) + "…(" + strconv.Itoa(n) + " chars)"
}

// MaskURI drops credentials, query and all but the last path segment of a media URI
// Example: "https://user:pw@cdn.example.com/a/b/photo.jpg?sig=x" -> "https://cdn.example.com/…/photo.jpg"
func MaskURI(uri string) string {
	if uri == "" {
		return ""
	}

	u, err := url.Parse(uri)
	if err != nil || u.Scheme == "" {
		return maskString(uri, constants.DefaultMaskVisibleChars)
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	last := segments[len(segments)-1]

	masked := u.Scheme + "://" + u.Host
	if len(segments) > 1 {
		masked += "/…"
	}
	if last != "" {
		masked += "/" + last
	}
	return masked
}

// maskString masks a string showing only the last n characters
func maskString(s string, keepLast int) string {
	if s == "" {
		return ""
	}

	if len(s) <= keepLast {
		return strings.Repeat("*", len(s))
	}

	return strings.Repeat("*", len(s)-keepLast) + s[len(s)-keepLast:]
}

// MaskSensitiveFields applies appropriate masking to common logging fields
func MaskSensitiveFields(fields map[string]interface{}) map[string]interface{} {
	if fields == nil {
		return nil
	}

	masked := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		s, ok := v.(string)
		if !ok {
			masked[k] = v
			continue
		}
		switch k {
		case "conversation_id", "conversationId":
			masked[k] = MaskConversationID(s)
		case "message_id", "messageId":
			masked[k] = MaskMessageID(s)
		case "user_id", "userId":
			masked[k] = MaskUserID(s)
		case "content", "text":
			masked[k] = MaskContent(s)
		case "media_uri", "mediaUri":
			masked[k] = MaskURI(s)
		default:
			masked[k] = v
		}
	}

	return masked
}
