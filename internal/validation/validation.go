package validation

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"msgrelay/internal/constants"
	"msgrelay/internal/errors"
	"msgrelay/internal/models"

	"github.com/go-playground/validator/v10"
)

var (
	once     sync.Once
	validate *validator.Validate
)

// Validator returns the shared struct validator with the msgrelay tags registered:
// "msgtype" accepts an empty or known message type, "nocontrol" rejects NUL, CR, LF and TAB.
func Validator() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		_ = validate.RegisterValidation("msgtype", func(fl validator.FieldLevel) bool {
			t := models.MessageType(fl.Field().String())
			return t == "" || t.IsValid()
		})
		_ = validate.RegisterValidation("nocontrol", func(fl validator.FieldLevel) bool {
			return !strings.ContainsAny(fl.Field().String(), "\x00\n\r\t")
		})
	})
	return validate
}

// Struct validates v and converts the first failing field into a validation AppError.
func Struct(v interface{}) error {
	err := Validator().Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !stderrors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return errors.Wrap(err, errors.ErrCodeInvalidInput, "invalid input")
	}

	fe := fieldErrs[0]
	return errors.NewValidationError(fe.Namespace(), fmt.Sprint(fe.Value()), describe(fe))
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "required_without":
		return fmt.Sprintf("is required when %s is empty", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s long", fe.Param())
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "msgtype":
		return "must be one of text, image, video"
	case "nocontrol":
		return "contains invalid characters"
	case "url":
		return "must be a valid URL"
	default:
		return fmt.Sprintf("failed %q check", fe.Tag())
	}
}

// EnqueueRequest is the input accepted by QueueMessage and POST /api/v1/messages
type EnqueueRequest struct {
	ConversationID string             `json:"conversationId" validate:"required,max=256,nocontrol"`
	Content        string             `json:"content" validate:"required_without=MediaURI,max=65536"`
	Type           models.MessageType `json:"type" validate:"msgtype"`
	MediaURI       string             `json:"mediaUri" validate:"omitempty,max=2048,nocontrol"`
}

// ValidateEnqueue checks an enqueue request
func ValidateEnqueue(req EnqueueRequest) error {
	return Struct(req)
}

// ValidateMessageID validates message ID format and length
func ValidateMessageID(messageID string) error {
	if messageID == "" {
		return errors.New(errors.ErrCodeInvalidInput, "message ID cannot be empty")
	}

	if len(messageID) > constants.MaxConversationIDLength {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("message ID too long (max %d characters)", constants.MaxConversationIDLength))
	}

	if strings.ContainsAny(messageID, "\x00\n\r\t") {
		return errors.New(errors.ErrCodeInvalidInput, "message ID contains invalid characters")
	}

	return nil
}

// ValidateHTTPRequestSize validates incoming HTTP request size
func ValidateHTTPRequestSize(r *http.Request, maxSizeBytes int64) error {
	if r.ContentLength < 0 {
		return nil
	}

	if r.ContentLength > maxSizeBytes {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("request too large: %d bytes (max %d bytes)", r.ContentLength, maxSizeBytes))
	}

	return nil
}

// ValidateRetentionDays validates data retention period
func ValidateRetentionDays(days int) error {
	if days < 1 {
		return errors.New(errors.ErrCodeInvalidInput, "retention days must be at least 1")
	}

	if days > 3650 { // Max 10 years
		return errors.New(errors.ErrCodeInvalidInput, "retention days too large (max 3650)")
	}

	return nil
}
