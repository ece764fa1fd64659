package errors

import (
	"msgrelay/internal/privacy"

	"github.com/sirupsen/logrus"
)

// Fields returns the structured log fields carried by err. Identifiers and content in the
// error context are masked.
func Fields(err error) logrus.Fields {
	fields := logrus.Fields{}
	appErr, ok := As(err)
	if !ok {
		return fields
	}

	fields["error_code"] = appErr.Code
	fields["retryable"] = appErr.Retryable
	for k, v := range privacy.MaskSensitiveFields(appErr.Context) {
		fields[k] = v
	}
	return fields
}

// LogError logs an error with structured context
func LogError(logger logrus.FieldLogger, err error, message string, fields ...logrus.Fields) {
	entryFor(logger, err, fields).Error(message)
}

// LogWarn logs a warning with structured context
func LogWarn(logger logrus.FieldLogger, err error, message string, fields ...logrus.Fields) {
	entryFor(logger, err, fields).Warn(message)
}

// LogRetryableError logs a retryable error at warn level, non-retryable at error level
func LogRetryableError(logger logrus.FieldLogger, err error, message string, fields ...logrus.Fields) {
	if IsRetryable(err) {
		LogWarn(logger, err, message, fields...)
	} else {
		LogError(logger, err, message, fields...)
	}
}

func entryFor(logger logrus.FieldLogger, err error, fields []logrus.Fields) *logrus.Entry {
	entry := logger.WithError(err).WithFields(Fields(err))
	for _, f := range fields {
		entry = entry.WithFields(f)
	}
	return entry
}
