package errors

import "strings"

// ErrorCode is a string representation of a specific error condition.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Codes shared by every layer. Numbers of removed codes are not reused.
const (
	ErrCodeInternal        ErrorCode = "COMMON_001"
	ErrCodeNotFound        ErrorCode = "COMMON_005"
	ErrCodeConflict        ErrorCode = "COMMON_006"
	ErrCodeValidation      ErrorCode = "COMMON_010"
	ErrCodeSerialization   ErrorCode = "COMMON_011"
	ErrCodeDatabaseError   ErrorCode = "COMMON_012"
	ErrCodeCacheError      ErrorCode = "COMMON_013"
	ErrCodeExternalService ErrorCode = "COMMON_014"
	ErrCodeStorageError    ErrorCode = "COMMON_017"
	ErrCodeMessagingError  ErrorCode = "COMMON_018"
)

// Entity pipeline error codes. These form the pipeline's failure taxonomy:
// configuration errors are fatal at load time, malformed input and invalid
// spans are skipped and counted.
const (
	ErrCodeConfiguration  ErrorCode = "NER_001"
	ErrCodeMalformedInput ErrorCode = "NER_002"
	ErrCodeInvalidSpan    ErrorCode = "NER_003"
)

const (
	CodeUnknown = ErrorCode("UNKNOWN")
	CodeOK      = ErrorCode("OK")
)

// ErrorCodeMessage holds the default message of every known code.
var ErrorCodeMessage = map[ErrorCode]string{
	ErrCodeInternal:        "internal error",
	ErrCodeNotFound:        "resource not found",
	ErrCodeConflict:        "conflict",
	ErrCodeValidation:      "validation failed",
	ErrCodeSerialization:   "serialization failed",
	ErrCodeDatabaseError:   "database error",
	ErrCodeCacheError:      "cache error",
	ErrCodeExternalService: "external service error",
	ErrCodeStorageError:    "object storage error",
	ErrCodeMessagingError:  "messaging error",
	ErrCodeConfiguration:   "invalid configuration",
	ErrCodeMalformedInput:  "malformed input",
	ErrCodeInvalidSpan:     "invalid span",
}

// DefaultMessageForCode returns the default message for an ErrorCode.
func DefaultMessageForCode(code ErrorCode) string {
	if msg, ok := ErrorCodeMessage[code]; ok {
		return msg
	}
	return "unknown error"
}

// IsSkippable reports whether the code marks a per-record failure that a
// batch should count and step over rather than abort on.
func IsSkippable(code ErrorCode) bool {
	return code == ErrCodeMalformedInput || code == ErrCodeInvalidSpan
}

// ModuleForCode returns the module prefix of an ErrorCode.
func ModuleForCode(code ErrorCode) string {
	parts := strings.Split(string(code), "_")
	if len(parts) > 0 && parts[0] != "" {
		return parts[0]
	}
	return "UNKNOWN"
}
