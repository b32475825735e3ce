package assistant

// AssistantError represents a failure reported by the assistant service
// or its transport.
type AssistantError struct {
	Code          string `json:"code"`
	Message       string `json:"message"`
	StatusCode    int    `json:"status_code,omitempty"`
	IsRetryable   bool   `json:"is_retryable"`
	OriginalError error  `json:"-"`
}

// Error implements the error interface
func (e *AssistantError) Error() string {
	return "assistant error: " + e.Message
}

// Unwrap returns the original error
func (e *AssistantError) Unwrap() error {
	return e.OriginalError
}

// Common error codes
const (
	ErrorCodeInvalidRequest = "invalid_request"
	ErrorCodeNotFound       = "not_found"
	ErrorCodeRateLimit      = "rate_limit_exceeded"
	ErrorCodeServerError    = "server_error"
	ErrorCodeTimeout        = "timeout"
	ErrorCodeUnknown        = "unknown_error"
)

// NewAssistantError creates a new assistant error
func NewAssistantError(code, message string, original error) *AssistantError {
	return &AssistantError{
		Code:          code,
		Message:       message,
		OriginalError: original,
		IsRetryable:   isRetryableError(code),
	}
}

// isRetryableError determines if an error code is retryable. The client
// itself never retries; the flag is advisory for callers.
func isRetryableError(code string) bool {
	switch code {
	case ErrorCodeRateLimit, ErrorCodeServerError, ErrorCodeTimeout:
		return true
	default:
		return false
	}
}
