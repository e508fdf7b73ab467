package hostfuncs

import (
	"encoding/json"
	"fmt"
)

// Error kinds carried in ErrorResponse.Error.
const (
	KindValidation = "VALIDATION_ERROR"
	KindNotFound   = "NOT_FOUND"
	KindTooLarge   = "PAYLOAD_TOO_LARGE"
	KindInternal   = "INTERNAL_ERROR"
)

// ErrorResponse is what a handler hands back to the guest instead of trapping
// when it cannot serve a request. Code follows HTTP status numbering.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// ToJSON encodes the response. The type has no unencodable fields, so the
// result is never nil.
func (e ErrorResponse) ToJSON() []byte {
	data, _ := json.Marshal(e)
	return data
}

// IsErrorResponse decodes payload when it is an ErrorResponse. Ordinary
// handler output that happens to be JSON needs both error and code set to
// count.
func IsErrorResponse(payload []byte) (ErrorResponse, bool) {
	var e ErrorResponse
	if json.Unmarshal(payload, &e) != nil || e.Error == "" || e.Code == 0 {
		return ErrorResponse{}, false
	}
	return e, true
}

// NewValidationError reports a request the handler could not decode or accept.
func NewValidationError(message string) ErrorResponse {
	return ErrorResponse{Error: KindValidation, Message: message, Code: 400}
}

// NewNotFoundError reports a call to a name the registry does not hold.
func NewNotFoundError(name string) ErrorResponse {
	return ErrorResponse{Error: KindNotFound, Message: "unknown host function: " + name, Code: 404}
}

// NewTooLargeError reports a request rejected by MaxPayloadMiddleware.
func NewTooLargeError(size, limit int) ErrorResponse {
	return ErrorResponse{
		Error:   KindTooLarge,
		Message: fmt.Sprintf("request size %d exceeds maximum %d bytes", size, limit),
		Code:    413,
	}
}

func NewInternalError(message string) ErrorResponse {
	return ErrorResponse{Error: KindInternal, Message: message, Code: 500}
}

// NewPanicError converts a recovered panic value.
func NewPanicError(recovered any) ErrorResponse {
	msg := "panic recovered"
	switch v := recovered.(type) {
	case error:
		msg = v.Error()
	case string:
		msg = v
	case fmt.Stringer:
		msg = v.String()
	}
	return ErrorResponse{Error: KindInternal, Message: "panic: " + msg, Code: 500}
}
