package roadapi

import "fmt"

// ErrorCode is a coarse classification of a transport failure.
type ErrorCode string

const (
	CodeInvalidDeviceID ErrorCode = "invalid-device-id"
	CodeMissingLocation ErrorCode = "missing-location"
	CodeRateLimited     ErrorCode = "rate-limited"
	CodeServerError     ErrorCode = "server-error"
	CodeNetworkError    ErrorCode = "network-error"
)

// TransportError reports a failed network exchange: a non-2xx status, a
// network-level failure, or a malformed body.
type TransportError struct {
	Code    ErrorCode
	Message string
	// Status is the HTTP status code, or 0 for network-level failures.
	Status int
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("transport error (%s, HTTP %d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("transport error (%s): %s", e.Code, e.Message)
}

// codeFromEnvelope maps a backend error envelope code to a coarse ErrorCode.
func codeFromEnvelope(code string) ErrorCode {
	switch code {
	case "INVALID_DEVICE_ID":
		return CodeInvalidDeviceID
	case "LOCATION_DATA_MISSING":
		return CodeMissingLocation
	case "RATE_LIMIT_EXCEEDED":
		return CodeRateLimited
	default:
		// SETTINGS_UPDATE_FAILED, SERVER_ERROR and anything unrecognized
		// collapse into the server-error bucket.
		return CodeServerError
	}
}
