package models

import "errors"

// Pipeline error kinds. Stages wrap these with fmt.Errorf("...: %w", ...) so
// callers can classify a failure with errors.Is.
var (
	ErrNetwork             = errors.New("tracking api request failed")
	ErrMalformedResponse   = errors.New("tracking api response is missing devicedetails")
	ErrRowTransform        = errors.New("device record could not be normalized")
	ErrNoRows              = errors.New("no rows prepared for the warehouse")
	ErrDestinationNotFound = errors.New("destination table not found")
	ErrLoad                = errors.New("warehouse insert reported errors")
	ErrVerification        = errors.New("post-load verification failed")
)

// APIError represents a standardized error response format for the trigger API.
type APIError struct {
	Status  string      `json:"status"`            // Always "error" or "no_data"
	Code    string      `json:"code"`              // Application-specific error code (e.g., "UPSTREAM_FAILURE")
	Message string      `json:"message"`           // Human-readable message describing the error
	Details interface{} `json:"details,omitempty"` // Optional field for additional error details
}

// Application-specific error codes returned by the trigger API.
const (
	ErrorCodeInternalServerError = "INTERNAL_SERVER_ERROR"
	ErrorCodeValidation          = "VALIDATION_ERROR"

	// Pipeline stage failures
	ErrorCodeUpstreamFailure     = "UPSTREAM_FAILURE"      // Tracking API unreachable or non-2xx
	ErrorCodeMalformedResponse   = "MALFORMED_RESPONSE"    // devicedetails missing
	ErrorCodeNoData              = "NO_DATA"               // Nothing to load
	ErrorCodeRowsRejected        = "ROWS_REJECTED"         // Every device record failed normalization
	ErrorCodeDestinationNotFound = "DESTINATION_NOT_FOUND" // Warehouse table absent
	ErrorCodeLoadFailed          = "LOAD_FAILED"           // Warehouse rejected rows
)

// ErrorCode maps a pipeline error to the API error code reported to callers.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrNetwork):
		return ErrorCodeUpstreamFailure
	case errors.Is(err, ErrMalformedResponse):
		return ErrorCodeMalformedResponse
	case errors.Is(err, ErrRowTransform):
		return ErrorCodeRowsRejected
	case errors.Is(err, ErrNoRows):
		return ErrorCodeNoData
	case errors.Is(err, ErrDestinationNotFound):
		return ErrorCodeDestinationNotFound
	case errors.Is(err, ErrLoad):
		return ErrorCodeLoadFailed
	default:
		return ErrorCodeInternalServerError
	}
}
