package handlers

// Error codes carried in ErrorResponse.Code. Generic codes mirror HTTP status
// semantics; the *_failed codes name the journal operation that broke.
const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"

	ErrCodeListFailed = "list_failed"
	ErrCodeGetFailed  = "get_failed"
)
