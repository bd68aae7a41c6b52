package middleware

import "errors"

var (
	// ErrRateLimitExceeded indicates a conversation sent turns faster than allowed
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
)
