package domain

import "errors"

// Domain errors - use these for consistent error handling
var (
	// Identity errors
	ErrUserNotFound = errors.New("user not found")
	ErrTokenExpired = errors.New("token has expired")
	ErrTokenInvalid = errors.New("invalid token")

	// Message errors
	ErrMessageNotFound = errors.New("message not found")
	ErrInvalidStatus   = errors.New("invalid message status")
)
