package shared

import "errors"

var (
	// Configuration errors
	ErrMissingConfig      = errors.New("configuration not found")
	ErrInvalidConfig      = errors.New("invalid configuration")
	ErrMissingCredentials = errors.New("missing credentials")

	// Authentication errors
	ErrAuthFailed = errors.New("authentication failed")
	ErrTimeout    = errors.New("operation timed out")

	// Persistence errors
	ErrJobNotFound    = errors.New("job not found")
	ErrTargetNotFound = errors.New("target not found")
	ErrNotClaimable   = errors.New("target is not claimable")

	// Account errors
	ErrUnknownAccount = errors.New("unknown account")

	// Input validation errors
	ErrMissingArgument = errors.New("missing required argument")
	ErrInvalidArgument = errors.New("invalid argument")
)
