package errors

import "github.com/pkg/errors"

var (
	// common errors
	ErrTenantMissing     = errors.New("tenant is missing")
	ErrConnectionTimeout = errors.New("connection timeout")
	ErrInvalidEmail      = errors.New("invalid email address")
	ErrInvalidArgument   = errors.New("invalid argument")

	// configuration errors
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrInvalidLogPattern    = errors.New("invalid log file pattern")

	// domain errors
	ErrDomainNotFound       = errors.New("domain not found")
	ErrMailboxNotConfigured = errors.New("bounce mailbox not configured")

	// sender errors
	ErrSenderNotFound   = errors.New("sender not found")
	ErrNoActiveSenders  = errors.New("no active senders found")
	ErrNoLogData        = errors.New("no log data in training window")
	ErrNoMatchingDomain = errors.New("no matching domains found")

	// scheduler errors
	ErrRunInProgress = errors.New("monitoring run already in progress")

	// suppression errors
	ErrSuppressionNotFound = errors.New("suppression entry not found")
)
