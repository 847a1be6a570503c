package errs

import "errors"

var (
	ErrBadInput             = errors.New("bad input")
	ErrUnresolved           = errors.New("zone not covered")
	ErrTicketNotFound       = errors.New("ticket not found")
	ErrMunicipalityNotFound = errors.New("municipality not found")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrInvalidBoundary      = errors.New("invalid boundary")
	ErrDuplicate            = errors.New("already exists")
	ErrStoreUnavailable     = errors.New("store unavailable")
	ErrUnauthenticated      = errors.New("caller identity required")
	ErrForbidden            = errors.New("forbidden")
)
