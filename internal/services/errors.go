package services

import (
	"errors"
)

// Public API error codes. These are stable integers consumed by
// existing clients and must never be renumbered.
const (
	CodeInternal            = 0
	CodeMaxActivations      = 1
	CodeInvalidKey          = 2
	CodeLocationRequired    = 3
	CodeActivationIDMissing = 4
	CodeInvalidActivation   = 5
	CodeActivationRequired  = 6
	CodeUnknownActivation   = 7
)

// DomainError is an expected failure carrying a stable numeric code.
// It is always safe to return to API consumers; anything else reaching
// the request boundary is treated as an infrastructure failure.
type DomainError struct {
	Code    int
	Message string
}

func (e *DomainError) Error() string {
	return e.Message
}

var (
	ErrMaxActivations      = &DomainError{CodeMaxActivations, "license key has reached its activation limit"}
	ErrInvalidKey          = &DomainError{CodeInvalidKey, "license key not found"}
	ErrLocationRequired    = &DomainError{CodeLocationRequired, "activation location is required"}
	ErrActivationIDMissing = &DomainError{CodeActivationIDMissing, "activation id is required"}
	ErrInvalidActivation   = &DomainError{CodeInvalidActivation, "no activation matches the supplied id"}
	ErrActivationRequired  = &DomainError{CodeActivationRequired, "activation id is required"}
	ErrUnknownActivation   = &DomainError{CodeUnknownActivation, "activation not found or not active"}

	// ErrDuplicateLocation reuses the invalid-location code: the
	// location is already consuming a slot on this key
	ErrDuplicateLocation = &DomainError{CodeInvalidActivation, "location already has an active activation for this key"}
)

// ErrNotRenewable is returned by the renewal engine for perpetual,
// disabled or out-of-window keys. It surfaces on the admin/checkout
// boundary, not the numeric-code API.
var ErrNotRenewable = errors.New("license key is not renewable")

// AsDomain unwraps err to a DomainError if it is an expected failure
func AsDomain(err error) (*DomainError, bool) {
	var de *DomainError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}
