package edge

import "errors"

// Sentinel errors for the business rule layer. Transport layers map them
// to status codes with errors.Is.
var (
	ErrNotFound   = errors.New("edge: not found")
	ErrValidation = errors.New("edge: invalid input")
	ErrConflict   = errors.New("edge: business rule conflict")
)

// Status describes which branch an idempotent operation took.
type Status string

// Operation outcomes.
const (
	StatusCreated           Status = "created"
	StatusAlreadyRegistered Status = "already_registered"
	StatusLogged            Status = "logged"
	StatusLoggedUnscored    Status = "logged_unscored"
	StatusRedeemed          Status = "redeemed"
	StatusAlreadyRedeemed   Status = "already_redeemed"
)

// Existing reports whether the operation returned a previously stored
// record instead of creating one.
func (s Status) Existing() bool {
	return s == StatusAlreadyRegistered || s == StatusAlreadyRedeemed
}
