package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrWizardExpired indicates the transient wizard is gone from the store.
	ErrWizardExpired = errors.New("wizard expired or does not exist")
)
