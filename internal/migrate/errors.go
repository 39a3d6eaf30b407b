package migrate

import "errors"

var (
	// ErrEmptyVersion is returned when a migration is submitted without a
	// version identifier.
	ErrEmptyVersion = errors.New("migrate: empty version")

	// ErrEmptyScript is returned when a migration is submitted with no
	// executable statements.
	ErrEmptyScript = errors.New("migrate: empty script")
)
