package routing

import "errors"

var (
	// ErrEmptyPath is returned when a rule is registered without a location path
	ErrEmptyPath = errors.New("location path is empty")

	// ErrEmptyDestination is returned when a rule is registered without a destination
	ErrEmptyDestination = errors.New("destination is empty")

	// ErrUnknownDestination is returned when a filter or substitution names a
	// destination that was not bound to the location first
	ErrUnknownDestination = errors.New("destination not bound to location")

	// ErrInvalidPercentage is returned for percentages outside [0, MaxPercentage]
	ErrInvalidPercentage = errors.New("invalid duplication percentage")

	// ErrInvalidPattern is returned when a regular expression does not compile
	ErrInvalidPattern = errors.New("invalid pattern")

	// ErrInvalidScope is returned for an empty or unknown scope
	ErrInvalidScope = errors.New("invalid scope")

	// ErrMissingField is returned when a keyed rule has no field name
	ErrMissingField = errors.New("field name required for keyed rule")

	// ErrUnexpectedField is returned when a raw rule also names a field
	ErrUnexpectedField = errors.New("raw rule cannot name a field")

	// ErrInvalidFilterKind is returned for an unknown filter kind
	ErrInvalidFilterKind = errors.New("invalid filter kind")

	// ErrInvalidDuplicationType is returned for an unknown duplication type
	ErrInvalidDuplicationType = errors.New("invalid duplication type")
)
