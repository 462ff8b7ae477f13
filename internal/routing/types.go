package routing

import (
	"fmt"
	"strings"
)

// Scope is a bitmask of the request parts a rule applies to
type Scope uint8

const (
	ScopeURL Scope = 1 << iota
	ScopeHeader
	ScopeBody

	ScopeAll = ScopeURL | ScopeHeader | ScopeBody
)

var scopeNames = []struct {
	scope Scope
	name  string
}{
	{ScopeURL, "url"},
	{ScopeHeader, "header"},
	{ScopeBody, "body"},
}

// ParseScope reads a list of scope names separated by commas or pipes.
// "all" selects every scope.
func ParseScope(s string) (Scope, error) {
	var scope Scope
	parts := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return r == ',' || r == '|' || r == ' '
	})
	for _, part := range parts {
		if part == "all" {
			scope |= ScopeAll
			continue
		}
		found := false
		for _, sn := range scopeNames {
			if sn.name == part {
				scope |= sn.scope
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("%w: %q", ErrInvalidScope, part)
		}
	}
	if scope == 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidScope, s)
	}
	return scope, nil
}

// Has reports whether s includes every bit of other
func (s Scope) Has(other Scope) bool {
	return s&other == other
}

func (s Scope) String() string {
	if s == ScopeAll {
		return "all"
	}
	var names []string
	for _, sn := range scopeNames {
		if s.Has(sn.scope) {
			names = append(names, sn.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

func (s Scope) valid() bool {
	return s != 0 && s&^ScopeAll == 0
}

// FilterKind tells whether a filter allows or prevents duplication
type FilterKind int

const (
	// Regular filters must match for a request to be duplicated
	Regular FilterKind = iota
	// Prevent filters cancel duplication when they match
	Prevent
)

// ParseFilterKind reads "regular" or "prevent"; empty means regular
func ParseFilterKind(s string) (FilterKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "regular":
		return Regular, nil
	case "prevent":
		return Prevent, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidFilterKind, s)
	}
}

func (k FilterKind) String() string {
	if k == Prevent {
		return "prevent"
	}
	return "regular"
}

// DuplicationType is how much of a request is sent to a destination.
// Values are ordered from least to most.
type DuplicationType int

const (
	// None binds a destination without ever sending to it
	None DuplicationType = iota
	// HeaderOnly sends the request line and headers without a body
	HeaderOnly
	// CompleteRequest sends the whole request
	CompleteRequest
	// RequestWithAnswer sends the request together with the answer the
	// original destination returned
	RequestWithAnswer
)

// ParseDuplicationType reads none, header, complete or answer
func ParseDuplicationType(s string) (DuplicationType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none":
		return None, nil
	case "header", "header_only":
		return HeaderOnly, nil
	case "", "complete", "complete_request":
		return CompleteRequest, nil
	case "answer", "request_with_answer":
		return RequestWithAnswer, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuplicationType, s)
	}
}

func (d DuplicationType) String() string {
	switch d {
	case None:
		return "none"
	case HeaderOnly:
		return "header"
	case CompleteRequest:
		return "complete"
	case RequestWithAnswer:
		return "answer"
	default:
		return fmt.Sprintf("DuplicationType(%d)", int(d))
	}
}

func (d DuplicationType) valid() bool {
	return d >= None && d <= RequestWithAnswer
}
