package routing

import (
	"fmt"
	"regexp"
	"strings"
)

// FilterSpec is the registration form of a filter
type FilterSpec struct {
	Field   string
	Pattern string
	Scope   Scope
	Kind    FilterKind
	Raw     bool
}

// Filter decides whether a request may be duplicated to one destination
type Filter struct {
	Field   string
	Scope   Scope
	Kind    FilterKind
	Raw     bool
	Pattern *regexp.Regexp
}

func compileFilter(spec FilterSpec) (*Filter, error) {
	if !spec.Scope.valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidScope, spec.Scope)
	}
	if spec.Kind != Regular && spec.Kind != Prevent {
		return nil, fmt.Errorf("%w: %d", ErrInvalidFilterKind, spec.Kind)
	}
	field := strings.ToUpper(strings.TrimSpace(spec.Field))
	if err := checkField(field, spec.Raw); err != nil {
		return nil, err
	}
	pattern, err := regexp.Compile(spec.Pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPattern, err)
	}
	return &Filter{
		Field:   field,
		Scope:   spec.Scope,
		Kind:    spec.Kind,
		Raw:     spec.Raw,
		Pattern: pattern,
	}, nil
}

func checkField(field string, raw bool) error {
	if raw && field != "" {
		return ErrUnexpectedField
	}
	if !raw && field == "" {
		return ErrMissingField
	}
	return nil
}

// Matches reports whether the filter pattern is found in any of its scopes
func (f *Filter) Matches(p *ParsedRequest) bool {
	for _, sn := range scopeNames {
		if !f.Scope.Has(sn.scope) {
			continue
		}
		if f.matchesScope(p, sn.scope) {
			return true
		}
	}
	return false
}

func (f *Filter) matchesScope(p *ParsedRequest, scope Scope) bool {
	if f.Raw {
		return f.Pattern.MatchString(p.raw(scope))
	}
	for _, kv := range p.fields(scope) {
		if kv.Norm == f.Field && f.Pattern.MatchString(kv.Value) {
			return true
		}
	}
	return false
}

func (f *Filter) String() string {
	target := f.Field
	if f.Raw {
		target = "<raw>"
	}
	return fmt.Sprintf("%s %s %s %q", f.Kind, f.Scope, target, f.Pattern.String())
}
