package routing

import (
	"fmt"
	"regexp"
	"strings"
)

// SubstitutionSpec is the registration form of a substitution. Replacement
// may reference capture groups as \1 or as $1 / ${1}.
type SubstitutionSpec struct {
	Field       string
	Pattern     string
	Replacement string
	Scope       Scope
	Raw         bool
}

// Substitution rewrites one field, or the whole text of a scope when raw
type Substitution struct {
	Field       string
	Scope       Scope
	Raw         bool
	Pattern     *regexp.Regexp
	Replacement string
}

func compileSubstitution(spec SubstitutionSpec) (*Substitution, error) {
	if !spec.Scope.valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidScope, spec.Scope)
	}
	field := strings.ToUpper(strings.TrimSpace(spec.Field))
	if err := checkField(field, spec.Raw); err != nil {
		return nil, err
	}
	pattern, err := regexp.Compile(spec.Pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPattern, err)
	}
	return &Substitution{
		Field:       field,
		Scope:       spec.Scope,
		Raw:         spec.Raw,
		Pattern:     pattern,
		Replacement: convertReplacement(spec.Replacement),
	}, nil
}

// Apply returns value with every match of the pattern replaced
func (s *Substitution) Apply(value string) string {
	return s.Pattern.ReplaceAllString(value, s.Replacement)
}

// convertReplacement turns \N back-references into ${N} and \\ into a
// literal backslash.
func convertReplacement(repl string) string {
	if !strings.Contains(repl, `\`) {
		return repl
	}
	var b strings.Builder
	for i := 0; i < len(repl); i++ {
		c := repl[i]
		if c != '\\' || i+1 == len(repl) {
			b.WriteByte(c)
			continue
		}
		next := repl[i+1]
		switch {
		case next >= '0' && next <= '9':
			b.WriteString("${")
			b.WriteByte(next)
			b.WriteByte('}')
			i++
		case next == '\\':
			b.WriteByte('\\')
			i++
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
