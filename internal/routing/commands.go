package routing

import (
	"traffic-duplicator/internal/models"
)

// Commands holds everything bound to one location × destination pair
type Commands struct {
	Destination string
	Percentage  int
	Type        DuplicationType

	filters          []*Filter
	regular          int
	substitutions    map[string][]*Substitution
	rawSubstitutions []*Substitution
	needsBody        bool
}

func newCommands(destination string) *Commands {
	return &Commands{
		Destination:   destination,
		substitutions: make(map[string][]*Substitution),
	}
}

func (c *Commands) addFilter(f *Filter) {
	c.filters = append(c.filters, f)
	if f.Kind == Regular {
		c.regular++
	}
	if f.Scope.Has(ScopeBody) {
		c.needsBody = true
	}
}

func (c *Commands) addSubstitution(s *Substitution) {
	if s.Raw {
		c.rawSubstitutions = append(c.rawSubstitutions, s)
	} else {
		c.substitutions[s.Field] = append(c.substitutions[s.Field], s)
	}
	if s.Scope.Has(ScopeBody) {
		c.needsBody = true
	}
}

// Filters returns the registered filters in registration order
func (c *Commands) Filters() []*Filter {
	return c.filters
}

// NeedsBody reports whether any rule of the pair looks at the body
func (c *Commands) NeedsBody() bool {
	return c.needsBody
}

// HasSubstitutions reports whether the pair rewrites requests
func (c *Commands) HasSubstitutions() bool {
	return len(c.substitutions) > 0 || len(c.rawSubstitutions) > 0
}

// Match decides whether p may be duplicated to the destination. The
// returned filter is the REGULAR filter that allowed it, nil when the pair
// has no REGULAR filter.
func (c *Commands) Match(p *ParsedRequest) (*Filter, bool) {
	if len(c.filters) == 0 {
		return nil, true
	}

	var matched *Filter
	if c.regular > 0 {
		for _, f := range c.filters {
			if f.Kind == Regular && f.Matches(p) {
				matched = f
				break
			}
		}
		if matched == nil {
			return nil, false
		}
	}

	for _, f := range c.filters {
		if f.Kind == Prevent && f.Matches(p) {
			return nil, false
		}
	}
	return matched, true
}

// Transformed is the outbound form of a request after substitutions. The
// Changed flags tell which parts differ from the original.
type Transformed struct {
	Args    string
	Body    []byte
	Headers []models.Header

	ArgsChanged    bool
	BodyChanged    bool
	HeadersChanged bool
}

// Substitute applies the keyed substitutions field by field, in
// registration order, then the raw substitutions on the whole text of their
// scopes. A raw substitution always marks its scope as changed.
func (c *Commands) Substitute(p *ParsedRequest) Transformed {
	req := p.Request
	out := Transformed{Args: req.Args, Body: req.Body, Headers: req.Headers}

	if len(c.substitutions) > 0 {
		if kvs, changed := c.substituteFields(p.Query(), ScopeURL); changed {
			out.Args = JoinKeyValues(kvs)
			out.ArgsChanged = true
		}
		if kvs, changed := c.substituteFields(p.headers, ScopeHeader); changed {
			out.Headers = keyValueHeaders(kvs)
			out.HeadersChanged = true
		}
		if c.needsBody {
			if kvs, changed := c.substituteFields(p.BodyFields(), ScopeBody); changed {
				out.Body = []byte(JoinKeyValues(kvs))
				out.BodyChanged = true
			}
		}
	}

	for _, s := range c.rawSubstitutions {
		if s.Scope.Has(ScopeURL) {
			out.Args = s.Apply(out.Args)
			out.ArgsChanged = true
		}
		if s.Scope.Has(ScopeHeader) {
			out.Headers = models.ParseHeaderBlock(s.Apply(models.FormatHeaderBlock(out.Headers)))
			out.HeadersChanged = true
		}
		if s.Scope.Has(ScopeBody) {
			out.Body = []byte(s.Apply(string(out.Body)))
			out.BodyChanged = true
		}
	}
	return out
}

// substituteFields returns a rewritten copy of kvs, or false when no value
// changed. Values emptied by a substitution become key-only fields.
func (c *Commands) substituteFields(kvs []KeyValue, scope Scope) ([]KeyValue, bool) {
	var out []KeyValue
	for i, kv := range kvs {
		subs := c.substitutions[kv.Norm]
		if len(subs) == 0 {
			continue
		}
		value := kv.Value
		for _, s := range subs {
			if s.Scope.Has(scope) {
				value = s.Apply(value)
			}
		}
		if value == kv.Value {
			continue
		}
		if out == nil {
			out = append([]KeyValue(nil), kvs...)
		}
		out[i].Value = value
		out[i].HasValue = value != ""
	}
	return out, out != nil
}
