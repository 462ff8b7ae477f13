package routing

import (
	"sort"
	"strings"

	apperrors "traffic-duplicator/internal/common/errors"
)

const (
	// DefaultLocation catches paths no other location prefixes
	DefaultLocation = "*"

	// MaxPercentage allows sampling up to 100 copies per request
	MaxPercentage = 10000
)

// MatchedFilter is one destination selected for a request, with the
// REGULAR filter that selected it (nil when the destination has none)
type MatchedFilter struct {
	Commands *Commands
	Filter   *Filter
}

// Destination returns the destination host of the match
func (m MatchedFilter) Destination() string {
	return m.Commands.Destination
}

// Location groups the destinations bound to one path prefix
type Location struct {
	Path string

	commands      []*Commands
	byDestination map[string]*Commands
	highest       DuplicationType
	needsBody     bool
}

func newLocation(path string) *Location {
	return &Location{
		Path:          path,
		byDestination: make(map[string]*Commands),
	}
}

// Commands returns the destinations in registration order
func (l *Location) Commands() []*Commands {
	return l.commands
}

// Destination returns the commands bound to destination, or nil
func (l *Location) Destination(destination string) *Commands {
	return l.byDestination[destination]
}

// HighestDuplicationType is the strongest type ever bound to the location.
// It never decreases, even when a binding is later lowered.
func (l *Location) HighestDuplicationType() DuplicationType {
	return l.highest
}

// NeedsAnswer reports whether requests on this location must carry the
// original answer before being dispatched
func (l *Location) NeedsAnswer() bool {
	return l.highest >= RequestWithAnswer
}

// NeedsBody reports whether any rule of the location reads the body
func (l *Location) NeedsBody() bool {
	return l.needsBody
}

// Evaluate returns the destinations p may be duplicated to. Destinations
// bound with type None are never returned.
func (l *Location) Evaluate(p *ParsedRequest) []MatchedFilter {
	var matches []MatchedFilter
	for _, c := range l.commands {
		if c.Type == None {
			continue
		}
		if filter, ok := c.Match(p); ok {
			matches = append(matches, MatchedFilter{Commands: c, Filter: filter})
		}
	}
	return matches
}

// Rules is the full rule set, indexed by location path
type Rules struct {
	locations map[string]*Location
	prefixes  []*Location
}

// NewRules creates an empty rule set
func NewRules() *Rules {
	return &Rules{locations: make(map[string]*Location)}
}

// AddDestination binds destination to path. Binding the same destination
// again updates its percentage and type.
func (r *Rules) AddDestination(path, destination string, percentage int, dupType DuplicationType) error {
	if err := checkTarget(path, destination); err != nil {
		return ruleError(err, path, destination)
	}
	if percentage < 0 || percentage > MaxPercentage {
		return ruleError(ErrInvalidPercentage, path, destination).WithContext("percentage", percentage)
	}
	if !dupType.valid() {
		return ruleError(ErrInvalidDuplicationType, path, destination)
	}

	loc := r.location(path)
	c, ok := loc.byDestination[destination]
	if !ok {
		c = newCommands(destination)
		loc.byDestination[destination] = c
		loc.commands = append(loc.commands, c)
	}
	c.Percentage = percentage
	c.Type = dupType
	if dupType > loc.highest {
		loc.highest = dupType
	}
	return nil
}

// AddFilter registers a filter for a destination already bound to path
func (r *Rules) AddFilter(path, destination string, spec FilterSpec) error {
	loc, c, err := r.bound(path, destination)
	if err != nil {
		return err
	}
	filter, err := compileFilter(spec)
	if err != nil {
		return ruleError(err, path, destination).WithContext("pattern", spec.Pattern)
	}
	c.addFilter(filter)
	loc.needsBody = loc.needsBody || c.needsBody
	return nil
}

// AddSubstitution registers a substitution for a destination already bound
// to path. Substitutions of the same field apply in the order they are
// added.
func (r *Rules) AddSubstitution(path, destination string, spec SubstitutionSpec) error {
	loc, c, err := r.bound(path, destination)
	if err != nil {
		return err
	}
	sub, err := compileSubstitution(spec)
	if err != nil {
		return ruleError(err, path, destination).WithContext("pattern", spec.Pattern)
	}
	c.addSubstitution(sub)
	loc.needsBody = loc.needsBody || c.needsBody
	return nil
}

// Lookup returns the longest location prefixing path, the default
// location when none does, or nil.
func (r *Rules) Lookup(path string) *Location {
	for _, loc := range r.prefixes {
		if strings.HasPrefix(path, loc.Path) {
			return loc
		}
	}
	return r.locations[DefaultLocation]
}

// Locations returns every location, longest path first, the default last
func (r *Rules) Locations() []*Location {
	locations := append([]*Location(nil), r.prefixes...)
	if def, ok := r.locations[DefaultLocation]; ok {
		locations = append(locations, def)
	}
	return locations
}

// Len returns the number of locations
func (r *Rules) Len() int {
	return len(r.locations)
}

func (r *Rules) location(path string) *Location {
	if loc, ok := r.locations[path]; ok {
		return loc
	}
	loc := newLocation(path)
	r.locations[path] = loc
	if path != DefaultLocation {
		r.prefixes = append(r.prefixes, loc)
		sort.SliceStable(r.prefixes, func(i, j int) bool {
			return len(r.prefixes[i].Path) > len(r.prefixes[j].Path)
		})
	}
	return loc
}

func (r *Rules) bound(path, destination string) (*Location, *Commands, error) {
	if err := checkTarget(path, destination); err != nil {
		return nil, nil, ruleError(err, path, destination)
	}
	loc, ok := r.locations[path]
	if !ok {
		return nil, nil, ruleError(ErrUnknownDestination, path, destination)
	}
	c, ok := loc.byDestination[destination]
	if !ok {
		return nil, nil, ruleError(ErrUnknownDestination, path, destination)
	}
	return loc, c, nil
}

func checkTarget(path, destination string) error {
	if path == "" {
		return ErrEmptyPath
	}
	if destination == "" {
		return ErrEmptyDestination
	}
	return nil
}

func ruleError(err error, path, destination string) *apperrors.AppError {
	return apperrors.ConfigErrorf(err, "rule rejected").
		WithContext("path", path).
		WithContext("destination", destination)
}
