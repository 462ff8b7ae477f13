package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"traffic-duplicator/internal/common/errors"
	"traffic-duplicator/internal/routing"
)

// RuleFile is the YAML layout of a rule file
type RuleFile struct {
	Locations []LocationRule `yaml:"locations"`
}

// LocationRule binds destinations to a path prefix
type LocationRule struct {
	Path         string            `yaml:"path"`
	Destinations []DestinationRule `yaml:"destinations"`
}

// DestinationRule is one destination of a location
type DestinationRule struct {
	Host          string             `yaml:"host"`
	Percentage    *int               `yaml:"percentage"`
	Type          string             `yaml:"type"`
	Filters       []FilterRule       `yaml:"filters"`
	Substitutions []SubstitutionRule `yaml:"substitutions"`
}

// FilterRule is the YAML form of routing.FilterSpec
type FilterRule struct {
	Field   string `yaml:"field"`
	Pattern string `yaml:"pattern"`
	Scope   string `yaml:"scope"`
	Kind    string `yaml:"kind"`
	Raw     bool   `yaml:"raw"`
}

// SubstitutionRule is the YAML form of routing.SubstitutionSpec
type SubstitutionRule struct {
	Field       string `yaml:"field"`
	Pattern     string `yaml:"pattern"`
	Replacement string `yaml:"replacement"`
	Scope       string `yaml:"scope"`
	Raw         bool   `yaml:"raw"`
}

// LoadRules reads and registers the rule file at path
func LoadRules(path string) (*routing.Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.ConfigErrorf(err, "failed to read rule file %s", path)
	}
	rules, err := ParseRules(data)
	if err != nil {
		return nil, err
	}
	return rules, nil
}

// ParseRules registers every entry of a YAML rule document. A destination
// without a percentage is duplicated 100% of the time.
func ParseRules(data []byte) (*routing.Rules, error) {
	var file RuleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.ConfigErrorf(err, "failed to parse rule file")
	}

	rules := routing.NewRules()
	for _, loc := range file.Locations {
		for _, dest := range loc.Destinations {
			if err := registerDestination(rules, loc.Path, dest); err != nil {
				return nil, err
			}
		}
	}
	return rules, nil
}

func registerDestination(rules *routing.Rules, path string, dest DestinationRule) error {
	percentage := 100
	if dest.Percentage != nil {
		percentage = *dest.Percentage
	}
	dupType, err := routing.ParseDuplicationType(dest.Type)
	if err != nil {
		return ruleFileError(err, path, dest.Host)
	}
	if err := rules.AddDestination(path, dest.Host, percentage, dupType); err != nil {
		return err
	}

	for _, f := range dest.Filters {
		scope, err := parseScope(f.Scope)
		if err != nil {
			return ruleFileError(err, path, dest.Host)
		}
		kind, err := routing.ParseFilterKind(f.Kind)
		if err != nil {
			return ruleFileError(err, path, dest.Host)
		}
		err = rules.AddFilter(path, dest.Host, routing.FilterSpec{
			Field:   f.Field,
			Pattern: f.Pattern,
			Scope:   scope,
			Kind:    kind,
			Raw:     f.Raw,
		})
		if err != nil {
			return err
		}
	}

	for _, s := range dest.Substitutions {
		scope, err := parseScope(s.Scope)
		if err != nil {
			return ruleFileError(err, path, dest.Host)
		}
		err = rules.AddSubstitution(path, dest.Host, routing.SubstitutionSpec{
			Field:       s.Field,
			Pattern:     s.Pattern,
			Replacement: s.Replacement,
			Scope:       scope,
			Raw:         s.Raw,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// parseScope defaults an omitted scope to the query string
func parseScope(s string) (routing.Scope, error) {
	if s == "" {
		return routing.ScopeURL, nil
	}
	return routing.ParseScope(s)
}

func ruleFileError(err error, path, destination string) error {
	return errors.ConfigErrorf(err, "invalid rule").
		WithContext("path", path).
		WithContext("destination", destination)
}
