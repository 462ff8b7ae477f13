package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "traffic-duplicator/internal/common/errors"
)

func TestRules_AddDestination(t *testing.T) {
	rules := NewRules()

	require.NoError(t, rules.AddDestination("/a", "host1", 100, CompleteRequest))
	require.NoError(t, rules.AddDestination("/a", "host2", 550, HeaderOnly))

	loc := rules.Lookup("/a")
	require.NotNil(t, loc)
	require.Len(t, loc.Commands(), 2)
	assert.Equal(t, "host1", loc.Commands()[0].Destination)
	assert.Equal(t, 550, loc.Destination("host2").Percentage)
	assert.Equal(t, 1, rules.Len())
}

func TestRules_AddDestinationErrors(t *testing.T) {
	rules := NewRules()

	tests := []struct {
		name        string
		path        string
		destination string
		percentage  int
		dupType     DuplicationType
		want        error
	}{
		{"empty path", "", "host", 10, CompleteRequest, ErrEmptyPath},
		{"empty destination", "/a", "", 10, CompleteRequest, ErrEmptyDestination},
		{"negative percentage", "/a", "host", -1, CompleteRequest, ErrInvalidPercentage},
		{"percentage too high", "/a", "host", MaxPercentage + 1, CompleteRequest, ErrInvalidPercentage},
		{"bad type", "/a", "host", 10, DuplicationType(42), ErrInvalidDuplicationType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := rules.AddDestination(tt.path, tt.destination, tt.percentage, tt.dupType)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, apperrors.IsType(err, apperrors.ErrTypeConfig))
		})
	}
}

func TestRules_HighestDuplicationTypeIsMonotonic(t *testing.T) {
	rules := NewRules()

	require.NoError(t, rules.AddDestination("/a", "host1", 100, RequestWithAnswer))
	assert.True(t, rules.Lookup("/a").NeedsAnswer())

	require.NoError(t, rules.AddDestination("/a", "host1", 100, HeaderOnly))
	require.NoError(t, rules.AddDestination("/a", "host2", 100, CompleteRequest))

	loc := rules.Lookup("/a")
	assert.Equal(t, RequestWithAnswer, loc.HighestDuplicationType())
	assert.Equal(t, HeaderOnly, loc.Destination("host1").Type)
	assert.True(t, loc.NeedsAnswer())
}

func TestRules_RulesRequireBoundDestination(t *testing.T) {
	rules := NewRules()
	require.NoError(t, rules.AddDestination("/a", "host1", 100, CompleteRequest))

	err := rules.AddFilter("/a", "host2", FilterSpec{Field: "INFO", Pattern: "x", Scope: ScopeURL})
	assert.ErrorIs(t, err, ErrUnknownDestination)

	err = rules.AddSubstitution("/b", "host1", SubstitutionSpec{Field: "INFO", Pattern: "x", Scope: ScopeURL})
	assert.ErrorIs(t, err, ErrUnknownDestination)
}

func TestRules_InvalidRules(t *testing.T) {
	rules := NewRules()
	require.NoError(t, rules.AddDestination("/a", "host1", 100, CompleteRequest))

	tests := []struct {
		name string
		err  error
		want error
	}{
		{
			"bad regex",
			rules.AddFilter("/a", "host1", FilterSpec{Field: "INFO", Pattern: "(", Scope: ScopeURL}),
			ErrInvalidPattern,
		},
		{
			"no scope",
			rules.AddFilter("/a", "host1", FilterSpec{Field: "INFO", Pattern: "x"}),
			ErrInvalidScope,
		},
		{
			"keyed without field",
			rules.AddFilter("/a", "host1", FilterSpec{Pattern: "x", Scope: ScopeURL}),
			ErrMissingField,
		},
		{
			"raw with field",
			rules.AddSubstitution("/a", "host1", SubstitutionSpec{Field: "A", Pattern: "x", Scope: ScopeURL, Raw: true}),
			ErrUnexpectedField,
		},
		{
			"bad kind",
			rules.AddFilter("/a", "host1", FilterSpec{Field: "A", Pattern: "x", Scope: ScopeURL, Kind: FilterKind(9)}),
			ErrInvalidFilterKind,
		},
		{
			"bad substitution regex",
			rules.AddSubstitution("/a", "host1", SubstitutionSpec{Field: "A", Pattern: "[", Scope: ScopeURL}),
			ErrInvalidPattern,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Error(t, tt.err)
			assert.ErrorIs(t, tt.err, tt.want)
			assert.Equal(t, apperrors.ErrTypeConfig, apperrors.GetType(tt.err))
		})
	}

	assert.Empty(t, rules.Lookup("/a").Destination("host1").Filters(), "rejected rules are not registered")
}

func TestRules_Lookup(t *testing.T) {
	rules := NewRules()
	require.NoError(t, rules.AddDestination("/api", "short", 100, CompleteRequest))
	require.NoError(t, rules.AddDestination("/api/v2", "long", 100, CompleteRequest))

	assert.Equal(t, "/api/v2", rules.Lookup("/api/v2/users").Path)
	assert.Equal(t, "/api", rules.Lookup("/api/v1").Path)
	assert.Nil(t, rules.Lookup("/other"))

	require.NoError(t, rules.AddDestination(DefaultLocation, "catchall", 100, CompleteRequest))
	assert.Equal(t, DefaultLocation, rules.Lookup("/other").Path)

	paths := []string{}
	for _, loc := range rules.Locations() {
		paths = append(paths, loc.Path)
	}
	assert.Equal(t, []string{"/api/v2", "/api", DefaultLocation}, paths)
}
