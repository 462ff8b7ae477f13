package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"traffic-duplicator/internal/models"
)

func newRequest(args, body string, headers ...models.Header) *models.Request {
	return &models.Request{Method: "POST", Path: "/a", Args: args, Body: []byte(body), Headers: headers}
}

func evaluate(t *testing.T, rules *Rules, req *models.Request) []MatchedFilter {
	t.Helper()
	loc := rules.Lookup(req.Path)
	require.NotNil(t, loc)
	return loc.Evaluate(NewParsedRequest(req))
}

func TestEvaluate_InfoScenario(t *testing.T) {
	rules := NewRules()
	require.NoError(t, rules.AddDestination("/a", "host1", 100, CompleteRequest))
	require.NoError(t, rules.AddFilter("/a", "host1", FilterSpec{
		Field:   "INFO",
		Pattern: "my.*",
		Scope:   ScopeURL,
		Kind:    Regular,
	}))

	matches := evaluate(t, rules, newRequest("INFO=myinfo", ""))
	require.Len(t, matches, 1)
	assert.Equal(t, "host1", matches[0].Destination())
	require.NotNil(t, matches[0].Filter)
	assert.Equal(t, "INFO", matches[0].Filter.Field)

	assert.Empty(t, evaluate(t, rules, newRequest("INFO=other", "")))

	// field names are case-insensitive
	assert.Len(t, evaluate(t, rules, newRequest("info=myinfo", "")), 1)
}

func TestEvaluate_OpenByDefault(t *testing.T) {
	rules := NewRules()
	require.NoError(t, rules.AddDestination("/a", "host1", 100, CompleteRequest))
	require.NoError(t, rules.AddDestination("/a", "host2", 100, None))

	matches := evaluate(t, rules, newRequest("anything=1", ""))
	require.Len(t, matches, 1, "type none is never dispatched")
	assert.Equal(t, "host1", matches[0].Destination())
	assert.Nil(t, matches[0].Filter)
}

func TestEvaluate_DestinationsAreIndependent(t *testing.T) {
	rules := NewRules()
	require.NoError(t, rules.AddDestination("/a", "host1", 100, CompleteRequest))
	require.NoError(t, rules.AddDestination("/a", "host2", 100, CompleteRequest))
	require.NoError(t, rules.AddFilter("/a", "host1", FilterSpec{Field: "ID", Pattern: "^1$", Scope: ScopeURL}))
	require.NoError(t, rules.AddFilter("/a", "host2", FilterSpec{Field: "ID", Pattern: "^2$", Scope: ScopeURL}))

	matches := evaluate(t, rules, newRequest("id=2", ""))
	require.Len(t, matches, 1)
	assert.Equal(t, "host2", matches[0].Destination())
}

func TestMatch_ScopeCorrectness(t *testing.T) {
	header := models.Header{Name: "X-Secret", Value: "token"}

	tests := []struct {
		name  string
		scope Scope
		req   *models.Request
		want  bool
	}{
		{"header filter, value in header", ScopeHeader, newRequest("", "", header), true},
		{"header filter, value only in body", ScopeHeader, newRequest("", "X-SECRET=token"), false},
		{"body filter, value in body", ScopeBody, newRequest("", "x-secret=token"), true},
		{"body filter, value only in header", ScopeBody, newRequest("", "", header), false},
		{"url filter, value only in body", ScopeURL, newRequest("", "X-SECRET=token"), false},
		{"all filter, value in header", ScopeAll, newRequest("", "", header), true},
		{"all filter, value in body", ScopeAll, newRequest("", "X-SECRET=token"), true},
		{"all filter, value in url", ScopeAll, newRequest("X-Secret=token", ""), true},
		{"header|body filter, value in url", ScopeHeader | ScopeBody, newRequest("X-Secret=token", ""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			filter, err := compileFilter(FilterSpec{Field: "x-secret", Pattern: "tok", Scope: tt.scope})
			require.NoError(t, err)
			assert.Equal(t, tt.want, filter.Matches(NewParsedRequest(tt.req)))
		})
	}
}

func TestMatch_RawFilters(t *testing.T) {
	rawURL, err := compileFilter(FilterSpec{Pattern: "a=1&b", Scope: ScopeURL, Raw: true})
	require.NoError(t, err)
	assert.True(t, rawURL.Matches(NewParsedRequest(newRequest("a=1&b=2", ""))))
	assert.False(t, rawURL.Matches(NewParsedRequest(newRequest("b=2&a=1", ""))))

	rawHeader, err := compileFilter(FilterSpec{Pattern: "(?m)^Host: internal$", Scope: ScopeHeader, Raw: true})
	require.NoError(t, err)
	req := newRequest("", "", models.Header{Name: "Accept", Value: "*/*"}, models.Header{Name: "Host", Value: "internal"})
	assert.True(t, rawHeader.Matches(NewParsedRequest(req)))

	rawBody, err := compileFilter(FilterSpec{Pattern: `"kind":\s*"test"`, Scope: ScopeBody, Raw: true})
	require.NoError(t, err)
	assert.True(t, rawBody.Matches(NewParsedRequest(newRequest("", `{"kind": "test"}`))))
}

func TestMatch_PreventWins(t *testing.T) {
	rules := NewRules()
	require.NoError(t, rules.AddDestination("/a", "host1", 100, CompleteRequest))
	require.NoError(t, rules.AddFilter("/a", "host1", FilterSpec{Field: "INFO", Pattern: "my", Scope: ScopeURL}))
	require.NoError(t, rules.AddFilter("/a", "host1", FilterSpec{Pattern: "debug", Scope: ScopeAll, Kind: Prevent, Raw: true}))

	assert.Len(t, evaluate(t, rules, newRequest("INFO=myinfo", "")), 1)
	assert.Empty(t, evaluate(t, rules, newRequest("INFO=myinfo&debug", "")))
	assert.Empty(t, evaluate(t, rules, newRequest("INFO=myinfo", "debug=1")))
}

func TestMatch_PreventOnly(t *testing.T) {
	rules := NewRules()
	require.NoError(t, rules.AddDestination("/a", "host1", 100, CompleteRequest))
	require.NoError(t, rules.AddFilter("/a", "host1", FilterSpec{Field: "USER", Pattern: "^bot", Scope: ScopeURL, Kind: Prevent}))

	matches := evaluate(t, rules, newRequest("user=alice", ""))
	require.Len(t, matches, 1)
	assert.Nil(t, matches[0].Filter)

	assert.Empty(t, evaluate(t, rules, newRequest("user=bot42", "")))
}

func TestMatch_BodyIsParsedOnlyWhenNeeded(t *testing.T) {
	rules := NewRules()
	require.NoError(t, rules.AddDestination("/a", "host1", 100, CompleteRequest))
	require.NoError(t, rules.AddFilter("/a", "host1", FilterSpec{Field: "INFO", Pattern: "my", Scope: ScopeURL}))

	loc := rules.Lookup("/a")
	assert.False(t, loc.NeedsBody())

	p := NewParsedRequest(newRequest("INFO=my", "INFO=my"))
	loc.Evaluate(p)
	assert.False(t, p.BodyParsed())

	require.NoError(t, rules.AddFilter("/a", "host1", FilterSpec{Field: "X", Pattern: "y", Scope: ScopeBody, Kind: Prevent}))
	assert.True(t, loc.NeedsBody())
}

func TestSubstitute_Ordering(t *testing.T) {
	rules := NewRules()
	require.NoError(t, rules.AddDestination("/a", "host1", 100, CompleteRequest))
	require.NoError(t, rules.AddSubstitution("/a", "host1", SubstitutionSpec{
		Field: "INFO", Pattern: "-(.*)-", Replacement: `T\1`, Scope: ScopeURL,
	}))
	require.NoError(t, rules.AddSubstitution("/a", "host1", SubstitutionSpec{
		Field: "INFO", Pattern: "T(v)", Replacement: "X$1", Scope: ScopeURL,
	}))

	c := rules.Lookup("/a").Destination("host1")
	out := c.Substitute(NewParsedRequest(newRequest("id=1&INFO=a-value-b", "")))

	assert.True(t, out.ArgsChanged)
	assert.Equal(t, "id=1&INFO=aXvalueb", out.Args)
	assert.False(t, out.BodyChanged)
	assert.False(t, out.HeadersChanged)
}

func TestSubstitute_EmptyValueKeepsKey(t *testing.T) {
	rules := NewRules()
	require.NoError(t, rules.AddDestination("/a", "host1", 100, CompleteRequest))
	require.NoError(t, rules.AddSubstitution("/a", "host1", SubstitutionSpec{
		Field: "token", Pattern: ".*", Replacement: "", Scope: ScopeURL | ScopeBody,
	}))

	c := rules.Lookup("/a").Destination("host1")
	out := c.Substitute(NewParsedRequest(newRequest("a=1&token=secret&b=2", "token=x&c=3")))

	assert.Equal(t, "a=1&token&b=2", out.Args)
	assert.Equal(t, "token&c=3", string(out.Body))
	assert.True(t, out.BodyChanged)
}

func TestSubstitute_NoMatchLeavesRequestUntouched(t *testing.T) {
	rules := NewRules()
	require.NoError(t, rules.AddDestination("/a", "host1", 100, CompleteRequest))
	require.NoError(t, rules.AddSubstitution("/a", "host1", SubstitutionSpec{
		Field: "INFO", Pattern: "zzz", Replacement: "y", Scope: ScopeURL,
	}))

	req := newRequest("INFO=%41b&&x", "")
	out := rules.Lookup("/a").Destination("host1").Substitute(NewParsedRequest(req))

	assert.False(t, out.ArgsChanged)
	assert.Equal(t, "INFO=%41b&&x", out.Args, "raw args are kept byte for byte")
}

func TestSubstitute_RawAfterKeyed(t *testing.T) {
	rules := NewRules()
	require.NoError(t, rules.AddDestination("/a", "host1", 100, CompleteRequest))
	require.NoError(t, rules.AddSubstitution("/a", "host1", SubstitutionSpec{
		Pattern: "nomatch", Replacement: "", Scope: ScopeBody, Raw: true,
	}))
	require.NoError(t, rules.AddSubstitution("/a", "host1", SubstitutionSpec{
		Pattern: "prod", Replacement: "staging", Scope: ScopeURL, Raw: true,
	}))
	require.NoError(t, rules.AddSubstitution("/a", "host1", SubstitutionSpec{
		Field: "ENV", Pattern: "live", Replacement: "prod", Scope: ScopeURL,
	}))

	c := rules.Lookup("/a").Destination("host1")
	out := c.Substitute(NewParsedRequest(newRequest("env=live", "body")))

	assert.Equal(t, "env=staging", out.Args)
	assert.True(t, out.BodyChanged, "raw substitutions always count as a change")
	assert.Equal(t, "body", string(out.Body))
}

func TestSubstitute_Headers(t *testing.T) {
	rules := NewRules()
	require.NoError(t, rules.AddDestination("/a", "host1", 100, CompleteRequest))
	require.NoError(t, rules.AddSubstitution("/a", "host1", SubstitutionSpec{
		Field: "authorization", Pattern: "Bearer .*", Replacement: "Bearer test", Scope: ScopeHeader,
	}))
	require.NoError(t, rules.AddSubstitution("/a", "host1", SubstitutionSpec{
		Pattern: "(?m)^Host: .*$", Replacement: "Host: shadow", Scope: ScopeHeader, Raw: true,
	}))

	req := newRequest("", "",
		models.Header{Name: "Host", Value: "prod"},
		models.Header{Name: "Authorization", Value: "Bearer abc"},
	)
	out := rules.Lookup("/a").Destination("host1").Substitute(NewParsedRequest(req))

	assert.True(t, out.HeadersChanged)
	assert.Equal(t, []models.Header{
		{Name: "Host", Value: "shadow"},
		{Name: "Authorization", Value: "Bearer test"},
	}, out.Headers)
	assert.Equal(t, "prod", req.Headers[0].Value, "original request is not modified")
}

func TestConvertReplacement(t *testing.T) {
	assert.Equal(t, "T${1}", convertReplacement(`T\1`))
	assert.Equal(t, "${2}-${1}", convertReplacement(`\2-\1`))
	assert.Equal(t, `a\b`, convertReplacement(`a\\b`))
	assert.Equal(t, `\n`, convertReplacement(`\n`))
	assert.Equal(t, `end\`, convertReplacement(`end\`))
	assert.Equal(t, "$1", convertReplacement("$1"))
}
