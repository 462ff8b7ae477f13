// Package routing holds the duplication rules and evaluates them against
// inbound requests.
//
// # Overview
//
// Rules are organised by location (a path prefix) and, inside a location,
// by destination. Each location × destination pair owns a Commands value:
//
//   - the sampling percentage and duplication type of the destination
//   - keyed filters, testing one named field of a scope
//   - raw filters, testing the whole text of a scope
//   - keyed substitutions, rewriting one named field, applied in
//     registration order
//   - raw substitutions, rewriting the whole text of a scope after the
//     keyed ones
//
// A scope is one or more of URL (the query string), HEADER (the header
// list) and BODY (the request body, read with the query string grammar).
//
// # Matching
//
// A destination with no filters accepts every request. Otherwise at least
// one REGULAR filter must match (when REGULAR filters exist) and no PREVENT
// filter may match. A filter spanning several scopes matches if any of them
// matches. Keyed patterns are searched, not anchored.
//
// # Lookup
//
// A request path resolves to the longest registered location that prefixes
// it. Paths with no such location fall back to the default location "*",
// if one was registered.
//
// # Usage
//
//	rules := routing.NewRules()
//	if err := rules.AddDestination("/a", "host1:8080", 100, routing.CompleteRequest); err != nil {
//		return err
//	}
//	err := rules.AddFilter("/a", "host1:8080", routing.FilterSpec{
//		Field:   "INFO",
//		Pattern: "my.*",
//		Scope:   routing.ScopeURL,
//		Kind:    routing.Regular,
//	})
//
// Rules are built once at startup and are read-only afterwards, so lookups
// and evaluation take no locks.
package routing
