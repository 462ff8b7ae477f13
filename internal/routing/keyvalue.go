package routing

import (
	"strings"

	"traffic-duplicator/internal/models"
)

// KeyValue is one field of a query string, form body or header list.
// Key keeps the original spelling; Norm is the upper-cased key rules are
// matched against.
type KeyValue struct {
	Key      string
	Norm     string
	Value    string
	HasValue bool
}

// ParseKeyValues splits a "k=v&k2=v2" string into fields. Values are kept
// raw, no percent-decoding is applied. Empty segments are skipped; a
// segment without '=' becomes a key-only field.
func ParseKeyValues(raw string) []KeyValue {
	if raw == "" {
		return nil
	}
	segments := strings.Split(raw, "&")
	kvs := make([]KeyValue, 0, len(segments))
	for _, segment := range segments {
		if segment == "" {
			continue
		}
		key, value, hasValue := strings.Cut(segment, "=")
		kvs = append(kvs, KeyValue{
			Key:      key,
			Norm:     strings.ToUpper(key),
			Value:    value,
			HasValue: hasValue,
		})
	}
	return kvs
}

// JoinKeyValues is the inverse of ParseKeyValues
func JoinKeyValues(kvs []KeyValue) string {
	var b strings.Builder
	for i, kv := range kvs {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(kv.Key)
		if kv.HasValue {
			b.WriteByte('=')
			b.WriteString(kv.Value)
		}
	}
	return b.String()
}

func headerKeyValues(headers []models.Header) []KeyValue {
	kvs := make([]KeyValue, len(headers))
	for i, h := range headers {
		kvs[i] = KeyValue{Key: h.Name, Norm: strings.ToUpper(h.Name), Value: h.Value, HasValue: true}
	}
	return kvs
}

func keyValueHeaders(kvs []KeyValue) []models.Header {
	headers := make([]models.Header, len(kvs))
	for i, kv := range kvs {
		headers[i] = models.Header{Name: kv.Key, Value: kv.Value}
	}
	return headers
}

// ParsedRequest is a request split into the fields rules look at. The body
// is only parsed the first time a body rule needs it.
type ParsedRequest struct {
	Request *models.Request

	query      []KeyValue
	headers    []KeyValue
	body       []KeyValue
	bodyParsed bool
}

// NewParsedRequest parses the query string and headers of req
func NewParsedRequest(req *models.Request) *ParsedRequest {
	return &ParsedRequest{
		Request: req,
		query:   ParseKeyValues(req.Args),
		headers: headerKeyValues(req.Headers),
	}
}

// Query returns the parsed query string
func (p *ParsedRequest) Query() []KeyValue {
	return p.query
}

// BodyFields returns the parsed body, parsing it on first use
func (p *ParsedRequest) BodyFields() []KeyValue {
	if !p.bodyParsed {
		p.body = ParseKeyValues(string(p.Request.Body))
		p.bodyParsed = true
	}
	return p.body
}

// BodyParsed reports whether the body has been parsed
func (p *ParsedRequest) BodyParsed() bool {
	return p.bodyParsed
}

// fields returns the parsed fields of a single scope
func (p *ParsedRequest) fields(scope Scope) []KeyValue {
	switch scope {
	case ScopeURL:
		return p.query
	case ScopeHeader:
		return p.headers
	case ScopeBody:
		return p.BodyFields()
	}
	return nil
}

// raw returns the unparsed text of a single scope
func (p *ParsedRequest) raw(scope Scope) string {
	switch scope {
	case ScopeURL:
		return p.Request.Args
	case ScopeHeader:
		return p.Request.HeaderBlock()
	case ScopeBody:
		return string(p.Request.Body)
	}
	return ""
}
