package models

import (
	"strconv"
	"strings"
	"time"
)

// DupCountHeader carries the number of times a request has already been
// duplicated along a proxy chain.
const DupCountHeader = "X-Dup-Count"

// Header is one inbound header line. Requests keep headers as an ordered
// list so duplicates and their order survive the round trip.
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Answer is the response the original destination returned, captured when a
// location duplicates requests together with their answer.
type Answer struct {
	Status  int      `json:"status"`
	Headers []Header `json:"headers,omitempty"`
	Body    []byte   `json:"body,omitempty"`
}

// HeaderBlock renders the answer headers as "Name: value\n" lines
func (a *Answer) HeaderBlock() string {
	return FormatHeaderBlock(a.Headers)
}

// Request is one inbound request as seen by the duplicator
type Request struct {
	ID         string    `json:"id"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	Args       string    `json:"args,omitempty"` // raw query string without '?'
	Body       []byte    `json:"body,omitempty"`
	Headers    []Header  `json:"headers,omitempty"`
	Answer     *Answer   `json:"answer,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

// Header returns the value of the first header named name, compared
// case-insensitively.
func (r *Request) Header(name string) (string, bool) {
	for _, h := range r.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value, true
		}
	}
	return "", false
}

// SetHeader replaces every header named name by a single one holding value,
// kept at the position of the first occurrence.
func (r *Request) SetHeader(name, value string) {
	out := r.Headers[:0]
	set := false
	for _, h := range r.Headers {
		if !strings.EqualFold(h.Name, name) {
			out = append(out, h)
			continue
		}
		if !set {
			out = append(out, Header{Name: h.Name, Value: value})
			set = true
		}
	}
	if !set {
		out = append(out, Header{Name: name, Value: value})
	}
	r.Headers = out
}

// DupCount returns the duplication count carried by the request. Missing or
// malformed values count as zero.
func (r *Request) DupCount() int {
	value, ok := r.Header(DupCountHeader)
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// HeaderBlock renders the request headers as "Name: value\n" lines
func (r *Request) HeaderBlock() string {
	return FormatHeaderBlock(r.Headers)
}

// ParseHeaderBlock is the inverse of HeaderBlock. Lines without a colon are
// kept as headers with an empty value.
func ParseHeaderBlock(block string) []Header {
	var headers []Header
	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			continue
		}
		name, value, _ := strings.Cut(line, ":")
		headers = append(headers, Header{Name: name, Value: strings.TrimPrefix(value, " ")})
	}
	return headers
}

// Clone returns a deep copy of r
func (r *Request) Clone() *Request {
	c := *r
	c.Body = append([]byte(nil), r.Body...)
	c.Headers = append([]Header(nil), r.Headers...)
	if r.Answer != nil {
		answer := *r.Answer
		answer.Headers = append([]Header(nil), r.Answer.Headers...)
		answer.Body = append([]byte(nil), r.Answer.Body...)
		c.Answer = &answer
	}
	return &c
}

// FormatHeaderBlock renders headers as "Name: value\n" lines
func FormatHeaderBlock(headers []Header) string {
	var b strings.Builder
	for _, h := range headers {
		b.WriteString(h.Name)
		b.WriteString(": ")
		b.WriteString(h.Value)
		b.WriteByte('\n')
	}
	return b.String()
}
