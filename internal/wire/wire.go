// Package wire encodes a duplicated request together with the answer the
// original destination gave to it.
//
// The layout is three consecutive sections: request body, response header
// block, response body. Each section is preceded by its length in bytes as
// eight zero-padded decimal digits.
package wire

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	// LengthDigits is the width of every length prefix
	LengthDigits = 8
	// MaxSectionLength is the largest section an 8 digit prefix can describe
	MaxSectionLength = 99999999
)

var (
	// ErrSectionTooLarge is returned when a section does not fit the prefix
	ErrSectionTooLarge = errors.New("section exceeds maximum length")
	// ErrMalformed is returned when a payload cannot be parsed
	ErrMalformed = errors.New("malformed answer payload")
)

// Answer is the decoded form of a payload
type Answer struct {
	RequestBody     string
	ResponseHeaders string
	ResponseBody    string
}

// Serialize builds the framed payload
func Serialize(requestBody, responseHeaders, responseBody string) (string, error) {
	var b strings.Builder
	b.Grow(3*LengthDigits + len(requestBody) + len(responseHeaders) + len(responseBody))
	for _, section := range []string{requestBody, responseHeaders, responseBody} {
		if len(section) > MaxSectionLength {
			return "", fmt.Errorf("%w: %d bytes", ErrSectionTooLarge, len(section))
		}
		fmt.Fprintf(&b, "%0*d", LengthDigits, len(section))
		b.WriteString(section)
	}
	return b.String(), nil
}

// Parse splits a payload built by Serialize. Trailing bytes are an error.
func Parse(payload string) (Answer, error) {
	var sections [3]string
	rest := payload
	for i := range sections {
		section, remaining, err := readSection(rest)
		if err != nil {
			return Answer{}, fmt.Errorf("section %d: %w", i+1, err)
		}
		sections[i] = section
		rest = remaining
	}
	if rest != "" {
		return Answer{}, fmt.Errorf("%w: %d trailing bytes", ErrMalformed, len(rest))
	}
	return Answer{
		RequestBody:     sections[0],
		ResponseHeaders: sections[1],
		ResponseBody:    sections[2],
	}, nil
}

func readSection(s string) (string, string, error) {
	if len(s) < LengthDigits {
		return "", "", fmt.Errorf("%w: truncated length prefix", ErrMalformed)
	}
	prefix := s[:LengthDigits]
	for i := 0; i < len(prefix); i++ {
		if prefix[i] < '0' || prefix[i] > '9' {
			return "", "", fmt.Errorf("%w: invalid length prefix %q", ErrMalformed, prefix)
		}
	}
	n, err := strconv.Atoi(prefix)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	s = s[LengthDigits:]
	if len(s) < n {
		return "", "", fmt.Errorf("%w: section of %d bytes truncated to %d", ErrMalformed, n, len(s))
	}
	return s[:n], s[n:], nil
}
