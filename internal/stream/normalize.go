// Package stream turns raw inputs (text, URL lists, traffic logs) into the
// byte keys the structures in internal/pds consume, and fans them out to
// concurrent workers.
//
// The structures hash exactly the bytes they are given. Anything that should
// count as "the same element" (case, trailing slashes, default ports, the
// textual form of an IP address) has to be normalized here, before hashing.
package stream

import (
	"strings"
	"unicode"
)

// NormalizeWord lowercases s and keeps only letters and apostrophes.
// Leading and trailing apostrophes are dropped, so quoted words match their
// bare form. The result is empty when s holds no letters.
func NormalizeWord(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsLetter(r):
			b.WriteRune(unicode.ToLower(r))
		case r == '\'':
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), "'")
}

// Words splits line on whitespace and returns the normalized, non-empty words
// in order.
func Words(line string) []string {
	fields := strings.Fields(line)
	words := fields[:0]
	for _, f := range fields {
		if w := NormalizeWord(f); w != "" {
			words = append(words, w)
		}
	}
	return words
}

// NormalizeURL canonicalizes a URL for deduplication: it lowercases the
// string, removes the default ports ":80/" and ":443/" and strips trailing
// slashes.
//
// Ports are removed before slashes so that "http://a.com:80/" and
// "http://a.com" normalize to the same key.
func NormalizeURL(s string) string {
	u := strings.ToLower(strings.TrimSpace(s))

	if strings.HasSuffix(u, ":80") || strings.HasSuffix(u, ":443") {
		u += "/"
	}
	u = strings.Replace(u, ":80/", "/", 1)
	u = strings.Replace(u, ":443/", "/", 1)

	return strings.TrimRight(u, "/")
}
