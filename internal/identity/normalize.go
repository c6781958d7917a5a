// Package identity normalizes raw contact identity fields, computes the
// canonical dedup fingerprint, and classifies incoming records against
// previously stored leads.
package identity

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// dotBlindDomains are email providers where dots in the local part are
// ignored for delivery, so they must not affect the fingerprint.
var dotBlindDomains = map[string]bool{
	"gmail.com":      true,
	"googlemail.com": true,
}

// NormalizeEmail lowercases and trims an email address. For dot-blind
// providers the local part has all dots removed, so "j.doe@gmail.com" and
// "jdoe@gmail.com" normalize identically.
func NormalizeEmail(email string) string {
	e := strings.ToLower(strings.TrimSpace(email))
	at := strings.LastIndex(e, "@")
	if at < 0 {
		return e
	}
	local, domain := e[:at], e[at+1:]
	if dotBlindDomains[domain] {
		local = strings.ReplaceAll(local, ".", "")
	}
	return local + "@" + domain
}

// NormalizePhone strips all non-digits. An 11-digit number starting with 1
// has the US long-distance prefix dropped, so "(555) 123-4567" and
// "+1-555-123-4567" normalize identically.
func NormalizePhone(phone string) string {
	var b strings.Builder
	b.Grow(len(phone))
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	d := b.String()
	if len(d) == 11 && d[0] == '1' {
		d = d[1:]
	}
	return d
}

// NormalizeDomain canonicalizes a company domain. An explicit domain field
// wins; otherwise the domain part of the (normalized) email is used. Pasted
// URLs are tolerated by stripping scheme, www prefix, path, and port.
func NormalizeDomain(domain, email string) string {
	d := strings.ToLower(strings.TrimSpace(domain))
	if d == "" {
		e := NormalizeEmail(email)
		if at := strings.LastIndex(e, "@"); at >= 0 {
			d = e[at+1:]
		}
	}
	d = strings.TrimPrefix(d, "https://")
	d = strings.TrimPrefix(d, "http://")
	d = strings.TrimPrefix(d, "www.")
	if i := strings.IndexAny(d, "/:?"); i >= 0 {
		d = d[:i]
	}
	return d
}

// foldTransformer strips combining diacritical marks after NFD decomposition.
var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Fold returns a lowercase, diacritic-free form of s for comparisons, so
// "São Paulo" matches "sao paulo".
func Fold(s string) string {
	out, _, err := transform.String(foldTransformer, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.TrimSpace(out))
}
