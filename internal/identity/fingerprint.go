package identity

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/leadgrid/lead-engine/internal/model"
)

// Normalized holds the canonical identity fields of one raw record.
type Normalized struct {
	Email  string
	Domain string
	Phone  string
}

// Normalize canonicalizes the identity fields of a raw record.
func Normalize(rec model.RawContactRecord) Normalized {
	return Normalized{
		Email:  NormalizeEmail(rec.Email),
		Domain: NormalizeDomain(rec.CompanyDomain, rec.Email),
		Phone:  NormalizePhone(rec.Phone),
	}
}

// Fingerprint returns the SHA-256 dedup key over the normalized identity
// fields. Empty components still participate, so a record with only an email
// gets a stable (if weaker) fingerprint.
func (n Normalized) Fingerprint() string {
	h := sha256.Sum256([]byte(n.Email + "|" + n.Domain + "|" + n.Phone))
	return hex.EncodeToString(h[:])
}

// Fingerprint normalizes the given raw identity fields and hashes them.
// Two records that are equivalent after normalization always map to the
// same fingerprint regardless of case, punctuation, Gmail dot variants, or
// phone formatting.
func Fingerprint(email, domain, phone string) string {
	n := Normalized{
		Email:  NormalizeEmail(email),
		Domain: NormalizeDomain(domain, email),
		Phone:  NormalizePhone(phone),
	}
	return n.Fingerprint()
}
