package identity

import (
	"context"

	"go.uber.org/zap"

	"github.com/leadgrid/lead-engine/internal/model"
)

// Classification is the dedup outcome for one incoming record.
type Classification string

const (
	// ClassNew means no stored lead shares the fingerprint.
	ClassNew Classification = "new"
	// ClassSameOwner means the stored lead belongs to the uploading partner;
	// stored-empty fields may be filled, nothing is overwritten.
	ClassSameOwner Classification = "same_owner_duplicate"
	// ClassCrossOwner means the stored lead belongs to a different partner;
	// the incoming record is rejected, never merged.
	ClassCrossOwner Classification = "cross_owner_duplicate"
	// ClassPlatformOwned means the stored lead is house inventory with no
	// attributed partner.
	ClassPlatformOwned Classification = "platform_owned"
)

// Resolution is the outcome of resolving one raw record.
type Resolution struct {
	Record      model.RawContactRecord
	Normalized  Normalized
	Fingerprint string
	Class       Classification
	Existing    *model.CanonicalLead
	// Err is set when the store lookup for this record failed; the record
	// is skipped (not rejected) and can be re-run.
	Err error
}

// LeadStore is the lookup surface the resolver needs.
type LeadStore interface {
	GetLeadsByFingerprints(ctx context.Context, fingerprints []string) ([]model.CanonicalLead, error)
}

// Resolver classifies raw records against stored leads by fingerprint.
type Resolver struct {
	store     LeadStore
	cache     *FingerprintCache
	chunkSize int
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithCache attaches a fingerprint cache consulted before the store.
func WithCache(c *FingerprintCache) ResolverOption {
	return func(r *Resolver) { r.cache = c }
}

// WithChunkSize overrides the fingerprint lookup chunk size.
func WithChunkSize(n int) ResolverOption {
	return func(r *Resolver) {
		if n > 0 {
			r.chunkSize = n
		}
	}
}

// NewResolver creates a resolver. Lookups are chunked at 100 fingerprints
// per query by default.
func NewResolver(store LeadStore, opts ...ResolverOption) *Resolver {
	r := &Resolver{store: store, chunkSize: 100}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ResolveBatch computes fingerprints for the whole batch up front, looks
// them up in chunks, and classifies every record. A failed chunk lookup
// marks only the records in that chunk with Err; the rest of the batch
// still resolves.
func (r *Resolver) ResolveBatch(ctx context.Context, records []model.RawContactRecord) []Resolution {
	resolutions := make([]Resolution, len(records))
	seen := make(map[string]bool, len(records))
	var fingerprints []string

	for i, rec := range records {
		n := Normalize(rec)
		fp := n.Fingerprint()
		resolutions[i] = Resolution{Record: rec, Normalized: n, Fingerprint: fp}
		if !seen[fp] {
			seen[fp] = true
			fingerprints = append(fingerprints, fp)
		}
	}

	existing, failed := r.lookup(ctx, fingerprints)

	for i := range resolutions {
		res := &resolutions[i]
		if err, ok := failed[res.Fingerprint]; ok {
			res.Err = err
			continue
		}
		lead, ok := existing[res.Fingerprint]
		if !ok {
			res.Class = ClassNew
			continue
		}
		res.Existing = lead
		switch {
		case lead.PlatformOwned():
			res.Class = ClassPlatformOwned
		case *lead.OwningPartnerID == res.Record.PartnerID:
			res.Class = ClassSameOwner
		default:
			res.Class = ClassCrossOwner
		}
	}

	// Duplicates within the same batch: after the first record claims a new
	// fingerprint, later records with the same fingerprint classify against
	// it as if it were stored. The first occurrence stays ClassNew.
	firstByFP := make(map[string]*Resolution, len(resolutions))
	for i := range resolutions {
		res := &resolutions[i]
		if res.Err != nil || res.Class != ClassNew {
			continue
		}
		if first, ok := firstByFP[res.Fingerprint]; ok {
			partner := first.Record.PartnerID
			res.Existing = nil
			if partner == res.Record.PartnerID {
				res.Class = ClassSameOwner
			} else {
				res.Class = ClassCrossOwner
			}
			continue
		}
		firstByFP[res.Fingerprint] = res
	}

	return resolutions
}

// lookup fetches stored leads for the given fingerprints, consulting the
// cache first and the store in chunks. Returns found leads keyed by
// fingerprint, plus per-fingerprint lookup errors.
func (r *Resolver) lookup(ctx context.Context, fingerprints []string) (map[string]*model.CanonicalLead, map[string]error) {
	found := make(map[string]*model.CanonicalLead)
	failed := make(map[string]error)

	// The cache holds recently confirmed misses. A cached miss is treated as
	// new without a store round-trip; the fingerprint unique constraint
	// backstops any staleness.
	remaining := fingerprints
	if r.cache != nil {
		remaining = make([]string, 0, len(fingerprints))
		for _, fp := range fingerprints {
			if r.cache.KnownMiss(ctx, fp) {
				continue
			}
			remaining = append(remaining, fp)
		}
	}

	for start := 0; start < len(remaining); start += r.chunkSize {
		end := min(start+r.chunkSize, len(remaining))
		chunk := remaining[start:end]

		leads, err := r.store.GetLeadsByFingerprints(ctx, chunk)
		if err != nil {
			zap.L().Warn("identity: fingerprint lookup failed, skipping chunk",
				zap.Int("chunk_size", len(chunk)),
				zap.Error(err),
			)
			for _, fp := range chunk {
				failed[fp] = err
			}
			continue
		}
		hits := make(map[string]bool, len(leads))
		for i := range leads {
			found[leads[i].Fingerprint] = &leads[i]
			hits[leads[i].Fingerprint] = true
		}
		if r.cache != nil {
			for _, fp := range chunk {
				if !hits[fp] {
					r.cache.RecordMiss(ctx, fp)
				}
			}
		}
	}

	return found, failed
}

// MergeMissing copies non-empty incoming fields into stored-empty fields of
// the existing lead. Populated fields are never overwritten. Returns true
// when any field changed.
func MergeMissing(existing *model.CanonicalLead, rec model.RawContactRecord) bool {
	changed := false
	fill := func(dst *string, src string) {
		if *dst == "" && src != "" {
			*dst = src
			changed = true
		}
	}
	fill(&existing.Phone, NormalizePhone(rec.Phone))
	fill(&existing.FirstName, rec.FirstName)
	fill(&existing.LastName, rec.LastName)
	fill(&existing.Title, rec.Title)
	fill(&existing.Seniority, rec.Seniority)
	fill(&existing.CompanyName, rec.CompanyName)
	fill(&existing.CompanyDomain, NormalizeDomain(rec.CompanyDomain, rec.Email))
	fill(&existing.Industry, rec.Industry)
	fill(&existing.SizeBracket, rec.SizeBracket)
	fill(&existing.City, rec.City)
	fill(&existing.State, rec.State)
	fill(&existing.PostalCode, rec.PostalCode)
	fill(&existing.LinkedInURL, rec.LinkedInURL)
	if existing.EmployeeCount == 0 && rec.EmployeeCount > 0 {
		existing.EmployeeCount = rec.EmployeeCount
		changed = true
	}
	return changed
}
