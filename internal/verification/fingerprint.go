package verification

import (
	"context"

	"github.com/couchcryptid/hazard-fusion-service/internal/domain"
)

// ContentFingerprint detects near-duplicate report content (text shingles,
// perceptual image hashes, ...).
type ContentFingerprint interface {
	IsDuplicate(ctx context.Context, report domain.HazardReport) (bool, error)
}

// NoFingerprint treats every report as original.
type NoFingerprint struct{}

func (NoFingerprint) IsDuplicate(context.Context, domain.HazardReport) (bool, error) {
	return false, nil
}
