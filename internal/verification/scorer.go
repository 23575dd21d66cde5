package verification

import (
	"context"
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/couchcryptid/hazard-fusion-service/internal/domain"
	"github.com/couchcryptid/hazard-fusion-service/internal/fusion"
	"github.com/jonboulle/clockwork"
)

// Flags attached to reports by the automated tiers.
const (
	FlagInvalidLocation = "Invalid location"
	FlagOutdated        = "Outdated report"
	FlagLowCredibility  = "Low source credibility"
	FlagContentQuality  = "Content quality issues"
	FlagNoCorroboration = "Insufficient corroboration"
)

const (
	tier1VerifyThreshold  = 0.7
	mediaCredibilityBonus = 0.3
	duplicatePenalty      = 0.3
	criticalTermWeight    = 0.3
)

var criticalTerms = []string{"tsunami", "cyclone", "flood", "emergency", "urgent"}

// Tier1Result is the outcome of automated single-report scoring.
type Tier1Result struct {
	Score   domain.VerificationScore
	Status  domain.Status
	Flags   []string
	Sources []domain.SourceType

	// SourceCredibility is the aggregate trust of the nearby fusion records.
	SourceCredibility float64
}

// Scorer computes the tier 1 score of a report.
type Scorer struct {
	store       *fusion.Store
	fingerprint ContentFingerprint
	region      domain.BoundingBox
	clock       clockwork.Clock
}

// NewScorer creates a Scorer. store may be nil, in which case no contributing
// sources are reported. A nil fingerprint never flags duplicates.
func NewScorer(store *fusion.Store, fingerprint ContentFingerprint, clock clockwork.Clock) *Scorer {
	if fingerprint == nil {
		fingerprint = NoFingerprint{}
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Scorer{
		store:       store,
		fingerprint: fingerprint,
		region:      domain.IndianCoastalRegion,
		clock:       clock,
	}
}

// Score computes the four tier 1 dimensions and their mean. CrossSource is
// left at zero.
func (s *Scorer) Score(ctx context.Context, report domain.HazardReport) (domain.VerificationScore, error) {
	vals, err := runContributors(ctx, report, []namedContributor{
		{"geospatial", s.geospatial},
		{"temporal", s.temporal},
		{"source", s.source},
		{"content", s.content},
	})
	if err != nil {
		return domain.VerificationScore{}, err
	}
	score := domain.VerificationScore{
		Geospatial: vals[0],
		Temporal:   vals[1],
		Source:     vals[2],
		Content:    vals[3],
	}
	score.Overall = domain.Clamp01((score.Geospatial + score.Temporal + score.Source + score.Content) / 4)
	return score, nil
}

// Evaluate scores the report and decides whether tier 1 alone verifies it.
func (s *Scorer) Evaluate(ctx context.Context, report domain.HazardReport) (Tier1Result, error) {
	score, err := s.Score(ctx, report)
	if err != nil {
		return Tier1Result{}, err
	}

	sources := []domain.SourceType{}
	credibility := 0.0
	if s.store != nil {
		recs, err := s.store.RelevantSources(ctx, report)
		if err != nil {
			return Tier1Result{}, fmt.Errorf("tier 1 context: %w", err)
		}
		sources = domain.SourceTypes(recs)
		credibility = fusion.SourceCredibility(recs)
	}

	status := domain.StatusPending
	if score.Overall > tier1VerifyThreshold {
		status = domain.StatusVerified
	}
	return Tier1Result{
		Score:   score,
		Status:  status,
		Flags:   tier1Flags(score),
		Sources: sources,

		SourceCredibility: credibility,
	}, nil
}

func tier1Flags(score domain.VerificationScore) []string {
	flags := []string{}
	if score.Geospatial < 0.5 {
		flags = append(flags, FlagInvalidLocation)
	}
	if score.Temporal < 0.3 {
		flags = append(flags, FlagOutdated)
	}
	if score.Source < 0.4 {
		flags = append(flags, FlagLowCredibility)
	}
	if score.Content < 0.4 {
		flags = append(flags, FlagContentQuality)
	}
	return flags
}

func (s *Scorer) geospatial(_ context.Context, r domain.HazardReport) (float64, error) {
	if r.Location == nil {
		return 0.2, nil
	}
	if s.region.Contains(*r.Location) {
		return 0.8, nil
	}
	return 0.4, nil
}

func (s *Scorer) temporal(_ context.Context, r domain.HazardReport) (float64, error) {
	hours := math.Abs(s.clock.Since(r.CreatedAt).Hours())
	switch {
	case hours < 1:
		return 0.9, nil
	case hours < 6:
		return 0.7, nil
	case hours < 24:
		return 0.5, nil
	default:
		return 0.3, nil
	}
}

func (s *Scorer) source(_ context.Context, r domain.HazardReport) (float64, error) {
	v := r.UserReputation
	if r.HasMedia {
		v += mediaCredibilityBonus
	}
	return math.Min(v, 1.0), nil
}

func (s *Scorer) content(ctx context.Context, r domain.HazardReport) (float64, error) {
	v := 0.5
	dup, err := s.fingerprint.IsDuplicate(ctx, r)
	if err != nil {
		return 0, fmt.Errorf("duplicate check: %w", err)
	}
	if dup {
		v -= duplicatePenalty
	}
	v += criticalTermWeight * criticalTermRatio(r.Description)
	return domain.Clamp01(v), nil
}

// criticalTermRatio counts description words equal to a critical term and
// divides by the number of terms, capped at 1.
func criticalTermRatio(description string) float64 {
	matches := 0
	for _, w := range strings.Fields(strings.ToLower(description)) {
		w = strings.TrimFunc(w, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) })
		for _, term := range criticalTerms {
			if w == term {
				matches++
				break
			}
		}
	}
	return math.Min(float64(matches)/float64(len(criticalTerms)), 1.0)
}
