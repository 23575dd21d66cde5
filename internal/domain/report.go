package domain

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Severity is the submitter-declared severity of a report.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities for escalation: higher is more urgent.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 1
	default:
		return 0
	}
}

func (s Severity) valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// Status is a report's verification status.
type Status string

const (
	StatusPending    Status = "pending"
	StatusVerified   Status = "verified"
	StatusUnverified Status = "unverified"
	StatusFalse      Status = "false"
)

// Terminal reports whether s is absorbing.
func (s Status) Terminal() bool {
	return s == StatusVerified || s == StatusUnverified || s == StatusFalse
}

// Tier is the verification stage a report has reached.
type Tier int

const (
	TierAutomated Tier = 1
	TierCrossSrc  Tier = 2
	TierHuman     Tier = 3
)

// ErrTierRegression is returned when an update would lower a report's tier.
var ErrTierRegression = errors.New("tier may not decrease")

// VerificationScore holds the per-dimension scores, each in [0,1].
type VerificationScore struct {
	Geospatial  float64 `json:"geospatial"`
	Temporal    float64 `json:"temporal"`
	Source      float64 `json:"source"`
	Content     float64 `json:"content"`
	CrossSource float64 `json:"crossSource"`
	Overall     float64 `json:"overall"`
}

// Confidence buckets used in decisions for display.
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// ConfidenceBucket maps an overall score to high (>0.8), medium (>0.5) or low.
func ConfidenceBucket(v float64) string {
	switch {
	case v > 0.8:
		return ConfidenceHigh
	case v > 0.5:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// HazardReport is a structured hazard observation moving through verification.
type HazardReport struct {
	ID             string            `json:"id"`
	AuthorID       string            `json:"authorId"`
	HazardType     string            `json:"hazardType"`
	Severity       Severity          `json:"severity"`
	Description    string            `json:"description"`
	Location       *Location         `json:"location,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`
	HasMedia       bool              `json:"hasMedia"`
	UserReputation float64           `json:"userReputation"`
	SourceType     SourceType        `json:"sourceType"`
	Status         Status            `json:"status"`
	Tier           Tier              `json:"tier"`
	Score          VerificationScore `json:"score"`
	Flags          []string          `json:"flags"`
}

// Terminal reports whether the report's status is absorbing.
func (r HazardReport) Terminal() bool {
	return r.Status.Terminal()
}

// Apply moves the report to a new status and tier, replacing its score and
// merging flags. Terminal reports and tier regressions are refused.
func (r *HazardReport) Apply(status Status, tier Tier, score VerificationScore, flags []string) error {
	if r.Terminal() {
		return fmt.Errorf("report %s: %w", r.ID, ErrTerminal)
	}
	if tier < r.Tier {
		return fmt.Errorf("report %s tier %d -> %d: %w", r.ID, r.Tier, tier, ErrTierRegression)
	}
	r.Status = status
	r.Tier = tier
	r.Score = score
	r.Flags = mergeFlags(r.Flags, flags)
	return nil
}

func mergeFlags(have, add []string) []string {
	out := slices.Clone(have)
	for _, f := range add {
		if !slices.Contains(out, f) {
			out = append(out, f)
		}
	}
	return out
}

// VerificationDecision is the authoritative output record of the engine.
type VerificationDecision struct {
	ID                  string            `json:"id"`
	ReportID            string            `json:"reportId"`
	Status              Status            `json:"status"`
	Confidence          float64           `json:"confidence"`
	ConfidenceLevel     string            `json:"confidenceLevel"`
	Tier                Tier              `json:"tier"`
	Score               VerificationScore `json:"score"`
	Flags               []string          `json:"flags"`
	ContributingSources []SourceType      `json:"contributingSources"`
	Severity            Severity          `json:"severity"`
	HazardType          string            `json:"hazardType"`
	Location            *Location         `json:"location,omitempty"`
	PlaceName           string            `json:"placeName,omitempty"`
	GeoSource           string            `json:"geoSource,omitempty"` // "reverse", "original", "failed"
	AnalystID           string            `json:"analystId,omitempty"`
	Notes               string            `json:"notes,omitempty"`
	Timestamp           time.Time         `json:"timestamp"`
}

// NewDecision snapshots a report into a decision record.
func NewDecision(r HazardReport, confidence float64, sources []SourceType, at time.Time) VerificationDecision {
	confidence = Clamp01(confidence)
	return VerificationDecision{
		ID:                  uuid.NewString(),
		ReportID:            r.ID,
		Status:              r.Status,
		Confidence:          confidence,
		ConfidenceLevel:     ConfidenceBucket(confidence),
		Tier:                r.Tier,
		Score:               r.Score,
		Flags:               slices.Clone(r.Flags),
		ContributingSources: slices.Clone(sources),
		Severity:            r.Severity,
		HazardType:          r.HazardType,
		Location:            r.Location,
		Timestamp:           at.UTC(),
	}
}
