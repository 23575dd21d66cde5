package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DefaultReputation is assumed when a submission omits userReputation.
const DefaultReputation = 0.5

// ParseRawPost deserializes and validates a social post.
func ParseRawPost(raw RawEvent) (RawPost, error) {
	var post RawPost
	if err := json.Unmarshal(raw.Value, &post); err != nil {
		return RawPost{}, fmt.Errorf("parse raw post: %w", err)
	}
	if strings.TrimSpace(post.ID) == "" {
		return RawPost{}, inputErr("id", "required")
	}
	if strings.TrimSpace(post.Text) == "" {
		return RawPost{}, inputErr("text", "required")
	}
	if post.CreatedAt.IsZero() {
		post.CreatedAt = raw.Timestamp
	}
	return post, nil
}

// ParseRawReport deserializes a report submission into a pending tier-1 report.
func ParseRawReport(raw RawEvent) (HazardReport, error) {
	var rec RawReport
	if err := json.Unmarshal(raw.Value, &rec); err != nil {
		return HazardReport{}, fmt.Errorf("parse raw report: %w", err)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = raw.Timestamp
	}
	return NewHazardReport(rec)
}

// NewHazardReport validates a submission and returns it as a pending report.
func NewHazardReport(rec RawReport) (HazardReport, error) {
	if strings.TrimSpace(rec.ID) == "" {
		return HazardReport{}, inputErr("id", "required")
	}
	if strings.TrimSpace(rec.Description) == "" {
		return HazardReport{}, inputErr("description", "required")
	}
	if rec.CreatedAt.IsZero() {
		return HazardReport{}, inputErr("createdAt", "required")
	}
	sev := Severity(strings.ToLower(strings.TrimSpace(rec.Severity)))
	if sev == "" {
		sev = SeverityLow
	}
	if !sev.valid() {
		return HazardReport{}, inputErr("severity", "unknown severity "+rec.Severity)
	}
	if rec.Location != nil && (rec.Location.Lat < -90 || rec.Location.Lat > 90 || rec.Location.Lon < -180 || rec.Location.Lon > 180) {
		return HazardReport{}, inputErr("location", "coordinates out of range")
	}
	src := rec.SourceType
	if src == "" {
		src = SourcePublic
	}
	if !src.IsReport() {
		return HazardReport{}, inputErr("sourceType", "unsupported report source "+string(src))
	}
	rep := DefaultReputation
	if rec.UserReputation != nil {
		rep = Clamp01(*rec.UserReputation)
	}

	return HazardReport{
		ID:             rec.ID,
		AuthorID:       rec.AuthorID,
		HazardType:     rec.HazardType,
		Severity:       sev,
		Description:    rec.Description,
		Location:       rec.Location,
		CreatedAt:      rec.CreatedAt.UTC(),
		HasMedia:       rec.HasMedia,
		UserReputation: rep,
		SourceType:     src,
		Status:         StatusPending,
		Tier:           TierAutomated,
		Flags:          []string{},
	}, nil
}
