package domain

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// SourceType classifies where a fusion store record came from.
type SourceType string

const (
	SourceOfficer SourceType = "officer"
	SourceSocial  SourceType = "social"
	SourceSensor  SourceType = "sensor"
	SourcePublic  SourceType = "public"
)

// Valid reports whether t is a known source type.
func (t SourceType) Valid() bool {
	switch t {
	case SourceOfficer, SourceSocial, SourceSensor, SourcePublic:
		return true
	}
	return false
}

// IsReport reports whether records of this type represent submitted hazard
// reports (as opposed to social signals) and so count toward triangulation.
func (t SourceType) IsReport() bool {
	return t == SourceOfficer || t == SourceSensor || t == SourcePublic
}

// SourceRecord is one entry in the fusion store.
type SourceRecord struct {
	ID                string     `json:"id"`
	Type              SourceType `json:"type"`
	PayloadRef        string     `json:"payloadRef"` // report or signal ID
	Timestamp         time.Time  `json:"timestamp"`
	Location          Location   `json:"location"`
	CredibilityWeight float64    `json:"credibilityWeight"`
}

// Validate checks the record's required fields.
func (s SourceRecord) Validate() error {
	if !s.Type.Valid() {
		return inputErr("type", "unknown source type "+string(s.Type))
	}
	if s.PayloadRef == "" {
		return inputErr("payloadRef", "required")
	}
	if s.Timestamp.IsZero() {
		return inputErr("timestamp", "required")
	}
	return nil
}

// NewReportSource builds the fusion record registered for a submitted report.
// Reports without coordinates cannot be registered.
func NewReportSource(r HazardReport) (SourceRecord, error) {
	if r.Location == nil {
		return SourceRecord{}, inputErr("location", "required for fusion registration")
	}
	t := r.SourceType
	if t == "" {
		t = SourcePublic
	}
	return SourceRecord{
		ID:                sourceID("report", r.ID),
		Type:              t,
		PayloadRef:        r.ID,
		Timestamp:         r.CreatedAt,
		Location:          *r.Location,
		CredibilityWeight: Clamp01(r.UserReputation),
	}, nil
}

// NewSignalSource builds the fusion record registered for an admitted signal.
func NewSignalSource(s HazardSignal) (SourceRecord, error) {
	if !s.Geo.Resolved() {
		return SourceRecord{}, inputErr("geo", "signal has no resolved location")
	}
	return SourceRecord{
		ID:                sourceID("signal", s.ID),
		Type:              SourceSocial,
		PayloadRef:        s.ID,
		Timestamp:         s.PostedAt,
		Location:          *s.Geo.Location,
		CredibilityWeight: Clamp01(s.ConfidenceScore),
	}, nil
}

// SourceTypes returns the distinct types of recs in first-seen order.
func SourceTypes(recs []SourceRecord) []SourceType {
	out := make([]SourceType, 0, len(recs))
	for _, r := range recs {
		if !slices.Contains(out, r.Type) {
			out = append(out, r.Type)
		}
	}
	return out
}

// sourceID derives a stable record ID so that redelivered payloads replace
// their earlier registration instead of adding a second one.
func sourceID(kind, payloadRef string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("hazard-fusion:"+kind+"/"+payloadRef)).String()
}
