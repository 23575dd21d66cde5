// Package fusion holds the time-windowed registry of source records that the
// verification tiers consult for corroborating evidence.
package fusion

import (
	"context"
	"fmt"
	"time"

	"github.com/couchcryptid/hazard-fusion-service/internal/domain"
	"github.com/jonboulle/clockwork"
)

const (
	// Retention is how long a record stays in the store.
	Retention = 24 * time.Hour

	// ProximityKm and Window bound which records are relevant to a report.
	ProximityKm = 5.0
	Window      = time.Hour
)

// Backend is the storage behind a Store. Implementations must apply Append
// atomically with respect to other Appends: the record is added and every
// record older than cutoff removed as one step.
type Backend interface {
	Append(ctx context.Context, rec domain.SourceRecord, cutoff time.Time) error
	// Range returns records with from <= Timestamp <= to.
	Range(ctx context.Context, from, to time.Time) ([]domain.SourceRecord, error)
}

// Store is the shared fusion registry. It is safe for concurrent use when its
// Backend is.
type Store struct {
	backend Backend
	clock   clockwork.Clock
}

// NewStore creates a Store over backend. A nil clock uses real time.
func NewStore(backend Backend, clock clockwork.Clock) *Store {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Store{backend: backend, clock: clock}
}

// AddSource validates and appends rec, purging records older than Retention.
func (s *Store) AddSource(ctx context.Context, rec domain.SourceRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	rec.CredibilityWeight = domain.Clamp01(rec.CredibilityWeight)
	rec.Timestamp = rec.Timestamp.UTC()
	if err := s.backend.Append(ctx, rec, s.cutoff()); err != nil {
		return fmt.Errorf("add source %s: %w", rec.PayloadRef, err)
	}
	return nil
}

// RelevantSources returns records within ProximityKm of the report and within
// Window of its creation time. Reports without coordinates have none.
func (s *Store) RelevantSources(ctx context.Context, report domain.HazardReport) ([]domain.SourceRecord, error) {
	if report.Location == nil {
		return []domain.SourceRecord{}, nil
	}
	return s.Nearby(ctx, *report.Location, report.CreatedAt, ProximityKm, Window)
}

// Nearby returns retained records within radiusKm of loc whose timestamps are
// within window of at.
func (s *Store) Nearby(ctx context.Context, loc domain.Location, at time.Time, radiusKm float64, window time.Duration) ([]domain.SourceRecord, error) {
	recs, err := s.window(ctx, at.Add(-window), at.Add(window))
	if err != nil {
		return nil, err
	}
	out := recs[:0]
	for _, r := range recs {
		if domain.DistanceKm(loc, r.Location) <= radiusKm {
			out = append(out, r)
		}
	}
	return out, nil
}

// Snapshot returns every retained record.
func (s *Store) Snapshot(ctx context.Context) ([]domain.SourceRecord, error) {
	return s.window(ctx, s.cutoff(), s.clock.Now().Add(Retention))
}

// window reads [from, to] and drops anything past retention, since backends
// only purge on write.
func (s *Store) window(ctx context.Context, from, to time.Time) ([]domain.SourceRecord, error) {
	if cutoff := s.cutoff(); from.Before(cutoff) {
		from = cutoff
	}
	if to.Before(from) {
		return []domain.SourceRecord{}, nil
	}
	recs, err := s.backend.Range(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("read fusion window: %w", err)
	}
	return recs, nil
}

func (s *Store) cutoff() time.Time {
	return s.clock.Now().Add(-Retention)
}
