package verification

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/couchcryptid/hazard-fusion-service/internal/domain"
	"github.com/couchcryptid/hazard-fusion-service/internal/fusion"
	"github.com/jonboulle/clockwork"
)

var (
	testNow = time.Date(2025, 7, 14, 12, 0, 0, 0, time.UTC)
	chennai = domain.Location{Lat: 13.0827, Lon: 80.2707}
	errFake = errors.New("provider down")
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func north(loc domain.Location, km float64) domain.Location {
	return domain.Location{Lat: loc.Lat + km/111.195, Lon: loc.Lon}
}

// weakReport scores 0.575 at tier 1: inside the region, a couple of hours
// old, low reputation, no critical terms.
func weakReport(id string, loc domain.Location, created time.Time) domain.HazardReport {
	return domain.HazardReport{
		ID:             id,
		AuthorID:       "u-" + id,
		HazardType:     "flood",
		Severity:       domain.SeverityHigh,
		Description:    "water entering the road near the market",
		Location:       &loc,
		CreatedAt:      created,
		UserReputation: 0.3,
		SourceType:     domain.SourcePublic,
		Status:         domain.StatusPending,
		Tier:           domain.TierAutomated,
	}
}

// scenarioCReport is the critical tsunami report that tier 1 verifies alone.
func scenarioCReport() domain.HazardReport {
	loc := chennai
	return domain.HazardReport{
		ID:             "rep-c",
		HazardType:     "tsunami",
		Severity:       domain.SeverityCritical,
		Description:    "tsunami emergency evacuation",
		Location:       &loc,
		CreatedAt:      testNow.Add(-10 * time.Minute),
		HasMedia:       true,
		UserReputation: 0.8,
		SourceType:     domain.SourcePublic,
		Status:         domain.StatusPending,
		Tier:           domain.TierAutomated,
	}
}

func newTestStore(clock clockwork.Clock) *fusion.Store {
	return fusion.NewStore(fusion.NewMemoryBackend(), clock)
}

func fixed(v float64) SignalProvider {
	return SignalProviderFunc(func(context.Context, domain.HazardReport, TimeWindow) (float64, error) {
		return v, nil
	})
}

func failing(err error) SignalProvider {
	return SignalProviderFunc(func(context.Context, domain.HazardReport, TimeWindow) (float64, error) {
		return 0, err
	})
}

type fakeFingerprint struct {
	dup bool
	err error
}

func (f fakeFingerprint) IsDuplicate(context.Context, domain.HazardReport) (bool, error) {
	return f.dup, f.err
}
