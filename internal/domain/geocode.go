package domain

import (
	"context"
	"log/slog"
)

// EnrichDecisionWithGeocoding attaches a place name to a decision that carries
// coordinates. If geocoder is nil or the lookup fails, the decision is returned
// with GeoSource set accordingly (graceful degradation). Scores are never
// touched.
func EnrichDecisionWithGeocoding(ctx context.Context, d VerificationDecision, geocoder Geocoder, logger *slog.Logger) VerificationDecision {
	if geocoder == nil || d.Location == nil {
		return d
	}

	result, err := geocoder.ReverseGeocode(ctx, d.Location.Lat, d.Location.Lon)
	if err != nil {
		logger.Warn("reverse geocoding failed",
			"report_id", d.ReportID,
			"lat", d.Location.Lat,
			"lon", d.Location.Lon,
			"error", err,
		)
		d.GeoSource = "failed"
		return d
	}
	if result.FormattedAddress != "" {
		d.PlaceName = result.FormattedAddress
		d.GeoSource = "reverse"
		return d
	}
	d.GeoSource = "original"
	return d
}
