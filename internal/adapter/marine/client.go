// Package marine scores official ocean-state alerts as corroboration for
// hazard reports.
package marine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/hazard-fusion-service/internal/domain"
	"github.com/couchcryptid/hazard-fusion-service/internal/verification"
)

// SearchRadiusKm bounds how far an alert area may be from a report.
const SearchRadiusKm = 50.0

// Alert levels issued by the feed, strongest first.
const (
	LevelWarning  = "warning"
	LevelAlert    = "alert"
	LevelWatch    = "watch"
	LevelAdvisory = "advisory"
)

var levelWeight = map[string]float64{
	LevelWarning:  1.0,
	LevelAlert:    0.8,
	LevelWatch:    0.6,
	LevelAdvisory: 0.4,
}

// unrelatedFactor discounts alerts whose hazard differs from the report's.
const unrelatedFactor = 0.5

// Client reads an official marine alert feed and implements
// verification.SignalProvider.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

var _ verification.SignalProvider = (*Client)(nil)

// NewClient creates a feed client. Per-call deadlines come from the caller's
// context; the http.Client carries none of its own.
func NewClient(baseURL string, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		logger:     logger,
	}
}

// Score returns the strongest active alert near the report, weighted by level
// and halved when the alert names a different hazard. No alerts scores zero.
func (c *Client) Score(ctx context.Context, report domain.HazardReport, window verification.TimeWindow) (float64, error) {
	if report.Location == nil {
		return 0, nil
	}
	alerts, err := c.Alerts(ctx, *report.Location, window)
	if err != nil {
		return 0, err
	}

	best := 0.0
	for _, a := range alerts {
		if !a.activeDuring(window) {
			continue
		}
		if domain.DistanceKm(*report.Location, a.Location()) > SearchRadiusKm {
			continue
		}
		s := levelWeight[strings.ToLower(a.Level)]
		if !a.matches(report.HazardType) {
			s *= unrelatedFactor
		}
		best = max(best, s)
	}
	c.logger.Debug("official correlation scored",
		"report_id", report.ID,
		"alerts", len(alerts),
		"score", best,
	)
	return best, nil
}

// Alerts fetches alerts around loc issued for window.
func (c *Client) Alerts(ctx context.Context, loc domain.Location, window verification.TimeWindow) ([]Alert, error) {
	params := url.Values{
		"lat":       {strconv.FormatFloat(loc.Lat, 'f', 4, 64)},
		"lon":       {strconv.FormatFloat(loc.Lon, 'f', 4, 64)},
		"radius_km": {strconv.FormatFloat(SearchRadiusKm, 'f', 0, 64)},
		"from":      {window.From.UTC().Format(time.RFC3339)},
		"to":        {window.To.UTC().Format(time.RFC3339)},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/alerts?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("marine feed request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("marine feed error: status %d: %s", resp.StatusCode, body)
	}

	var out alertFeed
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode marine feed: %w", err)
	}
	return out.Alerts, nil
}

type alertFeed struct {
	Alerts []Alert `json:"alerts"`
}

// Alert is one official bulletin for a sea area.
type Alert struct {
	ID         string    `json:"id"`
	Hazard     string    `json:"hazard"`
	Level      string    `json:"level"`
	Lat        float64   `json:"lat"`
	Lon        float64   `json:"lon"`
	IssuedAt   time.Time `json:"issuedAt"`
	ValidUntil time.Time `json:"validUntil"`
}

// Location returns the alert's reference point.
func (a Alert) Location() domain.Location {
	return domain.Location{Lat: a.Lat, Lon: a.Lon}
}

// activeDuring reports whether the alert's validity overlaps w. A zero
// ValidUntil means open-ended.
func (a Alert) activeDuring(w verification.TimeWindow) bool {
	if a.IssuedAt.After(w.To) {
		return false
	}
	return a.ValidUntil.IsZero() || !a.ValidUntil.Before(w.From)
}

func (a Alert) matches(hazardType string) bool {
	return hazardType != "" && strings.EqualFold(a.Hazard, hazardType)
}
