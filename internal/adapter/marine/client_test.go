package marine

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/couchcryptid/hazard-fusion-service/internal/domain"
	"github.com/couchcryptid/hazard-fusion-service/internal/verification"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testNow = time.Date(2025, 7, 14, 12, 0, 0, 0, time.UTC)
	kochi   = domain.Location{Lat: 9.9312, Lon: 76.2673}
)

func testClient(t *testing.T, alerts []Alert) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/alerts", r.URL.Path)
		assert.Equal(t, "9.9312", r.URL.Query().Get("lat"))
		assert.Equal(t, "76.2673", r.URL.Query().Get("lon"))
		assert.Equal(t, "2025-07-14T11:00:00Z", r.URL.Query().Get("from"))
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(alertFeed{Alerts: alerts}))
	}))
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func report(hazard string) domain.HazardReport {
	loc := kochi
	return domain.HazardReport{ID: "r-1", HazardType: hazard, Location: &loc, CreatedAt: testNow}
}

func window() verification.TimeWindow {
	return verification.WindowAround(testNow, time.Hour)
}

func TestScore_StrongestMatchingAlert(t *testing.T) {
	c := testClient(t, []Alert{
		{ID: "a1", Hazard: "high_wave", Level: LevelWatch, Lat: 9.95, Lon: 76.25, IssuedAt: testNow.Add(-3 * time.Hour)},
		{ID: "a2", Hazard: "flood", Level: LevelAdvisory, Lat: 9.95, Lon: 76.25, IssuedAt: testNow.Add(-time.Hour)},
	})

	got, err := c.Score(context.Background(), report("high_wave"), window())
	require.NoError(t, err)
	assert.InDelta(t, 0.6, got, 1e-9)
}

func TestScore_UnrelatedHazardHalved(t *testing.T) {
	c := testClient(t, []Alert{
		{ID: "a1", Hazard: "storm", Level: LevelWarning, Lat: 9.95, Lon: 76.25, IssuedAt: testNow},
	})

	got, err := c.Score(context.Background(), report("flood"), window())
	require.NoError(t, err)
	assert.InDelta(t, 0.5, got, 1e-9)
}

func TestScore_IgnoresDistantAndExpiredAlerts(t *testing.T) {
	c := testClient(t, []Alert{
		{ID: "far", Hazard: "flood", Level: LevelWarning, Lat: 13.08, Lon: 80.27, IssuedAt: testNow},
		{ID: "old", Hazard: "flood", Level: LevelWarning, Lat: 9.93, Lon: 76.26,
			IssuedAt: testNow.Add(-6 * time.Hour), ValidUntil: testNow.Add(-2 * time.Hour)},
		{ID: "future", Hazard: "flood", Level: LevelWarning, Lat: 9.93, Lon: 76.26, IssuedAt: testNow.Add(3 * time.Hour)},
	})

	got, err := c.Score(context.Background(), report("flood"), window())
	require.NoError(t, err)
	assert.Zero(t, got)
}

func TestScore_NoLocationSkipsRequest(t *testing.T) {
	c := NewClient("http://127.0.0.1:0", slog.New(slog.NewTextHandler(io.Discard, nil)))
	got, err := c.Score(context.Background(), domain.HazardReport{ID: "r-2"}, window())
	require.NoError(t, err)
	assert.Zero(t, got)
}

func TestScore_FeedError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, slog.New(slog.NewTextHandler(io.Discard, nil)))
	_, err := c.Score(context.Background(), report("flood"), window())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 503")
}

func TestScore_RespectsContextDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Score(ctx, report("flood"), window())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAlert_ActiveDuring(t *testing.T) {
	w := window()
	open := Alert{IssuedAt: testNow.Add(-48 * time.Hour)}
	assert.True(t, open.activeDuring(w))

	endsAtStart := Alert{IssuedAt: testNow.Add(-3 * time.Hour), ValidUntil: w.From}
	assert.True(t, endsAtStart.activeDuring(w))
}
