package mapbox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/couchcryptid/hazard-fusion-service/internal/domain"
	"github.com/couchcryptid/hazard-fusion-service/internal/observability"
)

const defaultBaseURL = "https://api.mapbox.com/geocoding/v5/mapbox.places"

// reverseTypes restricts reverse lookups to names a coastal responder would
// recognise.
const reverseTypes = "neighborhood,locality,place"

// Client implements domain.Geocoder using the Mapbox reverse geocoding API.
type Client struct {
	token      string
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewClient creates a Mapbox geocoding client. metrics may be nil.
func NewClient(token string, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    defaultBaseURL,
		logger:     logger,
		metrics:    metrics,
	}
}

// ReverseGeocode resolves coordinates to the nearest named place. An empty
// result with a nil error means Mapbox knows no place there.
func (c *Client) ReverseGeocode(ctx context.Context, lat, lon float64) (domain.GeocodingResult, error) {
	// Mapbox uses lon,lat order.
	coord := strconv.FormatFloat(lon, 'f', 6, 64) + "," + strconv.FormatFloat(lat, 'f', 6, 64)
	params := url.Values{
		"access_token": {c.token},
		"limit":        {"1"},
		"types":        {reverseTypes},
		"language":     {"en"},
	}
	fullURL := c.baseURL + "/" + coord + ".json?" + params.Encode()

	start := time.Now()
	result, err := c.get(ctx, fullURL)
	if c.metrics != nil {
		c.metrics.GeocodeAPIDuration.Observe(time.Since(start).Seconds())
		switch {
		case err != nil:
			c.metrics.GeocodeRequests.WithLabelValues("error").Inc()
		case result.FormattedAddress == "":
			c.metrics.GeocodeRequests.WithLabelValues("empty").Inc()
		default:
			c.metrics.GeocodeRequests.WithLabelValues("success").Inc()
		}
	}
	return result, err
}

func (c *Client) get(ctx context.Context, fullURL string) (domain.GeocodingResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return domain.GeocodingResult{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.GeocodingResult{}, fmt.Errorf("reverse geocode request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.GeocodingResult{}, fmt.Errorf("mapbox API error: status %d: %s", resp.StatusCode, body)
	}

	var out featureCollection
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.GeocodingResult{}, fmt.Errorf("decode response: %w", err)
	}
	if len(out.Features) == 0 {
		c.logger.Debug("no place found for coordinates", "url_path", req.URL.Path)
		return domain.GeocodingResult{}, nil
	}
	return out.Features[0].result(), nil
}

type featureCollection struct {
	Features []feature `json:"features"`
}

type feature struct {
	Center    []float64 `json:"center"` // [lon, lat]
	PlaceName string    `json:"place_name"`
	Text      string    `json:"text"`
	Relevance float64   `json:"relevance"`
}

func (f feature) result() domain.GeocodingResult {
	r := domain.GeocodingResult{
		FormattedAddress: f.PlaceName,
		PlaceName:        f.Text,
		Confidence:       f.Relevance,
	}
	if len(f.Center) == 2 {
		r.Lon = f.Center[0]
		r.Lat = f.Center[1]
	}
	return r
}
