package classifier

import (
	"testing"

	"github.com/couchcryptid/hazard-fusion-service/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestFilter_NoKeywords(t *testing.T) {
	post := makePost("Lovely sunset today, so calm", domain.RawAuthor{Verified: true}, &domain.RawPostLocation{Lat: ptr(19), Lon: ptr(72)})

	res := Filter(post)

	assert.Equal(t, domain.FilterReject, res.Decision)
	assert.Equal(t, []string{domain.ReasonNoKeywords}, res.ReasonCodes)
	assert.Equal(t, 0.0, res.Confidence)
	assert.Equal(t, domain.GeoMethodNone, res.GeoMethod)
	assert.Nil(t, res.Location)
}

func TestFilter_Decisions(t *testing.T) {
	coords := &domain.RawPostLocation{Lat: ptr(13.05), Lon: ptr(80.28)}

	tests := []struct {
		name       string
		text       string
		loc        *domain.RawPostLocation
		decision   domain.FilterDecision
		reasons    []string
		confidence float64
		method     domain.GeoMethod
	}{
		{
			name:       "approve recent with coords",
			text:       "Flooding happening now near Marina beach",
			loc:        coords,
			decision:   domain.FilterApprove,
			reasons:    []string{"kw_found", "time_recent", "geo_ok"},
			confidence: 0.8,
			method:     domain.GeoMethodExplicit,
		},
		{
			name:       "approve without recency",
			text:       "Storm surge at the harbour",
			loc:        &domain.RawPostLocation{PlaceText: "Goa"},
			decision:   domain.FilterApprove,
			reasons:    []string{"kw_found", "geo_ok"},
			confidence: 0.6,
			method:     domain.GeoMethodGeoparse,
		},
		{
			name:       "reject missing geo",
			text:       "Storm surge at the harbour",
			loc:        nil,
			decision:   domain.FilterReject,
			reasons:    []string{"kw_found", "no_geo"},
			confidence: 0.3,
			method:     domain.GeoMethodNone,
		},
		{
			name:       "reject metaphor",
			text:       "Inbox flooded with messages right now",
			loc:        coords,
			decision:   domain.FilterReject,
			reasons:    []string{"kw_found", "time_recent", "geo_ok", "metaphor"},
			confidence: 0.4,
			method:     domain.GeoMethodExplicit,
		},
		{
			name:       "metaphor without geo clamps to zero",
			text:       "Tsunami sale on all umbrellas",
			loc:        nil,
			decision:   domain.FilterReject,
			reasons:    []string{"kw_found", "no_geo", "metaphor"},
			confidence: 0,
			method:     domain.GeoMethodNone,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Filter(makePost(tt.text, domain.RawAuthor{}, tt.loc))

			assert.Equal(t, tt.decision, res.Decision)
			assert.Equal(t, tt.reasons, res.ReasonCodes)
			assert.InDelta(t, tt.confidence, res.Confidence, 1e-9)
			assert.Equal(t, tt.method, res.GeoMethod)
		})
	}
}

func TestFilter_Deterministic(t *testing.T) {
	post := makePost(
		"Heavy rain and gale currently lashing Kolkata!!! https://example.com/x",
		domain.RawAuthor{Verified: true, FollowerCount: 10},
		&domain.RawPostLocation{PlaceText: "Kolkata"},
	)

	first := Filter(post)
	for range 20 {
		assert.Equal(t, first, Filter(post))
	}
}

func TestFilter_IndependentOfAuthor(t *testing.T) {
	text := "Cyclone warning issued"
	a := Filter(makePost(text, domain.RawAuthor{}, nil))
	b := Filter(makePost(text, domain.RawAuthor{Verified: true, FollowerCount: 100000}, nil))

	assert.Equal(t, a, b)
}
