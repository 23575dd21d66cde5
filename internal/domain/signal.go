package domain

import "time"

// HazardCategory is the single category assigned to a classified post.
type HazardCategory string

const (
	CategoryFlood           HazardCategory = "flood"
	CategoryStorm           HazardCategory = "storm"
	CategoryHighWave        HazardCategory = "high_wave"
	CategoryTsunami         HazardCategory = "tsunami"
	CategoryCoastalCurrents HazardCategory = "coastal_currents"
	CategoryOther           HazardCategory = "other"
)

// Sentiment is the polarity of a post's wording.
type Sentiment string

const (
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
	SentimentPositive Sentiment = "positive"
)

// Urgency is the response priority derived for a signal.
type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

// GeoSource records how a signal's coordinates were resolved.
type GeoSource string

const (
	GeoExplicitCoords GeoSource = "explicit_coords"
	GeoPlaceText      GeoSource = "place_text"
	GeoNone           GeoSource = "none"
)

// Author identifies who published a social post.
type Author struct {
	ID            string `json:"id"`
	Handle        string `json:"handle"`
	Verified      bool   `json:"verified"`
	FollowerCount int    `json:"followerCount"`
}

// SignalGeo is a resolved (or unresolved) signal position. Location is nil
// when Source is GeoNone.
type SignalGeo struct {
	Location *Location `json:"location,omitempty"`
	Source   GeoSource `json:"source"`
}

// Resolved reports whether coordinates were found.
func (g SignalGeo) Resolved() bool {
	return g.Location != nil
}

// KeywordSpan locates a matched keyword in the normalized text as [Start, End).
type KeywordSpan struct {
	Keyword string  `json:"kw"`
	Start   int     `json:"start"`
	End     int     `json:"end"`
	Score   float64 `json:"score"`
}

// Evidence collects the surface features that justified a classification.
type Evidence struct {
	KeywordSpans     []KeywordSpan `json:"keywordSpans"`
	Hashtags         []string      `json:"hashtags"`
	Mentions         []string      `json:"mentions"`
	HasMediaEvidence bool          `json:"hasMediaEvidence"`
}

// HazardSignal is the structured, immutable summary of one social post.
type HazardSignal struct {
	ID                string         `json:"id"`
	SourceText        string         `json:"sourceText"`
	NormalizedText    string         `json:"normalizedText"`
	Language          string         `json:"language"`
	Platform          string         `json:"platform"`
	Author            Author         `json:"author"`
	PostedAt          time.Time      `json:"postedAt"`
	Geo               SignalGeo      `json:"geo"`
	ExtractedKeywords []string       `json:"extractedKeywords"`
	HazardCategory    HazardCategory `json:"hazardCategory"`
	Sentiment         Sentiment      `json:"sentiment"`
	ConfidenceScore   float64        `json:"confidenceScore"`
	Urgency           Urgency        `json:"urgency"`
	Credible          bool           `json:"credible"`
	Evidence          Evidence       `json:"evidence"`
	Notes             string         `json:"notes,omitempty"`
}

// FilterDecision is the feed admission outcome for a post.
type FilterDecision string

const (
	FilterApprove FilterDecision = "APPROVE"
	FilterReject  FilterDecision = "REJECT"
)

// Reason codes recorded by the admission filter.
const (
	ReasonNoKeywords = "no_keywords"
	ReasonKeywords   = "kw_found"
	ReasonRecent     = "time_recent"
	ReasonGeoOK      = "geo_ok"
	ReasonNoGeo      = "no_geo"
	ReasonMetaphor   = "metaphor"
)

// GeoMethod is the filter's coarse description of how coordinates were found.
type GeoMethod string

const (
	GeoMethodExplicit GeoMethod = "explicit"
	GeoMethodGeoparse GeoMethod = "geoparse"
	GeoMethodNone     GeoMethod = "none"
)

// FilterResult is the output of the admission filter.
type FilterResult struct {
	ID              string         `json:"id"`
	Decision        FilterDecision `json:"decision"`
	ReasonCodes     []string       `json:"reasonCodes"`
	MatchedKeywords []string       `json:"matchedKeywords"`
	NormalizedText  string         `json:"normalizedText"`
	Location        *Location      `json:"location,omitempty"`
	GeoMethod       GeoMethod      `json:"geoMethod"`
	Confidence      float64        `json:"confidence"`
	Explain         string         `json:"explain"`
}
