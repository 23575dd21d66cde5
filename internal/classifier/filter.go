package classifier

import (
	"strings"

	"github.com/couchcryptid/hazard-fusion-service/internal/domain"
)

// Filter decides feed admission for a post. It is independent of Classify.
func Filter(post domain.RawPost) domain.FilterResult {
	clean := normalizeText(post.Text)
	lower := strings.ToLower(clean)
	keywords := extractKeywords(lower)

	if len(keywords) == 0 {
		return domain.FilterResult{
			ID:              post.ID,
			Decision:        domain.FilterReject,
			ReasonCodes:     []string{domain.ReasonNoKeywords},
			MatchedKeywords: []string{},
			NormalizedText:  clean,
			GeoMethod:       domain.GeoMethodNone,
			Confidence:      0,
			Explain:         "No relevant keywords found",
		}
	}

	geo := resolveGeo(post.Location)
	reasons := []string{domain.ReasonKeywords}
	confidence := 0.3

	if containsAny(lower, recencyPhrases) {
		reasons = append(reasons, domain.ReasonRecent)
		confidence += 0.2
	}
	if geo.Resolved() {
		reasons = append(reasons, domain.ReasonGeoOK)
		confidence += 0.3
	} else {
		reasons = append(reasons, domain.ReasonNoGeo)
	}
	metaphor := containsAny(lower, metaphorPhrases)
	if metaphor {
		reasons = append(reasons, domain.ReasonMetaphor)
		confidence -= 0.4
	}
	confidence = domain.Clamp01(round2(confidence))

	decision := domain.FilterReject
	explain := "Insufficient confidence or missing location data"
	if confidence >= 0.5 && geo.Resolved() && !metaphor {
		decision = domain.FilterApprove
		explain = "Relevant keywords with location and time context"
	}

	return domain.FilterResult{
		ID:              post.ID,
		Decision:        decision,
		ReasonCodes:     reasons,
		MatchedKeywords: keywords,
		NormalizedText:  clean,
		Location:        geo.Location,
		GeoMethod:       geoMethod(geo.Source),
		Confidence:      confidence,
		Explain:         explain,
	}
}

func geoMethod(src domain.GeoSource) domain.GeoMethod {
	switch src {
	case domain.GeoExplicitCoords:
		return domain.GeoMethodExplicit
	case domain.GeoPlaceText:
		return domain.GeoMethodGeoparse
	default:
		return domain.GeoMethodNone
	}
}
