package classifier

import (
	"strings"

	"github.com/couchcryptid/hazard-fusion-service/internal/domain"
)

const (
	defaultLanguage  = "en"
	keywordSpanScore = 0.9
)

// Classify converts a raw post into a structured hazard signal.
func Classify(post domain.RawPost) domain.HazardSignal {
	clean := normalizeText(post.Text)
	lower := strings.ToLower(clean)
	keywords := extractKeywords(lower)
	geo := resolveGeo(post.Location)
	sentiment := analyzeSentiment(lower)
	confidence := classifyConfidence(post.Author, keywords, geo)

	lang := post.Language
	if lang == "" {
		lang = defaultLanguage
	}
	notes := "Requires verification"
	if confidence > 0.7 {
		notes = "High confidence hazard report"
	}

	return domain.HazardSignal{
		ID:             post.ID,
		SourceText:     post.Text,
		NormalizedText: clean,
		Language:       lang,
		Platform:       post.Platform,
		Author: domain.Author{
			ID:            post.Author.ID,
			Handle:        post.Author.Handle,
			Verified:      post.Author.Verified,
			FollowerCount: post.Author.FollowerCount,
		},
		PostedAt:          post.CreatedAt,
		Geo:               geo,
		ExtractedKeywords: keywords,
		HazardCategory:    categorize(keywords),
		Sentiment:         sentiment,
		ConfidenceScore:   confidence,
		Urgency:           deriveUrgency(confidence, sentiment, geo),
		Credible:          post.Author.Verified || confidence > 0.7 || post.Author.FollowerCount > 5000,
		Evidence: domain.Evidence{
			KeywordSpans:     keywordSpans(lower, keywords),
			Hashtags:         submatches(hashtagRe, post.Text),
			Mentions:         submatches(mentionRe, post.Text),
			HasMediaEvidence: len(post.Attachments) > 0,
		},
		Notes: notes,
	}
}

// categorize applies categoryRules in priority order.
func categorize(keywords []string) domain.HazardCategory {
	for _, rule := range categoryRules {
		if matchesAny(keywords, rule.keywords) {
			return rule.category
		}
	}
	return domain.CategoryOther
}

func matchesAny(have, want []string) bool {
	for _, h := range have {
		for _, w := range want {
			if h == w {
				return true
			}
		}
	}
	return false
}

// resolveGeo prefers explicit coordinates, then a gazetteer lookup of the
// place text.
func resolveGeo(loc *domain.RawPostLocation) domain.SignalGeo {
	if loc == nil {
		return domain.SignalGeo{Source: domain.GeoNone}
	}
	if loc.Lat != nil && loc.Lon != nil {
		return domain.SignalGeo{
			Location: &domain.Location{Lat: *loc.Lat, Lon: *loc.Lon},
			Source:   domain.GeoExplicitCoords,
		}
	}
	if loc.PlaceText != "" {
		text := strings.ToLower(loc.PlaceText)
		for _, p := range gazetteer {
			if strings.Contains(text, p.name) {
				found := p.loc
				return domain.SignalGeo{Location: &found, Source: domain.GeoPlaceText}
			}
		}
	}
	return domain.SignalGeo{Source: domain.GeoNone}
}

func analyzeSentiment(lower string) domain.Sentiment {
	neg := countContained(lower, negativeWords)
	pos := countContained(lower, positiveWords)
	switch {
	case neg > pos:
		return domain.SentimentNegative
	case pos > neg:
		return domain.SentimentPositive
	default:
		return domain.SentimentNeutral
	}
}

func classifyConfidence(author domain.RawAuthor, keywords []string, geo domain.SignalGeo) float64 {
	c := 0.2 * float64(len(keywords))
	if author.Verified {
		c += 0.3
	}
	if author.FollowerCount > 1000 {
		c += 0.1
	}
	if geo.Resolved() {
		c += 0.2
	}
	c += 0.1
	return domain.Clamp01(round2(c))
}

func deriveUrgency(confidence float64, sentiment domain.Sentiment, geo domain.SignalGeo) domain.Urgency {
	switch {
	case confidence > 0.75 && sentiment == domain.SentimentNegative && geo.Resolved():
		return domain.UrgencyHigh
	case confidence > 0.5 && sentiment == domain.SentimentNegative:
		return domain.UrgencyMedium
	default:
		return domain.UrgencyLow
	}
}

func keywordSpans(lower string, keywords []string) []domain.KeywordSpan {
	spans := make([]domain.KeywordSpan, 0, len(keywords))
	for _, kw := range keywords {
		start := strings.Index(lower, kw)
		if start < 0 {
			continue
		}
		spans = append(spans, domain.KeywordSpan{
			Keyword: kw,
			Start:   start,
			End:     start + len(kw),
			Score:   keywordSpanScore,
		})
	}
	return spans
}
