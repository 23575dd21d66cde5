package fusion

import "github.com/couchcryptid/hazard-fusion-service/internal/domain"

// SourceCredibility aggregates the trust carried by a set of records: an
// officer record adds 0.5, at least two social records with credibility above
// 0.6 add 0.3, and any sensor record adds 0.2.
func SourceCredibility(recs []domain.SourceRecord) float64 {
	var officer, sensor bool
	credibleSocial := 0
	for _, r := range recs {
		switch r.Type {
		case domain.SourceOfficer:
			officer = true
		case domain.SourceSensor:
			sensor = true
		case domain.SourceSocial:
			if r.CredibilityWeight > 0.6 {
				credibleSocial++
			}
		}
	}

	score := 0.0
	if officer {
		score += 0.5
	}
	if credibleSocial >= 2 {
		score += 0.3
	}
	if sensor {
		score += 0.2
	}
	return domain.Clamp01(score)
}
