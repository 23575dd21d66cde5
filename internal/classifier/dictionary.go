package classifier

import "github.com/couchcryptid/hazard-fusion-service/internal/domain"

// Keyword dictionaries. Matching is case-insensitive substring matching with
// no stemming, so "flood" also matches inside "flooding" and "flash flood".
var (
	primaryKeywords = []string{
		"flood", "flooding", "storm", "stormy", "cyclone", "typhoon", "tornado",
		"high wave", "swell", "tsunami", "surge", "storm surge", "coastal current",
		"inundation", "water rising", "overflow",
	}

	secondaryKeywords = []string{
		"deluge", "heavy rain", "river burst", "overflowing", "flash flood",
		"gale", "squall", "monsoon surge",
	}

	// recencyPhrases mark a post as describing something happening now.
	recencyPhrases = []string{
		"now", "right now", "just", "happening", "reports of", "currently",
	}

	// metaphorPhrases catch idiomatic or commercial uses of hazard words.
	metaphorPhrases = []string{
		"flooded with messages", "storm of", "wave of", "like a tsunami",
		"album", "song", "buy", "sale", "offer",
	}

	negativeWords = []string{
		"danger", "emergency", "urgent", "help", "disaster", "damage",
		"severe", "rising", "trapped", "evacuat", "destroyed", "warning",
	}

	positiveWords = []string{
		"safe", "clear", "calm", "normal",
	}
)

// place is a gazetteer entry: a lowercase name and its coordinates.
type place struct {
	name string
	loc  domain.Location
}

// gazetteer is consulted in order; the first name contained in the place text wins.
var gazetteer = []place{
	{"mumbai", domain.Location{Lat: 19.0760, Lon: 72.8777}},
	{"chennai", domain.Location{Lat: 13.0827, Lon: 80.2707}},
	{"kolkata", domain.Location{Lat: 22.5726, Lon: 88.3639}},
	{"goa", domain.Location{Lat: 15.2993, Lon: 74.1240}},
	{"kochi", domain.Location{Lat: 9.9312, Lon: 76.2673}},
}

// categoryRule assigns category when any of its keywords was extracted.
type categoryRule struct {
	category domain.HazardCategory
	keywords []string
}

// categoryRules are evaluated in priority order; the first match wins even if
// later rules would also match.
var categoryRules = []categoryRule{
	{domain.CategoryFlood, []string{"flood", "flooding", "inundation"}},
	{domain.CategoryStorm, []string{"storm", "cyclone", "typhoon"}},
	{domain.CategoryHighWave, []string{"high wave", "swell"}},
	{domain.CategoryTsunami, []string{"tsunami"}},
	{domain.CategoryCoastalCurrents, []string{"coastal current", "surge"}},
}
