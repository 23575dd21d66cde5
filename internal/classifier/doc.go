// Package classifier turns raw social posts into hazard signals and decides
// whether a post is admitted to the hazard feed.
//
// [Classify] and [Filter] are independent: Filter is a cheaper gate with its
// own scoring and never consults Classify's confidence. Both are pure and
// deterministic, so replaying a post always yields the same output.
//
// Classification confidence:
//
//	+0.2 per extracted keyword
//	+0.3 verified author
//	+0.1 more than 1000 followers
//	+0.2 location resolved
//	+0.1 recency bonus (posts are scored as they arrive)
//	clamped to [0,1]
//
// Filter confidence:
//
//	no keywords  -> REJECT, confidence 0
//	+0.3 keywords found, +0.2 recency phrase, +0.3 location resolved,
//	-0.4 metaphorical usage; APPROVE needs >= 0.5, a location, and no metaphor.
package classifier
