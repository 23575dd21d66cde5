// Package domain models crowdsourced coastal hazard data and the records the
// verification engine produces from it.
//
// # Inputs
//
// Two kinds of raw input arrive from upstream collaborators as flat JSON:
//
//	RawPost    a social media post (text, author, optional location, attachments)
//	RawReport  a citizen, officer, or sensor hazard report submission
//
// Posts become [HazardSignal] values after classification. Report submissions
// become [HazardReport] values and move through the verification tiers.
//
// # Tiers
//
//	1  automated single-report scoring (geospatial, temporal, source, content)
//	2  cross-source corroboration against the fusion store and external feeds
//	3  human adjudication from the escalation queue
//
// A report's tier never decreases. Once its status is verified, unverified, or
// false the report is terminal: its score and flags are frozen and a correction
// is filed as a new report.
//
// # Coordinates
//
// Locations are WGS-84 decimal degrees. Distances use the haversine formula on a
// sphere of radius [EarthRadiusKm]. A report without coordinates carries a nil
// Location rather than a zero value, since 0,0 is a valid point in the Gulf of
// Guinea.
//
// # Probabilities
//
// Every probability-like field (scores, confidences, credibility weights) is
// clamped to [0,1] with [Clamp01] before it leaves this package's constructors.
package domain
