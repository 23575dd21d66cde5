// Package verification scores hazard reports and walks them through the
// automated tiers.
//
// Tier 1 ([Scorer]) uses only the report and light local checks. Tier 2
// ([Validator]) corroborates against nearby reports and external correlation
// providers. Reports neither tier can verify are escalated to human review.
// [Engine] ties the tiers to the fusion store and the escalation queue.
//
// Every scoring input is a [Contributor]: a context-aware function that may do
// I/O. The scorer runs its contributors concurrently and only returns a score
// once all of them have succeeded.
package verification
