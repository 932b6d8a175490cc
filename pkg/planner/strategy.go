package planner

// ChooseScalarStrategy classifies a Select with no OrderBy into the point
// or range scalar shape spec §4.8 describes, based on its PK predicates.
// A plan with no predicates at all is treated as an (unbounded) range scan.
func ChooseScalarStrategy(predicates []Predicate) Strategy {
	for _, p := range predicates {
		if p.Op == OpEq {
			return StrategyScalarPoint
		}
	}
	return StrategyScalarRange
}

// ChooseHybridStrategy implements spec §4.8's selectivity-threshold
// dispatch for a predicate+similarity query: a highly selective predicate
// filters first, a weak one searches the vector index first and rechecks
// the predicate on the result, and the band in between dual-scans both and
// intersects — except dual-scan itself falls back to filter-first per the
// Open Question resolved in this implementation (see DESIGN.md), since
// running both paths concurrently for the middle band buys no precision a
// single filter-first pass over the (moderately selective) predicate
// doesn't already give.
func ChooseHybridStrategy(selectivity float64) Strategy {
	switch {
	case selectivity <= SigmaLowDefault:
		return StrategyFilterFirst
	case selectivity >= SigmaHighDefault:
		return StrategyVectorFirst
	default:
		return StrategyFilterFirst
	}
}

// ExpandFetch returns the over-fetch candidate count for the given vector-
// first retry attempt (0-indexed), doubling each time starting from
// limit*FExpandDefault, per spec §4.8's "must not silently truncate"
// requirement to retry with a wider candidate set before giving up.
func ExpandFetch(limit int, attempt int) int {
	factor := FExpandDefault << attempt
	return limit * factor
}
