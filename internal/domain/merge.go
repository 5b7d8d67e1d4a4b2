package domain

import "sort"

// UnionTags returns a's tags followed by those of b not already present.
func UnionTags(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	seen := make(map[string]struct{}, len(a)+len(b))
	for _, t := range a {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	for _, t := range b {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// UnionTriples unions by exact subject+relation+object equality,
// preserving a's order first.
func UnionTriples(a, b []Triple) []Triple {
	out := make([]Triple, 0, len(a)+len(b))
	out = append(out, a...)
	for _, t := range b {
		dup := false
		for _, own := range out {
			if own.Equal(t) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, t)
		}
	}
	return out
}

// CapExamples enforces the per-principle example cap by keeping the
// highest-similarity examples. The sort is stable so equal-similarity
// examples keep their original order.
func CapExamples(examples []Example, max int) []Example {
	if max <= 0 || len(examples) <= max {
		return examples
	}
	capped := make([]Example, len(examples))
	copy(capped, examples)
	sort.SliceStable(capped, func(i, j int) bool {
		return capped[i].SimilarityScore > capped[j].SimilarityScore
	})
	return capped[:max]
}

// MergeObservation folds a freshly analyzed candidate into an existing
// principle it was matched against: tags and triples are unioned, the
// candidate's trace becomes a new example, the example cap is re-applied,
// the version is bumped and confidence keeps the maximum of both sides.
// Counters are untouched; the candidate has no usage history yet.
func MergeObservation(target *Principle, cand CandidatePrinciple, similarity float64, maxExamples int) {
	target.Tags = UnionTags(target.Tags, cand.Tags)
	target.Triples = UnionTriples(target.Triples, cand.Triples)
	target.Examples = append(target.Examples, Example{
		TraceID:         cand.TraceID,
		RelevanceNote:   cand.Rationale,
		SimilarityScore: similarity,
	})
	target.Examples = CapExamples(target.Examples, maxExamples)
	target.Version++
	if target.Confidence == nil || cand.Confidence > *target.Confidence {
		c := cand.Confidence
		target.Confidence = &c
	}
}

// MergePrinciples folds source into target during an offline dedupe
// pass: counters are summed so no usage history is lost, tags and
// triples are unioned, examples are concatenated and re-capped, the
// version is bumped and confidence keeps the maximum. The caller is
// responsible for deleting source in the same transaction.
func MergePrinciples(target, source *Principle, maxExamples int) {
	target.UseCount += source.UseCount
	target.SuccessCount += source.SuccessCount
	target.Tags = UnionTags(target.Tags, source.Tags)
	target.Triples = UnionTriples(target.Triples, source.Triples)
	target.Examples = CapExamples(append(target.Examples, source.Examples...), maxExamples)
	target.Version++
	if source.Confidence != nil {
		if target.Confidence == nil || *source.Confidence > *target.Confidence {
			c := *source.Confidence
			target.Confidence = &c
		}
	}
}
