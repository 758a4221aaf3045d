package aggregate

import (
	"sort"

	"litgate/internal/core"
)

// RRFConstant is the k in Reciprocal Rank Fusion, score = 1/(k + rank).
const RRFConstant = 60

// Union merges multiple ranked lists into one deduplicated list.
func Union(lists ...[]core.Article) []core.Article {
	var all []core.Article
	for _, list := range lists {
		all = append(all, list...)
	}
	return Dedup(all)
}

// Intersect keeps articles whose canonical key appears in every input
// list. Output preserves the order of the first list; duplicates across
// lists are merged.
func Intersect(lists ...[]core.Article) []core.Article {
	if len(lists) == 0 {
		return nil
	}

	counts := make(map[string]int)
	merged := make(map[string][]core.Article)
	for _, list := range lists {
		seen := make(map[string]bool)
		for _, a := range list {
			key := a.CanonicalKey()
			if !seen[key] {
				seen[key] = true
				counts[key]++
			}
			merged[key] = append(merged[key], a)
		}
	}

	var out []core.Article
	emitted := make(map[string]bool)
	for _, a := range lists[0] {
		key := a.CanonicalKey()
		if counts[key] != len(lists) || emitted[key] {
			continue
		}
		emitted[key] = true
		out = append(out, MergeGroup(merged[key]))
	}
	return out
}

// FuseRRF combines ranked lists by Reciprocal Rank Fusion: each list
// contributes 1/(k + rank) per article, articles are merged by canonical
// key, and the result is sorted by descending fused score. Ties keep
// first-appearance order.
func FuseRRF(lists ...[]core.Article) []core.Article {
	scores := make(map[string]float64)
	merged := make(map[string][]core.Article)
	var order []string

	for _, list := range lists {
		for rank, a := range list {
			key := a.CanonicalKey()
			if _, ok := merged[key]; !ok {
				order = append(order, key)
			}
			scores[key] += 1.0 / float64(RRFConstant+rank+1)
			merged[key] = append(merged[key], a)
		}
	}

	out := make([]core.Article, 0, len(order))
	for _, key := range order {
		a := MergeGroup(merged[key])
		a.RankingScore = scores[key]
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RankingScore > out[j].RankingScore
	})
	return out
}
