package aggregate

import (
	"math"
	"testing"
	"time"

	"litgate/internal/core"
)

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

func TestDedupMergesByDOI(t *testing.T) {
	articles := []core.Article{
		{DOI: "10.1/a", Title: "Statin outcomes", PrimarySource: "pubmed", PMID: "111",
			Sources: []core.SourceRecord{{Source: "pubmed"}}},
		{DOI: "10.1/a", Title: "Statin outcomes", PrimarySource: "crossref", Abstract: "Full abstract.",
			Sources: []core.SourceRecord{{Source: "crossref"}}},
		{DOI: "10.1/b", Title: "Unrelated work", PrimarySource: "openalex",
			Sources: []core.SourceRecord{{Source: "openalex"}}},
	}
	got := Dedup(articles)
	if len(got) != 2 {
		t.Fatalf("got %d articles, want 2", len(got))
	}
	merged := got[0]
	if merged.DOI != "10.1/a" {
		t.Fatalf("first group = %+v", merged)
	}
	if merged.PMID != "111" {
		t.Errorf("PMID lost in merge: %q", merged.PMID)
	}
	if merged.Abstract != "Full abstract." {
		t.Errorf("abstract not filled from secondary: %q", merged.Abstract)
	}
	if len(merged.Sources) != 2 {
		t.Errorf("Sources = %v, want both recorded", merged.Sources)
	}
}

func TestDedupMergesByTitleKey(t *testing.T) {
	articles := []core.Article{
		{Title: "CRISPR Screening In Human Cells!", PMID: "1"},
		{Title: "crispr screening in human cells", DOI: "10.1/c"},
	}
	got := Dedup(articles)
	if len(got) != 1 {
		t.Fatalf("got %d articles, want 1 (title keys match)", len(got))
	}
	if got[0].PMID != "1" || got[0].DOI != "10.1/c" {
		t.Errorf("merged = %+v", got[0])
	}
}

func TestDedupTransitiveChain(t *testing.T) {
	// a shares a DOI with b; b shares a PMID with c. All three group.
	articles := []core.Article{
		{DOI: "10.1/x", Title: "Alpha variant analysis"},
		{DOI: "10.1/x", PMID: "42", Title: "Completely different title"},
		{PMID: "42", Title: "Third rendering of the record"},
	}
	if got := Dedup(articles); len(got) != 1 {
		t.Errorf("got %d groups, want 1", len(got))
	}
}

func TestMergePrimarySelection(t *testing.T) {
	sparse := core.Article{DOI: "10.1/p", Title: "T", PrimarySource: "crossref"}
	rich := core.Article{
		DOI: "10.1/p", PMID: "9", PMC: "PMC123456", Title: "T",
		Abstract: "abs", Journal: "J", Year: 2020, PrimarySource: "pubmed",
	}
	merged := MergeGroup([]core.Article{sparse, rich})
	if merged.PrimarySource != "pubmed" {
		t.Errorf("primary = %q, want the record with more identifiers", merged.PrimarySource)
	}
}

func TestMergeKeepsMaxCitationCount(t *testing.T) {
	a := core.Article{DOI: "10.1/m", Title: "T", PMID: "5",
		Metrics: &core.CitationMetrics{CitationCount: intPtr(10)}}
	b := core.Article{DOI: "10.1/m", Title: "T",
		Metrics: &core.CitationMetrics{CitationCount: intPtr(40), RelativeCitationRate: floatPtr(1.5)}}
	merged := MergeGroup([]core.Article{a, b})
	if merged.Metrics == nil || *merged.Metrics.CitationCount != 40 {
		t.Errorf("Metrics = %+v, want max citation count", merged.Metrics)
	}
	if merged.Metrics.RelativeCitationRate == nil {
		t.Error("RCR not filled from secondary")
	}
}

func TestRankPresetsNormalizeToOne(t *testing.T) {
	for name := range presets {
		w := normalizeWeights(PresetWeights(name))
		sum := w.Relevance + w.Quality + w.Recency + w.Impact + w.SourceTrust
		if math.Abs(sum-1) > 1e-9 {
			t.Errorf("preset %q sums to %v", name, sum)
		}
	}
}

func TestRankScoresInUnitInterval(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	articles := []core.Article{
		{Title: "metformin cardiovascular outcomes", Abstract: "metformin reduces events",
			Keywords: []string{"metformin"}, Year: 2025, Type: core.ArticleTypeMetaAnalysis,
			OAStatus: core.OAStatusGold, PrimarySource: "pubmed",
			Sources: []core.SourceRecord{{Source: "pubmed"}, {Source: "crossref"}, {Source: "openalex"}},
			Metrics: &core.CitationMetrics{Percentile: floatPtr(99)}},
		{Title: "unrelated botany survey", Year: 1995, PrimarySource: "core"},
		{Title: "undated record"},
	}
	RankAt(articles, "metformin cardiovascular", PresetWeights(PresetDefault), now)
	for _, a := range articles {
		if a.RankingScore < 0 || a.RankingScore > 1 {
			t.Errorf("%q ranking score %v out of [0,1]", a.Title, a.RankingScore)
		}
	}
	if articles[0].Title != "metformin cardiovascular outcomes" {
		t.Errorf("best match not first: %q", articles[0].Title)
	}
}

func TestRankStableOnTies(t *testing.T) {
	articles := []core.Article{
		{Title: "first identical", Year: 2020, PrimarySource: "pubmed"},
		{Title: "second identical", Year: 2020, PrimarySource: "pubmed"},
	}
	RankAt(articles, "", PresetWeights(PresetDefault), time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	if articles[0].Title != "first identical" {
		t.Error("stable sort must preserve input order among ties")
	}
}

func TestRelevanceWithoutQueryIsNeutral(t *testing.T) {
	a := core.Article{Title: "anything"}
	if got := relevanceScore(&a, nil); got != 0.5 {
		t.Errorf("relevance = %v, want 0.5", got)
	}
}

func TestRecencyHalfLife(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a := core.Article{Year: 2021}
	if got := recencyScore(&a, 5, now); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("five-year-old article = %v, want 0.5", got)
	}
	undated := core.Article{}
	if got := recencyScore(&undated, 5, now); got != 0.3 {
		t.Errorf("undated = %v, want 0.3", got)
	}
}

func TestImpactScorePreferenceOrder(t *testing.T) {
	cases := []struct {
		name string
		m    *core.CitationMetrics
		want float64
	}{
		{"percentile wins", &core.CitationMetrics{Percentile: floatPtr(80), RelativeCitationRate: floatPtr(9)}, 0.8},
		{"rcr sigmoid", &core.CitationMetrics{RelativeCitationRate: floatPtr(2)}, 0.5},
		{"citation log", &core.CitationMetrics{CitationCount: intPtr(999)}, 1},
		{"no metrics", nil, 0.3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := core.Article{Metrics: tc.m}
			if got := impactScore(&a); math.Abs(got-tc.want) > 1e-9 {
				t.Errorf("impact = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestTrustScoreMultiSourceBonus(t *testing.T) {
	a := core.Article{PrimarySource: "core", Sources: []core.SourceRecord{
		{Source: "core"}, {Source: "pubmed"}, {Source: "crossref"}, {Source: "openalex"},
	}}
	// 0.7 prior + bonus capped at 0.2.
	if got := trustScore(&a); math.Abs(got-0.9) > 1e-9 {
		t.Errorf("trust = %v, want 0.9", got)
	}
}

func TestIntersect(t *testing.T) {
	a1 := core.Article{DOI: "10.1/one", Title: "One"}
	a2 := core.Article{DOI: "10.1/two", Title: "Two"}
	a3 := core.Article{DOI: "10.1/three", Title: "Three"}

	got := Intersect(
		[]core.Article{a1, a2, a3},
		[]core.Article{a3, a1},
	)
	if len(got) != 2 {
		t.Fatalf("got %d articles: %+v", len(got), got)
	}
	// Order follows the first list.
	if got[0].DOI != "10.1/one" || got[1].DOI != "10.1/three" {
		t.Errorf("order = %q, %q", got[0].DOI, got[1].DOI)
	}
}

func TestIntersectWithEmptyList(t *testing.T) {
	a := core.Article{DOI: "10.1/one", Title: "One"}
	if got := Intersect([]core.Article{a}, nil); len(got) != 0 {
		t.Errorf("intersection with an empty list = %+v, want empty", got)
	}
}

func TestFuseRRFPrefersConsistentlyRanked(t *testing.T) {
	shared := core.Article{DOI: "10.1/shared", Title: "Shared"}
	top1 := core.Article{DOI: "10.1/top1", Title: "Top of list one"}
	top2 := core.Article{DOI: "10.1/top2", Title: "Top of list two"}

	got := FuseRRF(
		[]core.Article{top1, shared},
		[]core.Article{top2, shared},
	)
	if len(got) != 3 {
		t.Fatalf("got %d articles", len(got))
	}
	// shared scores 2/(60+2); each top scores 1/(60+1).
	if got[0].DOI != "10.1/shared" {
		t.Errorf("first = %q, want the article present in both lists", got[0].DOI)
	}
}

func TestUnionDedups(t *testing.T) {
	a := core.Article{DOI: "10.1/u", Title: "U"}
	got := Union([]core.Article{a}, []core.Article{a})
	if len(got) != 1 {
		t.Errorf("got %d articles, want 1", len(got))
	}
}
