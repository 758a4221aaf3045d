package aggregate

import (
	"math"
	"sort"
	"strings"
	"time"

	"litgate/internal/core"
)

// Weights combines the five scoring dimensions. Callers do not need to
// pre-normalize; Rank normalizes the sum to 1.
type Weights struct {
	Relevance   float64 `json:"relevance"`
	Quality     float64 `json:"quality"`
	Recency     float64 `json:"recency"`
	Impact      float64 `json:"impact"`
	SourceTrust float64 `json:"source_trust"`

	// RecencyHalfLife in years; zero means the 5-year default.
	RecencyHalfLife float64 `json:"recency_half_life,omitempty"`
}

// Preset names accepted by Rank and the search options.
const (
	PresetDefault = "default"
	PresetImpact  = "impact"
	PresetRecency = "recency"
	PresetQuality = "quality"
)

var presets = map[string]Weights{
	PresetDefault: {Relevance: 0.30, Quality: 0.20, Recency: 0.20, Impact: 0.20, SourceTrust: 0.10},
	PresetImpact:  {Relevance: 0.20, Quality: 0.15, Recency: 0.15, Impact: 0.40, SourceTrust: 0.10},
	PresetRecency: {Relevance: 0.25, Quality: 0.15, Recency: 0.40, Impact: 0.10, SourceTrust: 0.10},
	PresetQuality: {Relevance: 0.20, Quality: 0.40, Recency: 0.15, Impact: 0.15, SourceTrust: 0.10},
}

// PresetWeights returns the named preset, falling back to default.
func PresetWeights(name string) Weights {
	if w, ok := presets[name]; ok {
		return w
	}
	return presets[PresetDefault]
}

// sourceTrustPriors are the per-source trust scores.
var sourceTrustPriors = map[string]float64{
	"pubmed":          1.0,
	"crossref":        0.9,
	"openalex":        0.85,
	"semanticscholar": 0.85,
	"core":            0.7,
}

const defaultSourceTrust = 0.5

// Rank scores every article in place against the query and sorts the
// slice by descending ranking score. The sort is stable, so input order
// breaks ties.
func Rank(articles []core.Article, query string, w Weights) {
	RankAt(articles, query, w, time.Now())
}

// RankAt is Rank with a pinned clock for the recency dimension.
func RankAt(articles []core.Article, query string, w Weights, now time.Time) {
	w = normalizeWeights(w)
	terms := queryTerms(query)
	for i := range articles {
		a := &articles[i]
		a.RelevanceScore = relevanceScore(a, terms)
		a.QualityScore = qualityScore(a)
		a.RankingScore = w.Relevance*a.RelevanceScore +
			w.Quality*a.QualityScore +
			w.Recency*recencyScore(a, w.RecencyHalfLife, now) +
			w.Impact*impactScore(a) +
			w.SourceTrust*trustScore(a)
	}
	sort.SliceStable(articles, func(i, j int) bool {
		return articles[i].RankingScore > articles[j].RankingScore
	})
}

func normalizeWeights(w Weights) Weights {
	sum := w.Relevance + w.Quality + w.Recency + w.Impact + w.SourceTrust
	if sum <= 0 {
		return PresetWeights(PresetDefault)
	}
	w.Relevance /= sum
	w.Quality /= sum
	w.Recency /= sum
	w.Impact /= sum
	w.SourceTrust /= sum
	return w
}

// queryTerms keeps terms of length >= 3, lowercased.
func queryTerms(query string) []string {
	var out []string
	for _, t := range strings.Fields(strings.ToLower(query)) {
		t = strings.Trim(t, `"()[].,;`)
		if len(t) >= 3 {
			out = append(out, t)
		}
	}
	return out
}

// relevanceScore is 0.5*title + 0.3*abstract + 0.2*keyword term overlap.
// Without query terms every article scores 0.5.
func relevanceScore(a *core.Article, terms []string) float64 {
	if len(terms) == 0 {
		return 0.5
	}
	title := strings.ToLower(a.Title)
	abstract := strings.ToLower(a.Abstract)
	keywords := strings.ToLower(strings.Join(a.Keywords, " ") + " " + strings.Join(a.MeshTerms, " "))

	var inTitle, inAbstract, inKeywords int
	for _, t := range terms {
		if strings.Contains(title, t) {
			inTitle++
		}
		if strings.Contains(abstract, t) {
			inAbstract++
		}
		if strings.Contains(keywords, t) {
			inKeywords++
		}
	}
	n := float64(len(terms))
	return 0.5*float64(inTitle)/n + 0.3*float64(inAbstract)/n + 0.2*float64(inKeywords)/n
}

var typeBonus = map[core.ArticleType]float64{
	core.ArticleTypeMetaAnalysis:     0.3,
	core.ArticleTypeSystematicReview: 0.25,
	core.ArticleTypeRCT:              0.2,
	core.ArticleTypeClinicalTrial:    0.15,
	core.ArticleTypeReview:           0.1,
	core.ArticleTypeJournalArticle:   0.05,
}

func qualityScore(a *core.Article) float64 {
	score := 0.5 + typeBonus[a.Type]
	score += float64(a.BibFieldCount()) / 7 * 0.1
	if a.OAStatus != core.OAStatusUnknown && a.OAStatus != core.OAStatusClosed && a.OAStatus != "" {
		score += 0.05
	}
	if score > 1 {
		score = 1
	}
	return score
}

func recencyScore(a *core.Article, halfLife float64, now time.Time) float64 {
	if a.Year == 0 {
		return 0.3
	}
	if halfLife <= 0 {
		halfLife = 5
	}
	age := float64(now.Year() - a.Year)
	if age < 0 {
		age = 0
	}
	return math.Pow(0.5, age/halfLife)
}

func impactScore(a *core.Article) float64 {
	m := a.Metrics
	if m == nil {
		return 0.3
	}
	switch {
	case m.Percentile != nil:
		return clip01(*m.Percentile / 100)
	case m.RelativeCitationRate != nil:
		rcr := *m.RelativeCitationRate
		if rcr < 0 {
			rcr = 0
		}
		return clip01(rcr / (rcr + 2))
	case m.CitationCount != nil:
		c := float64(*m.CitationCount)
		if c < 0 {
			c = 0
		}
		return clip01(math.Log10(c+1) / 3)
	default:
		return 0.3
	}
}

// trustScore looks up the prior for the article's primary source and adds
// a multi-source bonus of 0.1 per extra contributing source, capped at
// 0.2.
func trustScore(a *core.Article) float64 {
	score := articleTrust(a)
	if n := len(a.Sources); n >= 2 {
		bonus := 0.1 * float64(n-1)
		if bonus > 0.2 {
			bonus = 0.2
		}
		score += bonus
	}
	return clip01(score)
}

func articleTrust(a *core.Article) float64 {
	if prior, ok := sourceTrustPriors[a.PrimarySource]; ok {
		return prior
	}
	return defaultSourceTrust
}

func clip01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
