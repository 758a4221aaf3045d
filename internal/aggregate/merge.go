package aggregate

import (
	"litgate/internal/core"
)

// MergeGroup merges a dedup group into one article. The primary is
// chosen by the most identifiers, then the most bibliographic fields,
// then the highest source trust; the rest merge into it.
func MergeGroup(group []core.Article) core.Article {
	if len(group) == 0 {
		return core.Article{}
	}
	primary := 0
	for i := 1; i < len(group); i++ {
		if betterPrimary(&group[i], &group[primary]) {
			primary = i
		}
	}
	merged := group[primary]
	for i := range group {
		if i != primary {
			mergeFrom(&merged, &group[i])
		}
	}
	return merged
}

// betterPrimary reports whether a beats b as the merge primary.
func betterPrimary(a, b *core.Article) bool {
	if ai, bi := a.IdentifierCount(), b.IdentifierCount(); ai != bi {
		return ai > bi
	}
	if af, bf := a.BibFieldCount(), b.BibFieldCount(); af != bf {
		return af > bf
	}
	return articleTrust(a) > articleTrust(b)
}

// mergeFrom folds other into dst: missing scalars are filled, lists are
// extended with dedup, metrics keep the max citation count, and every
// contributing source is recorded.
func mergeFrom(dst, other *core.Article) {
	fillString(&dst.PMID, other.PMID)
	fillString(&dst.DOI, other.DOI)
	fillString(&dst.PMC, other.PMC)
	fillString(&dst.OpenAlexID, other.OpenAlexID)
	fillString(&dst.SemanticScholarID, other.SemanticScholarID)
	fillString(&dst.ArxivID, other.ArxivID)

	fillString(&dst.Title, other.Title)
	fillString(&dst.Abstract, other.Abstract)
	fillString(&dst.Language, other.Language)
	fillString(&dst.Journal, other.Journal)
	fillString(&dst.JournalAbbrev, other.JournalAbbrev)
	fillString(&dst.Volume, other.Volume)
	fillString(&dst.Issue, other.Issue)
	fillString(&dst.Pages, other.Pages)
	fillString(&dst.Publisher, other.Publisher)

	if dst.PublicationDate == nil && other.PublicationDate != nil {
		dst.SetPublicationDate(*other.PublicationDate)
	}
	if dst.Year == 0 {
		dst.Year = other.Year
	}
	if dst.Type == core.ArticleTypeUnknown || dst.Type == "" {
		dst.Type = other.Type
	}

	dst.Authors = mergeAuthors(dst.Authors, other.Authors)
	dst.Keywords = mergeStrings(dst.Keywords, other.Keywords)
	dst.MeshTerms = mergeStrings(dst.MeshTerms, other.MeshTerms)
	dst.OALinks = mergeOALinks(dst.OALinks, other.OALinks)
	if dst.OAStatus == core.OAStatusUnknown || dst.OAStatus == "" {
		dst.OAStatus = other.OAStatus
	}

	dst.Metrics = mergeMetrics(dst.Metrics, other.Metrics)

	for _, s := range other.Sources {
		dst.RecordSource(s.Source, s.RetrievedAt)
	}
}

func fillString(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}

func mergeAuthors(dst, more []core.Author) []core.Author {
	seen := make(map[string]bool, len(dst))
	for _, a := range dst {
		seen[authorKey(a)] = true
	}
	for _, a := range more {
		if key := authorKey(a); !seen[key] {
			seen[key] = true
			dst = append(dst, a)
		}
	}
	return dst
}

func authorKey(a core.Author) string {
	if a.ORCID != "" {
		return "orcid:" + a.ORCID
	}
	return "name:" + a.Family + "|" + a.Given
}

func mergeStrings(dst, more []string) []string {
	seen := make(map[string]bool, len(dst))
	for _, s := range dst {
		seen[s] = true
	}
	for _, s := range more {
		if !seen[s] {
			seen[s] = true
			dst = append(dst, s)
		}
	}
	return dst
}

func mergeOALinks(dst, more []core.OALink) []core.OALink {
	seen := make(map[string]bool, len(dst))
	for _, l := range dst {
		seen[l.URL] = true
	}
	for _, l := range more {
		if !seen[l.URL] {
			seen[l.URL] = true
			dst = append(dst, l)
		}
	}
	return dst
}

func mergeMetrics(dst, other *core.CitationMetrics) *core.CitationMetrics {
	if other == nil {
		return dst
	}
	if dst == nil {
		clone := *other
		return &clone
	}
	if other.CitationCount != nil &&
		(dst.CitationCount == nil || *other.CitationCount > *dst.CitationCount) {
		dst.CitationCount = other.CitationCount
	}
	if dst.RelativeCitationRate == nil {
		dst.RelativeCitationRate = other.RelativeCitationRate
	}
	if dst.Percentile == nil {
		dst.Percentile = other.Percentile
	}
	if dst.TranslationPotential == nil {
		dst.TranslationPotential = other.TranslationPotential
	}
	if dst.InfluentialCount == nil {
		dst.InfluentialCount = other.InfluentialCount
	}
	if dst.CitationsPerYear == nil {
		dst.CitationsPerYear = other.CitationsPerYear
	}
	return dst
}
