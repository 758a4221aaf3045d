// Package strategy generates named query variants for a topic. It is
// purely functional apart from optional hit-count estimation through the
// biomedical source.
package strategy

import (
	"context"
	"fmt"
	"time"

	"litgate/internal/logger"
	"litgate/internal/sources"
)

// Approach selects how wide the generated variants cast.
const (
	Comprehensive = "comprehensive"
	Focused       = "focused"
	Exploratory   = "exploratory"
)

// Variant is one generated query with an optional estimated hit count.
type Variant struct {
	Name          string `json:"name"`
	Query         string `json:"query"`
	EstimatedHits int    `json:"estimated_hits,omitempty"`
}

// Generate produces the query variants for a topic under the chosen
// approach. Unknown approaches fall back to comprehensive.
func Generate(topic, approach string) []Variant {
	titleOnly := Variant{Name: "title_only", Query: fmt.Sprintf("%s[ti]", topic)}
	titleAbstract := Variant{Name: "title_abstract", Query: fmt.Sprintf("%s[tiab]", topic)}
	allFields := Variant{Name: "all_fields", Query: topic}
	mesh := Variant{Name: "mesh", Query: fmt.Sprintf("%s[mh]", topic)}
	rct := Variant{Name: "rct_filtered", Query: fmt.Sprintf("(%s) AND randomized controlled trial[pt]", topic)}
	recent := Variant{
		Name:  "recent_years",
		Query: fmt.Sprintf("(%s) AND %d:%d[dp]", topic, time.Now().Year()-5, time.Now().Year()),
	}

	switch approach {
	case Focused:
		return []Variant{titleOnly, mesh, rct}
	case Exploratory:
		return []Variant{allFields, titleAbstract, recent}
	default:
		return []Variant{titleOnly, titleAbstract, allFields, mesh, rct, recent}
	}
}

// EstimateHits fills EstimatedHits on each variant by asking the counter
// (the biomedical source's count endpoint). Count failures leave the
// variant's estimate at zero and do not fail the call.
func EstimateHits(ctx context.Context, counter sources.CountCapable, variants []Variant) []Variant {
	if counter == nil {
		return variants
	}
	out := make([]Variant, len(variants))
	copy(out, variants)
	for i := range out {
		n, err := counter.Count(ctx, out[i].Query)
		if err != nil {
			logger.Warn("hit-count estimate failed", "query", out[i].Query, "error", err)
			continue
		}
		out[i].EstimatedHits = n
	}
	return out
}
