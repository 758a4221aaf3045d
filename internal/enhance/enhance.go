// Package enhance expands a search topic into query strategies using
// vocabulary lookups. Lookup failures are soft: the caller always gets
// at least one strategy carrying the original topic.
package enhance

import (
	"context"
	"fmt"
	"strings"

	"litgate/internal/logger"
	"litgate/internal/store"
)

// EntityResolver resolves a free-text term to its canonical vocabulary
// entry. Implemented by the MeSH client; idempotent and retriable.
type EntityResolver interface {
	Resolve(ctx context.Context, term string) (store.EntityRecord, error)
}

// Strategy is one named query variant.
type Strategy struct {
	Name  string `json:"name"`
	Query string `json:"query"`
}

// Enhancement is the full expansion of one topic.
type Enhancement struct {
	OriginalQuery string               `json:"original_query"`
	ExpandedQuery string               `json:"expanded_query"`
	Entities      []store.EntityRecord `json:"entities,omitempty"`
	ExpandedTerms []string             `json:"expanded_terms,omitempty"`
	Strategies    []Strategy           `json:"strategies"`
}

// maxSynonyms bounds how many synonyms feed the expanded query; MeSH
// entries can carry dozens.
const maxSynonyms = 5

// Enhancer wires the resolver with its entity cache.
type Enhancer struct {
	resolver EntityResolver
	cache    *store.EntityCache
}

// New builds an Enhancer. A nil cache disables caching.
func New(resolver EntityResolver, cache *store.EntityCache) *Enhancer {
	return &Enhancer{resolver: resolver, cache: cache}
}

// Enhance expands a topic. Resolver failures degrade to a single
// strategy with the original topic and never return an error.
func (e *Enhancer) Enhance(ctx context.Context, topic string) Enhancement {
	topic = strings.TrimSpace(topic)
	out := Enhancement{OriginalQuery: topic, ExpandedQuery: topic}
	if topic == "" {
		return out
	}

	rec, err := e.lookup(ctx, topic)
	if err != nil {
		logger.Warn("entity lookup failed, passing topic through", "topic", topic, "error", err)
		out.Strategies = []Strategy{{Name: "original", Query: topic}}
		return out
	}

	if rec.Canonical != "" || len(rec.Synonyms) > 0 {
		out.Entities = append(out.Entities, rec)
	}
	out.ExpandedTerms = expandedTerms(topic, rec)
	out.ExpandedQuery = buildExpandedQuery(out.ExpandedTerms)
	out.Strategies = buildStrategies(topic, rec)
	return out
}

func (e *Enhancer) lookup(ctx context.Context, term string) (store.EntityRecord, error) {
	if e.cache != nil {
		if rec, ok := e.cache.Get(term); ok {
			return rec, nil
		}
	}
	rec, err := e.resolver.Resolve(ctx, term)
	if err != nil {
		return store.EntityRecord{}, err
	}
	if e.cache != nil {
		e.cache.Put(rec)
	}
	return rec, nil
}

// expandedTerms lists the topic, its canonical name and a bounded number
// of synonyms, deduped case-insensitively.
func expandedTerms(topic string, rec store.EntityRecord) []string {
	terms := []string{topic}
	seen := map[string]bool{strings.ToLower(topic): true}
	add := func(t string) {
		key := strings.ToLower(strings.TrimSpace(t))
		if key == "" || seen[key] {
			return
		}
		seen[key] = true
		terms = append(terms, strings.TrimSpace(t))
	}
	add(rec.Canonical)
	for i, s := range rec.Synonyms {
		if i >= maxSynonyms {
			break
		}
		add(s)
	}
	return terms
}

func buildExpandedQuery(terms []string) string {
	if len(terms) <= 1 {
		if len(terms) == 1 {
			return terms[0]
		}
		return ""
	}
	quoted := make([]string, len(terms))
	for i, t := range terms {
		if strings.ContainsRune(t, ' ') {
			quoted[i] = `"` + t + `"`
		} else {
			quoted[i] = t
		}
	}
	return "(" + strings.Join(quoted, " OR ") + ")"
}

// buildStrategies combines the raw topic, the canonical name and
// synonyms under title/abstract and MeSH qualifiers.
func buildStrategies(topic string, rec store.EntityRecord) []Strategy {
	strategies := []Strategy{
		{Name: "original", Query: topic},
		{Name: "title_abstract", Query: fmt.Sprintf("%s[tiab]", topic)},
	}
	if rec.Canonical != "" && !strings.EqualFold(rec.Canonical, topic) {
		strategies = append(strategies,
			Strategy{Name: "canonical", Query: rec.Canonical},
			Strategy{Name: "mesh", Query: fmt.Sprintf("%s[mh]", rec.Canonical)},
		)
	} else if rec.Canonical != "" {
		strategies = append(strategies, Strategy{Name: "mesh", Query: fmt.Sprintf("%s[mh]", rec.Canonical)})
	}
	if terms := expandedTerms(topic, rec); len(terms) > 1 {
		strategies = append(strategies, Strategy{Name: "synonym_expansion", Query: buildExpandedQuery(terms)})
	}
	return strategies
}
