package enhance

import (
	"context"
	"errors"
	"testing"
	"time"

	"litgate/internal/store"
)

type fakeResolver struct {
	rec   store.EntityRecord
	err   error
	calls int
}

func (f *fakeResolver) Resolve(ctx context.Context, term string) (store.EntityRecord, error) {
	f.calls++
	if f.err != nil {
		return store.EntityRecord{}, f.err
	}
	rec := f.rec
	rec.Term = term
	return rec, nil
}

func TestEnhanceBuildsStrategies(t *testing.T) {
	r := &fakeResolver{rec: store.EntityRecord{
		Canonical: "Myocardial Infarction",
		Synonyms:  []string{"Heart Attack", "MI"},
		MeshID:    "D009203",
	}}
	e := New(r, nil)

	out := e.Enhance(context.Background(), "heart attack")
	if out.OriginalQuery != "heart attack" {
		t.Errorf("OriginalQuery = %q", out.OriginalQuery)
	}
	if len(out.Entities) != 1 || out.Entities[0].MeshID != "D009203" {
		t.Errorf("Entities = %+v", out.Entities)
	}

	names := make(map[string]string)
	for _, s := range out.Strategies {
		names[s.Name] = s.Query
	}
	if names["original"] != "heart attack" {
		t.Errorf("original strategy = %q", names["original"])
	}
	if names["mesh"] != "Myocardial Infarction[mh]" {
		t.Errorf("mesh strategy = %q", names["mesh"])
	}
	if names["title_abstract"] != "heart attack[tiab]" {
		t.Errorf("title_abstract strategy = %q", names["title_abstract"])
	}
	if _, ok := names["synonym_expansion"]; !ok {
		t.Errorf("strategies = %v, missing synonym_expansion", names)
	}
	if out.ExpandedQuery == "heart attack" {
		t.Error("ExpandedQuery not expanded")
	}
}

func TestEnhanceSoftFailsOnResolverError(t *testing.T) {
	e := New(&fakeResolver{err: errors.New("mesh down")}, nil)

	out := e.Enhance(context.Background(), "obscure topic")
	if len(out.Strategies) != 1 || out.Strategies[0].Query != "obscure topic" {
		t.Errorf("Strategies = %+v, want single pass-through", out.Strategies)
	}
	if out.ExpandedQuery != "obscure topic" {
		t.Errorf("ExpandedQuery = %q", out.ExpandedQuery)
	}
}

func TestEnhanceUsesEntityCache(t *testing.T) {
	r := &fakeResolver{rec: store.EntityRecord{Canonical: "Asthma"}}
	e := New(r, store.NewEntityCache(time.Hour))

	e.Enhance(context.Background(), "asthma")
	e.Enhance(context.Background(), "Asthma")
	if r.calls != 1 {
		t.Errorf("resolver calls = %d, want 1 (case-insensitive cache hit)", r.calls)
	}
}

func TestEnhanceEmptyTopic(t *testing.T) {
	e := New(&fakeResolver{}, nil)
	out := e.Enhance(context.Background(), "  ")
	if len(out.Strategies) != 0 || out.ExpandedQuery != "" {
		t.Errorf("empty topic should produce an empty enhancement, got %+v", out)
	}
}

func TestExpandedQueryQuotesPhrases(t *testing.T) {
	q := buildExpandedQuery([]string{"heart attack", "MI"})
	if q != `("heart attack" OR MI)` {
		t.Errorf("query = %q", q)
	}
}
