package sources

import (
	"context"
	"sync"

	"litgate/internal/core"
)

// MockAdapter implements every source capability for testing. Results
// are scripted per call site and call counts are recorded so tests can
// assert how the executor dispatched work.
type MockAdapter struct {
	mu sync.Mutex

	Name       string
	Articles   []core.Article
	ByID       map[string]core.Article
	RelatedTo  map[string][]core.Article
	CitingOf   map[string][]core.Article
	RefsOf     map[string][]core.Article
	HitCount   int
	Err        error
	SearchErrs []error // Consumed one per Search call before Err

	SearchCalls []string
	FetchCalls  [][]string
	CountCalls  int
}

// NewMockAdapter builds a mock with canned articles.
func NewMockAdapter(name string, articles ...core.Article) *MockAdapter {
	return &MockAdapter{Name: name, Articles: articles}
}

// ID returns the mock's source id.
func (m *MockAdapter) ID() string { return m.Name }

// Search returns the scripted articles, truncated to limit.
func (m *MockAdapter) Search(ctx context.Context, query string, limit int, filters SearchFilters) ([]core.Article, error) {
	m.mu.Lock()
	m.SearchCalls = append(m.SearchCalls, query)
	var err error
	if len(m.SearchErrs) > 0 {
		err = m.SearchErrs[0]
		m.SearchErrs = m.SearchErrs[1:]
	} else {
		err = m.Err
	}
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}

	out := make([]core.Article, len(m.Articles))
	copy(out, m.Articles)
	out = applyClientFilters(out, filters)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// FetchByID resolves ids against the ByID map, preserving input order.
func (m *MockAdapter) FetchByID(ctx context.Context, ids []string) ([]core.Article, error) {
	m.mu.Lock()
	m.FetchCalls = append(m.FetchCalls, ids)
	err := m.Err
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}

	var out []core.Article
	for _, id := range ids {
		if a, ok := m.ByID[id]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

// Related returns the scripted neighbors for an id.
func (m *MockAdapter) Related(ctx context.Context, id string, limit int) ([]core.Article, error) {
	return m.graphLookup(m.RelatedTo, id, limit)
}

// Citing returns the scripted citing articles for an id.
func (m *MockAdapter) Citing(ctx context.Context, id string, limit int) ([]core.Article, error) {
	return m.graphLookup(m.CitingOf, id, limit)
}

// References returns the scripted references for an id.
func (m *MockAdapter) References(ctx context.Context, id string, limit int) ([]core.Article, error) {
	return m.graphLookup(m.RefsOf, id, limit)
}

// Count returns the scripted hit count.
func (m *MockAdapter) Count(ctx context.Context, query string) (int, error) {
	m.mu.Lock()
	m.CountCalls++
	err := m.Err
	m.mu.Unlock()
	if err != nil {
		return 0, err
	}
	return m.HitCount, nil
}

func (m *MockAdapter) graphLookup(table map[string][]core.Article, id string, limit int) ([]core.Article, error) {
	m.mu.Lock()
	err := m.Err
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	out := make([]core.Article, len(table[id]))
	copy(out, table[id])
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MockMetrics implements MetricsService with a fixed citation count.
type MockMetrics struct {
	Count int
	Err   error
	Calls int
}

// EnrichMetrics attaches the fixed count to every article with a PMID.
func (m *MockMetrics) EnrichMetrics(ctx context.Context, articles []core.Article) ([]core.Article, error) {
	m.Calls++
	if m.Err != nil {
		return articles, m.Err
	}
	out := make([]core.Article, len(articles))
	copy(out, articles)
	for i := range out {
		if out[i].PMID == "" {
			continue
		}
		count := m.Count
		out[i].Metrics = &core.CitationMetrics{CitationCount: &count}
	}
	return out, nil
}
