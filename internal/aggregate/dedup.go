// Package aggregate deduplicates, merges and ranks article lists drawn
// from multiple sources.
package aggregate

import (
	"strconv"

	"litgate/internal/core"
)

// unionFind over string keys with path compression and union by size.
type unionFind struct {
	parent map[string]string
	size   map[string]int
}

func newUnionFind() *unionFind {
	return &unionFind{parent: make(map[string]string), size: make(map[string]int)}
}

func (u *unionFind) find(key string) string {
	if _, ok := u.parent[key]; !ok {
		u.parent[key] = key
		u.size[key] = 1
	}
	root := key
	for u.parent[root] != root {
		root = u.parent[root]
	}
	for u.parent[key] != root {
		key, u.parent[key] = u.parent[key], root
	}
	return root
}

func (u *unionFind) union(a, b string) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	if u.size[ra] < u.size[rb] {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
	u.size[ra] += u.size[rb]
}

// dedupKeys lists the identity keys an article can be grouped under.
func dedupKeys(a *core.Article) []string {
	var keys []string
	if a.DOI != "" {
		keys = append(keys, "doi:"+a.DOI)
	}
	if a.PMID != "" {
		keys = append(keys, "pmid:"+a.PMID)
	}
	if t := core.NormalizeTitleKey(a.Title); t != "" {
		keys = append(keys, "title:"+t)
	}
	return keys
}

// Dedup groups articles that share any identity key (DOI, PMID or
// normalized title prefix) and merges each group into one article.
// Groups appear in the order their first member appeared in the input.
func Dedup(articles []core.Article) []core.Article {
	if len(articles) <= 1 {
		return articles
	}

	uf := newUnionFind()
	for i := range articles {
		keys := dedupKeys(&articles[i])
		for j := 1; j < len(keys); j++ {
			uf.union(keys[0], keys[j])
		}
	}

	groups := make(map[string][]int)
	var order []string
	for i := range articles {
		keys := dedupKeys(&articles[i])
		if len(keys) == 0 {
			// Untitled, unidentified records stand alone.
			root := "anon:" + strconv.Itoa(i)
			groups[root] = []int{i}
			order = append(order, root)
			continue
		}
		root := uf.find(keys[0])
		if _, ok := groups[root]; !ok {
			order = append(order, root)
		}
		groups[root] = append(groups[root], i)
	}

	out := make([]core.Article, 0, len(order))
	for _, root := range order {
		members := make([]core.Article, 0, len(groups[root]))
		for _, idx := range groups[root] {
			members = append(members, articles[idx])
		}
		out = append(out, MergeGroup(members))
	}
	return out
}
