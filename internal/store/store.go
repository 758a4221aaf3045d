package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"litgate/internal/core"
)

// Store is the SQLite-backed persistent cache. It sits underneath the
// in-memory caches and survives process restarts. Scoring fields are
// transient and never persisted.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore opens (or creates) the cache database under dataDir.
func NewStore(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "litgate.db")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db, path: dbPath}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return s, nil
}

func (s *Store) initialize() error {
	articlesTable := `
	CREATE TABLE IF NOT EXISTS articles (
		cache_key TEXT PRIMARY KEY,
		pmid TEXT,
		doi TEXT,
		title TEXT,
		record TEXT,
		primary_source TEXT,
		date_cached DATETIME
	);`

	entitiesTable := `
	CREATE TABLE IF NOT EXISTS entities (
		term TEXT PRIMARY KEY,
		canonical TEXT,
		synonyms TEXT,
		mesh_id TEXT,
		date_cached DATETIME
	);`

	for _, table := range []string{articlesTable, entitiesTable} {
		if _, err := s.db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// CacheArticle stores an article keyed by DOI (preferred) or PMID.
// Articles with neither identifier are skipped silently: they cannot be
// looked up again anyway.
func (s *Store) CacheArticle(article core.Article) error {
	keys := cacheKeys(&article)
	if len(keys) == 0 {
		return nil
	}
	key := keys[0]

	// Strip transient scoring before persisting.
	article.RankingScore = 0
	article.RelevanceScore = 0
	article.QualityScore = 0

	record, err := json.Marshal(article)
	if err != nil {
		return fmt.Errorf("failed to encode article: %w", err)
	}

	query := `
	INSERT OR REPLACE INTO articles
	(cache_key, pmid, doi, title, record, primary_source, date_cached)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.Exec(query,
		key,
		article.PMID,
		article.DOI,
		article.Title,
		string(record),
		article.PrimarySource,
		time.Now().UTC(),
	)
	return err
}

// GetCachedArticle retrieves an article by cache key (doi:<doi> or
// pmid:<pmid>) if it is younger than maxAge. Rows are stored once under
// their primary key but both identifier columns are matched, so a record
// cached by DOI is also found by PMID. A miss returns (nil, nil).
func (s *Store) GetCachedArticle(key string, maxAge time.Duration) (*core.Article, error) {
	query := `
	SELECT record FROM articles
	WHERE (cache_key = ? OR doi = ? OR pmid = ?) AND date_cached > ?`

	doi := strings.TrimPrefix(key, "doi:")
	pmid := strings.TrimPrefix(key, "pmid:")
	cutoff := time.Now().UTC().Add(-maxAge)
	row := s.db.QueryRow(query, key, doi, pmid, cutoff)

	var record string
	err := row.Scan(&record)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan article: %w", err)
	}

	var article core.Article
	if err := json.Unmarshal([]byte(record), &article); err != nil {
		return nil, fmt.Errorf("failed to decode article: %w", err)
	}
	return &article, nil
}

// CacheEntity stores an entity-lookup result.
func (s *Store) CacheEntity(rec EntityRecord) error {
	synonyms, _ := json.Marshal(rec.Synonyms)

	query := `
	INSERT OR REPLACE INTO entities
	(term, canonical, synonyms, mesh_id, date_cached)
	VALUES (?, ?, ?, ?, ?)`

	_, err := s.db.Exec(query,
		normalizeTerm(rec.Term),
		rec.Canonical,
		string(synonyms),
		rec.MeshID,
		time.Now().UTC(),
	)
	return err
}

// GetCachedEntity retrieves an entity-lookup result by term.
func (s *Store) GetCachedEntity(term string, maxAge time.Duration) (*EntityRecord, error) {
	query := `
	SELECT term, canonical, synonyms, mesh_id FROM entities
	WHERE term = ? AND date_cached > ?`

	cutoff := time.Now().UTC().Add(-maxAge)
	row := s.db.QueryRow(query, normalizeTerm(term), cutoff)

	var rec EntityRecord
	var synonyms string
	err := row.Scan(&rec.Term, &rec.Canonical, &synonyms, &rec.MeshID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan entity: %w", err)
	}

	if err := json.Unmarshal([]byte(synonyms), &rec.Synonyms); err != nil {
		rec.Synonyms = nil
	}
	return &rec, nil
}

// Stats summarizes the persistent cache.
type Stats struct {
	ArticleCount int
	EntityCount  int
	CacheSize    int64
	LastUpdated  time.Time
}

// GetStats returns row counts and the database file size.
func (s *Store) GetStats() (*Stats, error) {
	stats := &Stats{}

	counts := map[string]*int{
		"SELECT COUNT(*) FROM articles": &stats.ArticleCount,
		"SELECT COUNT(*) FROM entities": &stats.EntityCount,
	}
	for query, target := range counts {
		if err := s.db.QueryRow(query).Scan(target); err != nil {
			return nil, fmt.Errorf("failed to get count: %w", err)
		}
	}

	if fileInfo, err := os.Stat(s.path); err == nil {
		stats.CacheSize = fileInfo.Size()
		stats.LastUpdated = fileInfo.ModTime()
	}
	return stats, nil
}

// Clear removes all cached rows and reclaims space.
func (s *Store) Clear() error {
	for _, table := range []string{"articles", "entities"} {
		if _, err := s.db.Exec(fmt.Sprintf("DELETE FROM %s", table)); err != nil {
			return fmt.Errorf("failed to clear %s table: %w", table, err)
		}
	}
	if _, err := s.db.Exec("VACUUM"); err != nil {
		return fmt.Errorf("failed to vacuum database: %w", err)
	}
	return nil
}

// CleanupExpired removes rows older than the given ages.
func (s *Store) CleanupExpired(articleMaxAge, entityMaxAge time.Duration) error {
	now := time.Now().UTC()

	if _, err := s.db.Exec("DELETE FROM articles WHERE date_cached < ?", now.Add(-articleMaxAge)); err != nil {
		return fmt.Errorf("failed to clean old articles: %w", err)
	}
	if _, err := s.db.Exec("DELETE FROM entities WHERE date_cached < ?", now.Add(-entityMaxAge)); err != nil {
		return fmt.Errorf("failed to clean old entities: %w", err)
	}
	return nil
}
