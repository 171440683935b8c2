package store

import (
	"database/sql"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// SpeechEntry describes one cached audio file.
type SpeechEntry struct {
	Word       string
	Lang       string
	TLD        string
	Path       string
	Size       int64
	Hits       int
	CreatedAt  time.Time
	LastUsedAt time.Time
}

// SpeechRepository records speech cache activity.
type SpeechRepository struct {
	db *sql.DB
}

// Speech returns the speech cache repository for this store.
func (s *Store) Speech() *SpeechRepository {
	return &SpeechRepository{db: s.db}
}

// RecordSynthesis upserts the entry for a freshly written audio file.
// Re-synthesising a word keeps its hit count.
func (r *SpeechRepository) RecordSynthesis(word, lang, tld, path string, size int64) error {
	now := time.Now()
	_, err := r.db.Exec(
		`INSERT INTO speech_cache (word, lang, tld, path, size, hits, created_at, last_used_at)
		 VALUES (?, ?, ?, ?, ?, 0, ?, ?)
		 ON CONFLICT(word, lang) DO UPDATE SET
			tld = excluded.tld,
			path = excluded.path,
			size = excluded.size,
			last_used_at = excluded.last_used_at`,
		word, lang, tld, path, size, now, now,
	)
	return err
}

// RecordHit bumps the hit counter, creating the entry for files that were
// cached before the index existed.
func (r *SpeechRepository) RecordHit(word, lang, tld, path string, size int64) error {
	now := time.Now()
	_, err := r.db.Exec(
		`INSERT INTO speech_cache (word, lang, tld, path, size, hits, created_at, last_used_at)
		 VALUES (?, ?, ?, ?, ?, 1, ?, ?)
		 ON CONFLICT(word, lang) DO UPDATE SET
			hits = hits + 1,
			last_used_at = excluded.last_used_at`,
		word, lang, tld, path, size, now, now,
	)
	return err
}

// Get retrieves the entry for word in lang.
func (r *SpeechRepository) Get(word, lang string) (*SpeechEntry, error) {
	e := &SpeechEntry{}

	err := r.db.QueryRow(
		`SELECT word, lang, tld, path, size, hits, created_at, last_used_at
		 FROM speech_cache WHERE word = ? AND lang = ?`,
		word, lang,
	).Scan(&e.Word, &e.Lang, &e.TLD, &e.Path, &e.Size, &e.Hits, &e.CreatedAt, &e.LastUsedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return e, nil
}

// List retrieves all entries, most recently used first.
func (r *SpeechRepository) List() ([]*SpeechEntry, error) {
	rows, err := r.db.Query(
		`SELECT word, lang, tld, path, size, hits, created_at, last_used_at
		 FROM speech_cache ORDER BY last_used_at DESC, word ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*SpeechEntry
	for rows.Next() {
		e := &SpeechEntry{}
		if err := rows.Scan(&e.Word, &e.Lang, &e.TLD, &e.Path, &e.Size, &e.Hits, &e.CreatedAt, &e.LastUsedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return entries, nil
}

// TotalSize returns the sum of all cached file sizes.
func (r *SpeechRepository) TotalSize() (int64, error) {
	var total int64
	err := r.db.QueryRow(`SELECT COALESCE(SUM(size), 0) FROM speech_cache`).Scan(&total)
	return total, err
}
