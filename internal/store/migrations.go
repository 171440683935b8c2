package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// One row per synthesised word and language
		`CREATE TABLE IF NOT EXISTS speech_cache (
			word TEXT NOT NULL,
			lang TEXT NOT NULL,
			tld TEXT NOT NULL DEFAULT 'com',
			path TEXT NOT NULL,
			size INTEGER NOT NULL DEFAULT 0,
			hits INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			last_used_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (word, lang)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_speech_cache_last_used ON speech_cache(last_used_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
