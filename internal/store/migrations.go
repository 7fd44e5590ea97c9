package store

// runMigrations creates the schema. Statements are idempotent.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Calibration profiles, newest restored at start
		`CREATE TABLE IF NOT EXISTS profiles (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			center_x REAL NOT NULL,
			center_y REAL NOT NULL,
			min_x REAL NOT NULL,
			max_x REAL NOT NULL,
			min_y REAL NOT NULL,
			max_y REAL NOT NULL,
			blink_threshold REAL NOT NULL DEFAULT 0,
			mouth_threshold REAL NOT NULL DEFAULT 0,
			screen_w INTEGER NOT NULL DEFAULT 0,
			screen_h INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL
		)`,

		// Gesture to action bindings
		`CREATE TABLE IF NOT EXISTS bindings (
			id TEXT PRIMARY KEY,
			event TEXT NOT NULL,
			action TEXT NOT NULL,
			plugin TEXT NOT NULL DEFAULT '',
			command TEXT NOT NULL DEFAULT '',
			enabled INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL,
			UNIQUE(event, action, plugin, command)
		)`,

		// Key/value settings; "config" holds the JSON configuration overlay
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		// Dispatched actions
		`CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			event TEXT NOT NULL,
			action TEXT NOT NULL,
			plugin TEXT NOT NULL DEFAULT '',
			command TEXT NOT NULL DEFAULT '',
			value REAL NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT '',
			at DATETIME NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_profiles_created_at ON profiles(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_bindings_event ON bindings(event)`,
		`CREATE INDEX IF NOT EXISTS idx_events_session_at ON events(session_id, at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}
	return nil
}
