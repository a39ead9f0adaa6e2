package sqlite

const schema = `
-- Latency probe results
CREATE TABLE IF NOT EXISTS probe_results (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    latency_ms INTEGER,
    success BOOLEAN NOT NULL,
    error_message TEXT NOT NULL DEFAULT '',
    strategy TEXT NOT NULL DEFAULT 'http',
    duration_ms INTEGER NOT NULL DEFAULT 0,
    tested_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

-- Application settings
CREATE TABLE IF NOT EXISTS settings (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

-- Active connection tracking
CREATE TABLE IF NOT EXISTS active_connection (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    core_type TEXT NOT NULL,
    name TEXT NOT NULL DEFAULT '',
    socks_port INTEGER NOT NULL,
    api_port INTEGER NOT NULL,
    started_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

-- Indexes for performance
CREATE INDEX IF NOT EXISTS idx_probe_results_tested_at ON probe_results(tested_at);

-- Triggers for updated_at
CREATE TRIGGER IF NOT EXISTS update_settings_timestamp AFTER UPDATE ON settings
BEGIN
    UPDATE settings SET updated_at = CURRENT_TIMESTAMP WHERE key = NEW.key;
END;
`

const defaultData = `
-- Insert default settings
INSERT OR IGNORE INTO settings (key, value) VALUES
    ('active_core', 'xray'),
    ('probe_history_keep', '1000');
`

// runMigrations executes the database schema and default data
func runMigrations(db *DB) error {
	if _, err := db.db.Exec(schema); err != nil {
		return err
	}

	if _, err := db.db.Exec(defaultData); err != nil {
		return err
	}

	return nil
}
