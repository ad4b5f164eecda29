package sqlite

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// InitDB opens (creating if needed) the database at path and applies the
// schema. Write transactions take the database lock up front
// (_txlock=immediate) so concurrent upserts of one entity are serialised.
func InitDB(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_txlock=immediate&_busy_timeout=10000&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS listings (
		listing_id           TEXT PRIMARY KEY,
		entity_name          TEXT NOT NULL,
		entity_type          TEXT NOT NULL,
		slug                 TEXT NOT NULL,
		fields               TEXT NOT NULL DEFAULT '{}',
		field_confidence     TEXT NOT NULL DEFAULT '{}',
		source_info          TEXT NOT NULL DEFAULT '{}',
		canonical_categories TEXT NOT NULL DEFAULT '[]',
		created_at           DATETIME NOT NULL,
		updated_at           DATETIME NOT NULL,
		UNIQUE (entity_name, entity_type)
	);
	CREATE INDEX IF NOT EXISTS idx_listings_slug ON listings(slug);
	CREATE INDEX IF NOT EXISTS idx_listings_type ON listings(entity_type);

	CREATE TABLE IF NOT EXISTS entities (
		listing_id       TEXT PRIMARY KEY REFERENCES listings(listing_id) ON DELETE CASCADE,
		entity_type      TEXT NOT NULL,
		fields           TEXT NOT NULL DEFAULT '{}',
		field_confidence TEXT NOT NULL DEFAULT '{}',
		updated_at       DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS merge_history (
		id               INTEGER PRIMARY KEY AUTOINCREMENT,
		listing_id       TEXT NOT NULL,
		field            TEXT NOT NULL,
		action           TEXT NOT NULL,
		old_value        TEXT DEFAULT 'null',
		new_value        TEXT DEFAULT 'null',
		old_confidence   REAL NOT NULL DEFAULT 0,
		new_confidence   REAL NOT NULL DEFAULT 0,
		final_confidence REAL NOT NULL DEFAULT 0,
		threshold        REAL NOT NULL,
		source           TEXT DEFAULT '',
		message          TEXT DEFAULT '',
		merged_at        DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_mh_listing ON merge_history(listing_id);
	CREATE INDEX IF NOT EXISTS idx_mh_date ON merge_history(merged_at);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	// Migration: add last_source column if missing.
	var colCount int
	if err := db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('listings') WHERE name = 'last_source'`).Scan(&colCount); err != nil {
		db.Close()
		return nil, fmt.Errorf("inspect listings columns: %w", err)
	}
	if colCount == 0 {
		if _, err := db.Exec(`ALTER TABLE listings ADD COLUMN last_source TEXT DEFAULT ''`); err != nil {
			db.Close()
			return nil, fmt.Errorf("add listings.last_source: %w", err)
		}
	}

	return db, nil
}
