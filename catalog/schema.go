package catalog

import "database/sql"

// Schema is the complete catalog schema. One row per deduplicated
// product per run; runs carry the per-run provenance the merge utility
// and viewer need to audit branch attribution.
const Schema = `
CREATE TABLE IF NOT EXISTS runs (
    id             TEXT PRIMARY KEY,
    branch         TEXT NOT NULL,
    started_at     INTEGER NOT NULL,
    finished_at    INTEGER NOT NULL,
    total_products INTEGER NOT NULL DEFAULT 0,
    api_pages      INTEGER NOT NULL DEFAULT 0,
    seed_url       TEXT NOT NULL DEFAULT '',
    break_reason   TEXT NOT NULL DEFAULT '',
    store_outcome  TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS products (
    run_id       TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    id           TEXT NOT NULL,
    name         TEXT NOT NULL,
    price        REAL,
    size_value   REAL,
    size_unit    TEXT NOT NULL DEFAULT '',
    unit_price   REAL,
    url          TEXT NOT NULL DEFAULT '',
    source       TEXT NOT NULL DEFAULT '',
    branch       TEXT NOT NULL DEFAULT '',
    source_page  INTEGER NOT NULL DEFAULT 0,
    api_page     INTEGER NOT NULL DEFAULT 0,
    collected_at INTEGER NOT NULL,
    PRIMARY KEY (run_id, id, url)
);
CREATE INDEX IF NOT EXISTS idx_products_name ON products(name);
CREATE INDEX IF NOT EXISTS idx_products_run ON products(run_id);
`

// ApplySchema creates all tables and indexes on the given database.
func ApplySchema(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
