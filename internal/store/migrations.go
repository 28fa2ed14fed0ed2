package store

// migration represents a single schema migration.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered list of all schema migrations.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create documents",
		SQL: `
			CREATE TABLE documents (
				id          TEXT PRIMARY KEY,
				schema_url  TEXT NOT NULL,
				data        TEXT NOT NULL,
				inserted_at TEXT NOT NULL
			);

			CREATE INDEX idx_documents_schema ON documents (schema_url, inserted_at);
		`,
	},
	{
		Version: 2,
		Name:    "create preferences",
		SQL: `
			CREATE TABLE preferences (
				key        TEXT PRIMARY KEY,
				value      TEXT NOT NULL,
				updated_at TEXT NOT NULL DEFAULT (datetime('now'))
			);
		`,
	},
}
