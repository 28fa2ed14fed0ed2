package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/soyeahso/duet/internal/docstore"
)

// DocumentStore implements docstore.Store on the documents table. Text
// filters are pushed into SQL; non-text values are compared in Go.
type DocumentStore struct {
	db  *DB
	now func() time.Time
}

// NewDocumentStore creates a document store using the given database.
func NewDocumentStore(db *DB) *DocumentStore {
	return &DocumentStore{db: db, now: time.Now}
}

var _ docstore.Store = (*DocumentStore)(nil)

// Create stores doc under schema.
func (s *DocumentStore) Create(ctx context.Context, schema string, doc any) (string, error) {
	id := docstore.NewID()
	at := s.now().UTC()
	data, err := docstore.Stamp(doc, id, at)
	if err != nil {
		return "", err
	}
	_, err = s.db.sql.ExecContext(ctx,
		`INSERT INTO documents (id, schema_url, data, inserted_at) VALUES (?, ?, ?, ?)`,
		id, schema, string(data), at.Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", fmt.Errorf("inserting document: %w", err)
	}
	return id, nil
}

// Query returns documents under schema matching filter.
func (s *DocumentStore) Query(ctx context.Context, schema string, filter docstore.Filter, opts docstore.QueryOptions) ([]docstore.Record, error) {
	var sb strings.Builder
	args := []any{schema}
	sb.WriteString(`SELECT data FROM documents WHERE schema_url = ?`)

	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if strings.ContainsAny(k, `"\`) {
			return nil, fmt.Errorf("invalid filter key %q", k)
		}
		path := `$."` + k + `"`
		sb.WriteString(` AND (json_type(data, ?) != 'text' OR json_extract(data, ?) = ?)`)
		args = append(args, path, path, filter[k])
	}

	rows, err := s.db.sql.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var records []docstore.Record
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		rec, err := docstore.ParseRecord(schema, []byte(data))
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return docstore.Apply(records, filter, opts), nil
}
