package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/duet/internal/docstore"
	"github.com/soyeahso/duet/internal/logging"
)

const msgSchema = "https://common.schemas.verida.io/social/chat/message/v0.1.0/schema.json"

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:", logging.New(nil, "silent"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// --- DB/Migration tests ---

func TestMigrations_Applied(t *testing.T) {
	db := testDB(t)

	var count int
	require.NoError(t, db.sql.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
	assert.Equal(t, len(migrations), count)
}

func TestMigrations_Idempotent(t *testing.T) {
	db := testDB(t)
	require.NoError(t, db.migrate())

	var count int
	require.NoError(t, db.sql.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
	assert.Equal(t, len(migrations), count)
}

func TestSchema_TablesExist(t *testing.T) {
	db := testDB(t)
	for _, table := range []string{"documents", "preferences"} {
		var name string
		err := db.sql.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
	}
}

func TestOpen_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "duet.db")
	db, err := Open(path, logging.New(nil, "silent"))
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// reopening runs no migrations twice
	db, err = Open(path, logging.New(nil, "silent"))
	require.NoError(t, err)
	defer db.Close()
	var count int
	require.NoError(t, db.SQL().QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
	assert.Equal(t, len(migrations), count)
}

// --- DocumentStore tests ---

func TestDocumentStore_CreateAndQuery(t *testing.T) {
	s := NewDocumentStore(testDB(t))
	ctx := context.Background()

	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	_, err := s.Create(ctx, msgSchema, map[string]any{"groupId": "g1", "groupName": "A & B", "messageText": "one"})
	require.NoError(t, err)
	_, err = s.Create(ctx, msgSchema, map[string]any{"groupId": "g2", "groupName": "A & C", "messageText": "other"})
	require.NoError(t, err)
	id3, err := s.Create(ctx, msgSchema, map[string]any{"groupId": "g1", "groupName": "A & B (old)", "messageText": "two"})
	require.NoError(t, err)

	recs, err := s.Query(ctx, msgSchema, docstore.Filter{"groupId": "g1"}, docstore.QueryOptions{})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, id3, recs[1].ID)
	assert.True(t, base.Add(3*time.Second).Equal(recs[1].InsertedAt))

	recs, err = s.Query(ctx, msgSchema, docstore.Filter{"groupId": "g1", "groupName": "A & B"}, docstore.QueryOptions{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	var body map[string]string
	require.NoError(t, recs[0].Decode(&body))
	assert.Equal(t, "one", body["messageText"])

	recs, err = s.Query(ctx, msgSchema, nil, docstore.QueryOptions{Descending: true, Limit: 1})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, id3, recs[0].ID)
}

func TestDocumentStore_SchemaIsolation(t *testing.T) {
	s := NewDocumentStore(testDB(t))
	ctx := context.Background()

	_, err := s.Create(ctx, msgSchema, map[string]string{"groupId": "g1"})
	require.NoError(t, err)

	recs, err := s.Query(ctx, "https://example.com/other.json", docstore.Filter{"groupId": "g1"}, docstore.QueryOptions{})
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestDocumentStore_RejectsBadFilterKey(t *testing.T) {
	s := NewDocumentStore(testDB(t))
	_, err := s.Query(context.Background(), msgSchema, docstore.Filter{`a"b`: "x"}, docstore.QueryOptions{})
	assert.Error(t, err)
}

func TestDocumentStore_BooleanFilter(t *testing.T) {
	s := NewDocumentStore(testDB(t))
	ctx := context.Background()
	_, err := s.Create(ctx, msgSchema, map[string]any{"groupId": "g1", "aiGenerated": true})
	require.NoError(t, err)

	recs, err := s.Query(ctx, msgSchema, docstore.Filter{"aiGenerated": "true"}, docstore.QueryOptions{})
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	recs, err = s.Query(ctx, msgSchema, docstore.Filter{"aiGenerated": "false"}, docstore.QueryOptions{})
	require.NoError(t, err)
	assert.Empty(t, recs)

	recs, err = s.Query(ctx, msgSchema, docstore.Filter{"missing": "x"}, docstore.QueryOptions{})
	require.NoError(t, err)
	assert.Empty(t, recs)
}

// --- Preferences tests ---

func TestPreferences(t *testing.T) {
	p := NewPreferences(testDB(t))
	ctx := context.Background()

	_, ok, err := p.Get(ctx, PrefDisplayName)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, p.Set(ctx, PrefDisplayName, "Alice"))
	require.NoError(t, p.Set(ctx, PrefDisplayName, "Alicia"))
	v, ok, err := p.Get(ctx, PrefDisplayName)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Alicia", v)
}

func TestPreferences_LastSync(t *testing.T) {
	p := NewPreferences(testDB(t))
	ctx := context.Background()

	last, err := p.LastSync(ctx)
	require.NoError(t, err)
	assert.True(t, last.IsZero())

	now := time.Date(2026, 5, 1, 10, 0, 0, 5, time.UTC)
	require.NoError(t, p.MarkSynced(ctx, now))
	last, err = p.LastSync(ctx)
	require.NoError(t, err)
	assert.True(t, now.Equal(last))
}
