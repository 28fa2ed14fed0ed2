// Package docstore is the client side of the remote per-user document
// store. Documents are JSON objects grouped by schema URL and queried by
// metadata equality only.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// ErrUnauthenticated is returned when the store rejects or lacks credentials.
var ErrUnauthenticated = errors.New("docstore: not authenticated")

// Filter matches documents whose top-level fields equal the given values.
type Filter map[string]string

// QueryOptions limits a query. Results are always ordered by insertion time.
type QueryOptions struct {
	Limit int
	// Descending returns newest documents first.
	Descending bool
}

// Record is a stored document.
type Record struct {
	ID         string          `json:"_id"`
	Schema     string          `json:"-"`
	InsertedAt time.Time       `json:"insertedAt"`
	Data       json.RawMessage `json:"-"`
}

// Decode unmarshals the document body into v.
func (r Record) Decode(v any) error {
	return json.Unmarshal(r.Data, v)
}

// Store is a remote document store.
type Store interface {
	// Create stores doc under schema and returns the assigned document id.
	Create(ctx context.Context, schema string, doc any) (string, error)
	// Query returns documents under schema matching filter.
	Query(ctx context.Context, schema string, filter Filter, opts QueryOptions) ([]Record, error)
}

// RemoteError is a non-success response from a remote store. Body holds the
// raw response for diagnostics.
type RemoteError struct {
	StatusCode int
	Body       string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("docstore: status %d", e.StatusCode)
}

// Unwrap maps auth failures onto ErrUnauthenticated.
func (e *RemoteError) Unwrap() error {
	if e.StatusCode == 401 || e.StatusCode == 403 {
		return ErrUnauthenticated
	}
	return nil
}

// NewID returns a time-ordered document id.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Stamp marshals doc and sets the _id and insertedAt fields used by embedded
// backends.
func Stamp(doc any, id string, at time.Time) (json.RawMessage, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("docstore: marshal document: %w", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("docstore: document must be a JSON object: %w", err)
	}
	fields["_id"] = id
	fields["insertedAt"] = at.UTC().Format(time.RFC3339Nano)
	return json.Marshal(fields)
}

// ParseRecord builds a Record from a stored document body.
func ParseRecord(schema string, data json.RawMessage) (Record, error) {
	rec := Record{Schema: schema, Data: data}
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("docstore: decode record: %w", err)
	}
	return rec, nil
}

// Matches reports whether every filter field equals the document's
// top-level value. Non-string values are compared by their JSON text.
func Matches(data json.RawMessage, filter Filter) bool {
	if len(filter) == 0 {
		return true
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return false
	}
	for k, want := range filter {
		raw, ok := fields[k]
		if !ok {
			return false
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			s = string(raw)
		}
		if s != want {
			return false
		}
	}
	return true
}

// Apply filters, orders and limits records in memory for backends that
// cannot do it server side.
func Apply(records []Record, filter Filter, opts QueryOptions) []Record {
	out := records[:0:0]
	for _, r := range records {
		if Matches(r.Data, filter) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if opts.Descending {
			return out[i].InsertedAt.After(out[j].InsertedAt)
		}
		return out[i].InsertedAt.Before(out[j].InsertedAt)
	})
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out
}
