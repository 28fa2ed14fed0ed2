package docstore

import (
	"context"
	"time"

	"github.com/soyeahso/duet/internal/metrics"
)

type instrumented struct {
	next    Store
	backend string
}

// Instrument wraps s so every call is recorded under the backend label.
func Instrument(s Store, backend string) Store {
	return &instrumented{next: s, backend: backend}
}

func (i *instrumented) Create(ctx context.Context, schema string, doc any) (string, error) {
	start := time.Now()
	id, err := i.next.Create(ctx, schema, doc)
	metrics.RecordStoreRequest(i.backend, "create", status(err), time.Since(start).Seconds())
	return id, err
}

func (i *instrumented) Query(ctx context.Context, schema string, filter Filter, opts QueryOptions) ([]Record, error) {
	start := time.Now()
	recs, err := i.next.Query(ctx, schema, filter, opts)
	metrics.RecordStoreRequest(i.backend, "query", status(err), time.Since(start).Seconds())
	return recs, err
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
