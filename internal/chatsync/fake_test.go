package chatsync

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/soyeahso/duet/internal/docstore"
	"github.com/soyeahso/duet/internal/domain"
	"github.com/soyeahso/duet/internal/hooks"
	"github.com/soyeahso/duet/internal/logging"
)

const (
	aliceDID = "did:example:aaa"
	bobDID   = "did:example:bbb"
	carolDID = "did:example:ccc"

	testMessageSchema = "https://example.com/message.json"
	testGroupSchema   = "https://example.com/group.json"
)

var (
	alice = domain.Participant{DID: aliceDID, DisplayName: "Alice"}
	bob   = domain.Participant{DID: bobDID, DisplayName: "Bob"}
	carol = domain.Participant{DID: carolDID, DisplayName: "Carol"}
)

// fakeStore is an in-memory docstore.Store with failure injection and
// gates to hold calls in flight.
type fakeStore struct {
	mu      sync.Mutex
	docs    map[string][]docstore.Record
	seq     int
	creates int
	queries int

	createErr error
	queryErr  error
	// coarse ignores every filter field except groupId and ownerDid.
	coarse bool

	createGate chan struct{}
	queryGate  chan struct{}
	queryCalls chan struct{}
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		docs:       make(map[string][]docstore.Record),
		queryCalls: make(chan struct{}, 64),
	}
}

func (f *fakeStore) Create(ctx context.Context, schema string, doc any) (string, error) {
	f.mu.Lock()
	f.creates++
	gate, err := f.createGate, f.createErr
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	id := docstore.NewID()
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(f.seq) * time.Millisecond)
	data, err := docstore.Stamp(doc, id, at)
	if err != nil {
		return "", err
	}
	rec, err := docstore.ParseRecord(schema, data)
	if err != nil {
		return "", err
	}
	f.docs[schema] = append(f.docs[schema], rec)
	return id, nil
}

func (f *fakeStore) Query(ctx context.Context, schema string, filter docstore.Filter, opts docstore.QueryOptions) ([]docstore.Record, error) {
	f.mu.Lock()
	f.queries++
	gate, err := f.queryGate, f.queryErr
	f.mu.Unlock()
	select {
	case f.queryCalls <- struct{}{}:
	default:
	}

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.coarse {
		narrowed := docstore.Filter{}
		for _, k := range []string{"groupId", "ownerDid"} {
			if v, ok := filter[k]; ok {
				narrowed[k] = v
			}
		}
		filter = narrowed
	}
	return docstore.Apply(f.docs[schema], filter, opts), nil
}

func (f *fakeStore) put(t *testing.T, schema string, doc any) {
	t.Helper()
	f.mu.Lock()
	gate, err := f.createGate, f.createErr
	f.createGate, f.createErr = nil, nil
	f.mu.Unlock()
	_, cerr := f.Create(context.Background(), schema, doc)
	require.NoError(t, cerr)
	f.mu.Lock()
	f.createGate, f.createErr = gate, err
	f.creates--
	f.mu.Unlock()
}

func (f *fakeStore) set(fn func(f *fakeStore)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeStore) counts() (creates, queries int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creates, f.queries
}

// recorder captures emitted events.
type recorder struct {
	mu     sync.Mutex
	events []hooks.Payload
}

func (r *recorder) attach(hm *hooks.Manager) {
	hm.OnEach(hooks.SyncEvents, "recorder", func(_ context.Context, p hooks.Payload) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.events = append(r.events, p)
		return nil
	})
}

func (r *recorder) of(event string) []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []any
	for _, p := range r.events {
		if p.Event == event {
			out = append(out, p.Data)
		}
	}
	return out
}

func (r *recorder) notifications() []Notification {
	var out []Notification
	for _, d := range r.of(hooks.EventNotify) {
		out = append(out, d.(Notification))
	}
	return out
}

func testLogger() *logging.Logger {
	return logging.New(nil, "silent")
}

func newTestAdapter(store docstore.Store, self string, mode DedupeMode) *Adapter {
	return NewAdapter(store, AdapterConfig{
		MessageSchema: testMessageSchema,
		GroupSchema:   testGroupSchema,
		SelfDID:       self,
		DedupeBy:      mode,
	}, testLogger())
}

type harness struct {
	store *fakeStore
	sync  *Synchronizer
	rec   *recorder
}

func newHarness(t *testing.T, delay time.Duration) *harness {
	t.Helper()
	store := newFakeStore()
	hm := hooks.NewManager(testLogger())
	rec := &recorder{}
	rec.attach(hm)

	s, err := New(newTestAdapter(store, aliceDID, DedupeByID), hm, testLogger(), Options{
		Self:           alice,
		ReconcileDelay: delay,
	})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return &harness{store: store, sync: s, rec: rec}
}

func waitForQuery(t *testing.T, f *fakeStore) {
	t.Helper()
	select {
	case <-f.queryCalls:
	case <-time.After(2 * time.Second):
		t.Fatal("query was not issued")
	}
}
