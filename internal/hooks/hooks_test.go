package hooks

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/duet/internal/logging"
)

func testManager() *Manager {
	return NewManager(logging.New(nil, "silent"))
}

func TestManager_On_And_Emit(t *testing.T) {
	m := testManager()

	var got Payload
	m.On(EventConversationUpdated, "test", func(_ context.Context, p Payload) error {
		got = p
		return nil
	})

	m.Emit(context.Background(), EventConversationUpdated, map[string]any{"conversationId": "abc"})
	assert.Equal(t, EventConversationUpdated, got.Event)
	assert.Equal(t, map[string]any{"conversationId": "abc"}, got.Data)
}

func TestManager_Emit_OrderAndErrors(t *testing.T) {
	m := testManager()

	var order []string
	m.On(EventNotify, "failing", func(_ context.Context, _ Payload) error {
		order = append(order, "failing")
		return errors.New("handler broke")
	})
	m.On(EventNotify, "panicking", func(_ context.Context, _ Payload) error {
		order = append(order, "panicking")
		panic("boom")
	})
	m.On(EventNotify, "last", func(_ context.Context, _ Payload) error {
		order = append(order, "last")
		return nil
	})

	m.Emit(context.Background(), EventNotify, nil)
	assert.Equal(t, []string{"failing", "panicking", "last"}, order)
}

func TestManager_Emit_NoHandlers(t *testing.T) {
	testManager().Emit(context.Background(), EventGatewayStop, nil)
}

func TestManager_Off(t *testing.T) {
	m := testManager()

	var removed, kept int
	m.On(EventMessageStatus, "remove-me", func(_ context.Context, _ Payload) error {
		removed++
		return nil
	})
	m.On(EventMessageStatus, "keep-me", func(_ context.Context, _ Payload) error {
		kept++
		return nil
	})

	m.Emit(context.Background(), EventMessageStatus, nil)
	m.Off(EventMessageStatus, "remove-me")
	m.Emit(context.Background(), EventMessageStatus, nil)

	assert.Equal(t, 1, removed)
	assert.Equal(t, 2, kept)
}

func TestManager_OnEachOffEach(t *testing.T) {
	m := testManager()

	var seen []string
	m.OnEach(SyncEvents, "client-1", func(_ context.Context, p Payload) error {
		seen = append(seen, p.Event)
		return nil
	})
	for _, e := range SyncEvents {
		assert.Equal(t, 1, m.Count(e))
	}

	m.Emit(context.Background(), EventNotify, nil)
	m.Emit(context.Background(), EventMessagesLoaded, nil)
	assert.Equal(t, []string{EventNotify, EventMessagesLoaded}, seen)

	m.OffEach(SyncEvents, "client-1")
	for _, e := range SyncEvents {
		assert.Equal(t, 0, m.Count(e))
	}
}

func TestManager_EmitAsync(t *testing.T) {
	m := testManager()

	var count atomic.Int32
	var wg sync.WaitGroup
	wg.Add(2)
	for _, name := range []string{"async1", "async2"} {
		m.On(EventTwinDrafted, name, func(_ context.Context, _ Payload) error {
			count.Add(1)
			wg.Done()
			return nil
		})
	}

	m.EmitAsync(context.Background(), EventTwinDrafted, nil)

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("async handlers did not complete in time")
	}
	assert.Equal(t, int32(2), count.Load())
}

func TestManager_Events(t *testing.T) {
	m := testManager()

	m.On(EventGatewayStart, "h1", func(_ context.Context, _ Payload) error { return nil })
	m.On(EventNotify, "h2", func(_ context.Context, _ Payload) error { return nil })

	events := m.Events()
	assert.Len(t, events, 2)
	assert.Contains(t, events, EventGatewayStart)
	assert.Contains(t, events, EventNotify)
}

func TestAllEvents(t *testing.T) {
	require.Len(t, AllEvents, len(SyncEvents)+2)
	assert.Contains(t, AllEvents, EventGatewayStart)
	assert.Contains(t, AllEvents, EventConversationUpdated)
	assert.NotContains(t, SyncEvents, EventGatewayStop)
}
