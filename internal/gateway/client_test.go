package gateway

import (
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/duet/internal/chatsync"
	"github.com/soyeahso/duet/internal/config"
	"github.com/soyeahso/duet/internal/domain"
	"github.com/soyeahso/duet/internal/logging"
	"github.com/soyeahso/duet/internal/metrics"
	"github.com/soyeahso/duet/internal/twin"
)

func testLog() *logging.Logger {
	return logging.New(nil, "silent")
}

func TestClientRegistry(t *testing.T) {
	reg := NewClientRegistry(testLog())
	assert.Equal(t, 0, reg.Count())

	reg.Add(&Client{ConnID: "conn-1", Info: ClientInfo{ID: "ui"}})
	reg.Add(&Client{ConnID: "conn-2", Info: ClientInfo{ID: "cli"}})
	assert.Equal(t, 2, reg.Count())
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.GatewayClientsActive))

	reg.Remove("conn-1")
	reg.Remove("nonexistent")
	assert.Equal(t, 1, reg.Count())
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.GatewayClientsActive))
}

func TestClientRegistryCloseAll(t *testing.T) {
	reg := NewClientRegistry(testLog())

	// already-closed clients have no socket to close
	for i := range 3 {
		reg.Add(&Client{ConnID: fmt.Sprintf("conn-%d", i), closed: true})
	}
	require.Equal(t, 3, reg.Count())

	reg.CloseAll()
	assert.Equal(t, 0, reg.Count())
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.GatewayClientsActive))
}

func TestClientSendAfterClose(t *testing.T) {
	c := &Client{ConnID: "conn-1", closed: true}
	assert.ErrorIs(t, c.SendEvent("notify", nil, 1), ErrClientClosed)
	assert.ErrorIs(t, c.Respond("req-1", nil), ErrClientClosed)
	assert.NoError(t, c.Close())
}

func TestClientSubscriptions(t *testing.T) {
	c := &Client{ConnID: "conn-1"}
	assert.True(t, c.Wants("conv-a"), "no subscriptions receives everything")

	assert.Equal(t, []string{"conv-a", "conv-b"}, c.Subscribe("conv-b", "conv-a", ""))
	assert.True(t, c.Wants("conv-a"))
	assert.False(t, c.Wants("conv-c"))
	assert.True(t, c.Wants(""), "account-wide events always pass")

	assert.Equal(t, []string{"conv-b"}, c.Unsubscribe("conv-a", "conv-x"))
	assert.False(t, c.Wants("conv-a"))

	assert.Empty(t, c.Unsubscribe("conv-b"))
	assert.True(t, c.Wants("conv-c"))
}

func TestConversationOf(t *testing.T) {
	tests := []struct {
		name string
		data any
		want string
	}{
		{"conversation update", chatsync.ConversationUpdate{Conversation: domain.ConversationHeader{ID: "c1"}}, "c1"},
		{"messages loaded", chatsync.MessagesLoaded{ConversationID: "c2"}, "c2"},
		{"status change", chatsync.StatusChange{ConversationID: "c3"}, "c3"},
		{"notification", chatsync.Notification{ConversationID: "c4"}, "c4"},
		{"account notification", chatsync.Notification{Category: domain.CategoryConnection}, ""},
		{"twin draft", twin.Draft{ConversationID: "c5"}, "c5"},
		{"anything else", map[string]any{"conversationId": "c6"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, conversationOf(tt.data))
		})
	}
}

func TestPublishSkipsClosedClients(t *testing.T) {
	reg := NewClientRegistry(testLog())
	reg.Add(&Client{ConnID: "conn-1", closed: true})
	assert.Zero(t, reg.Publish("notify", chatsync.Notification{}, 1))
}

func TestResolveBindAddr(t *testing.T) {
	tests := []struct {
		name string
		bind string
		port int
		host string
		want string
	}{
		{"loopback", "loopback", 18790, "", "127.0.0.1:18790"},
		{"lan", "lan", 9999, "", "0.0.0.0:9999"},
		{"custom default host", "custom", 3000, "", "0.0.0.0:3000"},
		{"custom host", "custom", 3000, "10.0.0.1", "10.0.0.1:3000"},
		{"custom ipv6 host", "custom", 3000, "::1", "[::1]:3000"},
		{"unknown falls back to loopback", "whatever", 5000, "", "127.0.0.1:5000"},
		{"empty falls back to loopback", "", 5000, "", "127.0.0.1:5000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.GatewayConfig{Bind: tt.bind, Port: tt.port, CustomBindHost: tt.host}
			assert.Equal(t, tt.want, resolveBindAddr(cfg))
		})
	}
}
