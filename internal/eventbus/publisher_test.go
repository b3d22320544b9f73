package eventbus

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ernie/minebridge/internal/domain"
)

func startServer(t *testing.T) string {
	t.Helper()
	ns, err := server.NewServer(&server.Options{Host: "127.0.0.1", Port: -1, NoLog: true, NoSigs: true})
	require.NoError(t, err)
	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		t.Fatal("nats server did not start")
	}
	t.Cleanup(ns.Shutdown)
	return ns.ClientURL()
}

func TestPublishUsesKindSubject(t *testing.T) {
	url := startServer(t)

	sub, err := nats.Connect(url)
	require.NoError(t, err)
	defer sub.Close()
	msgs, err := sub.SubscribeSync("test.events.>")
	require.NoError(t, err)
	require.NoError(t, sub.Flush())

	p, err := Connect(url, "test.events", nil)
	require.NoError(t, err)
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return at }

	require.NoError(t, p.Publish(context.Background(), domain.Chat("Alice", "hello")))
	require.NoError(t, p.Publish(context.Background(), domain.ServerStopped()))
	require.NoError(t, p.Close())

	first, err := msgs.NextMsg(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "test.events.chat", first.Subject)
	var env map[string]any
	require.NoError(t, json.Unmarshal(first.Data, &env))
	assert.Equal(t, "chat", env["event"])
	assert.Equal(t, "Alice", env["player"])
	assert.Equal(t, "hello", env["text"])
	assert.Equal(t, "2025-03-01T10:00:00Z", env["timestamp"])

	second, err := msgs.NextMsg(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "test.events.stopped", second.Subject)
}

func TestConnectDefaultsPrefix(t *testing.T) {
	url := startServer(t)

	p, err := Connect(url, "", nil)
	require.NoError(t, err)
	defer p.Close()
	assert.Equal(t, "minebridge.events.join", p.Subject(domain.Join("Steve")))
}

func TestConnectFailsWithoutServer(t *testing.T) {
	_, err := Connect("nats://127.0.0.1:1", "", nil)
	assert.Error(t, err)
}
