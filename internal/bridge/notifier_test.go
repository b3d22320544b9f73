package bridge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ernie/minebridge/internal/domain"
)

type fakePoster struct {
	mu   sync.Mutex
	sent []domain.OutboundMessage
	err  error
}

func (p *fakePoster) SendMessage(_ context.Context, channelID string, msg domain.OutboundMessage) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.sent = append(p.sent, msg)
	return "m", nil
}

func newTestNotifier(p *fakePoster) *Notifier {
	n := NewNotifier(p, "bridge-channel", nil)
	n.now = func() time.Time { return time.Date(2025, 1, 1, 9, 8, 7, 0, time.UTC) }
	return n
}

func TestNotifierSuppressesBeforeStart(t *testing.T) {
	p := &fakePoster{}
	n := newTestNotifier(p)
	ctx := context.Background()

	for _, ev := range []domain.GameEvent{
		domain.Chat("Alice", "hello"),
		domain.Leave("Alice"),
		domain.ServerNotice("Alice was slain by Zombie"),
	} {
		sent, err := n.Notify(ctx, ev)
		require.NoError(t, err)
		assert.False(t, sent)
	}
	assert.Empty(t, p.sent)
	assert.False(t, n.Active())
}

func TestNotifierLifecycle(t *testing.T) {
	p := &fakePoster{}
	n := newTestNotifier(p)
	ctx := context.Background()

	sent, err := n.Notify(ctx, domain.ServerStarted())
	require.NoError(t, err)
	assert.False(t, sent, "lifecycle markers are not forwarded")
	assert.True(t, n.Active())

	sent, err = n.Notify(ctx, domain.Chat("Alice", "hello"))
	require.NoError(t, err)
	assert.True(t, sent)

	sent, err = n.Notify(ctx, domain.ServerStopped())
	require.NoError(t, err)
	assert.False(t, sent)
	assert.False(t, n.Active())

	sent, err = n.Notify(ctx, domain.Chat("Alice", "anyone?"))
	require.NoError(t, err)
	assert.False(t, sent)
	assert.Len(t, p.sent, 1)
}

func TestNotifierJoinForceActivates(t *testing.T) {
	p := &fakePoster{}
	n := newTestNotifier(p)
	ctx := context.Background()

	_, _ = n.Notify(ctx, domain.ServerStopped())
	sent, err := n.Notify(ctx, domain.Join("Steve"))
	require.NoError(t, err)
	assert.True(t, sent)
	assert.True(t, n.Active())

	require.Len(t, p.sent, 1)
	card := p.sent[0].Card
	assert.Equal(t, ColorJoin, card.Color)
	assert.Equal(t, ":green_circle: **Steve** has joined the game.", card.Description)
	assert.Equal(t, "https://mc-heads.net/avatar/Steve/64", card.AuthorIcon)
}

func TestNotifierChatScenario(t *testing.T) {
	p := &fakePoster{}
	n := newTestNotifier(p)
	ctx := context.Background()
	_, _ = n.Notify(ctx, domain.ServerStarted())

	sent, err := n.Notify(ctx, domain.Chat("Alice", "hello"))
	require.NoError(t, err)
	require.True(t, sent)

	require.Len(t, p.sent, 1)
	msg := p.sent[0]
	assert.True(t, msg.Silent)
	assert.Equal(t, ColorChat, msg.Card.Color)
	assert.Equal(t, "Alice", msg.Card.AuthorName)
	assert.Equal(t, "https://mc-heads.net/avatar/Alice/64", msg.Card.AuthorIcon)
	assert.Equal(t, "_<09:08:07>_ - **hello**", msg.Card.Description)
}

func TestNotifierNoticeColors(t *testing.T) {
	p := &fakePoster{}
	n := newTestNotifier(p)
	ctx := context.Background()
	_, _ = n.Notify(ctx, domain.ServerStarted())

	_, _ = n.Notify(ctx, domain.ServerNotice("Steve has made the advancement [Stone Age]"))
	_, _ = n.Notify(ctx, domain.ServerNotice("Steve fell from a high place"))

	require.Len(t, p.sent, 2)
	assert.Equal(t, ColorAdvancement, p.sent[0].Card.Color)
	assert.Equal(t, ColorNotice, p.sent[1].Card.Color)
	assert.Empty(t, p.sent[1].Card.AuthorName)
	assert.False(t, p.sent[1].Silent)
}

func TestNotifierWrapsSendFailure(t *testing.T) {
	p := &fakePoster{err: errors.New("rate limited")}
	n := newTestNotifier(p)

	_, err := n.Notify(context.Background(), domain.Join("Steve"))
	var ce *domain.CollaborationError
	require.ErrorAs(t, err, &ce)
	assert.True(t, n.Active(), "join activates even when the send fails")
}
