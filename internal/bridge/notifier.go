// Package bridge relays classified game events to the chat channel while
// the server is live.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ernie/minebridge/internal/domain"
)

// Embed colors per event kind
const (
	ColorChat        = 0xe67a23
	ColorAdvancement = 0xffff00
	ColorNotice      = 0xcc0000
	ColorJoin        = 0x2ecc71
	ColorLeave       = 0xe74c3c
)

// AvatarURL returns the head render for a player name
func AvatarURL(player string) string {
	return fmt.Sprintf("https://mc-heads.net/avatar/%s/64", player)
}

// Poster sends a message to a chat channel
type Poster interface {
	SendMessage(ctx context.Context, channelID string, msg domain.OutboundMessage) (string, error)
}

// Notifier gates bridge notifications on the server lifecycle.
//
// It starts inactive. ServerStarted activates it, ServerStopped deactivates
// it, and Join force-activates it. Nothing else changes the flag.
type Notifier struct {
	poster    Poster
	channelID string
	log       *slog.Logger
	now       func() time.Time

	active atomic.Bool
}

// NewNotifier creates an inactive notifier posting to channelID
func NewNotifier(poster Poster, channelID string, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		poster:    poster,
		channelID: channelID,
		log:       logger.With("component", "bridge"),
		now:       time.Now,
	}
}

// Active reports whether notifications are currently forwarded
func (n *Notifier) Active() bool {
	return n.active.Load()
}

// Notify applies ev to the gate and, when forwarded, emits exactly one
// notification. It reports whether a notification was sent.
func (n *Notifier) Notify(ctx context.Context, ev domain.GameEvent) (bool, error) {
	switch ev.Kind {
	case domain.EventServerStarted:
		if !n.active.Swap(true) {
			n.log.Info("server started, notifications active")
		}
		return false, nil
	case domain.EventServerStopped:
		if n.active.Swap(false) {
			n.log.Info("server stopping, notifications suspended")
		}
		return false, nil
	case domain.EventJoin:
		n.active.Store(true)
	default:
		if !n.active.Load() {
			return false, nil
		}
	}

	msg, ok := n.render(ev)
	if !ok {
		return false, nil
	}
	if _, err := n.poster.SendMessage(ctx, n.channelID, msg); err != nil {
		return false, &domain.CollaborationError{Op: "send notification", Err: err}
	}
	return true, nil
}

func (n *Notifier) render(ev domain.GameEvent) (domain.OutboundMessage, bool) {
	card := &domain.Card{}
	silent := true

	switch ev.Kind {
	case domain.EventChat:
		card.Description = n.stamped(ev.Text)
		card.Color = ColorChat
	case domain.EventServerNotice:
		card.Description = n.stamped(ev.Text)
		card.Color = ColorNotice
		if strings.Contains(ev.Text, "advancement") {
			card.Color = ColorAdvancement
		}
		silent = false
	case domain.EventJoin:
		card.Description = fmt.Sprintf(":green_circle: **%s** has joined the game.", ev.Player)
		card.Color = ColorJoin
	case domain.EventLeave:
		card.Description = fmt.Sprintf(":red_circle: **%s** has left the game.", ev.Player)
		card.Color = ColorLeave
	default:
		return domain.OutboundMessage{}, false
	}

	if ev.HasPlayer() {
		card.AuthorName = ev.Player
		card.AuthorIcon = AvatarURL(ev.Player)
	}
	return domain.OutboundMessage{Card: card, Silent: silent}, true
}

func (n *Notifier) stamped(text string) string {
	return fmt.Sprintf("_<%s>_ - **%s**", n.now().Format("15:04:05"), text)
}
