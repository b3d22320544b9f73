// Package dispatch routes inbound traffic to the component that owns it:
// log lines to the bridge and event sinks, command-channel messages to the
// remote console, and everything else to the verification sessions.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/ernie/minebridge/internal/collector"
	"github.com/ernie/minebridge/internal/domain"
	"github.com/ernie/minebridge/internal/verify"
)

const (
	maxResponseLength = 1800
	truncationMarker  = "..."
	noResponse        = "(no response)"
	msgEmptyCommand   = "Please provide a command to execute."
	msgCommandFailed  = "Failed to execute command: %v"
)

// Notifier receives every classified game event
type Notifier interface {
	Notify(ctx context.Context, ev domain.GameEvent) (bool, error)
}

// EventSink mirrors classified events somewhere else (message bus, feed)
type EventSink interface {
	Publish(ctx context.Context, ev domain.GameEvent) error
}

// Executor runs remote console commands
type Executor interface {
	Execute(ctx context.Context, command string) (string, error)
}

// Replier posts to a chat channel
type Replier interface {
	SendMessage(ctx context.Context, channelID string, msg domain.OutboundMessage) (string, error)
}

// Sessions is the verification flow as seen from the dispatcher
type Sessions interface {
	Bootstrap(ctx context.Context, members []domain.Member)
	EnsureVerification(ctx context.Context, member domain.Member, welcome bool) bool
	HandleReply(ctx context.Context, msg domain.InboundMessage) bool
	HandleAction(ctx context.Context, act domain.InboundAction, ack verify.Acknowledger)
	HandleChannelDeleted(channelID string)
}

// Dispatcher fans inbound events out to their handlers
type Dispatcher struct {
	commandChannelID string
	notifier         Notifier
	exec             Executor
	replier          Replier
	sessions         Sessions
	sinks            []EventSink
	log              *slog.Logger
}

// New creates a dispatcher. Messages posted in commandChannelID are run as
// console commands.
func New(commandChannelID string, notifier Notifier, exec Executor, replier Replier, sessions Sessions, logger *slog.Logger, sinks ...EventSink) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		commandChannelID: commandChannelID,
		notifier:         notifier,
		exec:             exec,
		replier:          replier,
		sessions:         sessions,
		sinks:            sinks,
		log:              logger.With("component", "dispatch"),
	}
}

// HandleLine classifies one raw log line and forwards the event. Lines
// that match nothing are dropped.
func (d *Dispatcher) HandleLine(ctx context.Context, line string) {
	ev, ok := collector.Classify(line)
	if !ok {
		return
	}

	if _, err := d.notifier.Notify(ctx, ev); err != nil {
		d.log.Warn("forwarding event", "kind", ev.Kind, "error", err)
	}
	for _, sink := range d.sinks {
		if err := sink.Publish(ctx, ev); err != nil {
			d.log.Warn("mirroring event", "kind", ev.Kind, "error", err)
		}
	}
}

// HandleMessage routes one chat message. Messages from bots, including
// this one, are ignored.
func (d *Dispatcher) HandleMessage(ctx context.Context, msg domain.InboundMessage) {
	if msg.AuthorBot {
		return
	}
	if d.commandChannelID != "" && msg.ChannelID == d.commandChannelID {
		d.runCommand(ctx, msg)
		return
	}
	d.sessions.HandleReply(ctx, msg)
}

func (d *Dispatcher) runCommand(ctx context.Context, msg domain.InboundMessage) {
	command := strings.TrimSpace(msg.Content)
	d.log.Info("console command received", "channel", msg.ChannelID, "author", msg.AuthorID, "command", command)
	if command == "" {
		d.reply(ctx, msg, msgEmptyCommand)
		return
	}

	response, err := d.exec.Execute(ctx, command)
	if err != nil {
		d.log.Error("console command failed", "command", command, "error", err)
		d.reply(ctx, msg, fmt.Sprintf(msgCommandFailed, err))
		return
	}
	d.reply(ctx, msg, FormatResponse(response))
}

func (d *Dispatcher) reply(ctx context.Context, to domain.InboundMessage, text string) {
	out := domain.OutboundMessage{Text: text, ReplyTo: to.ID}
	if _, err := d.replier.SendMessage(ctx, to.ChannelID, out); err != nil {
		d.log.Warn("replying to console command", "channel", to.ChannelID, "error", err)
	}
}

// FormatResponse renders console output as a fenced block, substituting a
// placeholder for empty output and truncating long output
func FormatResponse(response string) string {
	if response == "" {
		response = noResponse
	}
	if utf8.RuneCountInString(response) > maxResponseLength {
		response = string([]rune(response)[:maxResponseLength]) + truncationMarker
	}
	return "```\n" + response + "\n```"
}

// HandleAction forwards a prompt button press
func (d *Dispatcher) HandleAction(ctx context.Context, act domain.InboundAction, ack verify.Acknowledger) {
	d.sessions.HandleAction(ctx, act, ack)
}

// HandleMemberJoin starts verification for a member who just joined
func (d *Dispatcher) HandleMemberJoin(ctx context.Context, member domain.Member) {
	if d.sessions.EnsureVerification(ctx, member, true) {
		d.log.Info("new member sent to verification", "member", member.ID)
	}
}

// HandleReady scans the existing membership once the platform is connected
func (d *Dispatcher) HandleReady(ctx context.Context, members []domain.Member) {
	d.sessions.Bootstrap(ctx, members)
}

// HandleChannelDeleted drops any session bound to channelID
func (d *Dispatcher) HandleChannelDeleted(channelID string) {
	d.sessions.HandleChannelDeleted(channelID)
}
