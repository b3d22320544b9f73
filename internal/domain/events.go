package domain

import (
	"encoding/json"
	"time"
)

// EventKind identifies the variant carried by a GameEvent
type EventKind int

// Event kinds produced by the line classifier
const (
	EventChat EventKind = iota + 1
	EventJoin
	EventLeave
	EventServerNotice
	EventServerStarted
	EventServerStopped
)

var eventKindNames = map[EventKind]string{
	EventChat:          "chat",
	EventJoin:          "join",
	EventLeave:         "leave",
	EventServerNotice:  "notice",
	EventServerStarted: "started",
	EventServerStopped: "stopped",
}

func (k EventKind) String() string {
	if name, ok := eventKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// MarshalText renders the kind by name so mirrored events stay readable
func (k EventKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// GameEvent is one typed event parsed from a single server log line.
//
// Player is set for Chat, Join and Leave. Text is set for Chat and
// ServerNotice. Started and Stopped carry neither.
type GameEvent struct {
	Kind   EventKind
	Player string
	Text   string
}

// Chat builds a chat event
func Chat(player, text string) GameEvent {
	return GameEvent{Kind: EventChat, Player: player, Text: text}
}

// Join builds a join event
func Join(player string) GameEvent {
	return GameEvent{Kind: EventJoin, Player: player}
}

// Leave builds a leave event
func Leave(player string) GameEvent {
	return GameEvent{Kind: EventLeave, Player: player}
}

// ServerNotice builds a generic informational event
func ServerNotice(text string) GameEvent {
	return GameEvent{Kind: EventServerNotice, Text: text}
}

// ServerStarted marks the remote console as reachable
func ServerStarted() GameEvent {
	return GameEvent{Kind: EventServerStarted}
}

// ServerStopped marks the server stopping or (re)starting
func ServerStopped() GameEvent {
	return GameEvent{Kind: EventServerStopped}
}

// HasPlayer reports whether a player name is attached to the event
func (e GameEvent) HasPlayer() bool {
	return e.Player != ""
}

// Envelope is the wire form of a GameEvent for mirrors (NATS, websocket)
type Envelope struct {
	Kind      EventKind `json:"event"`
	Player    string    `json:"player,omitempty"`
	Text      string    `json:"text,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Encode serializes the event with the observation time attached
func (e GameEvent) Encode(at time.Time) ([]byte, error) {
	return json.Marshal(Envelope{
		Kind:      e.Kind,
		Player:    e.Player,
		Text:      e.Text,
		Timestamp: at.UTC(),
	})
}
