package domain

import "fmt"

// Member is a chat-platform community member as seen by the core
type Member struct {
	ID          string
	GuildID     string
	DisplayName string
	Bot         bool
	RoleIDs     []string
}

// HasRole reports whether the member currently holds roleID
func (m Member) HasRole(roleID string) bool {
	for _, id := range m.RoleIDs {
		if id == roleID {
			return true
		}
	}
	return false
}

// Mention renders the platform mention markup for the member
func (m Member) Mention() string {
	return MentionUser(m.ID)
}

// MentionUser renders the platform mention markup for a user id
func MentionUser(userID string) string {
	return fmt.Sprintf("<@%s>", userID)
}

// Card is a rich message body (an embed on Discord)
type Card struct {
	Description string
	Color       int
	AuthorName  string
	AuthorIcon  string
	Thumbnail   string
	Image       string
}

// ActionKind names one of the interactive controls on a confirmation prompt
type ActionKind string

// Confirmation prompt actions
const (
	ActionConfirm ActionKind = "confirm"
	ActionChange  ActionKind = "change"
	ActionCancel  ActionKind = "cancel"
)

// Valid reports whether k is one of the known actions
func (k ActionKind) Valid() bool {
	switch k {
	case ActionConfirm, ActionChange, ActionCancel:
		return true
	}
	return false
}

// Button is an interactive control bound to a verification session
type Button struct {
	Action    ActionKind
	SessionID string
	Disabled  bool
}

// OutboundMessage is what the core asks the chat platform to send
type OutboundMessage struct {
	Text    string
	Card    *Card
	Buttons []Button
	Silent  bool   // deliver without a push notification
	ReplyTo string // message id to reply to, without pinging its author
}

// InboundMessage is a plain-text message received from the chat platform
type InboundMessage struct {
	ID        string
	ChannelID string
	GuildID   string
	AuthorID  string
	AuthorBot bool
	Content   string
}

// InboundAction is a press of one of a prompt's interactive controls
type InboundAction struct {
	Kind      ActionKind
	SessionID string
	ChannelID string
	MessageID string
	UserID    string
}
