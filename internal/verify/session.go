package verify

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/ernie/minebridge/internal/domain"
)

// State is the position of a session in the verification state machine
type State int

const (
	StateAwaitingName State = iota
	StateAwaitingConfirmation
	StateConfirming // whitelist/persist round trip in flight
	StateCompleted
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateAwaitingName:
		return "awaiting_name"
	case StateAwaitingConfirmation:
		return "awaiting_confirmation"
	case StateConfirming:
		return "confirming"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	}
	return "unknown"
}

// MarshalText renders the state by name
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether the session is being torn down
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCancelled
}

// Session is one member's in-progress verification
type Session struct {
	ID            string    `json:"id"`
	MemberID      string    `json:"member_id"`
	ChannelID     string    `json:"channel_id"`
	CandidateName string    `json:"candidate_name,omitempty"`
	PromptID      string    `json:"prompt_id,omitempty"`
	PromptExpires time.Time `json:"prompt_expires,omitzero"`
	State         State     `json:"state"`
	CreatedAt     time.Time `json:"created_at"`
}

// ChannelTopic is the marker that identifies a member's verification
// channel across restarts
func ChannelTopic(memberID string) string {
	return "Verification channel for " + memberID
}

// ChannelName builds the verification channel name for a member
func ChannelName(m domain.Member) string {
	prefix := truncateRunes(fmt.Sprintf("verify-%s-", m.DisplayName), 80)
	suffix := m.ID
	if len(suffix) > 6 {
		suffix = suffix[len(suffix)-6:]
	}
	return prefix + suffix
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

// ConfirmationPrompt builds the card and buttons asking the member to
// confirm name
func ConfirmationPrompt(sessionID, name string, disabled bool) domain.OutboundMessage {
	return domain.OutboundMessage{
		Card: &domain.Card{
			Description: fmt.Sprintf("Is **%s** your Minecraft username?", name),
			Color:       0x2ecc71,
			Thumbnail:   fmt.Sprintf("https://mc-heads.net/avatar/%s/64", name),
			Image:       fmt.Sprintf("https://mc-heads.net/body/%s", name),
		},
		Buttons: PromptButtons(sessionID, disabled),
	}
}

// PromptButtons lists the confirm, change and cancel controls
func PromptButtons(sessionID string, disabled bool) []domain.Button {
	kinds := []domain.ActionKind{domain.ActionConfirm, domain.ActionChange, domain.ActionCancel}
	buttons := make([]domain.Button, len(kinds))
	for i, k := range kinds {
		buttons[i] = domain.Button{Action: k, SessionID: sessionID, Disabled: disabled}
	}
	return buttons
}
