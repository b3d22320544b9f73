// Package verify runs the per-member verification flow: collect an in-game
// name, confirm it, whitelist it over the remote console, record the
// mapping and grant the verified role.
package verify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ernie/minebridge/internal/domain"
)

// Member-facing messages
const (
	msgWelcome          = "Welcome %s! Please reply with your Minecraft username so we can whitelist you."
	msgHello            = "Hi %s, please reply with your Minecraft username so we can whitelist you."
	msgInvalidName      = "That does not look like a valid Minecraft username. Usernames must be 3-16 characters and contain only letters, numbers, or underscores."
	msgUseButtons       = "Thanks! Use the buttons above to confirm the username, change it, or cancel."
	msgAskAgain         = "Okay, please provide the correct Minecraft username."
	msgPromptFailed     = "Something went wrong showing the confirmation. Please send your Minecraft username again."
	msgNameCleared      = "Name cleared."
	msgCancelled        = "Verification cancelled."
	msgCancelledFinal   = "Verification cancelled. Contact a moderator if you need help."
	msgCompletedFinal   = "%s you are all set. This channel will close shortly."
	msgSuccess          = "Great! %s has been whitelisted. Enjoy the server!"
	msgAlreadyVerified  = "You are already verified."
	msgInProgress       = "Verification is already in progress, hang tight."
	msgStalePrompt      = "This verification prompt is no longer active."
	msgExpiredPrompt    = "This prompt has expired. Please reply with your Minecraft username again."
	msgNotYours         = "Only the member being verified can use these buttons."
	msgWhitelistFailed  = "Failed to run whitelist command: %v"
	msgPersistFailed    = "Verification failed: %v. Please try again."
	reasonVerified      = "Minecraft whitelist verification"
	reasonMissingRecord = "Minecraft whitelist mapping missing"
	reasonComplete      = "Verification complete"
	reasonCancelled     = "Verification cancelled"
)

// Platform is the slice of the chat platform the session manager drives
type Platform interface {
	SendMessage(ctx context.Context, channelID string, msg domain.OutboundMessage) (string, error)
	EditButtons(ctx context.Context, channelID, messageID string, buttons []domain.Button) error
	FindChannelByTopic(ctx context.Context, guildID, topic string) (string, bool, error)
	CreatePrivateChannel(ctx context.Context, guildID string, req ChannelSpec) (string, error)
	GrantChannelAccess(ctx context.Context, channelID, userID string) error
	DeleteChannel(ctx context.Context, channelID, reason string) error
	AddRole(ctx context.Context, guildID, userID, roleID, reason string) error
	RemoveRole(ctx context.Context, guildID, userID, roleID, reason string) error
}

// ChannelSpec describes a private channel visible only to one member and
// the bot
type ChannelSpec struct {
	Name     string
	Topic    string
	MemberID string
	Reason   string
}

// MappingStore answers and records who is verified
type MappingStore interface {
	IsVerified(memberID string) bool
	RecordVerification(ctx context.Context, memberID, name string) error
}

// Acknowledger privately answers the member who pressed a prompt button
type Acknowledger interface {
	Acknowledge(ctx context.Context, text string) error
}

// Settings configures the manager
type Settings struct {
	GuildID        string
	VerifiedRoleID string
	GracePeriod    time.Duration // delay between final message and channel deletion
	PromptTTL      time.Duration // how long a confirmation prompt accepts actions
	BootstrapDelay time.Duration // pause between members during the startup scan
}

func (s *Settings) setDefaults() {
	if s.GracePeriod == 0 {
		s.GracePeriod = 10 * time.Second
	}
	if s.PromptTTL == 0 {
		s.PromptTTL = 5 * time.Minute
	}
	if s.BootstrapDelay == 0 {
		s.BootstrapDelay = 200 * time.Millisecond
	}
}

// Manager owns every verification session.
//
// Sessions are indexed by member and by channel; both maps are only
// touched under mu and always change together. mu is never held across a
// platform, console or store call: state is computed and committed under
// the lock, and the slow work happens between.
type Manager struct {
	cfg      Settings
	platform Platform
	exec     CommandExecutor
	store    MappingStore
	log      *slog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration)
	newID func() string

	mu        sync.Mutex
	byMember  map[string]*Session
	byChannel map[string]*Session
	pending   map[string]struct{} // members whose channel is being prepared

	teardowns sync.WaitGroup
}

// NewManager creates a session manager
func NewManager(cfg Settings, platform Platform, exec CommandExecutor, store MappingStore, logger *slog.Logger) *Manager {
	cfg.setDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:       cfg,
		platform:  platform,
		exec:      exec,
		store:     store,
		log:       logger.With("component", "verify"),
		now:       time.Now,
		sleep:     sleepContext,
		newID:     uuid.NewString,
		byMember:  make(map[string]*Session),
		byChannel: make(map[string]*Session),
		pending:   make(map[string]struct{}),
	}
}

func sleepContext(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// Bootstrap runs EnsureVerification for every member, pausing between
// members to stay under platform rate limits
func (m *Manager) Bootstrap(ctx context.Context, members []domain.Member) {
	m.log.Info("bootstrapping existing members", "count", len(members))
	for _, member := range members {
		if ctx.Err() != nil {
			return
		}
		m.EnsureVerification(ctx, member, false)
		m.sleep(ctx, m.cfg.BootstrapDelay)
	}
}

// NeedsVerification reports whether member should be walked through
// verification: a human in the configured community with no record
func (m *Manager) NeedsVerification(member domain.Member) bool {
	if member.Bot {
		return false
	}
	if member.GuildID != m.cfg.GuildID {
		return false
	}
	return !m.store.IsVerified(member.ID)
}

// EnsureVerification opens a session for member unless it is exempt,
// already verified or already has one. welcome selects the greeting for
// newly joined members. It reports whether a session was created.
func (m *Manager) EnsureVerification(ctx context.Context, member domain.Member, welcome bool) bool {
	if !m.NeedsVerification(member) {
		return false
	}

	if m.cfg.VerifiedRoleID != "" && member.HasRole(m.cfg.VerifiedRoleID) {
		if err := m.platform.RemoveRole(ctx, member.GuildID, member.ID, m.cfg.VerifiedRoleID, reasonMissingRecord); err != nil {
			m.log.Warn("removing stale verified role", "member", member.ID, "error", err)
		} else {
			m.log.Info("removed verified role from member without mapping", "member", member.ID)
		}
	}

	m.mu.Lock()
	_, open := m.byMember[member.ID]
	_, preparing := m.pending[member.ID]
	if open || preparing {
		m.mu.Unlock()
		return false
	}
	m.pending[member.ID] = struct{}{}
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.pending, member.ID)
		m.mu.Unlock()
	}()

	channelID, err := m.channelFor(ctx, member)
	if err != nil {
		m.log.Warn("preparing verification channel", "member", member.ID, "error", err)
		return false
	}

	session := &Session{
		ID:        m.newID(),
		MemberID:  member.ID,
		ChannelID: channelID,
		State:     StateAwaitingName,
		CreatedAt: m.now(),
	}

	m.mu.Lock()
	if other, taken := m.byChannel[channelID]; taken {
		m.mu.Unlock()
		m.log.Warn("channel already bound to another session", "channel", channelID, "member", other.MemberID)
		return false
	}
	m.byMember[member.ID] = session
	m.byChannel[channelID] = session
	m.mu.Unlock()
	m.log.Info("verification session opened", "member", member.ID, "channel", channelID, "session", session.ID)

	intro := msgHello
	if welcome {
		intro = msgWelcome
	}
	if _, err := m.platform.SendMessage(ctx, channelID, domain.OutboundMessage{Text: fmt.Sprintf(intro, member.Mention())}); err != nil {
		m.log.Warn("prompting verification", "member", member.ID, "error", err)
	}
	return true
}

// channelFor reuses the member's marked channel or creates a new one
func (m *Manager) channelFor(ctx context.Context, member domain.Member) (string, error) {
	topic := ChannelTopic(member.ID)
	channelID, found, err := m.platform.FindChannelByTopic(ctx, member.GuildID, topic)
	if err != nil {
		return "", fmt.Errorf("finding verification channel: %w", err)
	}
	if found {
		if err := m.platform.GrantChannelAccess(ctx, channelID, member.ID); err != nil {
			m.log.Warn("restoring verification channel access", "channel", channelID, "error", err)
		}
		return channelID, nil
	}

	channelID, err = m.platform.CreatePrivateChannel(ctx, member.GuildID, ChannelSpec{
		Name:     ChannelName(member),
		Topic:    topic,
		MemberID: member.ID,
		Reason:   reasonVerified,
	})
	if err != nil {
		return "", fmt.Errorf("creating verification channel: %w", err)
	}
	return channelID, nil
}

// HandleReply processes a plain-text message. It reports whether the
// message belonged to a session (right channel and right author).
func (m *Manager) HandleReply(ctx context.Context, msg domain.InboundMessage) bool {
	m.mu.Lock()
	s, ok := m.byChannel[msg.ChannelID]
	if !ok || s.MemberID != msg.AuthorID {
		m.mu.Unlock()
		return false
	}

	switch s.State {
	case StateAwaitingName:
		name := strings.TrimSpace(msg.Content)
		if err := ValidateName(name); err != nil {
			m.mu.Unlock()
			m.log.Debug("rejected candidate name", "member", msg.AuthorID, "error", err)
			m.send(ctx, msg.ChannelID, domain.OutboundMessage{Text: msgInvalidName})
			return true
		}
		s.CandidateName = name
		s.PromptID = ""
		s.State = StateAwaitingConfirmation
		sessionID, channelID := s.ID, s.ChannelID
		m.mu.Unlock()
		m.sendPrompt(ctx, sessionID, channelID, name)

	case StateAwaitingConfirmation, StateConfirming:
		m.mu.Unlock()
		m.send(ctx, msg.ChannelID, domain.OutboundMessage{Text: msgUseButtons})

	default:
		m.mu.Unlock()
	}
	return true
}

func (m *Manager) sendPrompt(ctx context.Context, sessionID, channelID, name string) {
	promptID, err := m.platform.SendMessage(ctx, channelID, ConfirmationPrompt(sessionID, name, false))

	m.mu.Lock()
	s, ok := m.byChannel[channelID]
	if !ok || s.ID != sessionID || s.State != StateAwaitingConfirmation || s.CandidateName != name {
		m.mu.Unlock()
		return
	}
	if err != nil {
		s.CandidateName = ""
		s.State = StateAwaitingName
		m.mu.Unlock()
		m.log.Warn("sending confirmation prompt", "session", sessionID, "error", err)
		m.send(ctx, channelID, domain.OutboundMessage{Text: msgPromptFailed})
		return
	}
	s.PromptID = promptID
	s.PromptExpires = m.now().Add(m.cfg.PromptTTL)
	m.mu.Unlock()
}

// HandleAction applies a prompt button press. Every path answers the
// presser through ack exactly once.
func (m *Manager) HandleAction(ctx context.Context, act domain.InboundAction, ack Acknowledger) {
	m.mu.Lock()
	s, ok := m.byChannel[act.ChannelID]
	switch {
	case !ok || s.ID != act.SessionID:
		m.mu.Unlock()
		m.acknowledge(ctx, ack, msgStalePrompt)
		return
	case s.MemberID != act.UserID:
		m.mu.Unlock()
		m.acknowledge(ctx, ack, msgNotYours)
		return
	case s.State == StateCompleted && act.Kind == domain.ActionConfirm:
		m.mu.Unlock()
		m.acknowledge(ctx, ack, msgAlreadyVerified)
		return
	case s.State == StateConfirming:
		m.mu.Unlock()
		m.acknowledge(ctx, ack, msgInProgress)
		return
	case s.State != StateAwaitingConfirmation || act.MessageID != s.PromptID:
		m.mu.Unlock()
		m.acknowledge(ctx, ack, msgStalePrompt)
		return
	}

	if m.now().After(s.PromptExpires) {
		view := *s
		s.CandidateName = ""
		s.PromptID = ""
		s.State = StateAwaitingName
		m.mu.Unlock()
		m.setButtons(ctx, view, true)
		m.acknowledge(ctx, ack, msgExpiredPrompt)
		return
	}

	switch act.Kind {
	case domain.ActionConfirm:
		s.State = StateConfirming
		view := *s
		m.mu.Unlock()
		m.confirm(ctx, view, ack)

	case domain.ActionChange:
		view := *s
		s.CandidateName = ""
		s.PromptID = ""
		s.State = StateAwaitingName
		m.mu.Unlock()
		m.setButtons(ctx, view, true)
		m.acknowledge(ctx, ack, msgNameCleared)
		m.send(ctx, view.ChannelID, domain.OutboundMessage{Text: msgAskAgain})

	case domain.ActionCancel:
		s.State = StateCancelled
		view := *s
		m.mu.Unlock()
		m.setButtons(ctx, view, true)
		m.acknowledge(ctx, ack, msgCancelled)
		m.log.Info("verification cancelled", "member", view.MemberID, "session", view.ID)
		m.teardown(ctx, view, false)

	default:
		m.mu.Unlock()
		m.acknowledge(ctx, ack, msgStalePrompt)
	}
}

// confirm whitelists, records and grants. s is a copy taken when the
// session moved to StateConfirming.
func (m *Manager) confirm(ctx context.Context, s Session, ack Acknowledger) {
	m.log.Info("processing confirmation", "member", s.MemberID, "name", s.CandidateName)
	m.setButtons(ctx, s, true)

	if err := Whitelist(ctx, m.exec, s.CandidateName); err != nil {
		m.log.Error("whitelist command failed", "member", s.MemberID, "name", s.CandidateName, "error", err)
		m.reopen(ctx, s)
		m.acknowledge(ctx, ack, fmt.Sprintf(msgWhitelistFailed, err))
		return
	}

	if err := m.store.RecordVerification(ctx, s.MemberID, s.CandidateName); err != nil {
		m.log.Error("recording verification failed", "member", s.MemberID, "error", err)
		m.reopen(ctx, s)
		m.acknowledge(ctx, ack, fmt.Sprintf(msgPersistFailed, userFacing(err)))
		return
	}

	if m.cfg.VerifiedRoleID != "" {
		if err := m.platform.AddRole(ctx, m.cfg.GuildID, s.MemberID, m.cfg.VerifiedRoleID, reasonVerified); err != nil {
			m.log.Warn("assigning verified role", "member", s.MemberID, "error", err)
		}
	}

	m.mu.Lock()
	if cur, ok := m.byMember[s.MemberID]; ok && cur.ID == s.ID {
		cur.State = StateCompleted
	}
	m.mu.Unlock()

	m.log.Info("member verified", "member", s.MemberID, "name", s.CandidateName)
	m.acknowledge(ctx, ack, fmt.Sprintf(msgSuccess, s.CandidateName))
	m.teardown(ctx, s, true)
}

// reopen returns a failed confirmation to the prompt so it can be retried
func (m *Manager) reopen(ctx context.Context, s Session) {
	m.mu.Lock()
	cur, ok := m.byMember[s.MemberID]
	reopened := ok && cur.ID == s.ID && cur.State == StateConfirming
	if reopened {
		cur.State = StateAwaitingConfirmation
	}
	m.mu.Unlock()
	if reopened {
		m.setButtons(ctx, s, false)
	}
}

func userFacing(err error) string {
	var pe *domain.PersistenceError
	if errors.As(err, &pe) {
		return "could not save your verification"
	}
	return err.Error()
}

// teardown sends the final message, waits the grace period, deletes the
// channel and drops the session. It runs on its own goroutine and outlives
// the caller's context.
func (m *Manager) teardown(ctx context.Context, s Session, completed bool) {
	ctx = context.WithoutCancel(ctx)
	text, reason := msgCancelledFinal, reasonCancelled
	if completed {
		text, reason = fmt.Sprintf(msgCompletedFinal, domain.MentionUser(s.MemberID)), reasonComplete
	}

	m.teardowns.Add(1)
	go func() {
		defer m.teardowns.Done()
		m.log.Info("starting session cleanup", "member", s.MemberID, "session", s.ID)

		m.send(ctx, s.ChannelID, domain.OutboundMessage{Text: text})
		m.sleep(ctx, m.cfg.GracePeriod)
		if err := m.platform.DeleteChannel(ctx, s.ChannelID, reason); err != nil {
			m.log.Warn("deleting verification channel", "channel", s.ChannelID, "error", err)
		}
		m.remove(s.ID, s.MemberID, s.ChannelID)
		m.log.Info("session cleanup complete", "member", s.MemberID, "session", s.ID)
	}()
}

// remove drops a session from both indices in one critical section
func (m *Manager) remove(sessionID, memberID, channelID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byMember[memberID]
	if !ok || s.ID != sessionID {
		return false
	}
	delete(m.byMember, memberID)
	if c, ok := m.byChannel[channelID]; ok && c.ID == sessionID {
		delete(m.byChannel, channelID)
	}
	return true
}

// HandleChannelDeleted drops the session bound to a channel that was
// removed out from under it
func (m *Manager) HandleChannelDeleted(channelID string) {
	m.mu.Lock()
	s, ok := m.byChannel[channelID]
	m.mu.Unlock()
	if !ok {
		return
	}
	if m.remove(s.ID, s.MemberID, channelID) {
		m.log.Info("verification channel removed, session dropped", "member", s.MemberID, "channel", channelID)
	}
}

// Wait blocks until scheduled channel teardowns have finished
func (m *Manager) Wait() {
	m.teardowns.Wait()
}

// Sessions returns copies of all open sessions ordered by member id
func (m *Manager) Sessions() []Session {
	m.mu.Lock()
	out := make([]Session, 0, len(m.byMember))
	for _, s := range m.byMember {
		out = append(out, *s)
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].MemberID < out[j].MemberID })
	return out
}

// SessionByChannel returns a copy of the session bound to channelID
func (m *Manager) SessionByChannel(channelID string) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byChannel[channelID]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// SessionByMember returns a copy of the session bound to memberID
func (m *Manager) SessionByMember(memberID string) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byMember[memberID]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

func (m *Manager) setButtons(ctx context.Context, s Session, disabled bool) {
	if s.PromptID == "" {
		return
	}
	if err := m.platform.EditButtons(ctx, s.ChannelID, s.PromptID, PromptButtons(s.ID, disabled)); err != nil {
		m.log.Warn("updating confirmation buttons", "session", s.ID, "disabled", disabled, "error", err)
	}
}

func (m *Manager) send(ctx context.Context, channelID string, msg domain.OutboundMessage) {
	if _, err := m.platform.SendMessage(ctx, channelID, msg); err != nil {
		m.log.Warn("sending message", "channel", channelID, "error", err)
	}
}

func (m *Manager) acknowledge(ctx context.Context, ack Acknowledger, text string) {
	if ack == nil {
		return
	}
	if err := ack.Acknowledge(ctx, text); err != nil {
		m.log.Warn("acknowledging action", "error", err)
	}
}
