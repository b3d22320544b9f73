package verify

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ernie/minebridge/internal/domain"
)

type sentMessage struct {
	ChannelID string
	ID        string
	Msg       domain.OutboundMessage
}

type buttonEdit struct {
	ChannelID string
	MessageID string
	Buttons   []domain.Button
}

type fakePlatform struct {
	mu       sync.Mutex
	next     int
	sent     []sentMessage
	edits    []buttonEdit
	created  []ChannelSpec
	existing map[string]string // topic -> channel id
	granted  []string
	deleted  []string
	added    []string
	removed  []string
	sendErr  error
	cardErr  error // fails only messages carrying a card
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{existing: map[string]string{}}
}

func (p *fakePlatform) id(prefix string) string {
	p.next++
	return fmt.Sprintf("%s-%d", prefix, p.next)
}

func (p *fakePlatform) SendMessage(_ context.Context, channelID string, msg domain.OutboundMessage) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sendErr != nil {
		return "", p.sendErr
	}
	if p.cardErr != nil && msg.Card != nil {
		return "", p.cardErr
	}
	id := p.id("msg")
	p.sent = append(p.sent, sentMessage{ChannelID: channelID, ID: id, Msg: msg})
	return id, nil
}

func (p *fakePlatform) EditButtons(_ context.Context, channelID, messageID string, buttons []domain.Button) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.edits = append(p.edits, buttonEdit{ChannelID: channelID, MessageID: messageID, Buttons: buttons})
	return nil
}

func (p *fakePlatform) FindChannelByTopic(_ context.Context, _, topic string) (string, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id, ok := p.existing[topic]
	return id, ok, nil
}

func (p *fakePlatform) CreatePrivateChannel(_ context.Context, _ string, req ChannelSpec) (string, error) {
	time.Sleep(time.Millisecond)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.created = append(p.created, req)
	id := p.id("chan")
	p.existing[req.Topic] = id
	return id, nil
}

func (p *fakePlatform) GrantChannelAccess(_ context.Context, channelID, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.granted = append(p.granted, channelID)
	return nil
}

func (p *fakePlatform) DeleteChannel(_ context.Context, channelID, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deleted = append(p.deleted, channelID)
	return nil
}

func (p *fakePlatform) AddRole(_ context.Context, _, userID, roleID, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.added = append(p.added, userID+":"+roleID)
	return nil
}

func (p *fakePlatform) RemoveRole(_ context.Context, _, userID, roleID, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removed = append(p.removed, userID+":"+roleID)
	return nil
}

func (p *fakePlatform) messagesIn(channelID string) []sentMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []sentMessage
	for _, s := range p.sent {
		if s.ChannelID == channelID {
			out = append(out, s)
		}
	}
	return out
}

func (p *fakePlatform) lastEdit() buttonEdit {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.edits) == 0 {
		return buttonEdit{}
	}
	return p.edits[len(p.edits)-1]
}

type fakeStore struct {
	mu      sync.Mutex
	records map[string]string
	writes  int
	failErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: map[string]string{}}
}

func (s *fakeStore) IsVerified(memberID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[memberID]
	return ok
}

func (s *fakeStore) RecordVerification(_ context.Context, memberID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return &domain.PersistenceError{Op: "write", Err: s.failErr}
	}
	s.writes++
	s.records[memberID] = name
	return nil
}

type fakeExec struct {
	mu        sync.Mutex
	commands  []string
	responses []string // consumed in order; the last one repeats
	err       error
}

func (e *fakeExec) Execute(_ context.Context, command string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.commands = append(e.commands, command)
	if e.err != nil {
		return "", e.err
	}
	resp := e.responses[0]
	if len(e.responses) > 1 {
		e.responses = e.responses[1:]
	}
	return resp, nil
}

type ackRecorder struct {
	mu    sync.Mutex
	texts []string
}

func (a *ackRecorder) Acknowledge(_ context.Context, text string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.texts = append(a.texts, text)
	return nil
}

func (a *ackRecorder) last() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.texts) == 0 {
		return ""
	}
	return a.texts[len(a.texts)-1]
}

type harness struct {
	m        *Manager
	platform *fakePlatform
	store    *fakeStore
	exec     *fakeExec
	clock    time.Time
	release  chan struct{} // closing it lets teardown grace periods finish
}

const (
	testGuild = "guild-1"
	testRole  = "role-verified"
)

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		platform: newFakePlatform(),
		store:    newFakeStore(),
		exec:     &fakeExec{responses: []string{"Added Steve_1 to the whitelist"}},
		clock:    time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC),
		release:  make(chan struct{}),
	}
	h.m = NewManager(Settings{GuildID: testGuild, VerifiedRoleID: testRole}, h.platform, h.exec, h.store, nil)
	h.m.now = func() time.Time { return h.clock }
	h.m.sleep = func(ctx context.Context, d time.Duration) {
		if d == h.m.cfg.GracePeriod {
			<-h.release
		}
	}
	ids := 0
	h.m.newID = func() string {
		ids++
		return fmt.Sprintf("session-%d", ids)
	}
	t.Cleanup(func() {
		select {
		case <-h.release:
		default:
			close(h.release)
		}
		h.m.Wait()
	})
	return h
}

func (h *harness) finishTeardowns() {
	close(h.release)
	h.m.Wait()
}

func member(id string) domain.Member {
	return domain.Member{ID: id, GuildID: testGuild, DisplayName: "player" + id}
}

// requireConsistent checks that both indices hold exactly the same sessions
func requireConsistent(t *testing.T, m *Manager) {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.Equal(t, len(m.byMember), len(m.byChannel))
	for memberID, s := range m.byMember {
		require.Equal(t, memberID, s.MemberID)
		require.Same(t, s, m.byChannel[s.ChannelID])
	}
	for channelID, s := range m.byChannel {
		require.Equal(t, channelID, s.ChannelID)
		require.Same(t, s, m.byMember[s.MemberID])
	}
}

// openPrompt walks member id to the confirmation prompt and returns the
// session as it stands
func (h *harness) openPrompt(t *testing.T, id, name string) Session {
	t.Helper()
	ctx := context.Background()
	require.True(t, h.m.EnsureVerification(ctx, member(id), true))
	s, ok := h.m.SessionByMember(id)
	require.True(t, ok)
	require.True(t, h.m.HandleReply(ctx, domain.InboundMessage{ChannelID: s.ChannelID, AuthorID: id, Content: name}))
	s, _ = h.m.SessionByMember(id)
	require.Equal(t, StateAwaitingConfirmation, s.State)
	require.NotEmpty(t, s.PromptID)
	return s
}

func (h *harness) press(s Session, kind domain.ActionKind) *ackRecorder {
	ack := &ackRecorder{}
	h.m.HandleAction(context.Background(), domain.InboundAction{
		Kind:      kind,
		SessionID: s.ID,
		ChannelID: s.ChannelID,
		MessageID: s.PromptID,
		UserID:    s.MemberID,
	}, ack)
	return ack
}
