// Package discord adapts a discordgo session to the chat-platform
// operations the bridge and the verification flow need.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/ernie/minebridge/internal/domain"
	"github.com/ernie/minebridge/internal/verify"
)

// memberPageSize is the largest page the members endpoint returns
const memberPageSize = 1000

// Intents the bot needs: guild structure, member joins and message text
const Intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMembers |
	discordgo.IntentsGuildMessages |
	discordgo.IntentsMessageContent

// Handler receives platform events
type Handler interface {
	HandleReady(ctx context.Context, members []domain.Member)
	HandleMemberJoin(ctx context.Context, member domain.Member)
	HandleMessage(ctx context.Context, msg domain.InboundMessage)
	HandleAction(ctx context.Context, act domain.InboundAction, ack verify.Acknowledger)
	HandleChannelDeleted(channelID string)
}

var _ verify.Platform = (*Client)(nil)

// Client is the discordgo-backed chat platform
type Client struct {
	session *discordgo.Session
	guildID string
	log     *slog.Logger

	mu      sync.Mutex
	baseCtx context.Context
	ready   sync.Once
}

// New creates a client for a bot token. Call Start to connect.
func New(token, guildID string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("creating discord session: %w", err)
	}
	s.Identify.Intents = Intents
	return &Client{
		session: s,
		guildID: guildID,
		log:     logger.With("component", "discord"),
		baseCtx: context.Background(),
	}, nil
}

// Start registers h for platform events and opens the gateway connection.
// Handlers run with ctx; the connection stays open until Close.
func (c *Client) Start(ctx context.Context, h Handler) error {
	c.mu.Lock()
	c.baseCtx = ctx
	c.mu.Unlock()

	c.session.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		c.log.Info("connected to discord", "user", r.User.Username)
		c.ready.Do(func() {
			members, err := c.listMembers(c.ctx())
			if err != nil {
				c.log.Warn("listing members for bootstrap", "error", err)
				return
			}
			h.HandleReady(c.ctx(), members)
		})
	})
	c.session.AddHandler(func(_ *discordgo.Session, m *discordgo.GuildMemberAdd) {
		if m.Member == nil {
			return
		}
		h.HandleMemberJoin(c.ctx(), toMember(m.GuildID, m.Member))
	})
	c.session.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		if m.Message == nil {
			return
		}
		h.HandleMessage(c.ctx(), toInbound(m.Message))
	})
	c.session.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		act, ok := toAction(i.Interaction)
		if !ok {
			return
		}
		ack := &interactionAck{session: s, interaction: i.Interaction}
		if err := ack.deferResponse(c.ctx()); err != nil {
			c.log.Warn("deferring interaction", "error", err)
			return
		}
		h.HandleAction(c.ctx(), act, ack)
	})
	c.session.AddHandler(func(_ *discordgo.Session, ch *discordgo.ChannelDelete) {
		if ch.Channel == nil {
			return
		}
		h.HandleChannelDeleted(ch.ID)
	})

	if err := c.session.Open(); err != nil {
		return fmt.Errorf("opening discord gateway: %w", err)
	}
	return nil
}

// Close disconnects from the gateway
func (c *Client) Close() error {
	return c.session.Close()
}

func (c *Client) ctx() context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.baseCtx
}

func (c *Client) botID() string {
	if c.session.State != nil && c.session.State.User != nil {
		return c.session.State.User.ID
	}
	return ""
}

func (c *Client) listMembers(ctx context.Context) ([]domain.Member, error) {
	var out []domain.Member
	after := ""
	for {
		page, err := c.session.GuildMembers(c.guildID, after, memberPageSize, discordgo.WithContext(ctx))
		if err != nil {
			return nil, err
		}
		for _, m := range page {
			out = append(out, toMember(c.guildID, m))
		}
		if len(page) < memberPageSize {
			return out, nil
		}
		after = page[len(page)-1].User.ID
	}
}

// SendMessage posts msg to channelID and returns the new message id
func (c *Client) SendMessage(ctx context.Context, channelID string, msg domain.OutboundMessage) (string, error) {
	sent, err := c.session.ChannelMessageSendComplex(channelID, buildMessageSend(channelID, msg), discordgo.WithContext(ctx))
	if err != nil {
		return "", err
	}
	return sent.ID, nil
}

// EditButtons replaces the controls on an existing message
func (c *Client) EditButtons(ctx context.Context, channelID, messageID string, buttons []domain.Button) error {
	components := buildComponents(buttons)
	edit := discordgo.NewMessageEdit(channelID, messageID)
	edit.Components = &components
	_, err := c.session.ChannelMessageEditComplex(edit, discordgo.WithContext(ctx))
	return err
}

// FindChannelByTopic looks for a guild channel carrying topic
func (c *Client) FindChannelByTopic(ctx context.Context, guildID, topic string) (string, bool, error) {
	channels, err := c.session.GuildChannels(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return "", false, err
	}
	for _, ch := range channels {
		if ch.Type == discordgo.ChannelTypeGuildText && ch.Topic == topic {
			return ch.ID, true, nil
		}
	}
	return "", false, nil
}

// CreatePrivateChannel creates a text channel only req.MemberID and the
// bot can see
func (c *Client) CreatePrivateChannel(ctx context.Context, guildID string, req verify.ChannelSpec) (string, error) {
	ch, err := c.session.GuildChannelCreateComplex(guildID, discordgo.GuildChannelCreateData{
		Name:                 req.Name,
		Type:                 discordgo.ChannelTypeGuildText,
		Topic:                req.Topic,
		PermissionOverwrites: privateOverwrites(guildID, req.MemberID, c.botID()),
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", err
	}
	c.log.Info("created verification channel", "channel", ch.ID, "member", req.MemberID, "reason", req.Reason)
	return ch.ID, nil
}

// GrantChannelAccess lets userID and the bot view and post in channelID
func (c *Client) GrantChannelAccess(ctx context.Context, channelID, userID string) error {
	allow := int64(discordgo.PermissionViewChannel | discordgo.PermissionSendMessages)
	ids := []string{userID}
	if bot := c.botID(); bot != "" {
		ids = append(ids, bot)
	}
	for _, id := range ids {
		if err := c.session.ChannelPermissionSet(channelID, id, discordgo.PermissionOverwriteTypeMember, allow, 0, discordgo.WithContext(ctx)); err != nil {
			return err
		}
	}
	return nil
}

// DeleteChannel removes a channel
func (c *Client) DeleteChannel(ctx context.Context, channelID, reason string) error {
	if _, err := c.session.ChannelDelete(channelID, discordgo.WithContext(ctx)); err != nil {
		return err
	}
	c.log.Info("deleted channel", "channel", channelID, "reason", reason)
	return nil
}

// AddRole grants roleID to userID
func (c *Client) AddRole(ctx context.Context, guildID, userID, roleID, reason string) error {
	if err := c.session.GuildMemberRoleAdd(guildID, userID, roleID, discordgo.WithContext(ctx)); err != nil {
		return err
	}
	c.log.Info("granted role", "member", userID, "role", roleID, "reason", reason)
	return nil
}

// RemoveRole revokes roleID from userID
func (c *Client) RemoveRole(ctx context.Context, guildID, userID, roleID, reason string) error {
	if err := c.session.GuildMemberRoleRemove(guildID, userID, roleID, discordgo.WithContext(ctx)); err != nil {
		return err
	}
	c.log.Info("revoked role", "member", userID, "role", roleID, "reason", reason)
	return nil
}

// interactionAck answers a button press privately. The interaction is
// deferred first so slow console round trips do not time it out.
type interactionAck struct {
	session     *discordgo.Session
	interaction *discordgo.Interaction
}

func (a *interactionAck) deferResponse(ctx context.Context) error {
	return a.session.InteractionRespond(a.interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	}, discordgo.WithContext(ctx))
}

func (a *interactionAck) Acknowledge(ctx context.Context, text string) error {
	_, err := a.session.FollowupMessageCreate(a.interaction, true, &discordgo.WebhookParams{
		Content: text,
		Flags:   discordgo.MessageFlagsEphemeral,
	}, discordgo.WithContext(ctx))
	return err
}
