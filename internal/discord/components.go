package discord

import (
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/ernie/minebridge/internal/domain"
)

// customIDPrefix namespaces prompt buttons: verify:<action>:<session id>
const customIDPrefix = "verify"

// CustomID encodes a prompt button so the press can be routed back to its
// session without any in-memory callback
func CustomID(action domain.ActionKind, sessionID string) string {
	return customIDPrefix + ":" + string(action) + ":" + sessionID
}

// ParseCustomID decodes a button id produced by CustomID
func ParseCustomID(id string) (domain.ActionKind, string, bool) {
	parts := strings.SplitN(id, ":", 3)
	if len(parts) != 3 || parts[0] != customIDPrefix || parts[2] == "" {
		return "", "", false
	}
	action := domain.ActionKind(parts[1])
	if !action.Valid() {
		return "", "", false
	}
	return action, parts[2], true
}

var buttonLooks = map[domain.ActionKind]struct {
	label string
	style discordgo.ButtonStyle
}{
	domain.ActionConfirm: {"Confirm", discordgo.SuccessButton},
	domain.ActionChange:  {"Change name", discordgo.SecondaryButton},
	domain.ActionCancel:  {"Cancel", discordgo.DangerButton},
}

func buildComponents(buttons []domain.Button) []discordgo.MessageComponent {
	if len(buttons) == 0 {
		return nil
	}
	row := discordgo.ActionsRow{}
	for _, b := range buttons {
		look := buttonLooks[b.Action]
		row.Components = append(row.Components, discordgo.Button{
			Label:    look.label,
			Style:    look.style,
			CustomID: CustomID(b.Action, b.SessionID),
			Disabled: b.Disabled,
		})
	}
	return []discordgo.MessageComponent{row}
}

func buildEmbed(card *domain.Card) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Description: card.Description,
		Color:       card.Color,
	}
	if card.AuthorName != "" {
		embed.Author = &discordgo.MessageEmbedAuthor{Name: card.AuthorName, IconURL: card.AuthorIcon}
	}
	if card.Thumbnail != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: card.Thumbnail}
	}
	if card.Image != "" {
		embed.Image = &discordgo.MessageEmbedImage{URL: card.Image}
	}
	return embed
}

func buildMessageSend(channelID string, msg domain.OutboundMessage) *discordgo.MessageSend {
	send := &discordgo.MessageSend{
		Content:    msg.Text,
		Components: buildComponents(msg.Buttons),
	}
	if msg.Card != nil {
		send.Embeds = []*discordgo.MessageEmbed{buildEmbed(msg.Card)}
	}
	if msg.Silent {
		send.Flags = discordgo.MessageFlagsSuppressNotifications
	}
	if msg.ReplyTo != "" {
		send.Reference = &discordgo.MessageReference{MessageID: msg.ReplyTo, ChannelID: channelID}
		send.AllowedMentions = &discordgo.MessageAllowedMentions{
			Parse:       []discordgo.AllowedMentionType{discordgo.AllowedMentionTypeUsers},
			RepliedUser: false,
		}
	}
	return send
}

// privateOverwrites hides a channel from everyone except member and the bot
func privateOverwrites(guildID, memberID, botID string) []*discordgo.PermissionOverwrite {
	allow := int64(discordgo.PermissionViewChannel | discordgo.PermissionSendMessages)
	overwrites := []*discordgo.PermissionOverwrite{
		{ID: guildID, Type: discordgo.PermissionOverwriteTypeRole, Deny: discordgo.PermissionViewChannel},
		{ID: memberID, Type: discordgo.PermissionOverwriteTypeMember, Allow: allow},
	}
	if botID != "" {
		overwrites = append(overwrites, &discordgo.PermissionOverwrite{ID: botID, Type: discordgo.PermissionOverwriteTypeMember, Allow: allow})
	}
	return overwrites
}

func toMember(guildID string, m *discordgo.Member) domain.Member {
	out := domain.Member{GuildID: guildID, RoleIDs: m.Roles}
	if m.GuildID != "" {
		out.GuildID = m.GuildID
	}
	if m.User != nil {
		out.ID = m.User.ID
		out.Bot = m.User.Bot
		out.DisplayName = m.User.Username
		if m.User.GlobalName != "" {
			out.DisplayName = m.User.GlobalName
		}
	}
	if m.Nick != "" {
		out.DisplayName = m.Nick
	}
	return out
}

func toInbound(m *discordgo.Message) domain.InboundMessage {
	msg := domain.InboundMessage{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		GuildID:   m.GuildID,
		Content:   m.Content,
	}
	if m.Author != nil {
		msg.AuthorID = m.Author.ID
		msg.AuthorBot = m.Author.Bot
	}
	return msg
}

// toAction decodes a component interaction, reporting false for anything
// that is not one of the prompt buttons
func toAction(i *discordgo.Interaction) (domain.InboundAction, bool) {
	if i.Type != discordgo.InteractionMessageComponent {
		return domain.InboundAction{}, false
	}
	kind, sessionID, ok := ParseCustomID(i.MessageComponentData().CustomID)
	if !ok {
		return domain.InboundAction{}, false
	}
	act := domain.InboundAction{Kind: kind, SessionID: sessionID, ChannelID: i.ChannelID}
	if i.Message != nil {
		act.MessageID = i.Message.ID
	}
	switch {
	case i.Member != nil && i.Member.User != nil:
		act.UserID = i.Member.User.ID
	case i.User != nil:
		act.UserID = i.User.ID
	}
	return act, true
}
