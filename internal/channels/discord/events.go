package discord

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/hwestman/personabot/internal/interaction"
	. "github.com/hwestman/personabot/internal/logging"
	. "github.com/hwestman/personabot/internal/metrics"
	"github.com/hwestman/personabot/internal/orchestrator"
	"github.com/hwestman/personabot/internal/settings"
)

// adminCheckTimeout bounds the settings lookup on the event path.
const adminCheckTimeout = 2 * time.Second

// handleDispatch receives every gateway event. It runs on the session's
// read goroutine, so all interaction work is handed to the orchestrator
// without blocking.
func (b *Bot) handleDispatch(event string, data json.RawMessage) {
	switch event {
	case "READY":
		b.handleReady(data)
	case "INTERACTION_CREATE":
		var ic Interaction
		if err := json.Unmarshal(data, &ic); err != nil {
			L_warn("discord: bad interaction payload", "error", err)
			return
		}
		b.handleInteraction(&ic, nil)
	case "MESSAGE_CREATE":
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			L_warn("discord: bad message payload", "error", err)
			return
		}
		b.handleMessage(&msg)
	}
}

func (b *Bot) handleReady(data json.RawMessage) {
	var ready struct {
		User User `json:"user"`
	}
	if err := json.Unmarshal(data, &ready); err != nil {
		L_warn("discord: bad ready payload", "error", err)
		return
	}
	b.mu.Lock()
	b.botUser = ready.User
	b.mu.Unlock()
	L_info("discord: gateway ready", "user", ready.User.Tag(), "id", ready.User.ID)
}

// handleInteraction maps an interaction to a request and starts an
// orchestrator task for it. ack is non-nil in webhook mode, where the
// HTTP handler already deferred the interaction inline.
func (b *Bot) handleInteraction(ic *Interaction, ack *inlineAck) {
	if ic.Type == interactionPing || ic.Data == nil {
		return
	}
	if ic.Type == interactionAutocomplete {
		b.answerAutocomplete(ic)
		return
	}

	req := b.requestFromInteraction(ic)
	if req == nil {
		L_debug("discord: ignoring interaction", "type", ic.Type)
		return
	}
	MetricInc("discord", "interactions")

	base := &interactionTransport{
		client: b.client,
		id:     ic.ID,
		token:  ic.Token,
		kind:   req.Kind,
		ack:    ack,
	}
	var tr orchestrator.Transport = base
	if ack == nil {
		// Only an unacknowledged interaction can still open a modal.
		tr = &gatewayTransport{base}
	}
	b.orch.OnEvent(tr, req)
}

// requestFromInteraction translates the wire payload into the channel
// neutral request the router understands.
func (b *Bot) requestFromInteraction(ic *Interaction) *interaction.Request {
	id := interaction.Identity{
		BotID:     b.cfg.AppID,
		UserID:    ic.Invoker().ID,
		ChannelID: ic.ChannelID,
		GuildID:   ic.GuildID,
	}

	var req *interaction.Request
	switch ic.Type {
	case interactionApplicationCommand:
		if ic.Data.Type == commandUserMenu || ic.Data.Type == commandMessageMenu {
			req = interaction.NewRequest(interaction.KindContextMenu, id)
			req.Command = ic.Data.Name
			req.TargetText = resolveTargetText(ic.Data)
		} else {
			req = interaction.NewRequest(interaction.KindCommand, id)
			req.Command = ic.Data.Name
			req.Options = optionsToMap(ic.Data.Options)
		}
	case interactionMessageComponent:
		req = interaction.NewRequest(interaction.KindButton, id)
		req.ComponentID = ic.Data.CustomID
	case interactionModalSubmit:
		req = interaction.NewRequest(interaction.KindModal, id)
		req.ComponentID = ic.Data.CustomID
		req.ModalFields = modalFieldsToMap(ic.Data.Components)
	default:
		return nil
	}

	req.Admin = b.isAdmin(ic.GuildID, ic.Member)
	return req
}

// optionsToMap flattens submitted options to name/value strings.
func optionsToMap(opts []OptionValue) map[string]string {
	if len(opts) == 0 {
		return nil
	}
	m := make(map[string]string, len(opts))
	for _, o := range opts {
		m[o.Name] = o.Text()
	}
	return m
}

// modalFieldsToMap collects text input values keyed by field id.
func modalFieldsToMap(rows []ComponentRow) map[string]string {
	m := make(map[string]string)
	for _, row := range rows {
		for _, c := range row.Components {
			if c.Type == componentTextInput {
				m[c.CustomID] = c.Value
			}
		}
	}
	return m
}

// resolveTargetText extracts the subject of a context-menu command:
// the message content for message menus, the username for user menus.
func resolveTargetText(data *InteractionData) string {
	if data.Resolved == nil || data.TargetID == "" {
		return ""
	}
	if msg, ok := data.Resolved.Messages[data.TargetID]; ok {
		return msg.Content
	}
	if user, ok := data.Resolved.Users[data.TargetID]; ok {
		return user.Username
	}
	return ""
}

// isAdmin decides whether the invoker may run admin commands: guild
// members with Administrator or Manage Server, or holders of the
// configured admin role. DMs carry no member and get no admin rights.
func (b *Bot) isAdmin(guildID string, m *Member) bool {
	if m == nil || guildID == "" {
		return false
	}
	if m.HasPermission(permAdministrator | permManageGuild) {
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), adminCheckTimeout)
	defer cancel()
	roleID, ok, err := b.st.GetSetting(ctx, settings.ScopeGuild, guildID, settings.KeyAdminRole)
	if err != nil {
		L_warn("discord: admin role lookup failed", "guild", guildID, "error", err)
		return false
	}
	return ok && m.HasRole(roleID)
}

// handleMessage routes plain channel messages: bang commands always,
// DMs always, guild messages only when the bot is mentioned and
// mention replies are enabled for the channel.
func (b *Bot) handleMessage(msg *Message) {
	if msg.Author.Bot {
		return
	}

	content := strings.TrimSpace(msg.Content)
	if content == "" {
		return
	}

	b.mu.Lock()
	botUserID := b.botUser.ID
	b.mu.Unlock()

	isBang := strings.HasPrefix(content, "!")
	isDM := msg.GuildID == ""

	if !isBang && !isDM {
		if !mentionsUser(msg, botUserID) {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), adminCheckTimeout)
		v, _ := b.resolver.Resolve(ctx, settings.KeyMentionReplies, msg.ChannelID, msg.GuildID)
		cancel()
		if v == "disabled" {
			L_debug("discord: mention ignored, replies disabled", "channel", msg.ChannelID)
			return
		}
	}

	id := interaction.Identity{
		BotID:     b.cfg.AppID,
		UserID:    msg.Author.ID,
		ChannelID: msg.ChannelID,
		GuildID:   msg.GuildID,
	}
	req := interaction.NewRequest(interaction.KindMessage, id)
	req.Prompt = stripMentions(content, botUserID)
	req.Admin = b.isAdmin(msg.GuildID, msg.Member)
	MetricInc("discord", "messages")

	tr := &messageTransport{client: b.client, channelID: msg.ChannelID}
	b.orch.OnEvent(tr, req)
}

// mentionsUser checks the mention list first and falls back to scanning
// for the raw mention syntax.
func mentionsUser(msg *Message, userID string) bool {
	if userID == "" {
		return false
	}
	for _, u := range msg.Mentions {
		if u.ID == userID {
			return true
		}
	}
	return strings.Contains(msg.Content, "<@"+userID+">") ||
		strings.Contains(msg.Content, "<@!"+userID+">")
}

// stripMentions removes the bot's own mention tokens so the prompt
// reads like the user wrote it.
func stripMentions(content, userID string) string {
	if userID == "" {
		return content
	}
	content = strings.ReplaceAll(content, "<@"+userID+">", "")
	content = strings.ReplaceAll(content, "<@!"+userID+">", "")
	return strings.TrimSpace(content)
}
