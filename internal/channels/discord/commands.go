package discord

import (
	"context"
	"fmt"

	"github.com/hwestman/personabot/internal/commands"
	. "github.com/hwestman/personabot/internal/logging"
)

// Permission bitsets commands are gated behind, as decimal strings per
// the API: Manage Server for admin commands, Administrator for the
// admin-role command itself.
var (
	permsManageGuild   = fmt.Sprintf("%d", permManageGuild)
	permsAdministrator = fmt.Sprintf("%d", permAdministrator)
)

var wireOptionTypes = map[commands.OptionType]int{
	commands.OptionString:  optionString,
	commands.OptionInteger: optionInteger,
	commands.OptionChannel: optionChannel,
	commands.OptionRole:    optionRole,
}

// commandsToWire converts the registry definitions into the payload
// the bulk-overwrite endpoint expects.
func commandsToWire(defs []commands.Definition) []ApplicationCommand {
	out := make([]ApplicationCommand, 0, len(defs))
	for _, def := range defs {
		cmd := ApplicationCommand{Name: def.Name}

		switch def.Target {
		case commands.TargetMessage:
			cmd.Type = commandMessageMenu
		case commands.TargetUser:
			cmd.Type = commandUserMenu
		default:
			// Context menus carry no description; chat commands must.
			cmd.Description = def.Description
		}

		for _, opt := range def.Options {
			cmd.Options = append(cmd.Options, ApplicationCommandOption{
				Type:         wireOptionTypes[opt.Type],
				Name:         opt.Name,
				Description:  opt.Description,
				Required:     opt.Required,
				Autocomplete: opt.Autocomplete,
				Choices:      choicesToWire(opt.Choices),
			})
		}

		switch {
		case def.ServerAdmin:
			cmd.DefaultMemberPermissions = &permsAdministrator
		case def.Admin:
			cmd.DefaultMemberPermissions = &permsManageGuild
		}

		out = append(out, cmd)
	}
	return out
}

func choicesToWire(cs []commands.Choice) []OptionChoice {
	if len(cs) == 0 {
		return nil
	}
	out := make([]OptionChoice, 0, len(cs))
	for _, c := range cs {
		out = append(out, OptionChoice{Name: c.Name, Value: c.Value})
	}
	return out
}

// syncCommands overwrites the registered command set so the slash
// surface always matches the registry.
func (b *Bot) syncCommands(ctx context.Context) error {
	wire := commandsToWire(commands.Definitions())
	if err := b.client.BulkOverwriteCommands(ctx, b.cfg.GuildID, wire); err != nil {
		return fmt.Errorf("syncing commands: %w", err)
	}
	scope := "global"
	if b.cfg.GuildID != "" {
		scope = "guild " + b.cfg.GuildID
	}
	L_info("discord: commands synced", "count", len(wire), "scope", scope)
	return nil
}
