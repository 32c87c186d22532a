package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/hwestman/personabot/internal/interaction"
	. "github.com/hwestman/personabot/internal/logging"
	. "github.com/hwestman/personabot/internal/metrics"
	"github.com/hwestman/personabot/internal/orchestrator"
	"github.com/hwestman/personabot/internal/personas"
	"github.com/hwestman/personabot/internal/settings"
)

const helpText = "**Available Slash Commands:**\n" +
	"`/ping` - Test bot responsiveness\n" +
	"`/help` - Show this help message\n" +
	"`/personas` - List available personas\n" +
	"`/set_persona` - Set your default persona\n" +
	"`/hey <message>` - Chat with your current persona\n" +
	"`/explain <topic>` - Get an explanation\n" +
	"`/simple <topic>` - Get a simple explanation with analogies\n" +
	"`/steps <task>` - Break something into steps\n" +
	"`/recipe <food>` - Get a recipe for the specified food\n" +
	"`/imagine <prompt>` - Generate an image\n" +
	"`/remind <time> <message>` - Set a reminder\n" +
	"`/reminders` - View or manage your reminders\n" +
	"`/forget` - Clear your conversation history\n" +
	"\n" +
	"**Available Personas:**\n" +
	"- `muppet` - Muppet expert (default)\n" +
	"- `chef` - Cooking expert\n" +
	"- `obi` - Wise Jedi Master\n" +
	"- `teacher` - Patient teacher\n" +
	"- `analyst` - Step-by-step analyst\n" +
	"\n" +
	"**Interactive Features:**\n" +
	"Use the buttons below for more help or to try custom prompts!"

func helpButtons() []orchestrator.Button {
	return []orchestrator.Button{
		{ID: "show_help_modal", Label: "❓ Get Detailed Help", Primary: true},
		{ID: "show_persona_modal", Label: "✨ Create Custom Prompt"},
	}
}

func personaButtons() []orchestrator.Button {
	return []orchestrator.Button{
		{ID: "persona_muppet", Label: "🐸 Muppet"},
		{ID: "persona_chef", Label: "👨‍🍳 Chef"},
		{ID: "persona_obi", Label: "⚔️ Obi-Wan"},
		{ID: "persona_teacher", Label: "📚 Teacher"},
		{ID: "persona_analyst", Label: "📊 Analyst"},
	}
}

func paginationButtons(current, total int) []orchestrator.Button {
	return []orchestrator.Button{
		{ID: "page_first", Label: "⏮️", Disabled: current == 1},
		{ID: "page_prev", Label: "⬅️", Disabled: current == 1},
		{ID: "page_info", Label: fmt.Sprintf("%d/%d", current, total), Disabled: true},
		{ID: "page_next", Label: "➡️", Disabled: current == total},
		{ID: "page_last", Label: "⏭️", Disabled: current == total},
	}
}

func helpModal() *orchestrator.Modal {
	return &orchestrator.Modal{
		ID:    "help_feedback_modal",
		Title: "Help & Feedback",
		Fields: []orchestrator.ModalField{
			{
				ID:          "help_topic",
				Label:       "What do you need help with?",
				Placeholder: "Enter your question...",
				Required:    true,
				MinLen:      1,
				MaxLen:      100,
			},
			{
				ID:          "help_details",
				Label:       "Additional Details (Optional)",
				Placeholder: "Provide more context if needed...",
				Paragraph:   true,
				MaxLen:      500,
			},
		},
	}
}

func promptModal() *orchestrator.Modal {
	return &orchestrator.Modal{
		ID:    "ai_prompt_modal",
		Title: "Custom AI Prompt",
		Fields: []orchestrator.ModalField{
			{
				ID:          "prompt_text",
				Label:       "Your Custom Prompt",
				Placeholder: "Enter your custom prompt for the AI...",
				Paragraph:   true,
				Required:    true,
				MinLen:      10,
				MaxLen:      1000,
			},
		},
	}
}

// planButton answers component clicks. Every reply here is quick; the
// channel adapters render button acks by updating the source message,
// which clears or replaces its components.
func (r *Router) planButton(ctx context.Context, req *interaction.Request) (orchestrator.Plan, error) {
	id := req.ComponentID

	switch {
	case strings.HasPrefix(id, "persona_"):
		return r.planPersonaButton(ctx, req, strings.TrimPrefix(id, "persona_")), nil

	case strings.HasPrefix(id, "confirm_"):
		return quick(fmt.Sprintf("✅ Action confirmed: %s", strings.TrimPrefix(id, "confirm_"))), nil

	case strings.HasPrefix(id, "cancel_"):
		return quick("❌ Action cancelled."), nil

	case strings.HasPrefix(id, "page_"):
		return planPageButton(strings.TrimPrefix(id, "page_")), nil

	case id == "show_help_modal":
		return orchestrator.Plan{
			Quick: true,
			Modal: helpModal(),
			Reply: "Use `/explain <topic>` to get detailed help on anything.",
		}, nil

	case id == "show_persona_modal":
		return orchestrator.Plan{
			Quick: true,
			Modal: promptModal(),
			Reply: "Use `/hey <message>` to chat with your persona.",
		}, nil
	}

	MetricInc("commands", "unknown")
	L_debug("commands: unknown component", "request", req.ID, "component", id)
	return quick(msgUnknownComponent), nil
}

func (r *Router) planPersonaButton(ctx context.Context, req *interaction.Request, key string) orchestrator.Plan {
	if !r.personas.Exists(key) {
		return quick("❌ Invalid persona selected.")
	}
	if err := r.store.SetUserPersona(ctx, req.Identity.BotID, req.Identity.UserID, key); err != nil {
		L_error("commands: persona preference not saved", "user", req.Identity.UserID, "error", err)
		return quick(msgStoreError)
	}
	MetricInc("commands", "persona_set")
	return quick(fmt.Sprintf("✅ Your persona has been set to: **%s**", key))
}

func planPageButton(action string) orchestrator.Plan {
	var text string
	switch action {
	case "first":
		text = "📄 Showing first page"
	case "prev":
		text = "📄 Showing previous page"
	case "next":
		text = "📄 Showing next page"
	case "last":
		text = "📄 Showing last page"
	default:
		text = "📄 Page navigation"
	}
	return orchestrator.Plan{Quick: true, Reply: text, Buttons: paginationButtons(1, 3)}
}

// planModal answers modal submissions; both modals become deferred
// one-shot completions.
func (r *Router) planModal(ctx context.Context, req *interaction.Request, eff settings.Effective) (orchestrator.Plan, error) {
	switch req.ComponentID {
	case "help_feedback_modal":
		topic := strings.TrimSpace(req.ModalFields["help_topic"])
		if topic == "" {
			return quick("Please tell me what you need help with."), nil
		}
		prompt := topic
		if details := strings.TrimSpace(req.ModalFields["help_details"]); details != "" {
			prompt = fmt.Sprintf("%s\n\nAdditional context: %s", topic, details)
		}

		persona := r.personaFor(ctx, req, eff)
		MetricInc("commands", "modal")
		return orchestrator.Plan{
			Prompt:      prompt,
			System:      r.personas.SystemPrompt(persona, personas.ModifierExplain) + settings.VerbosityInstruction(eff.Verbosity),
			MaxTokens:   settings.VerbosityMaxTokens(eff.Verbosity),
			Prefix:      "❓ **Help Response:**\n",
			SkipHistory: true,
		}, nil

	case "ai_prompt_modal":
		custom := strings.TrimSpace(req.ModalFields["prompt_text"])
		if custom == "" {
			return quick("Please provide a prompt."), nil
		}

		// The user's text replaces the persona system prompt entirely.
		MetricInc("commands", "modal")
		return orchestrator.Plan{
			Prompt:      "Please respond according to the instructions provided.",
			System:      custom,
			MaxTokens:   settings.VerbosityMaxTokens(eff.Verbosity),
			Prefix:      "✨ **Custom Prompt Response:**\n",
			SkipHistory: true,
		}, nil
	}

	MetricInc("commands", "unknown")
	L_debug("commands: unknown modal", "request", req.ID, "modal", req.ComponentID)
	return quick(msgUnknownModal), nil
}
