package commands

import (
	"strings"
	"testing"

	"github.com/hwestman/personabot/internal/interaction"
)

func buttonReq(componentID string) *interaction.Request {
	req := interaction.NewRequest(interaction.KindButton, testIdentity())
	req.ComponentID = componentID
	return req
}

func modalReq(modalID string, fields map[string]string) *interaction.Request {
	req := interaction.NewRequest(interaction.KindModal, testIdentity())
	req.ComponentID = modalID
	req.ModalFields = fields
	return req
}

func TestPlanPersonaButton(t *testing.T) {
	f := newFixture(t)

	p := f.plan(t, buttonReq("persona_obi"))
	if p.Reply != "✅ Your persona has been set to: **obi**" {
		t.Errorf("reply = %q", p.Reply)
	}
	if f.st.personas["b1/u1"] != "obi" {
		t.Errorf("stored persona = %q", f.st.personas["b1/u1"])
	}

	p = f.plan(t, buttonReq("persona_shakespeare"))
	if p.Reply != "❌ Invalid persona selected." {
		t.Errorf("reply = %q", p.Reply)
	}
}

func TestPlanConfirmCancelButtons(t *testing.T) {
	f := newFixture(t)

	p := f.plan(t, buttonReq("confirm_delete"))
	if p.Reply != "✅ Action confirmed: delete" {
		t.Errorf("reply = %q", p.Reply)
	}

	p = f.plan(t, buttonReq("cancel_delete"))
	if p.Reply != "❌ Action cancelled." {
		t.Errorf("reply = %q", p.Reply)
	}
}

func TestPlanPageButtons(t *testing.T) {
	f := newFixture(t)

	p := f.plan(t, buttonReq("page_next"))
	if p.Reply != "📄 Showing next page" {
		t.Errorf("reply = %q", p.Reply)
	}
	if len(p.Buttons) != 5 {
		t.Fatalf("buttons = %d, want a full pagination row", len(p.Buttons))
	}
	info := p.Buttons[2]
	if info.ID != "page_info" || !info.Disabled {
		t.Errorf("info button = %+v", info)
	}
}

func TestPaginationButtonsDisableEdges(t *testing.T) {
	row := paginationButtons(1, 3)
	if !row[0].Disabled || !row[1].Disabled {
		t.Error("first/prev should be disabled on page 1")
	}
	if row[3].Disabled || row[4].Disabled {
		t.Error("next/last should be enabled on page 1")
	}

	row = paginationButtons(3, 3)
	if row[0].Disabled || row[1].Disabled {
		t.Error("first/prev should be enabled on the last page")
	}
	if !row[3].Disabled || !row[4].Disabled {
		t.Error("next/last should be disabled on the last page")
	}
	if row[2].Label != "3/3" {
		t.Errorf("info label = %q", row[2].Label)
	}
}

func TestPlanModalButtonsOpenModals(t *testing.T) {
	f := newFixture(t)

	p := f.plan(t, buttonReq("show_help_modal"))
	if p.Modal == nil || p.Modal.ID != "help_feedback_modal" {
		t.Fatalf("modal = %+v", p.Modal)
	}
	if len(p.Modal.Fields) != 2 || !p.Modal.Fields[0].Required || !p.Modal.Fields[1].Paragraph {
		t.Errorf("modal fields = %+v", p.Modal.Fields)
	}
	// Text-only transports fall back to the reply.
	if !strings.Contains(p.Reply, "/explain") {
		t.Errorf("fallback reply = %q", p.Reply)
	}

	p = f.plan(t, buttonReq("show_persona_modal"))
	if p.Modal == nil || p.Modal.ID != "ai_prompt_modal" {
		t.Fatalf("modal = %+v", p.Modal)
	}
	if !strings.Contains(p.Reply, "/hey") {
		t.Errorf("fallback reply = %q", p.Reply)
	}
}

func TestPlanUnknownButton(t *testing.T) {
	f := newFixture(t)

	p := f.plan(t, buttonReq("selfdestruct"))
	if p.Reply != msgUnknownComponent {
		t.Errorf("reply = %q", p.Reply)
	}
}

func TestPlanHelpModalSubmission(t *testing.T) {
	f := newFixture(t)

	p := f.plan(t, modalReq("help_feedback_modal", map[string]string{
		"help_topic":   "reminders",
		"help_details": "I keep missing them",
	}))
	if p.Quick {
		t.Fatal("modal submission should be deferred")
	}
	if p.Prompt != "reminders\n\nAdditional context: I keep missing them" {
		t.Errorf("prompt = %q", p.Prompt)
	}
	if p.Prefix != "❓ **Help Response:**\n" {
		t.Errorf("prefix = %q", p.Prefix)
	}
	if !strings.Contains(p.System, "clear explanations") {
		t.Errorf("system missing explain modifier: %q", p.System)
	}

	p = f.plan(t, modalReq("help_feedback_modal", map[string]string{"help_topic": "personas"}))
	if p.Prompt != "personas" {
		t.Errorf("prompt without details = %q", p.Prompt)
	}

	p = f.plan(t, modalReq("help_feedback_modal", nil))
	if p.Reply != "Please tell me what you need help with." {
		t.Errorf("empty topic reply = %q", p.Reply)
	}
}

func TestPlanCustomPromptModalReplacesSystem(t *testing.T) {
	f := newFixture(t)
	custom := "You are a laconic Spartan. Answer in five words or fewer."

	p := f.plan(t, modalReq("ai_prompt_modal", map[string]string{"prompt_text": custom}))
	if p.System != custom {
		t.Errorf("system = %q, want the user's text verbatim", p.System)
	}
	if p.Prompt != "Please respond according to the instructions provided." {
		t.Errorf("prompt = %q", p.Prompt)
	}
	if strings.Contains(p.System, "Muppet") {
		t.Error("persona prompt should not leak into custom prompts")
	}

	p = f.plan(t, modalReq("ai_prompt_modal", nil))
	if p.Reply != "Please provide a prompt." {
		t.Errorf("empty prompt reply = %q", p.Reply)
	}
}

func TestPlanUnknownModal(t *testing.T) {
	f := newFixture(t)

	p := f.plan(t, modalReq("mystery_modal", nil))
	if p.Reply != msgUnknownModal {
		t.Errorf("reply = %q", p.Reply)
	}
}
