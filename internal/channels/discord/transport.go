package discord

import (
	"context"

	"github.com/hwestman/personabot/internal/interaction"
	"github.com/hwestman/personabot/internal/orchestrator"
)

// emptyRows is the "remove all components" payload value.
var emptyRows = []actionRow{}

// inlineAck records that the webhook handler already answered the
// interaction inline, and with which callback type.
type inlineAck struct {
	callbackType int
}

// interactionTransport answers one interaction. In gateway mode the
// acknowledgment goes through the callback endpoint; in webhook mode
// the handler has deferred inline (ack != nil) and every visible reply
// is an edit of that deferral. Button interactions acknowledge by
// updating the message the button sits on.
type interactionTransport struct {
	client *Client
	id     string
	token  string
	kind   interaction.Kind
	ack    *inlineAck
}

func (t *interactionTransport) Acknowledge(ctx context.Context, req *interaction.Request, text string) (orchestrator.Handle, error) {
	if text == "" {
		if t.ack != nil {
			// Deferred inline by the webhook handler.
			return nil, nil
		}
		typ := callbackDeferredMessage
		if t.kind == interaction.KindButton {
			typ = callbackDeferredUpdate
		}
		return nil, t.client.CreateInteractionResponse(ctx, t.id, t.token, interactionResponse{Type: typ})
	}
	return nil, t.respond(ctx, text, nil)
}

func (t *interactionTransport) AcknowledgeWithButtons(ctx context.Context, req *interaction.Request, text string, buttons []orchestrator.Button) (orchestrator.Handle, error) {
	rows := buttonRows(buttons)
	return nil, t.respond(ctx, text, &rows)
}

// respond delivers a quick reply. Button replies replace the clicked
// message and clear its components unless new ones are given.
func (t *interactionTransport) respond(ctx context.Context, text string, rows *[]actionRow) error {
	if t.kind == interaction.KindButton && rows == nil {
		rows = &emptyRows
	}
	p := messagePayload{Content: text, Components: rows}

	if t.ack != nil {
		return t.client.EditOriginal(ctx, t.token, p)
	}

	typ := callbackChannelMessage
	if t.kind == interaction.KindButton {
		typ = callbackUpdateMessage
	}
	return t.client.CreateInteractionResponse(ctx, t.id, t.token, interactionResponse{Type: typ, Data: &p})
}

func (t *interactionTransport) EditAcknowledgment(ctx context.Context, req *interaction.Request, _ orchestrator.Handle, text string) error {
	return t.client.EditOriginal(ctx, t.token, messagePayload{Content: text})
}

func (t *interactionTransport) SendFollowup(ctx context.Context, req *interaction.Request, text string) error {
	_, err := t.client.CreateFollowup(ctx, t.token, messagePayload{Content: text})
	return err
}

func (t *interactionTransport) SendFile(ctx context.Context, req *interaction.Request, name string, data []byte) error {
	return t.client.CreateFollowupWithFiles(ctx, t.token, messagePayload{}, []namedFile{{name: name, data: data}})
}

func (t *interactionTransport) MaxMessageLen() int { return maxMessageLen }

// gatewayTransport adds modal opening, which requires answering the
// interaction itself and is therefore impossible in webhook mode where
// the deferral is already sent.
type gatewayTransport struct {
	*interactionTransport
}

func (t *gatewayTransport) OpenModal(ctx context.Context, req *interaction.Request, m orchestrator.Modal) error {
	rows := make([]actionRow, 0, len(m.Fields))
	for _, f := range m.Fields {
		style := textInputShort
		if f.Paragraph {
			style = textInputParagraph
		}
		rows = append(rows, actionRow{
			Type: componentActionRow,
			Components: []any{textInputComponent{
				Type:        componentTextInput,
				CustomID:    f.ID,
				Style:       style,
				Label:       f.Label,
				Required:    f.Required,
				Placeholder: f.Placeholder,
				MinLength:   f.MinLen,
				MaxLength:   f.MaxLen,
			}},
		})
	}
	return t.client.CreateInteractionResponse(ctx, t.id, t.token, interactionResponse{
		Type: callbackModal,
		Data: &modalPayload{CustomID: m.ID, Title: m.Title, Components: rows},
	})
}

// messageTransport replies to plain channel messages. The typing
// indicator stands in for a placeholder and the first real send
// creates the reply message.
type messageTransport struct {
	client    *Client
	channelID string
}

func (t *messageTransport) Acknowledge(ctx context.Context, req *interaction.Request, text string) (orchestrator.Handle, error) {
	if text == "" {
		return nil, t.client.TriggerTyping(ctx, t.channelID)
	}
	msg, err := t.client.CreateMessage(ctx, t.channelID, messagePayload{Content: text})
	if err != nil {
		return nil, err
	}
	return msg.ID, nil
}

func (t *messageTransport) AcknowledgeWithButtons(ctx context.Context, req *interaction.Request, text string, buttons []orchestrator.Button) (orchestrator.Handle, error) {
	rows := buttonRows(buttons)
	msg, err := t.client.CreateMessage(ctx, t.channelID, messagePayload{Content: text, Components: &rows})
	if err != nil {
		return nil, err
	}
	return msg.ID, nil
}

func (t *messageTransport) EditAcknowledgment(ctx context.Context, req *interaction.Request, h orchestrator.Handle, text string) error {
	_, err := t.client.CreateMessage(ctx, t.channelID, messagePayload{Content: text})
	return err
}

func (t *messageTransport) SendFollowup(ctx context.Context, req *interaction.Request, text string) error {
	_, err := t.client.CreateMessage(ctx, t.channelID, messagePayload{Content: text})
	return err
}

func (t *messageTransport) SendFile(ctx context.Context, req *interaction.Request, name string, data []byte) error {
	_, err := t.client.CreateMessageWithFiles(ctx, t.channelID, messagePayload{}, []namedFile{{name: name, data: data}})
	return err
}

func (t *messageTransport) MaxMessageLen() int { return maxMessageLen }

// buttonRows lays buttons into action rows of at most five, the
// platform's row capacity.
func buttonRows(buttons []orchestrator.Button) []actionRow {
	const perRow = 5
	rows := make([]actionRow, 0, (len(buttons)+perRow-1)/perRow)
	for start := 0; start < len(buttons); start += perRow {
		end := start + perRow
		if end > len(buttons) {
			end = len(buttons)
		}
		row := actionRow{Type: componentActionRow}
		for _, btn := range buttons[start:end] {
			style := buttonSecondary
			if btn.Primary {
				style = buttonPrimary
			}
			row.Components = append(row.Components, buttonComponent{
				Type:     componentButton,
				Style:    style,
				Label:    btn.Label,
				CustomID: btn.ID,
				Disabled: btn.Disabled,
			})
		}
		rows = append(rows, row)
	}
	return rows
}
