package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hwestman/personabot/internal/interaction"
	"github.com/hwestman/personabot/internal/llm"
	. "github.com/hwestman/personabot/internal/logging"
	. "github.com/hwestman/personabot/internal/metrics"
	"github.com/hwestman/personabot/internal/splitter"
)

// task is the state machine for one interaction. It is driven by a single
// goroutine; the mutex exists because the terminal-state and single-edit
// invariants must hold even if a bug introduces a second driver.
type task struct {
	o   *Orchestrator
	tr  Transport
	req *interaction.Request

	mu     sync.Mutex
	state  State
	handle Handle
	acked  bool
	edited bool
}

type completion struct {
	text  string
	files []File
	err   error
}

// run drives the request to a terminal state. Panics below this frame are
// converted to a Failed reply; nothing here may take down the process.
func (t *task) run() {
	defer func() {
		if r := recover(); r != nil {
			MetricInc("orchestrator", "panics")
			L_error("orchestrator: task panicked", "request", t.req.ID, "panic", r)
			t.failBestEffort()
		}
	}()

	MetricInc("orchestrator", "received")
	L_debug("orchestrator: request received",
		"request", t.req.ID, "kind", t.req.Kind,
		"user", t.req.Identity.UserID, "channel", t.req.Identity.ChannelID)

	ctx := context.Background()

	// Received -> RateChecked. A denied check is a normal reply, not an
	// error; it short-circuits straight to Delivered.
	res := t.o.limiter.Check(t.req.Identity.BotID, t.req.Identity.UserID)
	t.mustTransition(StateRateChecked)
	if !res.Allowed {
		f := &Failure{Kind: FailureRateLimited, RetryAfter: res.RetryAfter}
		L_debug("orchestrator: rate limited", "request", t.req.ID, "user", t.req.Identity.UserID, "retryAfter", res.RetryAfter)
		MetricInc("orchestrator", "rate_limited")
		t.acknowledge(f.UserMessage())
		t.mustTransition(StateDelivered)
		t.o.record(t.req.Identity, t.req.Kind, t.req.Command, f.Outcome(), time.Since(t.req.ReceivedAt))
		return
	}

	// RateChecked -> Configured. Settings and history failures downgrade
	// to defaults; only a broken planner aborts.
	eff := t.o.resolver.ResolveAll(ctx, t.req.Identity.ChannelID, t.req.Identity.GuildID)
	if eff.Degraded {
		MetricInc("orchestrator", "settings_degraded")
		L_debug("orchestrator: settings store unavailable, using defaults", "request", t.req.ID)
	}

	plan, err := t.o.planner.Plan(ctx, t.req, eff)
	if err != nil {
		t.mustTransition(StateConfigured)
		L_error("orchestrator: planner failed", "request", t.req.ID, "error", err)
		t.acknowledge(msgGenericError)
		t.mustTransition(StateFailed)
		t.o.record(t.req.Identity, t.req.Kind, t.req.Command, interaction.OutcomeFailed, time.Since(t.req.ReceivedAt))
		return
	}

	var hist []interaction.Turn
	if !plan.Quick && !plan.SkipHistory {
		hist, err = t.o.history.Window(ctx, t.req.Identity, eff.MaxContext)
		if err != nil {
			MetricInc("orchestrator", "history_degraded")
			L_warn("orchestrator: history unavailable, continuing without", "request", t.req.ID, "error", err)
			hist = nil
		}
	}
	t.mustTransition(StateConfigured)

	// Configured -> Acknowledged. The ack must beat AckDeadline from
	// arrival; a breach is logged and acked late, never skipped.
	if late := time.Since(t.req.ReceivedAt) - t.o.cfg.AckDeadline; late > 0 {
		MetricInc("orchestrator", "ack_breach")
		L_warn("orchestrator: ack deadline breached, acknowledging late", "request", t.req.ID, "late", late)
	}

	if plan.Quick {
		// Acknowledgment and final reply coincide. A modal, where the
		// transport can open one, is that acknowledgment.
		if err := t.acknowledgeQuick(plan); err != nil {
			t.mustTransition(StateFailed)
			t.o.record(t.req.Identity, t.req.Kind, t.req.Command, interaction.OutcomeFailed, time.Since(t.req.ReceivedAt))
			return
		}
		t.mustTransition(StateAcknowledged)
		t.mustTransition(StateDelivered)
		MetricInc("orchestrator", "delivered")
		t.o.record(t.req.Identity, t.req.Kind, t.req.Command, interaction.OutcomeDelivered, time.Since(t.req.ReceivedAt))
		return
	}

	// Deferred: placeholder ack now, content later.
	if err := t.acknowledge(""); err != nil {
		t.mustTransition(StateFailed)
		t.o.record(t.req.Identity, t.req.Kind, t.req.Command, interaction.OutcomeFailed, time.Since(t.req.ReceivedAt))
		return
	}
	t.mustTransition(StateAcknowledged)

	// Record the user turn once the prior window has been captured, so
	// the prompt is not duplicated into its own history.
	if plan.RecordHistory {
		userTurn := interaction.Turn{Role: interaction.RoleUser, Content: plan.Prompt, At: t.req.ReceivedAt}
		if err := t.o.history.Append(ctx, t.req.Identity, userTurn); err != nil {
			L_warn("orchestrator: user turn not recorded", "request", t.req.ID, "error", err)
		}
	}

	// Acknowledged -> Completing. The upstream call runs under the
	// completion deadline and must die with it.
	t.mustTransition(StateCompleting)
	cctx, cancel := context.WithTimeout(ctx, t.o.cfg.CompleteDeadline)
	defer cancel()

	creq := llm.CompletionRequest{
		System:    plan.System,
		Prompt:    plan.Prompt,
		MaxTokens: plan.MaxTokens,
		History:   toLLMHistory(hist),
	}

	resultCh := make(chan completion, 1)
	go func() {
		if plan.Run != nil {
			text, files, err := plan.Run(cctx)
			resultCh <- completion{text: text, files: files, err: err}
			return
		}
		text, err := t.o.completer.Complete(cctx, creq)
		resultCh <- completion{text: text, err: err}
	}()

	timer := MetricTimerStart("orchestrator", "complete")
	select {
	case <-cctx.Done():
		// Deadline expired (or the process is shutting the context down):
		// cancel upstream, tell the user once, and discard whatever the
		// upstream eventually returns.
		cancel()
		MetricTimerStop(timer)
		t.expire(resultCh)
		return

	case res := <-resultCh:
		MetricTimerStop(timer)
		if res.err != nil {
			if cctx.Err() != nil {
				// The provider surfaced our own cancellation.
				t.expire(nil)
				return
			}
			t.fail(classifyUpstream(res.err))
			return
		}
		t.deliver(res.text, res.files, plan)
	}
}

// deliver splits the completion and sends it: one placeholder edit for
// the first chunk, followups for the rest, attachments last, all in order.
func (t *task) deliver(text string, files []File, plan Plan) {
	chunks := splitter.Segment(plan.Prefix+text, t.tr.MaxMessageLen())

	if err := t.editAck(chunks[0]); err != nil {
		t.mustTransition(StateFailed)
		t.o.record(t.req.Identity, t.req.Kind, t.req.Command, interaction.OutcomeFailed, time.Since(t.req.ReceivedAt))
		return
	}
	for _, chunk := range chunks[1:] {
		if err := t.followup(chunk); err != nil {
			t.mustTransition(StateFailed)
			t.o.record(t.req.Identity, t.req.Kind, t.req.Command, interaction.OutcomeFailed, time.Since(t.req.ReceivedAt))
			return
		}
	}
	for _, f := range files {
		if err := t.sendFile(f); err != nil {
			t.mustTransition(StateFailed)
			t.o.record(t.req.Identity, t.req.Kind, t.req.Command, interaction.OutcomeFailed, time.Since(t.req.ReceivedAt))
			return
		}
	}

	t.mustTransition(StateDelivered)
	MetricInc("orchestrator", "delivered")
	L_debug("orchestrator: delivered", "request", t.req.ID, "chunks", len(chunks), "files", len(files), "elapsed", time.Since(t.req.ReceivedAt))

	if plan.RecordHistory {
		turn := interaction.Turn{Role: interaction.RoleAssistant, Content: text, At: time.Now()}
		if err := t.o.history.Append(context.Background(), t.req.Identity, turn); err != nil {
			L_warn("orchestrator: assistant turn not recorded", "request", t.req.ID, "error", err)
		}
	}
	t.o.record(t.req.Identity, t.req.Kind, t.req.Command, interaction.OutcomeDelivered, time.Since(t.req.ReceivedAt))
}

// expire delivers the single timeout notice and discards the in-flight
// result. resultCh may be nil when the provider already returned.
func (t *task) expire(resultCh <-chan completion) {
	L_warn("orchestrator: completion deadline expired", "request", t.req.ID, "deadline", t.o.cfg.CompleteDeadline)
	MetricInc("orchestrator", "expired")

	t.editAck(msgTimedOut)
	t.mustTransition(StateExpired)
	t.o.record(t.req.Identity, t.req.Kind, t.req.Command, interaction.OutcomeExpired, time.Since(t.req.ReceivedAt))

	if resultCh != nil {
		go func() {
			res := <-resultCh
			if res.err == nil {
				MetricInc("orchestrator", "late_results_discarded")
				L_debug("orchestrator: late upstream result discarded", "request", t.req.ID, "length", len(res.text))
			}
		}()
	}
}

// fail delivers the single classified failure notice. An upstream-reported
// timeout expires the interaction like a local deadline would.
func (t *task) fail(f *Failure) {
	MetricOutcome("orchestrator", "failures", f.Kind.String())
	if f.Kind == FailureUpstreamTimeout {
		L_warn("orchestrator: upstream timed out", "request", t.req.ID, "error", f.Err)
		MetricInc("orchestrator", "expired")
	} else {
		L_error("orchestrator: interaction failed", "request", t.req.ID, "kind", f.Kind.String(), "error", f.Err)
		MetricInc("orchestrator", "failed")
	}

	t.editAck(f.UserMessage())
	if f.Kind == FailureUpstreamTimeout {
		t.mustTransition(StateExpired)
	} else {
		t.mustTransition(StateFailed)
	}
	t.o.record(t.req.Identity, t.req.Kind, t.req.Command, f.Outcome(), time.Since(t.req.ReceivedAt))
}

// failBestEffort runs at the task boundary after a panic. The interaction
// may be mid-flight in any state, so transition legality is bypassed; the
// reply is attempted before the state is forced terminal.
func (t *task) failBestEffort() {
	t.mu.Lock()
	if t.state.Terminal() {
		t.mu.Unlock()
		return
	}
	acked, edited := t.acked, t.edited
	t.mu.Unlock()

	if acked && !edited {
		t.editAckUnguarded(msgGenericError)
	} else if !acked {
		t.acknowledgeUnguarded(msgGenericError)
	}

	t.mu.Lock()
	t.state = StateFailed
	t.mu.Unlock()
	t.o.record(t.req.Identity, t.req.Kind, t.req.Command, interaction.OutcomeFailed, time.Since(t.req.ReceivedAt))
}

// transition moves the state machine, rejecting anything the lifecycle
// does not permit.
func (t *task) transition(to State) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !transitionLegal(t.state, to) {
		MetricInc("orchestrator", "invariant_violations")
		return &Failure{
			Kind: FailureInternalInvariant,
			Err:  fmt.Errorf("illegal transition %s -> %s for request %s", t.state, to, t.req.ID),
		}
	}
	L_trace("orchestrator: state", "request", t.req.ID, "from", t.state.String(), "to", to.String())
	t.state = to
	return nil
}

// mustTransition panics on an illegal transition; the task-boundary
// recover converts it to a Failed reply.
func (t *task) mustTransition(to State) {
	if err := t.transition(to); err != nil {
		panic(err)
	}
}

// guardSend refuses I/O once the interaction is terminal.
func (t *task) guardSend(op string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.Terminal() {
		MetricInc("orchestrator", "invariant_violations")
		L_error("orchestrator: send refused after terminal state", "request", t.req.ID, "state", t.state.String(), "op", op)
		return false
	}
	return true
}

// acknowledge sends the initial reply (placeholder or coinciding final).
func (t *task) acknowledge(text string) error {
	if !t.guardSend("acknowledge") {
		return &Failure{Kind: FailureInternalInvariant, Err: fmt.Errorf("acknowledge after terminal state")}
	}
	t.mu.Lock()
	if t.acked {
		t.mu.Unlock()
		MetricInc("orchestrator", "invariant_violations")
		return &Failure{Kind: FailureInternalInvariant, Err: fmt.Errorf("double acknowledge")}
	}
	t.mu.Unlock()
	return t.acknowledgeUnguarded(text)
}

func (t *task) acknowledgeUnguarded(text string) error {
	return t.withRetry("acknowledge", func(ctx context.Context) error {
		h, err := t.tr.Acknowledge(ctx, t.req, text)
		if err != nil {
			return err
		}
		t.mu.Lock()
		t.handle = h
		t.acked = true
		t.mu.Unlock()
		return nil
	})
}

// acknowledgeQuick answers a quick plan: a modal when the plan carries
// one and the transport can open it, buttoned text when the transport
// supports components, plain text otherwise.
func (t *task) acknowledgeQuick(plan Plan) error {
	if plan.Modal != nil {
		if mo, ok := t.tr.(ModalOpener); ok {
			return t.openModal(mo, *plan.Modal)
		}
		L_debug("orchestrator: transport cannot open modals, replying with text", "request", t.req.ID, "modal", plan.Modal.ID)
	}
	if len(plan.Buttons) > 0 {
		if bs, ok := t.tr.(ButtonSender); ok {
			return t.acknowledgeButtons(bs, plan)
		}
		L_debug("orchestrator: transport cannot attach buttons, replying with text", "request", t.req.ID, "buttons", len(plan.Buttons))
	}
	return t.acknowledge(plan.Reply)
}

func (t *task) openModal(mo ModalOpener, m Modal) error {
	if !t.guardSend("open_modal") {
		return &Failure{Kind: FailureInternalInvariant, Err: fmt.Errorf("modal after terminal state")}
	}
	err := t.withRetry("open_modal", func(ctx context.Context) error {
		return mo.OpenModal(ctx, t.req, m)
	})
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.acked = true
	t.mu.Unlock()
	return nil
}

func (t *task) acknowledgeButtons(bs ButtonSender, plan Plan) error {
	if !t.guardSend("acknowledge") {
		return &Failure{Kind: FailureInternalInvariant, Err: fmt.Errorf("acknowledge after terminal state")}
	}
	return t.withRetry("acknowledge", func(ctx context.Context) error {
		h, err := bs.AcknowledgeWithButtons(ctx, t.req, plan.Reply, plan.Buttons)
		if err != nil {
			return err
		}
		t.mu.Lock()
		t.handle = h
		t.acked = true
		t.mu.Unlock()
		return nil
	})
}

// editAck performs the single permitted placeholder edit.
func (t *task) editAck(text string) error {
	if !t.guardSend("edit_acknowledgment") {
		return &Failure{Kind: FailureInternalInvariant, Err: fmt.Errorf("edit after terminal state")}
	}
	t.mu.Lock()
	if t.edited {
		t.mu.Unlock()
		MetricInc("orchestrator", "invariant_violations")
		L_error("orchestrator: second placeholder edit refused", "request", t.req.ID)
		return &Failure{Kind: FailureInternalInvariant, Err: fmt.Errorf("second placeholder edit")}
	}
	t.edited = true
	t.mu.Unlock()
	return t.editAckUnguarded(text)
}

func (t *task) editAckUnguarded(text string) error {
	t.mu.Lock()
	h := t.handle
	t.edited = true
	t.mu.Unlock()
	return t.withRetry("edit_acknowledgment", func(ctx context.Context) error {
		return t.tr.EditAcknowledgment(ctx, t.req, h, text)
	})
}

// followup sends one ordered content chunk after the edit.
func (t *task) followup(text string) error {
	if !t.guardSend("send_followup") {
		return &Failure{Kind: FailureInternalInvariant, Err: fmt.Errorf("followup after terminal state")}
	}
	return t.withRetry("send_followup", func(ctx context.Context) error {
		return t.tr.SendFollowup(ctx, t.req, text)
	})
}

// sendFile attaches one file after the text chunks. A transport without
// file support logs and drops the attachment.
func (t *task) sendFile(f File) error {
	fs, ok := t.tr.(FileSender)
	if !ok {
		MetricInc("orchestrator", "files_dropped")
		L_warn("orchestrator: transport cannot send files, attachment dropped", "request", t.req.ID, "file", f.Name)
		return nil
	}
	if !t.guardSend("send_file") {
		return &Failure{Kind: FailureInternalInvariant, Err: fmt.Errorf("file after terminal state")}
	}
	return t.withRetry("send_file", func(ctx context.Context) error {
		return fs.SendFile(ctx, t.req, f.Name, f.Data)
	})
}

// withRetry runs one transport call with a single retry. A second
// failure is final: the user gets nothing, so it logs at error severity.
func (t *task) withRetry(what string, op func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), t.o.cfg.SendTimeout)
	err := op(ctx)
	cancel()
	if err == nil {
		return nil
	}

	MetricInc("orchestrator", "transport_retries")
	L_warn("orchestrator: transport call failed, retrying once", "request", t.req.ID, "op", what, "error", err)
	time.Sleep(t.o.cfg.RetryBackoff)

	ctx, cancel = context.WithTimeout(context.Background(), t.o.cfg.SendTimeout)
	err = op(ctx)
	cancel()
	if err != nil {
		MetricFailWithReason("orchestrator", "transport", what)
		L_error("orchestrator: transport call failed after retry, reply lost", "request", t.req.ID, "op", what, "error", err)
		return &Failure{Kind: FailureTransportError, Err: err}
	}
	return nil
}

func toLLMHistory(turns []interaction.Turn) []llm.Message {
	if len(turns) == 0 {
		return nil
	}
	out := make([]llm.Message, 0, len(turns))
	for _, turn := range turns {
		role := llm.RoleUser
		if turn.Role == interaction.RoleAssistant {
			role = llm.RoleAssistant
		}
		out = append(out, llm.Message{Role: role, Content: turn.Content})
	}
	return out
}
