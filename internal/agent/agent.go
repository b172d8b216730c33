// Package agent runs one conversational turn as a state machine: the Responder is asked
// for a reply, requested tools are dispatched, content-only answers are validated, and
// failed answers are regenerated with the collected evidence until a verdict ends the turn.
package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/qmuntal/stateless"

	"github.com/comigor/save-go/internal/conversation"
	"github.com/comigor/save-go/internal/logger"
	"github.com/comigor/save-go/internal/memory"
	"github.com/comigor/save-go/internal/validator"
)

// State is a node of the turn state machine.
type State string

const (
	StateDispatchOrAnswer State = "DispatchOrAnswer"
	StateRunTools         State = "RunTools"
	StateValidate         State = "Validate"
	StateRegenerate       State = "Regenerate"
	StateDone             State = "Done"  // Terminal: answer ready to commit
	StateError            State = "Error" // Terminal: nothing is committed
)

// Trigger moves the state machine between states.
type Trigger string

const (
	TriggerToolsRequested      Trigger = "ToolsRequested"
	TriggerAnswerReady         Trigger = "AnswerReady"
	TriggerAuthoritativeAnswer Trigger = "AuthoritativeAnswer"
	TriggerToolsCompleted      Trigger = "ToolsCompleted"
	TriggerPassed              Trigger = "Passed"
	TriggerEnded               Trigger = "Ended"
	TriggerRejected            Trigger = "Rejected"
	TriggerRegenerated         Trigger = "Regenerated"
	TriggerLimitReached        Trigger = "LimitReached"
	TriggerFailed              Trigger = "Failed"
)

var (
	// ErrResponder wraps a failed Responder call. The turn is not committed.
	ErrResponder = errors.New("responder failed")
	// ErrCancelled wraps the context error of a turn cancelled between steps.
	ErrCancelled = errors.New("turn cancelled")
)

// NoAnswer is returned when the loop limit ends a turn before any content-only reply.
const NoAnswer = "I wasn't able to produce a complete answer for this request. Please try again or rephrase your question."

// Responder produces the next assistant message.
type Responder interface {
	Respond(ctx context.Context, history []conversation.Message, mode conversation.Mode) (conversation.Message, error)
}

// Dispatcher runs a batch of tool calls and returns one result message per call, in order.
type Dispatcher interface {
	Run(ctx context.Context, calls []conversation.ToolCall) []conversation.Message
}

// Validator judges the latest answer of a conversation.
type Validator interface {
	Validate(ctx context.Context, msgs []conversation.Message) conversation.Verdict
}

// Memory is the session store the agent reads from and commits to.
type Memory interface {
	ExpireIfIdle(id string) bool
	Snapshot(id string) []conversation.Message
	Commit(id string, msgs ...conversation.Message)
	RecordValidation(id string, v memory.Validation)
}

// Agent runs turns. It is safe for concurrent use; turns of the same session are serialized.
type Agent struct {
	responder  Responder
	dispatcher Dispatcher
	validator  Validator
	memory     Memory
	classifier validator.Classifier

	maxMessages   int
	evidenceItems int
	evidenceChars int
	answerChars   int
	turnTimeout   time.Duration

	locks keyedMutex
}

// Option configures an Agent.
type Option func(*Agent)

// WithMaxMessages sets the conversation length that forces END.
func WithMaxMessages(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.maxMessages = n
		}
	}
}

// WithEvidence bounds the tool-result digest given to the Responder on regeneration.
func WithEvidence(items, chars int) Option {
	return func(a *Agent) {
		if items > 0 {
			a.evidenceItems = items
		}
		if chars > 0 {
			a.evidenceChars = chars
		}
	}
}

// WithAnswerChars caps the failed answer quoted back on regeneration.
func WithAnswerChars(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.answerChars = n
		}
	}
}

// WithTurnTimeout bounds the wall-clock time of a turn. Zero disables the deadline.
func WithTurnTimeout(d time.Duration) Option {
	return func(a *Agent) { a.turnTimeout = d }
}

// WithClassifier replaces the query-kind policy used to shape regeneration guidance.
func WithClassifier(c validator.Classifier) Option {
	return func(a *Agent) { a.classifier = c }
}

// New creates an Agent.
func New(responder Responder, dispatcher Dispatcher, v Validator, mem Memory, opts ...Option) *Agent {
	a := &Agent{
		responder:     responder,
		dispatcher:    dispatcher,
		validator:     v,
		memory:        mem,
		classifier:    validator.KeywordClassifier,
		maxMessages:   validator.DefaultMaxMessages,
		evidenceItems: 5,
		evidenceChars: 800,
		answerChars:   1500,
		turnTimeout:   2 * time.Minute,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Event reports one state transition of a turn.
type Event struct {
	SessionID string `json:"session_id"`
	From      State  `json:"from"`
	To        State  `json:"to"`
	Trigger   string `json:"trigger"`
}

// TurnOptions are the per-call settings of Process.
type TurnOptions struct {
	// Progress is called synchronously on every state transition of the turn.
	Progress func(Event)
}

// TurnOption configures a single call to Process.
type TurnOption func(*TurnOptions)

// WithProgress reports every state transition of the turn to fn.
func WithProgress(fn func(Event)) TurnOption {
	return func(o *TurnOptions) { o.Progress = fn }
}

// Result is the outcome of a completed turn.
type Result struct {
	SessionID      string                 `json:"session_id"`
	Answer         string                 `json:"answer"`
	Verdict        conversation.Verdict   `json:"-"`
	Authoritative  bool                   `json:"authoritative"`
	Regenerations  int                    `json:"regenerations"`
	ResponderCalls int                    `json:"responder_calls"`
	Products       []conversation.Product `json:"products,omitempty"`
	Messages       []conversation.Message `json:"-"`
}

// turn is the conversation state of one state-machine run.
type turn struct {
	sessionID string
	msgs      []conversation.Message
	start     int // index of the user message that opened the turn
	mode      conversation.Mode

	verdict        conversation.Verdict
	authoritative  bool
	regenerations  int
	responderCalls int
	err            error
}

func (t *turn) current() []conversation.Message { return t.msgs[t.start:] }

// Process runs one turn for the user's text and, once it reaches Done, commits the user
// message and the final answer to memory. On error memory is left untouched.
func (a *Agent) Process(ctx context.Context, sessionID, text string, opts ...TurnOption) (Result, error) {
	if sessionID == "" {
		sessionID = memory.DefaultSessionID
	}
	var o TurnOptions
	for _, opt := range opts {
		opt(&o)
	}

	unlock := a.locks.Lock(sessionID)
	defer unlock()

	if a.turnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.turnTimeout)
		defer cancel()
	}

	log := logger.Session("agent", sessionID)
	if a.memory.ExpireIfIdle(sessionID) {
		log.Info("idle session cleared before turn")
	}

	history := a.memory.Snapshot(sessionID)
	t := &turn{
		sessionID: sessionID,
		msgs:      append(history, conversation.User(text)),
		start:     len(history),
	}

	fsm := a.newMachine(t, o.Progress)
	for {
		state := fsm.MustState().(State)
		if state == StateDone || state == StateError {
			break
		}
		if err := fsm.FireCtx(ctx, a.step(ctx, t, state)); err != nil {
			return Result{}, fmt.Errorf("agent state machine: %w", err)
		}
	}

	if fsm.MustState() == StateError {
		log.Error("turn failed", "error", t.err)
		return Result{}, t.err
	}

	res := a.commit(t)
	log.Info("turn completed",
		"verdict", res.Verdict.String(),
		"regenerations", res.Regenerations,
		"responder_calls", res.ResponderCalls,
		"messages", len(t.msgs))
	return res, nil
}

func (a *Agent) newMachine(t *turn, progress func(Event)) *stateless.StateMachine {
	fsm := stateless.NewStateMachine(StateDispatchOrAnswer)

	fsm.Configure(StateDispatchOrAnswer).
		Permit(TriggerToolsRequested, StateRunTools).
		Permit(TriggerAnswerReady, StateValidate).
		Permit(TriggerAuthoritativeAnswer, StateDone).
		Permit(TriggerLimitReached, StateDone).
		Permit(TriggerFailed, StateError)

	fsm.Configure(StateRunTools).
		Permit(TriggerToolsCompleted, StateDispatchOrAnswer).
		Permit(TriggerLimitReached, StateDone).
		Permit(TriggerFailed, StateError)

	fsm.Configure(StateValidate).
		Permit(TriggerPassed, StateDone).
		Permit(TriggerEnded, StateDone).
		Permit(TriggerRejected, StateRegenerate).
		Permit(TriggerLimitReached, StateDone).
		Permit(TriggerFailed, StateError)

	fsm.Configure(StateRegenerate).
		Permit(TriggerRegenerated, StateDispatchOrAnswer).
		Permit(TriggerLimitReached, StateDone).
		Permit(TriggerFailed, StateError)

	fsm.Configure(StateDone)
	fsm.Configure(StateError)

	log := logger.Session("agent", t.sessionID)
	fsm.OnTransitioned(func(_ context.Context, tr stateless.Transition) {
		ev := Event{
			SessionID: t.sessionID,
			From:      tr.Source.(State),
			To:        tr.Destination.(State),
			Trigger:   string(tr.Trigger.(Trigger)),
		}
		log.Debug("state transition", "from", ev.From, "to", ev.To, "trigger", ev.Trigger)
		if progress != nil {
			progress(ev)
		}
	})
	return fsm
}

// step performs the work of state and returns the trigger to fire next.
func (a *Agent) step(ctx context.Context, t *turn, state State) Trigger {
	if err := ctx.Err(); err != nil {
		t.err = fmt.Errorf("%w: %w", ErrCancelled, err)
		return TriggerFailed
	}
	if len(t.msgs) > a.maxMessages {
		t.verdict = conversation.End()
		return TriggerLimitReached
	}

	switch state {
	case StateDispatchOrAnswer:
		return a.respond(ctx, t)
	case StateRunTools:
		last := t.msgs[len(t.msgs)-1]
		t.msgs = append(t.msgs, a.dispatcher.Run(ctx, last.ToolCalls)...)
		return TriggerToolsCompleted
	case StateValidate:
		t.mode = conversation.Normal()
		t.verdict = a.validator.Validate(ctx, t.msgs)
		switch t.verdict.Kind {
		case conversation.VerdictPass:
			return TriggerPassed
		case conversation.VerdictEnd:
			return TriggerEnded
		default:
			return TriggerRejected
		}
	case StateRegenerate:
		t.mode = conversation.Mode{Regenerate: a.regeneration(t)}
		t.regenerations++
		logger.Session("agent", t.sessionID).Info("regenerating answer", "reason", t.verdict.Reason, "attempt", t.regenerations)
		return TriggerRegenerated
	}
	t.err = fmt.Errorf("agent: no action for state %s", state)
	return TriggerFailed
}

func (a *Agent) respond(ctx context.Context, t *turn) Trigger {
	reply, err := a.responder.Respond(ctx, conversation.Clone(t.msgs), t.mode)
	t.responderCalls++
	if err != nil {
		t.err = fmt.Errorf("%w: %w", ErrResponder, err)
		return TriggerFailed
	}
	t.msgs = append(t.msgs, reply)

	if reply.HasToolCalls() {
		return TriggerToolsRequested
	}
	if res, ok := conversation.LastToolResult(t.current()); ok && res.Authoritative {
		t.verdict = conversation.Pass()
		t.authoritative = true
		return TriggerAuthoritativeAnswer
	}
	return TriggerAnswerReady
}

// regeneration collects the guidance for the next Responder call: the failure reason,
// the most recent tool results of the turn and the rejected answer.
func (a *Agent) regeneration(t *turn) *conversation.Regeneration {
	results := conversation.ToolResults(t.current())
	if len(results) > a.evidenceItems {
		results = results[len(results)-a.evidenceItems:]
	}
	evidence := make([]string, 0, len(results))
	for _, r := range results {
		evidence = append(evidence, r.ToolName+": "+truncate(r.Content, a.evidenceChars))
	}

	var prior string
	if ans, ok := conversation.LastAnswer(t.current()); ok {
		prior = truncate(ans.Content, a.answerChars)
	}
	query := t.msgs[t.start].Content
	return &conversation.Regeneration{
		Reason:      t.verdict.Reason,
		Evidence:    evidence,
		PriorAnswer: prior,
		Kind:        a.classifier.Classify(query, t.msgs[:t.start]),
	}
}

// commit stores the user message and final answer, then records every product the
// turn's tools identified.
func (a *Agent) commit(t *turn) Result {
	answer := conversation.Assistant(NoAnswer)
	if ans, ok := conversation.LastAnswer(t.current()); ok {
		answer = ans
	}
	a.memory.Commit(t.sessionID, t.msgs[t.start], answer)

	var products []conversation.Product
	for _, r := range conversation.ToolResults(t.current()) {
		if r.Product == nil {
			continue
		}
		products = append(products, *r.Product)
		status := "found"
		if r.Authoritative {
			status = "verified"
		}
		a.memory.RecordValidation(t.sessionID, memory.Validation{
			UPC:    r.Product.UPC,
			Name:   r.Product.Name,
			Status: status,
			Source: r.Product.Source,
		})
	}

	return Result{
		SessionID:      t.sessionID,
		Answer:         answer.Content,
		Verdict:        t.verdict,
		Authoritative:  t.authoritative,
		Regenerations:  t.regenerations,
		ResponderCalls: t.responderCalls,
		Products:       products,
		Messages:       conversation.Clone(t.current()),
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
