// Package orchestrator wires the router, session memory, responders,
// guardrails, and validator into the per-turn state machine.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"telcomax.com/billing-assistant/internal/agents"
	"telcomax.com/billing-assistant/internal/llm"
	"telcomax.com/billing-assistant/internal/memory"
	"telcomax.com/billing-assistant/internal/rag"
	"telcomax.com/billing-assistant/internal/store"
)

// State names a node of the per-turn state machine.
type State string

const (
	StateRouting        State = "routing"
	StateMemoryMerge    State = "memory_merge"
	StateDispatch       State = "dispatch"
	StateGuardrailCheck State = "guardrail_check"
	StateValidate       State = "validate"

	// Terminal states.
	StateApproved State = "approved"
	StateRejected State = "rejected"
	StateError    State = "error"
)

const (
	apologyResponse = "I'm sorry, I wasn't able to process your request just now. " +
		"Would you like me to connect you with a support representative?"
	safeErrorResponse = "I'm sorry, something went wrong while handling your question. " +
		"Please try again in a moment."
)

// Result is the outcome of one turn.
type Result struct {
	State     State
	Response  string
	Citations []agents.Citation
	Responder string
	Intent    agents.Intent
	Trace     []string
}

// Orchestrator runs one conversational turn:
// Routing → MemoryMerge → Dispatch → GuardrailCheck →
// {Reroute→Dispatch (at most once) | Validate} → {Approved | Rejected} | Error.
type Orchestrator struct {
	router       *agents.Router
	general      *agents.GeneralResponder
	account      *agents.AccountResponder
	generalGuard *agents.GeneralGuardrail
	accountGuard *agents.AccountGuardrail
	validator    *agents.Validator
	memory       *memory.SessionMemory
	extractor    *memory.EntityExtractor
	logger       *zap.Logger
}

type Deps struct {
	Router       *agents.Router
	General      *agents.GeneralResponder
	Account      *agents.AccountResponder
	GeneralGuard *agents.GeneralGuardrail
	AccountGuard *agents.AccountGuardrail
	Validator    *agents.Validator
	Memory       *memory.SessionMemory
	Extractor    *memory.EntityExtractor
	Logger       *zap.Logger
}

func New(deps Deps) *Orchestrator {
	return &Orchestrator{
		router:       deps.Router,
		general:      deps.General,
		account:      deps.Account,
		generalGuard: deps.GeneralGuard,
		accountGuard: deps.AccountGuard,
		validator:    deps.Validator,
		memory:       deps.Memory,
		extractor:    deps.Extractor,
		logger:       deps.Logger,
	}
}

// HandleTurn processes a query within a session. The returned Result always
// carries user-visible text; collaborator failures end in the Error state
// with a safe response rather than an error return.
func (o *Orchestrator) HandleTurn(ctx context.Context, sessionID, query string) (*Result, error) {
	result := &Result{State: StateRouting}
	trace := func(format string, args ...any) {
		result.Trace = append(result.Trace, fmt.Sprintf(format, args...))
	}

	session, err := o.memory.GetOrCreate(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to open session: %w", err)
	}
	if err := o.memory.AppendTurn(ctx, sessionID, store.Turn{Role: store.RoleUser, Text: query}); err != nil {
		return nil, fmt.Errorf("failed to record user turn: %w", err)
	}

	// Routing.
	result.Intent = o.router.Classify(ctx, query, session.Turns)
	trace("router: classified as %s", result.Intent)

	// MemoryMerge: extract entities from the query and fold them in before
	// dispatch so this turn's responder sees them.
	result.State = StateMemoryMerge
	if extracted := o.extractor.Extract(query); len(extracted) > 0 {
		if err := o.memory.MergeEntities(ctx, sessionID, extracted); err != nil {
			return nil, fmt.Errorf("failed to merge entities: %w", err)
		}
		trace("memory: merged %d entities", len(extracted))
		if session, err = o.memory.GetOrCreate(ctx, sessionID); err != nil {
			return nil, fmt.Errorf("failed to reload session: %w", err)
		}
	}

	intent := result.Intent
	rerouted := false
	var response agents.Response

dispatch:
	result.State = StateDispatch
	switch intent {
	case agents.IntentGeneralKnowledge:
		draft, escalate, err := o.general.Respond(ctx, query, session)
		if err != nil {
			return o.finishDegraded(ctx, sessionID, result, err, trace)
		}
		if escalate {
			if rerouted {
				return o.finishError(ctx, sessionID, result, agents.ErrGuardrailLoopExceeded, trace)
			}
			rerouted = true
			intent = agents.IntentAccountSpecific
			trace("general responder: escalating to account responder")
			goto dispatch
		}
		response = draft
		trace("general responder: drafted answer")

		result.State = StateGuardrailCheck
		if !o.generalGuard.Check(response, session) {
			if rerouted {
				return o.finishError(ctx, sessionID, result, agents.ErrGuardrailLoopExceeded, trace)
			}
			rerouted = true
			intent = agents.IntentAccountSpecific
			trace("guardrail: draft discarded, rerouting to account responder")
			goto dispatch
		}
		trace("guardrail: passed")

		// The general path skips the validator.
		return o.finish(ctx, sessionID, result, StateApproved, response.Answer, response, trace)

	case agents.IntentAccountSpecific:
		draft, err := o.account.Respond(ctx, query, session, false)
		if err != nil {
			// Backend failures arrive here already retried with backoff.
			// Only a malformed reply earns the strict-format regeneration.
			var retrievalErr *rag.RetrievalError
			var genErr *llm.GenerationError
			if errors.As(err, &retrievalErr) || errors.As(err, &genErr) {
				return o.finishDegraded(ctx, sessionID, result, err, trace)
			}
			trace("account responder: malformed output, regenerating")
			draft, err = o.account.Respond(ctx, query, session, true)
			if err != nil {
				if errors.As(err, &retrievalErr) || errors.As(err, &genErr) {
					return o.finishDegraded(ctx, sessionID, result, err, trace)
				}
				return o.finishError(ctx, sessionID, result, agents.ErrMalformedResponse, trace)
			}
		}
		response = draft
		trace("account responder: drafted answer with %d citations", len(response.Citations))

		result.State = StateGuardrailCheck
		if !o.accountGuard.Check(response) {
			return o.finishError(ctx, sessionID, result, agents.ErrMalformedResponse, trace)
		}
		trace("guardrail: passed")

	default:
		return nil, fmt.Errorf("unknown intent %q", intent)
	}

	// Validate: account-specific path only.
	result.State = StateValidate
	verdict := o.validator.Validate(response)
	if !verdict.Approved {
		trace("validator: rejected (%s)", strings.Join(verdict.Reasons, "; "))
		return o.finish(ctx, sessionID, result, StateRejected, agents.ClarifyingQuestion(verdict), response, trace)
	}
	trace("validator: approved")
	return o.finish(ctx, sessionID, result, StateApproved, formatApproved(response), response, trace)
}

// finish records the system turn and returns the terminal result.
func (o *Orchestrator) finish(ctx context.Context, sessionID string, result *Result, state State, text string, response agents.Response, trace func(string, ...any)) (*Result, error) {
	result.State = state
	result.Response = text
	result.Responder = response.Responder
	if state == StateApproved {
		result.Citations = response.Citations
	}
	trace("terminal: %s", state)

	if err := o.memory.AppendTurn(ctx, sessionID, store.Turn{
		Role:      store.RoleSystem,
		Text:      text,
		Responder: response.Responder,
	}); err != nil {
		o.logger.Error("failed to record system turn", zap.String("session_id", sessionID), zap.Error(err))
	}
	return result, nil
}

// finishDegraded handles unavailable collaborators: the user sees an apology
// and handoff offer, never a fabricated answer.
func (o *Orchestrator) finishDegraded(ctx context.Context, sessionID string, result *Result, cause error, trace func(string, ...any)) (*Result, error) {
	o.logger.Error("turn degraded by collaborator failure", zap.String("session_id", sessionID), zap.Error(cause))
	trace("collaborator failure: %v", cause)
	return o.finish(ctx, sessionID, result, StateError, apologyResponse, agents.Response{}, trace)
}

// finishError handles fatal-for-turn conditions such as a second reroute.
func (o *Orchestrator) finishError(ctx context.Context, sessionID string, result *Result, cause error, trace func(string, ...any)) (*Result, error) {
	o.logger.Error("turn failed", zap.String("session_id", sessionID), zap.Error(cause))
	trace("fatal: %v", cause)
	return o.finish(ctx, sessionID, result, StateError, safeErrorResponse, agents.Response{}, trace)
}

func formatApproved(response agents.Response) string {
	if len(response.Citations) == 0 {
		return response.Answer
	}
	var b strings.Builder
	b.WriteString(response.Answer)
	b.WriteString("\n\nSources:\n")
	for i, c := range response.Citations {
		quote := c.Quote
		if runes := []rune(quote); len(runes) > 60 {
			quote = string(runes[:60]) + "..."
		}
		fmt.Fprintf(&b, "  [%d] %s: %q\n", i+1, c.DocID, quote)
	}
	return b.String()
}
