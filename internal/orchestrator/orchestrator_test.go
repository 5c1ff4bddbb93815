package orchestrator

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"telcomax.com/billing-assistant/internal/agents"
	"telcomax.com/billing-assistant/internal/llm"
	"telcomax.com/billing-assistant/internal/memory"
	"telcomax.com/billing-assistant/internal/rag"
	"telcomax.com/billing-assistant/internal/store"
)

// scriptedGenerator replays canned completions (or errors) in order.
type scriptedGenerator struct {
	responses []string
	errs      []error
	calls     int
}

func (g *scriptedGenerator) Complete(ctx context.Context, prompt string, temperature float32, maxOutputTokens int) (string, error) {
	i := g.calls
	g.calls++
	if i < len(g.errs) && g.errs[i] != nil {
		return "", g.errs[i]
	}
	if i < len(g.responses) {
		return g.responses[i], nil
	}
	return "", assert.AnError
}

type fixedStrategy struct {
	chunks []rag.ScoredChunk
	err    error
}

func (s *fixedStrategy) Name() rag.StrategyKind { return rag.StrategyDirect }

func (s *fixedStrategy) Retrieve(ctx context.Context, query, namespace string, topK int) ([]rag.ScoredChunk, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.chunks, nil
}

const validAccountJSON = `{
  "answer": "Your March bill is $137.14.",
  "citations": [
    {"doc_id": "invoice-march", "chunk_id": 2, "quote": "total due $137.14 for the March cycle"}
  ]
}`

func accountChunks(score float64) []rag.ScoredChunk {
	return []rag.ScoredChunk{
		{DocID: "invoice-march", ChunkID: 2, Text: "total due $137.14 for the March cycle", Score: score},
	}
}

func referenceChunks() []rag.ScoredChunk {
	return []rag.ScoredChunk{
		{DocID: "billing-policies", ChunkID: 0, Text: "late fees apply 15 days after the due date", Score: 0.9},
	}
}

type fixture struct {
	orch *Orchestrator
	mem  *memory.SessionMemory
}

func newFixture(gen *scriptedGenerator, general, account rag.Strategy) *fixture {
	logger := zap.NewNop()
	mem := memory.NewSessionMemory(store.NewInMemoryStore(), logger)
	orch := New(Deps{
		Router:       agents.NewRouter(gen, logger),
		General:      agents.NewGeneralResponder(gen, general, "telecom-wiki", 4, logger),
		Account:      agents.NewAccountResponder(gen, account, "customer-docs", 4, logger),
		GeneralGuard: agents.NewGeneralGuardrail(logger),
		AccountGuard: agents.NewAccountGuardrail(logger),
		Validator:    agents.NewValidator(0.75, logger),
		Memory:       mem,
		Extractor:    memory.NewEntityExtractor(),
		Logger:       logger,
	})
	return &fixture{orch: orch, mem: mem}
}

func TestGeneralKnowledgeFlow(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{
		"general_knowledge",
		"Late fees apply 15 days after the due date.",
	}}
	f := newFixture(gen, &fixedStrategy{chunks: referenceChunks()}, &fixedStrategy{})

	result, err := f.orch.HandleTurn(context.Background(), "s1", "when do late fees apply?")
	require.NoError(t, err)

	assert.Equal(t, StateApproved, result.State)
	assert.Equal(t, agents.IntentGeneralKnowledge, result.Intent)
	assert.Equal(t, agents.ResponderGeneral, result.Responder)
	assert.Equal(t, "Late fees apply 15 days after the due date.", result.Response)

	session, err := f.mem.GetOrCreate(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, session.Turns, 2)
	assert.Equal(t, store.RoleUser, session.Turns[0].Role)
	assert.Equal(t, store.RoleSystem, session.Turns[1].Role)
	assert.Equal(t, agents.ResponderGeneral, session.Turns[1].Responder)
}

func TestAccountSpecificFlowApproved(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{
		"account_specific",
		validAccountJSON,
	}}
	f := newFixture(gen, &fixedStrategy{}, &fixedStrategy{chunks: accountChunks(0.91)})

	result, err := f.orch.HandleTurn(context.Background(), "s1", "what is my march bill?")
	require.NoError(t, err)

	assert.Equal(t, StateApproved, result.State)
	assert.Equal(t, agents.ResponderAccount, result.Responder)
	assert.Contains(t, result.Response, "$137.14")
	assert.Contains(t, result.Response, "Sources:")
	require.Len(t, result.Citations, 1)
	assert.Equal(t, "invoice-march", result.Citations[0].DocID)
}

func TestGeneralEscalatesWhenSessionHoldsAccount(t *testing.T) {
	// The router says general, but the query is a personal billing question and
	// carries an account id that the extractor merges before dispatch, so the
	// general responder escalates.
	gen := &scriptedGenerator{responses: []string{
		"general_knowledge",
		validAccountJSON,
	}}
	f := newFixture(gen, &fixedStrategy{chunks: referenceChunks()}, &fixedStrategy{chunks: accountChunks(0.91)})

	result, err := f.orch.HandleTurn(context.Background(), "s1", "My account is ACC-2024-001, what do I owe?")
	require.NoError(t, err)

	assert.Equal(t, StateApproved, result.State)
	assert.Equal(t, agents.ResponderAccount, result.Responder)
	assert.Contains(t, result.Response, "$137.14")

	session, err := f.mem.GetOrCreate(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "ACC-2024-001", session.Entities[store.EntityAccountID].Value)
}

func TestLowConfidenceRejectedWithClarifyingQuestion(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{
		"account_specific",
		validAccountJSON,
	}}
	f := newFixture(gen, &fixedStrategy{}, &fixedStrategy{chunks: accountChunks(0.4)})

	result, err := f.orch.HandleTurn(context.Background(), "s1", "what do I owe?")
	require.NoError(t, err)

	assert.Equal(t, StateRejected, result.State)
	assert.Contains(t, result.Response, "more information")
	// The unverified draft never reaches the user.
	assert.NotContains(t, result.Response, "$137.14")
	assert.Empty(t, result.Citations)
}

func TestEmptyRetrievalRejected(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{"account_specific"}}
	f := newFixture(gen, &fixedStrategy{}, &fixedStrategy{chunks: nil})

	result, err := f.orch.HandleTurn(context.Background(), "s1", "what do I owe?")
	require.NoError(t, err)

	assert.Equal(t, StateRejected, result.State)
	assert.Contains(t, result.Response, "more information")
}

func TestRetrievalFailureDegradesToApology(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{"account_specific"}}
	broken := &fixedStrategy{err: &rag.RetrievalError{Namespace: "customer-docs", Err: assert.AnError}}
	f := newFixture(gen, &fixedStrategy{}, broken)

	result, err := f.orch.HandleTurn(context.Background(), "s1", "what do I owe?")
	require.NoError(t, err)

	assert.Equal(t, StateError, result.State)
	assert.Contains(t, result.Response, "support representative")
}

func TestGenerationFailureDegradesToApology(t *testing.T) {
	// The retry decorator has already exhausted its attempts by the time a
	// generation error reaches the orchestrator, so the turn degrades with a
	// handoff offer instead of burning a strict-format regeneration.
	gen := &scriptedGenerator{
		responses: []string{"account_specific"},
		errs:      []error{nil, &llm.GenerationError{Err: assert.AnError}},
	}
	f := newFixture(gen, &fixedStrategy{}, &fixedStrategy{chunks: accountChunks(0.91)})

	result, err := f.orch.HandleTurn(context.Background(), "s1", "what do I owe?")
	require.NoError(t, err)

	assert.Equal(t, StateError, result.State)
	assert.Contains(t, result.Response, "support representative")
	assert.Equal(t, 2, gen.calls)
}

func TestMalformedOutputRegeneratedOnce(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{
		"account_specific",
		"I think your bill is $137.14, hope that helps!",
		validAccountJSON,
	}}
	f := newFixture(gen, &fixedStrategy{}, &fixedStrategy{chunks: accountChunks(0.91)})

	result, err := f.orch.HandleTurn(context.Background(), "s1", "what do I owe?")
	require.NoError(t, err)

	assert.Equal(t, StateApproved, result.State)
	assert.Equal(t, 3, gen.calls)
}

func TestMalformedOutputTwiceFailsTheTurn(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{
		"account_specific",
		"not json",
		"still not json",
	}}
	f := newFixture(gen, &fixedStrategy{}, &fixedStrategy{chunks: accountChunks(0.91)})

	result, err := f.orch.HandleTurn(context.Background(), "s1", "what do I owe?")
	require.NoError(t, err)

	assert.Equal(t, StateError, result.State)
	assert.NotEmpty(t, result.Response)
}

func TestMultiTurnEntityCarryOver(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{
		"account_specific", validAccountJSON,
		"general_knowledge", validAccountJSON,
	}}
	f := newFixture(gen, &fixedStrategy{chunks: referenceChunks()}, &fixedStrategy{chunks: accountChunks(0.91)})
	ctx := context.Background()

	_, err := f.orch.HandleTurn(ctx, "s1", "My account is ACC-2024-001, what is my bill?")
	require.NoError(t, err)

	// Second turn has no account id in the text, but the session remembers it,
	// so the general-knowledge route escalates to the account responder.
	result, err := f.orch.HandleTurn(ctx, "s1", "and how is my bill calculated?")
	require.NoError(t, err)
	assert.Equal(t, agents.ResponderAccount, result.Responder)
}

func TestGuardrailReroutesCurrencyDraft(t *testing.T) {
	// A plan-pricing question is fair game for the general responder even when
	// the session holds an account id, but if its draft quotes an amount the
	// guardrail discards the draft and reroutes to the account responder.
	gen := &scriptedGenerator{responses: []string{
		"account_specific", validAccountJSON,
		"general_knowledge", "The Pro plan costs $49.99 per month.", validAccountJSON,
	}}
	f := newFixture(gen, &fixedStrategy{chunks: referenceChunks()}, &fixedStrategy{chunks: accountChunks(0.91)})
	ctx := context.Background()

	_, err := f.orch.HandleTurn(ctx, "s1", "My account is ACC-2024-001, what do I owe?")
	require.NoError(t, err)

	result, err := f.orch.HandleTurn(ctx, "s1", "what does the Pro plan cost?")
	require.NoError(t, err)

	assert.Equal(t, StateApproved, result.State)
	assert.Equal(t, agents.ResponderAccount, result.Responder)
	assert.NotContains(t, result.Response, "$49.99")
	assert.Equal(t, 5, gen.calls)

	rerouted := false
	for _, line := range result.Trace {
		if strings.Contains(line, "rerouting") {
			rerouted = true
		}
	}
	assert.True(t, rerouted, "trace should record the guardrail reroute")
}

func TestFormatApprovedTruncatesQuotesOnRuneBoundary(t *testing.T) {
	resp := agents.Response{
		Answer:    "Your March bill is $137.14.",
		Responder: agents.ResponderAccount,
		Citations: []agents.Citation{
			{DocID: "invoice-march", ChunkID: 2, Quote: strings.Repeat("û", 70)},
		},
	}

	out := formatApproved(resp)
	assert.True(t, utf8.ValidString(out))
	assert.Contains(t, out, strings.Repeat("û", 60)+"...")
	assert.NotContains(t, out, strings.Repeat("û", 61))
}

func TestTraceRecordsThePath(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{
		"general_knowledge",
		"Late fees apply 15 days after the due date.",
	}}
	f := newFixture(gen, &fixedStrategy{chunks: referenceChunks()}, &fixedStrategy{})

	result, err := f.orch.HandleTurn(context.Background(), "s1", "when do late fees apply?")
	require.NoError(t, err)

	require.NotEmpty(t, result.Trace)
	assert.Contains(t, result.Trace[0], "router")
	assert.Contains(t, result.Trace[len(result.Trace)-1], "approved")
}
