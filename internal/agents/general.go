package agents

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"telcomax.com/billing-assistant/internal/llm"
	"telcomax.com/billing-assistant/internal/memory"
	"telcomax.com/billing-assistant/internal/rag"
	"telcomax.com/billing-assistant/internal/store"
)

const generalSystemPrompt = `You are a friendly TelcoMax Wireless customer service representative.
Answer the question using the reference material below. You may discuss general
pricing (e.g. "The Pro plan is $49.99/month") but NEVER specific amounts from an
individual customer's bill or balance. If the reference material does not cover
the question, say so. Be concise.`

// GeneralResponder answers general-knowledge questions from the reference
// namespace. It must never state account-specific numeric claims: when the
// session holds an account identifier and the query is about the caller's own
// account, it signals escalation to the account-specific responder instead of
// generating anything. Drafts that slip an amount through anyway are caught
// downstream by the guardrail.
type GeneralResponder struct {
	generator llm.Generator
	strategy  rag.Strategy
	namespace string
	topK      int
	logger    *zap.Logger
}

func NewGeneralResponder(generator llm.Generator, strategy rag.Strategy, namespace string, topK int, logger *zap.Logger) *GeneralResponder {
	return &GeneralResponder{
		generator: generator,
		strategy:  strategy,
		namespace: namespace,
		topK:      topK,
		logger:    logger,
	}
}

// Respond drafts an answer. escalate is true when the session holds an
// account identifier and the query concerns the caller's own account; in that
// case no draft is produced.
func (r *GeneralResponder) Respond(ctx context.Context, query string, session *store.Session) (Response, bool, error) {
	_, hasAccount := session.Entities[store.EntityAccountID]
	if hasAccount && asksAboutOwnAccount(query) {
		r.logger.Info("general responder escalating: personal billing question with account context",
			zap.String("session_id", session.ID))
		return Response{}, true, nil
	}

	chunks, err := r.strategy.Retrieve(ctx, query, r.namespace, r.topK)
	if err != nil {
		return Response{}, false, fmt.Errorf("general retrieval failed: %w", err)
	}

	prompt := generalSystemPrompt + "\n\nReference material:\n" + formatChunks(chunks) +
		"\n\nCustomer question: " + query
	answer, err := r.generator.Complete(ctx, prompt, 0.7, 500)
	if err != nil {
		return Response{}, false, fmt.Errorf("general draft failed: %w", err)
	}

	return Response{
		Answer:     strings.TrimSpace(answer),
		Confidence: topScore(chunks),
		Responder:  ResponderGeneral,
	}, false, nil
}

var personalPhrases = []string{
	"my bill", "my account", "my balance", "my charge",
	"my invoice", "my payment", "i owe", "i was charged",
}

func asksAboutOwnAccount(query string) bool {
	q := strings.ToLower(query)
	for _, phrase := range personalPhrases {
		if strings.Contains(q, phrase) {
			return true
		}
	}
	return false
}

func formatChunks(chunks []rag.ScoredChunk) string {
	if len(chunks) == 0 {
		return "(no reference material found)"
	}
	var b strings.Builder
	for i, c := range chunks {
		fmt.Fprintf(&b, "[%d] %s (chunk %d, score %.3f)\n%s\n\n", i+1, c.DocID, c.ChunkID, c.Score, c.Text)
	}
	return b.String()
}

func topScore(chunks []rag.ScoredChunk) float64 {
	if len(chunks) == 0 {
		return 0
	}
	score := chunks[0].Score
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// sessionContext renders entity context for retrieval and prompts.
func sessionContext(session *store.Session) string {
	return memory.ContextSummary(session)
}
