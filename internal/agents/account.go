package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"telcomax.com/billing-assistant/internal/llm"
	"telcomax.com/billing-assistant/internal/rag"
	"telcomax.com/billing-assistant/internal/store"
)

const accountSystemPrompt = `You are a TelcoMax Wireless billing specialist with access to customer
account documents. Answer using ONLY the retrieved documents below. Never make
up or estimate amounts. For every fact cite the document id and chunk id with a
short verbatim quote (20 words or fewer).

You MUST respond with exactly this JSON and nothing else:
{
  "answer": "your answer with exact amounts and dates",
  "citations": [
    {"doc_id": "...", "chunk_id": 0, "quote": "exact quote from the document"}
  ]
}`

const strictFormatReminder = `

IMPORTANT: your previous reply was not valid JSON. Respond with ONLY the JSON
object described above. No markdown fences, no prose before or after it.`

// AccountResponder answers account-specific questions from the customer
// document namespace and emits a typed Response with citations. Confidence
// is derived from the top retrieval score.
type AccountResponder struct {
	generator llm.Generator
	strategy  rag.Strategy
	namespace string
	topK      int
	logger    *zap.Logger
}

func NewAccountResponder(generator llm.Generator, strategy rag.Strategy, namespace string, topK int, logger *zap.Logger) *AccountResponder {
	return &AccountResponder{
		generator: generator,
		strategy:  strategy,
		namespace: namespace,
		topK:      topK,
		logger:    logger,
	}
}

// Respond retrieves, generates, and parses a structured answer. strict adds
// the tightened formatting instructions used on the single regeneration
// attempt after a malformed reply.
func (r *AccountResponder) Respond(ctx context.Context, query string, session *store.Session, strict bool) (Response, error) {
	// Scope retrieval with session entities so the right account's documents
	// surface first.
	searchQuery := query
	if sc := sessionContext(session); sc != "" {
		searchQuery = sc + " " + query
	}

	chunks, err := r.strategy.Retrieve(ctx, searchQuery, r.namespace, r.topK)
	if err != nil {
		return Response{}, fmt.Errorf("account retrieval failed: %w", err)
	}
	if len(chunks) == 0 {
		// No evidence at all: an empty-citation zero-confidence response that
		// the validator will reject into a clarifying question.
		return Response{Answer: "", Citations: nil, Confidence: 0, Responder: ResponderAccount}, nil
	}

	prompt := accountSystemPrompt
	if strict {
		prompt += strictFormatReminder
	}
	prompt += "\n\nRetrieved documents:\n" + formatChunks(chunks)
	if sc := sessionContext(session); sc != "" {
		prompt += "\nCustomer context: " + sc + "\n"
	}
	prompt += "\nCustomer question: " + query

	raw, err := r.generator.Complete(ctx, prompt, 0.3, 1000)
	if err != nil {
		return Response{}, fmt.Errorf("account draft failed: %w", err)
	}

	parsed, err := parseAccountResponse(raw)
	if err != nil {
		r.logger.Warn("account response unparsable", zap.Bool("strict", strict), zap.Error(err))
		return Response{}, err
	}

	attachScores(parsed.Citations, chunks)
	return Response{
		Answer:     parsed.Answer,
		Citations:  parsed.Citations,
		Confidence: topScore(chunks),
		Responder:  ResponderAccount,
	}, nil
}

type accountPayload struct {
	Answer    string     `json:"answer"`
	Citations []Citation `json:"citations"`
}

func parseAccountResponse(raw string) (*accountPayload, error) {
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var payload accountPayload
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return nil, fmt.Errorf("failed to parse responder JSON: %w", err)
	}
	if payload.Answer == "" {
		return nil, fmt.Errorf("responder JSON missing answer")
	}
	return &payload, nil
}

// attachScores carries retrieval scores onto the citations the model chose.
func attachScores(citations []Citation, chunks []rag.ScoredChunk) {
	scores := make(map[string]float64, len(chunks))
	for _, c := range chunks {
		scores[fmt.Sprintf("%s__%d", c.DocID, c.ChunkID)] = c.Score
	}
	for i := range citations {
		if score, ok := scores[fmt.Sprintf("%s__%d", citations[i].DocID, citations[i].ChunkID)]; ok {
			citations[i].Score = score
		}
	}
}
