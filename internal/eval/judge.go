package eval

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"telcomax.com/billing-assistant/internal/llm"
)

// Axes holds the three judged quality scores, each in [0,1].
type Axes struct {
	Faithfulness float64 `json:"faithfulness"`
	Relevancy    float64 `json:"relevancy"`
	Correctness  float64 `json:"correctness"`
}

// Mean is the composite of the three axes.
func (a Axes) Mean() float64 {
	return (a.Faithfulness + a.Relevancy + a.Correctness) / 3
}

const judgePrompt = `You are an impartial evaluator of a telecom billing assistant. Score the
candidate answer on three axes, each from 0.0 to 1.0:

- faithfulness: is every claim in the answer supported by the retrieved context?
- relevancy: does the answer address what the question asked?
- correctness: does the answer agree with the reference answer?

Question: %s

Reference answer: %s

Retrieved context:
%s

Candidate answer: %s

Respond with ONLY this JSON, nothing else:
{"faithfulness": 0.0, "relevancy": 0.0, "correctness": 0.0}`

// Judge scores a generated answer with a single generation call.
type Judge struct {
	generator llm.Generator
	logger    *zap.Logger
}

func NewJudge(generator llm.Generator, logger *zap.Logger) *Judge {
	return &Judge{generator: generator, logger: logger}
}

// Score judges one answer. Out-of-range values from the model are clamped
// into [0,1] rather than rejected.
func (j *Judge) Score(ctx context.Context, query, reference, answer string, contexts []string) (Axes, error) {
	contextBlock := "(none retrieved)"
	if len(contexts) > 0 {
		contextBlock = strings.Join(contexts, "\n---\n")
	}

	prompt := fmt.Sprintf(judgePrompt, query, reference, contextBlock, answer)
	raw, err := j.generator.Complete(ctx, prompt, 0, 200)
	if err != nil {
		return Axes{}, fmt.Errorf("judge call failed: %w", err)
	}

	axes, err := parseAxes(raw)
	if err != nil {
		j.logger.Warn("judge output unparsable", zap.String("raw", raw), zap.Error(err))
		return Axes{}, err
	}
	return axes, nil
}

func parseAxes(raw string) (Axes, error) {
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var axes Axes
	if err := json.Unmarshal([]byte(text), &axes); err != nil {
		return Axes{}, fmt.Errorf("failed to parse judge JSON: %w", err)
	}
	axes.Faithfulness = clamp01(axes.Faithfulness)
	axes.Relevancy = clamp01(axes.Relevancy)
	axes.Correctness = clamp01(axes.Correctness)
	return axes, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
