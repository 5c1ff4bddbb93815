package agents

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"telcomax.com/billing-assistant/internal/llm"
	"telcomax.com/billing-assistant/internal/store"
)

const classifyPrompt = `Classify this customer query into ONE of these categories:

1. "account_specific" - Questions about the customer's OWN bill, charges, amounts, or account balance
   Examples: "What's my bill?", "How much do I owe?", "Why was I charged $X?"

2. "general_knowledge" - General questions about plans, pricing, features, policies, or how billing works
   Examples: "What plans do you offer?", "How does proration work?", "When was AT&T founded?"

%sCustomer Query: "%s"

Respond with ONLY the category name, nothing else.`

// Router classifies a query into an intent label. Classification runs at
// temperature zero so identical input yields identical output. An unparsable
// label is retried once and then defaults to account_specific: the safer
// choice, since it forces downstream validation instead of an unchecked
// general answer.
type Router struct {
	generator llm.Generator
	logger    *zap.Logger
}

func NewRouter(generator llm.Generator, logger *zap.Logger) *Router {
	return &Router{generator: generator, logger: logger}
}

func (r *Router) Classify(ctx context.Context, query string, recentTurns []store.Turn) Intent {
	prompt := fmt.Sprintf(classifyPrompt, formatRecentTurns(recentTurns), query)

	for attempt := 0; attempt < 2; attempt++ {
		raw, err := r.generator.Complete(ctx, prompt, 0, 20)
		if err != nil {
			r.logger.Warn("classification call failed", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}
		intent, err := parseIntent(raw)
		if err != nil {
			r.logger.Warn("classification unparsable", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}
		return intent
	}

	r.logger.Warn("classification failed twice, defaulting", zap.String("default", string(IntentAccountSpecific)))
	return IntentAccountSpecific
}

func parseIntent(raw string) (Intent, error) {
	label := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case strings.Contains(label, string(IntentAccountSpecific)):
		return IntentAccountSpecific, nil
	case strings.Contains(label, string(IntentGeneralKnowledge)):
		return IntentGeneralKnowledge, nil
	default:
		return "", &ClassificationError{Raw: raw}
	}
}

func formatRecentTurns(turns []store.Turn) string {
	if len(turns) == 0 {
		return ""
	}
	if len(turns) > 5 {
		turns = turns[len(turns)-5:]
	}
	var b strings.Builder
	b.WriteString("Recent conversation:\n")
	for _, t := range turns {
		text := t.Text
		if len(text) > 200 {
			text = text[:200] + "..."
		}
		fmt.Fprintf(&b, "  %s: %s\n", t.Role, text)
	}
	b.WriteString("\n")
	return b.String()
}
