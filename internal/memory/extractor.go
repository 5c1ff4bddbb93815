package memory

import (
	"regexp"
	"strings"

	"telcomax.com/billing-assistant/internal/store"
)

// EntityExtractor pulls structured facts out of user messages with regex
// patterns. Each pattern carries the confidence assigned to its matches; an
// explicit account id is near-certain, a relative billing period is not.
type EntityExtractor struct {
	accountPatterns []scoredPattern
	namePatterns    []scoredPattern
	periodPatterns  []scoredPattern
}

type scoredPattern struct {
	re         *regexp.Regexp
	confidence float64
}

var topicKeywords = map[string][]string{
	"billing":  {"bill", "invoice", "charge", "payment", "amount", "due", "balance"},
	"plans":    {"plan", "upgrade", "downgrade", "package", "subscription"},
	"dispute":  {"dispute", "wrong", "incorrect", "error", "overcharge", "refund"},
	"late_fee": {"late", "fee", "penalty", "overdue"},
}

func NewEntityExtractor() *EntityExtractor {
	return &EntityExtractor{
		accountPatterns: []scoredPattern{
			{regexp.MustCompile(`\b(ACC-[A-Z0-9]+-[A-Z0-9]+)\b`), 0.95},
			{regexp.MustCompile(`\b(ACC-\d{9,12})\b`), 0.95},
			{regexp.MustCompile(`(?i)\baccount\s*(?:number|#|id)?:?\s*([A-Z0-9-]{6,})\b`), 0.8},
			{regexp.MustCompile(`(?i)\baccount\s+is\s+([A-Z0-9-]{6,})\b`), 0.8},
		},
		namePatterns: []scoredPattern{
			{regexp.MustCompile(`(?:I'm|I am|my name is|this is)\s+([A-Z][a-z]+)`), 0.6},
			{regexp.MustCompile(`^([A-Z][a-z]+)\s+here\b`), 0.5},
		},
		periodPatterns: []scoredPattern{
			{regexp.MustCompile(`(?i)\b(January|February|March|April|May|June|July|August|September|October|November|December)\s+(\d{4})\b`), 0.9},
			{regexp.MustCompile(`(?i)\b(January|February|March|April|May|June|July|August|September|October|November|December)\s+bill\b`), 0.7},
			{regexp.MustCompile(`(?i)\b(this month|last month|current month|previous month)\b`), 0.5},
		},
	}
}

// Extract returns all entities found in the text.
func (e *EntityExtractor) Extract(text string) []store.Entity {
	var entities []store.Entity

	if v, c := firstMatch(e.accountPatterns, text); v != "" {
		entities = append(entities, store.Entity{Type: store.EntityAccountID, Value: strings.ToUpper(v), Confidence: c})
	}
	if v, c := firstMatch(e.namePatterns, text); v != "" {
		entities = append(entities, store.Entity{Type: store.EntityCustomerName, Value: v, Confidence: c})
	}
	if v, c := e.extractPeriod(text); v != "" {
		entities = append(entities, store.Entity{Type: store.EntityBillingPeriod, Value: v, Confidence: c})
	}
	if topic := extractTopic(text); topic != "" {
		entities = append(entities, store.Entity{Type: store.EntityTopic, Value: topic, Confidence: 0.4})
	}
	return entities
}

func firstMatch(patterns []scoredPattern, text string) (string, float64) {
	for _, p := range patterns {
		if m := p.re.FindStringSubmatch(text); m != nil {
			return m[1], p.confidence
		}
	}
	return "", 0
}

func (e *EntityExtractor) extractPeriod(text string) (string, float64) {
	for _, p := range e.periodPatterns {
		m := p.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if len(m) >= 3 && m[2] != "" {
			return m[1] + " " + m[2], p.confidence
		}
		return m[1], p.confidence
	}
	return "", 0
}

func extractTopic(text string) string {
	lower := strings.ToLower(text)

	bestTopic, bestScore := "", 0
	for topic, keywords := range topicKeywords {
		score := 0
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				score++
			}
		}
		if score > bestScore || (score == bestScore && score > 0 && topic < bestTopic) {
			bestTopic, bestScore = topic, score
		}
	}
	return bestTopic
}

// ContextSummary renders session entities as a prompt prefix so responders
// know which customer and period the conversation is about.
func ContextSummary(session *store.Session) string {
	var parts []string
	if e, ok := session.Entities[store.EntityAccountID]; ok {
		parts = append(parts, "Account: "+e.Value)
	}
	if e, ok := session.Entities[store.EntityCustomerName]; ok {
		parts = append(parts, "Customer: "+e.Value)
	}
	if e, ok := session.Entities[store.EntityBillingPeriod]; ok {
		parts = append(parts, "Discussing: "+e.Value)
	}
	if e, ok := session.Entities[store.EntityTopic]; ok {
		parts = append(parts, "Topic: "+e.Value)
	}
	if len(parts) == 0 {
		return ""
	}
	return "Session Context: " + strings.Join(parts, " | ")
}
