// Package agents holds the responder roles of the assistant: the intent
// router, the two domain responders, their guardrails, and the validator that
// cross-checks account-specific answers before they reach the user.
package agents

import "regexp"

// Intent is the closed set of query classifications.
type Intent string

const (
	IntentGeneralKnowledge Intent = "general_knowledge"
	IntentAccountSpecific  Intent = "account_specific"
)

// Responder tags identify which responder produced an answer.
const (
	ResponderGeneral = "general"
	ResponderAccount = "account"
)

// Citation points at the verbatim evidence behind a claim.
type Citation struct {
	DocID   string  `json:"doc_id"`
	ChunkID int     `json:"chunk_id"`
	Quote   string  `json:"quote"`
	Score   float64 `json:"score"`
}

// Response is a typed draft answer. An account-specific response must carry
// at least one citation before it may reach the validator.
type Response struct {
	Answer     string     `json:"answer"`
	Citations  []Citation `json:"citations"`
	Confidence float64    `json:"confidence"`
	Responder  string     `json:"responder"`
}

// ValidationResult reports the validator's decision. Reasons is empty iff
// approved.
type ValidationResult struct {
	Approved bool     `json:"approved"`
	Reasons  []string `json:"reasons,omitempty"`
}

// currencyPattern matches currency-amount tokens like $137.14, $1,250.00, $5.
// A digit must follow the dollar sign so "$," and a bare "$" never count.
var currencyPattern = regexp.MustCompile(`\$\d[\d,]*(?:\.\d{2})?`)

// CurrencyAmounts extracts all currency-amount tokens from text.
func CurrencyAmounts(text string) []string {
	return currencyPattern.FindAllString(text, -1)
}
