package agents

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Validator cross-checks an account-specific response before approval. All
// three checks must pass: citations present, confidence at or above the
// threshold, and every currency amount in the answer verbatim inside at
// least one citation quote. The outcome is independent of citation order.
type Validator struct {
	threshold float64
	logger    *zap.Logger
}

func NewValidator(threshold float64, logger *zap.Logger) *Validator {
	return &Validator{threshold: threshold, logger: logger}
}

func (v *Validator) Validate(resp Response) ValidationResult {
	var reasons []string

	if len(resp.Citations) == 0 {
		reasons = append(reasons, "no citations provided; cannot verify answer without evidence")
	}

	if resp.Confidence < v.threshold {
		reasons = append(reasons, fmt.Sprintf("confidence too low (%.2f < %.2f)", resp.Confidence, v.threshold))
	}

	for _, amount := range CurrencyAmounts(resp.Answer) {
		verified := false
		for _, c := range resp.Citations {
			if strings.Contains(c.Quote, amount) {
				verified = true
				break
			}
		}
		if !verified {
			reasons = append(reasons, fmt.Sprintf("unverified amount %s not found in any citation quote", amount))
		}
	}

	if len(reasons) > 0 {
		v.logger.Info("response rejected", zap.Strings("reasons", reasons))
		return ValidationResult{Approved: false, Reasons: reasons}
	}
	return ValidationResult{Approved: true}
}

// ClarifyingQuestion builds the user-visible substitute for a rejected
// response. The unverified content is never surfaced.
func ClarifyingQuestion(result ValidationResult) string {
	questions := []string{"Can you provide more details about your question?"}
	for _, reason := range result.Reasons {
		switch {
		case strings.Contains(reason, "no citations"):
			questions = []string{
				"Can you provide your account number or customer ID?",
				"What specific billing period are you asking about?",
			}
		case strings.Contains(reason, "confidence too low"):
			questions = []string{
				"Can you provide your account number?",
				"Which billing period are you asking about?",
			}
		case strings.Contains(reason, "unverified amount"):
			questions = []string{
				"Can you confirm which charges you're asking about?",
				"Which specific invoice or bill are you referring to?",
			}
		}
	}

	var b strings.Builder
	b.WriteString("I need a bit more information to answer your question accurately:\n")
	for _, q := range questions {
		b.WriteString("  - " + q + "\n")
	}
	return b.String()
}
