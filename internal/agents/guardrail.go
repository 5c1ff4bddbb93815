package agents

import (
	"go.uber.org/zap"

	"telcomax.com/billing-assistant/internal/store"
)

// GeneralGuardrail is the deterministic check applied to general-knowledge
// drafts: a currency amount in the draft while the session holds an account
// identifier means the draft must be discarded and the turn rerouted to the
// account-specific responder.
type GeneralGuardrail struct {
	logger *zap.Logger
}

func NewGeneralGuardrail(logger *zap.Logger) *GeneralGuardrail {
	return &GeneralGuardrail{logger: logger}
}

// Check returns false when the draft must not be surfaced and the turn
// should be rerouted.
func (g *GeneralGuardrail) Check(draft Response, session *store.Session) bool {
	_, hasAccount := session.Entities[store.EntityAccountID]
	if !hasAccount {
		return true
	}
	amounts := CurrencyAmounts(draft.Answer)
	if len(amounts) == 0 {
		return true
	}
	g.logger.Warn("general draft blocked: currency amounts with account identifier in session",
		zap.String("session_id", session.ID),
		zap.Strings("blocked_amounts", amounts))
	return false
}

// AccountGuardrail validates the shape of an account responder output:
// citations list present and confidence set. A malformed shape triggers one
// regeneration with stricter formatting instructions before the turn fails.
type AccountGuardrail struct {
	logger *zap.Logger
}

func NewAccountGuardrail(logger *zap.Logger) *AccountGuardrail {
	return &AccountGuardrail{logger: logger}
}

// Check returns true when the response shape is usable by the validator.
func (g *AccountGuardrail) Check(resp Response) bool {
	if resp.Responder != ResponderAccount {
		g.logger.Warn("account guardrail: wrong responder tag", zap.String("responder", resp.Responder))
		return false
	}
	if resp.Confidence < 0 || resp.Confidence > 1 {
		g.logger.Warn("account guardrail: confidence out of range", zap.Float64("confidence", resp.Confidence))
		return false
	}
	for _, c := range resp.Citations {
		if c.DocID == "" || c.Quote == "" {
			g.logger.Warn("account guardrail: incomplete citation", zap.String("doc_id", c.DocID))
			return false
		}
	}
	return true
}
