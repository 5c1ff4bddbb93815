package agents

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func approvedResponse() Response {
	return Response{
		Answer: "Your March bill was $137.14, including a $7.50 late fee.",
		Citations: []Citation{
			{DocID: "invoice-march", ChunkID: 2, Quote: "total due $137.14 for the March cycle", Score: 0.91},
			{DocID: "billing-policies", ChunkID: 0, Quote: "a late payment fee of $7.50 is applied", Score: 0.88},
		},
		Confidence: 0.91,
		Responder:  ResponderAccount,
	}
}

func TestValidateApprovesGroundedResponse(t *testing.T) {
	v := NewValidator(0.75, zap.NewNop())

	result := v.Validate(approvedResponse())
	assert.True(t, result.Approved)
	assert.Empty(t, result.Reasons)
}

func TestValidateRejectsMissingCitations(t *testing.T) {
	v := NewValidator(0.75, zap.NewNop())

	resp := approvedResponse()
	resp.Citations = nil

	result := v.Validate(resp)
	require.False(t, result.Approved)
	assert.Contains(t, result.Reasons[0], "no citations")
}

func TestValidateRejectsLowConfidence(t *testing.T) {
	v := NewValidator(0.75, zap.NewNop())

	resp := approvedResponse()
	resp.Confidence = 0.74

	result := v.Validate(resp)
	require.False(t, result.Approved)
	assert.Contains(t, result.Reasons[0], "confidence too low")
}

func TestValidateRejectsUnverifiedAmount(t *testing.T) {
	v := NewValidator(0.75, zap.NewNop())

	resp := approvedResponse()
	resp.Answer = "Your March bill was $137.14, plus a $99.99 device charge."

	result := v.Validate(resp)
	require.False(t, result.Approved)
	require.Len(t, result.Reasons, 1)
	assert.Contains(t, result.Reasons[0], "$99.99")
}

func TestValidateThresholdBoundaryIsInclusive(t *testing.T) {
	v := NewValidator(0.75, zap.NewNop())

	resp := approvedResponse()
	resp.Confidence = 0.75

	assert.True(t, v.Validate(resp).Approved)
}

func TestValidateCollectsAllReasons(t *testing.T) {
	v := NewValidator(0.75, zap.NewNop())

	result := v.Validate(Response{
		Answer:     "It costs $42.00.",
		Confidence: 0.1,
		Responder:  ResponderAccount,
	})
	require.False(t, result.Approved)
	assert.Len(t, result.Reasons, 3)
}

func TestValidateIsOrderIndependent(t *testing.T) {
	v := NewValidator(0.75, zap.NewNop())
	rng := rand.New(rand.NewSource(7))

	resp := approvedResponse()
	for i := 0; i < 20; i++ {
		shuffled := append([]Citation(nil), resp.Citations...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		permuted := resp
		permuted.Citations = shuffled
		assert.True(t, v.Validate(permuted).Approved)
	}
}

func TestCurrencyAmounts(t *testing.T) {
	amounts := CurrencyAmounts("You owe $1,250.00 plus $5 and a $7.50 fee.")
	assert.Equal(t, []string{"$1,250.00", "$5", "$7.50"}, amounts)

	assert.Empty(t, CurrencyAmounts("no amounts here"))
}

func TestCurrencyAmountsRequireALeadingDigit(t *testing.T) {
	assert.Empty(t, CurrencyAmounts("a stray $ sign"))
	assert.Empty(t, CurrencyAmounts("punctuation like $, is not money"))
	assert.Equal(t, []string{"$5"}, CurrencyAmounts("$5 is, though"))
}

func TestClarifyingQuestionMentionsMissingInfo(t *testing.T) {
	q := ClarifyingQuestion(ValidationResult{
		Approved: false,
		Reasons:  []string{"no citations provided; cannot verify answer without evidence"},
	})
	assert.Contains(t, q, "more information")
	assert.Contains(t, q, "account number")
}

func TestClarifyingQuestionNeverEchoesAmounts(t *testing.T) {
	q := ClarifyingQuestion(ValidationResult{
		Approved: false,
		Reasons:  []string{"unverified amount $99.99 not found in any citation quote"},
	})
	assert.NotContains(t, q, "$99.99")
	assert.Contains(t, q, "charges")
}
