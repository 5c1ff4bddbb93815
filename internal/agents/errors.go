package agents

import (
	"errors"
	"fmt"
)

// ClassificationError reports a router output that was unparsable or outside
// the intent enum. The router retries once and then defaults; this error
// never reaches the orchestrator.
type ClassificationError struct {
	Raw string
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("unparsable intent label %q", e.Raw)
}

// ErrGuardrailLoopExceeded means a second reroute was attempted within one
// turn. Fatal for the turn, logged for investigation.
var ErrGuardrailLoopExceeded = errors.New("guardrail triggered after reroute; giving up on this turn")

// ErrMalformedResponse means the account responder's output failed the shape
// check even after a stricter regeneration attempt.
var ErrMalformedResponse = errors.New("responder output failed shape validation after regeneration")
