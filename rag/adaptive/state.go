package adaptive

import (
	"fmt"

	"github.com/sweetpotato0/adaptive-rag/graph"
	"github.com/sweetpotato0/adaptive-rag/message"
	"github.com/sweetpotato0/adaptive-rag/rag/document"
)

const turnStateKey = "__adaptive_turn_state"

// Verdict is the tri-state outcome of the groundedness check.
type Verdict int8

const (
	VerdictUnknown Verdict = iota
	VerdictGrounded
	VerdictUngrounded
)

func (v Verdict) String() string {
	switch v {
	case VerdictGrounded:
		return "grounded"
	case VerdictUngrounded:
		return "ungrounded"
	default:
		return "unknown"
	}
}

// MarshalText renders the verdict by name.
func (v Verdict) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// TurnState is the working record of one question. It lives only for the
// duration of RunTurn.
type TurnState struct {
	ThreadID          string
	Question          string
	RewrittenQuestion string
	Route             Route
	// Documents holds evidence graded relevant so far, in arrival order.
	Documents []document.Document
	// Pending holds candidates from the latest retrieval round awaiting grading.
	Pending []document.Document
	// Context is the part of Documents that fits the evidence budget; it is
	// what generation and verification see.
	Context            []document.Document
	WebSearchTriggered bool
	RetryCount         int
	Generation         string
	Generations        int
	Grounded           Verdict
	Decision           Decision
	History            []*message.Message
}

// Query is the text sent to retrieval: the rewrite when present.
func (s *TurnState) Query() string {
	if s.RewrittenQuestion != "" {
		return s.RewrittenQuestion
	}
	return s.Question
}

// check enforces the bounds every stage must leave intact.
func (s *TurnState) check(cfg *Config) error {
	switch {
	case s.Question == "":
		return fmt.Errorf("turn state has no question")
	case s.RetryCount < 0 || s.RetryCount > cfg.MaxRetries:
		return fmt.Errorf("retry count %d outside [0, %d]", s.RetryCount, cfg.MaxRetries)
	case s.Generations > cfg.MaxRegenerations+1:
		return fmt.Errorf("%d generations exceed the regeneration bound %d", s.Generations, cfg.MaxRegenerations)
	}
	return nil
}

func getState(state graph.State) (*TurnState, error) {
	raw, ok := state[turnStateKey]
	if !ok {
		return nil, fmt.Errorf("turn state missing in graph")
	}
	st, ok := raw.(*TurnState)
	if !ok {
		return nil, fmt.Errorf("invalid turn state type")
	}
	return st, nil
}
