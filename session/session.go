// Package session owns conversation memory per thread id. A Registry
// serializes turns on the same thread and delegates persistence to a Store.
package session

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/sweetpotato0/adaptive-rag/message"
)

// ThreadPrefix is prepended to generated thread ids.
const ThreadPrefix = "user_session_"

// Store persists the append-only message log of each thread.
type Store interface {
	// Append adds messages to the end of thread's log.
	Append(ctx context.Context, threadID string, msgs ...*message.Message) error
	// Messages returns the full log in insertion order. Unknown threads yield an empty slice.
	Messages(ctx context.Context, threadID string) ([]*message.Message, error)
	// Delete drops the thread's log. Deleting an unknown thread is not an error.
	Delete(ctx context.Context, threadID string) error
}

// Exchange is one answered question derived from the memory log.
type Exchange struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// NewThreadID generates a fresh opaque thread id.
func NewThreadID() string {
	return ThreadPrefix + uuid.NewString()
}

// Exchanges pairs each human message with the assistant reply that follows it.
func Exchanges(msgs []*message.Message) []Exchange {
	var out []Exchange
	for i := 0; i < len(msgs); i++ {
		if msgs[i] == nil || msgs[i].Role != message.RoleHuman {
			continue
		}
		ex := Exchange{Question: msgs[i].Content}
		if i+1 < len(msgs) && msgs[i+1] != nil && msgs[i+1].Role == message.RoleAssistant {
			ex.Answer = msgs[i+1].Content
			i++
		}
		out = append(out, ex)
	}
	return out
}

func validThread(threadID string) bool {
	return strings.TrimSpace(threadID) != ""
}
