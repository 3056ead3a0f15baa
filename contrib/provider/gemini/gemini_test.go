package gemini

import (
	"context"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"

	"github.com/sweetpotato0/adaptive-rag/message"
)

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New(context.Background(), DefaultConfig(""))
	assert.Error(t, err)
}

func TestToContentsSplitsLastHumanTurn(t *testing.T) {
	system, history, last := toContents([]*message.Message{
		message.NewMessage(message.RoleSystem, "be concise"),
		message.NewMessage(message.RoleHuman, "hi"),
		message.NewMessage(message.RoleAssistant, "hello"),
		message.NewMessage(message.RoleHuman, "what now?"),
	})

	assert.Equal(t, "be concise", system)
	assert.Equal(t, "what now?", last)
	if assert.Len(t, history, 2) {
		assert.Equal(t, "user", history[0].Role)
		assert.Equal(t, "model", history[1].Role)
	}
}

func TestResponseTextJoinsParts(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{genai.Text("Paris "), genai.Text("is the capital.")}},
		}},
	}
	assert.Equal(t, "Paris is the capital.", responseText(resp))
	assert.Equal(t, "", responseText(nil))
}
