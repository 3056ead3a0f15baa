package langchain

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/sweetpotato0/adaptive-rag/message"
)

type fakeModel struct {
	got  []llms.MessageContent
	opts llms.CallOptions
}

func (f *fakeModel) GenerateContent(_ context.Context, msgs []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.got = msgs
	for _, opt := range options {
		opt(&f.opts)
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "grounded answer"}}}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func TestGenerateMapsRolesAndTemperature(t *testing.T) {
	model := &fakeModel{}
	p := FromModel(model, 0.3)

	reply, err := p.Generate(context.Background(), []*message.Message{
		message.NewMessage(message.RoleSystem, "sys"),
		message.NewMessage(message.RoleHuman, "q"),
		message.NewMessage(message.RoleAssistant, "a"),
	})
	require.NoError(t, err)
	assert.Equal(t, "grounded answer", reply.Content)
	assert.Equal(t, message.RoleAssistant, reply.Role)

	require.Len(t, model.got, 3)
	assert.Equal(t, llms.ChatMessageTypeSystem, model.got[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, model.got[1].Role)
	assert.Equal(t, llms.ChatMessageTypeAI, model.got[2].Role)
	assert.InDelta(t, 0.3, model.opts.Temperature, 1e-9)
}

func TestNewRequiresModel(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestNewCarriesTemperature(t *testing.T) {
	p, err := New(Config{BaseURL: "http://localhost:11434/v1", Model: "llama3", Temperature: 0.4})
	require.NoError(t, err)
	assert.InDelta(t, 0.4, p.temperature, 1e-9)
}
