package llmservice

import (
	"context"
	"strings"
	"sync"

	"github.com/tmc/langchaingo/llms"
)

// EchoModel is an llms.Model that answers with the prompt it was given. It records every
// prompt and the options of the last call. The "fake" provider uses it for offline runs.
type EchoModel struct {
	mu      sync.Mutex
	prompts []string
	options llms.CallOptions
	// Err, when set, is returned instead of an answer.
	Err error
}

var _ llms.Model = (*EchoModel)(nil)

func (m *EchoModel) GenerateContent(_ context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	var prompt strings.Builder
	for _, msg := range messages {
		for _, part := range msg.Parts {
			if text, ok := part.(llms.TextContent); ok {
				prompt.WriteString(text.Text)
			}
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.options = llms.CallOptions{}
	for _, opt := range options {
		opt(&m.options)
	}
	m.prompts = append(m.prompts, prompt.String())
	if m.Err != nil {
		return nil, m.Err
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: prompt.String()}},
	}, nil
}

func (m *EchoModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

// Prompts returns every prompt received so far.
func (m *EchoModel) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}

// LastOptions returns the call options of the most recent request.
func (m *EchoModel) LastOptions() llms.CallOptions {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.options
}
