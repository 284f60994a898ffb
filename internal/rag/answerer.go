package rag

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/chains"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/prompts"
	"github.com/tmc/langchaingo/schema"

	"textfile-qa/internal/llmservice"
	"textfile-qa/internal/models"
)

// Answerer fills the QA prompt with every retrieved chunk and asks the chat model.
type Answerer struct {
	chain       chains.StuffDocuments
	temperature float64
}

func NewAnswerer(model llms.Model, temperature float64) *Answerer {
	prompt := prompts.NewPromptTemplate(models.QAPromptTemplate, []string{"context", "question"})
	return &Answerer{
		chain:       chains.NewStuffDocuments(chains.NewLLMChain(model, prompt)),
		temperature: temperature,
	}
}

// Answer runs the stuff chain over docs. The chunks are concatenated as-is; nothing is
// truncated to fit the model's context window.
func (a *Answerer) Answer(ctx context.Context, question string, docs []schema.Document) (string, error) {
	out, err := chains.Call(ctx, a.chain, map[string]any{
		a.chain.InputKey: docs,
		"question":       question,
	}, chains.WithTemperature(a.temperature))
	if err != nil {
		return "", fmt.Errorf("%w: failed to generate answer: %w", llmservice.ErrProvider, err)
	}
	text, ok := out[a.chain.LLMChain.OutputKey].(string)
	if !ok {
		return "", fmt.Errorf("chain returned no %q output", a.chain.LLMChain.OutputKey)
	}
	return text, nil
}
