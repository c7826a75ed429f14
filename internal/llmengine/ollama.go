package llmengine

import (
	"context"
	"fmt"

	"github.com/ollama/ollama/api"
)

// OllamaEngine talks to a local Ollama daemon. Grounded on
// contenox-runtime's OllamaChatClient: collect the non-streaming
// response by accumulating the Chat callback, and treat the absence
// of any response or an error DoneReason as a hard failure rather than
// silently returning empty content.
type OllamaEngine struct {
	client *api.Client
	model  string
}

var _ Engine = (*OllamaEngine)(nil)
var _ Embedder = (*OllamaEngine)(nil)

func NewOllamaEngine(client *api.Client, model string) *OllamaEngine {
	return &OllamaEngine{client: client, model: model}
}

func (e *OllamaEngine) Name() string { return "ollama:" + e.model }

func (e *OllamaEngine) Chat(ctx context.Context, messages []Message) (Message, error) {
	req := &api.ChatRequest{
		Model:    e.model,
		Messages: toAPIMessages(messages),
		Stream:   boolPtr(false),
	}

	var final api.ChatResponse
	err := e.client.Chat(ctx, req, func(res api.ChatResponse) error {
		if res.Done {
			final = res
		}
		return nil
	})
	if err != nil {
		return Message{}, fmt.Errorf("ollama chat request failed for model %s: %w", e.model, err)
	}
	if final.Message.Role == "" {
		return Message{}, fmt.Errorf("no response received from ollama for model %s", e.model)
	}
	if final.DoneReason == "error" {
		return Message{}, fmt.Errorf("ollama generation error for model %s: %s", e.model, final.Message.Content)
	}

	return Message{Role: final.Message.Role, Content: final.Message.Content}, nil
}

func (e *OllamaEngine) Stream(ctx context.Context, messages []Message) (<-chan TokenEvent, error) {
	out := make(chan TokenEvent, 16)

	req := &api.ChatRequest{
		Model:    e.model,
		Messages: toAPIMessages(messages),
		Stream:   boolPtr(true),
	}

	go func() {
		defer close(out)
		err := e.client.Chat(ctx, req, func(res api.ChatResponse) error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if res.Message.Content != "" {
				select {
				case out <- TokenEvent{Content: res.Message.Content}:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			if res.Done {
				select {
				case out <- TokenEvent{Done: true}:
				case <-ctx.Done():
				}
			}
			return nil
		})
		if err != nil && ctx.Err() == nil {
			select {
			case out <- TokenEvent{Error: err}:
			default:
			}
		}
	}()

	return out, nil
}

// Embed produces a sentence embedding via Ollama's embeddings endpoint.
func (e *OllamaEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.Embeddings(ctx, &api.EmbeddingRequest{Model: e.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("ollama embed failed for model %s: %w", e.model, err)
	}
	out := make([]float32, len(resp.Embedding))
	for i, v := range resp.Embedding {
		out[i] = float32(v)
	}
	return out, nil
}

func toAPIMessages(messages []Message) []api.Message {
	apiMessages := make([]api.Message, 0, len(messages))
	for _, m := range messages {
		apiMessages = append(apiMessages, api.Message{Role: m.Role, Content: m.Content})
	}
	return apiMessages
}

func boolPtr(b bool) *bool { return &b }
