package llmengine

import (
	"context"
	"hash/fnv"
	"strings"
)

// MockEngine is a deterministic stand-in for tests and for extraction
// dry-runs: it never calls out to a real model. Chat returns Reply
// verbatim; Stream emits it word by word, each word followed by one
// space, then a Done event; Embed derives a stable low-dimensional
// vector from the input's hash so cosine similarity tests are
// reproducible without a real embedding model.
type MockEngine struct {
	Reply string
	Dim   int
}

var _ Engine = (*MockEngine)(nil)
var _ Embedder = (*MockEngine)(nil)

func NewMockEngine(reply string) *MockEngine {
	return &MockEngine{Reply: reply, Dim: 32}
}

func (m *MockEngine) Name() string { return "mock" }

func (m *MockEngine) Chat(ctx context.Context, messages []Message) (Message, error) {
	return Message{Role: "assistant", Content: m.Reply}, nil
}

func (m *MockEngine) Stream(ctx context.Context, messages []Message) (<-chan TokenEvent, error) {
	out := make(chan TokenEvent, 4)
	go func() {
		defer close(out)
		for _, word := range strings.Fields(m.Reply) {
			select {
			case out <- TokenEvent{Content: word + " "}:
			case <-ctx.Done():
				return
			}
		}
		out <- TokenEvent{Done: true}
	}()
	return out, nil
}

func (m *MockEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	dim := m.Dim
	if dim == 0 {
		dim = 32
	}
	out := make([]float32, dim)
	h := fnv.New64a()
	for i := range out {
		h.Write([]byte{byte(i)})
		h.Write([]byte(text))
		sum := h.Sum64()
		out[i] = float32(sum%2000)/1000.0 - 1.0
	}
	return out, nil
}
