package chat

import (
	"fmt"
	"strings"

	"github.com/Pradhumn115/ruma-core/internal/llmengine"
	"github.com/Pradhumn115/ruma-core/internal/retrieval"
	"github.com/Pradhumn115/ruma-core/internal/storage"
)

const systemPreamble = "You are a helpful assistant with access to the user's long-term memory. " +
	"Use the remembered context below only when it is relevant to the current message."

// renderContextBlock turns a retrieval result into a short block the
// model can ground its reply in. Empty when no memories matched.
func renderContextBlock(res retrieval.Result) string {
	if len(res.Memories) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Remembered context:\n")
	for _, m := range res.Memories {
		fmt.Fprintf(&b, "- (%s) %s\n", m.MemoryType, m.Content)
	}
	return b.String()
}

// renderPrompt combines the context block, the bounded recent
// transcript, and the new user message into the message list sent to
// the LLM engine, per §4.6 step 3.
func renderPrompt(ctxBlock string, recent []storage.ChatMessage, userMessage string) []llmengine.Message {
	messages := make([]llmengine.Message, 0, len(recent)+2)

	system := systemPreamble
	if ctxBlock != "" {
		system += "\n\n" + ctxBlock
	}
	messages = append(messages, llmengine.Message{Role: "system", Content: system})

	for _, m := range recent {
		messages = append(messages, llmengine.Message{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, llmengine.Message{Role: "user", Content: userMessage})
	return messages
}
