package learning

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Pradhumn115/ruma-core/internal/llmengine"
	"github.com/Pradhumn115/ruma-core/internal/memstore"
	"github.com/Pradhumn115/ruma-core/internal/storage"
)

// aspects is the ~12-strategy extraction sweep §4.5 names, reusing the
// memory_type enum so a stored memory's type records which aspect found
// it.
var aspects = []string{
	storage.MemoryTypeFact,
	storage.MemoryTypePreference,
	storage.MemoryTypePattern,
	storage.MemoryTypeSkill,
	storage.MemoryTypeGoal,
	storage.MemoryTypeEvent,
	storage.MemoryTypeEmotional,
	storage.MemoryTypeTemporal,
	storage.MemoryTypeContext,
	storage.MemoryTypeMeta,
	storage.MemoryTypeSocial,
	storage.MemoryTypeProcedural,
}

// transcript flattens a chat's messages into a plain-text block for the
// extraction prompt.
func transcript(messages []llmengine.Message) string {
	var b strings.Builder
	for _, m := range messages {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
	}
	return b.String()
}

func aspectPrompt(aspect, transcriptText string) []llmengine.Message {
	return []llmengine.Message{
		{Role: "system", Content: fmt.Sprintf(
			"You extract %s memories from a conversation transcript. "+
				"Respond with a JSON array of objects, each "+
				`{"content": string, "category": string, "importance": number 0-1, "keywords": [string]}. `+
				"Return an empty array if nothing qualifies. No commentary.", aspect)},
		{Role: "user", Content: transcriptText},
	}
}

// extractChat runs all ~12 aspect prompts over one chat's transcript and
// stores every parsed item via memstore. It aborts as soon as a
// UI-active signal is observed between aspects, returning preempted=true
// so the caller can re-queue the row instead of marking it processed.
func extractChat(ctx context.Context, mem *memstore.Store, engine llmengine.Engine, uiActive func() bool, userID, chatID, messagesJSON string) (preempted bool, err error) {
	var messages []llmengine.Message
	if err := json.Unmarshal([]byte(messagesJSON), &messages); err != nil {
		return false, fmt.Errorf("decoding chat messages: %w", err)
	}
	text := transcript(messages)

	for _, aspect := range aspects {
		if uiActive() {
			return true, nil
		}

		reply, err := engine.Chat(ctx, aspectPrompt(aspect, text))
		if err != nil {
			continue // one aspect failing doesn't sink the whole pass
		}

		for _, item := range ParseItems(reply.Content) {
			_, storeErr := mem.Store(ctx, memstore.Input{
				UserID:     userID,
				Content:    item.Content,
				MemoryType: aspect,
				Importance: item.Importance,
				Category:   item.Category,
				Keywords:   item.Keywords,
				Context:    fmt.Sprintf("chat:%s", chatID),
			})
			if storeErr != nil {
				continue
			}
		}
	}
	return false, nil
}
