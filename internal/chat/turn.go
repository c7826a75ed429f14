package chat

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/Pradhumn115/ruma-core/internal/llmengine"
	"github.com/Pradhumn115/ruma-core/internal/retrieval"
	"github.com/Pradhumn115/ruma-core/internal/storage"
)

// Send runs one full turn per §4.6's flow and streams TurnEvents on the
// returned channel. The channel is closed after the final (Done or
// Err) event. Cancelling ctx breaks the stream early; whatever partial
// output has accumulated is still persisted.
func (o *Orchestrator) Send(ctx context.Context, userID, chatID, userMessage, urgency string) (<-chan TurnEvent, error) {
	sess, isNew, err := o.resolveSession(userID, chatID)
	if err != nil {
		return nil, err
	}

	res, err := o.router.Retrieve(ctx, retrieval.Query{
		Text:    userMessage,
		UserID:  userID,
		Urgency: urgency,
		Limit:   5,
	})
	if err != nil {
		o.logger.Warn("retrieval failed, continuing without context", "err", err)
	}

	recent, err := o.db.RecentMessages(sess.ID, TranscriptWindow)
	if err != nil {
		o.logger.Warn("failed to load recent transcript", "err", err)
	}

	prompt := renderPrompt(renderContextBlock(res), recent, userMessage)

	out := make(chan TurnEvent, 8)
	go o.stream(ctx, sess, isNew, userMessage, prompt, out)
	return out, nil
}

func (o *Orchestrator) stream(ctx context.Context, sess storage.ChatSession, isNew bool, userMessage string, prompt []llmengine.Message, out chan<- TurnEvent) {
	defer close(out)

	tokens, err := o.engine.Stream(ctx, prompt)
	if err != nil {
		out <- TurnEvent{Err: err, Done: true}
		return
	}

	var reply strings.Builder
	for ev := range tokens {
		if ev.Error != nil {
			out <- TurnEvent{Err: ev.Error, Done: true}
			o.persistTurn(ctx, sess, isNew, userMessage, reply.String())
			return
		}
		if ev.Content != "" {
			reply.WriteString(ev.Content)
			select {
			case out <- TurnEvent{Token: ev.Content}:
			case <-ctx.Done():
				o.persistTurn(ctx, sess, isNew, userMessage, reply.String())
				out <- TurnEvent{Done: true, Err: ctx.Err()}
				return
			}
		}
		if ev.Done {
			break
		}
	}

	msg := o.persistTurn(ctx, sess, isNew, userMessage, reply.String())
	out <- TurnEvent{Done: true, Message: msg}
}

// persistTurn writes the user/assistant messages, synthesizes the title
// on a brand-new session, runs the fast-path extraction, and enqueues
// the turn for deep extraction. Called even on cancellation so partial
// output is not lost, per §4.6 step 5.
func (o *Orchestrator) persistTurn(ctx context.Context, sess storage.ChatSession, isNew bool, userMessage, assistantReply string) storage.ChatMessage {
	now := time.Now().Format(time.RFC3339)

	userMsg := storage.ChatMessage{SessionID: sess.ID, Role: "user", Content: userMessage, CreatedAt: now}
	if err := o.db.AppendMessage(userMsg); err != nil {
		o.logger.Error("failed to persist user message", "err", err)
	}

	if isNew {
		if err := o.db.SetSessionTitle(sess.ID, synthesizeTitle(userMessage)); err != nil {
			o.logger.Warn("failed to set session title", "err", err)
		}
	}

	assistantMsg := storage.ChatMessage{SessionID: sess.ID, Role: "assistant", Content: assistantReply, CreatedAt: now}
	if assistantReply != "" {
		if err := o.db.AppendMessage(assistantMsg); err != nil {
			o.logger.Error("failed to persist assistant message", "err", err)
		}
	}

	o.runFastPath(ctx, sess.UserID, userMessage)
	o.enqueueLearning(sess.UserID, sess.ID, userMsg, assistantMsg)

	return assistantMsg
}

func (o *Orchestrator) runFastPath(ctx context.Context, userID, userMessage string) {
	for _, c := range extractFastPath(userMessage) {
		if c.Importance < FastPathImportanceThreshold {
			continue
		}
		if _, err := o.mem.Store(ctx, memstoreInput(userID, c)); err != nil {
			o.logger.Warn("fast-path memory store failed", "err", err)
			continue
		}
		o.router.Invalidate(userID)
	}
}

func (o *Orchestrator) enqueueLearning(userID, chatID string, userMsg, assistantMsg storage.ChatMessage) {
	payload, err := json.Marshal([]llmengine.Message{
		{Role: "user", Content: userMsg.Content},
		{Role: "assistant", Content: assistantMsg.Content},
	})
	if err != nil {
		o.logger.Error("failed to marshal turn for learning queue", "err", err)
		return
	}
	item := storage.LearningQueueItem{UserID: userID, ChatID: chatID, MessagesJSON: string(payload)}
	if err := o.db.EnqueueLearning(item); err != nil {
		o.logger.Error("failed to enqueue learning item", "err", err)
	}
}
