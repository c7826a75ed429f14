package chat

import (
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/Pradhumn115/ruma-core/internal/storage"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// resolveSession fetches the session named by chatID, or creates one
// under userID if chatID is empty or unknown.
func (o *Orchestrator) resolveSession(userID, chatID string) (storage.ChatSession, bool, error) {
	if chatID != "" {
		sess, err := o.db.GetSession(chatID)
		if err == nil {
			return sess, false, nil
		}
	}

	sess := storage.ChatSession{ID: uuid.New().String(), UserID: userID}
	if err := o.db.CreateSession(sess); err != nil {
		return storage.ChatSession{}, false, err
	}
	return sess, true, nil
}

// synthesizeTitle trims and collapses whitespace in the first user
// message down to MaxTitleLength runes, per §4.6.
func synthesizeTitle(firstMessage string) string {
	collapsed := strings.TrimSpace(whitespaceRun.ReplaceAllString(firstMessage, " "))
	runes := []rune(collapsed)
	if len(runes) <= MaxTitleLength {
		return collapsed
	}
	return string(runes[:MaxTitleLength])
}
