package chat

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Pradhumn115/ruma-core/internal/memstore"
	"github.com/Pradhumn115/ruma-core/internal/storage"
)

// fastPathPattern is one regex/memory-type/importance rule applied to
// the user side of a turn. Ported from unified_app.py's personal/
// preference/goal/skill/"remember" pattern tables.
type fastPathPattern struct {
	re         *regexp.Regexp
	memoryType string
	label      string
	importance float64
}

var fastPathPatterns = []fastPathPattern{
	{regexp.MustCompile(`(?i)my name is (\w+(?:\s+\w+)*)`), storage.MemoryTypeFact, "User's name", 0.9},
	{regexp.MustCompile(`(?i)call me (\w+(?:\s+\w+)*)`), storage.MemoryTypeFact, "User's name", 0.9},
	{regexp.MustCompile(`(?i)i work (?:as|at) ([\w\s]+)`), storage.MemoryTypeFact, "User's occupation", 0.8},
	{regexp.MustCompile(`(?i)i live in ([\w\s,]+)`), storage.MemoryTypeFact, "User's location", 0.8},
	{regexp.MustCompile(`(?i)i like ([\w\s,]+)`), storage.MemoryTypePreference, "User likes", 0.6},
	{regexp.MustCompile(`(?i)i love ([\w\s,]+)`), storage.MemoryTypePreference, "User likes", 0.6},
	{regexp.MustCompile(`(?i)i don't like ([\w\s,]+)`), storage.MemoryTypePreference, "User dislikes", 0.6},
	{regexp.MustCompile(`(?i)i hate ([\w\s,]+)`), storage.MemoryTypePreference, "User dislikes", 0.6},
	{regexp.MustCompile(`(?i)my goal is to ([\w\s,]+)`), storage.MemoryTypeGoal, "User goal", 0.7},
	{regexp.MustCompile(`(?i)i (?:want|plan|hope) to ([\w\s,]+)`), storage.MemoryTypeGoal, "User goal", 0.6},
	{regexp.MustCompile(`(?i)i(?:'m| am) (?:good at|skilled in) ([\w\s,]+)`), storage.MemoryTypeSkill, "User skill", 0.6},
	{regexp.MustCompile(`(?i)i have experience (?:with|in) ([\w\s,]+)`), storage.MemoryTypeSkill, "User skill", 0.6},
	{regexp.MustCompile(`(?i)remember (?:that )?([\w\s,]+)`), storage.MemoryTypeMeta, "Explicit memory request", 0.95},
	{regexp.MustCompile(`(?i)don't forget (?:that )?([\w\s,]+)`), storage.MemoryTypeMeta, "Explicit memory request", 0.95},
	{regexp.MustCompile(`(?i)i'm working on (?:a |my )?project (?:called |named )?([\w\s]+)`), storage.MemoryTypeContext, "User project", 0.8},
}

// fastPathCandidate is one regex hit, before the importance gate.
type fastPathCandidate struct {
	Content    string
	MemoryType string
	Importance float64
}

// extractFastPath scans the user side of a turn for the pattern table
// above; the assistant reply is not pattern-matched, matching §4.6's
// "extract from the (user, assistant) pair" scoped to what is cheap to
// regex against (the user's own statements).
func extractFastPath(userMessage string) []fastPathCandidate {
	var out []fastPathCandidate
	for _, p := range fastPathPatterns {
		matches := p.re.FindAllStringSubmatch(userMessage, -1)
		for _, m := range matches {
			if len(m) < 2 {
				continue
			}
			value := strings.TrimSpace(m[1])
			if value == "" {
				continue
			}
			out = append(out, fastPathCandidate{
				Content:    fmt.Sprintf("%s: %s", p.label, value),
				MemoryType: p.memoryType,
				Importance: p.importance,
			})
		}
	}
	return out
}

// memstoreInput adapts a fast-path hit to the shape memstore.Store.Store
// expects.
func memstoreInput(userID string, c fastPathCandidate) memstore.Input {
	return memstore.Input{
		UserID:     userID,
		Content:    c.Content,
		MemoryType: c.MemoryType,
		Importance: c.Importance,
		Context:    "fast_path",
	}
}
