package learning

import (
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

// Runaway-generation guards, per §4.5: a model that loses its stop
// condition repeats a short window verbatim or simply keeps emitting
// text well past anything a JSON array of memories needs.
const (
	maxRawLength  = 20000
	maxItemCount  = 200
	repeatWindow  = 50
	patternWindow = 20
)

var (
	fencePattern      = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")
	trailingComma     = regexp.MustCompile(`,(\s*[\]}])`)
	unquotedKey       = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_]*)\s*:`)
	singleQuotedValue = regexp.MustCompile(`'([^']*)'`)
)

// Repair turns a raw, possibly malformed LLM completion into a string
// gjson can parse: strips markdown fences, quotes bareword keys,
// converts single-quoted strings to double-quoted, drops trailing
// commas, balances mismatched brackets, and truncates runaway
// generations before any of that parsing is attempted.
func Repair(raw string) string {
	raw = truncateRunaway(raw)

	if m := fencePattern.FindStringSubmatch(raw); m != nil {
		raw = m[1]
	}
	raw = strings.TrimSpace(raw)

	raw = unquotedKey.ReplaceAllString(raw, `$1"$2":`)
	raw = singleQuotedValue.ReplaceAllString(raw, `"$1"`)
	raw = trailingComma.ReplaceAllString(raw, "$1")
	raw = balanceBrackets(raw)

	return raw
}

// truncateRunaway cuts a completion short the moment it shows signs of
// having lost its stop condition: excessive total length, a 50-char
// window repeated back to back, or a 20-char window repeated back to
// back.
func truncateRunaway(raw string) string {
	if len(raw) > maxRawLength {
		raw = raw[:maxRawLength]
	}
	if idx := firstRepeatedWindow(raw, repeatWindow); idx > 0 {
		raw = raw[:idx]
	}
	if idx := firstRepeatedWindow(raw, patternWindow); idx > 0 && idx < len(raw) {
		raw = raw[:idx]
	}
	return raw
}

// firstRepeatedWindow returns the offset right after the first window
// of length n that is immediately repeated (s[i:i+n] == s[i+n:i+2n]), or
// -1 if no such repeat occurs.
func firstRepeatedWindow(s string, n int) int {
	if len(s) < 2*n {
		return -1
	}
	for i := 0; i+2*n <= len(s); i++ {
		if s[i:i+n] == s[i+n:i+2*n] {
			return i + n
		}
	}
	return -1
}

// balanceBrackets appends whatever closing brackets are needed to make
// '{'/'}' and '['/']' counts agree, outside of quoted strings.
func balanceBrackets(s string) string {
	var stack []byte
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			stack = append(stack, c)
		case '}':
			if len(stack) > 0 && stack[len(stack)-1] == '{' {
				stack = stack[:len(stack)-1]
			}
		case ']':
			if len(stack) > 0 && stack[len(stack)-1] == '[' {
				stack = stack[:len(stack)-1]
			}
		}
	}
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '{' {
			s += "}"
		} else {
			s += "]"
		}
	}
	return s
}

// ExtractedItem is one memory candidate an aspect prompt produced.
type ExtractedItem struct {
	Content    string
	Category   string
	Importance float64
	Keywords   []string
}

// ParseItems repairs raw and extracts every {content, category,
// importance, keywords} object from it, accepting either a top-level
// array or a single bare object (§4.5: "accept arrays or single
// objects").
func ParseItems(raw string) []ExtractedItem {
	repaired := Repair(raw)
	if !gjson.Valid(repaired) {
		return nil
	}

	parsed := gjson.Parse(repaired)
	var results []ExtractedItem
	switch {
	case parsed.IsArray():
		parsed.ForEach(func(_, item gjson.Result) bool {
			if it, ok := toItem(item); ok {
				results = append(results, it)
			}
			if len(results) >= maxItemCount {
				return false
			}
			return true
		})
	case parsed.IsObject():
		if it, ok := toItem(parsed); ok {
			results = append(results, it)
		}
	}
	return results
}

func toItem(v gjson.Result) (ExtractedItem, bool) {
	content := v.Get("content").String()
	if strings.TrimSpace(content) == "" {
		return ExtractedItem{}, false
	}
	item := ExtractedItem{
		Content:    content,
		Category:   v.Get("category").String(),
		Importance: v.Get("importance").Float(),
	}
	for _, kw := range v.Get("keywords").Array() {
		if s := strings.TrimSpace(kw.String()); s != "" {
			item.Keywords = append(item.Keywords, s)
		}
	}
	return item, true
}
