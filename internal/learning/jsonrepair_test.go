package learning

import "testing"

func TestRepairStripsMarkdownFence(t *testing.T) {
	raw := "```json\n[{\"content\": \"likes tea\", \"category\": \"preference\", \"importance\": 0.6, \"keywords\": [\"tea\"]}]\n```"
	items := ParseItems(raw)
	if len(items) != 1 || items[0].Content != "likes tea" {
		t.Fatalf("expected one parsed item, got %+v", items)
	}
}

func TestRepairFixesTrailingCommaAndUnquotedKeys(t *testing.T) {
	raw := `[{content: "a fact", category: "fact", importance: 0.5, keywords: ["x"],},]`
	items := ParseItems(raw)
	if len(items) != 1 || items[0].Content != "a fact" {
		t.Fatalf("expected one parsed item, got %+v", items)
	}
}

func TestRepairBalancesMismatchedBrackets(t *testing.T) {
	raw := `[{"content": "unterminated", "category": "fact", "importance": 0.4, "keywords": ["x"]`
	items := ParseItems(raw)
	if len(items) != 1 || items[0].Content != "unterminated" {
		t.Fatalf("expected repaired single item, got %+v", items)
	}
}

func TestParseItemsAcceptsSingleObject(t *testing.T) {
	raw := `{"content": "bare object", "category": "goal", "importance": 0.7, "keywords": []}`
	items := ParseItems(raw)
	if len(items) != 1 || items[0].Content != "bare object" {
		t.Fatalf("expected one item from bare object, got %+v", items)
	}
}

func TestParseItemsEmptyArray(t *testing.T) {
	items := ParseItems("[]")
	if len(items) != 0 {
		t.Fatalf("expected no items, got %+v", items)
	}
}

func TestTruncateRunawayRepeatedWindow(t *testing.T) {
	window := ""
	for i := 0; i < 25; i++ {
		window += "ab" // 50 chars total
	}
	raw := window + window + window
	truncated := truncateRunaway(raw)
	if len(truncated) >= len(raw) {
		t.Errorf("expected truncation, got len %d from %d", len(truncated), len(raw))
	}
}
