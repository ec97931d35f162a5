package annotation

import (
	"fmt"
	"testing"

	"pgregory.net/rapid"
)

func drawRange(t *rapid.T, content, label string) Range {
	start := rapid.IntRange(0, len(content)).Draw(t, label+"Start")
	end := rapid.IntRange(start, len(content)).Draw(t, label+"End")
	return Range{Start: start, End: end}
}

func seedRegistry(t *rapid.T, content string) *Registry {
	reg := NewRegistry()
	n := rapid.IntRange(0, 8).Draw(t, "annotations")
	for i := 0; i < n; i++ {
		r := drawRange(t, content, "anchor")
		item := Annotation{
			ID:             fmt.Sprintf("a%d", i),
			Range:          r,
			CreatedContent: content[r.Start:r.End],
		}
		if rapid.Bool().Draw(t, "isComment") {
			item.Variant = VariantComment
			item.Comment = CommentDetail{Author: "prop", Body: "note"}
		} else {
			item.Variant = VariantSuggestion
			item.Suggestion = SuggestionDetail{
				Kind:        KindStyle,
				Replacement: rapid.StringMatching(`[xyz ]{0,4}`).Draw(t, "replacement"),
				Confidence:  float64(rapid.IntRange(0, 100).Draw(t, "confidence")),
				Severity:    SeverityInfo,
			}
		}
		if err := reg.Add(item); err != nil {
			t.Fatalf("Add() error = %v", err)
		}
	}
	return reg
}

func assertAnchored(t *rapid.T, reg *Registry, content string) {
	for _, item := range reg.ListActive() {
		if item.Range.End > len(content) || item.Range.Start < 0 {
			t.Fatalf("active %s out of bounds: %+v in %q", item.ID, item.Range, content)
		}
		if got := content[item.Range.Start:item.Range.End]; got != item.CreatedContent {
			t.Fatalf("active %s anchors %q, want %q", item.ID, got, item.CreatedContent)
		}
	}
}

func TestUserEditsKeepActiveAnchorsExact(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		content := rapid.StringMatching(`[a-c .]{0,40}`).Draw(t, "content")
		reg := seedRegistry(t, content)

		edits := rapid.IntRange(1, 6).Draw(t, "edits")
		for i := 0; i < edits; i++ {
			edit := drawRange(t, content, "edit")
			inserted := rapid.StringMatching(`[a-c ]{0,5}`).Draw(t, "inserted")
			next := content[:edit.Start] + inserted + content[edit.End:]

			reg.InvalidateOverlapping(edit)
			reg.Shift(edit.End, len(inserted)-edit.Len())
			content = next

			// Shifting alone must already be exact for untouched anchors.
			if stale := reg.Revalidate(content); len(stale) != 0 {
				t.Fatalf("shift left %v misaligned after edit %+v", stale, edit)
			}
			assertAnchored(t, reg, content)
		}
	})
}

func TestApplyKeepsActiveAnchorsExact(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		content := rapid.StringMatching(`[a-c .]{0,40}`).Draw(t, "content")
		reg := seedRegistry(t, content)

		for _, item := range reg.ListActive() {
			if item.Variant != VariantSuggestion {
				continue
			}
			current, err := reg.Get(item.ID)
			if err != nil || current.Status != StatusActive {
				continue
			}
			before := reg.Len()
			next, removed, err := reg.Apply(item.ID, content)
			if err != nil {
				t.Fatalf("Apply(%s) error = %v", item.ID, err)
			}
			if removed != item.ID || reg.Len() != before-1 {
				t.Fatalf("Apply(%s) removed %q, len %d -> %d", item.ID, removed, before, reg.Len())
			}
			want := len(item.Suggestion.Replacement) - item.Range.Len()
			if len(next)-len(content) != want {
				t.Fatalf("length delta %d, want %d", len(next)-len(content), want)
			}
			content = next
			assertAnchored(t, reg, content)
		}
	})
}
