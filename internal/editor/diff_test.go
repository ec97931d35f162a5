package editor

import (
	"testing"

	"draftwise/api/internal/annotation"
)

func TestChangedRange(t *testing.T) {
	tests := []struct {
		name     string
		prev     string
		next     string
		edit     annotation.Range
		inserted string
	}{
		{name: "insert middle", prev: "The cat sat.", next: "The big cat sat.", edit: annotation.Range{Start: 4, End: 4}, inserted: "big "},
		{name: "delete word", prev: "The big cat sat.", next: "The cat sat.", edit: annotation.Range{Start: 4, End: 8}, inserted: ""},
		{name: "replace word", prev: "The cat sat.", next: "The dog sat.", edit: annotation.Range{Start: 4, End: 7}, inserted: "dog"},
		{name: "append", prev: "abc", next: "abcd", edit: annotation.Range{Start: 3, End: 3}, inserted: "d"},
		{name: "repeated characters", prev: "aa", next: "aaa", edit: annotation.Range{Start: 2, End: 2}, inserted: "a"},
		{name: "from empty", prev: "", next: "hello", edit: annotation.Range{Start: 0, End: 0}, inserted: "hello"},
		{name: "to empty", prev: "hello", next: "", edit: annotation.Range{Start: 0, End: 5}, inserted: ""},
		{name: "shared lead byte", prev: "café", next: "cafè", edit: annotation.Range{Start: 3, End: 5}, inserted: "è"},
		{name: "shared continuation byte", prev: "aé", next: "aɩ", edit: annotation.Range{Start: 1, End: 3}, inserted: "ɩ"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			edit, inserted := changedRange(tc.prev, tc.next)
			if edit != tc.edit || inserted != tc.inserted {
				t.Fatalf("changedRange(%q, %q) = %+v %q, want %+v %q", tc.prev, tc.next, edit, inserted, tc.edit, tc.inserted)
			}
			if got := tc.prev[:edit.Start] + inserted + tc.prev[edit.End:]; got != tc.next {
				t.Fatalf("splice produced %q, want %q", got, tc.next)
			}
		})
	}
}
