// Package annotation keeps range-anchored suggestions and comments consistent
// with the document buffer they were computed against.
package annotation

import (
	"fmt"
	"time"
	"unicode/utf8"
)

// Range is a half-open byte range [Start, End) into UTF-8 content.
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

func (r Range) Len() int {
	return r.End - r.Start
}

func (r Range) IsEmpty() bool {
	return r.Start == r.End
}

// Intersects reports whether an edit touches the text anchored by r.
// An insertion (empty edit) only touches r when it lands strictly inside it.
func (r Range) Intersects(edit Range) bool {
	if edit.IsEmpty() {
		return r.Start < edit.Start && edit.Start < r.End
	}
	if r.IsEmpty() {
		return edit.Start < r.Start && r.Start < edit.End
	}
	return r.Start < edit.End && edit.Start < r.End
}

// Validate checks bounds and rune alignment against content.
func (r Range) Validate(content string) error {
	if r.Start < 0 || r.Start > r.End || r.End > len(content) {
		return fmt.Errorf("%w: [%d,%d) outside [0,%d]", ErrInvalidRange, r.Start, r.End, len(content))
	}
	if !onRuneBoundary(content, r.Start) || !onRuneBoundary(content, r.End) {
		return fmt.Errorf("%w: [%d,%d) splits a character", ErrInvalidRange, r.Start, r.End)
	}
	return nil
}

func (r Range) slice(content string) (string, bool) {
	if r.Start < 0 || r.Start > r.End || r.End > len(content) {
		return "", false
	}
	return content[r.Start:r.End], true
}

func onRuneBoundary(content string, offset int) bool {
	return offset == len(content) || utf8.RuneStart(content[offset])
}

type Variant string

const (
	VariantSuggestion Variant = "suggestion"
	VariantComment    Variant = "comment"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusResolved  Status = "resolved"
	StatusApplied   Status = "applied"
	StatusDismissed Status = "dismissed"
	StatusStale     Status = "stale"
)

type Kind string

const (
	KindGrammar    Kind = "grammar"
	KindStyle      Kind = "style"
	KindClarity    Kind = "clarity"
	KindTone       Kind = "tone"
	KindVocabulary Kind = "vocabulary"
	KindPlagiarism Kind = "plagiarism"
	KindStructure  Kind = "structure"
)

var knownKinds = map[Kind]struct{}{
	KindGrammar:    {},
	KindStyle:      {},
	KindClarity:    {},
	KindTone:       {},
	KindVocabulary: {},
	KindPlagiarism: {},
	KindStructure:  {},
}

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

var knownSeverities = map[Severity]struct{}{
	SeverityError:   {},
	SeverityWarning: {},
	SeverityInfo:    {},
}

type SuggestionDetail struct {
	Kind        Kind     `json:"kind"`
	Replacement string   `json:"replacement"`
	Explanation string   `json:"explanation,omitempty"`
	Confidence  float64  `json:"confidence"`
	Severity    Severity `json:"severity"`
}

type CommentDetail struct {
	Author    string    `json:"author"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}

// Annotation is either a suggestion or a comment; Variant selects which
// detail is meaningful.
type Annotation struct {
	ID             string           `json:"id"`
	Variant        Variant          `json:"variant"`
	Range          Range            `json:"range"`
	CreatedContent string           `json:"createdContent"`
	Status         Status           `json:"status"`
	Suggestion     SuggestionDetail `json:"suggestion"`
	Comment        CommentDetail    `json:"comment"`

	seq uint64
}

func (a Annotation) validate() error {
	if a.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidAnnotation)
	}
	if a.Range.Start < 0 || a.Range.Start > a.Range.End {
		return fmt.Errorf("%w: [%d,%d)", ErrInvalidRange, a.Range.Start, a.Range.End)
	}
	if len(a.CreatedContent) != a.Range.Len() {
		return fmt.Errorf("%w: anchored text length %d does not match range length %d", ErrInvalidAnnotation, len(a.CreatedContent), a.Range.Len())
	}
	switch a.Variant {
	case VariantSuggestion:
		if _, ok := knownKinds[a.Suggestion.Kind]; !ok {
			return fmt.Errorf("%w: unknown kind %q", ErrInvalidAnnotation, a.Suggestion.Kind)
		}
		if _, ok := knownSeverities[a.Suggestion.Severity]; !ok {
			return fmt.Errorf("%w: unknown severity %q", ErrInvalidAnnotation, a.Suggestion.Severity)
		}
		if a.Suggestion.Confidence < 0 || a.Suggestion.Confidence > 100 {
			return fmt.Errorf("%w: confidence %v outside [0,100]", ErrInvalidAnnotation, a.Suggestion.Confidence)
		}
	case VariantComment:
		if a.Comment.Body == "" {
			return fmt.Errorf("%w: empty comment body", ErrInvalidAnnotation)
		}
	default:
		return fmt.Errorf("%w: unknown variant %q", ErrInvalidAnnotation, a.Variant)
	}
	return nil
}
