// Package editor owns the document buffer and funnels every mutation source
// through one ordered path so annotations and metrics never observe a buffer
// they were not told about.
package editor

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"draftwise/api/internal/annotation"
	"draftwise/api/internal/metrics"
	"draftwise/api/internal/util"
)

var ErrEmptyText = errors.New("editor: text is empty")

type Source string

const (
	SourceUser       Source = "user"
	SourceSuggestion Source = "suggestion"
	SourceDictation  Source = "dictation"
	SourceImport     Source = "import"
	SourceRemote     Source = "remote"
	// SourceAnnotation marks bookkeeping changes that leave the buffer as is.
	SourceAnnotation Source = "annotation"
)

// Change describes one accepted mutation. Range is expressed in the
// coordinates of the buffer before the mutation.
type Change struct {
	Source      Source                  `json:"source"`
	Content     string                  `json:"content"`
	Range       annotation.Range        `json:"range"`
	Inserted    string                  `json:"inserted"`
	Stale       []string                `json:"stale,omitempty"`
	Metrics     metrics.Metrics         `json:"metrics"`
	Annotations []annotation.Annotation `json:"annotations"`
}

type State struct {
	Content     string                  `json:"content"`
	Metrics     metrics.Metrics         `json:"metrics"`
	Annotations []annotation.Annotation `json:"annotations"`
}

// Listener receives every accepted Change in mutation order. It runs while the
// Coordinator is locked and must not call back into it.
type Listener func(Change)

type SuggestionPayload struct {
	ID          string              `json:"id,omitempty"`
	Range       annotation.Range    `json:"range"`
	Kind        annotation.Kind     `json:"kind"`
	Replacement string              `json:"replacement"`
	Explanation string              `json:"explanation,omitempty"`
	Confidence  float64             `json:"confidence"`
	Severity    annotation.Severity `json:"severity"`
}

type CommentInput struct {
	Range  annotation.Range `json:"range"`
	Author string           `json:"author"`
	Body   string           `json:"body"`
}

type Option func(*Coordinator)

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		c.now = now
	}
}

func WithIDGenerator(newID func(prefix string) string) Option {
	return func(c *Coordinator) {
		c.newID = newID
	}
}

type subscription struct {
	id int
	fn Listener
}

type Coordinator struct {
	mu        sync.Mutex
	content   string
	metrics   metrics.Metrics
	registry  *annotation.Registry
	listeners []subscription
	nextSub   int

	now   func() time.Time
	newID func(prefix string) string
}

func New(content string, opts ...Option) *Coordinator {
	c := &Coordinator{
		content:  content,
		metrics:  metrics.Compute(content),
		registry: annotation.NewRegistry(),
		now:      time.Now,
		newID:    util.NewID,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Subscribe registers fn and returns a function that removes it.
func (c *Coordinator) Subscribe(fn Listener) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextSub++
	id := c.nextSub
	c.listeners = append(c.listeners, subscription{id: id, fn: fn})
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, sub := range c.listeners {
			if sub.id == id {
				c.listeners = append(c.listeners[:i:i], c.listeners[i+1:]...)
				return
			}
		}
	}
}

// ApplyUserEdit replaces the buffer with the full content supplied by the
// presentation layer. It reports false when nothing changed.
func (c *Coordinator) ApplyUserEdit(next string) (Change, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if next == c.content {
		return Change{}, false
	}
	edit, inserted := changedRange(c.content, next)
	return c.splice(SourceUser, edit, inserted), true
}

func (c *Coordinator) ApplySuggestion(id string) (Change, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, err := c.registry.Get(id)
	if err != nil {
		return Change{}, err
	}
	active := c.registry.ListActive()
	next, _, err := c.registry.Apply(id, c.content)
	if err != nil {
		if item.Status == annotation.StatusActive && errors.Is(err, annotation.ErrStaleAnnotation) {
			c.commit(Change{Source: SourceAnnotation, Stale: []string{id}}, false)
		}
		return Change{}, err
	}
	c.content = next

	var stale []string
	for _, prev := range active {
		if now, err := c.registry.Get(prev.ID); err == nil && now.Status == annotation.StatusStale {
			stale = append(stale, prev.ID)
		}
	}
	return c.commit(Change{
		Source:   SourceSuggestion,
		Range:    item.Range,
		Inserted: item.Suggestion.Replacement,
		Stale:    stale,
	}, true), nil
}

func (c *Coordinator) Dismiss(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.registry.Dismiss(id); err != nil {
		return err
	}
	c.commit(Change{Source: SourceAnnotation}, false)
	return nil
}

func (c *Coordinator) ResolveComment(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.registry.Resolve(id); err != nil {
		return err
	}
	c.commit(Change{Source: SourceAnnotation}, false)
	return nil
}

// AddSuggestions ingests suggestion-generation output against the current
// buffer. Either every payload is added or none is.
func (c *Coordinator) AddSuggestions(payloads []SuggestionPayload) ([]annotation.Annotation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	items := make([]annotation.Annotation, 0, len(payloads))
	for i, p := range payloads {
		if err := p.Range.Validate(c.content); err != nil {
			return nil, fmt.Errorf("suggestion %d: %w", i, err)
		}
		id := p.ID
		if id == "" {
			id = c.newID("sug")
		}
		items = append(items, annotation.Annotation{
			ID:             id,
			Variant:        annotation.VariantSuggestion,
			Range:          p.Range,
			CreatedContent: c.content[p.Range.Start:p.Range.End],
			Suggestion: annotation.SuggestionDetail{
				Kind:        p.Kind,
				Replacement: p.Replacement,
				Explanation: p.Explanation,
				Confidence:  p.Confidence,
				Severity:    p.Severity,
			},
		})
	}
	if err := c.registry.AddAll(items); err != nil {
		return nil, err
	}

	added := make([]annotation.Annotation, 0, len(items))
	for _, item := range items {
		stored, err := c.registry.Get(item.ID)
		if err != nil {
			return nil, err
		}
		added = append(added, stored)
	}
	c.commit(Change{Source: SourceAnnotation}, false)
	return added, nil
}

func (c *Coordinator) AddComment(in CommentInput) (annotation.Annotation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := in.Range.Validate(c.content); err != nil {
		return annotation.Annotation{}, err
	}
	item := annotation.Annotation{
		ID:             c.newID("cmt"),
		Variant:        annotation.VariantComment,
		Range:          in.Range,
		CreatedContent: c.content[in.Range.Start:in.Range.End],
		Comment: annotation.CommentDetail{
			Author:    in.Author,
			Body:      in.Body,
			CreatedAt: c.now().UTC(),
		},
	}
	if err := c.registry.Add(item); err != nil {
		return annotation.Annotation{}, err
	}
	stored, err := c.registry.Get(item.ID)
	if err != nil {
		return annotation.Annotation{}, err
	}
	c.commit(Change{Source: SourceAnnotation}, false)
	return stored, nil
}

// Dictate inserts transcribed text at byte offset at.
func (c *Coordinator) Dictate(at int, text string) (Change, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if text == "" {
		return Change{}, ErrEmptyText
	}
	point := annotation.Range{Start: at, End: at}
	if err := point.Validate(c.content); err != nil {
		return Change{}, err
	}
	return c.splice(SourceDictation, point, text), nil
}

// ImportHTML replaces the buffer with the visible text of markup. It reports
// false when the imported text equals the current buffer.
func (c *Coordinator) ImportHTML(markup string) (Change, bool, error) {
	text, err := visibleText(markup)
	if err != nil {
		return Change{}, false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if text == c.content {
		return Change{}, false, nil
	}
	edit, inserted := changedRange(c.content, text)
	return c.splice(SourceImport, edit, inserted), true, nil
}

// AdoptRemote replaces the buffer with the authoritative remote copy. Every
// Active annotation becomes Stale, even when the text happens to match.
func (c *Coordinator) AdoptRemote(content string) Change {
	c.mu.Lock()
	defer c.mu.Unlock()

	stale := c.registry.InvalidateAll()
	edit, inserted := changedRange(c.content, content)
	c.content = content
	return c.commit(Change{
		Source:   SourceRemote,
		Range:    edit,
		Inserted: inserted,
		Stale:    stale,
	}, true)
}

func (c *Coordinator) CurrentState() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		Content:     c.content,
		Metrics:     c.metrics,
		Annotations: c.registry.ListActive(),
	}
}

func (c *Coordinator) Content() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.content
}

func (c *Coordinator) ListActive(kinds ...annotation.Kind) []annotation.Annotation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registry.ListActive(kinds...)
}

// Annotations returns every retained annotation, including stale and
// resolved ones.
func (c *Coordinator) Annotations() []annotation.Annotation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registry.List()
}

func (c *Coordinator) Annotation(id string) (annotation.Annotation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registry.Get(id)
}

// splice replaces edit with inserted and repairs anchors: touched annotations
// go Stale, later ones shift by the length delta, and anything still
// mismatching is caught by the final revalidation.
func (c *Coordinator) splice(source Source, edit annotation.Range, inserted string) Change {
	next := c.content[:edit.Start] + inserted + c.content[edit.End:]
	stale := c.registry.InvalidateOverlapping(edit)
	c.registry.Shift(edit.End, len(inserted)-edit.Len())
	c.content = next
	stale = append(stale, c.registry.Revalidate(next)...)
	return c.commit(Change{
		Source:   source,
		Range:    edit,
		Inserted: inserted,
		Stale:    stale,
	}, true)
}

// commit recomputes metrics once when the buffer moved, fills the snapshot
// fields and dispatches change to listeners.
func (c *Coordinator) commit(change Change, edited bool) Change {
	if edited {
		c.metrics = metrics.Compute(c.content)
	}
	change.Content = c.content
	change.Metrics = c.metrics
	change.Annotations = c.registry.ListActive()
	for _, sub := range c.listeners {
		sub.fn(change)
	}
	return change
}
