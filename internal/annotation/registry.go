package annotation

import (
	"fmt"
	"sort"
)

// Registry maps annotation ids to annotations and enforces the anchoring
// invariant: every Active annotation's range covers exactly CreatedContent in
// the current buffer.
//
// A Registry is not safe for concurrent use. The editor Coordinator owns it
// and serializes every call.
type Registry struct {
	items   map[string]*Annotation
	removed map[string]struct{}
	nextSeq uint64
}

func NewRegistry() *Registry {
	return &Registry{
		items:   make(map[string]*Annotation),
		removed: make(map[string]struct{}),
	}
}

// Add registers a as Active.
func (r *Registry) Add(a Annotation) error {
	if err := a.validate(); err != nil {
		return err
	}
	if r.known(a.ID) {
		return fmt.Errorf("%w: %s", ErrDuplicateID, a.ID)
	}
	r.insert(a)
	return nil
}

// AddAll registers every item or, if any of them is rejected, none.
func (r *Registry) AddAll(items []Annotation) error {
	batch := make(map[string]struct{}, len(items))
	for _, a := range items {
		if err := a.validate(); err != nil {
			return fmt.Errorf("%s: %w", a.ID, err)
		}
		if _, dup := batch[a.ID]; dup || r.known(a.ID) {
			return fmt.Errorf("%w: %s", ErrDuplicateID, a.ID)
		}
		batch[a.ID] = struct{}{}
	}
	for _, a := range items {
		r.insert(a)
	}
	return nil
}

// Apply splices the suggestion's replacement into content and removes the
// suggestion. Ranges after the edit are not shifted: every Active annotation
// overlapping or following the edit point becomes Stale.
func (r *Registry) Apply(id, content string) (string, string, error) {
	item, ok := r.items[id]
	if !ok {
		return "", "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if item.Variant != VariantSuggestion {
		return "", "", fmt.Errorf("%w: cannot apply %s %s", ErrNotApplicable, item.Variant, id)
	}
	if item.Status != StatusActive {
		return "", "", fmt.Errorf("%w: %s is %s", ErrStaleAnnotation, id, item.Status)
	}
	current, ok := item.Range.slice(content)
	if !ok || current != item.CreatedContent {
		item.Status = StatusStale
		return "", "", fmt.Errorf("%w: %s no longer matches the document", ErrStaleAnnotation, id)
	}

	edit := item.Range
	next := content[:edit.Start] + item.Suggestion.Replacement + content[edit.End:]
	item.Status = StatusApplied
	r.remove(id)

	for _, other := range r.ordered() {
		if other.Status != StatusActive {
			continue
		}
		if other.Range.Intersects(edit) || other.Range.Start >= edit.Start {
			other.Status = StatusStale
		}
	}
	return next, id, nil
}

// Dismiss removes an annotation. Dismissing an id that was already removed
// (dismissed or applied) is a no-op.
func (r *Registry) Dismiss(id string) error {
	if _, ok := r.removed[id]; ok {
		return nil
	}
	item, ok := r.items[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	item.Status = StatusDismissed
	r.remove(id)
	return nil
}

// Resolve marks a comment as resolved. Resolved comments are retained but are
// no longer Active.
func (r *Registry) Resolve(id string) error {
	item, ok := r.items[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if item.Variant != VariantComment {
		return fmt.Errorf("%w: cannot resolve %s %s", ErrNotApplicable, item.Variant, id)
	}
	item.Status = StatusResolved
	return nil
}

// InvalidateOverlapping marks every Active annotation touched by edit as
// Stale and returns their ids in range order. edit is expressed in the
// coordinates of the buffer before the mutation.
func (r *Registry) InvalidateOverlapping(edit Range) []string {
	return r.invalidate(func(a *Annotation) bool {
		return a.Range.Intersects(edit)
	})
}

// Shift moves every Active annotation starting at or after from by delta.
func (r *Registry) Shift(from, delta int) {
	if delta == 0 {
		return
	}
	for _, item := range r.items {
		if item.Status != StatusActive || item.Range.Start < from {
			continue
		}
		item.Range.Start += delta
		item.Range.End += delta
	}
}

// Revalidate marks Stale every Active annotation whose range is out of bounds
// or no longer covers CreatedContent.
func (r *Registry) Revalidate(content string) []string {
	return r.invalidate(func(a *Annotation) bool {
		current, ok := a.Range.slice(content)
		return !ok || current != a.CreatedContent
	})
}

func (r *Registry) InvalidateAll() []string {
	return r.invalidate(func(*Annotation) bool { return true })
}

// ListActive returns a snapshot of Active annotations ordered by range start,
// ties broken by insertion order. A non-empty kinds filter keeps only
// suggestions of those kinds.
func (r *Registry) ListActive(kinds ...Kind) []Annotation {
	filter := make(map[Kind]struct{}, len(kinds))
	for _, kind := range kinds {
		filter[kind] = struct{}{}
	}
	out := make([]Annotation, 0, len(r.items))
	for _, item := range r.ordered() {
		if item.Status != StatusActive {
			continue
		}
		if len(filter) > 0 {
			if item.Variant != VariantSuggestion {
				continue
			}
			if _, ok := filter[item.Suggestion.Kind]; !ok {
				continue
			}
		}
		out = append(out, *item)
	}
	return out
}

// List returns every retained annotation (active, stale or resolved).
func (r *Registry) List() []Annotation {
	ordered := r.ordered()
	out := make([]Annotation, 0, len(ordered))
	for _, item := range ordered {
		out = append(out, *item)
	}
	return out
}

func (r *Registry) Get(id string) (Annotation, error) {
	item, ok := r.items[id]
	if !ok {
		return Annotation{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return *item, nil
}

func (r *Registry) Len() int {
	return len(r.items)
}

func (r *Registry) invalidate(match func(*Annotation) bool) []string {
	var ids []string
	for _, item := range r.ordered() {
		if item.Status != StatusActive || !match(item) {
			continue
		}
		item.Status = StatusStale
		ids = append(ids, item.ID)
	}
	return ids
}

func (r *Registry) known(id string) bool {
	if _, ok := r.items[id]; ok {
		return true
	}
	_, ok := r.removed[id]
	return ok
}

func (r *Registry) insert(a Annotation) {
	r.nextSeq++
	a.seq = r.nextSeq
	a.Status = StatusActive
	r.items[a.ID] = &a
}

func (r *Registry) remove(id string) {
	delete(r.items, id)
	r.removed[id] = struct{}{}
}

func (r *Registry) ordered() []*Annotation {
	items := make([]*Annotation, 0, len(r.items))
	for _, item := range r.items {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Range.Start != items[j].Range.Start {
			return items[i].Range.Start < items[j].Range.Start
		}
		return items[i].seq < items[j].seq
	})
	return items
}
