// Package syncer debounces buffer changes into saves against a persistence
// collaborator, with at most one save in flight per document.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"draftwise/api/internal/editor"
)

const DefaultDebounce = 2000 * time.Millisecond

var ErrClosed = errors.New("syncer: scheduler closed")

type State string

const (
	StateClean    State = "clean"
	StateDirty    State = "dirty"
	StateSaving   State = "saving"
	StateConflict State = "conflict"
)

type SyncState struct {
	LocalVersion     int64  `json:"localVersion"`
	RemoteVersion    int64  `json:"remoteVersion"`
	PendingSave      bool   `json:"pendingSave"`
	LastSavedContent string `json:"lastSavedContent"`
	IsDirty          bool   `json:"isDirty"`
	State            State  `json:"state"`
}

type Saved struct {
	Version int64
	Content string
}

// ConflictError reports that the stored version moved past the base version
// of a save. Version and Content describe the authoritative remote copy.
type ConflictError struct {
	Version int64
	Content string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("syncer: document changed remotely (version %d)", e.Version)
}

type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return "syncer: save failed: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Persister stores content on top of baseVersion. A *ConflictError return
// means another writer won; any other error is treated as transient.
type Persister interface {
	Save(ctx context.Context, documentID, content string, baseVersion int64) (Saved, error)
}

type Editor interface {
	AdoptRemote(content string) editor.Change
}

type EventType string

const (
	EventSaved    EventType = "saved"
	EventConflict EventType = "conflict"
	EventFailed   EventType = "failed"
)

type Event struct {
	Type        EventType
	DocumentID  string
	BaseVersion int64
	State       SyncState
	Err         error
}

type Options struct {
	Debounce    time.Duration
	Clock       clockwork.Clock
	SaveTimeout time.Duration
	// OnEvent runs after every finished save attempt, outside the
	// scheduler's lock.
	OnEvent func(Event)
}

type Seed struct {
	Version int64
	Content string
}

type Scheduler struct {
	documentID string
	editor     Editor
	persister  Persister
	opts       Options

	mu            sync.Mutex
	state         State
	localVersion  int64
	remoteVersion int64
	lastSaved     string
	latest        string
	timer         clockwork.Timer
	generation    uint64
	inflight      chan struct{}
	closed        bool
}

func New(documentID string, ed Editor, persister Persister, opts Options, seed Seed) *Scheduler {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Scheduler{
		documentID:    documentID,
		editor:        ed,
		persister:     persister,
		opts:          opts,
		state:         StateClean,
		localVersion:  seed.Version,
		remoteVersion: seed.Version,
		lastSaved:     seed.Content,
		latest:        seed.Content,
	}
}

// Notify records the buffer content after an accepted mutation. Content equal
// to the last notified value changes nothing.
func (s *Scheduler) Notify(content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || content == s.latest {
		return
	}
	s.latest = content
	if s.state == StateSaving || s.state == StateConflict {
		return
	}
	if content == s.lastSaved {
		s.stopTimer()
		s.state = StateClean
		return
	}
	s.state = StateDirty
	s.armTimer()
}

// Flush saves the current content now, after any in-flight save finishes.
func (s *Scheduler) Flush(ctx context.Context) error {
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return ErrClosed
		}
		if wait := s.inflight; wait != nil {
			s.mu.Unlock()
			select {
			case <-wait:
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		s.stopTimer()
		content, base, ok := s.begin()
		s.mu.Unlock()
		if !ok {
			return nil
		}
		return s.run(ctx, content, base)
	}
}

// Close stops the debounce timer and waits for an in-flight save. Pending
// changes are not saved; callers that need them persisted Flush first.
func (s *Scheduler) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.stopTimer()
	wait := s.inflight
	s.mu.Unlock()
	if wait == nil {
		return nil
	}
	select {
	case <-wait:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Scheduler) Snapshot() SyncState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Scheduler) snapshotLocked() SyncState {
	return SyncState{
		LocalVersion:     s.localVersion,
		RemoteVersion:    s.remoteVersion,
		PendingSave:      s.inflight != nil,
		LastSavedContent: s.lastSaved,
		IsDirty:          s.latest != s.lastSaved,
		State:            s.state,
	}
}

func (s *Scheduler) armTimer() {
	s.stopTimer()
	s.generation++
	gen := s.generation
	s.timer = s.opts.Clock.AfterFunc(s.opts.Debounce, func() { s.fire(gen) })
}

func (s *Scheduler) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.generation++
}

func (s *Scheduler) fire(gen uint64) {
	s.mu.Lock()
	if s.closed || gen != s.generation || s.state != StateDirty {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	content, base, ok := s.begin()
	s.mu.Unlock()
	if !ok {
		return
	}
	if err := s.run(context.Background(), content, base); err != nil {
		log.Printf("syncer: save %s at base %d: %v", s.documentID, base, err)
	}
}

// begin moves to Saving and stamps the request with the content at this
// instant. It reports false when there is nothing to save.
func (s *Scheduler) begin() (string, int64, bool) {
	if s.latest == s.lastSaved {
		s.state = StateClean
		return "", 0, false
	}
	s.state = StateSaving
	s.inflight = make(chan struct{})
	return s.latest, s.localVersion, true
}

func (s *Scheduler) run(ctx context.Context, content string, base int64) error {
	if s.opts.SaveTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.SaveTimeout)
		defer cancel()
	}

	saved, err := s.persister.Save(ctx, s.documentID, content, base)
	var conflict *ConflictError
	switch {
	case err == nil:
		s.finish(EventSaved, base, saved.Version, saved.Content, nil)
		return nil
	case errors.As(err, &conflict):
		s.adopt(conflict)
		s.finish(EventConflict, base, conflict.Version, conflict.Content, err)
		return err
	default:
		failure := &TransportError{Err: err}
		s.finish(EventFailed, base, 0, "", failure)
		return failure
	}
}

// adopt hands the remote copy to the editor. The scheduler lock is not held
// here because the editor notifies back through Notify.
func (s *Scheduler) adopt(conflict *ConflictError) {
	s.mu.Lock()
	s.state = StateConflict
	s.latest = conflict.Content
	s.mu.Unlock()

	s.editor.AdoptRemote(conflict.Content)
}

func (s *Scheduler) finish(kind EventType, base, version int64, stored string, err error) {
	s.mu.Lock()
	if kind != EventFailed {
		s.localVersion = version
		s.remoteVersion = version
		s.lastSaved = stored
	}
	switch {
	case s.latest == s.lastSaved:
		s.state = StateClean
	default:
		s.state = StateDirty
		if !s.closed {
			s.armTimer()
		}
	}
	close(s.inflight)
	s.inflight = nil
	event := Event{
		Type:        kind,
		DocumentID:  s.documentID,
		BaseVersion: base,
		State:       s.snapshotLocked(),
		Err:         err,
	}
	s.mu.Unlock()

	if s.opts.OnEvent != nil {
		s.opts.OnEvent(event)
	}
}
