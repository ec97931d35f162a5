package app

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"draftwise/api/internal/editor"
	"draftwise/api/internal/events"
	"draftwise/api/internal/gitrepo"
	"draftwise/api/internal/metrics"
	"draftwise/api/internal/session"
	"draftwise/api/internal/store"
	"draftwise/api/internal/syncer"
)

// workspace is one open document: its buffer, its save scheduler and the
// edit sessions attached to it.
type workspace struct {
	documentID string
	title      string

	coordinator *editor.Coordinator
	scheduler   *syncer.Scheduler
	stream      *stream
	unsubscribe func()

	mu       sync.Mutex
	actor    string
	sessions map[string]session.EditSession
	drafts   map[string]struct{}
}

func (s *Service) newWorkspace(doc store.Document) *workspace {
	ws := &workspace{
		documentID: doc.ID,
		title:      doc.Title,
		stream:     newStream(),
		actor:      doc.UpdatedBy,
		sessions:   make(map[string]session.EditSession),
		drafts:     make(map[string]struct{}),
	}
	ws.coordinator = editor.New(doc.Content)

	opts := s.syncOpts
	opts.OnEvent = func(evt syncer.Event) { s.handleSyncEvent(ws, evt) }
	ws.scheduler = syncer.New(doc.ID, ws.coordinator, &documentPersister{service: s, ws: ws}, opts, syncer.Seed{
		Version: doc.Version,
		Content: doc.Content,
	})

	// Runs under the coordinator lock. Notify and Snapshot only take the
	// scheduler lock, which is never held while calling the coordinator.
	ws.unsubscribe = ws.coordinator.Subscribe(func(change editor.Change) {
		ws.scheduler.Notify(change.Content)
		ws.stream.publish(StreamMessage{
			Type:   StreamChange,
			Change: &change,
			Sync:   ws.scheduler.Snapshot(),
		})
	})
	return ws
}

func (ws *workspace) setActor(name string) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if name != "" {
		ws.actor = name
	}
}

func (ws *workspace) currentActor() string {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.actor
}

// attach records edit for userID, replacing an earlier session of the same
// user.
func (ws *workspace) attach(userID string, edit session.EditSession) (session.EditSession, bool) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	previous, ok := ws.sessions[userID]
	ws.sessions[userID] = edit
	return previous, ok
}

func (ws *workspace) detach(userID string) (session.EditSession, bool) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	edit, ok := ws.sessions[userID]
	delete(ws.sessions, userID)
	return edit, ok
}

func (ws *workspace) detachAll() []session.EditSession {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	items := make([]session.EditSession, 0, len(ws.sessions))
	for userID, edit := range ws.sessions {
		items = append(items, edit)
		delete(ws.sessions, userID)
	}
	return items
}

func (ws *workspace) attached() []session.EditSession {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	items := make([]session.EditSession, 0, len(ws.sessions))
	for _, edit := range ws.sessions {
		items = append(items, edit)
	}
	return items
}

func (ws *workspace) sessionCount() int {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return len(ws.sessions)
}

func (ws *workspace) markDraft(userID string) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	ws.drafts[userID] = struct{}{}
}

func (ws *workspace) hasDraft(userID string) bool {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	_, ok := ws.drafts[userID]
	return ok
}

func (ws *workspace) takeDrafts() []string {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	users := make([]string, 0, len(ws.drafts))
	for userID := range ws.drafts {
		users = append(users, userID)
		delete(ws.drafts, userID)
	}
	return users
}

// handleSyncEvent runs after every finished save attempt, outside both the
// scheduler and coordinator locks.
func (s *Service) handleSyncEvent(ws *workspace, evt syncer.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out := events.Event{
		DocumentID: evt.DocumentID,
		Version:    evt.State.RemoteVersion,
		Actor:      ws.currentActor(),
	}
	switch evt.Type {
	case syncer.EventSaved:
		out.Type = events.DocumentSaved
		for _, edit := range ws.attached() {
			if _, err := s.sessions.TouchSession(ctx, edit.ID, evt.State.RemoteVersion); err != nil && !errors.Is(err, session.ErrSessionNotFound) {
				log.Printf("app: touch session %s: %v", edit.ID, err)
			}
		}
		if !evt.State.IsDirty {
			for _, userID := range ws.takeDrafts() {
				if err := s.sessions.DiscardDraft(ctx, ws.documentID, userID); err != nil {
					log.Printf("app: discard draft %s/%s: %v", ws.documentID, userID, err)
				}
			}
		}
	case syncer.EventConflict:
		out.Type = events.DocumentConflict
		out.Detail = "remote copy adopted"
		log.Printf("app: conflict on %s at base %d, adopted version %d", evt.DocumentID, evt.BaseVersion, evt.State.RemoteVersion)
	case syncer.EventFailed:
		out.Type = events.SaveFailed
		if evt.Err != nil {
			out.Detail = evt.Err.Error()
		}
		log.Printf("app: save %s failed: %v", evt.DocumentID, evt.Err)
	}

	if err := s.publisher.Publish(ctx, out); err != nil {
		log.Printf("app: publish %s for %s: %v", out.Type, out.DocumentID, err)
	}
	ws.stream.publish(StreamMessage{Type: StreamSync, Sync: evt.State})
}

// documentPersister writes through the store with optimistic concurrency and
// mirrors every stored version into the git history and the search index.
type documentPersister struct {
	service *Service
	ws      *workspace
}

func (p *documentPersister) Save(ctx context.Context, documentID, content string, baseVersion int64) (syncer.Saved, error) {
	actor := p.ws.currentActor()
	saved, err := p.service.store.SaveContent(ctx, store.SaveInput{
		DocumentID:  documentID,
		Content:     content,
		BaseVersion: baseVersion,
		Metrics:     metrics.Compute(content),
		SavedBy:     actor,
	})
	var conflict *store.ConflictError
	if errors.As(err, &conflict) {
		return syncer.Saved{}, &syncer.ConflictError{
			Version: conflict.Current.Version,
			Content: conflict.Current.Content,
		}
	}
	if err != nil {
		return syncer.Saved{}, err
	}

	p.service.recordRevision(saved, actor)
	p.service.search.IndexDocument(searchRecord(saved))
	return syncer.Saved{Version: saved.Version, Content: saved.Content}, nil
}

// recordRevision commits doc to its git history. The database stays the
// source of truth, so failures are only logged.
func (s *Service) recordRevision(doc store.Document, author string) {
	content := gitContent(doc)
	_, err := s.git.CommitRevision(doc.ID, content, author)
	if errors.Is(err, gitrepo.ErrRepoNotFound) {
		if err = s.git.EnsureDocumentRepo(doc.ID, content, author); err == nil {
			return
		}
	}
	if err != nil {
		log.Printf("app: commit revision %d of %s: %v", doc.Version, doc.ID, err)
	}
}
