package app

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"draftwise/api/internal/annotation"
	"draftwise/api/internal/auth"
	"draftwise/api/internal/config"
	"draftwise/api/internal/editor"
	"draftwise/api/internal/events"
	"draftwise/api/internal/gitrepo"
	"draftwise/api/internal/metrics"
	"draftwise/api/internal/rbac"
	"draftwise/api/internal/search"
	"draftwise/api/internal/session"
	"draftwise/api/internal/store"
	"draftwise/api/internal/syncer"
	"draftwise/api/internal/util"
)

type Session struct {
	Token     string
	UserID    string
	UserName  string
	Role      string
	ExpiresAt time.Time
}

type dataStore interface {
	CreateDocument(context.Context, store.Document) (store.Document, error)
	GetDocument(context.Context, string) (store.Document, error)
	ListDocuments(context.Context, string) ([]store.Document, error)
	SaveContent(context.Context, store.SaveInput) (store.Document, error)
	ListVersions(context.Context, string, int) ([]store.DocumentVersion, error)
	GetVersion(context.Context, string, int64) (store.DocumentVersion, error)
	DeleteDocument(context.Context, string) error
	Ping(context.Context) error
}

type gitService interface {
	EnsureDocumentRepo(string, gitrepo.Content, string) error
	CommitRevision(string, gitrepo.Content, string) (gitrepo.Revision, error)
	History(string, int) ([]gitrepo.Revision, error)
	GetContentByHash(string, string) (gitrepo.Content, error)
	GetContentByVersion(string, int64) (gitrepo.Content, error)
	DeleteDocumentRepo(string) error
}

type sessionStore interface {
	OpenSession(context.Context, string, string, int64) (session.EditSession, error)
	TouchSession(context.Context, string, int64) (session.EditSession, error)
	EndSession(context.Context, string) error
	DocumentSessions(context.Context, string) ([]session.EditSession, error)
	SaveDraft(context.Context, string, string, session.Draft) error
	LoadDraft(context.Context, string, string) (session.Draft, error)
	DiscardDraft(context.Context, string, string) error
	Ping(context.Context) error
}

type searchService interface {
	Search(context.Context, search.Query) search.Response
	IndexDocument(search.DocumentRecord)
	DeleteDocument(string)
}

type Dependencies struct {
	Store     dataStore
	Git       gitService
	Sessions  sessionStore
	Search    searchService
	Publisher events.Publisher
	// Sync overrides scheduler options; tests use it to inject a fake clock.
	Sync syncer.Options
}

type Service struct {
	cfg       config.Config
	store     dataStore
	git       gitService
	sessions  sessionStore
	search    searchService
	publisher events.Publisher
	syncOpts  syncer.Options

	mu         sync.Mutex
	workspaces map[string]*workspace
	closed     bool
}

func New(cfg config.Config, deps Dependencies) *Service {
	publisher := deps.Publisher
	if publisher == nil {
		publisher = events.Nop{}
	}
	syncOpts := deps.Sync
	if syncOpts.Debounce <= 0 {
		syncOpts.Debounce = cfg.SaveDebounce
	}
	if syncOpts.SaveTimeout <= 0 {
		syncOpts.SaveTimeout = cfg.SaveTimeout
	}
	return &Service{
		cfg:        cfg,
		store:      deps.Store,
		git:        deps.Git,
		sessions:   deps.Sessions,
		search:     deps.Search,
		publisher:  publisher,
		syncOpts:   syncOpts,
		workspaces: make(map[string]*workspace),
	}
}

// Login issues an access token for name. The user id is derived from the
// name so the same person keeps their drafts across logins.
func (s *Service) Login(name, role string) (Session, error) {
	userName := strings.TrimSpace(name)
	if userName == "" {
		userName = "User"
	}
	if strings.TrimSpace(role) == "" {
		role = string(rbac.RoleEditor)
	}
	normalized := string(rbac.Normalize(role))
	userID := userIDForName(userName)

	token, expiresAt, err := auth.IssueToken([]byte(s.cfg.JWTSecret), userID, userName, normalized, s.cfg.AccessTTL)
	if err != nil {
		return Session{}, err
	}
	return Session{
		Token:     token,
		UserID:    userID,
		UserName:  userName,
		Role:      normalized,
		ExpiresAt: expiresAt,
	}, nil
}

func userIDForName(name string) string {
	sum := sha1.Sum([]byte(strings.ToLower(name)))
	return "usr_" + hex.EncodeToString(sum[:])[:12]
}

func (s *Service) SessionFromToken(token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	var expiresAt time.Time
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	return Session{
		Token:     token,
		UserID:    claims.Subject,
		UserName:  claims.Name,
		Role:      string(rbac.Normalize(claims.Role)),
		ExpiresAt: expiresAt,
	}, nil
}

func (s *Service) Can(role string, op rbac.Operation) bool {
	return rbac.Permits(rbac.Normalize(role), op)
}

type CreateDocumentInput struct {
	Title       string `json:"title"`
	Content     string `json:"content"`
	Language    string `json:"language"`
	WritingGoal string `json:"writingGoal"`
}

func (s *Service) CreateDocument(ctx context.Context, sess Session, in CreateDocumentInput) (store.Document, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return store.Document{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}
	created, err := s.store.CreateDocument(ctx, store.Document{
		ID:          util.NewID("doc"),
		OwnerID:     sess.UserID,
		Title:       title,
		Content:     in.Content,
		Language:    in.Language,
		WritingGoal: in.WritingGoal,
	})
	if err != nil {
		return store.Document{}, err
	}
	if err := s.git.EnsureDocumentRepo(created.ID, gitContent(created), sess.UserName); err != nil {
		log.Printf("app: create repo for %s: %v", created.ID, err)
	}
	s.search.IndexDocument(searchRecord(created))
	return created, nil
}

func (s *Service) ListDocuments(ctx context.Context, ownerID string) ([]store.Document, error) {
	return s.store.ListDocuments(ctx, ownerID)
}

// DocumentState is what clients render: the buffer, its annotations and
// where the document stands against the stored copy.
type DocumentState struct {
	DocumentID string                `json:"documentId"`
	Title      string                `json:"title"`
	SessionID  string                `json:"sessionId,omitempty"`
	State      editor.State          `json:"state"`
	Sync       syncer.SyncState      `json:"sync"`
	Restored   bool                  `json:"restoredDraft,omitempty"`
	Sessions   []session.EditSession `json:"sessions,omitempty"`
}

// OpenDocument attaches sess to the document's workspace, creating the
// workspace from the stored copy when it is not open yet. A draft left by an
// earlier lost session of the same user is restored when it was based on the
// current stored version and nobody has unsaved changes in the buffer.
func (s *Service) OpenDocument(ctx context.Context, sess Session, documentID string) (DocumentState, error) {
	var (
		ws   *workspace
		edit session.EditSession
	)
	for attempt := 0; ; attempt++ {
		current, created, err := s.workspaceFor(ctx, documentID)
		if err != nil {
			return DocumentState{}, err
		}
		opened, err := s.sessions.OpenSession(ctx, documentID, sess.UserID, current.scheduler.Snapshot().LocalVersion)
		if err != nil {
			if created {
				if _, _, releaseErr := s.releaseIfIdle(ctx, current); releaseErr != nil {
					log.Printf("app: release %s after failed open: %v", documentID, releaseErr)
				}
			}
			return DocumentState{}, err
		}
		previous, replaced, ok := s.attach(current, sess.UserID, opened)
		if ok {
			if replaced {
				if err := s.sessions.EndSession(ctx, previous.ID); err != nil {
					log.Printf("app: end replaced session %s: %v", previous.ID, err)
				}
			}
			ws, edit = current, opened
			break
		}
		// The workspace was torn down between lookup and attach.
		if err := s.sessions.EndSession(ctx, opened.ID); err != nil {
			log.Printf("app: end session %s: %v", opened.ID, err)
		}
		if attempt >= 2 {
			return DocumentState{}, domainError(http.StatusConflict, "DOCUMENT_BUSY", "Document is closing, try again", map[string]any{"documentId": documentID})
		}
	}

	restored := s.restoreDraft(ctx, ws, sess)

	state := s.snapshot(ws)
	state.SessionID = edit.ID
	state.Restored = restored
	if live, err := s.sessions.DocumentSessions(ctx, documentID); err == nil {
		state.Sessions = live
	} else {
		log.Printf("app: list sessions for %s: %v", documentID, err)
	}
	return state, nil
}

// attach records edit on ws while ws is still the registered workspace for
// its document.
func (s *Service) attach(ws *workspace, userID string, edit session.EditSession) (session.EditSession, bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.workspaces[ws.documentID] != ws {
		return session.EditSession{}, false, false
	}
	previous, replaced := ws.attach(userID, edit)
	return previous, replaced, true
}

// releaseIfIdle unregisters ws and shuts it down when no session is attached.
// It reports whether ws was released.
func (s *Service) releaseIfIdle(ctx context.Context, ws *workspace) (syncer.SyncState, bool, error) {
	s.mu.Lock()
	if ws.sessionCount() > 0 || s.workspaces[ws.documentID] != ws {
		s.mu.Unlock()
		return ws.scheduler.Snapshot(), false, nil
	}
	delete(s.workspaces, ws.documentID)
	s.mu.Unlock()
	state, err := s.shutdownWorkspace(ctx, ws)
	return state, true, err
}

func (s *Service) workspaceFor(ctx context.Context, documentID string) (*workspace, bool, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, false, domainError(http.StatusServiceUnavailable, "SHUTTING_DOWN", "Service is shutting down", nil)
	}
	if ws, ok := s.workspaces[documentID]; ok {
		s.mu.Unlock()
		return ws, false, nil
	}
	s.mu.Unlock()

	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if ws, ok := s.workspaces[documentID]; ok {
		return ws, false, nil
	}
	ws := s.newWorkspace(doc)
	s.workspaces[documentID] = ws
	return ws, true, nil
}

func (s *Service) restoreDraft(ctx context.Context, ws *workspace, sess Session) bool {
	if ws.hasDraft(sess.UserID) {
		// The draft mirrors this workspace's own unsaved buffer.
		return false
	}
	draft, err := s.sessions.LoadDraft(ctx, ws.documentID, sess.UserID)
	if errors.Is(err, session.ErrDraftNotFound) {
		return false
	}
	if err != nil {
		log.Printf("app: load draft %s/%s: %v", ws.documentID, sess.UserID, err)
		return false
	}
	base := ws.scheduler.Snapshot()
	switch {
	case draft.BaseVersion != base.LocalVersion:
		log.Printf("app: discarding draft for %s based on version %d (stored %d)", ws.documentID, draft.BaseVersion, base.LocalVersion)
	case base.IsDirty:
		log.Printf("app: discarding draft for %s/%s, buffer already has unsaved changes", ws.documentID, sess.UserID)
	default:
		ws.setActor(sess.UserName)
		if _, changed := ws.coordinator.ApplyUserEdit(draft.Content); changed {
			ws.markDraft(sess.UserID)
			return true
		}
	}
	if err := s.sessions.DiscardDraft(ctx, ws.documentID, sess.UserID); err != nil {
		log.Printf("app: discard draft %s/%s: %v", ws.documentID, sess.UserID, err)
	}
	return false
}

// CloseDocument ends the caller's edit session. The last session to leave
// flushes pending changes and tears the workspace down.
func (s *Service) CloseDocument(ctx context.Context, sess Session, documentID string) (syncer.SyncState, error) {
	ws, err := s.openWorkspace(documentID)
	if err != nil {
		return syncer.SyncState{}, err
	}
	if edit, ok := ws.detach(sess.UserID); ok {
		if err := s.sessions.EndSession(ctx, edit.ID); err != nil {
			log.Printf("app: end session %s: %v", edit.ID, err)
		}
	}
	state, _, err := s.releaseIfIdle(ctx, ws)
	return state, err
}

func (s *Service) shutdownWorkspace(ctx context.Context, ws *workspace) (syncer.SyncState, error) {
	flushErr := ws.scheduler.Flush(ctx)
	if err := ws.scheduler.Close(ctx); err != nil {
		return ws.scheduler.Snapshot(), err
	}
	ws.unsubscribe()
	ws.stream.close()
	state := ws.scheduler.Snapshot()
	if flushErr != nil && !errors.Is(flushErr, syncer.ErrClosed) {
		var conflict *syncer.ConflictError
		if errors.As(flushErr, &conflict) {
			return state, nil
		}
		return state, flushErr
	}
	return state, nil
}

func (s *Service) openWorkspace(documentID string) (*workspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws, ok := s.workspaces[documentID]
	if !ok {
		return nil, domainError(http.StatusConflict, "DOCUMENT_NOT_OPEN", "Document is not open", map[string]any{"documentId": documentID})
	}
	return ws, nil
}

func (s *Service) State(documentID string) (DocumentState, error) {
	ws, err := s.openWorkspace(documentID)
	if err != nil {
		return DocumentState{}, err
	}
	return s.snapshot(ws), nil
}

func (s *Service) snapshot(ws *workspace) DocumentState {
	return DocumentState{
		DocumentID: ws.documentID,
		Title:      ws.title,
		State:      ws.coordinator.CurrentState(),
		Sync:       ws.scheduler.Snapshot(),
	}
}

// ChangeResult pairs an accepted change with the sync state right after it.
type ChangeResult struct {
	Changed bool             `json:"changed"`
	Change  *editor.Change   `json:"change,omitempty"`
	Sync    syncer.SyncState `json:"sync"`
}

func (s *Service) ApplyUserEdit(ctx context.Context, sess Session, documentID, content string) (ChangeResult, error) {
	ws, err := s.openWorkspace(documentID)
	if err != nil {
		return ChangeResult{}, err
	}
	ws.setActor(sess.UserName)
	change, changed := ws.coordinator.ApplyUserEdit(content)
	return s.afterChange(ctx, ws, sess, change, changed), nil
}

func (s *Service) ApplySuggestion(ctx context.Context, sess Session, documentID, annotationID string) (ChangeResult, error) {
	ws, err := s.openWorkspace(documentID)
	if err != nil {
		return ChangeResult{}, err
	}
	ws.setActor(sess.UserName)
	change, err := ws.coordinator.ApplySuggestion(annotationID)
	if err != nil {
		return ChangeResult{}, err
	}
	s.publish(events.Event{
		Type:         events.SuggestionApplied,
		DocumentID:   documentID,
		Version:      ws.scheduler.Snapshot().LocalVersion,
		Actor:        sess.UserName,
		AnnotationID: annotationID,
	})
	return s.afterChange(ctx, ws, sess, change, true), nil
}

func (s *Service) Dismiss(documentID, annotationID string) (editor.State, error) {
	ws, err := s.openWorkspace(documentID)
	if err != nil {
		return editor.State{}, err
	}
	if err := ws.coordinator.Dismiss(annotationID); err != nil {
		return editor.State{}, err
	}
	return ws.coordinator.CurrentState(), nil
}

func (s *Service) AddSuggestions(documentID string, payloads []editor.SuggestionPayload) ([]annotation.Annotation, error) {
	ws, err := s.openWorkspace(documentID)
	if err != nil {
		return nil, err
	}
	return ws.coordinator.AddSuggestions(payloads)
}

func (s *Service) AddComment(sess Session, documentID string, rng annotation.Range, body string) (annotation.Annotation, error) {
	if strings.TrimSpace(body) == "" {
		return annotation.Annotation{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "comment body is required", nil)
	}
	ws, err := s.openWorkspace(documentID)
	if err != nil {
		return annotation.Annotation{}, err
	}
	return ws.coordinator.AddComment(editor.CommentInput{Range: rng, Author: sess.UserName, Body: body})
}

func (s *Service) ResolveComment(documentID, annotationID string) (editor.State, error) {
	ws, err := s.openWorkspace(documentID)
	if err != nil {
		return editor.State{}, err
	}
	if err := ws.coordinator.ResolveComment(annotationID); err != nil {
		return editor.State{}, err
	}
	return ws.coordinator.CurrentState(), nil
}

func (s *Service) ListAnnotations(documentID string, includeInactive bool, kinds []annotation.Kind) ([]annotation.Annotation, error) {
	ws, err := s.openWorkspace(documentID)
	if err != nil {
		return nil, err
	}
	if includeInactive {
		return ws.coordinator.Annotations(), nil
	}
	return ws.coordinator.ListActive(kinds...), nil
}

// Analysis reports the extended writing analytics for the current buffer.
func (s *Service) Analysis(documentID string) (metrics.Report, error) {
	ws, err := s.openWorkspace(documentID)
	if err != nil {
		return metrics.Report{}, err
	}
	return metrics.Analyze(ws.coordinator.Content()), nil
}

type KeywordsResult struct {
	DocumentID    string   `json:"documentId"`
	Keywords      []string `json:"keywords"`
	TotalKeywords int      `json:"totalKeywords"`
}

func (s *Service) Keywords(documentID string, limit int) (KeywordsResult, error) {
	ws, err := s.openWorkspace(documentID)
	if err != nil {
		return KeywordsResult{}, err
	}
	keywords := metrics.Keywords(ws.coordinator.Content(), limit)
	return KeywordsResult{DocumentID: documentID, Keywords: keywords, TotalKeywords: len(keywords)}, nil
}

func (s *Service) Dictate(ctx context.Context, sess Session, documentID string, at int, text string) (ChangeResult, error) {
	ws, err := s.openWorkspace(documentID)
	if err != nil {
		return ChangeResult{}, err
	}
	ws.setActor(sess.UserName)
	change, err := ws.coordinator.Dictate(at, text)
	if err != nil {
		return ChangeResult{}, err
	}
	return s.afterChange(ctx, ws, sess, change, true), nil
}

func (s *Service) ImportHTML(ctx context.Context, sess Session, documentID, markup string) (ChangeResult, error) {
	ws, err := s.openWorkspace(documentID)
	if err != nil {
		return ChangeResult{}, err
	}
	ws.setActor(sess.UserName)
	change, changed, err := ws.coordinator.ImportHTML(markup)
	if err != nil {
		return ChangeResult{}, domainError(http.StatusUnprocessableEntity, "INVALID_HTML", err.Error(), nil)
	}
	return s.afterChange(ctx, ws, sess, change, changed), nil
}

// afterChange keeps a recovery draft of unsaved content for the actor.
func (s *Service) afterChange(ctx context.Context, ws *workspace, sess Session, change editor.Change, changed bool) ChangeResult {
	state := ws.scheduler.Snapshot()
	result := ChangeResult{Changed: changed, Sync: state}
	if !changed {
		return result
	}
	result.Change = &change
	if state.IsDirty {
		draft := session.Draft{Content: change.Content, BaseVersion: state.LocalVersion}
		if err := s.sessions.SaveDraft(ctx, ws.documentID, sess.UserID, draft); err != nil {
			log.Printf("app: save draft %s/%s: %v", ws.documentID, sess.UserID, err)
		} else {
			ws.markDraft(sess.UserID)
		}
	}
	return result
}

// Save flushes the buffer now. A conflict is reported after the remote copy
// has been adopted.
func (s *Service) Save(ctx context.Context, sess Session, documentID string) (DocumentState, error) {
	ws, err := s.openWorkspace(documentID)
	if err != nil {
		return DocumentState{}, err
	}
	ws.setActor(sess.UserName)
	if err := ws.scheduler.Flush(ctx); err != nil {
		var conflict *syncer.ConflictError
		if errors.As(err, &conflict) {
			return DocumentState{}, domainError(http.StatusConflict, "CONFLICT", "Document changed remotely; the stored copy was loaded", s.snapshot(ws))
		}
		return DocumentState{}, err
	}
	return s.snapshot(ws), nil
}

type History struct {
	Versions  []store.DocumentVersion `json:"versions"`
	Revisions []gitrepo.Revision      `json:"revisions"`
}

func (s *Service) History(ctx context.Context, documentID string, limit int) (History, error) {
	versions, err := s.store.ListVersions(ctx, documentID, limit)
	if err != nil {
		return History{}, err
	}
	revisions, err := s.git.History(documentID, limit)
	if err != nil && !errors.Is(err, gitrepo.ErrRepoNotFound) {
		return History{}, err
	}
	if revisions == nil {
		revisions = []gitrepo.Revision{}
	}
	return History{Versions: versions, Revisions: revisions}, nil
}

func (s *Service) Version(ctx context.Context, documentID string, version int64) (store.DocumentVersion, error) {
	return s.store.GetVersion(ctx, documentID, version)
}

func (s *Service) Revision(documentID, hash string) (gitrepo.Content, error) {
	return s.git.GetContentByHash(documentID, hash)
}

type Comparison struct {
	From    int64               `json:"from"`
	To      int64               `json:"to"`
	Summary gitrepo.DiffSummary `json:"summary"`
}

func (s *Service) Compare(documentID string, from, to int64) (Comparison, error) {
	before, err := s.git.GetContentByVersion(documentID, from)
	if err != nil {
		return Comparison{}, domainError(http.StatusNotFound, "VERSION_NOT_FOUND", fmt.Sprintf("version %d not found", from), nil)
	}
	after, err := s.git.GetContentByVersion(documentID, to)
	if err != nil {
		return Comparison{}, domainError(http.StatusNotFound, "VERSION_NOT_FOUND", fmt.Sprintf("version %d not found", to), nil)
	}
	return Comparison{From: from, To: to, Summary: gitrepo.Diff(before, after)}, nil
}

func (s *Service) Search(ctx context.Context, q search.Query) search.Response {
	return s.search.Search(ctx, q)
}

// DeleteDocument discards any open workspace without saving, then removes
// the document everywhere.
func (s *Service) DeleteDocument(ctx context.Context, documentID string) error {
	s.mu.Lock()
	ws := s.workspaces[documentID]
	delete(s.workspaces, documentID)
	s.mu.Unlock()
	if ws != nil {
		if err := ws.scheduler.Close(ctx); err != nil {
			log.Printf("app: close scheduler for deleted %s: %v", documentID, err)
		}
		ws.unsubscribe()
		ws.stream.close()
		for _, edit := range ws.detachAll() {
			if err := s.sessions.EndSession(ctx, edit.ID); err != nil {
				log.Printf("app: end session %s: %v", edit.ID, err)
			}
		}
	}

	if err := s.store.DeleteDocument(ctx, documentID); err != nil {
		return err
	}
	if err := s.git.DeleteDocumentRepo(documentID); err != nil {
		log.Printf("app: delete repo %s: %v", documentID, err)
	}
	s.search.DeleteDocument(documentID)
	return nil
}

// Subscribe streams state updates for an open document until cancel is
// called or the workspace closes.
func (s *Service) Subscribe(documentID string) (<-chan StreamMessage, func(), error) {
	ws, err := s.openWorkspace(documentID)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := ws.stream.subscribe()
	return ch, cancel, nil
}

// Shutdown flushes and closes every open workspace concurrently.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	open := make([]*workspace, 0, len(s.workspaces))
	for id, ws := range s.workspaces {
		open = append(open, ws)
		delete(s.workspaces, id)
	}
	s.mu.Unlock()

	group, groupCtx := errgroup.WithContext(ctx)
	for _, ws := range open {
		group.Go(func() error {
			if _, err := s.shutdownWorkspace(groupCtx, ws); err != nil {
				return fmt.Errorf("close %s: %w", ws.documentID, err)
			}
			for _, edit := range ws.detachAll() {
				if err := s.sessions.EndSession(groupCtx, edit.ID); err != nil {
					log.Printf("app: end session %s: %v", edit.ID, err)
				}
			}
			return nil
		})
	}
	err := group.Wait()
	if closeErr := s.publisher.Close(); closeErr != nil {
		log.Printf("app: close publisher: %v", closeErr)
	}
	return err
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) PingSessions(ctx context.Context) error {
	return s.sessions.Ping(ctx)
}

func (s *Service) publish(evt events.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.publisher.Publish(ctx, evt); err != nil {
		log.Printf("app: publish %s for %s: %v", evt.Type, evt.DocumentID, err)
	}
}

func gitContent(doc store.Document) gitrepo.Content {
	return gitrepo.Content{Title: doc.Title, Body: doc.Content, Version: doc.Version}
}

func searchRecord(doc store.Document) search.DocumentRecord {
	return search.DocumentRecord{
		ID:        doc.ID,
		OwnerID:   doc.OwnerID,
		Title:     doc.Title,
		Content:   doc.Content,
		Version:   doc.Version,
		WordCount: doc.WordCount,
	}
}
