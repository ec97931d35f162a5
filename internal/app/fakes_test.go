package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"

	"draftwise/api/internal/config"
	"draftwise/api/internal/events"
	"draftwise/api/internal/gitrepo"
	"draftwise/api/internal/metrics"
	"draftwise/api/internal/search"
	"draftwise/api/internal/session"
	"draftwise/api/internal/store"
	"draftwise/api/internal/syncer"
)

type fakeStore struct {
	mu        sync.Mutex
	documents map[string]store.Document
	versions  map[string][]store.DocumentVersion

	saveContentFn func(context.Context, store.SaveInput) (store.Document, error)
	pingFn        func(context.Context) error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		documents: make(map[string]store.Document),
		versions:  make(map[string][]store.DocumentVersion),
	}
}

func (f *fakeStore) CreateDocument(_ context.Context, doc store.Document) (store.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc.Version = 1
	doc.WordCount = metrics.Compute(doc.Content).WordCount
	doc.UpdatedBy = doc.OwnerID
	f.documents[doc.ID] = doc
	f.versions[doc.ID] = []store.DocumentVersion{{DocumentID: doc.ID, Version: 1, Content: doc.Content}}
	return doc, nil
}

func (f *fakeStore) GetDocument(_ context.Context, id string) (store.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.documents[id]
	if !ok {
		return store.Document{}, fmt.Errorf("%w: document %s", store.ErrNotFound, id)
	}
	return doc, nil
}

func (f *fakeStore) ListDocuments(_ context.Context, ownerID string) ([]store.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := make([]store.Document, 0, len(f.documents))
	for _, doc := range f.documents {
		if ownerID == "" || doc.OwnerID == ownerID {
			items = append(items, doc)
		}
	}
	return items, nil
}

func (f *fakeStore) SaveContent(ctx context.Context, in store.SaveInput) (store.Document, error) {
	if f.saveContentFn != nil {
		return f.saveContentFn(ctx, in)
	}
	return f.write(in.DocumentID, in.Content, in.BaseVersion, in.SavedBy)
}

func (f *fakeStore) write(id, content string, base int64, savedBy string) (store.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.documents[id]
	if !ok {
		return store.Document{}, fmt.Errorf("%w: document %s", store.ErrNotFound, id)
	}
	if doc.Version != base {
		return store.Document{}, &store.ConflictError{BaseVersion: base, Current: doc}
	}
	doc.Version++
	doc.Content = content
	doc.WordCount = metrics.Compute(content).WordCount
	doc.UpdatedBy = savedBy
	f.documents[id] = doc
	f.versions[id] = append(f.versions[id], store.DocumentVersion{DocumentID: id, Version: doc.Version, Content: content, SavedBy: savedBy})
	return doc, nil
}

// overwrite simulates another writer landing a version.
func (f *fakeStore) overwrite(t *testing.T, id, content string) store.Document {
	t.Helper()
	current, err := f.GetDocument(context.Background(), id)
	if err != nil {
		t.Fatalf("GetDocument(%s) error = %v", id, err)
	}
	doc, err := f.write(id, content, current.Version, "someone else")
	if err != nil {
		t.Fatalf("overwrite %s: %v", id, err)
	}
	return doc
}

func (f *fakeStore) ListVersions(_ context.Context, id string, limit int) ([]store.DocumentVersion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := make([]store.DocumentVersion, 0)
	versions := f.versions[id]
	for i := len(versions) - 1; i >= 0; i-- {
		items = append(items, versions[i])
		if limit > 0 && len(items) >= limit {
			break
		}
	}
	return items, nil
}

func (f *fakeStore) GetVersion(_ context.Context, id string, version int64) (store.DocumentVersion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, item := range f.versions[id] {
		if item.Version == version {
			return item, nil
		}
	}
	return store.DocumentVersion{}, fmt.Errorf("%w: version %d of %s", store.ErrNotFound, version, id)
}

func (f *fakeStore) DeleteDocument(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.documents[id]; !ok {
		return fmt.Errorf("%w: document %s", store.ErrNotFound, id)
	}
	delete(f.documents, id)
	delete(f.versions, id)
	return nil
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

type fakeSearch struct {
	mu      sync.Mutex
	indexed map[string]search.DocumentRecord
	deleted []string
}

func newFakeSearch() *fakeSearch {
	return &fakeSearch{indexed: make(map[string]search.DocumentRecord)}
}

func (f *fakeSearch) Search(_ context.Context, q search.Query) search.Response {
	f.mu.Lock()
	defer f.mu.Unlock()
	results := make([]search.Result, 0)
	for _, record := range f.indexed {
		if q.OwnerID != "" && record.OwnerID != q.OwnerID {
			continue
		}
		results = append(results, search.Result{ID: record.ID, Title: record.Title, OwnerID: record.OwnerID, Version: record.Version})
	}
	return search.Response{Results: results, Total: len(results), Query: q.Text}
}

func (f *fakeSearch) IndexDocument(record search.DocumentRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexed[record.ID] = record
}

func (f *fakeSearch) DeleteDocument(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.indexed, id)
	f.deleted = append(f.deleted, id)
}

func (f *fakeSearch) record(id string) (search.DocumentRecord, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.indexed[id]
	return record, ok
}

type fakePublisher struct {
	events chan events.Event
	closed bool
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{events: make(chan events.Event, 64)}
}

func (f *fakePublisher) Publish(_ context.Context, evt events.Event) error {
	select {
	case f.events <- evt:
		return nil
	default:
		return errors.New("fake publisher full")
	}
}

func (f *fakePublisher) Close() error {
	f.closed = true
	return nil
}

func (f *fakePublisher) expect(t *testing.T, want events.Type) events.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case evt := <-f.events:
			if evt.Type == want {
				return evt
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", want)
			return events.Event{}
		}
	}
}

type testEnv struct {
	service   *Service
	store     *fakeStore
	git       *gitrepo.Service
	sessions  *session.RedisStore
	redis     *miniredis.Miniredis
	search    *fakeSearch
	publisher *fakePublisher
	clock     *clockwork.FakeClock
}

func testConfig() config.Config {
	return config.Config{
		JWTSecret:    "test-secret",
		AccessTTL:    time.Hour,
		SaveDebounce: 2 * time.Second,
		SaveTimeout:  5 * time.Second,
		CORSOrigin:   "*",
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	redisServer := miniredis.RunT(t)
	sessions, err := session.NewRedisStore("redis://"+redisServer.Addr(), time.Hour)
	if err != nil {
		t.Fatalf("NewRedisStore() error = %v", err)
	}
	t.Cleanup(func() { _ = sessions.Close() })

	env := &testEnv{
		store:     newFakeStore(),
		git:       gitrepo.New(t.TempDir()),
		sessions:  sessions,
		redis:     redisServer,
		search:    newFakeSearch(),
		publisher: newFakePublisher(),
		clock:     clockwork.NewFakeClock(),
	}
	env.service = env.newService()
	t.Cleanup(func() { _ = env.service.Shutdown(context.Background()) })
	return env
}

// newService builds another service over the same backing stores, standing
// in for a second API process.
func (e *testEnv) newService() *Service {
	return New(testConfig(), Dependencies{
		Store:     e.store,
		Git:       e.git,
		Sessions:  e.sessions,
		Search:    e.search,
		Publisher: e.publisher,
		Sync:      syncer.Options{Clock: e.clock},
	})
}

func (e *testEnv) login(t *testing.T, name, role string) Session {
	t.Helper()
	sess, err := e.service.Login(name, role)
	if err != nil {
		t.Fatalf("Login(%s) error = %v", name, err)
	}
	return sess
}

func (e *testEnv) createDocument(t *testing.T, owner Session, title, content string) store.Document {
	t.Helper()
	doc, err := e.service.CreateDocument(context.Background(), owner, CreateDocumentInput{Title: title, Content: content})
	if err != nil {
		t.Fatalf("CreateDocument() error = %v", err)
	}
	return doc
}
