package search

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

type fakeIndex struct {
	healthy   bool
	searchFn  func(q Query) ([]Result, int, error)
	mu        sync.Mutex
	indexed   chan DocumentRecord
	deleted   chan string
	bulkCount int
}

func (f *fakeIndex) Healthy() bool { return f.healthy }

func (f *fakeIndex) Search(_ context.Context, q Query) ([]Result, int, error) {
	return f.searchFn(q)
}

func (f *fakeIndex) IndexDocument(doc DocumentRecord) error {
	f.indexed <- doc
	return nil
}

func (f *fakeIndex) IndexDocuments(docs []DocumentRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bulkCount += len(docs)
	return nil
}

func (f *fakeIndex) DeleteDocument(id string) error {
	f.deleted <- id
	return nil
}

type fakeSearcher struct {
	calls    int
	searchFn func(q Query) ([]Result, int, error)
}

func (f *fakeSearcher) Healthy() bool { return true }

func (f *fakeSearcher) Search(_ context.Context, q Query) ([]Result, int, error) {
	f.calls++
	return f.searchFn(q)
}

func TestSearchPrefersHealthyIndex(t *testing.T) {
	index := &fakeIndex{healthy: true, searchFn: func(q Query) ([]Result, int, error) {
		return []Result{{ID: "doc_1", Title: "Draft"}}, 1, nil
	}}
	fallback := &fakeSearcher{searchFn: func(Query) ([]Result, int, error) {
		t.Fatal("fallback must not be queried while the index answers")
		return nil, 0, nil
	}}
	svc := &Service{index: index, fallback: fallback}

	resp := svc.Search(context.Background(), Query{Text: "draft"})
	if resp.Total != 1 || len(resp.Results) != 1 || resp.Results[0].ID != "doc_1" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.Query != "draft" {
		t.Fatalf("expected query echoed, got %q", resp.Query)
	}
}

func TestSearchFallsBackWhenIndexFailsOrIsDown(t *testing.T) {
	tests := []struct {
		name  string
		index *fakeIndex
	}{
		{
			name: "index error",
			index: &fakeIndex{healthy: true, searchFn: func(Query) ([]Result, int, error) {
				return nil, 0, errors.New("boom")
			}},
		},
		{
			name:  "index unhealthy",
			index: &fakeIndex{healthy: false},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fallback := &fakeSearcher{searchFn: func(q Query) ([]Result, int, error) {
				if q.OwnerID != "usr_1" {
					t.Fatalf("expected owner filter forwarded, got %q", q.OwnerID)
				}
				return []Result{{ID: "doc_2"}}, 1, nil
			}}
			svc := &Service{index: tt.index, fallback: fallback}
			resp := svc.Search(context.Background(), Query{Text: "cat", OwnerID: "usr_1"})
			if fallback.calls != 1 || len(resp.Results) != 1 || resp.Results[0].ID != "doc_2" {
				t.Fatalf("expected fallback result, got %+v (calls=%d)", resp, fallback.calls)
			}
		})
	}
}

func TestSearchReturnsEmptyListOnFailure(t *testing.T) {
	svc := &Service{fallback: &fakeSearcher{searchFn: func(Query) ([]Result, int, error) {
		return nil, 0, errors.New("db down")
	}}}
	resp := svc.Search(context.Background(), Query{Text: "cat"})
	if resp.Results == nil || len(resp.Results) != 0 || resp.Total != 0 {
		t.Fatalf("expected empty non-nil results, got %+v", resp)
	}

	bare := NewService(nil, nil)
	if resp := bare.Search(context.Background(), Query{Text: "cat"}); resp.Results == nil {
		t.Fatal("expected non-nil results without any backend")
	}
}

func TestIndexAndDeleteRunInBackground(t *testing.T) {
	index := &fakeIndex{healthy: true, indexed: make(chan DocumentRecord, 1), deleted: make(chan string, 1)}
	svc := NewService(index, nil)

	svc.IndexDocument(DocumentRecord{ID: "doc_1", Version: 3})
	select {
	case doc := <-index.indexed:
		if doc.Version != 3 {
			t.Fatalf("expected version 3, got %d", doc.Version)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for index call")
	}

	svc.DeleteDocument("doc_1")
	select {
	case id := <-index.deleted:
		if id != "doc_1" {
			t.Fatalf("expected doc_1 deleted, got %s", id)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delete call")
	}
}

func TestIndexSkippedWhileUnhealthy(t *testing.T) {
	index := &fakeIndex{healthy: false, indexed: make(chan DocumentRecord, 1)}
	svc := NewService(index, nil)
	svc.IndexDocument(DocumentRecord{ID: "doc_1"})
	select {
	case <-index.indexed:
		t.Fatal("unhealthy index must not receive documents")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestReindexAllLoadsEveryDocument(t *testing.T) {
	index := &fakeIndex{healthy: true}
	svc := &Service{index: index, loader: func(context.Context) ([]DocumentRecord, error) {
		return []DocumentRecord{{ID: "doc_1"}, {ID: "doc_2"}}, nil
	}}
	svc.ReindexAll(context.Background())
	if index.bulkCount != 2 {
		t.Fatalf("expected 2 documents reindexed, got %d", index.bulkCount)
	}
}

func TestHitToResultPrefersHighlightedFields(t *testing.T) {
	hit := meili.Hit{
		"id":         json.RawMessage(`"doc_1"`),
		"ownerId":    json.RawMessage(`"usr_1"`),
		"title":      json.RawMessage(`"Cat notes"`),
		"content":    json.RawMessage(`"The cat sat."`),
		"version":    json.RawMessage(`4`),
		"wordCount":  json.RawMessage(`3`),
		"_formatted": json.RawMessage(`{"title":"<mark>Cat</mark> notes","content":"The <mark>cat</mark> sat.","version":"4"}`),
	}
	got := hitToResult(hit)
	want := Result{ID: "doc_1", OwnerID: "usr_1", Title: "<mark>Cat</mark> notes", Snippet: "The <mark>cat</mark> sat.", Version: 4, WordCount: 3}
	if got != want {
		t.Fatalf("hitToResult = %+v, want %+v", got, want)
	}
}

func TestUnhealthyMeiliRefusesSearch(t *testing.T) {
	m := &Meili{done: make(chan struct{})}
	if _, _, err := m.Search(context.Background(), Query{Text: "cat"}); err == nil {
		t.Fatal("expected error from unhealthy meilisearch")
	}
}

func TestPgFTSBlankQueryShortCircuits(t *testing.T) {
	results, total, err := NewPgFTS(nil).Search(context.Background(), Query{Text: "   "})
	if err != nil || total != 0 || results != nil {
		t.Fatalf("expected empty result for blank query, got %v %d %v", results, total, err)
	}
}

func TestNormalizeAppliesDefaults(t *testing.T) {
	q := normalize(Query{Limit: 0, Offset: -4})
	if q.Limit != defaultLimit || q.Offset != 0 {
		t.Fatalf("unexpected normalized query %+v", q)
	}
}
