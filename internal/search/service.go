package search

import (
	"context"
	"log"
)

// Service tries the index first and falls back to Postgres.
type Service struct {
	index    Indexer
	fallback Searcher
	loader   func(ctx context.Context) ([]DocumentRecord, error)
}

// NewService creates a search service. index may be nil when Meilisearch is
// not configured.
func NewService(index Indexer, pgfts *PgFTS) *Service {
	s := &Service{index: index}
	if pgfts != nil {
		s.fallback = pgfts
		s.loader = pgfts.LoadAllRecords
	}
	return s
}

func (s *Service) indexReady() bool {
	return s.index != nil && s.index.Healthy()
}

func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.indexReady() {
		results, total, err := s.index.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to pgfts: %v", err)
	}
	if s.fallback == nil {
		return Response{Results: []Result{}, Query: q.Text}
	}

	results, total, err := s.fallback.Search(ctx, q)
	if err != nil {
		log.Printf("search: pgfts error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexDocument indexes a document in the background.
func (s *Service) IndexDocument(doc DocumentRecord) {
	if !s.indexReady() {
		return
	}
	go func() {
		if err := s.index.IndexDocument(doc); err != nil {
			log.Printf("search: index document %s: %v", doc.ID, err)
		}
	}()
}

// DeleteDocument removes a document from the index in the background.
func (s *Service) DeleteDocument(id string) {
	if !s.indexReady() {
		return
	}
	go func() {
		if err := s.index.DeleteDocument(id); err != nil {
			log.Printf("search: delete document %s: %v", id, err)
		}
	}()
}

// ReindexAll pushes every stored document into the index. Called at startup.
func (s *Service) ReindexAll(ctx context.Context) {
	if !s.indexReady() || s.loader == nil {
		return
	}
	documents, err := s.loader(ctx)
	if err != nil {
		log.Printf("search: reindex load failed: %v", err)
		return
	}
	if err := s.index.IndexDocuments(documents); err != nil {
		log.Printf("search: reindex documents: %v", err)
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
