package store

import (
	"errors"
	"fmt"
	"time"
)

var ErrNotFound = errors.New("store: not found")

type Document struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"ownerId"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	Version     int64     `json:"version"`
	WordCount   int       `json:"wordCount"`
	ReadingTime int       `json:"readingTime"`
	GradeLevel  int       `json:"gradeLevel"`
	Language    string    `json:"language"`
	WritingGoal string    `json:"writingGoal"`
	UpdatedBy   string    `json:"updatedBy"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// DocumentVersion is one saved revision. Rows are append-only.
type DocumentVersion struct {
	DocumentID string    `json:"documentId"`
	Version    int64     `json:"version"`
	Content    string    `json:"content"`
	WordCount  int       `json:"wordCount"`
	SavedBy    string    `json:"savedBy"`
	CreatedAt  time.Time `json:"createdAt"`
}

// ConflictError is returned by SaveContent when the base version is behind
// the stored one. Current holds the stored row.
type ConflictError struct {
	BaseVersion int64
	Current     Document
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("store: base version %d is behind stored version %d", e.BaseVersion, e.Current.Version)
}
