// Package events publishes domain events about documents to Kafka.
package events

import (
	"context"
	"time"
)

type Type string

const (
	DocumentSaved     Type = "document.saved"
	DocumentConflict  Type = "document.conflict"
	SaveFailed        Type = "document.save_failed"
	SuggestionApplied Type = "suggestion.applied"
)

type Event struct {
	Type         Type      `json:"type"`
	DocumentID   string    `json:"documentId"`
	Version      int64     `json:"version"`
	Actor        string    `json:"actor,omitempty"`
	AnnotationID string    `json:"annotationId,omitempty"`
	Detail       string    `json:"detail,omitempty"`
	OccurredAt   time.Time `json:"occurredAt"`
}

// Publisher delivers events. Publish must not block on the broker.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
	Close() error
}

// Nop drops every event. Used when Kafka is not configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }
