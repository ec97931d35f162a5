package app

import (
	"sync"

	"draftwise/api/internal/editor"
	"draftwise/api/internal/syncer"
)

type StreamType string

const (
	StreamState  StreamType = "state"
	StreamChange StreamType = "change"
	StreamSync   StreamType = "sync"
)

type StreamMessage struct {
	Type   StreamType       `json:"type"`
	Change *editor.Change   `json:"change,omitempty"`
	State  *DocumentState   `json:"state,omitempty"`
	Sync   syncer.SyncState `json:"sync"`
}

const streamBuffer = 32

// stream fans workspace updates out to websocket subscribers. publish never
// blocks: a subscriber whose buffer is full misses the message.
type stream struct {
	mu     sync.Mutex
	subs   map[chan StreamMessage]struct{}
	closed bool
}

func newStream() *stream {
	return &stream{subs: make(map[chan StreamMessage]struct{})}
}

func (s *stream) subscribe() (<-chan StreamMessage, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan StreamMessage, streamBuffer)
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	s.subs[ch] = struct{}{}
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subs[ch]; ok {
			delete(s.subs, ch)
			close(ch)
		}
	}
}

func (s *stream) publish(msg StreamMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- msg:
		default:
		}
	}
}

func (s *stream) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for ch := range s.subs {
		delete(s.subs, ch)
		close(ch)
	}
}
