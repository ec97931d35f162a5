// Package session stores editing sessions and unsaved drafts in Redis. A
// session lives from document open to document close.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"draftwise/api/internal/util"
)

const DefaultTTL = 12 * time.Hour

var (
	ErrSessionNotFound = errors.New("session: not found or expired")
	ErrDraftNotFound   = errors.New("session: draft not found")
)

// EditSession ties one user to one open document.
type EditSession struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"documentId"`
	UserID     string    `json:"userId"`
	OpenedAt   time.Time `json:"openedAt"`
	Version    int64     `json:"version"`
}

// Draft is buffer content that has not been saved yet, kept so a crashed
// client can recover it.
type Draft struct {
	Content     string    `json:"content"`
	BaseVersion int64     `json:"baseVersion"`
	SavedAt     time.Time `json:"savedAt"`
}

type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

func NewRedisStore(redisURL string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewRedisStoreWithClient(client, ttl), nil
}

func NewRedisStoreWithClient(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{
		client: client,
		prefix: "draftwise:",
		ttl:    ttl,
		now:    time.Now,
	}
}

func (s *RedisStore) sessionKey(id string) string {
	return s.prefix + "session:" + id
}

func (s *RedisStore) documentSessionsKey(documentID string) string {
	return s.prefix + "doc-sessions:" + documentID
}

func (s *RedisStore) draftKey(documentID, userID string) string {
	return s.prefix + "draft:" + documentID + ":" + userID
}

// OpenSession starts a session for userID on documentID at version.
func (s *RedisStore) OpenSession(ctx context.Context, documentID, userID string, version int64) (EditSession, error) {
	item := EditSession{
		ID:         util.NewID("ses"),
		DocumentID: documentID,
		UserID:     userID,
		OpenedAt:   s.now().UTC(),
		Version:    version,
	}
	payload, err := json.Marshal(item)
	if err != nil {
		return EditSession{}, fmt.Errorf("marshal session: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.sessionKey(item.ID), payload, s.ttl)
		pipe.SAdd(ctx, s.documentSessionsKey(documentID), item.ID)
		pipe.Expire(ctx, s.documentSessionsKey(documentID), s.ttl)
		return nil
	})
	if err != nil {
		return EditSession{}, fmt.Errorf("open session: %w", err)
	}
	return item, nil
}

func (s *RedisStore) LookupSession(ctx context.Context, id string) (EditSession, error) {
	raw, err := s.client.Get(ctx, s.sessionKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return EditSession{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return EditSession{}, fmt.Errorf("lookup session: %w", err)
	}
	var item EditSession
	if err := json.Unmarshal([]byte(raw), &item); err != nil {
		return EditSession{}, fmt.Errorf("unmarshal session: %w", err)
	}
	return item, nil
}

// TouchSession records the version the session last synced and extends its
// lifetime.
func (s *RedisStore) TouchSession(ctx context.Context, id string, version int64) (EditSession, error) {
	item, err := s.LookupSession(ctx, id)
	if err != nil {
		return EditSession{}, err
	}
	item.Version = version
	payload, err := json.Marshal(item)
	if err != nil {
		return EditSession{}, fmt.Errorf("marshal session: %w", err)
	}
	if err := s.client.Set(ctx, s.sessionKey(id), payload, s.ttl).Err(); err != nil {
		return EditSession{}, fmt.Errorf("touch session: %w", err)
	}
	return item, nil
}

// EndSession removes the session. Ending an unknown session is not an error.
func (s *RedisStore) EndSession(ctx context.Context, id string) error {
	item, err := s.LookupSession(ctx, id)
	if errors.Is(err, ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.sessionKey(id))
		pipe.SRem(ctx, s.documentSessionsKey(item.DocumentID), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	return nil
}

// DocumentSessions lists live sessions on documentID, pruning expired ids.
func (s *RedisStore) DocumentSessions(ctx context.Context, documentID string) ([]EditSession, error) {
	ids, err := s.client.SMembers(ctx, s.documentSessionsKey(documentID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list document sessions: %w", err)
	}
	items := make([]EditSession, 0, len(ids))
	for _, id := range ids {
		item, err := s.LookupSession(ctx, id)
		if errors.Is(err, ErrSessionNotFound) {
			_ = s.client.SRem(ctx, s.documentSessionsKey(documentID), id).Err()
			continue
		}
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func (s *RedisStore) SaveDraft(ctx context.Context, documentID, userID string, draft Draft) error {
	if draft.SavedAt.IsZero() {
		draft.SavedAt = s.now().UTC()
	}
	payload, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("marshal draft: %w", err)
	}
	if err := s.client.Set(ctx, s.draftKey(documentID, userID), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("save draft: %w", err)
	}
	return nil
}

func (s *RedisStore) LoadDraft(ctx context.Context, documentID, userID string) (Draft, error) {
	raw, err := s.client.Get(ctx, s.draftKey(documentID, userID)).Result()
	if errors.Is(err, redis.Nil) {
		return Draft{}, ErrDraftNotFound
	}
	if err != nil {
		return Draft{}, fmt.Errorf("load draft: %w", err)
	}
	var draft Draft
	if err := json.Unmarshal([]byte(raw), &draft); err != nil {
		return Draft{}, fmt.Errorf("unmarshal draft: %w", err)
	}
	return draft, nil
}

func (s *RedisStore) DiscardDraft(ctx context.Context, documentID, userID string) error {
	if err := s.client.Del(ctx, s.draftKey(documentID, userID)).Err(); err != nil {
		return fmt.Errorf("discard draft: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
