package controlagent

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/a2aeval/evaluator/internal/llm"
)

// HistoryStore persists one conversation's turn history, keyed by context id.
// The in-memory implementation is always available; a Redis-backed
// implementation is used when configured, matching the Option toggle
// documented for agent session history.
type HistoryStore interface {
	Load(ctx context.Context, contextID string) ([]llm.Message, bool, error)
	Save(ctx context.Context, contextID string, history []llm.Message) error
}

// memoryHistoryStore keeps every context's history in a process-local map.
type memoryHistoryStore struct {
	mu   sync.RWMutex
	data map[string][]llm.Message
}

// NewMemoryHistoryStore returns a HistoryStore backed by an in-process map.
func NewMemoryHistoryStore() HistoryStore {
	return &memoryHistoryStore{data: make(map[string][]llm.Message)}
}

func (s *memoryHistoryStore) Load(_ context.Context, contextID string) ([]llm.Message, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.data[contextID]
	return h, ok, nil
}

func (s *memoryHistoryStore) Save(_ context.Context, contextID string, history []llm.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[contextID] = history
	return nil
}

// redisHistoryStore persists history as JSON under a key prefix, so a
// restarted evaluator process resumes a caller's conversation instead of
// losing it.
type redisHistoryStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisHistoryStore builds a HistoryStore backed by client. ttl, when
// positive, expires idle conversations; zero keeps entries indefinitely.
func NewRedisHistoryStore(client *redis.Client, ttl time.Duration) HistoryStore {
	return &redisHistoryStore{client: client, ttl: ttl}
}

func (s *redisHistoryStore) key(contextID string) string {
	return "a2aeval:session:" + contextID
}

func (s *redisHistoryStore) Load(ctx context.Context, contextID string) ([]llm.Message, bool, error) {
	raw, err := s.client.Get(ctx, s.key(contextID)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var history []llm.Message
	if err := json.Unmarshal(raw, &history); err != nil {
		return nil, false, err
	}
	return history, true, nil
}

func (s *redisHistoryStore) Save(ctx context.Context, contextID string, history []llm.Message) error {
	raw, err := json.Marshal(history)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(contextID), raw, s.ttl).Err()
}
