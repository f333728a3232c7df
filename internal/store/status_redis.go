package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Session states.
const (
	StateOpen   = "open"
	StateClosed = "closed"
)

// Status is the externally visible progress of a document session.
type Status struct {
	State          string         `json:"state"`
	Document       string         `json:"document"`
	Pages          int            `json:"pages"`
	Figures        int            `json:"figures"`
	PagesProcessed int            `json:"pages_processed"`
	LastAction     string         `json:"last_action"`
	Message        string         `json:"message,omitempty"`
	Updated        time.Time      `json:"updated"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// StatusStore persists session status.
type StatusStore interface {
	Set(ctx context.Context, sessionID string, st Status) error
	Get(ctx context.Context, sessionID string) (Status, bool, error)
	Delete(ctx context.Context, sessionID string) error
	Ping(ctx context.Context) error
	Close() error
}

// RedisStatus keeps one hash per session, expiring after ttl.
type RedisStatus struct {
	client *redis.Client
	keyNS  string
	ttl    time.Duration
}

// NewRedisStatus connects to redisURL. A zero ttl keeps keys forever.
func NewRedisStatus(redisURL, keyNS string, ttl time.Duration) (*RedisStatus, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	c := redis.NewClient(opt)
	if err := c.Ping(context.Background()).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	if keyNS == "" {
		keyNS = "session"
	}
	return &RedisStatus{client: c, keyNS: keyNS, ttl: ttl}, nil
}

func (s *RedisStatus) key(id string) string { return fmt.Sprintf("%s:%s:status", s.keyNS, id) }

func (s *RedisStatus) Set(ctx context.Context, id string, st Status) error {
	k := s.key(id)
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, k)
	pipe.HSet(ctx, k, toHash(st))
	if s.ttl > 0 {
		pipe.Expire(ctx, k, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("set status %s: %w", id, err)
	}
	return nil
}

func (s *RedisStatus) Get(ctx context.Context, id string) (Status, bool, error) {
	res, err := s.client.HGetAll(ctx, s.key(id)).Result()
	if err != nil {
		return Status{}, false, fmt.Errorf("get status %s: %w", id, err)
	}
	if len(res) == 0 {
		return Status{}, false, nil
	}
	return fromHash(res), true, nil
}

func (s *RedisStatus) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, s.key(id)).Err()
}

func (s *RedisStatus) Ping(ctx context.Context) error { return s.client.Ping(ctx).Err() }

func (s *RedisStatus) Close() error { return s.client.Close() }

func toHash(st Status) map[string]interface{} {
	m := map[string]interface{}{
		"state":           st.State,
		"document":        st.Document,
		"pages":           st.Pages,
		"figures":         st.Figures,
		"pages_processed": st.PagesProcessed,
		"last_action":     st.LastAction,
		"message":         st.Message,
		"updated":         st.Updated.Format(time.RFC3339Nano),
	}
	if st.Metadata != nil {
		b, _ := json.Marshal(st.Metadata)
		m["metadata"] = string(b)
	}
	return m
}

func fromHash(res map[string]string) Status {
	st := Status{
		State:      res["state"],
		Document:   res["document"],
		LastAction: res["last_action"],
		Message:    res["message"],
	}
	// malformed numbers read as 0
	st.Pages, _ = strconv.Atoi(res["pages"])
	st.Figures, _ = strconv.Atoi(res["figures"])
	st.PagesProcessed, _ = strconv.Atoi(res["pages_processed"])
	if t, err := time.Parse(time.RFC3339Nano, res["updated"]); err == nil {
		st.Updated = t
	}
	if v := res["metadata"]; v != "" {
		_ = json.Unmarshal([]byte(v), &st.Metadata)
	}
	return st
}

// MemoryStatus is the in-process StatusStore used when Redis is not configured.
type MemoryStatus struct {
	mu sync.RWMutex
	m  map[string]Status
}

func NewMemoryStatus() *MemoryStatus { return &MemoryStatus{m: make(map[string]Status)} }

func (s *MemoryStatus) Set(_ context.Context, id string, st Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[id] = st
	return nil
}

func (s *MemoryStatus) Get(_ context.Context, id string) (Status, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.m[id]
	return st, ok, nil
}

func (s *MemoryStatus) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, id)
	return nil
}

func (s *MemoryStatus) Ping(context.Context) error { return nil }
func (s *MemoryStatus) Close() error              { return nil }
