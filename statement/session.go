package statement

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mmdatafocus/bakery_backend/utils"
	"github.com/redis/go-redis/v9"
)

var ErrSessionNotFound = errors.New("statement session not found or expired")

// Session is one in-progress statement import. It lives until export or discard.
type Session struct {
	ID         string         `json:"id"`
	FileName   string         `json:"fileName"`
	Sheets     []string       `json:"sheets"`
	Workbook   []byte         `json:"workbook"`
	Statement  *Statement     `json:"statement,omitempty"`
	Compressed bool           `json:"compressed"`
	Stats      *CompressStats `json:"stats,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
}

type SessionStore interface {
	Save(ctx context.Context, s *Session) error
	Load(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
}

type memoryEntry struct {
	session   *Session
	expiresAt time.Time
}

// MemorySessionStore keeps sessions in process. Used when no redis is configured.
type MemorySessionStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	sessions map[string]memoryEntry
}

func NewMemorySessionStore(ttl time.Duration) *MemorySessionStore {
	return &MemorySessionStore{ttl: ttl, now: time.Now, sessions: map[string]memoryEntry{}}
}

func (m *MemorySessionStore) Save(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = memoryEntry{session: s, expiresAt: m.now().Add(m.ttl)}
	return nil
}

func (m *MemorySessionStore) Load(_ context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if m.ttl > 0 && m.now().After(entry.expiresAt) {
		delete(m.sessions, id)
		return nil, ErrSessionNotFound
	}
	return entry.session, nil
}

func (m *MemorySessionStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

const redisSessionPrefix = "statement:session:"

// RedisSessionStore shares sessions between instances.
type RedisSessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisSessionStore(client *redis.Client, ttl time.Duration) *RedisSessionStore {
	return &RedisSessionStore{client: client, ttl: ttl}
}

func (r *RedisSessionStore) Save(ctx context.Context, s *Session) error {
	payload, err := utils.MarshalToJSON(s)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, redisSessionPrefix+s.ID, payload, r.ttl).Err()
}

func (r *RedisSessionStore) Load(ctx context.Context, id string) (*Session, error) {
	payload, err := r.client.Get(ctx, redisSessionPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	var s Session
	if err := utils.UnmarshalFromJSON(payload, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *RedisSessionStore) Delete(ctx context.Context, id string) error {
	return r.client.Del(ctx, redisSessionPrefix+id).Err()
}
