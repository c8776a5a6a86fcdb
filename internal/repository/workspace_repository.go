package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/edugen-studio/internal/models"
	appErrors "github.com/noah-isme/edugen-studio/pkg/errors"
)

// RedisWorkspaceRepository keeps the studio workspace under a single Redis key.
type RedisWorkspaceRepository struct {
	client *redis.Client
	key    string
	logger *zap.Logger
}

// NewRedisWorkspaceRepository constructs a Redis-backed workspace repository.
func NewRedisWorkspaceRepository(client *redis.Client, key string, logger *zap.Logger) *RedisWorkspaceRepository {
	if key == "" {
		key = "edugen:workspace"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisWorkspaceRepository{client: client, key: key, logger: logger}
}

// Load returns the stored workspace or appErrors.ErrCacheMiss.
func (r *RedisWorkspaceRepository) Load(ctx context.Context) (*models.Workspace, error) {
	if r.client == nil {
		return nil, appErrors.ErrCacheMiss
	}

	raw, err := r.client.Get(ctx, r.key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, appErrors.ErrCacheMiss
		}
		return nil, fmt.Errorf("redis get %s: %w", r.key, err)
	}

	var ws models.Workspace
	if err := json.Unmarshal(raw, &ws); err != nil {
		return nil, fmt.Errorf("unmarshal workspace %s: %w", r.key, err)
	}
	return &ws, nil
}

// Save stores the workspace, refreshing its TTL.
func (r *RedisWorkspaceRepository) Save(ctx context.Context, ws *models.Workspace, ttl time.Duration) error {
	if r.client == nil {
		return nil
	}

	payload, err := json.Marshal(ws)
	if err != nil {
		return fmt.Errorf("marshal workspace %s: %w", r.key, err)
	}

	if err := r.client.Set(ctx, r.key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", r.key, err)
	}
	return nil
}

// Delete removes the stored workspace.
func (r *RedisWorkspaceRepository) Delete(ctx context.Context) error {
	if r.client == nil {
		return nil
	}
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("redis delete %s: %w", r.key, err)
	}
	return nil
}

// Close releases the underlying Redis connection if present.
func (r *RedisWorkspaceRepository) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}

// MemoryWorkspaceRepository keeps the workspace in process. It stores the
// encoded form so callers never share state with the store.
type MemoryWorkspaceRepository struct {
	mu      sync.RWMutex
	payload []byte
	expires time.Time
	now     func() time.Time
}

// NewMemoryWorkspaceRepository constructs an empty in-process repository.
func NewMemoryWorkspaceRepository() *MemoryWorkspaceRepository {
	return &MemoryWorkspaceRepository{now: time.Now}
}

// Load returns the stored workspace or appErrors.ErrCacheMiss once expired.
func (r *MemoryWorkspaceRepository) Load(_ context.Context) (*models.Workspace, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.payload == nil || (!r.expires.IsZero() && r.now().After(r.expires)) {
		return nil, appErrors.ErrCacheMiss
	}
	var ws models.Workspace
	if err := json.Unmarshal(r.payload, &ws); err != nil {
		return nil, fmt.Errorf("unmarshal workspace: %w", err)
	}
	return &ws, nil
}

// Save replaces the stored workspace. A non-positive ttl never expires.
func (r *MemoryWorkspaceRepository) Save(_ context.Context, ws *models.Workspace, ttl time.Duration) error {
	payload, err := json.Marshal(ws)
	if err != nil {
		return fmt.Errorf("marshal workspace: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payload = payload
	r.expires = time.Time{}
	if ttl > 0 {
		r.expires = r.now().Add(ttl)
	}
	return nil
}

// Delete forgets the stored workspace.
func (r *MemoryWorkspaceRepository) Delete(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payload = nil
	r.expires = time.Time{}
	return nil
}
