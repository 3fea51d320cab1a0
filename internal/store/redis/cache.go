package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/gosuda/boardsync/internal/realtime"
)

// BoardCache keeps the last published task list of each project so board
// reads do not hit Postgres between mutations.
type BoardCache struct {
	client *redis.Client
	ttl    time.Duration
}

func New(ctx context.Context, addr, password string, db int, ttl time.Duration) (*BoardCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis.New: ping: %w", err)
	}

	return NewWithClient(client, ttl), nil
}

// NewWithClient wraps an existing client. ttl <= 0 keeps entries until invalidated.
func NewWithClient(client *redis.Client, ttl time.Duration) *BoardCache {
	return &BoardCache{client: client, ttl: ttl}
}

func (c *BoardCache) Close() error {
	if err := c.client.Close(); err != nil {
		return fmt.Errorf("redis.BoardCache.Close: %w", err)
	}
	return nil
}

func (c *BoardCache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis.BoardCache.Ping: %w", err)
	}
	return nil
}

// GetBoard returns the cached board. ok is false on a miss.
func (c *BoardCache) GetBoard(ctx context.Context, tenantID, projectID uuid.UUID) ([]realtime.TaskSummary, bool, error) {
	data, err := c.client.Get(ctx, BoardKey(tenantID, projectID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis.BoardCache.GetBoard: %w", err)
	}

	var tasks []realtime.TaskSummary
	if err := json.Unmarshal(data, &tasks); err != nil {
		// Corrupt entries are treated as a miss and overwritten on the next set.
		return nil, false, nil //nolint:nilerr // miss
	}
	return tasks, true, nil
}

func (c *BoardCache) SetBoard(ctx context.Context, tenantID, projectID uuid.UUID, tasks []realtime.TaskSummary) error {
	if tasks == nil {
		tasks = []realtime.TaskSummary{}
	}
	data, err := json.Marshal(tasks)
	if err != nil {
		return fmt.Errorf("redis.BoardCache.SetBoard: %w", err)
	}
	if err := c.client.Set(ctx, BoardKey(tenantID, projectID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis.BoardCache.SetBoard: %w", err)
	}
	return nil
}

func (c *BoardCache) InvalidateBoard(ctx context.Context, tenantID, projectID uuid.UUID) error {
	if err := c.client.Del(ctx, BoardKey(tenantID, projectID)).Err(); err != nil {
		return fmt.Errorf("redis.BoardCache.InvalidateBoard: %w", err)
	}
	return nil
}

// BoardKey returns the Redis key for a project board.
func BoardKey(tenantID, projectID uuid.UUID) string {
	return "board:" + tenantID.String() + ":" + projectID.String()
}
