package assignment

import (
	"context"
	"sync"

	agentsrepo "leaddesk_backend/internal/agents/repository"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Counter hands out consecutive turn numbers starting at zero.
type Counter interface {
	Next(ctx context.Context) (uint64, error)
	Reset(ctx context.Context) error
}

// LocalCounter keeps the turn in process memory. A restart starts over at zero.
type LocalCounter struct {
	mu sync.Mutex
	n  uint64
}

func NewLocalCounter() *LocalCounter {
	return &LocalCounter{}
}

func (c *LocalCounter) Next(_ context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.n
	c.n++
	return n, nil
}

func (c *LocalCounter) Reset(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n = 0
	return nil
}

// RedisCounter shares one rotation between API replicas through INCR.
type RedisCounter struct {
	client redis.Cmdable
	key    string
}

func NewRedisCounter(client redis.Cmdable, key string) *RedisCounter {
	return &RedisCounter{client: client, key: key}
}

func (c *RedisCounter) Next(ctx context.Context) (uint64, error) {
	n, err := c.client.Incr(ctx, c.key).Result()
	if err != nil {
		return 0, err
	}
	return uint64(n - 1), nil
}

func (c *RedisCounter) Reset(ctx context.Context) error {
	return c.client.Del(ctx, c.key).Err()
}

// AgentLister returns the agents currently eligible for new leads, in a
// stable order.
type AgentLister interface {
	ListAssignable(ctx context.Context) ([]agentsrepo.Agent, error)
}

// Cursor rotates over the assignable agents for the single-lead path. It does
// not consult phone ownership.
type Cursor struct {
	mu      sync.Mutex
	agents  AgentLister
	counter Counter
}

func NewCursor(agents AgentLister, counter Counter) *Cursor {
	if counter == nil {
		counter = NewLocalCounter()
	}
	return &Cursor{agents: agents, counter: counter}
}

// Next returns the agent whose turn it is and advances the rotation. The
// agent list is re-read on every call; with no assignable agents it returns
// false and the turn is not consumed.
func (c *Cursor) Next(ctx context.Context) (uuid.UUID, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	agents, err := c.agents.ListAssignable(ctx)
	if err != nil {
		return uuid.Nil, false, err
	}
	if len(agents) == 0 {
		return uuid.Nil, false, nil
	}

	turn, err := c.counter.Next(ctx)
	if err != nil {
		return uuid.Nil, false, err
	}
	return agents[turn%uint64(len(agents))].ID, true, nil
}

// Reset starts the rotation over at the first agent.
func (c *Cursor) Reset(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counter.Reset(ctx)
}
