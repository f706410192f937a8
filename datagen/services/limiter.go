package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

var ErrTooManyRuns = errors.New("the maximum number of concurrent runs has been reached")

// RunLimiter bounds how many generation runs may execute at once. The redis
// implementation shares the count across replicas, the local one is for single
// process deployments and tests.
type RunLimiter interface {
	Acquire(ctx context.Context) error
	Release(ctx context.Context)
}

func NewRunLimiter(client *redis.Client, maxConcurrent int) RunLimiter {
	if client == nil {
		return &localRunLimiter{maxConcurrent: maxConcurrent}
	}
	return &redisRunLimiter{client: client, maxConcurrent: maxConcurrent, ttl: time.Hour}
}

type localRunLimiter struct {
	mu            sync.Mutex
	active        int
	maxConcurrent int
}

func (l *localRunLimiter) Acquire(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.active >= l.maxConcurrent {
		return ErrTooManyRuns
	}
	l.active++
	return nil
}

func (l *localRunLimiter) Release(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.active > 0 {
		l.active--
	}
}

type redisRunLimiter struct {
	client        *redis.Client
	maxConcurrent int
	ttl           time.Duration
}

const limiterKey = "datagen:active_runs"

// The increment and limit check must be atomic or two replicas could both
// claim the last slot, hence the scripts.
var acquireScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if current == false then
	current = 0
else
	current = tonumber(current)
end
if current >= tonumber(ARGV[1]) then
	return -1
end
local count = redis.call('INCR', KEYS[1])
redis.call('EXPIRE', KEYS[1], tonumber(ARGV[2]))
return count
`)

var releaseScript = redis.NewScript(`
local count = redis.call('DECR', KEYS[1])
if tonumber(count) <= 0 then
	redis.call('DEL', KEYS[1])
	return 0
end
redis.call('EXPIRE', KEYS[1], tonumber(ARGV[1]))
return count
`)

func (l *redisRunLimiter) Acquire(ctx context.Context) error {
	result, err := acquireScript.Run(ctx, l.client, []string{limiterKey}, l.maxConcurrent, int(l.ttl.Seconds())).Int64()
	if err != nil {
		return fmt.Errorf("error acquiring run slot: %w", err)
	}

	if result < 0 {
		return ErrTooManyRuns
	}

	slog.Info("acquired run slot", "active_runs", result, "max_concurrent", l.maxConcurrent)
	return nil
}

func (l *redisRunLimiter) Release(ctx context.Context) {
	result, err := releaseScript.Run(ctx, l.client, []string{limiterKey}, int(l.ttl.Seconds())).Int64()
	if err != nil {
		slog.Error("error releasing run slot", "error", err)
		return
	}
	slog.Info("released run slot", "active_runs", result)
}
