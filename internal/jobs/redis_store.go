package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "job:"

// RedisStore keeps job records as JSON blobs in Redis. The orchestrator
// is single-process, so per-id read-modify-write is serialized with a
// local keyed mutex rather than optimistic WATCH transactions.
type RedisStore struct {
	client  *redis.Client
	ttl     time.Duration
	timeout time.Duration

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewRedisStore connects to Redis and verifies the connection. Records
// expire after ttl; zero means no expiry.
func NewRedisStore(addr, password string, db int, ttl time.Duration) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisStore{
		client:  client,
		ttl:     ttl,
		timeout: 5 * time.Second,
		locks:   make(map[string]*sync.Mutex),
	}, nil
}

func (s *RedisStore) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.timeout)
}

func (s *RedisStore) keyLock(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

func (s *RedisStore) dropLock(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.locks, id)
}

func (s *RedisStore) set(ctx context.Context, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	return s.client.Set(ctx, redisKeyPrefix+job.ID, data, s.ttl).Err()
}

func (s *RedisStore) Create(job *Job) error {
	ctx, cancel := s.ctx()
	defer cancel()
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	ok, err := s.client.SetNX(ctx, redisKeyPrefix+job.ID, data, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	if !ok {
		return ErrDuplicateID
	}
	return nil
}

func (s *RedisStore) Get(id string) (*Job, error) {
	ctx, cancel := s.ctx()
	defer cancel()
	return s.get(ctx, id)
}

func (s *RedisStore) get(ctx context.Context, id string) (*Job, error) {
	data, err := s.client.Get(ctx, redisKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("unmarshal job: %w", err)
	}
	return &job, nil
}

func (s *RedisStore) Update(id string, mutate func(*Job) error) (*Job, error) {
	lock := s.keyLock(id)
	lock.Lock()
	defer lock.Unlock()

	ctx, cancel := s.ctx()
	defer cancel()

	job, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := mutate(job); err != nil {
		return nil, err
	}
	job.UpdatedAt = time.Now().UTC()
	if err := s.set(ctx, job); err != nil {
		return nil, fmt.Errorf("update job: %w", err)
	}
	return job, nil
}

func (s *RedisStore) List() ([]*Job, error) {
	ctx, cancel := s.ctx()
	defer cancel()

	var out []*Job
	iter := s.client.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		job, err := s.get(ctx, iter.Val()[len(redisKeyPrefix):])
		if errors.Is(err, ErrNotFound) {
			continue // expired between scan and get
		}
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan jobs: %w", err)
	}
	return out, nil
}

func (s *RedisStore) Delete(id string) error {
	ctx, cancel := s.ctx()
	defer cancel()
	n, err := s.client.Del(ctx, redisKeyPrefix+id).Result()
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	s.dropLock(id)
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
