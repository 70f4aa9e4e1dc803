package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
)

const (
	redisKeyPrefix = "clipforge:job:"
	redisIndexKey  = "clipforge:jobs"
)

var _ Repository = (*RedisRepository)(nil)

// RedisRepository stores each job as a JSON string and keeps the set of
// known IDs in an index set.
type RedisRepository struct {
	client *redis.Client
}

// NewRedisRepository wraps an existing client.
func NewRedisRepository(client *redis.Client) *RedisRepository {
	return &RedisRepository{client: client}
}

func jobKey(id string) string {
	return redisKeyPrefix + id
}

// Save writes the job and indexes its ID in one transaction.
func (r *RedisRepository) Save(ctx context.Context, job *Job) error {
	data, err := json.Marshal(job.Clone())
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, jobKey(job.ID), data, 0)
		pipe.SAdd(ctx, redisIndexKey, job.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save job %s: %w", job.ID, err)
	}
	return nil
}

// FindByID loads one job.
func (r *RedisRepository) FindByID(ctx context.Context, id string) (*Job, error) {
	data, err := r.client.Get(ctx, jobKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load job %s: %w", id, err)
	}
	return decodeJob(data)
}

// List loads every indexed job. IDs whose value has disappeared are
// dropped from the index.
func (r *RedisRepository) List(ctx context.Context) ([]*Job, error) {
	ids, err := r.client.SMembers(ctx, redisIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list job ids: %w", err)
	}
	if len(ids) == 0 {
		return []*Job{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = jobKey(id)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load jobs: %w", err)
	}

	jobs := make([]*Job, 0, len(values))
	var stale []any
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		j, err := decodeJob([]byte(s))
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	if len(stale) > 0 {
		_ = r.client.SRem(ctx, redisIndexKey, stale...).Err()
	}
	sortNewestFirst(jobs)
	return jobs, nil
}

// Delete removes the job and its index entry.
func (r *RedisRepository) Delete(ctx context.Context, id string) error {
	var del *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, jobKey(id))
		pipe.SRem(ctx, redisIndexKey, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete job %s: %w", id, err)
	}
	if del.Val() == 0 {
		return ErrJobNotFound
	}
	return nil
}

func decodeJob(data []byte) (*Job, error) {
	var j Job
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}
	return &j, nil
}
