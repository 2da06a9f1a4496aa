package infra

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Vovarama1992/scribe/internal/models"
	"github.com/Vovarama1992/scribe/internal/ports"
	"github.com/redis/go-redis/v9"
)

const (
	redisJobPrefix     = "job:"
	redisProcessingKey = "job_processing"
)

// updateStatusScript is a compare-and-set on the status field. PROCESSING
// jobs are indexed by heartbeat in a sorted set; terminal jobs leave the
// set and lose their audio.
var updateStatusScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'status')
if not cur then return -1 end
if cur ~= ARGV[1] then return 0 end
redis.call('HSET', KEYS[1], 'status', ARGV[2], 'result', ARGV[3], 'error', ARGV[4], 'updated_at', ARGV[5])
if ARGV[2] == 'PROCESSING' then
	redis.call('ZADD', KEYS[2], ARGV[6], ARGV[7])
elseif ARGV[2] == 'COMPLETED' or ARGV[2] == 'FAILED' then
	redis.call('ZREM', KEYS[2], ARGV[7])
	redis.call('HDEL', KEYS[1], 'audio')
end
return 1
`)

var touchScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'status') ~= 'PROCESSING' then return 0 end
redis.call('HSET', KEYS[1], 'updated_at', ARGV[1])
redis.call('ZADD', KEYS[2], ARGV[2], ARGV[3])
return 1
`)

// RedisJobStore keeps each job in the hash job:{id} with the fields
// status, result, error, created_at, updated_at and audio.
type RedisJobStore struct {
	client *redis.Client
}

func NewRedisJobStore(client *redis.Client) *RedisJobStore {
	return &RedisJobStore{client: client}
}

func jobKey(id string) string { return redisJobPrefix + id }

func (r *RedisJobStore) Create(ctx context.Context, job *models.Job, audio []byte) error {
	err := r.client.HSet(ctx, jobKey(job.ID),
		"status", string(job.Status),
		"result", job.Result,
		"error", job.Error,
		"created_at", job.CreatedAt.Format(time.RFC3339Nano),
		"updated_at", job.UpdatedAt.Format(time.RFC3339Nano),
		"audio", audio,
	).Err()
	if err != nil {
		return fmt.Errorf("hset job: %w", err)
	}
	return nil
}

func (r *RedisJobStore) Get(ctx context.Context, id string) (*models.Job, error) {
	fields, err := r.client.HMGet(ctx, jobKey(id), "status", "result", "error", "created_at", "updated_at").Result()
	if err != nil {
		return nil, fmt.Errorf("hmget job: %w", err)
	}
	if fields[0] == nil {
		return nil, ports.ErrJobNotFound
	}

	str := func(v any) string {
		s, _ := v.(string)
		return s
	}
	job := &models.Job{
		ID:     id,
		Status: models.JobStatus(str(fields[0])),
		Result: str(fields[1]),
		Error:  str(fields[2]),
	}
	if job.CreatedAt, err = time.Parse(time.RFC3339Nano, str(fields[3])); err != nil {
		return nil, fmt.Errorf("job %s: parse created_at: %w", id, err)
	}
	if job.UpdatedAt, err = time.Parse(time.RFC3339Nano, str(fields[4])); err != nil {
		return nil, fmt.Errorf("job %s: parse updated_at: %w", id, err)
	}
	return job, nil
}

func (r *RedisJobStore) Audio(ctx context.Context, id string) ([]byte, error) {
	audio, err := r.client.HGet(ctx, jobKey(id), "audio").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ports.ErrJobNotFound
		}
		return nil, fmt.Errorf("hget job audio: %w", err)
	}
	return audio, nil
}

func (r *RedisJobStore) UpdateStatus(ctx context.Context, job *models.Job, from models.JobStatus) error {
	res, err := updateStatusScript.Run(ctx, r.client,
		[]string{jobKey(job.ID), redisProcessingKey},
		string(from),
		string(job.Status),
		job.Result,
		job.Error,
		job.UpdatedAt.Format(time.RFC3339Nano),
		strconv.FormatInt(job.UpdatedAt.UnixMilli(), 10),
		job.ID,
	).Int()
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	switch res {
	case 1:
		return nil
	case -1:
		return ports.ErrJobNotFound
	default:
		return ports.ErrStatusConflict
	}
}

func (r *RedisJobStore) Touch(ctx context.Context, id string, at time.Time) error {
	err := touchScript.Run(ctx, r.client,
		[]string{jobKey(id), redisProcessingKey},
		at.Format(time.RFC3339Nano),
		strconv.FormatInt(at.UnixMilli(), 10),
		id,
	).Err()
	if err != nil {
		return fmt.Errorf("touch job: %w", err)
	}
	return nil
}

func (r *RedisJobStore) ListStale(ctx context.Context, before time.Time) ([]*models.Job, error) {
	ids, err := r.client.ZRangeByScore(ctx, redisProcessingKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(before.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("list stale jobs: %w", err)
	}

	jobs := make([]*models.Job, 0, len(ids))
	for _, id := range ids {
		job, err := r.Get(ctx, id)
		if err != nil {
			if errors.Is(err, ports.ErrJobNotFound) {
				continue
			}
			return nil, err
		}
		if job.Status == models.JobProcessing {
			jobs = append(jobs, job)
		}
	}
	return jobs, nil
}
