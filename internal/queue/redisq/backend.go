// Package redisq is the durable queue backend. Jobs are stored in Redis and
// survive restarts of the process: a job still marked active when Start runs
// was interrupted mid-handler and goes back to the waiting set. A crash
// between the pop and the active mark loses that one job. The recovery
// assumes a single server instance per prefix.
package redisq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/kiranshivaraju/sketchforge/pkg/models"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

const (
	mode      = "durable"
	moveBatch = 100
)

type Config struct {
	Prefix      string
	PollTimeout time.Duration
	Concurrency map[models.JobType]int
}

// Backend runs Concurrency[t] workers per job type, each blocking on the
// type's waiting set.
type Backend struct {
	client *redis.Client
	cfg    Config
	keys   keys
	logger *slog.Logger
	now    func() time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

func New(client *redis.Client, cfg Config, logger *slog.Logger) *Backend {
	if cfg.Prefix == "" {
		cfg.Prefix = "sketchforge"
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = time.Second
	}
	return &Backend{
		client: client,
		cfg:    cfg,
		keys:   keys{prefix: cfg.Prefix},
		logger: logger.With("component", "redisq"),
		now:    time.Now,
	}
}

func (b *Backend) Mode() string { return mode }

// Start requeues jobs left active by a previous process, then launches the
// workers and the delayed-job mover.
func (b *Backend) Start(ctx context.Context, dispatch models.DispatchFunc) error {
	for _, t := range models.AllJobTypes() {
		n, err := b.requeueActive(ctx, t)
		if err != nil {
			return fmt.Errorf("recover active %s jobs: %w", t, err)
		}
		if n > 0 {
			b.logger.Warn("requeued interrupted jobs", "job_type", t, "count", n)
		}
	}

	loopCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.done = make(chan struct{})

	g, gctx := errgroup.WithContext(loopCtx)
	for _, t := range models.AllJobTypes() {
		n := b.cfg.Concurrency[t]
		if n <= 0 {
			n = 1
		}
		for i := 0; i < n; i++ {
			t := t
			g.Go(func() error {
				b.work(gctx, t, dispatch)
				return nil
			})
		}
	}
	g.Go(func() error {
		b.moveLoop(gctx)
		return nil
	})

	go func() {
		defer close(b.done)
		_ = g.Wait()
	}()

	b.logger.Info("durable backend started", "prefix", b.cfg.Prefix)
	return nil
}

// Close stops the workers after their current job finishes. The Redis
// client is owned by the caller.
func (b *Backend) Close() error {
	if b.cancel != nil {
		b.cancel()
		<-b.done
	}
	return nil
}

// Enqueue persists job and places it on the waiting or delayed set.
func (b *Backend) Enqueue(ctx context.Context, job *models.Job) error {
	now := b.now()
	job.CreatedAt = now
	job.RunAt = now.Add(job.Options.Delay)
	if job.Options.Delay > 0 {
		job.Status = models.JobStateDelayed
	} else {
		job.Status = models.JobStateWaiting
	}

	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", job.ID, err)
	}

	pipe := b.client.TxPipeline()
	pipe.Set(ctx, b.keys.job(job.Type, job.ID), raw, 0)
	if job.Options.Delay > 0 {
		pipe.ZAdd(ctx, b.keys.delayed(job.Type), redis.Z{Score: float64(job.RunAt.UnixMilli()), Member: job.ID})
	} else {
		pipe.ZAdd(ctx, b.keys.waiting(job.Type), redis.Z{Score: waitingScore(job), Member: job.ID})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("enqueue job %s: %w", job.ID, err)
	}
	return nil
}

func (b *Backend) Stats(ctx context.Context, t models.JobType) (models.QueueStats, error) {
	pipe := b.client.Pipeline()
	waiting := pipe.ZCard(ctx, b.keys.waiting(t))
	delayed := pipe.ZCard(ctx, b.keys.delayed(t))
	active := pipe.SCard(ctx, b.keys.active(t))
	completed := pipe.LLen(ctx, b.keys.completed(t))
	failed := pipe.LLen(ctx, b.keys.failed(t))
	if _, err := pipe.Exec(ctx); err != nil {
		return models.QueueStats{}, fmt.Errorf("queue stats %s: %w", t, err)
	}
	return models.QueueStats{
		Type:      t,
		Waiting:   waiting.Val(),
		Delayed:   delayed.Val(),
		Active:    active.Val(),
		Completed: completed.Val(),
		Failed:    failed.Val(),
	}, nil
}

// Clear deletes every key of type t and returns the number of jobs removed.
func (b *Backend) Clear(ctx context.Context, t models.JobType) (int64, error) {
	var (
		cursor  uint64
		removed int64
	)
	match := b.keys.namespace(t) + "*"
	jobPrefix := b.keys.namespace(t) + "job:"
	for {
		batch, next, err := b.client.Scan(ctx, cursor, match, 200).Result()
		if err != nil {
			return removed, fmt.Errorf("scan %s: %w", t, err)
		}
		if len(batch) > 0 {
			if err := b.client.Del(ctx, batch...).Err(); err != nil {
				return removed, fmt.Errorf("delete %s keys: %w", t, err)
			}
			for _, k := range batch {
				if strings.HasPrefix(k, jobPrefix) {
					removed++
				}
			}
		}
		cursor = next
		if cursor == 0 {
			return removed, nil
		}
	}
}

func (b *Backend) work(ctx context.Context, t models.JobType, dispatch models.DispatchFunc) {
	for {
		if ctx.Err() != nil {
			return
		}
		popped, err := b.client.BZPopMin(ctx, b.cfg.PollTimeout, b.keys.waiting(t)).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			b.logger.Error("dequeue failed", "job_type", t, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(b.cfg.PollTimeout):
			}
			continue
		}

		id, _ := popped.Member.(string)
		if err := b.process(ctx, t, id, dispatch); err != nil {
			b.logger.Error("job bookkeeping failed", "job_type", t, "job_id", id, "error", err)
		}
	}
}

// process runs one attempt of job id and records the outcome. Handlers see a
// context that is not cancelled by shutdown.
func (b *Backend) process(ctx context.Context, t models.JobType, id string, dispatch models.DispatchFunc) error {
	ctx = context.WithoutCancel(ctx)
	jobKey := b.keys.job(t, id)

	job, err := b.load(ctx, jobKey)
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}

	job.Status = models.JobStateActive
	if err := b.client.SAdd(ctx, b.keys.active(t), id).Err(); err != nil {
		return fmt.Errorf("mark active: %w", err)
	}

	result, handled := dispatch(ctx, job)

	if err := b.client.SRem(ctx, b.keys.active(t), id).Err(); err != nil {
		return fmt.Errorf("unmark active: %w", err)
	}
	if !handled {
		return b.client.Del(ctx, jobKey).Err()
	}

	exists, err := b.client.Exists(ctx, jobKey).Result()
	if err != nil {
		return fmt.Errorf("check job: %w", err)
	}
	if exists == 0 {
		// Cleared while running.
		return nil
	}

	now := b.now()
	job.AttemptsMade++

	if result.Success {
		job.Status = models.JobStateCompleted
		job.FinishedAt = &now
		job.LastError = ""
		return b.finish(ctx, job, b.keys.completed(t), job.Options.RemoveOnComplete)
	}

	job.LastError = result.Error
	if job.AttemptsMade < job.Options.Attempts {
		delay := job.Options.BackoffDelay(job.AttemptsMade)
		job.Status = models.JobStateDelayed
		job.RunAt = now.Add(delay)
		raw, err := json.Marshal(job)
		if err != nil {
			return err
		}
		pipe := b.client.TxPipeline()
		pipe.Set(ctx, jobKey, raw, 0)
		pipe.ZAdd(ctx, b.keys.delayed(t), redis.Z{Score: float64(job.RunAt.UnixMilli()), Member: id})
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("schedule retry: %w", err)
		}
		b.logger.Warn("job retry scheduled",
			"job_id", id,
			"job_type", t,
			"attempt", job.AttemptsMade,
			"delay_ms", delay.Milliseconds())
		return nil
	}

	job.Status = models.JobStateFailed
	job.FinishedAt = &now
	b.logger.Error("job failed permanently",
		"job_id", id,
		"job_type", t,
		"attempts", job.AttemptsMade,
		"error", job.LastError)
	return b.finish(ctx, job, b.keys.failed(t), job.Options.RemoveOnFail)
}

// finish saves job, pushes it onto listKey and trims the list to keep
// entries, deleting the job records that fall off. keep <= 0 keeps all.
func (b *Backend) finish(ctx context.Context, job *models.Job, listKey string, keep int) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	pipe := b.client.TxPipeline()
	pipe.Set(ctx, b.keys.job(job.Type, job.ID), raw, 0)
	pipe.LPush(ctx, listKey, job.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record %s: %w", job.Status, err)
	}
	if keep <= 0 {
		return nil
	}

	stale, err := b.client.LRange(ctx, listKey, int64(keep), -1).Result()
	if err != nil {
		return fmt.Errorf("read %s: %w", listKey, err)
	}
	if len(stale) == 0 {
		return nil
	}
	pipe = b.client.TxPipeline()
	pipe.LTrim(ctx, listKey, 0, int64(keep-1))
	for _, id := range stale {
		pipe.Del(ctx, b.keys.job(job.Type, id))
	}
	_, err = pipe.Exec(ctx)
	return err
}

// requeueActive moves every id in the active set of t back to waiting.
// Ids whose job record is gone are dropped from the set.
func (b *Backend) requeueActive(ctx context.Context, t models.JobType) (int, error) {
	ids, err := b.client.SMembers(ctx, b.keys.active(t)).Result()
	if err != nil || len(ids) == 0 {
		return 0, err
	}

	requeued := 0
	pipe := b.client.TxPipeline()
	for _, id := range ids {
		pipe.SRem(ctx, b.keys.active(t), id)
		job, err := b.load(ctx, b.keys.job(t, id))
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return 0, err
		}
		job.Status = models.JobStateWaiting
		raw, err := json.Marshal(job)
		if err != nil {
			return 0, err
		}
		pipe.Set(ctx, b.keys.job(t, id), raw, 0)
		pipe.ZAdd(ctx, b.keys.waiting(t), redis.Z{Score: waitingScore(job), Member: id})
		requeued++
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return requeued, nil
}

func (b *Backend) load(ctx context.Context, key string) (*models.Job, error) {
	raw, err := b.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, err
	}
	var job models.Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return &job, nil
}

func (b *Backend) moveLoop(ctx context.Context) {
	ticker := time.NewTicker(b.cfg.PollTimeout)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, t := range models.AllJobTypes() {
				if err := b.moveDue(ctx, t); err != nil && ctx.Err() == nil {
					b.logger.Error("promote delayed jobs failed", "job_type", t, "error", err)
				}
			}
		}
	}
}

// moveDue promotes delayed jobs whose run time has passed to the waiting set.
func (b *Backend) moveDue(ctx context.Context, t models.JobType) error {
	ids, err := b.client.ZRangeByScore(ctx, b.keys.delayed(t), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(b.now().UnixMilli(), 10),
		Count: moveBatch,
	}).Result()
	if err != nil || len(ids) == 0 {
		return err
	}

	pipe := b.client.TxPipeline()
	for _, id := range ids {
		job, err := b.load(ctx, b.keys.job(t, id))
		if errors.Is(err, redis.Nil) {
			pipe.ZRem(ctx, b.keys.delayed(t), id)
			continue
		}
		if err != nil {
			return err
		}
		pipe.ZAdd(ctx, b.keys.waiting(t), redis.Z{Score: waitingScore(job), Member: id})
		pipe.ZRem(ctx, b.keys.delayed(t), id)
	}
	_, err = pipe.Exec(ctx)
	return err
}
