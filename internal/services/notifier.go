package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/scenedex-backend/internal/logger"
	"github.com/yungbote/scenedex-backend/internal/types"
)

const (
	JobEventCreated  = "job.created"
	JobEventProgress = "job.progress"
	JobEventFailed   = "job.failed"
	JobEventDone     = "job.done"
)

type JobEvent struct {
	Channel string         `json:"channel"`
	Event   string         `json:"event"`
	Data    map[string]any `json:"data"`
}

// JobNotifier fans job lifecycle events out to interested listeners. The
// Redis implementation publishes to a pub/sub channel keyed per owner so a
// frontend can stream progress.
type JobNotifier interface {
	JobCreated(ownerID uuid.UUID, job *types.JobRun)
	JobProgress(ownerID uuid.UUID, job *types.JobRun, stage string, progress int, message string)
	JobFailed(ownerID uuid.UUID, job *types.JobRun, stage string, errorMessage string)
	JobDone(ownerID uuid.UUID, job *types.JobRun)
	Close() error
}

type redisJobNotifier struct {
	log     *logger.Logger
	rdb     *goredis.Client
	channel string
}

func NewRedisJobNotifier(log *logger.Logger) (JobNotifier, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	ch := strings.TrimSpace(os.Getenv("REDIS_CHANNEL"))
	if ch == "" {
		ch = "jobs"
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &redisJobNotifier{
		log:     log.With("service", "RedisJobNotifier"),
		rdb:     rdb,
		channel: ch,
	}, nil
}

func (n *redisJobNotifier) publish(event string, ownerID uuid.UUID, data map[string]any) {
	msg := JobEvent{
		Channel: ownerID.String(),
		Event:   event,
		Data:    data,
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		n.log.Warn("Failed to marshal job event", "event", event, "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := n.rdb.Publish(ctx, n.channel, raw).Err(); err != nil {
		n.log.Warn("Failed to publish job event", "event", event, "error", err)
	}
}

func (n *redisJobNotifier) JobCreated(ownerID uuid.UUID, job *types.JobRun) {
	n.publish(JobEventCreated, ownerID, map[string]any{"job": job})
}

func (n *redisJobNotifier) JobProgress(ownerID uuid.UUID, job *types.JobRun, stage string, progress int, message string) {
	n.publish(JobEventProgress, ownerID, map[string]any{
		"job_id":   job.ID,
		"job_type": job.JobType,
		"stage":    stage,
		"progress": progress,
		"message":  message,
	})
}

func (n *redisJobNotifier) JobFailed(ownerID uuid.UUID, job *types.JobRun, stage string, errorMessage string) {
	n.publish(JobEventFailed, ownerID, map[string]any{
		"job_id":   job.ID,
		"job_type": job.JobType,
		"stage":    stage,
		"error":    errorMessage,
	})
}

func (n *redisJobNotifier) JobDone(ownerID uuid.UUID, job *types.JobRun) {
	n.publish(JobEventDone, ownerID, map[string]any{
		"job_id":   job.ID,
		"job_type": job.JobType,
	})
}

func (n *redisJobNotifier) Close() error {
	if n == nil || n.rdb == nil {
		return nil
	}
	return n.rdb.Close()
}

// NoopJobNotifier is for tests and deployments without Redis.
type NoopJobNotifier struct{}

func (NoopJobNotifier) JobCreated(uuid.UUID, *types.JobRun)                           {}
func (NoopJobNotifier) JobProgress(uuid.UUID, *types.JobRun, string, int, string)     {}
func (NoopJobNotifier) JobFailed(ownerID uuid.UUID, job *types.JobRun, s, e string)   {}
func (NoopJobNotifier) JobDone(uuid.UUID, *types.JobRun)                              {}
func (NoopJobNotifier) Close() error                                                  { return nil }
