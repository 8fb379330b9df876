// pkg/queue/queue.go
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// TaskType 定义任务类型
const (
	// TaskTypeFilingIngest hands a filing reference to the extraction pipeline.
	TaskTypeFilingIngest = "filing:ingest"
	// TaskTypeFilingStatus is a pipeline result: move a filing along its lifecycle.
	TaskTypeFilingStatus = "filing:status"
	// TaskTypeQuickReadAttach is a pipeline result: attach a stored quick-read document.
	TaskTypeQuickReadAttach = "quickread:attach"
)

// Priorities map onto the asynq queues below.
const (
	PriorityCritical = 1
	PriorityDefault  = 2
	PriorityLow      = 3
)

// Queues is the asynq queue weighting shared by producers and workers.
var Queues = map[string]int{
	"critical": 6,
	"default":  3,
	"low":      1,
}

// Queue 接口定义
type Queue interface {
	Enqueue(ctx context.Context, task *Task) error
	Ping(ctx context.Context) error
	Close() error
}

// Task 定义任务结构
type Task struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	Priority  int               `json:"priority"`
	Payload   json.RawMessage   `json:"payload"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}

// IngestPayload is the body of a filing:ingest task. Accession may be empty
// when only a source reference is known.
type IngestPayload struct {
	RequestID string `json:"request_id"`
	Accession string `json:"accession,omitempty"`
	SourceURL string `json:"sec_url,omitempty"`
	UploadID  string `json:"upload_id,omitempty"`
	CIK       string `json:"cik,omitempty"`
}

// StatusPayload is the body of a filing:status task. An empty From skips the check.
type StatusPayload struct {
	Accession string `json:"accession"`
	From      string `json:"from,omitempty"`
	To        string `json:"to"`
}

// AttachPayload is the body of a quickread:attach task.
type AttachPayload struct {
	Accession string `json:"accession"`
	ObjectKey string `json:"object_key"`
}

// NewTask builds a task with a JSON payload. The id doubles as the asynq task id.
func NewTask(taskType, id string, priority int, payload any) (*Task, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return &Task{
		ID:        id,
		Type:      taskType,
		Priority:  priority,
		Payload:   raw,
		Metadata:  map[string]string{},
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Decode unmarshals the task payload into v.
func (t *Task) Decode(v any) error {
	if len(t.Payload) == 0 {
		return errors.New("task payload is empty")
	}
	if err := json.Unmarshal(t.Payload, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s payload: %w", t.Type, err)
	}
	return nil
}

// ParseTask decodes the envelope carried by an asynq task.
func ParseTask(t *asynq.Task) (*Task, error) {
	var task Task
	if err := json.Unmarshal(t.Payload(), &task); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task: %w", err)
	}
	if task.Type == "" {
		task.Type = t.Type()
	}
	return &task, nil
}

// AsynqQueue 实现
type AsynqQueue struct {
	client *asynq.Client
	redis  *redis.Client
	cfg    QueueConfig
}

// QueueConfig 定义队列配置
type QueueConfig struct {
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	MaxRetries     int
	ProcessTimeout time.Duration
	// Retention keeps completed task ids around so a repeated hand-off is dropped.
	Retention time.Duration
}

// DefaultQueueConfig fills the tuning knobs for a Redis address.
func DefaultQueueConfig(addr, password string, db int) *QueueConfig {
	return &QueueConfig{
		RedisAddr:      addr,
		RedisPassword:  password,
		RedisDB:        db,
		MaxRetries:     3,
		ProcessTimeout: 30 * time.Minute,
		Retention:      24 * time.Hour,
	}
}

// NewAsynqQueue 创建新的队列实例
func NewAsynqQueue(cfg *QueueConfig) (*AsynqQueue, error) {
	if cfg == nil || cfg.RedisAddr == "" {
		return nil, errors.New("queue: redis address is required")
	}

	// 创建 Redis 客户端
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	// 创建客户端
	client := asynq.NewClient(cfg.RedisOpt())

	return &AsynqQueue{
		client: client,
		redis:  redisClient,
		cfg:    *cfg,
	}, nil
}

// RedisOpt returns the connection options for asynq servers on the same Redis.
func (c *QueueConfig) RedisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     c.RedisAddr,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	}
}

// Enqueue 将任务加入队列. A task whose id is already queued or retained is
// treated as delivered.
func (q *AsynqQueue) Enqueue(ctx context.Context, task *Task) error {
	// 序列化整个任务
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	// 设置任务选项
	opts := []asynq.Option{
		asynq.MaxRetry(q.cfg.MaxRetries),
		asynq.Timeout(q.cfg.ProcessTimeout),
		asynq.Queue(queueName(task.Priority)),
	}
	if task.ID != "" {
		opts = append(opts, asynq.TaskID(task.ID))
	}
	if q.cfg.Retention > 0 {
		opts = append(opts, asynq.Retention(q.cfg.Retention))
	}

	// 创建并入队任务
	t := asynq.NewTask(task.Type, payload, opts...)
	info, err := q.client.EnqueueContext(ctx, t)
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	// 记录任务ID
	task.ID = info.ID

	return nil
}

func (q *AsynqQueue) Ping(ctx context.Context) error {
	return q.redis.Ping(ctx).Err()
}

func (q *AsynqQueue) Close() error {
	if err := q.client.Close(); err != nil {
		return err
	}
	return q.redis.Close()
}

func queueName(priority int) string {
	switch priority {
	case PriorityCritical:
		return "critical"
	case PriorityDefault:
		return "default"
	default:
		return "low"
	}
}

// NoopQueue drops every task. Used when the hand-off is disabled and the
// pipeline polls the catalog for new filings instead.
type NoopQueue struct{}

func (NoopQueue) Enqueue(context.Context, *Task) error { return nil }
func (NoopQueue) Ping(context.Context) error           { return nil }
func (NoopQueue) Close() error                         { return nil }
