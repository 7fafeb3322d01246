package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	tasksScheduledKey = "tasks:%s:scheduled"
	tasksInflightKey  = "tasks:%s:inflight"
	tasksFailedKey    = "tasks:%s:failed"
)

// claimTaskScript moves the earliest due task into the in-flight set with a
// lease deadline, atomically, so that a task is held by one consumer at a
// time.
var claimTaskScript = redis.NewScript(`
local items = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, 1)
if #items == 0 then
	return false
end
redis.call('ZREM', KEYS[1], items[1])
redis.call('ZADD', KEYS[2], ARGV[2], items[1])
return items[1]
`)

// requeueTasksScript returns tasks whose lease expired to the scheduled set.
var requeueTasksScript = redis.NewScript(`
local items = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
for _, item in ipairs(items) do
	redis.call('ZREM', KEYS[1], item)
	redis.call('ZADD', KEYS[2], ARGV[1], item)
end
return #items
`)

func buildScheduledKey(kind string) string {
	return fmt.Sprintf(tasksScheduledKey, kind)
}

func buildInflightKey(kind string) string {
	return fmt.Sprintf(tasksInflightKey, kind)
}

func buildFailedKey(kind string) string {
	return fmt.Sprintf(tasksFailedKey, kind)
}

func unixMilli(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

type buriedTask struct {
	Task     json.RawMessage `json:"task"`
	Reason   string          `json:"reason"`
	BuriedAt int64           `json:"buried_at"`
}

type TaskStorage struct {
	client *RedisClient
}

func NewTaskStorage(client *RedisClient) *TaskStorage {
	return &TaskStorage{client: client}
}

func (t *TaskStorage) AddTask(ctx context.Context, kind string, data []byte, due time.Time) error {
	tx := t.client.performTx(ctx)

	return tx.
		addInZSet(ctx, buildScheduledKey(kind), data, float64(due.UnixMilli())).
		execTx(ctx)
}

// ClaimDueTask returns the next task due at now and leases it until
// leaseUntil. ok is false when nothing is due.
func (t *TaskStorage) ClaimDueTask(ctx context.Context, kind string, now, leaseUntil time.Time) (data string, ok bool, err error) {
	data, err = claimTaskScript.Run(ctx, t.client.cli,
		[]string{buildScheduledKey(kind), buildInflightKey(kind)},
		unixMilli(now), unixMilli(leaseUntil)).Text()

	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}

	if err != nil {
		return "", false, err
	}

	return data, true, nil
}

func (t *TaskStorage) AckTask(ctx context.Context, kind string, data string) error {
	_, err := t.client.cli.ZRem(ctx, buildInflightKey(kind), data).Result()
	return err
}

// RequeueExpired makes tasks whose lease ended before now due again and
// reports how many were returned.
func (t *TaskStorage) RequeueExpired(ctx context.Context, kind string, now time.Time) (int64, error) {
	return requeueTasksScript.Run(ctx, t.client.cli,
		[]string{buildInflightKey(kind), buildScheduledKey(kind)},
		unixMilli(now)).Int64()
}

func (t *TaskStorage) BuryTask(ctx context.Context, kind string, data string, reason string, at time.Time) error {
	record, err := json.Marshal(buriedTask{
		Task:     json.RawMessage(data),
		Reason:   reason,
		BuriedAt: at.UnixMilli(),
	})

	if err != nil {
		return err
	}

	tx := t.client.performTx(ctx)

	return tx.
		removeFromZSet(ctx, buildInflightKey(kind), data).
		pushToList(ctx, buildFailedKey(kind), record).
		execTx(ctx)
}

func (t *TaskStorage) GetBuriedTasks(ctx context.Context, kind string) ([]string, error) {
	values, err := t.client.getAllFromList(ctx, buildFailedKey(kind))

	if err != nil {
		return nil, err
	}

	tasks := make([]string, 0, len(values))

	for _, value := range values {
		var record buriedTask

		if err = json.Unmarshal([]byte(value), &record); err != nil {
			return nil, err
		}

		tasks = append(tasks, string(record.Task))
	}

	return tasks, nil
}

func (t *TaskStorage) CountScheduled(ctx context.Context, kind string) (int64, error) {
	return t.client.countZSet(ctx, buildScheduledKey(kind))
}
