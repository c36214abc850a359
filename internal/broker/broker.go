// Package broker wraps the shared message broker's "logs" list: the worker
// agent lpushes base64(JSON) log lines onto it, the log ingestion service
// blocking-pops them off. Built on go-redis; this package is the module's
// only redis client.
package broker

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const LogsKey = "logs"

type Client struct {
	redisdb *redis.Client
}

type Config struct {
	Addr     string
	Password string
	DB       int
}

func New(cfg Config) *Client {
	redisdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  0, // BRPop blocks indefinitely per §4.4
		WriteTimeout: 2 * time.Second,
	})
	return &Client{redisdb: redisdb}
}

func (c *Client) Ping(ctx context.Context) error {
	return c.redisdb.Ping(ctx).Err()
}

func (c *Client) Close() error {
	return c.redisdb.Close()
}

func (c *Client) Raw() *redis.Client {
	return c.redisdb
}

// JobLogMessage is pushed by the worker agent for output belonging to a
// running execution.
type JobLogMessage struct {
	ExecutionID string `json:"execution_id"`
	Timestamp   string `json:"timestamp"`
	Message     string `json:"message"`
}

// WorkerLogMessage is pushed for the agent's own self-log lines.
type WorkerLogMessage struct {
	WorkerName string `json:"worker_name"`
	Timestamp  string `json:"timestamp"`
	Message    string `json:"message"`
}

// PushJobLog base64-encodes and lpushes a job log line.
func (c *Client) PushJobLog(ctx context.Context, msg JobLogMessage) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return c.redisdb.LPush(ctx, LogsKey, base64.StdEncoding.EncodeToString(raw)).Err()
}

// PushWorkerLog base64-encodes and lpushes a worker self-log line.
func (c *Client) PushWorkerLog(ctx context.Context, msg WorkerLogMessage) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return c.redisdb.LPush(ctx, LogsKey, base64.StdEncoding.EncodeToString(raw)).Err()
}

// RawMessage is an undecoded envelope: exactly one of ExecutionID or
// WorkerName is populated, matching the tagged-sum re-architecture called
// for in §9 (no dynamic typing on decode).
type RawMessage struct {
	ExecutionID string
	WorkerName  string
	Timestamp   string
	Message     string
}

// BlockingPop performs a blocking rpop on the logs list (FIFO: agents
// lpush, the consumer rpops) with no timeout, decodes the base64 envelope,
// and classifies it by which identity field is present.
func (c *Client) BlockingPop(ctx context.Context) (RawMessage, error) {
	result, err := c.redisdb.BRPop(ctx, 0, LogsKey).Result()
	if err != nil {
		return RawMessage{}, err
	}
	// BRPop returns [key, value]; we only ever pop from LogsKey.
	raw, err := base64.StdEncoding.DecodeString(result[1])
	if err != nil {
		return RawMessage{}, err
	}

	var envelope struct {
		ExecutionID string `json:"execution_id"`
		WorkerName  string `json:"worker_name"`
		Timestamp   string `json:"timestamp"`
		Message     string `json:"message"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return RawMessage{}, err
	}

	return RawMessage{
		ExecutionID: envelope.ExecutionID,
		WorkerName:  envelope.WorkerName,
		Timestamp:   envelope.Timestamp,
		Message:     envelope.Message,
	}, nil
}
