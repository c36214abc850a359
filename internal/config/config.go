package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

type Config struct {
	Env  string
	Port int
	DBURL string

	// DispatchHome is the <prefix> state directory from the persisted
	// state layout: etc/, lib/, logs/, tmp/ live under it.
	DispatchHome string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	ServiceToken string

	WorkerAgentPort        int
	WorkerAgentHealthAddr  string
	DispatchLoopInterval   time.Duration
	HealthMonitorInterval  time.Duration
	AgentCallTimeout       time.Duration
	DefaultMaxJobs         int
}

func Load() Config {
	env := getEnv("APP_ENV", "dev")
	port := getEnvInt("PORT", 8080)
	dbURL := buildDBURL()

	home := getEnv("DISPATCH_HOME", "./var")

	cfg := Config{
		Env:          env,
		Port:         port,
		DBURL:        dbURL,
		DispatchHome: home,

		RedisAddr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: redisPassword(home),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		ServiceToken: getEnv("DISPATCH_SERVICE_TOKEN", "dev-service-token"),

		WorkerAgentPort:       getEnvInt("WORKER_AGENT_PORT", 8500),
		WorkerAgentHealthAddr: getEnv("WORKER_AGENT_HEALTH_ADDR", ":8500"),
		DispatchLoopInterval:  getEnvDuration("DISPATCH_LOOP_INTERVAL", 5*time.Second),
		HealthMonitorInterval: getEnvDuration("HEALTH_MONITOR_INTERVAL", 30*time.Second),
		AgentCallTimeout:      getEnvDuration("AGENT_CALL_TIMEOUT", 30*time.Second),
		DefaultMaxJobs:        getEnvInt("DEFAULT_MAX_JOBS", 1),
	}

	return cfg
}

// JobsLogDir, WorkersLogDir, QueuesLogDir, SSHKeysDir, RedisLogPath and
// RedisPIDPath follow the persisted state layout.
func (c Config) JobsLogDir() string    { return filepath.Join(c.DispatchHome, "logs", "jobs") }
func (c Config) WorkersLogDir() string { return filepath.Join(c.DispatchHome, "logs", "workers") }
func (c Config) QueuesLogDir() string  { return filepath.Join(c.DispatchHome, "logs", "queues") }
func (c Config) SSHKeysDir() string    { return filepath.Join(c.DispatchHome, "etc", "ssh_keys") }
func (c Config) RedisPasswordPath() string {
	return filepath.Join(c.DispatchHome, "etc", ".redis_password")
}
func (c Config) RedisLogPath() string { return filepath.Join(c.DispatchHome, "logs", "redis.log") }
func (c Config) RedisPIDPath() string { return filepath.Join(c.DispatchHome, "tmp", "redis.pid") }

func redisPassword(home string) string {
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		return v
	}
	b, err := os.ReadFile(filepath.Join(home, "etc", ".redis_password"))
	if err != nil {
		return ""
	}
	return string(b)
}

func buildDBURL() string {
	host := getEnv("DB_HOST", "127.0.0.1")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "dispatch")
	pass := getEnv("DB_PASSWORD", "dispatch")
	name := getEnv("DB_NAME", "dispatch")
	ssl := getEnv("DB_SSLMODE", "disable")

	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + name + "?sslmode=" + ssl
}

func WithTimeout(duration time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), duration)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		num, err := strconv.Atoi(v)

		if err != nil {
			fmt.Println(err)
			return fallback
		}

		return num
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			fmt.Println(err)
			return fallback
		}
		return d
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fallback
		}
		return b
	}
	return fallback
}
