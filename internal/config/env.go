package config

import (
	"os"
	"strconv"
)

// FromEnv overlays TASKTRAIL_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	if v := os.Getenv("TASKTRAIL_BACKEND"); v != "" {
		cfg.Backend = v
	}
	if v := os.Getenv("TASKTRAIL_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("TASKTRAIL_PEBBLE_DATA_DIR"); v != "" {
		cfg.Pebble.DataDir = v
	}
	if v := os.Getenv("TASKTRAIL_DYNAMO_TABLE"); v != "" {
		cfg.Dynamo.Table = v
	}
	if v := os.Getenv("TASKTRAIL_DYNAMO_INDEX"); v != "" {
		cfg.Dynamo.Index = v
	}
	if v := os.Getenv("TASKTRAIL_DYNAMO_REGION"); v != "" {
		cfg.Dynamo.Region = v
	}
	if v := os.Getenv("TASKTRAIL_DYNAMO_ENDPOINT"); v != "" {
		cfg.Dynamo.Endpoint = v
	}
	if v := os.Getenv("TASKTRAIL_USE_CASE_ID"); v != "" {
		cfg.Tracker.UseCaseID = v
	}
	if v := os.Getenv("TASKTRAIL_MAX_RETRY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Tracker.MaxRetry = n
		}
	}
	if v := os.Getenv("TASKTRAIL_LOCK_EXPIRE_SEC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Tracker.LockExpireSec = n
		}
	}
	if v := os.Getenv("TASKTRAIL_N_SUCCEEDED_SHARD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Tracker.NSucceededShard = n
		}
	}
}
