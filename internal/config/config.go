package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	Backend  string        `json:"backend"`
	LogLevel string        `json:"logLevel"`
	Pebble   PebbleConfig  `json:"pebble"`
	Dynamo   DynamoConfig  `json:"dynamo"`
	Tracker  TrackerConfig `json:"tracker"`
}

// PebbleConfig configures the embedded backend.
type PebbleConfig struct {
	DataDir string `json:"dataDir"`
}

// DynamoConfig configures the DynamoDB backend.
type DynamoConfig struct {
	Table    string `json:"table"`
	Index    string `json:"index"`
	Region   string `json:"region"`
	Endpoint string `json:"endpoint"`
}

// TrackerConfig captures one task type's tracking profile.
type TrackerConfig struct {
	UseCaseID        string `json:"useCaseId"`
	PendingStatus    int    `json:"pendingStatus"`
	InProgressStatus int    `json:"inProgressStatus"`
	FailedStatus     int    `json:"failedStatus"`
	SucceededStatus  int    `json:"succeededStatus"`
	IgnoredStatus    int    `json:"ignoredStatus"`
	NPendingShard    int    `json:"nPendingShard"`
	NInProgressShard int    `json:"nInProgressShard"`
	NFailedShard     int    `json:"nFailedShard"`
	NSucceededShard  int    `json:"nSucceededShard"`
	NIgnoredShard    int    `json:"nIgnoredShard"`
	MaxRetry         int    `json:"maxRetry"`
	LockExpireSec    int    `json:"lockExpireSec"`
}

// LockExpire returns the lease duration.
func (c TrackerConfig) LockExpire() time.Duration {
	return time.Duration(c.LockExpireSec) * time.Second
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		Backend:  "pebble",
		LogLevel: "info",
		Pebble: PebbleConfig{
			DataDir: "./data",
		},
		Dynamo: DynamoConfig{
			Table: "tasktrail",
		},
		Tracker: TrackerConfig{
			UseCaseID:        "default",
			PendingStatus:    0,
			InProgressStatus: 3,
			FailedStatus:     6,
			SucceededStatus:  9,
			IgnoredStatus:    10,
			NSucceededShard:  4,
			MaxRetry:         3,
			LockExpireSec:    300,
		},
	}
}

// Load reads JSON configuration from path over the defaults. An empty path
// returns defaults untouched.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	if err := json.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}
