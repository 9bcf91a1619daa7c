package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tasktrail/tasktrail/internal/config"
	"github.com/tasktrail/tasktrail/pkg/log"
	"github.com/tasktrail/tasktrail/pkg/store"
	"github.com/tasktrail/tasktrail/pkg/store/dynamo"
	pebblestore "github.com/tasktrail/tasktrail/pkg/store/pebble"
	"github.com/tasktrail/tasktrail/pkg/track"
)

// NewRoot constructs the root command. Every subcommand opens the backend
// named by config/env/flags on demand.
func NewRoot(logger log.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:   "tasktrail",
		Short: "Lease-based task status tracking",
		Long:  "tasktrail tracks many-task batch jobs in a conditional-write item store, with per-task leases, retry escalation and sharded status queries.",
	}
	root.PersistentFlags().String("config", "", "path to JSON config file")
	root.PersistentFlags().String("backend", "", "storage backend: pebble or dynamo")
	root.PersistentFlags().String("data-dir", "", "pebble data directory")
	root.PersistentFlags().String("table", "", "dynamo table name")
	root.PersistentFlags().String("use-case", "", "use case id")

	root.AddCommand(newInitCommand(logger))
	root.AddCommand(newCreateCommand(logger))
	root.AddCommand(newShowCommand(logger))
	root.AddCommand(newQueryCommand(logger))
	root.AddCommand(newUnfinishedCommand(logger))
	root.AddCommand(newCountCommand(logger))
	root.AddCommand(newPurgeCommand(logger))
	return root
}

// loadConfig resolves effective configuration: file, then env, then flags.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	config.FromEnv(&cfg)
	if v, _ := cmd.Flags().GetString("backend"); v != "" {
		cfg.Backend = v
	}
	if v, _ := cmd.Flags().GetString("data-dir"); v != "" {
		cfg.Pebble.DataDir = v
	}
	if v, _ := cmd.Flags().GetString("table"); v != "" {
		cfg.Dynamo.Table = v
	}
	if v, _ := cmd.Flags().GetString("use-case"); v != "" {
		cfg.Tracker.UseCaseID = v
	}
	return cfg, nil
}

// openTracker opens the configured backend and builds a tracker over it.
// The returned closer releases backend resources.
func openTracker(cmd *cobra.Command, logger log.Logger) (*track.Tracker, func(), error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}

	trackCfg, err := track.NewConfig(track.Params{
		UseCaseID:        cfg.Tracker.UseCaseID,
		PendingStatus:    cfg.Tracker.PendingStatus,
		InProgressStatus: cfg.Tracker.InProgressStatus,
		FailedStatus:     cfg.Tracker.FailedStatus,
		SucceededStatus:  cfg.Tracker.SucceededStatus,
		IgnoredStatus:    cfg.Tracker.IgnoredStatus,
		NPendingShard:    cfg.Tracker.NPendingShard,
		NInProgressShard: cfg.Tracker.NInProgressShard,
		NFailedShard:     cfg.Tracker.NFailedShard,
		NSucceededShard:  cfg.Tracker.NSucceededShard,
		NIgnoredShard:    cfg.Tracker.NIgnoredShard,
		MaxRetry:         cfg.Tracker.MaxRetry,
		LockExpire:       cfg.Tracker.LockExpire(),
	})
	if err != nil {
		return nil, nil, err
	}

	var (
		st     store.Store
		closer func()
	)
	switch cfg.Backend {
	case "", "pebble":
		dataDir := cfg.Pebble.DataDir
		if dataDir == "" {
			dataDir = config.DefaultDataDir()
		}
		ps, err := pebblestore.Open(pebblestore.Options{
			DataDir: dataDir,
			Fsync:   pebblestore.FsyncModeAlways,
			Logger:  logger,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("open pebble backend: %w", err)
		}
		st = ps
		closer = func() { _ = ps.Close() }
	case "dynamo":
		ds, err := dynamo.New(cmd.Context(), dynamo.Options{
			Table:    cfg.Dynamo.Table,
			Index:    cfg.Dynamo.Index,
			Region:   cfg.Dynamo.Region,
			Endpoint: cfg.Dynamo.Endpoint,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("open dynamo backend: %w", err)
		}
		st = ds
		closer = func() {}
	default:
		return nil, nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}

	return track.New(trackCfg, st, track.WithLogger(logger)), closer, nil
}

func printTask(task *track.Task) {
	out := map[string]any{
		"task_id":     task.TaskID(),
		"use_case_id": task.UseCaseID(),
		"status":      task.Status,
		"status_name": task.StatusName(),
		"shard":       task.ShardID(),
		"retry":       task.Retry,
		"lock":        task.Lock,
		"create_time": task.CreateTime,
		"update_time": task.UpdateTime,
		"data":        task.Data,
	}
	if task.Errors != nil && len(task.Errors.History) > 0 {
		out["errors"] = task.Errors.History
	}
	b, _ := json.MarshalIndent(out, "", "  ")
	fmt.Fprintln(os.Stdout, string(b))
}
