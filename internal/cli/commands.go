package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tasktrail/tasktrail/pkg/log"
	"github.com/tasktrail/tasktrail/pkg/track"
)

func newInitCommand(logger log.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Prepare the configured backend",
		Long:  "For the pebble backend, creates the data directory. For dynamo, prints the expected table and index schema; table creation is left to infrastructure tooling.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Backend == "dynamo" {
				index := cfg.Dynamo.Index
				if index == "" {
					index = "status_and_update_time-index"
				}
				fmt.Printf("table %q: partition key `key` (S)\n", cfg.Dynamo.Table)
				fmt.Printf("GSI %q: partition key `value` (S), sort key `update_time` (N), include projection: create_time\n", index)
				return nil
			}
			// opening the store creates the data directory
			_, closer, err := openTracker(cmd, logger)
			if err != nil {
				return err
			}
			closer()
			fmt.Println("pebble backend initialized")
			return nil
		},
	}
}

func newCreateCommand(logger log.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create <task-id>",
		Short: "Create a pending task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tracker, closer, err := openTracker(cmd, logger)
			if err != nil {
				return err
			}
			defer closer()

			var data map[string]any
			if raw, _ := cmd.Flags().GetString("data"); raw != "" {
				if err := json.Unmarshal([]byte(raw), &data); err != nil {
					return fmt.Errorf("parse --data: %w", err)
				}
			}
			task, err := tracker.MakeAndSave(cmd.Context(), args[0], data)
			if err != nil {
				return err
			}
			printTask(task)
			return nil
		},
	}
	cmd.Flags().String("data", "", "task data payload as JSON")
	return cmd
}

func newShowCommand(logger log.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show one task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tracker, closer, err := openTracker(cmd, logger)
			if err != nil {
				return err
			}
			defer closer()

			task, err := tracker.GetOneOrNone(cmd.Context(), args[0],
				track.WithConsistentRead())
			if err != nil {
				return err
			}
			if task == nil {
				return fmt.Errorf("task %q not found", args[0])
			}
			printTask(task)
			return nil
		},
	}
}

func queryFlags(cmd *cobra.Command) {
	cmd.Flags().Int("limit", 10, "items per shard")
	cmd.Flags().Bool("newest", false, "newest first within each shard")
	cmd.Flags().Bool("refresh", false, "re-read each item for full attributes")
	cmd.Flags().String("filter", "", "CEL expression over task fields")
}

func runQuery(cmd *cobra.Command, tracker *track.Tracker, statuses []int) error {
	limit, _ := cmd.Flags().GetInt("limit")
	newest, _ := cmd.Flags().GetBool("newest")
	refresh, _ := cmd.Flags().GetBool("refresh")
	filterExpr, _ := cmd.Flags().GetString("filter")

	filter, err := newTaskFilter(filterExpr)
	if err != nil {
		return fmt.Errorf("compile --filter: %w", err)
	}

	opts := []track.QueryOption{track.WithLimit(limit)}
	if newest {
		opts = append(opts, track.WithNewestFirst())
	}
	// a CEL filter reads fields the index projection omits
	if refresh || filter.enabled {
		opts = append(opts, track.WithAutoRefresh())
	}

	it, err := tracker.QueryByStatus(statuses, opts...)
	if err != nil {
		return err
	}
	n := 0
	for it.Next(cmd.Context()) {
		task := it.Task()
		if !filter.Eval(task) {
			continue
		}
		printTask(task)
		n++
	}
	if err := it.Err(); err != nil {
		return err
	}
	fmt.Printf("%d task(s)\n", n)
	return nil
}

func newQueryCommand(logger log.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query <status-name>...",
		Short: "List tasks by status",
		Long:  "List tasks in the given statuses (pending, in_progress, failed, succeeded, ignored), fanning out across each status's shards.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tracker, closer, err := openTracker(cmd, logger)
			if err != nil {
				return err
			}
			defer closer()

			var statuses []int
			for _, name := range args {
				code, ok := tracker.Config().StatusCode(name)
				if !ok {
					return fmt.Errorf("unknown status %q", name)
				}
				statuses = append(statuses, code)
			}
			return runQuery(cmd, tracker, statuses)
		},
	}
	queryFlags(cmd)
	return cmd
}

func newUnfinishedCommand(logger log.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unfinished",
		Short: "List tasks still awaiting a successful run",
		RunE: func(cmd *cobra.Command, args []string) error {
			tracker, closer, err := openTracker(cmd, logger)
			if err != nil {
				return err
			}
			defer closer()

			cfg := tracker.Config()
			return runQuery(cmd, tracker, []int{cfg.PendingStatus(), cfg.FailedStatus()})
		},
	}
	queryFlags(cmd)
	return cmd
}

func newCountCommand(logger log.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Count all tasks in the use case",
		RunE: func(cmd *cobra.Command, args []string) error {
			tracker, closer, err := openTracker(cmd, logger)
			if err != nil {
				return err
			}
			defer closer()

			n, err := tracker.CountTasksByUseCaseID(cmd.Context(), "")
			if err != nil {
				return err
			}
			fmt.Println(n)
			return nil
		},
	}
}

func newPurgeCommand(logger log.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete all tasks in the use case",
		RunE: func(cmd *cobra.Command, args []string) error {
			yes, _ := cmd.Flags().GetBool("yes")
			if !yes {
				return fmt.Errorf("purge deletes every task in the use case; re-run with --yes")
			}
			tracker, closer, err := openTracker(cmd, logger)
			if err != nil {
				return err
			}
			defer closer()

			n, err := tracker.DeleteTasksByUseCaseID(cmd.Context(), "")
			if err != nil {
				return err
			}
			fmt.Printf("deleted %d task(s)\n", n)
			return nil
		},
	}
	cmd.Flags().Bool("yes", false, "confirm deletion")
	return cmd
}
