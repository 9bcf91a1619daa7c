package cli

import (
	"strings"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/tasktrail/tasktrail/pkg/track"
)

// taskFilter wraps a compiled CEL program evaluated per task during query
// commands. When disabled, Eval always returns true.
type taskFilter struct {
	prog    cel.Program
	enabled bool
}

func newTaskFilter(expr string) (taskFilter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return taskFilter{enabled: false}, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("task_id", cel.StringType),
		cel.Variable("status", cel.IntType),
		cel.Variable("status_name", cel.StringType),
		cel.Variable("retry", cel.IntType),
		cel.Variable("shard", cel.IntType),
		// Expose the data payload for field filtering
		cel.Variable("data", cel.DynType),
		cel.Variable("create_time_ms", cel.IntType),
		cel.Variable("update_time_ms", cel.IntType),
		cel.Variable("locked", cel.BoolType),
		// Current time in ms for windowed filters
		cel.Variable("now_ms", cel.IntType),
	)
	if err != nil {
		return taskFilter{}, err
	}
	ast, iss := env.Parse(expr)
	if iss != nil && iss.Err() != nil {
		return taskFilter{}, iss.Err()
	}
	checked, iss2 := env.Check(ast)
	if iss2 != nil && iss2.Err() != nil {
		return taskFilter{}, iss2.Err()
	}
	prog, err := env.Program(checked)
	if err != nil {
		return taskFilter{}, err
	}
	return taskFilter{prog: prog, enabled: true}, nil
}

// Eval evaluates the compiled expression against a task. When disabled,
// returns true.
func (f taskFilter) Eval(task *track.Task) bool {
	if !f.enabled {
		return true
	}
	now := time.Now()
	out, _, err := f.prog.Eval(map[string]any{
		"task_id":        task.TaskID(),
		"status":         int64(task.Status),
		"status_name":    task.StatusName(),
		"retry":          int64(task.Retry),
		"shard":          int64(task.ShardID()),
		"data":           task.Data,
		"create_time_ms": task.CreateTime,
		"update_time_ms": task.UpdateTime,
		"locked":         task.IsLocked("", now),
		"now_ms":         now.UnixMilli(),
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}
