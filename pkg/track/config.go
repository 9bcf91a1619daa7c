package track

import (
	"errors"
	"sort"
	"time"
)

// NotLocked is the sentinel stored in the lock attribute when no worker
// holds a lease.
const NotLocked = "__not_locked__"

// Defaults applied by NewConfig for zero-valued Params fields.
const (
	DefaultSep                 = "____"
	DefaultStatusZeroPad       = 3
	DefaultShardZeroPad        = 3
	DefaultMaxRetry            = 3
	DefaultLockExpire          = 300 * time.Second
	DefaultTracebackStackLimit = 10
)

// Params is the input to NewConfig. One table can serve many task types;
// UseCaseID namespaces this type's items within it.
type Params struct {
	UseCaseID string

	// The five core status codes. Must be pairwise distinct. By convention
	// codes closer to the end of the lifecycle are larger.
	PendingStatus    int
	InProgressStatus int
	FailedStatus     int
	SucceededStatus  int
	IgnoredStatus    int

	// Per-status shard counts for the status index. Statuses that
	// accumulate items (typically succeeded) deserve more shards. Zero
	// means one shard.
	NPendingShard    int
	NInProgressShard int
	NFailedShard     int
	NSucceededShard  int
	NIgnoredShard    int

	// MorePendingStatus lists extra codes that count as ready-to-start in
	// addition to pending and failed.
	MorePendingStatus []int

	Sep                 string
	StatusZeroPad       int
	ShardZeroPad        int
	MaxRetry            int
	LockExpire          time.Duration
	TracebackStackLimit int
}

// Config is the immutable per-task-type configuration. Build it once with
// NewConfig and share it freely; it is never mutated afterwards.
type Config struct {
	useCaseID     string
	sep           string
	statusZeroPad int
	shardZeroPad  int
	maxRetry      int
	lockExpire    time.Duration
	stackLimit    int

	pending     int
	inProgress  int
	failed      int
	succeeded   int
	ignored     int
	morePending []int

	shards map[int]int
	names  map[int]string
}

// NewConfig validates params and builds a Config.
func NewConfig(p Params) (*Config, error) {
	if p.UseCaseID == "" {
		return nil, errors.New("track: Params.UseCaseID is required")
	}
	distinct := map[int]struct{}{
		p.PendingStatus:    {},
		p.InProgressStatus: {},
		p.FailedStatus:     {},
		p.SucceededStatus:  {},
		p.IgnoredStatus:    {},
	}
	if len(distinct) != 5 {
		return nil, ErrDuplicateStatusCode
	}

	c := &Config{
		useCaseID:     p.UseCaseID,
		sep:           p.Sep,
		statusZeroPad: p.StatusZeroPad,
		shardZeroPad:  p.ShardZeroPad,
		maxRetry:      p.MaxRetry,
		lockExpire:    p.LockExpire,
		stackLimit:    p.TracebackStackLimit,
		pending:       p.PendingStatus,
		inProgress:    p.InProgressStatus,
		failed:        p.FailedStatus,
		succeeded:     p.SucceededStatus,
		ignored:       p.IgnoredStatus,
		morePending:   append([]int(nil), p.MorePendingStatus...),
		shards: map[int]int{
			p.PendingStatus:    shardCount(p.NPendingShard),
			p.InProgressStatus: shardCount(p.NInProgressShard),
			p.FailedStatus:     shardCount(p.NFailedShard),
			p.SucceededStatus:  shardCount(p.NSucceededShard),
			p.IgnoredStatus:    shardCount(p.NIgnoredShard),
		},
		names: map[int]string{
			p.PendingStatus:    "pending",
			p.InProgressStatus: "in_progress",
			p.FailedStatus:     "failed",
			p.SucceededStatus:  "succeeded",
			p.IgnoredStatus:    "ignored",
		},
	}
	if c.sep == "" {
		c.sep = DefaultSep
	}
	if c.statusZeroPad <= 0 {
		c.statusZeroPad = DefaultStatusZeroPad
	}
	if c.shardZeroPad <= 0 {
		c.shardZeroPad = DefaultShardZeroPad
	}
	if c.maxRetry <= 0 {
		c.maxRetry = DefaultMaxRetry
	}
	if c.lockExpire <= 0 {
		c.lockExpire = DefaultLockExpire
	}
	if c.stackLimit <= 0 {
		c.stackLimit = DefaultTracebackStackLimit
	}
	return c, nil
}

func shardCount(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}

func (c *Config) UseCaseID() string        { return c.useCaseID }
func (c *Config) Sep() string              { return c.sep }
func (c *Config) PendingStatus() int       { return c.pending }
func (c *Config) InProgressStatus() int    { return c.inProgress }
func (c *Config) FailedStatus() int        { return c.failed }
func (c *Config) SucceededStatus() int     { return c.succeeded }
func (c *Config) IgnoredStatus() int       { return c.ignored }
func (c *Config) MaxRetry() int            { return c.maxRetry }
func (c *Config) LockExpire() time.Duration { return c.lockExpire }

// MorePendingStatus returns a copy of the configured extra ready-to-start
// codes.
func (c *Config) MorePendingStatus() []int {
	return append([]int(nil), c.morePending...)
}

// Statuses returns all configured status codes in ascending order.
func (c *Config) Statuses() []int {
	out := make([]int, 0, len(c.shards))
	for code := range c.shards {
		out = append(out, code)
	}
	sort.Ints(out)
	return out
}

// StatusName returns the human-readable name for a configured status code,
// or "" for an unknown one.
func (c *Config) StatusName(status int) string {
	return c.names[status]
}

// StatusCode resolves a status name back to its code.
func (c *Config) StatusCode(name string) (int, bool) {
	for code, n := range c.names {
		if n == name {
			return code, true
		}
	}
	return 0, false
}

// ShardCount returns the shard count for a configured status.
func (c *Config) ShardCount(status int) (int, bool) {
	n, ok := c.shards[status]
	return n, ok
}
