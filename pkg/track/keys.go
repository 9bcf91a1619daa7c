package track

import (
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"
)

// Key/value codec.
//
//	key   = {use_case_id}{sep}{task_id}
//	value = {use_case_id}{sep}{status zero-padded}{sep}{shard_id zero-padded}
//
// value is the hash key of the status index. Zero-padding keeps every
// encoding fixed-width so values stay equality- and order-comparable, and
// the deterministic shard keeps one status from concentrating all its index
// writes on a single partition.

// MakeKey joins the configured use case id and a task id into the primary
// key.
func (c *Config) MakeKey(taskID string) string {
	return c.KeyFor(c.useCaseID, taskID)
}

// KeyFor is MakeKey with an explicit use case id.
func (c *Config) KeyFor(useCaseID, taskID string) string {
	return useCaseID + c.sep + taskID
}

// ParseKey splits a primary key back into use case id and task id.
func (c *Config) ParseKey(key string) (useCaseID, taskID string) {
	parts := strings.SplitN(key, c.sep, 2)
	if len(parts) != 2 {
		return key, ""
	}
	return parts[0], parts[1]
}

// ShardID derives the deterministic shard for (taskID, status):
// fnv32a(key) mod n_shard[status], one-based. A task transitioning into the
// same status repeatedly always lands on the same shard.
func (c *Config) ShardID(status int, taskID string) (int, error) {
	return c.shardIn(c.useCaseID, status, taskID)
}

func (c *Config) shardIn(useCaseID string, status int, taskID string) (int, error) {
	n, ok := c.shards[status]
	if !ok {
		return 0, &UnknownStatusError{Status: status}
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(c.KeyFor(useCaseID, taskID)))
	return int(h.Sum32()%uint32(n)) + 1, nil
}

// MakeValue encodes the status-index value for a task, deriving the shard
// id from the task id.
func (c *Config) MakeValue(status int, taskID string) (string, error) {
	return c.valueIn(c.useCaseID, status, taskID)
}

func (c *Config) valueIn(useCaseID string, status int, taskID string) (string, error) {
	shard, err := c.shardIn(useCaseID, status, taskID)
	if err != nil {
		return "", err
	}
	return c.ValueFor(useCaseID, status, shard)
}

// ValueFor encodes the status-index value with an explicit shard id, as
// used when enumerating all shards of a status.
func (c *Config) ValueFor(useCaseID string, status, shardID int) (string, error) {
	if _, ok := c.shards[status]; !ok {
		return "", &UnknownStatusError{Status: status}
	}
	return useCaseID +
		c.sep + zeroPad(status, c.statusZeroPad) +
		c.sep + zeroPad(shardID, c.shardZeroPad), nil
}

// ParseValue decodes a status-index value.
func (c *Config) ParseValue(value string) (useCaseID string, status, shardID int, err error) {
	parts := strings.Split(value, c.sep)
	if len(parts) != 3 {
		return "", 0, 0, fmt.Errorf("track: malformed value %q", value)
	}
	status, err = strconv.Atoi(parts[1])
	if err != nil {
		return "", 0, 0, fmt.Errorf("track: malformed status in value %q", value)
	}
	shardID, err = strconv.Atoi(parts[2])
	if err != nil {
		return "", 0, 0, fmt.Errorf("track: malformed shard in value %q", value)
	}
	return parts[0], status, shardID, nil
}

func zeroPad(n, width int) string {
	return fmt.Sprintf("%0*d", width, n)
}
