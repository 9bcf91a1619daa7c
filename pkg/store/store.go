package store

import (
	"context"
	"errors"
)

// Sentinel errors returned by Store implementations.
var (
	// ErrNotFound is returned by Get when no item exists for the key.
	ErrNotFound = errors.New("store: item not found")
	// ErrConditionFailed is returned by ConditionalUpdate when the condition
	// did not hold, including the case where the item does not exist.
	ErrConditionFailed = errors.New("store: condition failed")
)

// Attribute names of the task item. Field updates and conditions refer to
// these; backends map them onto their own encoding.
const (
	FieldKey        = "key"
	FieldValue      = "value"
	FieldStatus     = "status"
	FieldCreateTime = "create_time"
	FieldUpdateTime = "update_time"
	FieldRetry      = "retry"
	FieldLock       = "lock"
	FieldLockTime   = "lock_time"
	FieldData       = "data"
	FieldErrors     = "errors"
)

// Item is the persisted task record. Key is the primary identity; Value is
// the hash key of the status index and always agrees with Status.
// Timestamps are epoch milliseconds.
type Item struct {
	Key        string         `dynamodbav:"key" json:"key"`
	Value      string         `dynamodbav:"value" json:"value"`
	Status     int            `dynamodbav:"status" json:"status"`
	CreateTime int64          `dynamodbav:"create_time" json:"create_time"`
	UpdateTime int64          `dynamodbav:"update_time" json:"update_time"`
	Retry      int            `dynamodbav:"retry" json:"retry"`
	Lock       string         `dynamodbav:"lock" json:"lock"`
	LockTime   int64          `dynamodbav:"lock_time" json:"lock_time"`
	Data       map[string]any `dynamodbav:"data" json:"data"`
	Errors     *ErrorLog      `dynamodbav:"errors" json:"errors"`
}

// ErrorLog holds the per-task failure history.
type ErrorLog struct {
	History []ErrorEntry `dynamodbav:"history" json:"history"`
}

// ErrorEntry records one failed execution attempt.
type ErrorEntry struct {
	NthRetry   int    `dynamodbav:"nth_retry" json:"nth_retry"`
	UpdateTime string `dynamodbav:"update_time" json:"update_time"`
	Error      string `dynamodbav:"error" json:"error"`
	Traceback  string `dynamodbav:"traceback" json:"traceback"`
}

// Clone returns a deep copy of the error log. A nil receiver yields an
// empty log.
func (l *ErrorLog) Clone() *ErrorLog {
	out := &ErrorLog{}
	if l == nil {
		return out
	}
	out.History = append(out.History, l.History...)
	return out
}

// GetOptions tunes point reads.
type GetOptions struct {
	// ConsistentRead requests a strongly consistent read where the backend
	// distinguishes (DynamoDB does, Pebble reads are always current).
	ConsistentRead bool
	// Attributes limits the returned attributes. Empty means all.
	Attributes []string
}

// QueryOptions tunes secondary-index queries.
type QueryOptions struct {
	// Limit bounds the number of items returned from one index partition.
	// Zero means backend default.
	Limit int
	// Ascending orders results by update_time, oldest first.
	Ascending bool
}

// Store is the conditional-write item store the tracker is layered on.
// Implementations must make ConditionalUpdate atomic: the condition is
// evaluated and the updates applied as one indivisible operation.
type Store interface {
	// Get returns the item for key, or ErrNotFound.
	Get(ctx context.Context, key string, opts GetOptions) (*Item, error)

	// Put writes the item unconditionally, replacing any existing item.
	Put(ctx context.Context, item *Item) error

	// ConditionalUpdate applies the field updates iff cond holds against the
	// current item, returning the post-update item. A missing item or a
	// false condition yields ErrConditionFailed.
	ConditionalUpdate(ctx context.Context, key string, upd Update, cond Cond) (*Item, error)

	// QueryIndex returns items whose index hash value equals indexValue,
	// ordered by update_time. Returned items may carry only the index's
	// projected subset of attributes.
	QueryIndex(ctx context.Context, indexValue string, opts QueryOptions) ([]*Item, error)

	// Scan invokes fn with the primary key of every item whose key begins
	// with keyPrefix. Expensive; meant for maintenance paths only.
	Scan(ctx context.Context, keyPrefix string, fn func(key string) error) error

	// BatchDelete removes the given items by primary key.
	BatchDelete(ctx context.Context, keys []string) error
}
