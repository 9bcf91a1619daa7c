package pebblestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"

	"github.com/cockroachdb/pebble"

	"github.com/tasktrail/tasktrail/pkg/store"
)

// Store is an embedded implementation of store.Store over Pebble. Conditional
// updates are emulated with a per-key critical section: the condition is
// evaluated against the current item and the mutation committed while the
// key's stripe lock is held, which gives the same atomicity the tracker
// relies on DynamoDB conditional writes for.
type Store struct {
	db      *db
	stripes [64]sync.Mutex
}

// Open creates or opens an embedded store at opts.DataDir.
func Open(opts Options) (*Store, error) {
	d, err := openDB(opts)
	if err != nil {
		return nil, err
	}
	return &Store{db: d}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.close() }

func (s *Store) stripe(key string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &s.stripes[h.Sum32()%uint32(len(s.stripes))]
}

func (s *Store) readItem(key string) (*store.Item, error) {
	raw, err := s.db.get(itemKey(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("pebblestore: read %q: %w", key, err)
	}
	var it store.Item
	if err := json.Unmarshal(raw, &it); err != nil {
		return nil, fmt.Errorf("pebblestore: decode %q: %w", key, err)
	}
	return &it, nil
}

// Get returns the item for key, or store.ErrNotFound.
func (s *Store) Get(_ context.Context, key string, _ store.GetOptions) (*store.Item, error) {
	// Pebble reads are always current; ConsistentRead and attribute
	// projection are DynamoDB cost knobs with no local equivalent.
	return s.readItem(key)
}

// Put writes the item unconditionally and maintains its index entry.
func (s *Store) Put(_ context.Context, item *store.Item) error {
	mu := s.stripe(item.Key)
	mu.Lock()
	defer mu.Unlock()

	prev, err := s.readItem(item.Key)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	return s.writeItem(prev, item)
}

// writeItem commits the item plus its index transition in one batch.
// Caller must hold the key's stripe lock.
func (s *Store) writeItem(prev, next *store.Item) error {
	raw, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("pebblestore: encode %q: %w", next.Key, err)
	}

	b := s.db.newBatch()
	defer b.Close()

	if err := b.Set(itemKey(next.Key), raw, nil); err != nil {
		return err
	}
	if prev != nil {
		if err := b.Delete(indexKey(prev.Value, prev.UpdateTime, prev.Key), nil); err != nil {
			return err
		}
	}
	proj, err := json.Marshal(projectItem(next))
	if err != nil {
		return err
	}
	if err := b.Set(indexKey(next.Value, next.UpdateTime, next.Key), proj, nil); err != nil {
		return err
	}
	return s.db.commitBatch(b)
}

// projectItem mimics the include-projection of the status index: index reads
// carry the table key, the index keys, and create_time, nothing else.
func projectItem(it *store.Item) *store.Item {
	return &store.Item{
		Key:        it.Key,
		Value:      it.Value,
		UpdateTime: it.UpdateTime,
		CreateTime: it.CreateTime,
	}
}

// ConditionalUpdate evaluates cond against the current item and applies upd
// atomically, returning the post-update item.
func (s *Store) ConditionalUpdate(_ context.Context, key string, upd store.Update, cond store.Cond) (*store.Item, error) {
	mu := s.stripe(key)
	mu.Lock()
	defer mu.Unlock()

	prev, err := s.readItem(key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Matches DynamoDB: a conditional update of a missing item is a
			// condition failure, not a not-found.
			return nil, store.ErrConditionFailed
		}
		return nil, err
	}
	if cond != nil && !evalCond(cond, prev) {
		return nil, store.ErrConditionFailed
	}

	next := *prev
	for _, fu := range upd {
		if err := applyUpdate(&next, fu); err != nil {
			return nil, err
		}
	}
	if err := s.writeItem(prev, &next); err != nil {
		return nil, err
	}
	return &next, nil
}

func applyUpdate(it *store.Item, fu store.FieldUpdate) error {
	if fu.Op == store.OpAdd {
		delta, ok := toInt64(fu.Value)
		if !ok {
			return fmt.Errorf("pebblestore: non-numeric add on %q", fu.Field)
		}
		switch fu.Field {
		case store.FieldRetry:
			it.Retry += int(delta)
		case store.FieldStatus:
			it.Status += int(delta)
		case store.FieldUpdateTime:
			it.UpdateTime += delta
		case store.FieldLockTime:
			it.LockTime += delta
		default:
			return fmt.Errorf("pebblestore: add unsupported for field %q", fu.Field)
		}
		return nil
	}

	switch fu.Field {
	case store.FieldValue:
		it.Value = fu.Value.(string)
	case store.FieldStatus:
		n, ok := toInt64(fu.Value)
		if !ok {
			return fmt.Errorf("pebblestore: non-numeric status %v", fu.Value)
		}
		it.Status = int(n)
	case store.FieldUpdateTime:
		n, _ := toInt64(fu.Value)
		it.UpdateTime = n
	case store.FieldRetry:
		n, _ := toInt64(fu.Value)
		it.Retry = int(n)
	case store.FieldLock:
		it.Lock = fu.Value.(string)
	case store.FieldLockTime:
		n, _ := toInt64(fu.Value)
		it.LockTime = n
	case store.FieldData:
		d, _ := fu.Value.(map[string]any)
		it.Data = d
	case store.FieldErrors:
		e, _ := fu.Value.(*store.ErrorLog)
		it.Errors = e
	default:
		return fmt.Errorf("pebblestore: set unsupported for field %q", fu.Field)
	}
	return nil
}

func evalCond(c store.Cond, it *store.Item) bool {
	switch v := c.(type) {
	case store.Compare:
		return evalCompare(v, it)
	case store.Group:
		if v.Or {
			for _, k := range v.Conds {
				if evalCond(k, it) {
					return true
				}
			}
			return false
		}
		for _, k := range v.Conds {
			if !evalCond(k, it) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func evalCompare(c store.Compare, it *store.Item) bool {
	switch field := fieldValue(it, c.Field).(type) {
	case string:
		want, ok := c.Value.(string)
		if !ok {
			return false
		}
		return cmpOrdered(strings.Compare(field, want), c.Op)
	case int64:
		want, ok := toInt64(c.Value)
		if !ok {
			return false
		}
		switch {
		case field < want:
			return cmpOrdered(-1, c.Op)
		case field > want:
			return cmpOrdered(1, c.Op)
		default:
			return cmpOrdered(0, c.Op)
		}
	default:
		return false
	}
}

func cmpOrdered(sign int, op store.CmpOp) bool {
	switch op {
	case store.CmpEq:
		return sign == 0
	case store.CmpNe:
		return sign != 0
	case store.CmpLt:
		return sign < 0
	case store.CmpGt:
		return sign > 0
	default:
		return false
	}
}

func fieldValue(it *store.Item, field string) any {
	switch field {
	case store.FieldKey:
		return it.Key
	case store.FieldValue:
		return it.Value
	case store.FieldStatus:
		return int64(it.Status)
	case store.FieldCreateTime:
		return it.CreateTime
	case store.FieldUpdateTime:
		return it.UpdateTime
	case store.FieldRetry:
		return int64(it.Retry)
	case store.FieldLock:
		return it.Lock
	case store.FieldLockTime:
		return it.LockTime
	default:
		return nil
	}
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}

// QueryIndex returns projected items for one index partition, ordered by
// update_time.
func (s *Store) QueryIndex(_ context.Context, indexValue string, opts store.QueryOptions) ([]*store.Item, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}
	lo, hi := keyRange(prefixIdx + indexValue + "/")
	iter, err := s.db.newIter(&pebble.IterOptions{LowerBound: lo, UpperBound: hi})
	if err != nil {
		return nil, fmt.Errorf("pebblestore: index iterator: %w", err)
	}
	defer iter.Close()

	var out []*store.Item
	step := func() bool { return iter.Next() }
	ok := iter.First()
	if !opts.Ascending {
		step = func() bool { return iter.Prev() }
		ok = iter.Last()
	}
	for ; ok && len(out) < limit; ok = step() {
		var it store.Item
		if err := json.Unmarshal(iter.Value(), &it); err != nil {
			continue
		}
		out = append(out, &it)
	}
	return out, nil
}

// Scan walks every item whose primary key begins with keyPrefix.
func (s *Store) Scan(_ context.Context, keyPrefix string, fn func(key string) error) error {
	lo, hi := keyRange(prefixItem)
	iter, err := s.db.newIter(&pebble.IterOptions{LowerBound: lo, UpperBound: hi})
	if err != nil {
		return fmt.Errorf("pebblestore: scan iterator: %w", err)
	}
	defer iter.Close()

	for ok := iter.First(); ok; ok = iter.Next() {
		key := strings.TrimPrefix(string(iter.Key()), prefixItem)
		if !strings.HasPrefix(key, keyPrefix) {
			continue
		}
		if err := fn(key); err != nil {
			return err
		}
	}
	return nil
}

// BatchDelete removes items and their index entries.
func (s *Store) BatchDelete(_ context.Context, keys []string) error {
	for _, key := range keys {
		mu := s.stripe(key)
		mu.Lock()
		prev, err := s.readItem(key)
		if err != nil {
			mu.Unlock()
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return err
		}
		b := s.db.newBatch()
		_ = b.Delete(itemKey(key), nil)
		_ = b.Delete(indexKey(prev.Value, prev.UpdateTime, prev.Key), nil)
		err = s.db.commitBatch(b)
		b.Close()
		mu.Unlock()
		if err != nil {
			return err
		}
	}
	return nil
}
