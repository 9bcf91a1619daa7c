package pebblestore

import (
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/tasktrail/tasktrail/pkg/log"
)

// FsyncMode defines durability behavior for write operations.
type FsyncMode int

const (
	FsyncModeUnspecified FsyncMode = iota
	// FsyncModeAlways requests a WAL fsync on each committed batch/write.
	FsyncModeAlways
	// FsyncModeInterval enables group-commit by allowing Pebble to coalesce
	// WAL syncs for operations within the configured interval.
	FsyncModeInterval
	// FsyncModeNever avoids forcing WAL syncs from the application. Pebble
	// may still sync based on its own policies.
	FsyncModeNever
)

// Options configures the Pebble store.
type Options struct {
	// DataDir is the path to the Pebble database directory.
	DataDir string
	// Fsync determines when to sync the WAL.
	Fsync FsyncMode
	// FsyncInterval controls group-commit when Fsync=FsyncModeInterval.
	FsyncInterval time.Duration
	// Logger receives Pebble's internal event logging. Optional.
	Logger log.Logger
	// PebbleOptions allows advanced tuning. If nil, sensible defaults are used.
	PebbleOptions *pebble.Options
}

// db wraps a Pebble database instance with fsync policy and basic helpers.
type db struct {
	inner     *pebble.DB
	writeSync bool
}

// pebbleLogAdapter routes Pebble's Infof/Fatalf logging into pkg/log.
type pebbleLogAdapter struct{ l log.Logger }

func (a pebbleLogAdapter) Infof(format string, args ...interface{}) {
	a.l.Debug("pebble: " + fmt.Sprintf(format, args...))
}

func (a pebbleLogAdapter) Errorf(format string, args ...interface{}) {
	a.l.Error("pebble: " + fmt.Sprintf(format, args...))
}

func (a pebbleLogAdapter) Fatalf(format string, args ...interface{}) {
	a.l.Error("pebble fatal: " + fmt.Sprintf(format, args...))
}

func openDB(opts Options) (*db, error) {
	if opts.DataDir == "" {
		return nil, errors.New("pebblestore: Options.DataDir is required")
	}

	po := opts.PebbleOptions
	if po == nil {
		po = &pebble.Options{}
	}
	if opts.Logger != nil {
		po.Logger = pebbleLogAdapter{l: opts.Logger.WithComponent("pebble")}
	}

	switch opts.Fsync {
	case FsyncModeAlways:
		// Sync passed per-commit below.
	case FsyncModeInterval:
		if opts.FsyncInterval <= 0 {
			opts.FsyncInterval = 5 * time.Millisecond
		}
		po.WALMinSyncInterval = func() time.Duration { return opts.FsyncInterval }
	case FsyncModeNever:
	default:
		// Default to small group-commit for a reasonable latency/throughput
		// tradeoff.
		po.WALMinSyncInterval = func() time.Duration { return 5 * time.Millisecond }
	}

	inner, err := pebble.Open(opts.DataDir, po)
	if err != nil {
		return nil, err
	}
	return &db{inner: inner, writeSync: opts.Fsync == FsyncModeAlways}, nil
}

func (d *db) close() error {
	if d == nil || d.inner == nil {
		return nil
	}
	return d.inner.Close()
}

func (d *db) newBatch() *pebble.Batch { return d.inner.NewBatch() }

func (d *db) commitBatch(b *pebble.Batch) error {
	if b == nil {
		return errors.New("pebblestore: nil batch")
	}
	syncMode := pebble.NoSync
	if d.writeSync {
		syncMode = pebble.Sync
	}
	return b.Commit(syncMode)
}

// get copies the value for the given key. Returns pebble.ErrNotFound when absent.
func (d *db) get(key []byte) ([]byte, error) {
	val, closer, err := d.inner.Get(key)
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	return append([]byte(nil), val...), nil
}

func (d *db) newIter(opts *pebble.IterOptions) (*pebble.Iterator, error) {
	return d.inner.NewIter(opts)
}
