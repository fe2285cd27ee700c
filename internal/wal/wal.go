// Package wal implements a write-ahead redo log shared by every database on
// a node: a rolling append-only segment file plus a sibling meta file
// holding the last durably-committed LSN, with boot-time recovery that
// replays the tail.
package wal

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/DeltaLaboratory/kvdb/internal/kvdberr"
)

const (
	segmentPrefix  = "wal."
	metaFileName   = "wal.meta"
	maxSegmentSize = 128 << 20 // roll to a new segment past this size
)

// WAL serializes appends across all callers, assigning strictly monotonic
// LSNs regardless of which database an entry targets: there is one WAL
// shared across every database on the node.
type WAL struct {
	dir string

	mu       sync.Mutex
	seg      *segment
	segIndex int
	segSize  int64
	lastLSN  uint64

	logger zerolog.Logger
}

// Open opens (creating if absent) the WAL rooted at dir, appending to the
// newest segment and recovering the last assigned LSN as the highest LSN
// found in any segment, so new appends continue the sequence without
// re-using an LSN.
func Open(dir string, logger zerolog.Logger) (*WAL, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create wal directory: %w", err)
	}

	w := &WAL{dir: dir, logger: logger.With().Str("layer", "wal").Logger()}

	segments, err := listSegments(dir)
	if err != nil {
		return nil, err
	}

	idx := 0
	if len(segments) > 0 {
		idx = segments[len(segments)-1]
	}

	path := segmentPath(dir, idx)
	seg, err := openSegment(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat wal segment: %w", err)
	}

	w.seg = seg
	w.segIndex = idx
	w.segSize = info.Size()

	// the highest LSN ever appended is the max across every segment, not
	// just the newest, because a segment can roll before it is full.
	var maxLSN uint64
	for _, i := range segments {
		entries, err := readAllEntries(segmentPath(dir, i))
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.LSN > maxLSN {
				maxLSN = e.LSN
			}
		}
	}
	w.lastLSN = maxLSN

	return w, nil
}

// Append assigns the next LSN, writes the entry to the active segment, and
// fsyncs it before returning. Safe for concurrent use; appends are
// serialized internally.
func (w *WAL) Append(db string, ops []KV) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	lsn := w.lastLSN + 1
	entry := Entry{LSN: lsn, DB: db, Ops: ops}
	body := entry.encode()

	if w.segSize+int64(4+len(body)) > maxSegmentSize {
		if err := w.rollLocked(); err != nil {
			return 0, err
		}
	}

	if err := w.seg.appendEntry(entry); err != nil {
		return 0, kvdberr.Wrap(kvdberr.WAL, "append failed", err)
	}

	w.segSize += int64(4 + len(body))
	w.lastLSN = lsn
	return lsn, nil
}

func (w *WAL) rollLocked() error {
	if err := w.seg.close(); err != nil {
		return fmt.Errorf("failed to close wal segment before roll: %w", err)
	}
	w.segIndex++
	seg, err := openSegment(segmentPath(w.dir, w.segIndex))
	if err != nil {
		return err
	}
	w.seg = seg
	w.segSize = 0
	return nil
}

// UpdateMeta advances the durable checkpoint to lsn. Meta is rewritten
// atomically and is strictly non-decreasing; a caller passing a stale lsn
// is a no-op rather than an error, since concurrent databases' commits may
// interleave arbitrarily while sharing one WAL.
func (w *WAL) UpdateMeta(lsn uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	current, err := readMeta(w.metaPath())
	if err != nil {
		return kvdberr.Wrap(kvdberr.WAL, "failed to read current meta", err)
	}
	if lsn <= current {
		return nil
	}
	if err := writeMetaAtomic(w.metaPath(), lsn); err != nil {
		return kvdberr.Wrap(kvdberr.WAL, "failed to update meta", err)
	}
	return nil
}

func (w *WAL) metaPath() string {
	return filepath.Join(w.dir, metaFileName)
}

// LastLSN returns the highest LSN assigned so far, for diagnostics.
func (w *WAL) LastLSN() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastLSN
}

// Close flushes and closes the active segment.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.seg.close()
}

// Applier is implemented by internal/database.Database: a named store that
// can accept a blind-overwrite replay batch.
type Applier interface {
	Name() string
	ApplyReplay(kvs map[string][]byte) error
}

// RecoverySummary reports what happened while replaying one segment, logged
// at boot so an operator can see what was replayed.
type RecoverySummary struct {
	Segment      int
	LSNFrom      uint64
	LSNTo        uint64
	AppliedCount int
}

// Recover reads wal.meta to find the durable checkpoint M, then replays
// every entry with lsn > M into the database named by that entry, advancing
// M after each successfully applied entry. An entry naming a database with
// no matching Applier is a fatal recovery error.
func (w *WAL) Recover(dbs map[string]Applier) ([]RecoverySummary, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	checkpoint, err := readMeta(w.metaPath())
	if err != nil {
		return nil, kvdberr.Wrap(kvdberr.WAL, "failed to read meta for recovery", err)
	}

	segments, err := listSegments(w.dir)
	if err != nil {
		return nil, err
	}

	var summaries []RecoverySummary
	for _, idx := range segments {
		entries, err := readAllEntries(segmentPath(w.dir, idx))
		if err != nil {
			return nil, err
		}

		summary := RecoverySummary{Segment: idx}
		for _, e := range entries {
			if e.LSN <= checkpoint {
				continue
			}

			applier, ok := dbs[e.DB]
			if !ok {
				return nil, kvdberr.New(kvdberr.WAL, fmt.Sprintf(
					"wal entry lsn=%d references unknown database %q", e.LSN, e.DB))
			}

			kvs := make(map[string][]byte, len(e.Ops))
			for _, op := range e.Ops {
				kvs[string(op.Key)] = op.Value
			}
			if err := applier.ApplyReplay(kvs); err != nil {
				return nil, kvdberr.Wrap(kvdberr.WAL, fmt.Sprintf("failed to replay lsn=%d", e.LSN), err)
			}

			checkpoint = e.LSN
			if summary.LSNFrom == 0 {
				summary.LSNFrom = e.LSN
			}
			summary.LSNTo = e.LSN
			summary.AppliedCount++
		}

		if summary.AppliedCount > 0 {
			summaries = append(summaries, summary)
		}
	}

	if checkpoint > 0 {
		if err := writeMetaAtomic(w.metaPath(), checkpoint); err != nil {
			return nil, kvdberr.Wrap(kvdberr.WAL, "failed to persist recovered checkpoint", err)
		}
	}

	return summaries, nil
}

func listSegments(dir string) ([]int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list wal directory: %w", err)
	}

	var indices []int
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), segmentPrefix) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(e.Name(), segmentPrefix))
		if err != nil {
			continue
		}
		indices = append(indices, n)
	}
	sort.Ints(indices)
	return indices, nil
}

func segmentPath(dir string, idx int) string {
	return filepath.Join(dir, fmt.Sprintf("%s%03d", segmentPrefix, idx))
}
