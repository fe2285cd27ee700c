// Package session implements the per-connection state machine: current
// database binding, batch mode, and the session-private batch buffer.
package session

import (
	"fmt"
	"sync"

	"github.com/DeltaLaboratory/kvdb/internal/database"
	"github.com/DeltaLaboratory/kvdb/internal/kvdberr"
)

// MaxBatchSize bounds the session batch buffer's cardinality, enforced both
// per-call and cumulatively.
const MaxBatchSize = 10_000_000

// Sink publishes a response to the connection that owns this session. It
// must tolerate being called after the connection has closed, dropping the
// write silently.
type Sink interface {
	Publish(payload []byte)
}

// Session is keyed by the client's source address ("host:port") and is
// dispatched from a single goroutine at a time. The mutex below still guards
// every mutable field (current db, batch mode, and the batch buffer), so a
// concurrent reader such as DB() or BatchMode() never sees a partial update.
type Session struct {
	ID string

	mu        sync.RWMutex
	db        *database.Database
	batchMode bool
	batch     map[string][]byte

	sink Sink
}

func New(id string, sink Sink) *Session {
	return &Session{ID: id, sink: sink}
}

func (s *Session) Sink() Sink { return s.sink }

func (s *Session) DB() *database.Database {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db
}

func (s *Session) DBName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return ""
	}
	return s.db.Name()
}

// SetDB aborts any active batch (idempotent) then binds the session to db:
// any transition out of BATCHING other than BATCH_ABORT/BATCH_COMMIT first
// aborts.
func (s *Session) SetDB(db *database.Database) {
	s.BatchAbort()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.db = db
}

// BufferedSize reports the current batch buffer's cardinality, used by
// BATCH_COMMIT's optional expected_size argument when the caller omits it.
func (s *Session) BufferedSize() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.batch)
}

func (s *Session) BatchMode() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.batchMode
}

// BatchBegin is idempotent: enters (or stays in) BATCHING and clears the
// buffer either way.
func (s *Session) BatchBegin() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batchMode = true
	s.batch = make(map[string][]byte)
}

// BatchAbort is idempotent: returns to BOUND and clears the buffer.
func (s *Session) BatchAbort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batchMode = false
	s.batch = nil
}

// BatchCommit requires BATCHING; a size mismatch leaves the session in
// BATCHING. On success the whole buffer goes through one WAL-covered atomic
// write to the bound store before the session returns to BOUND.
func (s *Session) BatchCommit(expected int) error {
	s.mu.Lock()
	if !s.batchMode {
		s.mu.Unlock()
		return kvdberr.New(kvdberr.BatchState, "BATCH_COMMIT without BATCH_BEGIN")
	}
	if len(s.batch) != expected {
		size := len(s.batch)
		s.mu.Unlock()
		return kvdberr.New(kvdberr.BatchSizeMismatch, fmt.Sprintf("expected %d, buffer has %d", expected, size))
	}

	buf := s.batch
	db := s.db
	s.mu.Unlock()

	if err := checkBound(db); err != nil {
		return err
	}

	if err := db.Write(buf); err != nil {
		return err
	}

	s.mu.Lock()
	s.batchMode = false
	s.batch = nil
	s.mu.Unlock()
	return nil
}

// checkBound reports whether db is usable for a read or write: bound at all,
// and still enabled. A DISABLE_DB issued after USE takes effect on the very
// next Get/Put of an already-bound session rather than only at USE time.
func checkBound(db *database.Database) error {
	if db == nil {
		return kvdberr.New(kvdberr.NoSuchDB, "no database selected")
	}
	if !db.Enabled() {
		return kvdberr.New(kvdberr.NoSuchDB, "database is disabled")
	}
	return nil
}

// Put inserts kvs into the batch buffer (last-write-wins, one insertion per
// call) when in BATCHING, or applies them immediately through the WAL when
// BOUND.
func (s *Session) Put(kvs map[string][]byte) error {
	if len(kvs) > MaxBatchSize {
		return kvdberr.New(kvdberr.BatchTooLarge, "put exceeds MAX_BATCH_SIZE")
	}

	s.mu.Lock()
	if s.batchMode {
		if len(s.batch)+len(kvs) > MaxBatchSize {
			s.mu.Unlock()
			return kvdberr.New(kvdberr.BatchTooLarge, "batch buffer would exceed MAX_BATCH_SIZE")
		}
		for k, v := range kvs {
			s.batch[k] = v
		}
		s.mu.Unlock()
		return nil
	}
	db := s.db
	s.mu.Unlock()

	if err := checkBound(db); err != nil {
		return err
	}
	return db.Write(kvs)
}

// Get reads keys, consulting the session's own batch buffer first when in
// BATCHING (read-your-own-writes), then falling through to the engine.
func (s *Session) Get(keys [][]byte) ([][]byte, error) {
	s.mu.RLock()
	batching := s.batchMode
	db := s.db
	s.mu.RUnlock()

	if err := checkBound(db); err != nil {
		return nil, err
	}

	values := make([][]byte, len(keys))
	for i, k := range keys {
		if batching {
			s.mu.RLock()
			v, ok := s.batch[string(k)]
			s.mu.RUnlock()
			if ok {
				values[i] = v
				continue
			}
		}
		v, err := db.Get(k)
		if err != nil {
			return nil, kvdberr.Wrap(kvdberr.Engine, "get failed", err)
		}
		values[i] = v
	}
	return values, nil
}

// Exists reports key presence with the same batch-then-engine precedence as
// Get.
func (s *Session) Exists(keys [][]byte) ([]bool, error) {
	values, err := s.Get(keys)
	if err != nil {
		return nil, err
	}
	out := make([]bool, len(values))
	for i, v := range values {
		out[i] = v != nil
	}
	return out, nil
}
