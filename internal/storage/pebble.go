package storage

import (
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/rs/zerolog"
)

// engine wraps a single pebble.DB, one per partition. It implements the
// store/WriteBatch shape the KVStore facade composes across partitions.
type engine struct {
	db *pebble.DB

	logger zerolog.Logger
}

func openEngine(path string, logger zerolog.Logger) (*engine, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &engine{
		db:     db,
		logger: logger.With().Str("layer", "storage").Logger(),
	}, nil
}

func (e *engine) Get(key []byte) ([]byte, error) {
	value, closer, err := e.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	defer func() {
		if err := closer.Close(); err != nil {
			e.logger.Warn().Err(err).Msg("failed to close pebble value handle")
		}
	}()

	// the value is only valid while closer is open, so copy it out
	result := make([]byte, len(value))
	copy(result, value)
	return result, nil
}

type engineBatch struct {
	batch *pebble.Batch
}

func (e *engine) newBatch() *engineBatch {
	return &engineBatch{batch: e.db.NewBatch()}
}

func (b *engineBatch) Set(key, value []byte) error {
	return b.batch.Set(key, value, nil)
}

func (b *engineBatch) Commit() (err error) {
	// pebble panics instead of returning an error when the DB is already
	// closed; turn that into an error so callers can type it.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pebble commit failed: %v", r)
		}
	}()
	return b.batch.Commit(pebble.Sync)
}

func (e *engine) Close() error {
	return e.db.Close()
}
