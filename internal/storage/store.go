// Package storage implements the KVStore facade: a partitioned, durable
// key→value engine backed by cockroachdb/pebble. Partitioning hashes
// a key to one of N sub-stores; writes to the same partition are serialized,
// writes to different partitions may proceed concurrently. Cross-partition
// write ordering (WAL append → engine commit → meta update) is the
// responsibility of the caller (internal/database), which holds a
// per-database lock around a full call to ApplyBatch.
package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// Store is the KVStore facade's public contract: a named, durable
// key→value mapping with atomic batched writes.
type Store interface {
	Get(key []byte) ([]byte, error)
	ApplyBatch(kvs map[string][]byte) error
	Close() error
}

// PartitionedStore routes keys to one of N underlying pebble engines by the
// low bits of a stable 32-bit hash of the key.
type PartitionedStore struct {
	partitions []*engine
	logger     zerolog.Logger
}

// Open creates (or reopens) a partitioned store rooted at path. partitions=1
// degenerates to a single engine.
func Open(path string, partitions uint16, logger zerolog.Logger) (*PartitionedStore, error) {
	if partitions == 0 {
		partitions = 1
	}

	ps := &PartitionedStore{
		partitions: make([]*engine, partitions),
		logger:     logger.With().Str("layer", "storage").Logger(),
	}

	for i := uint16(0); i < partitions; i++ {
		dir := filepath.Join(path, fmt.Sprintf("partition-%d", i))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create partition directory %s: %w", dir, err)
		}
		e, err := openEngine(dir, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open partition %d: %w", i, err)
		}
		ps.partitions[i] = e
	}

	return ps, nil
}

func (ps *PartitionedStore) Partitions() int {
	return len(ps.partitions)
}

func (ps *PartitionedStore) partitionFor(key []byte) int {
	return int(hash32(key) % uint32(len(ps.partitions)))
}

// PartitionFor exposes the routing function: the index of the partition
// that Get and ApplyBatch use for key.
func (ps *PartitionedStore) PartitionFor(key []byte) int {
	return ps.partitionFor(key)
}

func (ps *PartitionedStore) Get(key []byte) ([]byte, error) {
	return ps.partitions[ps.partitionFor(key)].Get(key)
}

// ApplyBatch groups kvs by destination partition and commits one pebble
// batch per partition. Partitions touched by the same call are committed
// independently; the caller (internal/database) is responsible for holding
// whatever lock is needed to make the overall operation appear atomic to
// readers. The coarse per-instance lock it holds today could be refined to
// per-partition as long as ops within one WAL entry are either confined to
// one partition or the lock is escalated to store granularity.
func (ps *PartitionedStore) ApplyBatch(kvs map[string][]byte) error {
	byPartition := make(map[int]map[string][]byte)
	for k, v := range kvs {
		idx := ps.partitionFor([]byte(k))
		group, ok := byPartition[idx]
		if !ok {
			group = make(map[string][]byte)
			byPartition[idx] = group
		}
		group[k] = v
	}

	for idx, group := range byPartition {
		e := ps.partitions[idx]
		b := e.newBatch()
		for k, v := range group {
			if err := b.Set([]byte(k), v); err != nil {
				return fmt.Errorf("failed to stage key in partition %d: %w", idx, err)
			}
		}
		if err := b.Commit(); err != nil {
			return fmt.Errorf("failed to commit partition %d: %w", idx, err)
		}
	}

	return nil
}

func (ps *PartitionedStore) Close() error {
	var firstErr error
	for _, e := range ps.partitions {
		if err := e.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// hash32 is an FNV-1a-style hasher narrowed to 32 bits for partition routing.
func hash32(data []byte) uint32 {
	var h uint32 = 2166136261
	for _, b := range data {
		h ^= uint32(b)
		h *= 16777619
	}
	return h
}
