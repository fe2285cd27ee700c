package storage

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestPartitionedStoreGetSetRoundTrip(t *testing.T) {
	ps, err := Open(t.TempDir(), 4, zerolog.Nop())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer ps.Close()

	kvs := map[string][]byte{
		"alpha": []byte("1"),
		"beta":  []byte("2"),
		"gamma": []byte("3"),
	}
	if err := ps.ApplyBatch(kvs); err != nil {
		t.Fatalf("ApplyBatch() error = %v", err)
	}

	for k, v := range kvs {
		got, err := ps.Get([]byte(k))
		if err != nil {
			t.Fatalf("Get(%q) error = %v", k, err)
		}
		if string(got) != string(v) {
			t.Fatalf("Get(%q) = %q, want %q", k, got, v)
		}
	}
}

func TestPartitionedStoreGetMissingKeyReturnsNil(t *testing.T) {
	ps, err := Open(t.TempDir(), 1, zerolog.Nop())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer ps.Close()

	got, err := ps.Get([]byte("missing"))
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != nil {
		t.Fatalf("Get() = %v, want nil", got)
	}
}

func TestPartitionedStoreRoutingIsStable(t *testing.T) {
	ps, err := Open(t.TempDir(), 8, zerolog.Nop())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer ps.Close()

	key := []byte("some-key")
	first := ps.PartitionFor(key)
	second := ps.PartitionFor(key)
	if first != second {
		t.Fatalf("PartitionFor() not stable: %d != %d", first, second)
	}
	if first < 0 || first >= ps.Partitions() {
		t.Fatalf("PartitionFor() = %d, out of range [0, %d)", first, ps.Partitions())
	}
}

func TestPartitionedStoreSinglePartitionDegenerate(t *testing.T) {
	ps, err := Open(t.TempDir(), 0, zerolog.Nop())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer ps.Close()

	if ps.Partitions() != 1 {
		t.Fatalf("Partitions() = %d, want 1 when opened with 0", ps.Partitions())
	}
}

func TestPartitionedStoreApplyBatchSpansMultiplePartitions(t *testing.T) {
	ps, err := Open(t.TempDir(), 4, zerolog.Nop())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer ps.Close()

	kvs := make(map[string][]byte)
	for i := 0; i < 50; i++ {
		kvs[string([]byte{byte(i), byte(i * 7)})] = []byte{byte(i)}
	}

	if err := ps.ApplyBatch(kvs); err != nil {
		t.Fatalf("ApplyBatch() error = %v", err)
	}

	for k, v := range kvs {
		got, err := ps.Get([]byte(k))
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if string(got) != string(v) {
			t.Fatalf("Get(%q) = %q, want %q", k, got, v)
		}
	}
}
