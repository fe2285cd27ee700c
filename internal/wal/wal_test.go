package wal

import (
	"testing"

	"github.com/rs/zerolog"
)

type fakeApplier struct {
	name    string
	applied []map[string][]byte
}

func (f *fakeApplier) Name() string { return f.name }

func (f *fakeApplier) ApplyReplay(kvs map[string][]byte) error {
	f.applied = append(f.applied, kvs)
	return nil
}

func TestAppendAssignsMonotonicLSNs(t *testing.T) {
	w, err := Open(t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer w.Close()

	lsn1, err := w.Append("default", []KV{{Key: []byte("a"), Value: []byte("1")}})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	lsn2, err := w.Append("default", []KV{{Key: []byte("b"), Value: []byte("2")}})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	if lsn2 != lsn1+1 {
		t.Fatalf("lsn2 = %d, want %d", lsn2, lsn1+1)
	}
	if w.LastLSN() != lsn2 {
		t.Fatalf("LastLSN() = %d, want %d", w.LastLSN(), lsn2)
	}
}

func TestUpdateMetaIsNonDecreasing(t *testing.T) {
	w, err := Open(t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer w.Close()

	if err := w.UpdateMeta(5); err != nil {
		t.Fatalf("UpdateMeta(5) error = %v", err)
	}
	if err := w.UpdateMeta(2); err != nil {
		t.Fatalf("UpdateMeta(2) error = %v", err)
	}

	checkpoint, err := readMeta(w.metaPath())
	if err != nil {
		t.Fatalf("readMeta() error = %v", err)
	}
	if checkpoint != 5 {
		t.Fatalf("checkpoint = %d, want 5 (stale update must be a no-op)", checkpoint)
	}
}

func TestRecoverReplaysUncommittedTail(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	lsn1, err := w.Append("default", []KV{{Key: []byte("a"), Value: []byte("1")}})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if _, err := w.Append("default", []KV{{Key: []byte("b"), Value: []byte("2")}}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	// simulate a crash after the first entry's engine commit was checkpointed
	// but before the second entry's meta update landed.
	if err := w.UpdateMeta(lsn1); err != nil {
		t.Fatalf("UpdateMeta() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	w2, err := Open(dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("re-Open() error = %v", err)
	}
	defer w2.Close()

	applier := &fakeApplier{name: "default"}
	summaries, err := w2.Recover(map[string]Applier{"default": applier})
	if err != nil {
		t.Fatalf("Recover() error = %v", err)
	}

	if len(applier.applied) != 1 {
		t.Fatalf("applied %d entries, want 1 (only the uncheckpointed tail)", len(applier.applied))
	}
	if string(applier.applied[0]["b"]) != "2" {
		t.Fatalf("replayed entry = %v, want key b=2", applier.applied[0])
	}
	if len(summaries) != 1 || summaries[0].AppliedCount != 1 {
		t.Fatalf("summaries = %+v, want one summary with AppliedCount=1", summaries)
	}
}

func TestRecoverFailsOnUnknownDatabase(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	if _, err := w.Append("ghost", []KV{{Key: []byte("a"), Value: []byte("1")}}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	w2, err := Open(dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("re-Open() error = %v", err)
	}
	defer w2.Close()

	if _, err := w2.Recover(map[string]Applier{"default": &fakeApplier{name: "default"}}); err == nil {
		t.Fatal("expected error for entry referencing an unregistered database")
	}
}

func TestRecoverNoOpWhenFullyCheckpointed(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	lsn, err := w.Append("default", []KV{{Key: []byte("a"), Value: []byte("1")}})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := w.UpdateMeta(lsn); err != nil {
		t.Fatalf("UpdateMeta() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	w2, err := Open(dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("re-Open() error = %v", err)
	}
	defer w2.Close()

	applier := &fakeApplier{name: "default"}
	summaries, err := w2.Recover(map[string]Applier{"default": applier})
	if err != nil {
		t.Fatalf("Recover() error = %v", err)
	}
	if len(applier.applied) != 0 {
		t.Fatalf("applied %d entries, want 0", len(applier.applied))
	}
	if len(summaries) != 0 {
		t.Fatalf("summaries = %+v, want none", summaries)
	}
}
