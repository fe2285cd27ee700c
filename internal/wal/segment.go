package wal

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"

	"github.com/DeltaLaboratory/kvdb/internal/kvdberr"
)

// segment is one append-only wal.NNN file. Entries are framed with a u32
// big-endian length prefix followed by the body, which itself ends in the
// entry's own crc32.
type segment struct {
	f *os.File
}

func openSegment(path string) (*segment, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open wal segment %s: %w", path, err)
	}
	return &segment{f: f}, nil
}

// appendEntry writes one framed entry and fsyncs the segment file before
// returning, so a successful call means the entry is durable.
func (s *segment) appendEntry(e Entry) error {
	body := e.encode()

	lenPrefix := make([]byte, 4)
	binary.BigEndian.PutUint32(lenPrefix, uint32(len(body)))

	if _, err := s.f.Write(lenPrefix); err != nil {
		return fmt.Errorf("failed to write wal frame length: %w", err)
	}
	if _, err := s.f.Write(body); err != nil {
		return fmt.Errorf("failed to write wal frame body: %w", err)
	}
	return s.f.Sync()
}

func (s *segment) close() error {
	return s.f.Close()
}

// readAllEntries replays every well-formed entry in the segment from the
// start of the file. It stops at the first malformed frame (truncated
// length prefix, truncated body, or bad crc) and discards anything after
// it: a corrupt entry truncates the log at that offset.
func readAllEntries(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open wal segment %s: %w", path, err)
	}
	defer f.Close()

	var entries []Entry
	lenBuf := make([]byte, 4)
	for {
		if _, err := io.ReadFull(f, lenBuf); err != nil {
			break // EOF or truncated length prefix: stop here
		}
		bodyLen := binary.BigEndian.Uint32(lenBuf)
		body := make([]byte, bodyLen)
		if _, err := io.ReadFull(f, body); err != nil {
			break // truncated body: discard the dangling frame
		}

		entry, err := decodeEntry(body)
		if err != nil {
			break // bad crc or malformed body: truncate here
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

// readMeta reads the last committed LSN from wal.meta, returning 0 if the
// file does not yet exist. A crc mismatch is a fatal recovery error, since
// meta corruption means durability cannot be trusted.
func readMeta(path string) (uint64, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read wal meta: %w", err)
	}
	if len(b) != 12 {
		return 0, kvdberr.New(kvdberr.WAL, "wal meta has unexpected size")
	}

	lsn := binary.BigEndian.Uint64(b[:8])
	wantCRC := binary.BigEndian.Uint32(b[8:])
	if crc32.ChecksumIEEE(b[:8]) != wantCRC {
		return 0, kvdberr.New(kvdberr.WAL, "wal meta crc mismatch")
	}
	return lsn, nil
}

// writeMetaAtomic rewrites wal.meta via write-to-temp + rename + fsync on
// the parent directory, so a crash mid-write cannot leave a partially
// written meta file.
func writeMetaAtomic(path string, lsn uint64) error {
	buf := make([]byte, 12)
	binary.BigEndian.PutUint64(buf[:8], lsn)
	binary.BigEndian.PutUint32(buf[8:], crc32.ChecksumIEEE(buf[:8]))

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf, 0o644); err != nil {
		return fmt.Errorf("failed to write wal meta temp file: %w", err)
	}
	tf, err := os.Open(tmp)
	if err != nil {
		return fmt.Errorf("failed to reopen wal meta temp file: %w", err)
	}
	if err := tf.Sync(); err != nil {
		tf.Close()
		return fmt.Errorf("failed to fsync wal meta temp file: %w", err)
	}
	tf.Close()

	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to rename wal meta into place: %w", err)
	}

	dir, err := os.Open(filepath.Dir(path))
	if err != nil {
		return fmt.Errorf("failed to open wal meta directory: %w", err)
	}
	defer dir.Close()
	return dir.Sync()
}
