package wal

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/DeltaLaboratory/kvdb/internal/kvdberr"
)

// KV is one key/value pair recorded in a WAL entry's op list.
type KV struct {
	Key   []byte
	Value []byte
}

// Entry is a single WAL record: the database it targets and the set of
// blind-overwrite ops it durably covers, identified by a strictly
// monotonic LSN and guarded by a crc32 over lsn||db||ops.
type Entry struct {
	LSN uint64
	DB  string
	Ops []KV
}

// encode serializes an entry body (without the length prefix that the
// segment writer adds) as lsn(8) || dblen(4)||db || opcount(4) ||
// {keylen(4)||key||vallen(4)||val}* || crc32(4).
func (e Entry) encode() []byte {
	size := 8 + 4 + len(e.DB) + 4
	for _, op := range e.Ops {
		size += 4 + len(op.Key) + 4 + len(op.Value)
	}
	size += 4 // crc

	buf := make([]byte, 0, size)
	buf = binary.BigEndian.AppendUint64(buf, e.LSN)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(e.DB)))
	buf = append(buf, e.DB...)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(e.Ops)))
	for _, op := range e.Ops {
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(op.Key)))
		buf = append(buf, op.Key...)
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(op.Value)))
		buf = append(buf, op.Value...)
	}

	crc := crc32.ChecksumIEEE(buf)
	buf = binary.BigEndian.AppendUint32(buf, crc)
	return buf
}

// decodeEntry parses a body produced by encode, verifying the trailing crc32
// and reporting corruption so the segment reader can truncate at that point.
func decodeEntry(b []byte) (Entry, error) {
	if len(b) < 4 {
		return Entry{}, kvdberr.New(kvdberr.WAL, "entry too short")
	}
	body, wantCRC := b[:len(b)-4], binary.BigEndian.Uint32(b[len(b)-4:])
	if crc32.ChecksumIEEE(body) != wantCRC {
		return Entry{}, kvdberr.New(kvdberr.WAL, "crc mismatch")
	}

	pos := 0
	need := func(n int) error {
		if pos+n > len(body) {
			return kvdberr.New(kvdberr.WAL, "truncated entry body")
		}
		return nil
	}

	if err := need(8); err != nil {
		return Entry{}, err
	}
	lsn := binary.BigEndian.Uint64(body[pos:])
	pos += 8

	if err := need(4); err != nil {
		return Entry{}, err
	}
	dbLen := binary.BigEndian.Uint32(body[pos:])
	pos += 4
	if err := need(int(dbLen)); err != nil {
		return Entry{}, err
	}
	db := string(body[pos : pos+int(dbLen)])
	pos += int(dbLen)

	if err := need(4); err != nil {
		return Entry{}, err
	}
	opCount := binary.BigEndian.Uint32(body[pos:])
	pos += 4

	ops := make([]KV, 0, opCount)
	for i := uint32(0); i < opCount; i++ {
		if err := need(4); err != nil {
			return Entry{}, err
		}
		keyLen := binary.BigEndian.Uint32(body[pos:])
		pos += 4
		if err := need(int(keyLen)); err != nil {
			return Entry{}, err
		}
		key := append([]byte(nil), body[pos:pos+int(keyLen)]...)
		pos += int(keyLen)

		if err := need(4); err != nil {
			return Entry{}, err
		}
		valLen := binary.BigEndian.Uint32(body[pos:])
		pos += 4
		if err := need(int(valLen)); err != nil {
			return Entry{}, err
		}
		val := append([]byte(nil), body[pos:pos+int(valLen)]...)
		pos += int(valLen)

		ops = append(ops, KV{Key: key, Value: val})
	}

	if pos != len(body) {
		return Entry{}, kvdberr.New(kvdberr.WAL, "trailing bytes in entry body")
	}

	return Entry{LSN: lsn, DB: db, Ops: ops}, nil
}
