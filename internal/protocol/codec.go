package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/DeltaLaboratory/kvdb/internal/kvdberr"
)

const (
	nullTag byte = 0xFF
	setTag  byte = 0x00
)

// Marshal encodes a Message into the tagged binary body described by the
// wire protocol: id (8 bytes), kind (1 byte), then command or response body.
func Marshal(msg *Message) ([]byte, error) {
	buf := make([]byte, 0, 64)
	buf = binary.BigEndian.AppendUint64(buf, msg.ID)
	buf = append(buf, byte(msg.Kind))

	switch msg.Kind {
	case KindRequest:
		if msg.Command == nil {
			return nil, kvdberr.New(kvdberr.Internal, "request message missing command")
		}
		buf = appendString(buf, msg.Command.Name)
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(msg.Command.Parameters)))
		for _, p := range msg.Command.Parameters {
			buf = binary.BigEndian.AppendUint32(buf, uint32(len(p)))
			buf = append(buf, p...)
		}
	case KindResponse:
		if msg.Response == nil {
			return nil, kvdberr.New(kvdberr.Internal, "response message missing response")
		}
		buf = append(buf, byte(msg.Response.Code))
		buf = appendString(buf, msg.Response.Message)
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(msg.Response.Result)))
		for _, r := range msg.Response.Result {
			if r == nil {
				buf = append(buf, nullTag)
				continue
			}
			buf = append(buf, setTag)
			buf = binary.BigEndian.AppendUint32(buf, uint32(len(r)))
			buf = append(buf, r...)
		}
	default:
		return nil, kvdberr.New(kvdberr.Internal, fmt.Sprintf("unknown message kind %d", msg.Kind))
	}

	return buf, nil
}

// Unmarshal decodes a Message from a frame payload produced by Marshal.
func Unmarshal(b []byte) (*Message, error) {
	r := &reader{buf: b}

	id, err := r.uint64()
	if err != nil {
		return nil, wireErr(err)
	}
	kindByte, err := r.byte()
	if err != nil {
		return nil, wireErr(err)
	}

	msg := &Message{ID: id, Kind: Kind(kindByte)}

	switch msg.Kind {
	case KindRequest:
		name, err := r.string()
		if err != nil {
			return nil, wireErr(err)
		}
		count, err := r.uint32()
		if err != nil {
			return nil, wireErr(err)
		}
		params := make([][]byte, 0, count)
		for i := uint32(0); i < count; i++ {
			p, err := r.bytes32()
			if err != nil {
				return nil, wireErr(err)
			}
			params = append(params, p)
		}
		msg.Command = &Command{Name: name, Parameters: params}
	case KindResponse:
		codeByte, err := r.byte()
		if err != nil {
			return nil, wireErr(err)
		}
		message, err := r.string()
		if err != nil {
			return nil, wireErr(err)
		}
		count, err := r.uint32()
		if err != nil {
			return nil, wireErr(err)
		}
		result := make([][]byte, 0, count)
		for i := uint32(0); i < count; i++ {
			tag, err := r.byte()
			if err != nil {
				return nil, wireErr(err)
			}
			if tag == nullTag {
				result = append(result, nil)
				continue
			}
			v, err := r.bytes32()
			if err != nil {
				return nil, wireErr(err)
			}
			result = append(result, v)
		}
		msg.Response = &Response{Code: Code(codeByte), Message: message, Result: result}
	default:
		return nil, kvdberr.New(kvdberr.Wire, fmt.Sprintf("unknown message kind %d", kindByte))
	}

	if !r.exhausted() {
		return nil, kvdberr.New(kvdberr.Wire, "trailing bytes after message body")
	}

	return msg, nil
}

func appendString(buf []byte, s string) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

func wireErr(err error) error {
	return kvdberr.Wrap(kvdberr.Wire, "malformed message body", err)
}

// reader is a small cursor over a decode buffer; kept private since the
// wire format is an implementation detail of this package.
type reader struct {
	buf []byte
	pos int
}

func (r *reader) need(n int) error {
	if r.pos+n > len(r.buf) {
		return fmt.Errorf("need %d bytes, have %d", n, len(r.buf)-r.pos)
	}
	return nil
}

func (r *reader) byte() (byte, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) uint32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *reader) uint64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v, nil
}

func (r *reader) bytes32() ([]byte, error) {
	n, err := r.uint32()
	if err != nil {
		return nil, err
	}
	if err := r.need(int(n)); err != nil {
		return nil, err
	}
	v := make([]byte, n)
	copy(v, r.buf[r.pos:r.pos+int(n)])
	r.pos += int(n)
	return v, nil
}

func (r *reader) string() (string, error) {
	b, err := r.bytes32()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *reader) exhausted() bool {
	return r.pos == len(r.buf)
}
