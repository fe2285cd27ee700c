package protocol

import (
	"bytes"
	"testing"
)

// messagesEqual compares two messages field by field, treating a nil
// parameter or result list as equal to an empty one: Unmarshal always
// allocates a non-nil list regardless of count, so a literal
// reflect.DeepEqual against a hand-built nil-list fixture would fail on a
// distinction the wire format itself does not carry. Individual entries
// still distinguish nil from empty, since the null tag does carry that.
func messagesEqual(a, b *Message) bool {
	if a.ID != b.ID || a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindRequest:
		if a.Command.Name != b.Command.Name {
			return false
		}
		return byteSlicesEqual(a.Command.Parameters, b.Command.Parameters)
	case KindResponse:
		if a.Response.Code != b.Response.Code || a.Response.Message != b.Response.Message {
			return false
		}
		return byteSlicesEqual(a.Response.Result, b.Response.Result)
	}
	return false
}

func byteSlicesEqual(a, b [][]byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if (a[i] == nil) != (b[i] == nil) {
			return false
		}
		if !bytes.Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

func TestMarshalUnmarshalRequest(t *testing.T) {
	tests := []struct {
		name string
		msg  *Message
	}{
		{
			name: "no parameters",
			msg:  NewRequest(1, "SHOW_DBS", nil),
		},
		{
			name: "single parameter",
			msg:  NewRequest(2, "USE", [][]byte{[]byte("default")}),
		},
		{
			name: "multiple parameters with empty byte string",
			msg:  NewRequest(3, "PUT", [][]byte{[]byte("key"), {}, []byte("key2"), []byte("value2")}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded, err := Marshal(tt.msg)
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}

			decoded, err := Unmarshal(encoded)
			if err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}

			if !messagesEqual(decoded, tt.msg) {
				t.Fatalf("round trip mismatch: got %+v, want %+v", decoded, tt.msg)
			}
		})
	}
}

func TestMarshalUnmarshalResponse(t *testing.T) {
	tests := []struct {
		name string
		msg  *Message
	}{
		{
			name: "success with no results",
			msg:  Success(1, nil),
		},
		{
			name: "success with mixed nil and set results",
			msg:  Success(2, [][]byte{[]byte("value"), nil, []byte("")}),
		},
		{
			name: "error response",
			msg:  ErrorMessage(3, "no such database"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded, err := Marshal(tt.msg)
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}

			decoded, err := Unmarshal(encoded)
			if err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}

			if !messagesEqual(decoded, tt.msg) {
				t.Fatalf("round trip mismatch: got %+v, want %+v", decoded, tt.msg)
			}
		})
	}
}

func TestUnmarshalNullTagPreservesNilVsEmpty(t *testing.T) {
	msg := Success(1, [][]byte{nil, {}})
	encoded, err := Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	decoded, err := Unmarshal(encoded)
	if err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if decoded.Response.Result[0] != nil {
		t.Fatalf("entry 0 = %v, want nil", decoded.Response.Result[0])
	}
	if decoded.Response.Result[1] == nil {
		t.Fatal("entry 1 = nil, want non-nil empty slice")
	}
	if len(decoded.Response.Result[1]) != 0 {
		t.Fatalf("entry 1 = %v, want empty", decoded.Response.Result[1])
	}
}

func TestUnmarshalRejectsTrailingBytes(t *testing.T) {
	msg := NewRequest(1, "SHOW_DBS", nil)
	encoded, err := Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	corrupted := append(encoded, 0x01, 0x02)
	if _, err := Unmarshal(corrupted); err == nil {
		t.Fatal("expected error for trailing bytes")
	}
}

func TestUnmarshalRejectsTruncatedBuffer(t *testing.T) {
	msg := NewRequest(1, "USE", [][]byte{[]byte("default")})
	encoded, err := Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	for _, n := range []int{0, 1, 5, len(encoded) - 1} {
		if _, err := Unmarshal(encoded[:n]); err == nil {
			t.Fatalf("expected error truncating to %d bytes", n)
		}
	}
}

func TestMarshalRejectsIncompleteMessage(t *testing.T) {
	if _, err := Marshal(&Message{Kind: KindRequest}); err == nil {
		t.Fatal("expected error for request with nil Command")
	}
	if _, err := Marshal(&Message{Kind: KindResponse}); err == nil {
		t.Fatal("expected error for response with nil Response")
	}
}
