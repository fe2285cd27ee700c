package client

import (
	"net"
	"testing"

	"github.com/DeltaLaboratory/kvdb/internal/protocol"
	"github.com/DeltaLaboratory/kvdb/internal/wire"
)

// startFakeServer accepts one connection and answers every request with
// handle, so Client's framing and error-propagation can be tested without
// internal/server's full Context.
func startFakeServer(t *testing.T, handle func(*protocol.Message) *protocol.Message) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen error = %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		decoder := wire.NewDecoder(conn, wire.DefaultMaxFrameSize)
		for {
			frame, err := decoder.Next()
			if err != nil {
				return
			}
			msg, err := protocol.Unmarshal(frame)
			if err != nil {
				return
			}
			resp := handle(msg)
			payload, err := protocol.Marshal(resp)
			if err != nil {
				return
			}
			if _, err := conn.Write(wire.Encode(payload)); err != nil {
				return
			}
		}
	}()

	return ln.Addr().String()
}

func TestClientCallSuccess(t *testing.T) {
	addr := startFakeServer(t, func(msg *protocol.Message) *protocol.Message {
		if msg.Command.Name != "GET" {
			t.Errorf("unexpected command %q", msg.Command.Name)
		}
		return protocol.Success(msg.ID, [][]byte{[]byte("value")})
	})

	c, err := Dial(addr)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer c.Close()

	got, err := c.Get([]byte("key"))
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got) != "value" {
		t.Fatalf("Get() = %q, want %q", got, "value")
	}
}

func TestClientCallErrorSurfacesAsGoError(t *testing.T) {
	addr := startFakeServer(t, func(msg *protocol.Message) *protocol.Message {
		return protocol.ErrorMessage(msg.ID, "no such database")
	})

	c, err := Dial(addr)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer c.Close()

	if err := c.Use("ghost"); err == nil {
		t.Fatal("expected an error for a server-reported failure")
	}
}

func TestClientGetOnEmptyResultReturnsNil(t *testing.T) {
	addr := startFakeServer(t, func(msg *protocol.Message) *protocol.Message {
		return protocol.Success(msg.ID, nil)
	})

	c, err := Dial(addr)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer c.Close()

	got, err := c.Get([]byte("key"))
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != nil {
		t.Fatalf("Get() = %v, want nil", got)
	}
}

func TestClientRequestIDsIncreaseMonotonically(t *testing.T) {
	var seenIDs []uint64
	addr := startFakeServer(t, func(msg *protocol.Message) *protocol.Message {
		seenIDs = append(seenIDs, msg.ID)
		return protocol.Success(msg.ID, nil)
	})

	c, err := Dial(addr)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer c.Close()

	for i := 0; i < 3; i++ {
		if _, err := c.Call("PING"); err != nil {
			t.Fatalf("Call() error = %v", err)
		}
	}

	for i := 1; i < len(seenIDs); i++ {
		if seenIDs[i] <= seenIDs[i-1] {
			t.Fatalf("request IDs not strictly increasing: %v", seenIDs)
		}
	}
}
