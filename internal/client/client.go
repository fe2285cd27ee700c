// Package client implements a minimal driver for the wire protocol, used by
// cmd/kvdbctl and cmd/bench/throughput: one struct, one constructor dialing
// an address, a Close that tears the connection down, speaking
// internal/wire + internal/protocol directly rather than through any
// RPC framework.
package client

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/DeltaLaboratory/kvdb/internal/protocol"
	"github.com/DeltaLaboratory/kvdb/internal/wire"
)

// Client is a single connection to either a kvdbd service port or its
// manager port; callers needing admin commands should dial the manager
// port directly.
type Client struct {
	conn    net.Conn
	decoder *wire.Decoder

	mu     sync.Mutex
	nextID uint64
}

func Dial(addr string) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	return &Client{
		conn:    conn,
		decoder: wire.NewDecoder(conn, wire.DefaultMaxFrameSize),
	}, nil
}

// Call sends one command and blocks for its response. Concurrent calls on
// one Client are serialized by its mutex, so only one request is in flight
// at a time, matching the per-session single-flight dispatch the server
// assumes of one connection.
func (c *Client) Call(name string, params ...[]byte) (*protocol.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := atomic.AddUint64(&c.nextID, 1)
	req := protocol.NewRequest(id, name, params)

	payload, err := protocol.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	if _, err := c.conn.Write(wire.Encode(payload)); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	frame, err := c.decoder.Next()
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	msg, err := protocol.Unmarshal(frame)
	if err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if msg.Response == nil {
		return nil, fmt.Errorf("server returned a non-response message")
	}
	if msg.Response.Code == protocol.CodeError {
		return nil, fmt.Errorf("%s", msg.Response.Message)
	}
	return msg.Response, nil
}

func strs(ss ...string) [][]byte {
	out := make([][]byte, len(ss))
	for i, s := range ss {
		out[i] = []byte(s)
	}
	return out
}

func (c *Client) Use(db string) error {
	_, err := c.Call("USE", strs(db)...)
	return err
}

func (c *Client) Get(key []byte) ([]byte, error) {
	resp, err := c.Call("GET", key)
	if err != nil {
		return nil, err
	}
	if len(resp.Result) == 0 {
		return nil, nil
	}
	return resp.Result[0], nil
}

func (c *Client) Put(key, value []byte) error {
	_, err := c.Call("PUT", key, value)
	return err
}

func (c *Client) Close() error {
	return c.conn.Close()
}
