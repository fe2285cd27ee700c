package server

import (
	"context"
	"errors"
	"io"
	"net"
	"runtime"
	"sync"

	"github.com/rs/zerolog"

	"github.com/DeltaLaboratory/kvdb/internal/protocol"
	"github.com/DeltaLaboratory/kvdb/internal/wire"
)

// Listener pairs the two TCP listeners the service needs: the public
// service port (open-commands-only, gated on readiness) and the
// loopback-only manager port (admits admin commands). One goroutine per
// connection, fanning command dispatch out across a bounded worker pool.
type Listener struct {
	ctx *Context

	serviceAddr string
	managerAddr string

	sem chan struct{}

	logger zerolog.Logger
}

// NewListener bounds concurrent command dispatch across every connection
// to 2×NumCPU workers, the way a fixed-size thread pool would, without
// limiting how many connections may be held open idle.
func NewListener(ctx *Context, serviceAddr, managerAddr string, logger zerolog.Logger) *Listener {
	workers := 2 * runtime.NumCPU()
	if workers < 2 {
		workers = 2
	}
	return &Listener{
		ctx:         ctx,
		serviceAddr: serviceAddr,
		managerAddr: managerAddr,
		sem:         make(chan struct{}, workers),
		logger:      logger.With().Str("layer", "listener").Logger(),
	}
}

// Run opens both listeners and serves until ctx is cancelled or either
// listener fails to accept.
func (l *Listener) Run(ctx context.Context) error {
	serviceLn, err := net.Listen("tcp", l.serviceAddr)
	if err != nil {
		return err
	}
	defer serviceLn.Close()

	managerLn, err := net.Listen("tcp", l.managerAddr)
	if err != nil {
		return err
	}
	defer managerLn.Close()

	l.logger.Info().Str("service", l.serviceAddr).Str("manager", l.managerAddr).Msg("listening")

	errCh := make(chan error, 2)
	go func() { errCh <- l.serve(ctx, serviceLn, false) }()
	go func() { errCh <- l.serve(ctx, managerLn, true) }()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

func (l *Listener) serve(ctx context.Context, ln net.Listener, isManager bool) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go l.handleConn(conn, isManager)
	}
}

// connSink writes framed responses back to a connection, silently dropping
// writes once the connection is closed. Satisfies session.Sink.
type connSink struct {
	mu     sync.Mutex
	conn   net.Conn
	closed bool
}

func (s *connSink) Publish(payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if _, err := s.conn.Write(wire.Encode(payload)); err != nil {
		s.closed = true
	}
}

func (s *connSink) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.conn.Close()
}

func (l *Listener) handleConn(conn net.Conn, isManager bool) {
	sourceKey := conn.RemoteAddr().String()
	sink := &connSink{conn: conn}
	defer sink.close()
	defer l.ctx.RemoveSession(sourceKey)

	l.ctx.Session(sourceKey, sink)

	decoder := wire.NewDecoder(conn, wire.DefaultMaxFrameSize)
	for {
		frame, err := decoder.Next()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				l.logger.Debug().Err(err).Str("peer", sourceKey).Msg("connection closed")
			}
			return
		}

		msg, err := protocol.Unmarshal(frame)
		if err != nil {
			l.logger.Warn().Err(err).Str("peer", sourceKey).Msg("failed to decode message")
			continue
		}

		l.sem <- struct{}{}
		resp := l.ctx.ProcessCommand(sourceKey, isManager, msg)
		<-l.sem

		payload, err := protocol.Marshal(resp)
		if err != nil {
			l.logger.Error().Err(err).Str("peer", sourceKey).Msg("failed to encode response")
			continue
		}
		sink.Publish(payload)
	}
}
