// Package server implements the server context, the network server, and the
// command executor registry: an explicit handler table plus RW-guarded
// database and session maps, following the connect/dispatch/disconnect shape
// of a classic TCP key-value service.
package server

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/DeltaLaboratory/kvdb/internal/cluster"
	"github.com/DeltaLaboratory/kvdb/internal/config"
	"github.com/DeltaLaboratory/kvdb/internal/database"
	"github.com/DeltaLaboratory/kvdb/internal/kvdberr"
	"github.com/DeltaLaboratory/kvdb/internal/protocol"
	"github.com/DeltaLaboratory/kvdb/internal/session"
	"github.com/DeltaLaboratory/kvdb/internal/storage"
	"github.com/DeltaLaboratory/kvdb/internal/wal"
)

// Context holds everything ProcessCommand needs to resolve a session, find
// a database, and route to an executor: the database registry, the session
// table, the shared WAL, and the config snapshot used by CREATE_DB to size
// and place new databases.
type Context struct {
	cfg *config.Config
	wal *wal.WAL

	dbMu sync.RWMutex
	dbs  map[string]*database.Database

	sessMu   sync.RWMutex
	sessions map[string]*session.Session

	cluster *cluster.Handshake
	ready   atomic.Bool

	logger zerolog.Logger
}

func NewContext(cfg *config.Config, w *wal.WAL, h *cluster.Handshake, logger zerolog.Logger) *Context {
	return &Context{
		cfg:      cfg,
		wal:      w,
		dbs:      make(map[string]*database.Database),
		sessions: make(map[string]*session.Session),
		cluster:  h,
		logger:   logger.With().Str("layer", "server").Logger(),
	}
}

func (c *Context) SetReady(ready bool) { c.ready.Store(ready) }
func (c *Context) Ready() bool         { return c.ready.Load() }

// RegisterDatabase opens (or reopens) partitions partitions under the
// configured data root and adds it to the registry; used both at boot, for
// every database configured in system/dblist, and by CREATE_DB.
func (c *Context) RegisterDatabase(name string, partitions uint16, enabled bool) (*database.Database, error) {
	c.dbMu.Lock()
	defer c.dbMu.Unlock()

	if _, exists := c.dbs[name]; exists {
		return nil, kvdberr.New(kvdberr.DBExists, name)
	}

	store, err := storage.Open(c.cfg.DatabasePath(name), partitions, c.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %q: %w", name, err)
	}

	db := database.New(name, store, c.wal)
	db.SetEnabled(enabled)
	c.dbs[name] = db
	return db, nil
}

func (c *Context) Database(name string) (*database.Database, bool) {
	c.dbMu.RLock()
	defer c.dbMu.RUnlock()
	db, ok := c.dbs[name]
	return db, ok
}

// AllDatabases implements wal.Applier lookup for recovery: a map from db
// name to the Applier interface each *database.Database already satisfies.
func (c *Context) AllDatabases() map[string]wal.Applier {
	c.dbMu.RLock()
	defer c.dbMu.RUnlock()
	out := make(map[string]wal.Applier, len(c.dbs))
	for name, db := range c.dbs {
		out[name] = db
	}
	return out
}

type DatabaseInfo struct {
	Name    string
	Enabled bool
}

func (c *Context) ListDatabases() []DatabaseInfo {
	c.dbMu.RLock()
	defer c.dbMu.RUnlock()
	out := make([]DatabaseInfo, 0, len(c.dbs))
	for name, db := range c.dbs {
		out = append(out, DatabaseInfo{Name: name, Enabled: db.Enabled()})
	}
	return out
}

// Session returns the session for sourceKey, creating one bound to sink if
// none exists yet: the listener calls it when it accepts a connection, before
// any command is read. ProcessCommand never creates a session.
func (c *Context) Session(sourceKey string, sink session.Sink) *session.Session {
	c.sessMu.Lock()
	defer c.sessMu.Unlock()

	if s, ok := c.sessions[sourceKey]; ok {
		return s
	}
	s := session.New(sourceKey, sink)
	c.sessions[sourceKey] = s
	return s
}

func (c *Context) RemoveSession(sourceKey string) {
	c.sessMu.Lock()
	defer c.sessMu.Unlock()
	delete(c.sessions, sourceKey)
}

// ProcessCommand resolves the session, checks admission (ready/admin gates),
// looks up the executor, and returns the response to publish. It does not
// publish the response itself — the caller owns the connection's sink.
func (c *Context) ProcessCommand(sourceKey string, isManagerPort bool, msg *protocol.Message) *protocol.Message {
	if msg.Kind != protocol.KindRequest || msg.Command == nil {
		return protocol.ErrorMessage(msg.ID, "expected a request message")
	}

	entry, ok := Lookup(msg.Command.Name)
	if !ok {
		return protocol.ErrorMessage(msg.ID, string(kvdberr.UnknownCommand)+": "+msg.Command.Name)
	}

	if entry.Admin && !isManagerPort {
		return protocol.ErrorMessage(msg.ID, string(kvdberr.UnknownCommand)+": admin-only command")
	}

	// the readiness gate exempts admin commands on the manager port and
	// CLUSTER_INFO on either port, so a client can tell why the node isn't
	// ready yet; every other command is NOT_READY on both ports until ready.
	adminOnManager := entry.Admin && isManagerPort
	if !c.ready.Load() && !adminOnManager && msg.Command.Name != "CLUSTER_INFO" {
		return protocol.ErrorMessage(msg.ID, string(kvdberr.NotReady))
	}

	c.sessMu.RLock()
	sess, ok := c.sessions[sourceKey]
	c.sessMu.RUnlock()
	if !ok {
		return protocol.ErrorMessage(msg.ID, "no session for connection")
	}

	resp, err := entry.Fn(c, sess, msg.Command)
	if err != nil {
		return protocol.ErrorMessage(msg.ID, err.Error())
	}
	return &protocol.Message{ID: msg.ID, Kind: protocol.KindResponse, Response: resp}
}
