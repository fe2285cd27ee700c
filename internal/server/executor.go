package server

import (
	"github.com/DeltaLaboratory/kvdb/internal/protocol"
	"github.com/DeltaLaboratory/kvdb/internal/session"
)

// Fn is one command's handler: a pure function of the server context, the
// invoking session, and the parsed command.
type Fn func(ctx *Context, sess *session.Session, cmd *protocol.Command) (*protocol.Response, error)

// Entry pairs a handler with its admission class. Admin commands are only
// reachable on the manager port regardless of ready state.
type Entry struct {
	Fn    Fn
	Admin bool
}

// registry is the explicit command_name → handler table: one authoritative
// list built at init, so an unregistered command name is a straightforward
// map miss rather than something that could silently fall through.
var registry = map[string]Entry{}

func register(name string, admin bool, fn Fn) {
	registry[name] = Entry{Fn: fn, Admin: admin}
}

func Lookup(name string) (Entry, bool) {
	e, ok := registry[name]
	return e, ok
}

func init() {
	register("USE", false, cmdUse)
	register("CREATE_DB", true, cmdCreateDB)
	register("ENABLE_DB", true, cmdEnableDB)
	register("DISABLE_DB", true, cmdDisableDB)
	register("EXISTS", false, cmdExists)
	register("GET", false, cmdGet)
	register("PUT", false, cmdPut)
	register("BATCH_BEGIN", false, cmdBatchBegin)
	register("BATCH_ABORT", false, cmdBatchAbort)
	register("BATCH_COMMIT", false, cmdBatchCommit)
	register("CLUSTER_INFO", false, cmdClusterInfo)
	register("SHOW_DBS", true, cmdShowDBs)
}
