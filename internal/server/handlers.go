package server

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/DeltaLaboratory/kvdb/internal/kvdberr"
	"github.com/DeltaLaboratory/kvdb/internal/protocol"
	"github.com/DeltaLaboratory/kvdb/internal/session"
)

func cmdUse(ctx *Context, sess *session.Session, cmd *protocol.Command) (*protocol.Response, error) {
	if len(cmd.Parameters) != 1 {
		return nil, kvdberr.New(kvdberr.ArgInvalid, "USE requires exactly one argument")
	}
	name := string(cmd.Parameters[0])

	db, ok := ctx.Database(name)
	if !ok || !db.Enabled() {
		return nil, kvdberr.New(kvdberr.NoSuchDB, name)
	}
	sess.SetDB(db)
	return &protocol.Response{Code: protocol.CodeSuccess}, nil
}

func cmdCreateDB(ctx *Context, _ *session.Session, cmd *protocol.Command) (*protocol.Response, error) {
	if len(cmd.Parameters) != 1 {
		return nil, kvdberr.New(kvdberr.ArgInvalid, "CREATE_DB requires exactly one argument")
	}
	name := string(cmd.Parameters[0])
	if !isValidDBName(name) {
		return nil, kvdberr.New(kvdberr.Config, "INVALID_NAME: "+name)
	}

	if _, err := ctx.RegisterDatabase(name, ctx.cfg.DefaultPartitions, true); err != nil {
		return nil, err
	}
	return &protocol.Response{Code: protocol.CodeSuccess}, nil
}

func cmdEnableDB(ctx *Context, _ *session.Session, cmd *protocol.Command) (*protocol.Response, error) {
	return setEnabled(ctx, cmd, true)
}

func cmdDisableDB(ctx *Context, _ *session.Session, cmd *protocol.Command) (*protocol.Response, error) {
	return setEnabled(ctx, cmd, false)
}

func setEnabled(ctx *Context, cmd *protocol.Command, enabled bool) (*protocol.Response, error) {
	if len(cmd.Parameters) != 1 {
		return nil, kvdberr.New(kvdberr.ArgInvalid, "requires exactly one argument")
	}
	name := string(cmd.Parameters[0])
	db, ok := ctx.Database(name)
	if !ok {
		return nil, kvdberr.New(kvdberr.NoSuchDB, name)
	}
	db.SetEnabled(enabled)
	return &protocol.Response{Code: protocol.CodeSuccess}, nil
}

func cmdExists(_ *Context, sess *session.Session, cmd *protocol.Command) (*protocol.Response, error) {
	present, err := sess.Exists(cmd.Parameters)
	if err != nil {
		return nil, err
	}
	result := make([][]byte, len(present))
	for i, p := range present {
		if p {
			result[i] = []byte{1}
		} else {
			result[i] = []byte{0}
		}
	}
	return &protocol.Response{Code: protocol.CodeSuccess, Result: result}, nil
}

func cmdGet(_ *Context, sess *session.Session, cmd *protocol.Command) (*protocol.Response, error) {
	values, err := sess.Get(cmd.Parameters)
	if err != nil {
		return nil, err
	}
	return &protocol.Response{Code: protocol.CodeSuccess, Result: values}, nil
}

func cmdPut(_ *Context, sess *session.Session, cmd *protocol.Command) (*protocol.Response, error) {
	if len(cmd.Parameters)%2 != 0 {
		return nil, kvdberr.New(kvdberr.ArgInvalid, "PUT requires an even number of arguments")
	}
	kvs := make(map[string][]byte, len(cmd.Parameters)/2)
	for i := 0; i < len(cmd.Parameters); i += 2 {
		kvs[string(cmd.Parameters[i])] = cmd.Parameters[i+1]
	}
	if err := sess.Put(kvs); err != nil {
		return nil, err
	}
	return &protocol.Response{Code: protocol.CodeSuccess}, nil
}

func cmdBatchBegin(_ *Context, sess *session.Session, _ *protocol.Command) (*protocol.Response, error) {
	sess.BatchBegin()
	return &protocol.Response{Code: protocol.CodeSuccess}, nil
}

func cmdBatchAbort(_ *Context, sess *session.Session, _ *protocol.Command) (*protocol.Response, error) {
	sess.BatchAbort()
	return &protocol.Response{Code: protocol.CodeSuccess}, nil
}

func cmdBatchCommit(_ *Context, sess *session.Session, cmd *protocol.Command) (*protocol.Response, error) {
	expected := -1
	if len(cmd.Parameters) == 1 {
		n, err := parseUint(cmd.Parameters[0])
		if err != nil {
			return nil, kvdberr.New(kvdberr.ArgInvalid, "BATCH_COMMIT expected_size must be a non-negative integer")
		}
		expected = n
	} else if len(cmd.Parameters) > 1 {
		return nil, kvdberr.New(kvdberr.ArgInvalid, "BATCH_COMMIT takes at most one argument")
	}

	if expected < 0 {
		// no explicit size was given: commit whatever is currently buffered.
		expected = sess.BufferedSize()
	}

	if err := sess.BatchCommit(expected); err != nil {
		return nil, err
	}
	return &protocol.Response{Code: protocol.CodeSuccess}, nil
}

func cmdClusterInfo(ctx *Context, _ *session.Session, _ *protocol.Command) (*protocol.Response, error) {
	descriptor := ctx.cluster.LocalDescriptor()
	result := make([][]byte, 0, len(descriptor))
	for name, peers := range descriptor {
		result = append(result, []byte(fmt.Sprintf("%s=%s", name, strings.Join(peers, ","))))
	}
	return &protocol.Response{Code: protocol.CodeSuccess, Result: result}, nil
}

func cmdShowDBs(ctx *Context, _ *session.Session, _ *protocol.Command) (*protocol.Response, error) {
	dbs := ctx.ListDatabases()
	result := make([][]byte, 0, len(dbs))
	for _, db := range dbs {
		if db.Enabled {
			result = append(result, []byte(db.Name))
		}
	}
	return &protocol.Response{Code: protocol.CodeSuccess, Result: result}, nil
}

// isValidDBName mirrors internal/query/parser.go's isValidIdentifier rule
// (letter-leading, alphanumeric/underscore) — the same shape of identifier
// validation, applied here to database names instead of query fields, and
// additionally accepting '-' after the first character.
func isValidDBName(s string) bool {
	if len(s) == 0 || !unicode.IsLetter(rune(s[0])) {
		return false
	}
	for _, ch := range s[1:] {
		if !unicode.IsLetter(ch) && !unicode.IsDigit(ch) && ch != '_' && ch != '-' {
			return false
		}
	}
	return true
}

func parseUint(b []byte) (int, error) {
	n := 0
	if len(b) == 0 {
		return 0, fmt.Errorf("empty integer")
	}
	for _, c := range b {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("invalid digit")
		}
		n = n*10 + int(c-'0')
	}
	return n, nil
}
