// cmd/kvdbd/main.go
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/lesismal/arpc"
	alog "github.com/lesismal/arpc/log"
	"github.com/rs/zerolog"

	"github.com/DeltaLaboratory/kvdb/internal/cluster"
	"github.com/DeltaLaboratory/kvdb/internal/config"
	"github.com/DeltaLaboratory/kvdb/internal/kvdberr"
	"github.com/DeltaLaboratory/kvdb/internal/server"
	"github.com/DeltaLaboratory/kvdb/internal/wal"
)

// Exit codes: 0 clean shutdown, 1 config load/parse failure, 2 cluster
// handshake mismatch, 3 WAL recovery failure, 4 database engine open
// failure.
const (
	exitOK             = 0
	exitConfig         = 1
	exitClusterMismatch = 2
	exitRecoveryFailed = 3
	exitEngineFailed   = 4
)

// zerologALog adapts arpc's tiny logging interface onto a zerolog sub-logger.
type zerologALog struct {
	logger zerolog.Logger
}

func (a *zerologALog) SetLevel(level int) {
	switch level {
	case alog.LevelDebug:
		a.logger = a.logger.Level(zerolog.DebugLevel)
	case alog.LevelInfo:
		a.logger = a.logger.Level(zerolog.InfoLevel)
	case alog.LevelWarn:
		a.logger = a.logger.Level(zerolog.WarnLevel)
	case alog.LevelError:
		a.logger = a.logger.Level(zerolog.ErrorLevel)
	}
}

func (a *zerologALog) Debug(format string, v ...interface{}) { a.logger.Debug().Msgf(format, v...) }
func (a *zerologALog) Info(format string, v ...interface{})  { a.logger.Info().Msgf(format, v...) }
func (a *zerologALog) Warn(format string, v ...interface{})  { a.logger.Warn().Msgf(format, v...) }
func (a *zerologALog) Error(format string, v ...interface{}) { a.logger.Error().Msgf(format, v...) }

func main() {
	configDir := flag.String("config-dir", ".", "directory containing kvdb.conf, system/dblist, and cluster.conf")
	flag.Parse()

	logger := zerolog.New(zerolog.NewConsoleWriter()).Level(zerolog.DebugLevel).With().Timestamp().Logger()
	alog.DefaultLogger = &zerologALog{logger: logger.With().Str("layer", "arpc").Logger()}

	cfg, err := config.LoadKVDBConf(filepath.Join(*configDir, "kvdb.conf"))
	if err != nil {
		logger.Error().Err(err).Msg("failed to load kvdb.conf")
		os.Exit(exitConfig)
	}

	dbEntries, err := config.LoadDBList(filepath.Join(*configDir, "system", "dblist"))
	if err != nil {
		logger.Error().Err(err).Msg("failed to load system/dblist")
		os.Exit(exitConfig)
	}

	descriptor, err := config.LoadClusterConf(filepath.Join(*configDir, "cluster.conf"))
	if err != nil {
		logger.Error().Err(err).Msg("failed to load cluster.conf")
		os.Exit(exitConfig)
	}

	w, err := wal.Open(cfg.WALDir(), logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to open write-ahead log")
		os.Exit(exitEngineFailed)
	}
	defer w.Close()

	handshake := cluster.NewHandshake(cfg.ClusterAddr(), cluster.Descriptor(descriptor), logger)

	clusterSrv := arpc.NewServer()
	handshake.Register(clusterSrv.Handler)
	go func() {
		if err := clusterSrv.Run(cfg.ClusterAddr()); err != nil {
			logger.Error().Err(err).Msg("cluster rpc listener stopped")
		}
	}()
	defer clusterSrv.Stop()

	ctx := server.NewContext(cfg, w, handshake, logger)

	for _, entry := range dbEntries {
		if _, err := ctx.RegisterDatabase(entry.Name, entry.Partitions, entry.Enable); err != nil {
			logger.Error().Err(err).Str("db", entry.Name).Msg("failed to open database")
			os.Exit(exitEngineFailed)
		}
	}

	summaries, err := w.Recover(ctx.AllDatabases())
	if err != nil {
		logger.Error().Err(err).Msg("write-ahead log recovery failed")
		os.Exit(exitRecoveryFailed)
	}
	for _, s := range summaries {
		logger.Info().
			Int("segment", s.Segment).
			Uint64("lsn_from", s.LSNFrom).
			Uint64("lsn_to", s.LSNTo).
			Int("applied", s.AppliedCount).
			Msg("replayed wal segment")
	}

	// The listener starts before the handshake confirms so that, while a
	// peer is unreachable, CLUSTER_INFO is still reachable on the service
	// port and admin commands still work on the manager port; ProcessCommand
	// gates everything else on Ready() until SetReady(true) below.
	listener := server.NewListener(ctx, cfg.ServiceAddr(), cfg.ManagerAddr(), logger)

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	listenErr := make(chan error, 1)
	go func() { listenErr <- listener.Run(runCtx) }()

	if err := handshake.Confirm(runCtx); err != nil {
		cancel()
		if kvdberr.KindOf(err) == kvdberr.ClusterMismatch {
			logger.Error().Err(err).Msg("cluster descriptor mismatch")
			os.Exit(exitClusterMismatch)
		}
		logger.Error().Err(err).Msg("cluster handshake failed")
		os.Exit(exitClusterMismatch)
	}

	ctx.SetReady(true)
	logger.Info().Msg("ready")

	terminate := make(chan os.Signal, 1)
	signal.Notify(terminate, os.Interrupt, syscall.SIGTERM)

	select {
	case <-terminate:
		logger.Info().Msg("shutting down")
		cancel()
	case err := <-listenErr:
		if err != nil {
			logger.Error().Err(err).Msg("listener failed")
		}
		cancel()
		os.Exit(exitEngineFailed)
	}

	for name, db := range ctx.AllDatabases() {
		if closer, ok := db.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil {
				logger.Error().Err(err).Str("db", name).Msg("failed to close database")
			}
		}
	}

	os.Exit(exitOK)
}
