package main

import (
	"context"
	"log"
	"os/signal"
	"strings"
	"syscall"

	"typetrace/internal/config"
	"typetrace/internal/daemon"
	"typetrace/internal/ipc"
	"typetrace/internal/ledger"
	"typetrace/internal/logging"

	"github.com/google/uuid"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load("")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	store, err := ledger.Open(cfg, uuid.NewString())
	if err != nil {
		logger.Error("open task ledger", logging.Error(err))
		return
	}

	d, err := daemon.New(ctx, cfg, logger, store)
	if err != nil {
		logger.Error("create daemon", logging.Error(err))
		return
	}
	defer d.Close()

	ipcServer, err := ipc.NewServer(ctx, cfg.Paths.SocketPath, d, logger)
	if err != nil {
		logger.Error("start IPC server", logging.Error(err))
		return
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := d.Start(ctx); err != nil {
		if strings.Contains(err.Error(), "already running") {
			logger.Error("another instance holds the lock", logging.Error(err))
			return
		}
		logger.Warn("daemon start", logging.Error(err))
	}

	select {
	case <-ctx.Done():
	case <-d.ShutdownRequested():
	}
	logger.Info("typetraced shutting down")
}
