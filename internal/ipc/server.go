package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"strings"
	"sync"
	"time"

	"log/slog"

	"typetrace/internal/daemon"
	"typetrace/internal/logging"
	"typetrace/internal/memory"
	"typetrace/internal/optimize"
)

// Server exposes daemon control via JSON-RPC over a unix domain socket.
type Server struct {
	path      string
	daemon    *daemon.Daemon
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logger, ctx: ctx}
	if err := rpcServer.RegisterName("Typetrace", srv); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		daemon:    d,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "ipc_accept_failed"),
					logging.String("impact", "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "Check socket permissions and restart the daemon if needed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "ipc_socket_cleanup_failed"),
			logging.String("impact", "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "Remove the socket file manually or rerun typetrace stop"))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) log() *slog.Logger {
	if s.logger == nil {
		return logging.NewNop()
	}
	return s.logger.With(logging.String(logging.FieldComponent, "ipc"))
}

func (s *service) MemoryStatus(_ MemoryStatusRequest, resp *MemoryStatusResponse) error {
	info, level := s.daemon.MemoryStatus(s.ctx)
	resp.Success = true
	resp.Memory = fromMemoryInfo(info)
	resp.Level = level.String()
	resp.Timestamp = time.Now()
	return nil
}

func (s *service) OptimizeMemory(req OptimizeRequest, resp *OptimizeResponse) error {
	optReq := optimize.Request{Emergency: req.Emergency}
	if trimmed := strings.TrimSpace(req.Level); trimmed != "" {
		level, ok := memory.ParseLevel(trimmed)
		if !ok {
			return fmt.Errorf("unknown optimization level %q", req.Level)
		}
		optReq.Level = &level
	}
	result := s.daemon.Optimize(s.ctx, optReq)
	resp.Result = fromOptimization(result)
	s.log().Info("optimization requested via IPC",
		logging.String(logging.FieldEventType, "memory_optimize"),
		logging.String(logging.FieldLevel, resp.Result.Level),
		logging.Bool("success", result.Success),
		logging.Bool("emergency", result.Emergency))
	return nil
}

func (s *service) ForceGC(_ ForceGCRequest, resp *ForceGCResponse) error {
	result := s.daemon.ForceGC(s.ctx)
	resp.Success = result.Success
	resp.FreedBytes = result.FreedBytes
	resp.FreedMB = result.FreedMB
	resp.Timestamp = result.Timestamp
	resp.Error = result.Error
	resp.Note = result.Note
	return nil
}

func (s *service) GPUStatus(_ GPUStatusRequest, resp *GPUStatusResponse) error {
	info := s.daemon.GPUStatus(s.ctx)
	resp.Success = true
	resp.Available = info.Available
	resp.GPU = fromGPUInfo(info)
	resp.Timestamp = time.Now()
	return nil
}

func (s *service) SetComputeMode(req SetComputeModeRequest, resp *SetComputeModeResponse) error {
	enabled, detail := s.daemon.SetComputeMode(req.Enable)
	resp.Success = true
	resp.Enabled = enabled
	resp.Detail = detail
	s.log().Info("compute mode changed via IPC",
		logging.String(logging.FieldEventType, "compute_mode"),
		logging.Bool("enabled", enabled))
	return nil
}

func (s *service) Compute(req ComputeRequest, resp *ComputeResponse) error {
	if strings.TrimSpace(req.ComputationType) == "" {
		return errors.New("compute requires computation_type")
	}
	result := s.daemon.Compute(s.ctx, req.ComputationType, req.Data)
	resp.Result = fromComputation(result)
	return nil
}

func (s *service) SubmitTask(req SubmitTaskRequest, resp *SubmitTaskResponse) error {
	if strings.TrimSpace(req.TaskType) == "" {
		return errors.New("submit requires task_type")
	}
	future, err := s.daemon.SubmitTask(s.ctx, req.TaskType, req.Data)
	if err != nil {
		return err
	}
	resp.TaskID = future.ID()
	resp.TaskType = req.TaskType

	if req.WaitMillis <= 0 {
		return nil
	}
	waitCtx, cancel := context.WithTimeout(s.ctx, time.Duration(req.WaitMillis)*time.Millisecond)
	defer cancel()
	result, err := future.Wait(waitCtx)
	if err != nil {
		// The task keeps running; the caller polls history for the outcome.
		return nil
	}
	converted := fromTaskResult(result)
	resp.Settled = true
	resp.Result = &converted
	return nil
}

func (s *service) TaskHistory(req TaskHistoryRequest, resp *TaskHistoryResponse) error {
	entries, err := s.daemon.TaskHistory(s.ctx, req.Limit)
	if err != nil {
		return err
	}
	resp.Entries = make([]TaskHistoryEntry, 0, len(entries))
	for _, entry := range entries {
		resp.Entries = append(resp.Entries, fromLedgerEntry(entry))
	}
	return nil
}

func (s *service) PoolStats(_ PoolStatsRequest, resp *PoolStatsResponse) error {
	resp.Stats = PoolStats(s.daemon.PoolStats())
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.daemon.Status(s.ctx)
	resp.Available = true
	resp.Running = status.Running
	resp.FallbackMode = status.FallbackMode
	resp.FallbackReason = status.FallbackReason
	resp.Backend = status.BackendName
	resp.ComputeAccel = status.ComputeAccel
	resp.Version = status.Version
	resp.PID = status.PID
	resp.SessionID = status.SessionID
	resp.UptimeMS = status.UptimeMS
	resp.SocketPath = status.SocketPath
	resp.LedgerPath = status.LedgerPath
	resp.LockPath = status.LockPath
	resp.Memory = fromMemoryInfo(status.Memory)
	resp.Level = status.Level.String()
	resp.GPU = fromGPUInfo(status.GPU)
	resp.Pool = PoolStats(status.Pool)
	resp.Ledger = LedgerHealth(status.Ledger)
	resp.Dependencies = make([]DependencyStatus, 0, len(status.Dependencies))
	for _, dep := range status.Dependencies {
		resp.Dependencies = append(resp.Dependencies, fromDependency(dep))
	}
	resp.Timestamp = time.Now()
	return nil
}

func (s *service) Shutdown(_ ShutdownRequest, resp *ShutdownResponse) error {
	s.log().Info("shutdown requested via IPC",
		logging.String(logging.FieldEventType, "daemon_stop"))
	s.daemon.RequestShutdown()
	resp.Stopped = true
	return nil
}
