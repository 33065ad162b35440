package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os/exec"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"typetrace/internal/gpu"
	"typetrace/internal/logging"
	"typetrace/internal/memory"
)

// helperService is the RPC service name the accelerated helper registers.
const helperService = "TypetraceHelper"

// protocolVersion is sent during the handshake; the helper rejects callers
// it cannot serve.
const protocolVersion = 1

// Native drives the accelerated helper process over JSON-RPC on its stdio
// pipes. The helper is single-threaded at its foreign boundary, so every
// call serializes behind one gate; concurrent pool tasks queue here instead
// of racing the helper.
type Native struct {
	logger *slog.Logger

	mu     sync.Mutex
	cmd    *exec.Cmd
	client *rpc.Client
	pipe   io.ReadWriteCloser
	closed bool
}

// stdioPipe combines the helper's stdin and stdout into one duplex stream
// for the jsonrpc codec.
type stdioPipe struct {
	io.WriteCloser
	io.ReadCloser
}

func (p stdioPipe) Close() error {
	werr := p.WriteCloser.Close()
	rerr := p.ReadCloser.Close()
	if werr != nil {
		return werr
	}
	return rerr
}

type handshakeRequest struct {
	ProtocolVersion int `json:"protocol_version"`
}

type handshakeResponse struct {
	Accepted bool   `json:"accepted"`
	Version  string `json:"version"`
	Detail   string `json:"detail"`
}

type memoryInfoResponse struct {
	Info memory.Info `json:"info"`
	Err  string      `json:"err,omitempty"`
}

type optimizeRequest struct {
	Level     memory.Level `json:"level"`
	Emergency bool         `json:"emergency"`
}

type computeRequest struct {
	TaskType string `json:"task_type"`
	Payload  any    `json:"payload"`
}

// startNative launches the helper binary and performs the handshake. Any
// failure tears the process down and is returned to the negotiator.
func startNative(ctx context.Context, path string, handshakeTimeout time.Duration, logger *slog.Logger) (*Native, error) {
	if err := unix.Access(path, unix.X_OK); err != nil {
		return nil, fmt.Errorf("helper %s not executable: %w", path, err)
	}

	cmd := exec.Command(path)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start helper: %w", err)
	}

	pipe := stdioPipe{WriteCloser: stdin, ReadCloser: stdout}
	n := &Native{
		logger: logging.NewComponentLogger(logger, "native-backend"),
		cmd:    cmd,
		client: rpc.NewClientWithCodec(jsonrpc.NewClientCodec(pipe)),
		pipe:   pipe,
	}

	handshakeCtx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	var resp handshakeResponse
	if err := n.call(handshakeCtx, "Handshake", handshakeRequest{ProtocolVersion: protocolVersion}, &resp); err != nil {
		_ = n.Close()
		return nil, fmt.Errorf("handshake: %w", err)
	}
	if !resp.Accepted {
		_ = n.Close()
		return nil, fmt.Errorf("handshake rejected: %s", resp.Detail)
	}

	n.logger.Info("accelerated helper negotiated",
		logging.String(logging.FieldEventType, "helper_negotiated"),
		logging.String("helper_version", resp.Version))
	return n, nil
}

func (n *Native) Name() string { return "native" }

// call performs one serialized RPC round trip. The foreign-call gate is held
// for the full duration; a context expiry abandons the wait but the helper
// finishes the request on its own time.
func (n *Native) call(ctx context.Context, method string, args, reply any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return errors.New("helper connection closed")
	}
	client := n.client

	done := client.Go(helperService+"."+method, args, reply, make(chan *rpc.Call, 1)).Done
	select {
	case call := <-done:
		return call.Error
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (n *Native) MemoryInfo(ctx context.Context) (memory.Info, error) {
	var resp memoryInfoResponse
	if err := n.call(ctx, "MemoryInfo", struct{}{}, &resp); err != nil {
		return memory.Info{}, fmt.Errorf("helper memory info: %w", err)
	}
	if resp.Err != "" {
		resp.Info.SampleError = resp.Err
	}
	return resp.Info, nil
}

func (n *Native) OptimizeMemory(ctx context.Context, level memory.Level, emergency bool) OptimizationResult {
	started := time.Now()
	var result OptimizationResult
	if err := n.call(ctx, "Optimize", optimizeRequest{Level: level, Emergency: emergency}, &result); err != nil {
		return failedOptimization(level, emergency, started, err)
	}
	return result
}

func (n *Native) ForceGC(ctx context.Context) OptimizationResult {
	started := time.Now()
	var result OptimizationResult
	if err := n.call(ctx, "ForceGC", struct{}{}, &result); err != nil {
		return failedOptimization(memory.LevelNone, false, started, err)
	}
	return result
}

func (n *Native) GPUInfo(ctx context.Context) gpu.Info {
	var info gpu.Info
	if err := n.call(ctx, "GPUInfo", struct{}{}, &info); err != nil {
		return gpu.Info{ProbedAt: time.Now(), ProbeError: err.Error()}
	}
	return info
}

func (n *Native) Compute(ctx context.Context, taskType string, payload any) ComputationResult {
	started := time.Now()
	var result ComputationResult
	if err := n.call(ctx, "Compute", computeRequest{TaskType: taskType, Payload: payload}, &result); err != nil {
		return failedComputation(taskType, started, err)
	}
	return result
}

// Close shuts the RPC client down and reaps the helper process.
func (n *Native) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil
	}
	n.closed = true

	var firstErr error
	if n.client != nil {
		firstErr = n.client.Close()
	}
	if n.cmd != nil && n.cmd.Process != nil {
		// Closing stdin asks the helper to exit; kill if it does not.
		waited := make(chan error, 1)
		go func() { waited <- n.cmd.Wait() }()
		select {
		case <-waited:
		case <-time.After(2 * time.Second):
			_ = n.cmd.Process.Kill()
			<-waited
		}
	}
	return firstErr
}

var _ Backend = (*Native)(nil)
