package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// MemoryStatus retrieves the current memory snapshot and its classification.
func (c *Client) MemoryStatus() (*MemoryStatusResponse, error) {
	var resp MemoryStatusResponse
	if err := c.client.Call("Typetrace.MemoryStatus", MemoryStatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// OptimizeMemory runs one optimization at the named level.
func (c *Client) OptimizeMemory(req OptimizeRequest) (*OptimizeResponse, error) {
	var resp OptimizeResponse
	if err := c.client.Call("Typetrace.OptimizeMemory", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ForceGC triggers a single collection pass.
func (c *Client) ForceGC() (*ForceGCResponse, error) {
	var resp ForceGCResponse
	if err := c.client.Call("Typetrace.ForceGC", ForceGCRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GPUStatus retrieves the graphics capability record.
func (c *Client) GPUStatus() (*GPUStatusResponse, error) {
	var resp GPUStatusResponse
	if err := c.client.Call("Typetrace.GPUStatus", GPUStatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SetComputeMode requests or releases the accelerated compute path.
func (c *Client) SetComputeMode(enable bool) (*SetComputeModeResponse, error) {
	var resp SetComputeModeResponse
	if err := c.client.Call("Typetrace.SetComputeMode", SetComputeModeRequest{Enable: enable}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Compute runs one computation on the daemon's active compute path.
func (c *Client) Compute(req ComputeRequest) (*ComputeResponse, error) {
	var resp ComputeResponse
	if err := c.client.Call("Typetrace.Compute", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SubmitTask queues a task, optionally waiting for it to settle.
func (c *Client) SubmitTask(req SubmitTaskRequest) (*SubmitTaskResponse, error) {
	var resp SubmitTaskResponse
	if err := c.client.Call("Typetrace.SubmitTask", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TaskHistory retrieves recent terminal tasks from the ledger.
func (c *Client) TaskHistory(limit int) (*TaskHistoryResponse, error) {
	var resp TaskHistoryResponse
	if err := c.client.Call("Typetrace.TaskHistory", TaskHistoryRequest{Limit: limit}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PoolStats retrieves the worker pool snapshot.
func (c *Client) PoolStats() (*PoolStatsResponse, error) {
	var resp PoolStatsResponse
	if err := c.client.Call("Typetrace.PoolStats", PoolStatsRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the full daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.client.Call("Typetrace.Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Shutdown asks the daemon process to exit.
func (c *Client) Shutdown() (*ShutdownResponse, error) {
	var resp ShutdownResponse
	if err := c.client.Call("Typetrace.Shutdown", ShutdownRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
