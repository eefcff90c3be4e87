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

func (c *Client) call(method string, req, resp any) error {
	return c.client.Call(ServiceName+"."+method, req, resp)
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.call("Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// StartRecording begins a recording.
func (c *Client) StartRecording(req StartRecordingRequest) (*StartRecordingResponse, error) {
	var resp StartRecordingResponse
	if err := c.call("StartRecording", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// StopRecording ends a live recording and waits for it to close.
func (c *Client) StopRecording(id, actorID string) (*StopRecordingResponse, error) {
	var resp StopRecordingResponse
	if err := c.call("StopRecording", StopRecordingRequest{ID: id, ActorID: actorID}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Note appends a note to a live recording.
func (c *Client) Note(id, text string) (*NoteResponse, error) {
	var resp NoteResponse
	if err := c.call("Note", NoteRequest{ID: id, Text: text}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListRecordings returns recordings filtered by status names.
func (c *Client) ListRecordings(statuses []string) (*ListRecordingsResponse, error) {
	var resp ListRecordingsResponse
	if err := c.call("ListRecordings", ListRecordingsRequest{Statuses: statuses}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ShowRecording returns one recording with its keys.
func (c *Client) ShowRecording(id string) (*ShowRecordingResponse, error) {
	var resp ShowRecordingResponse
	if err := c.call("ShowRecording", ShowRecordingRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Shutdown asks the daemon process to exit.
func (c *Client) Shutdown() (*ShutdownResponse, error) {
	var resp ShutdownResponse
	if err := c.call("Shutdown", ShutdownRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DatabaseHealth retrieves detailed database diagnostics.
func (c *Client) DatabaseHealth() (*DatabaseHealthResponse, error) {
	var resp DatabaseHealthResponse
	if err := c.call("DatabaseHealth", DatabaseHealthRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TestNotification asks the daemon to send a test notification.
func (c *Client) TestNotification() (*TestNotificationResponse, error) {
	var resp TestNotificationResponse
	if err := c.call("TestNotification", TestNotificationRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
