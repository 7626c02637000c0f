package client

import (
	"context"
	"time"

	"github.com/matheus3301/msgsync/internal/api"
	"google.golang.org/grpc"
)

// Client is a Messaging client bound to one daemon socket.
type Client struct {
	*api.Client
	conn *grpc.ClientConn
}

// New dials the daemon's Unix domain socket.
func New(socketPath string) (*Client, error) {
	conn, err := api.Dial(socketPath)
	if err != nil {
		return nil, err
	}
	return &Client{Client: api.NewClient(conn), conn: conn}, nil
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Probe reports whether a daemon answers on socketPath. Dialing alone
// proves nothing since gRPC connects lazily.
func Probe(socketPath string, timeout time.Duration) bool {
	c, err := New(socketPath)
	if err != nil {
		return false
	}
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	_, err = c.Status(ctx)
	return err == nil
}

// WaitReady probes until the daemon answers or timeout passes.
func WaitReady(socketPath string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if Probe(socketPath, 2*time.Second) {
			return true
		}
		time.Sleep(300 * time.Millisecond)
	}
	return false
}
