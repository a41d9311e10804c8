package daemon

import (
	"context"
	"time"

	"github.com/sourcegraph/jsonrpc2"

	"github.com/alucardeht/chrome-bridge/internal/settings"
)

// ControlClient is the CLI side of the control socket.
type ControlClient struct {
	conn *jsonrpc2.Conn
}

type noopHandler struct{}

func (noopHandler) Handle(context.Context, *jsonrpc2.Conn, *jsonrpc2.Request) {}

// Connect dials the daemon's control socket.
func Connect(ctx context.Context, socketPath string) (*ControlClient, error) {
	conn, err := DialControl(socketPath, 3*time.Second)
	if err != nil {
		return nil, err
	}

	stream := jsonrpc2.NewBufferedStream(conn, jsonrpc2.PlainObjectCodec{})
	return &ControlClient{
		conn: jsonrpc2.NewConn(ctx, stream, noopHandler{}),
	}, nil
}

func (c *ControlClient) Status(ctx context.Context) (*StatusResult, error) {
	var result StatusResult
	if err := c.conn.Call(ctx, ControlStatus, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *ControlClient) GetSettings(ctx context.Context) (map[string]string, error) {
	var result map[string]string
	if err := c.conn.Call(ctx, ControlSettingsGet, nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *ControlClient) SetEndpoint(ctx context.Context, endpoint string) error {
	return c.set(ctx, settings.KeyEndpoint, endpoint)
}

func (c *ControlClient) SetToken(ctx context.Context, token string) error {
	return c.set(ctx, settings.KeyToken, token)
}

func (c *ControlClient) set(ctx context.Context, key, value string) error {
	var result map[string]bool
	return c.conn.Call(ctx, ControlSettingsSet, SetParams{Key: key, Value: value}, &result)
}

func (c *ControlClient) Reconnect(ctx context.Context) error {
	var result map[string]bool
	return c.conn.Call(ctx, ControlReconnect, nil, &result)
}

func (c *ControlClient) Shutdown(ctx context.Context) error {
	var result map[string]bool
	return c.conn.Call(ctx, ControlShutdown, nil, &result)
}

func (c *ControlClient) Close() error {
	return c.conn.Close()
}
