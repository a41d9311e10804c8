package daemon

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sourcegraph/jsonrpc2"

	"github.com/alucardeht/chrome-bridge/internal/capability"
	"github.com/alucardeht/chrome-bridge/internal/settings"
	"github.com/alucardeht/chrome-bridge/pkg/protocol"
)

// Control socket method names.
const (
	ControlStatus      = "status"
	ControlSettingsGet = "settings.get"
	ControlSettingsSet = "settings.set"
	ControlReconnect   = "reconnect"
	ControlShutdown    = "shutdown"
)

// SetParams is the payload of a settings.set call.
type SetParams struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// StatusResult is the payload of a status reply.
type StatusResult struct {
	Bridge        interface{} `json:"bridge"`
	UptimeSeconds int64       `json:"uptime_seconds"`
	Capabilities  []string    `json:"capabilities"`
}

type controlHandler struct {
	daemon *Daemon
}

func (h *controlHandler) Handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	if req.Notif {
		return
	}

	result, err := h.dispatch(ctx, req)
	if err != nil {
		conn.ReplyWithError(ctx, req.ID, &jsonrpc2.Error{
			Code:    protocol.CodeInternalError,
			Message: err.Error(),
		})
		return
	}
	conn.Reply(ctx, req.ID, result)
}

func (h *controlHandler) dispatch(_ context.Context, req *jsonrpc2.Request) (interface{}, error) {
	d := h.daemon

	switch req.Method {
	case ControlStatus:
		return StatusResult{
			Bridge:        d.Bridge().Status(),
			UptimeSeconds: int64(d.Uptime().Seconds()),
			Capabilities: []string{
				capability.MethodPing,
				capability.MethodTabsList,
				capability.MethodCookiesAll,
				capability.MethodCookieHeader,
				capability.MethodStorageLocal,
			},
		}, nil

	case ControlSettingsGet:
		all, err := d.Settings().All()
		if err != nil {
			return nil, err
		}
		// never leak the token value over the socket
		if _, ok := all[settings.KeyToken]; ok {
			all[settings.KeyToken] = "(set)"
		}
		return all, nil

	case ControlSettingsSet:
		var params SetParams
		if req.Params == nil {
			return nil, fmt.Errorf("params are required")
		}
		if err := json.Unmarshal(*req.Params, &params); err != nil {
			return nil, fmt.Errorf("invalid params: %w", err)
		}
		if params.Key != settings.KeyEndpoint && params.Key != settings.KeyToken {
			return nil, fmt.Errorf("unknown setting: %s", params.Key)
		}
		if err := d.Settings().Set(params.Key, params.Value); err != nil {
			return nil, err
		}
		d.reconcile()
		return map[string]bool{"ok": true}, nil

	case ControlReconnect:
		if err := d.Bridge().Reconnect(); err != nil {
			return nil, err
		}
		return map[string]bool{"ok": true}, nil

	case ControlShutdown:
		go d.Shutdown()
		return map[string]bool{"ok": true}, nil

	default:
		return nil, fmt.Errorf("method not found: %s", req.Method)
	}
}
