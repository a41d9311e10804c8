package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sourcegraph/jsonrpc2"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/alucardeht/chrome-bridge/internal/config"
	"github.com/alucardeht/chrome-bridge/internal/settings"
	"github.com/alucardeht/chrome-bridge/internal/watcher"
	"github.com/alucardeht/chrome-bridge/pkg/protocol"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()

	cfg := &config.Config{
		SocketPath:   filepath.Join(dir, "bridged.sock"),
		PIDPath:      filepath.Join(dir, "bridged.pid"),
		LockPath:     filepath.Join(dir, "bridged.lock"),
		SettingsPath: filepath.Join(dir, "settings.db"),
		LogLevel:     "error",
		Watcher:      watcher.Config{Enabled: false},
	}
	return cfg
}

func newTestDaemon(t *testing.T) *Daemon {
	t.Helper()
	d, err := New(testConfig(t))
	if err != nil {
		t.Fatalf("new daemon: %v", err)
	}
	t.Cleanup(d.Shutdown)
	return d
}

// startRelay runs a hello-consuming websocket endpoint and returns its
// ws:// URL plus a channel of received hello tokens.
func startRelay(t *testing.T) (string, chan string) {
	t.Helper()
	hellos := make(chan string, 8)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		var hello protocol.Hello
		if err := wsjson.Read(ctx, ws, &hello); err != nil {
			return
		}
		hellos <- hello.Token
		wsjson.Write(ctx, ws, map[string]string{"type": protocol.TypeWelcome})
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)

	return "ws://" + strings.TrimPrefix(srv.URL, "http://"), hellos
}

func call(t *testing.T, d *Daemon, method string, params interface{}) (interface{}, error) {
	t.Helper()
	req := &jsonrpc2.Request{Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			t.Fatalf("marshal params: %v", err)
		}
		msg := json.RawMessage(raw)
		req.Params = &msg
	}
	h := &controlHandler{daemon: d}
	return h.dispatch(context.Background(), req)
}

func TestControlStatus(t *testing.T) {
	d := newTestDaemon(t)

	result, err := call(t, d, ControlStatus, nil)
	if err != nil {
		t.Fatalf("status: %v", err)
	}

	status, ok := result.(StatusResult)
	if !ok {
		t.Fatalf("result type %T", result)
	}
	if len(status.Capabilities) != 5 {
		t.Errorf("capabilities = %v", status.Capabilities)
	}
}

func TestControlSettingsRoundtrip(t *testing.T) {
	d := newTestDaemon(t)

	if _, err := call(t, d, ControlSettingsSet, SetParams{Key: "endpoint", Value: "ws://relay.local"}); err != nil {
		t.Fatalf("set endpoint: %v", err)
	}
	if _, err := call(t, d, ControlSettingsSet, SetParams{Key: "token", Value: "hush"}); err != nil {
		t.Fatalf("set token: %v", err)
	}

	result, err := call(t, d, ControlSettingsGet, nil)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	all := result.(map[string]string)
	if all[settings.KeyEndpoint] != "ws://relay.local" {
		t.Errorf("endpoint = %q", all[settings.KeyEndpoint])
	}
	if all[settings.KeyToken] == "hush" {
		t.Error("token value leaked through settings.get")
	}
}

func TestControlRejectsUnknownSetting(t *testing.T) {
	d := newTestDaemon(t)

	_, err := call(t, d, ControlSettingsSet, SetParams{Key: "favourite_color", Value: "teal"})
	if err == nil {
		t.Fatal("unknown setting accepted")
	}
	if !strings.Contains(err.Error(), "favourite_color") {
		t.Errorf("error = %v", err)
	}
}

func TestControlUnknownMethod(t *testing.T) {
	d := newTestDaemon(t)

	_, err := call(t, d, "definitely.not.a.method", nil)
	if err == nil {
		t.Fatal("unknown method accepted")
	}
	if !strings.Contains(err.Error(), "definitely.not.a.method") {
		t.Errorf("error = %v", err)
	}
}

func TestReconcileReconnectsOncePerChange(t *testing.T) {
	endpoint, hellos := startRelay(t)

	d := newTestDaemon(t)
	if err := d.store.Set(settings.KeyEndpoint, endpoint); err != nil {
		t.Fatalf("seed endpoint: %v", err)
	}

	initial, _ := d.store.Load()
	d.mu.Lock()
	d.lastSettings = initial
	d.mu.Unlock()

	if err := d.client.Start(); err != nil {
		t.Fatalf("start client: %v", err)
	}
	select {
	case <-hellos:
	case <-time.After(5 * time.Second):
		t.Fatal("initial connection never arrived")
	}

	// One real change: exactly one reconnect, even with repeated
	// notifications.
	d.store.Set(settings.KeyToken, "fresh")
	d.reconcile()
	d.reconcile()
	d.reconcile()

	select {
	case token := <-hellos:
		if token != "fresh" {
			t.Errorf("reconnect hello token = %q", token)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reconnect after settings change")
	}

	select {
	case <-hellos:
		t.Error("duplicate reconnect cycle observed")
	case <-time.After(500 * time.Millisecond):
	}
}
