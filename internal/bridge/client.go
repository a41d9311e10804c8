package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/alucardeht/chrome-bridge/internal/capability"
	"github.com/alucardeht/chrome-bridge/internal/logger"
	"github.com/alucardeht/chrome-bridge/internal/settings"
	"github.com/alucardeht/chrome-bridge/pkg/protocol"
)

var log = logger.ForComponent("bridge")

var (
	ErrAlreadyRunning = errors.New("bridge client already running")
	ErrNotRunning     = errors.New("bridge client not running")
)

// Options configures a Client.
type Options struct {
	Store           *settings.Store
	Registry        *capability.Registry
	DefaultEndpoint string
	DialTimeout     time.Duration
	// OnStatus, when set, is invoked after every connect, welcome, and
	// disconnect. It is the client's status indicator.
	OnStatus func(Status)
}

// Client keeps one logical connection to the relay endpoint alive,
// performs the hello/welcome handshake, and services inbound RPC
// requests against the capability registry. It retries forever with
// capped exponential backoff; there is no terminal state while the
// process lives.
type Client struct {
	store           *settings.Store
	registry        *capability.Registry
	defaultEndpoint string
	dialTimeout     time.Duration
	onStatus        func(Status)

	mu             sync.Mutex
	running        bool
	state          State
	conn           *websocket.Conn
	connCtx        context.Context
	connCancel     context.CancelFunc
	sendCh         chan protocol.Response
	gen            uint64
	attempt        int
	lastError      string
	endpoint       string
	tokenSet       bool
	authenticated  bool
	reconnectTimer *time.Timer
}

func NewClient(opts Options) (*Client, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("bridge client: settings store is required")
	}
	if opts.Registry == nil {
		return nil, fmt.Errorf("bridge client: capability registry is required")
	}
	if opts.DefaultEndpoint == "" {
		return nil, fmt.Errorf("bridge client: default endpoint is required")
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 10 * time.Second
	}

	return &Client{
		store:           opts.Store,
		registry:        opts.Registry,
		defaultEndpoint: opts.DefaultEndpoint,
		dialTimeout:     opts.DialTimeout,
		onStatus:        opts.OnStatus,
		state:           StateDisconnected,
	}, nil
}

// Start begins the connect loop. It returns immediately; connection
// progress is observable through Status.
func (c *Client) Start() error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}
	c.running = true
	c.mu.Unlock()

	go c.connect()
	return nil
}

// Stop tears the connection down and stops reconnecting.
func (c *Client) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	c.state = StateClosing
	c.gen++
	c.stopTimerLocked()
	c.teardownConnLocked(websocket.StatusNormalClosure, "client stopping")
	c.state = StateDisconnected
	c.authenticated = false
	c.mu.Unlock()

	c.notifyStatus()
	log.Info("bridge client stopped")
}

// Reconnect tears down any live connection and dials again right away.
// The in-flight read/write loops are invalidated first so their
// disconnect callbacks cannot schedule a second, overlapping cycle.
func (c *Client) Reconnect() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return ErrNotRunning
	}
	c.gen++
	c.stopTimerLocked()
	c.teardownConnLocked(websocket.StatusNormalClosure, "reconnecting")
	c.state = StateDisconnected
	c.authenticated = false
	c.mu.Unlock()

	log.Info("reconnect requested")
	go c.connect()
	return nil
}

// Connected reports whether the link is open and the welcome has been
// received.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateOpen && c.authenticated
}

// WaitForConnected blocks until the handshake completes or the timeout
// elapses.
func (c *Client) WaitForConnected(ctx context.Context, timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if c.Connected() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("bridge not connected after %v", timeout)
		case <-ticker.C:
		}
	}
}

// Status returns the current connection snapshot.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

func (c *Client) statusLocked() Status {
	return Status{
		State:         c.state,
		Connected:     c.state == StateOpen && c.authenticated,
		Authenticated: c.authenticated,
		Endpoint:      c.endpoint,
		TokenSet:      c.tokenSet,
		LastError:     c.lastError,
		Attempt:       c.attempt,
	}
}

func (c *Client) notifyStatus() {
	if c.onStatus == nil {
		return
	}
	c.mu.Lock()
	status := c.statusLocked()
	c.mu.Unlock()
	c.onStatus(status)
}

// connect performs one connection attempt. Settings are re-read from
// the store every time so endpoint or token changes take effect on the
// next cycle without a restart.
func (c *Client) connect() {
	c.mu.Lock()
	if !c.running || c.state == StateConnecting || c.state == StateOpen {
		c.mu.Unlock()
		return
	}
	c.state = StateConnecting
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	st, err := c.store.Load()
	if err != nil {
		log.Warn("settings load failed, using defaults", "error", err)
	}
	endpoint := strings.TrimSpace(st.Endpoint)
	if endpoint == "" {
		endpoint = c.defaultEndpoint
	}
	token := strings.TrimSpace(st.Token)

	c.mu.Lock()
	c.endpoint = endpoint
	c.tokenSet = token != ""
	c.mu.Unlock()

	log.Debug("connecting", "endpoint", endpoint, "gen", gen)

	dialCtx, cancel := context.WithTimeout(context.Background(), c.dialTimeout)
	conn, _, err := websocket.Dial(dialCtx, endpoint, nil)
	cancel()
	if err != nil {
		c.connectFailed(gen, err)
		return
	}

	connCtx, connCancel := context.WithCancel(context.Background())

	c.mu.Lock()
	if !c.running || c.gen != gen {
		c.mu.Unlock()
		connCancel()
		conn.Close(websocket.StatusNormalClosure, "superseded")
		return
	}
	c.state = StateOpen
	c.conn = conn
	c.connCtx = connCtx
	c.connCancel = connCancel
	c.sendCh = make(chan protocol.Response, 64)
	sendCh := c.sendCh
	c.mu.Unlock()

	c.notifyStatus()
	log.Info("transport open", "endpoint", endpoint)

	// Hello goes out before any loop starts writing, so ordering on
	// the wire is guaranteed.
	helloCtx, cancel := context.WithTimeout(connCtx, c.dialTimeout)
	err = wsjson.Write(helloCtx, conn, protocol.NewHello(token))
	cancel()
	if err != nil {
		c.disconnected(gen, fmt.Sprintf("hello failed: %v", err))
		return
	}

	go c.writeLoop(connCtx, conn, sendCh)
	go c.readLoop(connCtx, gen, conn)
}

func (c *Client) connectFailed(gen uint64, err error) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	c.state = StateDisconnected
	c.lastError = err.Error()
	if c.running {
		c.scheduleReconnectLocked()
	}
	c.mu.Unlock()

	c.notifyStatus()
	log.Warn("connect failed", "error", err)
}

// disconnected handles transport loss for the connection identified by
// gen. Stale generations are ignored; an explicit Reconnect or Stop has
// already dealt with them.
func (c *Client) disconnected(gen uint64, reason string) {
	if reason == "" {
		reason = "disconnected"
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	c.teardownConnLocked(websocket.StatusNormalClosure, "")
	c.state = StateDisconnected
	c.authenticated = false
	c.lastError = reason
	if c.running {
		c.scheduleReconnectLocked()
	}
	c.mu.Unlock()

	c.notifyStatus()
	log.Info("transport closed", "reason", reason)
}

// teardownConnLocked closes and forgets the current transport. Caller
// must hold mu.
func (c *Client) teardownConnLocked(code websocket.StatusCode, reason string) {
	if c.connCancel != nil {
		c.connCancel()
		c.connCancel = nil
	}
	if c.conn != nil {
		c.conn.Close(code, reason)
		c.conn = nil
	}
	c.connCtx = nil
	c.sendCh = nil
}

// scheduleReconnectLocked arms the backoff timer, replacing any pending
// one. Caller must hold mu.
func (c *Client) scheduleReconnectLocked() {
	c.stopTimerLocked()

	delay := reconnectDelay(c.attempt)
	c.attempt++
	c.reconnectTimer = time.AfterFunc(delay, c.connect)

	log.Debug("reconnect scheduled", "attempt", c.attempt, "delay", delay)
}

func (c *Client) stopTimerLocked() {
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
}

func (c *Client) readLoop(ctx context.Context, gen uint64, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			c.disconnected(gen, closeReason(err))
			return
		}
		c.handleMessage(gen, data)
	}
}

func (c *Client) writeLoop(ctx context.Context, conn *websocket.Conn, sendCh <-chan protocol.Response) {
	for {
		select {
		case <-ctx.Done():
			return
		case resp := <-sendCh:
			wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(wctx, conn, resp)
			cancel()
			if err != nil {
				// A failed write leaves the connection unusable; close
				// it so the read loop trips the reconnect instead of
				// queueing against a dead transport.
				conn.Close(websocket.StatusInternalError, "write failed")
				return
			}
		}
	}
}

func closeReason(err error) string {
	if err == nil {
		return "disconnected"
	}
	if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
		return "disconnected"
	}
	return err.Error()
}

// handleMessage classifies one inbound frame. Unparseable messages and
// requests missing the protocol marker, id, or method are dropped
// without a reply: the id needed to address a response is itself
// untrustworthy.
func (c *Client) handleMessage(gen uint64, data []byte) {
	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Debug("dropping unparseable message", "error", err)
		return
	}

	if env.IsWelcome() {
		c.mu.Lock()
		if c.gen == gen {
			c.authenticated = true
			c.attempt = 0
			c.lastError = ""
		}
		c.mu.Unlock()
		c.notifyStatus()
		log.Info("welcome received, link authenticated")
		return
	}

	if !env.IsRequest() {
		log.Debug("dropping malformed message", "method", env.Method)
		return
	}

	// Requests are serviced concurrently; responses are matched by
	// echoed id only.
	go c.dispatch(gen, env)
}

func (c *Client) dispatch(gen uint64, req protocol.Envelope) {
	resp := c.callHandler(req)
	c.send(gen, resp)
}

func (c *Client) callHandler(req protocol.Envelope) (resp protocol.Response) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("capability panic recovered",
				"method", req.Method,
				"panic", r,
				"stack", string(debug.Stack()))
			resp = protocol.NewError(req.ID, protocol.CodeInternalError, fmt.Sprintf("%v", r))
		}
	}()

	handler, ok := c.registry.Get(req.Method)
	if !ok {
		return protocol.NewError(req.ID, protocol.CodeMethodNotFound,
			fmt.Sprintf("method not found: %s", req.Method))
	}

	result, err := handler.Handle(context.Background(), req.Params)
	if err != nil {
		return protocol.NewError(req.ID, protocol.CodeInternalError, err.Error())
	}
	return protocol.NewResult(req.ID, result)
}

// send queues one response for the connection identified by gen. While
// that connection is open the caller blocks until the queue accepts the
// response: every request on a live transport gets its answer, however
// slowly the relay drains. Once the transport closes the response is
// dropped, never buffered for redelivery.
func (c *Client) send(gen uint64, resp protocol.Response) {
	c.mu.Lock()
	if c.gen != gen || c.sendCh == nil {
		c.mu.Unlock()
		log.Debug("dropping response for closed transport", "id", string(resp.ID))
		return
	}
	sendCh := c.sendCh
	connCtx := c.connCtx
	c.mu.Unlock()

	select {
	case sendCh <- resp:
	case <-connCtx.Done():
		log.Debug("dropping response for closed transport", "id", string(resp.ID))
	}
}
