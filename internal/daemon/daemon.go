package daemon

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/sourcegraph/jsonrpc2"

	"github.com/alucardeht/chrome-bridge/internal/bridge"
	"github.com/alucardeht/chrome-bridge/internal/browser"
	"github.com/alucardeht/chrome-bridge/internal/capability"
	"github.com/alucardeht/chrome-bridge/internal/config"
	"github.com/alucardeht/chrome-bridge/internal/logger"
	"github.com/alucardeht/chrome-bridge/internal/settings"
	"github.com/alucardeht/chrome-bridge/internal/watcher"
)

var log = logger.ForComponent("daemon")

// Daemon owns the bridge client and everything around it: the settings
// store, the settings watcher, the browser host, and the control socket
// the CLI talks to.
type Daemon struct {
	cfg      *config.Config
	store    *settings.Store
	host     browser.Host
	client   *bridge.Client
	watcher  *watcher.Watcher
	listener *SocketListener
	lock     *LockFile
	pid      *PIDFile

	mu           sync.Mutex
	lastSettings settings.Settings
	conns        map[*jsonrpc2.Conn]struct{}
	shutdownCh   chan struct{}
	shutdownOnce sync.Once
	startTime    time.Time
}

func New(cfg *config.Config) (*Daemon, error) {
	store, err := settings.NewStore(cfg.SettingsPath)
	if err != nil {
		return nil, fmt.Errorf("open settings store: %w", err)
	}

	var host browser.Host
	if cfg.Browser.RemoteURL != "" {
		chromeHost, err := browser.NewChromeHost(cfg.Browser.RemoteURL, cfg.Browser.Timeout, logger.ForComponent("browser"))
		if err != nil {
			store.Close()
			return nil, err
		}
		host = chromeHost
	} else {
		log.Warn("no CDP endpoint configured, browser capabilities serve empty data")
		host = browser.NewStaticHost()
	}

	registry, err := capability.NewRegistryWithHost(host)
	if err != nil {
		store.Close()
		host.Close()
		return nil, err
	}

	client, err := bridge.NewClient(bridge.Options{
		Store:           store,
		Registry:        registry,
		DefaultEndpoint: config.DefaultEndpoint,
		OnStatus: func(status bridge.Status) {
			log.Info("bridge status",
				"state", status.State,
				"authenticated", status.Authenticated,
				"endpoint", status.Endpoint,
				"last_error", status.LastError)
		},
	})
	if err != nil {
		store.Close()
		host.Close()
		return nil, err
	}

	d := &Daemon{
		cfg:        cfg,
		store:      store,
		host:       host,
		client:     client,
		listener:   NewSocketListener(cfg.SocketPath),
		lock:       NewLockFile(cfg.LockPath),
		pid:        NewPIDFile(cfg.PIDPath),
		conns:      make(map[*jsonrpc2.Conn]struct{}),
		shutdownCh: make(chan struct{}),
		startTime:  time.Now(),
	}

	if cfg.Watcher.Enabled {
		w, err := watcher.New(cfg.Watcher, filepath.Dir(cfg.SettingsPath), d.onSettingsChanged)
		if err != nil {
			store.Close()
			host.Close()
			return nil, fmt.Errorf("settings watcher: %w", err)
		}
		d.watcher = w
	}

	return d, nil
}

// Start brings everything up and then serves control connections until
// Shutdown. It blocks.
func (d *Daemon) Start() error {
	if err := d.lock.Acquire(); err != nil {
		return err
	}
	if err := d.pid.Write(); err != nil {
		d.lock.Release()
		return err
	}

	initial, err := d.store.Load()
	if err != nil {
		log.Warn("initial settings load failed", "error", err)
	}
	d.mu.Lock()
	d.lastSettings = initial
	d.mu.Unlock()

	if err := d.listener.Start(); err != nil {
		d.cleanupFiles()
		return fmt.Errorf("control socket: %w", err)
	}

	if err := d.client.Start(); err != nil {
		d.listener.Close()
		d.cleanupFiles()
		return err
	}

	if d.watcher != nil {
		if err := d.watcher.Start(); err != nil {
			log.Warn("settings watcher failed to start", "error", err)
		}
	}

	log.Info("daemon started", "socket", d.cfg.SocketPath)
	d.acceptLoop()
	return nil
}

func (d *Daemon) acceptLoop() {
	for {
		conn, err := d.listener.Accept()
		if err != nil {
			select {
			case <-d.shutdownCh:
				return
			default:
				log.Warn("accept failed", "error", err)
				continue
			}
		}

		stream := jsonrpc2.NewBufferedStream(conn, jsonrpc2.PlainObjectCodec{})
		rpcConn := jsonrpc2.NewConn(context.Background(), stream, &controlHandler{daemon: d})

		d.mu.Lock()
		d.conns[rpcConn] = struct{}{}
		d.mu.Unlock()

		go func() {
			<-rpcConn.DisconnectNotify()
			d.mu.Lock()
			delete(d.conns, rpcConn)
			d.mu.Unlock()
		}()
	}
}

// onSettingsChanged is the watcher flush callback. The settings are
// reloaded and compared, so a burst of notifications folds into at most
// one reconnect.
func (d *Daemon) onSettingsChanged(events []watcher.ChangeEvent) {
	log.Debug("settings changed on disk", "events", len(events))
	d.reconcile()
}

// reconcile reloads settings and reconnects the bridge when the
// connection-relevant values actually differ. Both the watcher and the
// control socket funnel through here, which keeps "one change, one
// reconnect" true regardless of how many notifications arrive.
func (d *Daemon) reconcile() {
	current, err := d.store.Load()
	if err != nil {
		log.Warn("settings reload failed", "error", err)
		return
	}

	d.mu.Lock()
	changed := current != d.lastSettings
	d.lastSettings = current
	d.mu.Unlock()

	if !changed {
		return
	}

	log.Info("settings changed, reconnecting bridge")
	if err := d.client.Reconnect(); err != nil {
		log.Warn("reconnect failed", "error", err)
	}
}

// Bridge exposes the client for the control handler.
func (d *Daemon) Bridge() *bridge.Client { return d.client }

// Settings exposes the store for the control handler.
func (d *Daemon) Settings() *settings.Store { return d.store }

// Uptime reports how long the daemon has been running.
func (d *Daemon) Uptime() time.Duration { return time.Since(d.startTime) }

func (d *Daemon) Shutdown() {
	d.shutdownOnce.Do(func() {
		log.Info("daemon shutting down")
		close(d.shutdownCh)

		if d.watcher != nil {
			d.watcher.Stop()
		}
		d.client.Stop()

		d.mu.Lock()
		for conn := range d.conns {
			conn.Close()
		}
		d.conns = make(map[*jsonrpc2.Conn]struct{})
		d.mu.Unlock()

		d.listener.Close()
		d.host.Close()
		d.store.Close()
		d.cleanupFiles()
	})
}

func (d *Daemon) cleanupFiles() {
	d.pid.Remove()
	d.lock.Release()
}
