package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
)

// ChromeHost serves capability calls from a running Chrome reached over
// CDP. It attaches to an existing browser (--remote-debugging-port)
// rather than launching one, since the whole point is reusing the
// user's live profile.
type ChromeHost struct {
	mu            sync.Mutex
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	timeout       time.Duration
	logger        *slog.Logger

	// CDP identifies targets and browser contexts by opaque strings;
	// the bridge contract wants stable numeric ids. Assignment is
	// first-seen, monotonic, and never reused within a process.
	tabIDs    map[target.ID]int
	windowIDs map[string]int
	nextTab   int
	nextWin   int
}

// NewChromeHost attaches to the browser at remoteURL.
func NewChromeHost(remoteURL string, timeout time.Duration, logger *slog.Logger) (*ChromeHost, error) {
	if remoteURL == "" {
		return nil, fmt.Errorf("chrome host: remote URL is required")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	h := &ChromeHost{
		timeout:   timeout,
		logger:    logger,
		tabIDs:    make(map[target.ID]int),
		windowIDs: make(map[string]int),
	}

	allocCtx, allocCancel := chromedp.NewRemoteAllocator(context.Background(), remoteURL)
	h.allocCancel = allocCancel
	h.browserCtx, h.browserCancel = chromedp.NewContext(allocCtx)

	// Probe the connection so a bad endpoint fails here, not on the
	// first capability call.
	probeCtx, cancel := context.WithTimeout(h.browserCtx, timeout)
	defer cancel()
	if err := chromedp.Run(probeCtx); err != nil {
		h.Close()
		return nil, fmt.Errorf("attach to browser: %w", err)
	}

	logger.Info("attached to browser", "url", remoteURL)
	return h, nil
}

// tabID maps a CDP target id to its numeric id. Caller must hold mu.
func (h *ChromeHost) tabID(id target.ID) int {
	if n, ok := h.tabIDs[id]; ok {
		return n
	}
	h.nextTab++
	h.tabIDs[id] = h.nextTab
	return h.nextTab
}

// windowID maps a browser context id to its numeric id. Caller must hold mu.
func (h *ChromeHost) windowID(id string) int {
	if n, ok := h.windowIDs[id]; ok {
		return n
	}
	h.nextWin++
	h.windowIDs[id] = h.nextWin
	return h.nextWin
}

func (h *ChromeHost) Tabs(ctx context.Context) ([]Tab, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.browserCtx == nil {
		return nil, ErrUnavailable
	}

	infos, err := chromedp.Targets(h.browserCtx)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}

	tabs := make([]Tab, 0, len(infos))
	for _, info := range infos {
		if info.Type != "page" {
			continue
		}
		tabs = append(tabs, Tab{
			TabID:    h.tabID(info.TargetID),
			WindowID: h.windowID(string(info.BrowserContextID)),
			URL:      info.URL,
			Title:    info.Title,
			Active:   info.Attached,
		})
	}
	return tabs, nil
}

func (h *ChromeHost) Cookies(ctx context.Context, filter CookieFilter) ([]Cookie, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.browserCtx == nil {
		return nil, ErrUnavailable
	}

	runCtx, cancel := context.WithTimeout(h.browserCtx, h.timeout)
	defer cancel()

	var raw []*network.Cookie
	err := chromedp.Run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		raw, err = storage.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("get cookies: %w", err)
	}

	cookies := make([]Cookie, 0, len(raw))
	for _, c := range raw {
		cookies = append(cookies, Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
			SameSite: string(c.SameSite),
			HostOnly: !strings.HasPrefix(c.Domain, "."),
			Session:  c.Session,
		})
	}
	return filterCookies(cookies, filter), nil
}

func (h *ChromeHost) LocalStorage(ctx context.Context, tabID int, keys []string) (map[string]*string, error) {
	h.mu.Lock()

	if h.browserCtx == nil {
		h.mu.Unlock()
		return nil, ErrUnavailable
	}

	var targetID target.ID
	for id, n := range h.tabIDs {
		if n == tabID {
			targetID = id
			break
		}
	}
	h.mu.Unlock()

	if targetID == "" {
		return nil, fmt.Errorf("no tab with id %d", tabID)
	}

	tabCtx, tabCancel := chromedp.NewContext(h.browserCtx, chromedp.WithTargetID(targetID))
	defer tabCancel()

	runCtx, cancel := context.WithTimeout(tabCtx, h.timeout)
	defer cancel()

	keysJSON, err := json.Marshal(keys)
	if err != nil {
		return nil, err
	}
	expr := fmt.Sprintf(`(() => {
		const keys = %s;
		const out = {};
		for (const key of keys) {
			try { out[key] = localStorage.getItem(key); } catch (e) { out[key] = null; }
		}
		return out;
	})()`, keysJSON)

	var values map[string]*string
	if err := chromedp.Run(runCtx, chromedp.Evaluate(expr, &values)); err != nil {
		return nil, fmt.Errorf("read localStorage: %w", err)
	}
	return values, nil
}

func (h *ChromeHost) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.browserCancel != nil {
		h.browserCancel()
		h.browserCancel = nil
	}
	if h.allocCancel != nil {
		h.allocCancel()
		h.allocCancel = nil
	}
	h.browserCtx = nil
	return nil
}
