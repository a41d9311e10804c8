package capability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/alucardeht/chrome-bridge/internal/browser"
)

// Method names served over the bridge.
const (
	MethodPing         = "bridge.ping"
	MethodTabsList     = "tabs.list"
	MethodCookiesAll   = "cookies.getAll"
	MethodCookieHeader = "cookies.toHeader"
	MethodStorageLocal = "storage.getLocal"
)

// NewRegistryWithHost builds the full method table against the given
// browser host.
func NewRegistryWithHost(host browser.Host) (*Registry, error) {
	reg := NewRegistry()
	handlers := []Handler{
		&PingHandler{},
		&TabsHandler{Host: host},
		&CookiesHandler{Host: host},
		&CookieHeaderHandler{Host: host},
		&StorageHandler{Host: host},
	}
	for _, h := range handlers {
		if err := reg.Register(h); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// PingHandler answers liveness probes from the relay.
type PingHandler struct{}

func (*PingHandler) Method() string { return MethodPing }

func (*PingHandler) Handle(_ context.Context, _ json.RawMessage) (interface{}, error) {
	return map[string]interface{}{
		"ok":        true,
		"timestamp": time.Now().UnixMilli(),
	}, nil
}

// TabsHandler lists open pages.
type TabsHandler struct {
	Host browser.Host
}

func (*TabsHandler) Method() string { return MethodTabsList }

func (h *TabsHandler) Handle(ctx context.Context, _ json.RawMessage) (interface{}, error) {
	tabs, err := h.Host.Tabs(ctx)
	if err != nil {
		return nil, err
	}
	// never null on the wire
	if tabs == nil {
		tabs = []browser.Tab{}
	}
	return tabs, nil
}

type cookieParams struct {
	Domain string `json:"domain"`
	URL    string `json:"url"`
	Name   string `json:"name"`
}

func (p *cookieParams) filter() browser.CookieFilter {
	return browser.CookieFilter{
		Domain: strings.TrimSpace(p.Domain),
		URL:    strings.TrimSpace(p.URL),
		Name:   strings.TrimSpace(p.Name),
	}
}

// CookiesHandler returns cookie records matching optional filters.
type CookiesHandler struct {
	Host browser.Host
}

func (*CookiesHandler) Method() string { return MethodCookiesAll }

func (h *CookiesHandler) Handle(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p cookieParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("invalid params: %w", err)
		}
	}

	cookies, err := h.Host.Cookies(ctx, p.filter())
	if err != nil {
		return nil, err
	}
	if cookies == nil {
		cookies = []browser.Cookie{}
	}
	return cookies, nil
}

// CookieHeaderHandler renders matching cookies as a single Cookie
// header value.
type CookieHeaderHandler struct {
	Host browser.Host
}

func (*CookieHeaderHandler) Method() string { return MethodCookieHeader }

func (h *CookieHeaderHandler) Handle(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p cookieParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("invalid params: %w", err)
		}
	}

	domain := strings.TrimSpace(p.Domain)
	if domain == "" {
		return nil, errors.New("domain is required")
	}

	cookies, err := h.Host.Cookies(ctx, browser.CookieFilter{Domain: domain})
	if err != nil {
		return nil, err
	}

	// Stable ordering: name, then domain, then path.
	sort.Slice(cookies, func(i, j int) bool {
		a, b := cookies[i], cookies[j]
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		if a.Domain != b.Domain {
			return a.Domain < b.Domain
		}
		return a.Path < b.Path
	})

	pairs := make([]string, 0, len(cookies))
	for _, c := range cookies {
		pairs = append(pairs, c.Name+"="+c.Value)
	}
	return strings.Join(pairs, "; "), nil
}

type storageParams struct {
	TabID int      `json:"tabId"`
	Keys  []string `json:"keys"`
}

// StorageHandler reads page-local storage keys from one tab.
type StorageHandler struct {
	Host browser.Host
}

func (*StorageHandler) Method() string { return MethodStorageLocal }

func (h *StorageHandler) Handle(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p storageParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("invalid params: %w", err)
		}
	}

	if p.TabID <= 0 {
		return nil, errors.New("tabId is required")
	}

	keys := make([]string, 0, len(p.Keys))
	for _, key := range p.Keys {
		if trimmed := strings.TrimSpace(key); trimmed != "" {
			keys = append(keys, trimmed)
		}
	}
	if len(keys) == 0 {
		return nil, errors.New("keys is required")
	}

	values, err := h.Host.LocalStorage(ctx, p.TabID, keys)
	if err != nil {
		return nil, err
	}
	return values, nil
}
