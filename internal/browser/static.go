package browser

import (
	"context"
	"fmt"
	"sync"
)

// StaticHost is an in-memory Host. It backs tests and lets the daemon
// run without an attached browser.
type StaticHost struct {
	mu      sync.RWMutex
	tabs    []Tab
	cookies []Cookie
	storage map[int]map[string]string
}

func NewStaticHost() *StaticHost {
	return &StaticHost{
		storage: make(map[int]map[string]string),
	}
}

func (h *StaticHost) SetTabs(tabs []Tab) {
	h.mu.Lock()
	h.tabs = tabs
	h.mu.Unlock()
}

func (h *StaticHost) SetCookies(cookies []Cookie) {
	h.mu.Lock()
	h.cookies = cookies
	h.mu.Unlock()
}

func (h *StaticHost) SetLocalStorage(tabID int, values map[string]string) {
	h.mu.Lock()
	h.storage[tabID] = values
	h.mu.Unlock()
}

func (h *StaticHost) Tabs(_ context.Context) ([]Tab, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Tab, len(h.tabs))
	copy(out, h.tabs)
	return out, nil
}

func (h *StaticHost) Cookies(_ context.Context, filter CookieFilter) ([]Cookie, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return filterCookies(h.cookies, filter), nil
}

func (h *StaticHost) LocalStorage(_ context.Context, tabID int, keys []string) (map[string]*string, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	values, ok := h.storage[tabID]
	if !ok {
		return nil, fmt.Errorf("no tab with id %d", tabID)
	}

	out := make(map[string]*string, len(keys))
	for _, key := range keys {
		if v, ok := values[key]; ok {
			value := v
			out[key] = &value
		} else {
			out[key] = nil
		}
	}
	return out, nil
}

func (h *StaticHost) Close() error { return nil }
