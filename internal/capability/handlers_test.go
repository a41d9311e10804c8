package capability

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/alucardeht/chrome-bridge/internal/browser"
)

func newTestHost() *browser.StaticHost {
	host := browser.NewStaticHost()
	host.SetTabs([]browser.Tab{
		{TabID: 1, WindowID: 1, URL: "https://example.com", Title: "Example", Active: true},
		{TabID: 2, WindowID: 1, URL: "https://other.test", Title: "Other"},
	})
	host.SetCookies([]browser.Cookie{
		{Name: "b", Value: "2", Domain: "example.com", Path: "/"},
		{Name: "a", Value: "1", Domain: "example.com", Path: "/"},
		{Name: "sid", Value: "xyz", Domain: ".example.com", Path: "/app"},
		{Name: "unrelated", Value: "0", Domain: "other.test", Path: "/"},
	})
	host.SetLocalStorage(1, map[string]string{"theme": "dark"})
	return host
}

func TestRegistryHasAllMethods(t *testing.T) {
	reg, err := NewRegistryWithHost(newTestHost())
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}

	for _, method := range []string{
		MethodPing, MethodTabsList, MethodCookiesAll, MethodCookieHeader, MethodStorageLocal,
	} {
		if _, ok := reg.Get(method); !ok {
			t.Errorf("method %s not registered", method)
		}
	}
	if len(reg.Methods()) != 5 {
		t.Errorf("method count = %d, want 5", len(reg.Methods()))
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(&PingHandler{}); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := reg.Register(&PingHandler{}); err == nil {
		t.Error("duplicate registration accepted")
	}
}

func TestPing(t *testing.T) {
	h := &PingHandler{}
	result, err := h.Handle(context.Background(), nil)
	if err != nil {
		t.Fatalf("ping: %v", err)
	}

	m, ok := result.(map[string]interface{})
	if !ok {
		t.Fatalf("result type %T", result)
	}
	if m["ok"] != true {
		t.Errorf("ok = %v", m["ok"])
	}
	if _, hasTS := m["timestamp"]; !hasTS {
		t.Error("timestamp missing")
	}
}

func TestTabsList(t *testing.T) {
	h := &TabsHandler{Host: newTestHost()}
	result, err := h.Handle(context.Background(), nil)
	if err != nil {
		t.Fatalf("tabs.list: %v", err)
	}

	tabs, ok := result.([]browser.Tab)
	if !ok {
		t.Fatalf("result type %T", result)
	}
	if len(tabs) != 2 {
		t.Fatalf("tab count = %d", len(tabs))
	}
	if tabs[0].TabID != 1 || !tabs[0].Active {
		t.Errorf("first tab = %+v", tabs[0])
	}
}

func TestCookiesGetAllFilters(t *testing.T) {
	h := &CookiesHandler{Host: newTestHost()}

	result, err := h.Handle(context.Background(), json.RawMessage(`{"domain":" example.com "}`))
	if err != nil {
		t.Fatalf("cookies.getAll: %v", err)
	}
	cookies := result.([]browser.Cookie)
	if len(cookies) != 3 {
		t.Errorf("cookie count = %d, want 3", len(cookies))
	}

	result, err = h.Handle(context.Background(), json.RawMessage(`{"domain":"example.com","name":"sid"}`))
	if err != nil {
		t.Fatalf("cookies.getAll with name: %v", err)
	}
	cookies = result.([]browser.Cookie)
	if len(cookies) != 1 || cookies[0].Name != "sid" {
		t.Errorf("filtered cookies = %+v", cookies)
	}
}

func TestCookieHeaderSorted(t *testing.T) {
	h := &CookieHeaderHandler{Host: newTestHost()}

	result, err := h.Handle(context.Background(), json.RawMessage(`{"domain":"example.com"}`))
	if err != nil {
		t.Fatalf("cookies.toHeader: %v", err)
	}

	header := result.(string)
	if header != "a=1; b=2; sid=xyz" {
		t.Errorf("header = %q", header)
	}
}

func TestCookieHeaderNameSortOnly(t *testing.T) {
	host := browser.NewStaticHost()
	host.SetCookies([]browser.Cookie{
		{Name: "b", Value: "2", Domain: "example.com"},
		{Name: "a", Value: "1", Domain: "example.com"},
	})
	h := &CookieHeaderHandler{Host: host}

	result, err := h.Handle(context.Background(), json.RawMessage(`{"domain":"example.com"}`))
	if err != nil {
		t.Fatalf("cookies.toHeader: %v", err)
	}
	if result.(string) != "a=1; b=2" {
		t.Errorf("header = %q, want %q", result, "a=1; b=2")
	}
}

func TestCookieHeaderRequiresDomain(t *testing.T) {
	h := &CookieHeaderHandler{Host: newTestHost()}

	for _, params := range []string{`{}`, `{"domain":"  "}`, ``} {
		_, err := h.Handle(context.Background(), json.RawMessage(params))
		if err == nil {
			t.Errorf("params %q: expected error", params)
			continue
		}
		if !strings.Contains(err.Error(), "domain is required") {
			t.Errorf("params %q: error = %v", params, err)
		}
	}
}

func TestStorageGetLocal(t *testing.T) {
	h := &StorageHandler{Host: newTestHost()}

	result, err := h.Handle(context.Background(), json.RawMessage(`{"tabId":1,"keys":["theme","missing"]}`))
	if err != nil {
		t.Fatalf("storage.getLocal: %v", err)
	}

	values := result.(map[string]*string)
	if values["theme"] == nil || *values["theme"] != "dark" {
		t.Errorf("theme = %v", values["theme"])
	}
	if values["missing"] != nil {
		t.Errorf("missing = %v, want nil", values["missing"])
	}
}

func TestStorageGetLocalValidation(t *testing.T) {
	h := &StorageHandler{Host: newTestHost()}

	cases := []struct {
		params  string
		wantErr string
	}{
		{`{"tabId":0,"keys":["a"]}`, "tabId is required"},
		{`{"keys":["a"]}`, "tabId is required"},
		{`{"tabId":-4,"keys":["a"]}`, "tabId is required"},
		{`{"tabId":1,"keys":[]}`, "keys is required"},
		{`{"tabId":1}`, "keys is required"},
		{`{"tabId":1,"keys":["  ",""]}`, "keys is required"},
	}

	for _, tc := range cases {
		_, err := h.Handle(context.Background(), json.RawMessage(tc.params))
		if err == nil {
			t.Errorf("params %s: expected error", tc.params)
			continue
		}
		if !strings.Contains(err.Error(), tc.wantErr) {
			t.Errorf("params %s: error = %v, want %q", tc.params, err, tc.wantErr)
		}
	}
}

func TestStorageTrimsKeys(t *testing.T) {
	host := newTestHost()
	h := &StorageHandler{Host: host}

	result, err := h.Handle(context.Background(), json.RawMessage(`{"tabId":1,"keys":[" theme "]}`))
	if err != nil {
		t.Fatalf("storage.getLocal: %v", err)
	}
	values := result.(map[string]*string)
	if values["theme"] == nil {
		t.Error("trimmed key not resolved")
	}
}
