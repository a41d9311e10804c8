package browser

import (
	"context"
	"errors"
	"strings"
)

// ErrUnavailable is returned when no browser is attached, either
// because the daemon runs without a CDP endpoint or the connection to
// Chrome was lost.
var ErrUnavailable = errors.New("browser host unavailable")

// Tab describes one open page. IDs are numeric per the tabs API
// contract; entries without a numeric id are never produced.
type Tab struct {
	TabID    int    `json:"tabId"`
	WindowID int    `json:"windowId"`
	URL      string `json:"url,omitempty"`
	Title    string `json:"title,omitempty"`
	Active   bool   `json:"active"`
}

// Cookie mirrors the record shape of chrome.cookies.getAll.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expirationDate,omitempty"`
	Secure   bool    `json:"secure"`
	HTTPOnly bool    `json:"httpOnly"`
	SameSite string  `json:"sameSite,omitempty"`
	HostOnly bool    `json:"hostOnly,omitempty"`
	Session  bool    `json:"session,omitempty"`
	StoreID  string  `json:"storeId,omitempty"`
}

// CookieFilter narrows a cookie query. Blank fields are unset.
type CookieFilter struct {
	Domain string
	URL    string
	Name   string
}

// Host is the browser collaborator behind the capability handlers.
type Host interface {
	// Tabs lists open pages.
	Tabs(ctx context.Context) ([]Tab, error)
	// Cookies returns cookies matching the filter.
	Cookies(ctx context.Context, filter CookieFilter) ([]Cookie, error)
	// LocalStorage reads keys from the page with the given tab id.
	// Absent or unreadable keys map to nil.
	LocalStorage(ctx context.Context, tabID int, keys []string) (map[string]*string, error)
	Close() error
}

// domainMatches reports whether a cookie set for cookieDomain is in
// scope for the filter domain, following the cookies API convention
// that a filter matches the domain itself and its subdomains.
func domainMatches(cookieDomain, filter string) bool {
	d := strings.TrimPrefix(strings.ToLower(cookieDomain), ".")
	f := strings.TrimPrefix(strings.ToLower(filter), ".")
	if f == "" {
		return true
	}
	return d == f || strings.HasSuffix(d, "."+f)
}

// filterCookies applies a CookieFilter in-memory. Both host
// implementations fetch broadly and narrow here so filter semantics
// stay identical.
func filterCookies(cookies []Cookie, filter CookieFilter) []Cookie {
	out := make([]Cookie, 0, len(cookies))
	for _, c := range cookies {
		if filter.Domain != "" && !domainMatches(c.Domain, filter.Domain) {
			continue
		}
		if filter.URL != "" && !domainMatches(c.Domain, hostOf(filter.URL)) {
			continue
		}
		if filter.Name != "" && c.Name != filter.Name {
			continue
		}
		out = append(out, c)
	}
	return out
}

func hostOf(rawURL string) string {
	s := rawURL
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	for _, sep := range []string{"/", "?", "#"} {
		if i := strings.Index(s, sep); i >= 0 {
			s = s[:i]
		}
	}
	if i := strings.LastIndex(s, ":"); i > 0 && !strings.Contains(s[i:], "]") {
		s = s[:i]
	}
	return s
}
