// Package identity manages the pool of network identities (proxy + user agent
// + cookie state) used to fetch from rate-limiting upstream sources. The pool
// is a resource allocator only; retry policy lives in the connector layer.
package identity

import (
	"fmt"
	"net/url"
	"time"
)

// ProxyDescriptor identifies one outbound proxy. Immutable, supplied by
// configuration.
type ProxyDescriptor struct {
	Host     string
	Port     int
	Username string
	Password string
	Protocol string // http, https, socks4, socks5
}

// Addr returns the host:port address of the proxy.
func (p ProxyDescriptor) Addr() string {
	return fmt.Sprintf("%s:%d", p.Host, p.Port)
}

// URL returns the proxy as a URL with credentials, suitable for
// http.Transport.Proxy.
func (p ProxyDescriptor) URL() *url.URL {
	u := &url.URL{
		Scheme: p.Protocol,
		Host:   p.Addr(),
	}
	if p.Username != "" {
		u.User = url.UserPassword(p.Username, p.Password)
	}
	return u
}

// Session is one network identity: an optional proxy, a user agent, and
// accumulated cookie state. Sessions are owned exclusively by the Pool; a
// session is never used by two in-flight requests simultaneously.
type Session struct {
	ID           string
	Proxy        *ProxyDescriptor
	UserAgent    string
	Cookies      map[string]string
	RequestCount int
	LastRequest  time.Time
	Blocked      bool
	BlockReason  string
}

// SetCookie records a cookie received on this session's identity.
func (s *Session) SetCookie(name, value string) {
	if s.Cookies == nil {
		s.Cookies = make(map[string]string)
	}
	s.Cookies[name] = value
}

// defaultUserAgents is the fallback user-agent pool when a source does not
// configure its own.
var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.6 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:133.0) Gecko/20100101 Firefox/133.0",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/130.0.0.0 Safari/537.36",
}
