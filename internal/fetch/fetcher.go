// Package fetch performs single network exchanges through a session's identity
// and classifies the HTTP-level outcome. It never retries; the connector layer
// decides what a soft block or hard error means for the batch.
package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"sync"
	"time"

	xproxy "golang.org/x/net/proxy"

	"github.com/strikeodds/strikebot/internal/identity"
)

// Outcome classifies one fetch attempt.
type Outcome int

const (
	// OutcomeSuccess is a 2xx response; Result.Body carries the payload.
	OutcomeSuccess Outcome = iota
	// OutcomeSoftBlock is a 4xx-class response (429, 403, ...). The caller
	// should mark the session blocked and retry with a different session.
	OutcomeSoftBlock
	// OutcomeHardError is a transport-level failure (timeout, DNS, reset) or
	// a 5xx response. The caller should also mark the session blocked.
	OutcomeHardError
)

// String returns the outcome label used in logs and metrics.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeSoftBlock:
		return "soft_block"
	default:
		return "hard_error"
	}
}

// Result is the classified outcome of one exchange.
type Result struct {
	Outcome    Outcome
	StatusCode int
	Body       []byte
	Reason     string
}

// maxBodyBytes bounds the response body read to keep a hostile upstream from
// exhausting memory.
const maxBodyBytes = 8 << 20

// Config configures a Fetcher.
type Config struct {
	Timeout          time.Duration
	RandomizeHeaders bool
	// RespectRobots checks each URL against the host's robots.txt before
	// fetching. Disallowed paths fail with ErrRobotsDisallowed.
	RespectRobots bool
	Logger        *slog.Logger
}

// Fetcher performs requests using a session's proxy and header identity.
// Transports are cached per proxy so connections are reused across cycles.
type Fetcher struct {
	timeout          time.Duration
	randomizeHeaders bool
	respectRobots    bool
	logger           *slog.Logger

	mu         sync.Mutex
	transports map[string]*http.Transport // proxy addr ("" = direct) -> transport

	robotsMu    sync.Mutex
	robotsCache map[string]*robotsRules // scheme://host -> parsed robots.txt
}

// New creates a Fetcher.
func New(cfg Config) *Fetcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Fetcher{
		timeout:          timeout,
		randomizeHeaders: cfg.RandomizeHeaders,
		respectRobots:    cfg.RespectRobots,
		logger:           cfg.Logger.With(slog.String("component", "fetcher")),
		transports:       make(map[string]*http.Transport),
		robotsCache:      make(map[string]*robotsRules),
	}
}

// Do performs one GET exchange through the session's identity and classifies
// the result. 4xx responses are returned as soft blocks, never as errors;
// transport failures and 5xx responses return an error alongside a hard-error
// result so the caller can route them through the failure path.
func (f *Fetcher) Do(ctx context.Context, s *identity.Session, url string, header http.Header) (Result, error) {
	transport, err := f.transportFor(s.Proxy)
	if err != nil {
		return Result{Outcome: OutcomeHardError, Reason: err.Error()}, err
	}

	client := &http.Client{Transport: transport, Timeout: f.timeout}

	if f.respectRobots && !f.robotsAllow(ctx, client, s, url) {
		err := fmt.Errorf("fetch: %s: %w", url, ErrRobotsDisallowed)
		return Result{Outcome: OutcomeHardError, Reason: ErrRobotsDisallowed.Error()}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Result{Outcome: OutcomeHardError, Reason: err.Error()}, fmt.Errorf("fetch: create request: %w", err)
	}
	f.applyHeaders(req, s, header)

	resp, err := client.Do(req)
	if err != nil {
		return Result{Outcome: OutcomeHardError, Reason: err.Error()}, fmt.Errorf("fetch: %s: %w", s.ID, err)
	}
	defer resp.Body.Close()

	f.captureCookies(s, resp)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return Result{Outcome: OutcomeHardError, StatusCode: resp.StatusCode, Reason: err.Error()},
				fmt.Errorf("fetch: read body: %w", err)
		}
		return Result{Outcome: OutcomeSuccess, StatusCode: resp.StatusCode, Body: body}, nil

	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		// Soft block: drained and classified, never an error.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		reason := fmt.Sprintf("upstream status %d", resp.StatusCode)
		f.logger.Debug("soft block",
			slog.String("session", s.ID),
			slog.Int("status", resp.StatusCode),
		)
		return Result{Outcome: OutcomeSoftBlock, StatusCode: resp.StatusCode, Reason: reason}, nil

	default:
		reason := fmt.Sprintf("upstream status %d", resp.StatusCode)
		return Result{Outcome: OutcomeHardError, StatusCode: resp.StatusCode, Reason: reason},
			fmt.Errorf("fetch: %s: %s", s.ID, reason)
	}
}

// applyHeaders builds the request headers from the session identity plus any
// caller-supplied headers, with optional randomized cache headers to reduce
// fingerprinting.
func (f *Fetcher) applyHeaders(req *http.Request, s *identity.Session, extra http.Header) {
	req.Header.Set("User-Agent", s.UserAgent)
	req.Header.Set("Accept", "application/json, text/plain, */*")

	for name, value := range s.Cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}
	for k, vs := range extra {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	if f.randomizeHeaders {
		if rand.Intn(2) == 0 {
			req.Header.Set("Cache-Control", "no-cache")
			req.Header.Set("Pragma", "no-cache")
		}
		langs := []string{"en-US,en;q=0.9", "en-GB,en;q=0.8", "en-US,en;q=0.5"}
		req.Header.Set("Accept-Language", langs[rand.Intn(len(langs))])
	}
}

// captureCookies accumulates response cookies onto the session identity.
func (f *Fetcher) captureCookies(s *identity.Session, resp *http.Response) {
	for _, c := range resp.Cookies() {
		if c.Name != "" {
			s.SetCookie(c.Name, c.Value)
		}
	}
}

// transportFor returns (building and caching on first use) the transport for
// the session's proxy descriptor.
func (f *Fetcher) transportFor(p *identity.ProxyDescriptor) (*http.Transport, error) {
	key := ""
	if p != nil {
		key = p.Protocol + "://" + p.Addr()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.transports[key]; ok {
		return t, nil
	}

	t, err := buildTransport(p)
	if err != nil {
		return nil, err
	}
	f.transports[key] = t
	return t, nil
}

// buildTransport constructs a transport for the given proxy: plain when nil,
// HTTP/HTTPS tunneling via Transport.Proxy, SOCKS5 via a custom dialer.
func buildTransport(p *identity.ProxyDescriptor) (*http.Transport, error) {
	base := http.DefaultTransport.(*http.Transport).Clone()
	if p == nil {
		return base, nil
	}

	switch p.Protocol {
	case "http", "https":
		base.Proxy = http.ProxyURL(p.URL())
		return base, nil

	case "socks5":
		var auth *xproxy.Auth
		if p.Username != "" {
			auth = &xproxy.Auth{User: p.Username, Password: p.Password}
		}
		dialer, err := xproxy.SOCKS5("tcp", p.Addr(), auth, xproxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("fetch: socks5 dialer for %s: %w", p.Addr(), err)
		}
		base.Proxy = nil
		if cd, ok := dialer.(xproxy.ContextDialer); ok {
			base.DialContext = cd.DialContext
		} else {
			base.DialContext = func(ctx context.Context, network, addr string) (conn net.Conn, err error) {
				return dialer.Dial(network, addr)
			}
		}
		return base, nil

	default:
		// socks4 upstreams are rare enough that the transport does not carry
		// a client for them; configure socks5 or an HTTP CONNECT proxy.
		return nil, fmt.Errorf("fetch: unsupported proxy protocol %q", p.Protocol)
	}
}
