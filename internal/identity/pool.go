package identity

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/strikeodds/strikebot/internal/domain"
)

// EventKind labels pool lifecycle events.
type EventKind string

const (
	EventSessionBlocked EventKind = "session_blocked"
	EventPoolExhausted  EventKind = "pool_exhausted"
	EventSessionReset   EventKind = "session_reset"
)

// Event is emitted on a bounded channel when pool state changes that operators
// care about (a session blocked, the whole pool exhausted).
type Event struct {
	Kind      EventKind
	SourceID  string
	SessionID string
	Reason    string
	At        time.Time
}

// PoolConfig configures a Pool.
type PoolConfig struct {
	SourceID   string
	Proxies    []ProxyDescriptor
	UserAgents []string
	DelayMin   time.Duration
	DelayMax   time.Duration
	Logger     *slog.Logger

	// PinSession disables rotation: Acquire keeps returning the same session
	// until it blocks, then moves to the next unblocked one.
	PinSession bool
}

// Pool owns a set of sessions and hands out the next unblocked one in
// round-robin order. It also enforces the randomized per-session spacing
// between consecutive requests. Safe for concurrent use; all session field
// mutation happens under the pool mutex.
type Pool struct {
	sourceID   string
	userAgents []string
	delayMin   time.Duration
	delayMax   time.Duration
	pin        bool
	logger     *slog.Logger

	mu             sync.Mutex
	sessions       []*Session
	cursor         int
	blockedProxies map[string]bool

	events chan Event
}

// NewPool creates a Pool with one session per configured proxy, or a single
// proxy-less session when no proxies are configured.
func NewPool(cfg PoolConfig) *Pool {
	uas := cfg.UserAgents
	if len(uas) == 0 {
		uas = defaultUserAgents
	}

	p := &Pool{
		sourceID:       cfg.SourceID,
		userAgents:     uas,
		delayMin:       cfg.DelayMin,
		delayMax:       cfg.DelayMax,
		pin:            cfg.PinSession,
		logger:         cfg.Logger.With(slog.String("component", "identity_pool"), slog.String("source", cfg.SourceID)),
		blockedProxies: make(map[string]bool),
		events:         make(chan Event, 64),
	}

	if len(cfg.Proxies) == 0 {
		p.sessions = []*Session{p.newSession(fmt.Sprintf("%s-direct", cfg.SourceID), nil)}
		return p
	}
	for i := range cfg.Proxies {
		proxy := cfg.Proxies[i]
		p.sessions = append(p.sessions, p.newSession(fmt.Sprintf("%s-%d", cfg.SourceID, i), &proxy))
	}
	return p
}

func (p *Pool) newSession(id string, proxy *ProxyDescriptor) *Session {
	return &Session{
		ID:        id,
		Proxy:     proxy,
		UserAgent: p.userAgents[rand.Intn(len(p.userAgents))],
		Cookies:   make(map[string]string),
	}
}

// Events returns the bounded event channel. Events are dropped, not blocked
// on, when no consumer keeps up.
func (p *Pool) Events() <-chan Event {
	return p.events
}

func (p *Pool) emit(ev Event) {
	ev.SourceID = p.sourceID
	select {
	case p.events <- ev:
	default:
	}
}

// Acquire returns the next unblocked session in round-robin order. The cursor
// persists across calls so no session is starved. A pinned pool keeps the
// cursor on the current session until that session blocks. It returns
// domain.ErrAllSessionsBlocked when every session is blocked.
func (p *Pool) Acquire() (*Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.sessions) == 0 {
		return nil, domain.ErrNoSessions
	}

	for i := 0; i < len(p.sessions); i++ {
		s := p.sessions[p.cursor%len(p.sessions)]
		if !s.Blocked {
			if !p.pin {
				p.cursor++
			}
			return s, nil
		}
		p.cursor++
	}

	p.emit(Event{Kind: EventPoolExhausted, Reason: "all sessions blocked", At: time.Now()})
	return nil, domain.ErrAllSessionsBlocked
}

// AwaitSpacing suspends until the session's randomized minimum delay since its
// last request has elapsed, then stamps the session's last-request time and
// increments its request counter. The stamp happens even when no delay was
// needed.
func (p *Pool) AwaitSpacing(ctx context.Context, s *Session) error {
	p.mu.Lock()
	target := p.delayMin
	if p.delayMax > p.delayMin {
		target += time.Duration(rand.Int63n(int64(p.delayMax - p.delayMin)))
	}
	wait := target - time.Since(s.LastRequest)
	if s.LastRequest.IsZero() {
		wait = 0
	}
	p.mu.Unlock()

	if wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	p.mu.Lock()
	s.LastRequest = time.Now()
	s.RequestCount++
	p.mu.Unlock()
	return nil
}

// MarkBlocked flags the session, records the reason, and quarantines its proxy.
func (p *Pool) MarkBlocked(s *Session, reason string) {
	p.mu.Lock()
	s.Blocked = true
	s.BlockReason = reason
	if s.Proxy != nil {
		p.blockedProxies[s.Proxy.Addr()] = true
	}
	p.mu.Unlock()

	p.logger.Warn("session blocked",
		slog.String("session", s.ID),
		slog.String("reason", reason),
	)
	p.emit(Event{Kind: EventSessionBlocked, SessionID: s.ID, Reason: reason, At: time.Now()})
}

// ResetSession clears the session's blocked flag, cookies, and request
// counter, assigns a fresh user agent, and removes its proxy from quarantine.
func (p *Pool) ResetSession(s *Session) {
	p.mu.Lock()
	p.resetLocked(s)
	p.mu.Unlock()
	p.emit(Event{Kind: EventSessionReset, SessionID: s.ID, At: time.Now()})
}

// ResetAll resets every session in the pool. Used by operator recovery after
// a pool-exhausted condition.
func (p *Pool) ResetAll() {
	p.mu.Lock()
	for _, s := range p.sessions {
		p.resetLocked(s)
	}
	p.mu.Unlock()
	p.logger.Info("all sessions reset", slog.Int("sessions", p.Size()))
}

func (p *Pool) resetLocked(s *Session) {
	s.Blocked = false
	s.BlockReason = ""
	s.Cookies = make(map[string]string)
	s.RequestCount = 0
	s.UserAgent = p.userAgents[rand.Intn(len(p.userAgents))]
	if s.Proxy != nil {
		delete(p.blockedProxies, s.Proxy.Addr())
	}
}

// Size returns the total number of sessions.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sessions)
}

// UnblockedCount returns the number of currently usable sessions.
func (p *Pool) UnblockedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, s := range p.sessions {
		if !s.Blocked {
			n++
		}
	}
	return n
}

// BlockedProxies returns the quarantined proxy addresses.
func (p *Pool) BlockedProxies() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.blockedProxies))
	for addr := range p.blockedProxies {
		out = append(out, addr)
	}
	return out
}
