package fetch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/strikeodds/strikebot/internal/identity"
)

// ErrRobotsDisallowed reports that the target path is excluded by the host's
// robots.txt. The connector skips the request instead of retrying it; no
// session is blocked.
var ErrRobotsDisallowed = errors.New("disallowed by robots.txt")

// maxRobotsBytes bounds the robots.txt read.
const maxRobotsBytes = 512 << 10

// robotsRules holds the Allow/Disallow directives that apply to us, in file
// order. A nil or empty value allows everything.
type robotsRules struct {
	rules []robotsRule
}

type robotsRule struct {
	path  string
	allow bool
}

// allows reports whether the path may be fetched. The longest matching prefix
// wins; on equal length an Allow directive wins.
func (r *robotsRules) allows(path string) bool {
	if r == nil {
		return true
	}
	allowed, best := true, -1
	for _, rule := range r.rules {
		if !strings.HasPrefix(path, rule.path) {
			continue
		}
		if len(rule.path) > best || (len(rule.path) == best && rule.allow) {
			allowed, best = rule.allow, len(rule.path)
		}
	}
	return allowed
}

// parseRobots extracts the directives from the wildcard (User-agent: *)
// groups. Patterns containing wildcards are ignored; everything else is
// treated as a path prefix.
func parseRobots(body []byte) *robotsRules {
	r := &robotsRules{}
	applies, inGroup := false, false

	for _, line := range strings.Split(string(body), "\n") {
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		key, val, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		val = strings.TrimSpace(val)

		switch key {
		case "user-agent":
			if inGroup {
				applies, inGroup = false, false
			}
			if val == "*" {
				applies = true
			}
		case "allow", "disallow":
			inGroup = true
			if !applies || val == "" || strings.ContainsAny(val, "*$") {
				continue
			}
			r.rules = append(r.rules, robotsRule{path: val, allow: key == "allow"})
		}
	}
	return r
}

// robotsAllow checks the target URL against the host's robots.txt, fetching
// and caching the file on first contact with the host. An unreachable or
// non-200 robots.txt allows everything; exclusion is opt-in by the upstream.
func (f *Fetcher) robotsAllow(ctx context.Context, client *http.Client, s *identity.Session, rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}
	origin := u.Scheme + "://" + u.Host

	f.robotsMu.Lock()
	rules, ok := f.robotsCache[origin]
	f.robotsMu.Unlock()

	if !ok {
		rules = f.fetchRobots(ctx, client, s, origin)
		f.robotsMu.Lock()
		f.robotsCache[origin] = rules
		f.robotsMu.Unlock()
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	return rules.allows(path)
}

// fetchRobots retrieves and parses the host's robots.txt through the
// session's transport. Any failure yields allow-all rules.
func (f *Fetcher) fetchRobots(ctx context.Context, client *http.Client, s *identity.Session, origin string) *robotsRules {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+"/robots.txt", nil)
	if err != nil {
		return &robotsRules{}
	}
	req.Header.Set("User-Agent", s.UserAgent)

	resp, err := client.Do(req)
	if err != nil {
		f.logger.Debug("robots.txt unavailable",
			slog.String("origin", origin),
			slog.String("error", err.Error()),
		)
		return &robotsRules{}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &robotsRules{}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBytes))
	if err != nil {
		return &robotsRules{}
	}
	rules := parseRobots(body)
	f.logger.Debug("robots.txt loaded",
		slog.String("origin", origin),
		slog.Int("rules", len(rules.rules)),
	)
	return rules
}
