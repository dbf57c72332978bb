// Package fightodds implements the connector.Source for the FightOdds-style
// event feed: one JSON document listing upcoming fights, each carrying the
// per-sportsbook moneyline, method and round markets.
package fightodds

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/strikeodds/strikebot/internal/config"
	"github.com/strikeodds/strikebot/internal/connector"
	"github.com/strikeodds/strikebot/internal/domain"
)

// feedPayload is the upstream wire shape. Unknown fields are ignored; missing
// fields surface as validation findings downstream, never as decode failures.
type feedPayload struct {
	GeneratedAt time.Time   `json:"generatedAt"`
	Events      []feedEvent `json:"events"`
}

type feedEvent struct {
	FightID         string     `json:"fightId"`
	ScheduledRounds int        `json:"scheduledRounds"`
	Odds            []bookOdds `json:"odds"`
}

type bookOdds struct {
	Sportsbook string         `json:"sportsbook"`
	Moneyline  moneylinePair  `json:"moneyline"`
	Method     methodTriple   `json:"method"`
	Rounds     map[string]int `json:"rounds"`
}

type moneylinePair struct {
	Fighter1 int `json:"fighter1"`
	Fighter2 int `json:"fighter2"`
}

type methodTriple struct {
	KO         int `json:"ko"`
	Submission int `json:"submission"`
	Decision   int `json:"decision"`
}

// Source fetches and parses the feed for one configured upstream.
type Source struct {
	id         string
	baseURL    string
	authType   string
	credential string
}

var _ connector.Source = (*Source)(nil)

// New builds a Source from its configuration. The credential is the resolved
// API key (already decrypted when the config points at an encrypted keyfile).
func New(cfg config.SourceConfig, credential string) *Source {
	return &Source{
		id:         cfg.ID,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		authType:   cfg.AuthType,
		credential: credential,
	}
}

func (s *Source) ID() string { return s.id }

// Requests returns the single feed fetch that makes up one cycle.
func (s *Source) Requests() []connector.Request {
	header := http.Header{}
	switch s.authType {
	case "api_key":
		header.Set("X-Api-Key", s.credential)
	case "bearer":
		header.Set("Authorization", "Bearer "+s.credential)
	}
	return []connector.Request{{
		URL:    s.baseURL + "/v1/fights/odds",
		Header: header,
	}}
}

// Parse fans the feed out into one record per (fight, sportsbook) pair.
func (s *Source) Parse(body []byte) ([]connector.Record, error) {
	var payload feedPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decoding feed: %w", err)
	}

	stamp := payload.GeneratedAt
	if stamp.IsZero() {
		stamp = time.Now().UTC()
	}

	var records []connector.Record
	for _, event := range payload.Events {
		for _, book := range event.Odds {
			records = append(records, s.transform(event, book, stamp))
		}
	}
	return records, nil
}

// transform builds the canonical snapshot for one book's view of one fight.
// Round entries beyond the scheduled distance are dirty data: flagged as a
// warning and dropped rather than carried into the snapshot.
func (s *Source) transform(event feedEvent, book bookOdds, stamp time.Time) connector.Record {
	rec := connector.Record{
		Snapshot: domain.OddsSnapshot{
			FightID:    event.FightID,
			Sportsbook: book.Sportsbook,
			Timestamp:  stamp,
			Moneyline: domain.Moneyline{
				Fighter1: book.Moneyline.Fighter1,
				Fighter2: book.Moneyline.Fighter2,
			},
			Method: domain.MethodOdds{
				KO:         book.Method.KO,
				Submission: book.Method.Submission,
				Decision:   book.Method.Decision,
			},
		},
	}

	if len(book.Rounds) == 0 {
		return rec
	}

	scheduled := event.ScheduledRounds
	if scheduled == 0 {
		scheduled = 3
	}
	rounds := make(map[string]int, len(book.Rounds))
	for key, odds := range book.Rounds {
		n, ok := roundNumber(key)
		if !ok || n > scheduled {
			rec.Warnings = append(rec.Warnings, domain.ValidationError{
				Field:    "rounds." + key,
				Message:  fmt.Sprintf("round outside the scheduled %d", scheduled),
				Value:    odds,
				Severity: domain.SeverityWarning,
			})
			continue
		}
		rounds[key] = odds
	}
	if len(rounds) > 0 {
		rec.Snapshot.Rounds = rounds
	}
	return rec
}

// roundNumber extracts n from a "roundN" key.
func roundNumber(key string) (int, bool) {
	var n int
	if _, err := fmt.Sscanf(key, "round%d", &n); err != nil || n < 1 {
		return 0, false
	}
	return n, true
}
