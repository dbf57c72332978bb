// Package connector runs sync cycles against upstream odds sources. A Source
// describes one provider's endpoints and payload shape; the Engine drives the
// identity pool, rate limiter and fetcher to pull each provider's batch,
// validates and transforms the payloads, and hands the resulting snapshots to
// the detectors.
package connector

import (
	"net/http"

	"github.com/strikeodds/strikebot/internal/domain"
)

// Request is one batch item to fetch during a sync cycle.
type Request struct {
	URL    string
	Header http.Header
}

// Record is one canonical snapshot produced by a source's parser, together
// with any warning-severity findings the parser retained. A single upstream
// payload fans out into one record per sportsbook it prices.
type Record struct {
	Snapshot domain.OddsSnapshot
	Warnings []domain.ValidationError
}

// Source models one upstream odds provider behind the connector boundary.
// Implementations own the provider's wire shape; the engine only ever sees
// canonical records.
type Source interface {
	// ID returns the source identifier used in configuration and results.
	ID() string
	// Requests returns the batch of fetches that make up one sync cycle.
	Requests() []Request
	// Parse decodes a raw payload into canonical records. A nil error with
	// per-record warnings is the normal path for partially dirty payloads;
	// an error means the payload as a whole is unusable.
	Parse(body []byte) ([]Record, error)
}
