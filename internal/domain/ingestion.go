package domain

import (
	"fmt"
	"time"
)

// Severity grades a validation finding. Records with an "error" finding are
// skipped; "warning" findings ride along with the record.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// ValidationError describes one problem found while validating an upstream
// payload.
type ValidationError struct {
	Field    string   `json:"field"`
	Message  string   `json:"message"`
	Value    any      `json:"value,omitempty"`
	Severity Severity `json:"severity"`
}

// IngestionResult summarizes one sync cycle for one source. It is returned to
// the caller and logged, never persisted as an entity.
type IngestionResult struct {
	SourceID         string            `json:"sourceId"`
	RecordsProcessed int               `json:"recordsProcessed"`
	RecordsSkipped   int               `json:"recordsSkipped"`
	Errors           []ValidationError `json:"errors"`
	ProcessingTimeMs int64             `json:"processingTimeMs"`
	NextSyncTime     time.Time         `json:"nextSyncTime"`
}

// AddError appends a finding and returns whether the record should be kept
// (true for warnings, false for errors).
func (r *IngestionResult) AddError(e ValidationError) bool {
	r.Errors = append(r.Errors, e)
	return e.Severity != SeverityError
}

// CheckSnapshot runs the structural rules over a snapshot and returns findings
// keyed by the offending field. Error-severity findings mean the record must
// be skipped; optional markets priced outside the realistic band come back as
// warnings because the moneyline is still usable.
func CheckSnapshot(s OddsSnapshot) []ValidationError {
	var findings []ValidationError
	add := func(field, message string, value any, sev Severity) {
		findings = append(findings, ValidationError{Field: field, Message: message, Value: value, Severity: sev})
	}

	if s.FightID == "" {
		add("fightId", "missing fight identifier", nil, SeverityError)
	}
	if s.Sportsbook == "" {
		add("sportsbook", "missing sportsbook name", nil, SeverityError)
	}
	if s.Timestamp.IsZero() {
		add("timestamp", "zero timestamp", nil, SeverityError)
	}
	if !ValidOddsValue(s.Moneyline.Fighter1) {
		add("moneyline.fighter1", "odds outside realistic band", s.Moneyline.Fighter1, SeverityError)
	}
	if !ValidOddsValue(s.Moneyline.Fighter2) {
		add("moneyline.fighter2", "odds outside realistic band", s.Moneyline.Fighter2, SeverityError)
	}
	if s.Moneyline.Fighter1 > 0 && s.Moneyline.Fighter2 > 0 {
		add("moneyline", "both legs positive", fmt.Sprintf("%d/%d", s.Moneyline.Fighter1, s.Moneyline.Fighter2), SeverityError)
	}

	// A zero method market just means the book does not price it; a nonzero
	// value in the dead band is a dirty quote worth flagging.
	method := map[string]int{"method.ko": s.Method.KO, "method.submission": s.Method.Submission, "method.decision": s.Method.Decision}
	for field, odds := range method {
		if odds != 0 && !ValidOddsValue(odds) {
			add(field, "odds outside realistic band", odds, SeverityWarning)
		}
	}
	for round, odds := range s.Rounds {
		if !ValidOddsValue(odds) {
			add("rounds."+round, "odds outside realistic band", odds, SeverityWarning)
		}
	}
	return findings
}

// HasErrorFinding reports whether any finding is error severity.
func HasErrorFinding(findings []ValidationError) bool {
	for _, f := range findings {
		if f.Severity == SeverityError {
			return true
		}
	}
	return false
}
