package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidSnapshot    = errors.New("invalid snapshot")
	ErrNoSessions         = errors.New("no sessions configured")
	ErrAllSessionsBlocked = errors.New("all sessions blocked")
	ErrRateLimited        = errors.New("rate limited")
	ErrSourceUnavailable  = errors.New("source unavailable")
)
