// Package session tracks the health of one portal session. The portal token
// is issued by an external login step and cannot be refreshed here; when the
// portal answers 401 the session is flagged so that step knows to log in again.
//
// State lives in memory and, when a Redis client is configured, is mirrored to
// a Redis hash so a supervising process can see it while a harvest runs.
package session

import (
	"time"
)

// RedisKeyPrefix prefixes the per-scope session hash.
const RedisKeyPrefix = "portal:session:"

// Hash fields of the mirrored state.
const (
	fieldTokenExpired = "token_expired"
	fieldUnauthorized = "unauthorized_total"
	fieldLastFailure  = "last_failure"
	fieldLastUpdate   = "last_update"
)

// State is the session health snapshot for one scope (usually a broker).
type State struct {
	// Scope names the session, e.g. the broker being harvested.
	Scope string `json:"scope"`

	// TokenExpired is set after the portal rejected the token with 401.
	TokenExpired bool `json:"token_expired"`

	// Unauthorized counts 401 responses seen in this session.
	Unauthorized int `json:"unauthorized_total"`

	// LastFailure is when the last 401 was seen.
	LastFailure time.Time `json:"last_failure"`

	// LastUpdate is when this state last changed.
	LastUpdate time.Time `json:"last_update"`
}

// IsStale returns true if the state has not changed for longer than maxAge.
func (s *State) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// Healthy reports whether the token is still believed valid.
func (s *State) Healthy() bool {
	return !s.TokenExpired
}

func redisKey(scope string) string {
	return RedisKeyPrefix + scope
}
