package session

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var (
	unauthorizedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_session_unauthorized_total",
		Help: "Total number of 401 responses by session scope",
	}, []string{"scope"})

	tokenExpiredGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "portal_session_token_expired",
		Help: "1 when the session token was rejected by the portal",
	}, []string{"scope"})
)

// StateTTL bounds how long a mirrored state outlives its session.
const StateTTL = 24 * time.Hour

// Tracker records session health for one scope. The zero Redis client is
// allowed; the state is then kept in memory only.
type Tracker struct {
	redis  *redis.Client
	scope  string
	logger zerolog.Logger

	mu    sync.Mutex
	state State
}

// NewTracker creates a tracker for scope.
func NewTracker(redisClient *redis.Client, scope string, logger zerolog.Logger) *Tracker {
	return &Tracker{
		redis:  redisClient,
		scope:  scope,
		logger: logger,
		state:  State{Scope: scope, LastUpdate: time.Now()},
	}
}

// TokenExpired reports whether a 401 was seen since the last Reset.
func (t *Tracker) TokenExpired() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.TokenExpired
}

// MarkUnauthorized flags the token as likely expired. Mirroring failures are
// returned but the in-memory flag is always set.
func (t *Tracker) MarkUnauthorized(ctx context.Context) error {
	now := time.Now()

	t.mu.Lock()
	first := !t.state.TokenExpired
	t.state.TokenExpired = true
	t.state.Unauthorized++
	t.state.LastFailure = now
	t.state.LastUpdate = now
	snapshot := t.state
	t.mu.Unlock()

	unauthorizedTotal.WithLabelValues(t.scope).Inc()
	tokenExpiredGauge.WithLabelValues(t.scope).Set(1)

	if first {
		t.logger.Warn().
			Str("scope", t.scope).
			Msg("Portal rejected the token (401); session token may have expired")
	}

	return t.store(ctx, snapshot)
}

// Reset clears the expiry flag, e.g. after a new token was issued.
func (t *Tracker) Reset(ctx context.Context) error {
	t.mu.Lock()
	t.state = State{Scope: t.scope, LastUpdate: time.Now()}
	snapshot := t.state
	t.mu.Unlock()

	tokenExpiredGauge.WithLabelValues(t.scope).Set(0)
	return t.store(ctx, snapshot)
}

// GetState returns the current state. With Redis configured the mirrored
// hash is authoritative, so a state written by another process is visible.
func (t *Tracker) GetState(ctx context.Context) (*State, error) {
	if t.redis == nil {
		t.mu.Lock()
		defer t.mu.Unlock()
		s := t.state
		return &s, nil
	}

	fields, err := t.redis.HGetAll(ctx, redisKey(t.scope)).Result()
	if err != nil {
		return nil, fmt.Errorf("get session state: %w", err)
	}
	if len(fields) == 0 {
		t.logger.Debug().Str("scope", t.scope).Msg("No session state in Redis, returning healthy state")
		return &State{Scope: t.scope, LastUpdate: time.Now()}, nil
	}

	state := &State{Scope: t.scope}
	state.TokenExpired = fields[fieldTokenExpired] == "1"
	if n, err := strconv.Atoi(fields[fieldUnauthorized]); err == nil {
		state.Unauthorized = n
	}
	if ts, err := strconv.ParseInt(fields[fieldLastFailure], 10, 64); err == nil && ts > 0 {
		state.LastFailure = time.Unix(ts, 0)
	}
	if ts, err := strconv.ParseInt(fields[fieldLastUpdate], 10, 64); err == nil {
		state.LastUpdate = time.Unix(ts, 0)
	}
	return state, nil
}

func (t *Tracker) store(ctx context.Context, s State) error {
	if t.redis == nil {
		return nil
	}

	expired := "0"
	if s.TokenExpired {
		expired = "1"
	}
	var lastFailure int64
	if !s.LastFailure.IsZero() {
		lastFailure = s.LastFailure.Unix()
	}

	pipe := t.redis.Pipeline()
	pipe.HSet(ctx, redisKey(t.scope),
		fieldTokenExpired, expired,
		fieldUnauthorized, s.Unauthorized,
		fieldLastFailure, lastFailure,
		fieldLastUpdate, s.LastUpdate.Unix(),
	)
	pipe.Expire(ctx, redisKey(t.scope), StateTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store session state in redis: %w", err)
	}
	return nil
}
