package ratelimit

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type Config struct {
	RPS   float64
	Burst int

	// Operational bounds for the in-memory map (single-process only).
	MaxEntries int
	EntryTTL   time.Duration
}

// Limiter keeps one token bucket per principal.
type Limiter struct {
	cfg Config

	mu sync.Mutex
	m  map[string]*principalLimiter
}

type principalLimiter struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func New(cfg Config) *Limiter {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 10_000
	}
	if cfg.EntryTTL <= 0 {
		cfg.EntryTTL = 30 * time.Minute
	}
	return &Limiter{
		cfg: cfg,
		m:   make(map[string]*principalLimiter),
	}
}

// Enabled reports whether requests can ever be denied.
func (l *Limiter) Enabled() bool {
	return l != nil && l.cfg.RPS > 0 && l.cfg.Burst > 0
}

func PrincipalKeyFromUserID(userID string) string {
	sum := sha256.Sum256([]byte(userID))
	return "u_" + hex.EncodeToString(sum[:16])
}

type Decision struct {
	Allowed bool
	// RetryAfter is in whole seconds, at least 1 when denied.
	RetryAfter int
}

func (l *Limiter) AcquireRequest(principal string, now time.Time) Decision {
	if !l.Enabled() {
		return Decision{Allowed: true}
	}
	if principal == "" {
		principal = "anonymous"
	}

	lim := l.getOrCreate(principal, now)
	r := lim.ReserveN(now, 1)
	if !r.OK() {
		return Decision{Allowed: false, RetryAfter: 1}
	}
	delay := r.DelayFrom(now)
	if delay <= 0 {
		return Decision{Allowed: true}
	}
	r.CancelAt(now)

	retryAfter := int(math.Ceil(delay.Seconds()))
	if retryAfter < 1 {
		retryAfter = 1
	}
	return Decision{Allowed: false, RetryAfter: retryAfter}
}

// Len is the number of tracked principals.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}

func (l *Limiter) getOrCreate(principal string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if pl, ok := l.m[principal]; ok {
		pl.lastSeen = now
		return pl.lim
	}

	if len(l.m) >= l.cfg.MaxEntries {
		l.gcLocked(now)
		// Still full: drop one arbitrary entry to stay bounded.
		if len(l.m) >= l.cfg.MaxEntries {
			for k := range l.m {
				delete(l.m, k)
				break
			}
		}
	}

	pl := &principalLimiter{
		lim:      rate.NewLimiter(rate.Limit(l.cfg.RPS), l.cfg.Burst),
		lastSeen: now,
	}
	l.m[principal] = pl
	return pl.lim
}

func (l *Limiter) gcLocked(now time.Time) {
	for k, v := range l.m {
		if now.Sub(v.lastSeen) > l.cfg.EntryTTL {
			delete(l.m, k)
		}
	}
}
