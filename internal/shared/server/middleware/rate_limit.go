package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"resume-revamp/internal/shared/server/respond"
)

// Rate limit groups.
const (
	GroupDefault = "DEFAULT"
	// GroupRewrite covers the endpoints that call the LLM.
	GroupRewrite = "REWRITE"
)

// sweepEvery bounds how often idle principals are dropped from the limiter.
const sweepEvery = 256

// RateLimitRule allows Rate requests per second on average with bursts of up
// to Burst requests.
type RateLimitRule struct {
	Rate  float64
	Burst int
}

func (r RateLimitRule) interval() time.Duration {
	return time.Duration(float64(time.Second) / r.Rate)
}

// RateLimitConfig maps groups to rules. Requests in groups without a rule pass.
type RateLimitConfig struct {
	Rules        map[string]RateLimitRule
	DefaultGroup string
	GroupFor     func(*gin.Context) string
	Limiter      *RateLimiter
}

// RateLimiter is a GCRA limiter: per key it remembers the theoretical
// arrival time of the next request instead of a token count.
type RateLimiter struct {
	mu    sync.Mutex
	tat   map[string]time.Time
	now   func() time.Time
	calls int
}

// NewRateLimiter returns a limiter; a nil clock uses time.Now.
func NewRateLimiter(now func() time.Time) *RateLimiter {
	if now == nil {
		now = time.Now
	}
	return &RateLimiter{tat: make(map[string]time.Time), now: now}
}

// Allow admits one request for key, or reports how long to wait.
func (l *RateLimiter) Allow(key string, rule RateLimitRule) (bool, time.Duration) {
	if l == nil || rule.Rate <= 0 || rule.Burst <= 0 {
		return true, 0
	}
	step := rule.interval()
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweep(now)

	tat := l.tat[key]
	if tat.Before(now) {
		tat = now
	}
	next := tat.Add(step)
	earliest := next.Add(-time.Duration(rule.Burst) * step)
	if now.Before(earliest) {
		return false, earliest.Sub(now)
	}
	l.tat[key] = next
	return true, 0
}

// sweep drops keys whose budget has fully recovered. Caller holds mu.
func (l *RateLimiter) sweep(now time.Time) {
	l.calls++
	if l.calls%sweepEvery != 0 {
		return
	}
	for key, tat := range l.tat {
		if !tat.After(now) {
			delete(l.tat, key)
		}
	}
}

// RateLimit rejects over-budget requests with 429 rate_limited and Retry-After.
func RateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	if cfg.Limiter == nil {
		cfg.Limiter = NewRateLimiter(nil)
	}
	if cfg.DefaultGroup == "" {
		cfg.DefaultGroup = GroupDefault
	}
	return func(c *gin.Context) {
		group := cfg.DefaultGroup
		if cfg.GroupFor != nil {
			if g := strings.TrimSpace(cfg.GroupFor(c)); g != "" {
				group = g
			}
		}
		rule, ok := cfg.Rules[group]
		if !ok {
			c.Next()
			return
		}

		who := UserIDFromContext(c)
		if who == "" {
			who = "ip:" + c.ClientIP()
		}
		ok, wait := cfg.Limiter.Allow(group+"/"+who, rule)
		if ok {
			c.Next()
			return
		}

		waitMs := max(wait.Milliseconds(), 1)
		c.Header("Retry-After", strconv.FormatInt((waitMs+999)/1000, 10))
		respond.Error(c, http.StatusTooManyRequests, "rate_limited", "Too many requests, slow down", gin.H{
			"group":          group,
			"retry_after_ms": waitMs,
		})
	}
}
