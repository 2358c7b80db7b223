package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/civiclab/ordinance-api/internal/httpmw"
)

// visitor tracks a single IP's admitted request timestamps and last activity.
type visitor struct {
	// hits holds the timestamps of admitted requests inside the current
	// window, oldest first. Rejected requests are never recorded, so a
	// burst of denials cannot push the window forward.
	hits     []time.Time
	lastSeen time.Time
	// logged tracks whether we have already emitted the first-denial log.
	// Resets when the entry is evicted and re-created.
	logged bool
}

// IPLimiter holds per-IP sliding windows with background eviction.
type IPLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor

	// window controls: at most max admits per trailing window per IP
	max    int
	window time.Duration

	// maxVisitors caps the number of tracked IPs; new IPs are rejected at
	// capacity so the map cannot grow without bound. 0 disables the cap.
	maxVisitors int
	atCapacity  bool

	// OnFirstDenied is called once per visitor when they first get rate
	// limited. ip is the raw IP string (no port).
	OnFirstDenied func(ip string)

	// OnDenied is called on every denied request, used for incrementing
	// prometheus counters.
	OnDenied func(ip string)

	// OnCapacity is called once per capacity episode when a new IP is
	// rejected because the visitor map is full.
	OnCapacity func()
}

type Option func(*IPLimiter)

// WithLimit sets the admission budget: at most max requests per trailing
// window for a single IP. WithLimit(60, time.Minute) is the default.
func WithLimit(max int, window time.Duration) Option {
	return func(l *IPLimiter) {
		l.max = max
		l.window = window
	}
}

// WithMaxVisitors caps the number of distinct IPs tracked at once.
// 0 disables the cap.
func WithMaxVisitors(n int) Option {
	return func(l *IPLimiter) { l.maxVisitors = n }
}

// WithOnFirstDenied sets a callback for the first denial per visitor, used
// for logging. Intentionally separate from OnDenied so we can log once but
// count every denial.
func WithOnFirstDenied(fn func(ip string)) Option {
	return func(l *IPLimiter) { l.OnFirstDenied = fn }
}

// WithOnDenied sets a callback for every denied request.
func WithOnDenied(fn func(ip string)) Option {
	return func(l *IPLimiter) { l.OnDenied = fn }
}

// WithOnCapacity sets a callback fired once when the visitor map fills up.
func WithOnCapacity(fn func()) Option {
	return func(l *IPLimiter) { l.OnCapacity = fn }
}

// New creates an IPLimiter and starts the background sweep goroutine.
func New(ctx context.Context, opts ...Option) *IPLimiter {
	l := &IPLimiter{
		visitors:    make(map[string]*visitor),
		max:         60,
		window:      time.Minute,
		maxVisitors: 100000,
	}
	for _, o := range opts {
		o(l)
	}
	// the sweep goroutine exits when ctx is cancelled on app shutdown
	go l.sweep(ctx)
	return l
}

// Allow reports whether a request from ip may proceed right now.
func (l *IPLimiter) Allow(ip string) bool {
	return l.AllowAt(ip, time.Now())
}

// AllowAt is the admission decision at an explicit timestamp: prune stamps
// older than the window, reject without recording when the budget is spent,
// otherwise record now and admit. A stamp exactly one window old still
// counts against the budget.
//
// The prune-check-append sequence runs under the map lock so two concurrent
// requests cannot both observe a stale count and slip past the limit. The
// lock is released before any callback fires.
func (l *IPLimiter) AllowAt(ip string, now time.Time) bool {
	l.mu.Lock()

	v, exists := l.visitors[ip]
	if !exists {
		if l.maxVisitors > 0 && len(l.visitors) >= l.maxVisitors {
			fireCapacity := !l.atCapacity
			l.atCapacity = true
			l.mu.Unlock()
			if fireCapacity && l.OnCapacity != nil {
				l.OnCapacity()
			}
			if l.OnDenied != nil {
				l.OnDenied(ip)
			}
			return false
		}
		v = &visitor{}
		l.visitors[ip] = v
	}
	v.lastSeen = now

	// drop stamps that have aged out of the window; keep now-t <= window
	kept := v.hits[:0]
	for _, t := range v.hits {
		if now.Sub(t) <= l.window {
			kept = append(kept, t)
		}
	}
	v.hits = kept

	if len(v.hits) >= l.max {
		fireFirst := !v.logged
		v.logged = true
		// release before callbacks, they may do slow work
		l.mu.Unlock()
		if fireFirst && l.OnFirstDenied != nil {
			l.OnFirstDenied(ip)
		}
		if l.OnDenied != nil {
			l.OnDenied(ip)
		}
		return false
	}

	v.hits = append(v.hits, now)
	l.mu.Unlock()
	return true
}

// sweep periodically evicts visitors whose window has fully drained.
// Runs every window/2 so idle entries linger at most ~1.5 windows.
func (l *IPLimiter) sweep(ctx context.Context) {
	ticker := time.NewTicker(l.window / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			l.mu.Lock()
			for ip, v := range l.visitors {
				if now.Sub(v.lastSeen) > l.window {
					delete(l.visitors, ip)
				}
			}
			if l.maxVisitors > 0 && len(l.visitors) < l.maxVisitors {
				l.atCapacity = false
			}
			l.mu.Unlock()
		}
	}
}

// Middleware returns middleware that rejects requests over the per-IP limit
// with 429. The identity is the client IP resolved by httpmw.ClientIP;
// requests with no resolvable IP share the empty-string bucket rather than
// bypassing the limit.
func (l *IPLimiter) Middleware(next http.Handler) http.Handler {
	retryAfter := strconv.Itoa(int(l.window.Seconds()))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := httpmw.ClientIPFromContext(r.Context())

		if !l.Allow(ip) {
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.Header().Set("Retry-After", retryAfter)
			w.WriteHeader(http.StatusTooManyRequests)
			// intentionally no detail about limits or remaining budget
			w.Write([]byte(`{"error":"too many requests"}`))
			return
		}

		next.ServeHTTP(w, r)
	})
}
