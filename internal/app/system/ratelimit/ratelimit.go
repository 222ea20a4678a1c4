// internal/app/system/ratelimit/ratelimit.go
package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Limiter counts requests per key in fixed windows. It is safe for
// concurrent use. Call Stop to end its cleanup goroutine.
type Limiter struct {
	mu       sync.Mutex
	windows  map[string]*window
	limit    int
	duration time.Duration
	now      func() time.Time
	stop     chan struct{}
	stopOnce sync.Once
}

type window struct {
	count     int
	expiresAt time.Time
}

// New creates a limiter allowing limit requests per key per duration.
func New(limit int, duration time.Duration) *Limiter {
	l := &Limiter{
		windows:  make(map[string]*window),
		limit:    limit,
		duration: duration,
		now:      time.Now,
		stop:     make(chan struct{}),
	}
	go l.cleanupLoop(duration * 2)
	return l
}

// Allow records one request for key and reports whether it is within the
// limit.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || now.After(w.expiresAt) {
		l.windows[key] = &window{count: 1, expiresAt: now.Add(l.duration)}
		return true
	}
	if w.count >= l.limit {
		return false
	}
	w.count++
	return true
}

// Remaining returns how many requests key may still make in its window.
func (l *Limiter) Remaining(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || l.now().After(w.expiresAt) {
		return l.limit
	}
	return max(l.limit-w.count, 0)
}

// Reset forgets key's window.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, key)
}

// Stop ends the cleanup goroutine. The limiter keeps working without it.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

func (l *Limiter) cleanupLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.mu.Lock()
			now := l.now()
			for key, w := range l.windows {
				if now.After(w.expiresAt) {
					delete(l.windows, key)
				}
			}
			l.mu.Unlock()
		}
	}
}

// ClientIP extracts the client IP from an HTTP request.
// It checks X-Forwarded-For and X-Real-IP headers first (for proxied requests),
// then falls back to RemoteAddr.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if ip := strings.TrimSpace(strings.Split(xff, ",")[0]); ip != "" {
			return ip
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// JoinLimiter throttles event join attempts so join codes cannot be guessed
// by brute force. It limits both the client address and the signed-in user.
type JoinLimiter struct {
	ip   *Limiter
	user *Limiter
}

// NewJoinLimiter allows 30 attempts per address per minute and 5 per user
// per event every 10 minutes.
func NewJoinLimiter() *JoinLimiter {
	return NewJoinLimiterWithConfig(30, time.Minute, 5, 10*time.Minute)
}

// NewJoinLimiterWithConfig creates a join limiter with custom limits.
func NewJoinLimiterWithConfig(ipLimit int, ipDuration time.Duration, userLimit int, userDuration time.Duration) *JoinLimiter {
	return &JoinLimiter{
		ip:   New(ipLimit, ipDuration),
		user: New(userLimit, userDuration),
	}
}

// Check records one attempt by userID on eventID and reports whether it
// may proceed. reason explains a refusal.
func (jl *JoinLimiter) Check(r *http.Request, userID, eventID string) (allowed bool, reason string) {
	if !jl.ip.Allow(ClientIP(r)) {
		return false, "too many join attempts from this address; wait a minute"
	}
	if !jl.user.Allow(userID + ":" + eventID) {
		return false, "too many join attempts for this event; wait a few minutes"
	}
	return true, ""
}

// Remaining reports how many more attempts userID may make on eventID in
// the current window.
func (jl *JoinLimiter) Remaining(userID, eventID string) int {
	return jl.user.Remaining(userID + ":" + eventID)
}

// Succeeded clears the user's count for the event after a successful join.
func (jl *JoinLimiter) Succeeded(userID, eventID string) {
	jl.user.Reset(userID + ":" + eventID)
}

// Stop ends both limiters' cleanup goroutines.
func (jl *JoinLimiter) Stop() {
	jl.ip.Stop()
	jl.user.Stop()
}
