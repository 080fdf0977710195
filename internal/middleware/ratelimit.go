package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"

	"github.com/zhouzirui/memchat/backend/pkg/utils"
)

// TurnLimiter limits how often each session may start a turn.
type TurnLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

// NewTurnLimiter creates a limiter allowing perMinute turns per session with
// the given burst. A non-positive perMinute disables limiting.
func NewTurnLimiter(perMinute float64, burst int) *TurnLimiter {
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Limit(perMinute / 60)
	}
	if burst <= 0 {
		burst = 1
	}
	return &TurnLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     limit,
		burst:    burst,
	}
}

func (l *TurnLimiter) limiter(sessionID string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, ok := l.limiters[sessionID]
	if !ok {
		limiter = rate.NewLimiter(l.rate, l.burst)
		l.limiters[sessionID] = limiter
	}
	return limiter
}

// Allow reports whether sessionID may start a turn now.
func (l *TurnLimiter) Allow(sessionID string) bool {
	return l.limiter(sessionID).Allow()
}

// Forget drops the limiter state of an ended session.
func (l *TurnLimiter) Forget(sessionID string) {
	l.mu.Lock()
	delete(l.limiters, sessionID)
	l.mu.Unlock()
}

// Len returns the number of sessions currently tracked.
func (l *TurnLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// Guard rejects requests with 429 once the session in the {sessionID} URL
// parameter exceeds its budget. Requests for sessions known reports as absent
// pass through untracked so the handler can answer 404; a nil known tracks
// every session.
func (l *TurnLimiter) Guard(known func(sessionID string) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionID := chi.URLParam(r, "sessionID")
			if sessionID == "" || (known != nil && !known(sessionID)) {
				next.ServeHTTP(w, r)
				return
			}

			limiter := l.limiter(sessionID)
			if !limiter.Allow() {
				reservation := limiter.Reserve()
				retryAfter := reservation.Delay()
				reservation.Cancel()

				seconds := int(math.Ceil(retryAfter.Seconds()))
				if seconds < 1 {
					seconds = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(seconds))
				utils.RespondError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
