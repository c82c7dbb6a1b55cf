package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	rateLimitMaxIP   = 200 // запросов в минуту
	rateLimitMaxUser = 100
	limiterIdleTTL   = 10 * time.Minute
)

type limiterEntry struct {
	lim  *rate.Limiter
	seen time.Time
}

// keyedLimiter — token bucket на каждый ключ; простаивающие ключи вычищаются при обращениях.
type keyedLimiter struct {
	mu      sync.Mutex
	entries map[string]*limiterEntry
	limit   rate.Limit
	burst   int
	sweep   time.Time
}

func newKeyedLimiter(perMinute int) *keyedLimiter {
	return &keyedLimiter{
		entries: make(map[string]*limiterEntry),
		limit:   rate.Limit(float64(perMinute) / 60),
		burst:   perMinute,
	}
}

func (k *keyedLimiter) allow(key string) bool {
	now := time.Now()
	k.mu.Lock()
	defer k.mu.Unlock()
	if now.Sub(k.sweep) > limiterIdleTTL {
		for key, e := range k.entries {
			if now.Sub(e.seen) > limiterIdleTTL {
				delete(k.entries, key)
			}
		}
		k.sweep = now
	}
	e, ok := k.entries[key]
	if !ok {
		e = &limiterEntry{lim: rate.NewLimiter(k.limit, k.burst)}
		k.entries[key] = e
	}
	e.seen = now
	return e.lim.AllowN(now, 1)
}

// RateLimiter ограничивает запросы по IP и по user_id (если есть в контексте).
type RateLimiter struct {
	byIP   *keyedLimiter
	byUser *keyedLimiter
}

func NewRateLimiter(perIPPerMinute, perUserPerMinute int) *RateLimiter {
	if perIPPerMinute <= 0 {
		perIPPerMinute = rateLimitMaxIP
	}
	if perUserPerMinute <= 0 {
		perUserPerMinute = rateLimitMaxUser
	}
	return &RateLimiter{byIP: newKeyedLimiter(perIPPerMinute), byUser: newKeyedLimiter(perUserPerMinute)}
}

// Handler — middleware для /api/*. 429 при превышении. Ставить после RealIP и BearerAuth.
func (l *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.byIP.allow(ClientIP(r)) {
			tooMany(w)
			return
		}
		if userID := GetUserID(r.Context()); userID != "" {
			if !l.byUser.allow("u:" + userID) {
				tooMany(w)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// RateLimitAPI ограничивает запросы к /api/* по IP и по user_id. Нули — значения по умолчанию.
func RateLimitAPI(perIPPerMinute, perUserPerMinute int) func(http.Handler) http.Handler {
	return NewRateLimiter(perIPPerMinute, perUserPerMinute).Handler
}

// ClientIP — адрес клиента без порта (RemoteAddr уже переписан chi RealIP).
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func tooMany(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusTooManyRequests)
	_, _ = w.Write([]byte(`{"error":"too many requests"}` + "\n"))
}
