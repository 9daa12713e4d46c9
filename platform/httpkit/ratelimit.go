package httpkit

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"bbys_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// idleTTL is how long a client's bucket survives without requests.
const idleTTL = 10 * time.Minute

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter keeps one token bucket per client address.
type IPRateLimiter struct {
	mu       sync.Mutex
	buckets  map[string]*bucket
	limit    rate.Limit
	burst    int
	lastSwept time.Time
	now      func() time.Time
	log      *logger.Logger
}

func NewIPRateLimiter(limit rate.Limit, burst int, log *logger.Logger) *IPRateLimiter {
	return &IPRateLimiter{
		buckets: make(map[string]*bucket),
		limit:   limit,
		burst:   burst,
		now:     time.Now,
		log:     log,
	}
}

// reserve takes a token for ip and reports how long the caller should wait
// when none is left.
func (l *IPRateLimiter) reserve(ip string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSwept) > idleTTL {
		for key, b := range l.buckets {
			if now.Sub(b.lastSeen) > idleTTL {
				delete(l.buckets, key)
			}
		}
		l.lastSwept = now
	}

	b, ok := l.buckets[ip]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[ip] = b
	}
	b.lastSeen = now

	r := b.limiter.ReserveN(now, 1)
	if !r.OK() {
		return false, time.Second
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// RateLimit answers 429 with a Retry-After header once a client exceeds its
// bucket.
func (l *IPRateLimiter) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		ok, wait := l.reserve(ip)
		if !ok {
			if l.log != nil {
				l.log.RateLimitExceeded(ip, c.Request.URL.Path)
			}
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{Error: "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
