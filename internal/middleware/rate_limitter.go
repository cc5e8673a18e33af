package middleware

import (
	"ProjectVision/internal/api/detection"
	"ProjectVision/pkg/response"
	"net/http"
	"sync"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/time/rate"
)

var (
	ErrTooManyRequests = response.NewError(http.StatusTooManyRequests, "Too many requests")
)

type rateLimiter struct {
	bucket    map[string]*rate.Limiter
	rate      rate.Limit
	burstSize int
	mutex     *sync.RWMutex
}

func newRateLimiter(reqRate rate.Limit, burstSize int) *rateLimiter {
	return &rateLimiter{
		bucket:    make(map[string]*rate.Limiter),
		rate:      reqRate,
		burstSize: burstSize,
		mutex:     &sync.RWMutex{},
	}
}

func (r *rateLimiter) GetLimiterFrom(ip string) *rate.Limiter {
	r.mutex.RLock()
	limiter, exist := r.bucket[ip]
	r.mutex.RUnlock()
	if exist {
		return limiter
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exist := r.bucket[ip]; !exist {
		r.bucket[ip] = rate.NewLimiter(r.rate, r.burstSize)
	}

	return r.bucket[ip]
}

// Allow takes one token from the client's bucket. Websocket handlers call it
// once per message.
func (m *middleware) Allow(clientIP string) bool {
	if m.rateLimitter.GetLimiterFrom(clientIP).Allow() {
		return true
	}
	m.log.Warnf("too many requests for IP %s", clientIP)
	return false
}

func (m *middleware) NewRateLimiter(ctx *fiber.Ctx) error {
	clientIP := ctx.IP()

	if !m.Allow(clientIP) {
		return ctx.Status(fiber.StatusTooManyRequests).JSON(detection.ErrorResponse{
			Error: ErrTooManyRequests.Error(),
		})
	}

	return ctx.Next()
}
