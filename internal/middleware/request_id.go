package middleware

import (
	"ProjectVision/pkg/utils"
	"time"

	"github.com/gofiber/fiber/v2"
)

const RequestIDKey = "X-Request-ID"

// NewRequestIDMiddleware keeps a client supplied X-Request-ID or assigns a
// ULID, and echoes it on the response.
func NewRequestIDMiddleware(utilsInstance utils.IUtils) fiber.Handler {
	if utilsInstance == nil {
		utilsInstance = utils.New(0, 0)
	}

	return func(c *fiber.Ctx) error {
		requestID := c.Get(RequestIDKey)

		if requestID == "" {
			requestID, _ = utilsInstance.NewULIDFromTimestamp(time.Now())
		}

		c.Locals(RequestIDKey, requestID)
		c.Set(RequestIDKey, requestID)

		return c.Next()
	}
}
