package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/daoledger/daoledger/internal/registry"
)

// CallerHeader carries the caller identity asserted by the trusted gateway in
// front of the service.
const CallerHeader = "X-Caller-ID"

const callerLocal = "caller"

// Caller extracts the caller identity. Unsafe methods require one; safe
// methods accept anonymous reads.
func Caller() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := strings.TrimSpace(c.Get(CallerHeader))
		if id == "" {
			if isSafeMethod(c.Method()) {
				return c.Next()
			}
			return fiber.NewError(fiber.StatusUnauthorized, "missing "+CallerHeader+" header")
		}
		if err := registry.ValidateID(id); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid "+CallerHeader+" header")
		}
		c.Locals(callerLocal, id)
		return c.Next()
	}
}

// CallerID returns the identity stored by Caller, or "" for anonymous requests.
func CallerID(c *fiber.Ctx) string {
	id, _ := c.Locals(callerLocal).(string)
	return id
}

func isSafeMethod(method string) bool {
	switch strings.ToUpper(method) {
	case fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions:
		return true
	}
	return false
}
