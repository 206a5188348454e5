package middleware

import (
	"strconv"

	"exam-engine/internal/domain"

	"github.com/gofiber/fiber/v2"
)

// ValidateIDParams parses the named path parameters as positive int64 ids and
// stores them in the request locals under the same names.
func ValidateIDParams(names ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var errs domain.ValidationErrors
		for _, name := range names {
			raw := c.Params(name)
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || id <= 0 {
				errs = append(errs, domain.NewInvalidFormatError(name, raw))
				continue
			}
			c.Locals(name, id)
		}
		if len(errs) > 0 {
			return errs // This will be handled by ErrorHandler middleware
		}
		return c.Next()
	}
}

// IDParam returns an id stored by ValidateIDParams.
func IDParam(c *fiber.Ctx, name string) int64 {
	id, _ := c.Locals(name).(int64)
	return id
}
