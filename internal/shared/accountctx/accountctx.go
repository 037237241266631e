// Package accountctx carries the authenticated account through a request.
// It is created by the JWT middleware on every authorized request and is gone
// once the request ends; logging out revokes the refresh token so no new one
// can be minted.
package accountctx

import "github.com/gofiber/fiber/v2"

const localsKey = "account_ctx"

type Context struct {
	AccountID int64
}

func Set(c *fiber.Ctx, ac Context) {
	c.Locals(localsKey, ac)
}

func From(c *fiber.Ctx) (Context, bool) {
	ac, ok := c.Locals(localsKey).(Context)
	if !ok || ac.AccountID == 0 {
		return Context{}, false
	}
	return ac, true
}

// Require returns the account context or a 401 error.
func Require(c *fiber.Ctx) (Context, error) {
	ac, ok := From(c)
	if !ok {
		return Context{}, fiber.NewError(fiber.StatusUnauthorized, "missing account context")
	}
	return ac, nil
}
