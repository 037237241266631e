package account

import (
	"backend-escapevim/internal/shared/accountctx"
	"backend-escapevim/internal/shared/apperr"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Get("/me", authMiddleware, func(c *fiber.Ctx) error {
		ac, err := accountctx.Require(c)
		if err != nil {
			return err
		}
		acc, err := svc.GetByID(c.Context(), ac.AccountID)
		if err != nil {
			return apperr.Fiber(err)
		}
		return c.JSON(acc)
	})

	r.Patch("/me", authMiddleware, func(c *fiber.Ctx) error {
		ac, err := accountctx.Require(c)
		if err != nil {
			return err
		}
		var patch ProfilePatch
		if err := c.BodyParser(&patch); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
		}
		acc, err := svc.UpdateProfile(c.Context(), ac.AccountID, patch)
		if err != nil {
			return apperr.Fiber(err)
		}
		return c.JSON(acc)
	})
}
