package activity

import (
	"fmt"
	"time"

	"backend-escapevim/internal/shared/accountctx"
	"backend-escapevim/internal/shared/apperr"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Get("/", authMiddleware, func(c *fiber.Ctx) error {
		ac, err := accountctx.Require(c)
		if err != nil {
			return err
		}
		activities, err := svc.ListByAccount(c.Context(), ac.AccountID)
		if err != nil {
			return apperr.Fiber(err)
		}
		return c.JSON(activities)
	})

	r.Get("/stats/week", authMiddleware, func(c *fiber.Ctx) error {
		ac, err := accountctx.Require(c)
		if err != nil {
			return err
		}
		week, err := svc.WeeklyDistance(c.Context(), ac.AccountID, time.Now())
		if err != nil {
			return apperr.Fiber(err)
		}
		return c.JSON(week)
	})

	r.Get("/:id", authMiddleware, func(c *fiber.Ctx) error {
		ac, id, err := accountAndID(c)
		if err != nil {
			return err
		}
		a, err := svc.GetByID(c.Context(), id, ac.AccountID)
		if err != nil {
			return apperr.Fiber(err)
		}
		return c.JSON(a)
	})

	r.Patch("/:id", authMiddleware, func(c *fiber.Ctx) error {
		ac, id, err := accountAndID(c)
		if err != nil {
			return err
		}
		var patch Patch
		if err := c.BodyParser(&patch); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
		}
		a, err := svc.Update(c.Context(), id, ac.AccountID, patch)
		if err != nil {
			return apperr.Fiber(err)
		}
		return c.JSON(a)
	})

	r.Get("/:id/gpx", authMiddleware, func(c *fiber.Ctx) error {
		ac, id, err := accountAndID(c)
		if err != nil {
			return err
		}
		a, err := svc.GetByID(c.Context(), id, ac.AccountID)
		if err != nil {
			return apperr.Fiber(err)
		}
		body, err := ToGPX(a)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		c.Set(fiber.HeaderContentType, "application/gpx+xml")
		c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="activity-%d.gpx"`, a.ID))
		return c.Send(body)
	})
}

func accountAndID(c *fiber.Ctx) (accountctx.Context, int64, error) {
	ac, err := accountctx.Require(c)
	if err != nil {
		return ac, 0, err
	}
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return ac, 0, fiber.NewError(fiber.StatusBadRequest, "invalid activity id")
	}
	return ac, int64(id), nil
}
