package tracking

import (
	"fmt"

	"backend-escapevim/internal/shared/accountctx"
	"backend-escapevim/internal/shared/apperr"
	"backend-escapevim/internal/shared/geo"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, reg *Registry, authMiddleware fiber.Handler) {
	r.Post("/start", authMiddleware, transition(reg, "start", func(s *Session, _ *fiber.Ctx) (bool, error) {
		return s.Start(), nil
	}))

	r.Post("/type", authMiddleware, transition(reg, "select type", func(s *Session, c *fiber.Ctx) (bool, error) {
		var req TypeRequest
		if err := c.BodyParser(&req); err != nil {
			return false, fiber.NewError(fiber.StatusBadRequest, "invalid payload")
		}
		if req.Type == "" {
			return false, apperr.ValidationError{Field: "type", Message: "activity type is required"}
		}
		return s.SelectType(req.Type), nil
	}))

	r.Post("/pause", authMiddleware, transition(reg, "pause", func(s *Session, _ *fiber.Ctx) (bool, error) {
		return s.Pause(), nil
	}))

	r.Post("/resume", authMiddleware, transition(reg, "resume", func(s *Session, _ *fiber.Ctx) (bool, error) {
		return s.Resume(), nil
	}))

	r.Post("/stop", authMiddleware, func(c *fiber.Ctx) error {
		ac, err := accountctx.Require(c)
		if err != nil {
			return err
		}
		sess, _ := reg.Session(ac.AccountID)
		state := sess.State()
		rec, ok := sess.Stop()
		if !ok {
			return apperr.Fiber(invalidTransition("stop", state))
		}
		return c.Status(fiber.StatusAccepted).JSON(rec)
	})

	r.Post("/samples", authMiddleware, func(c *fiber.Ctx) error {
		ac, err := accountctx.Require(c)
		if err != nil {
			return err
		}
		var req SampleRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
		}
		sess, src := reg.Session(ac.AccountID)
		if req.Lat == nil || req.Lng == nil {
			src.PushMissing()
			return c.Status(fiber.StatusAccepted).JSON(sess.Snapshot())
		}
		p := geo.Point{Lat: *req.Lat, Lng: *req.Lng}
		if err := validatePoint(p); err != nil {
			return apperr.Fiber(err)
		}
		src.Push(p)
		return c.Status(fiber.StatusAccepted).JSON(sess.Snapshot())
	})

	r.Get("/state", authMiddleware, func(c *fiber.Ctx) error {
		ac, err := accountctx.Require(c)
		if err != nil {
			return err
		}
		sess, _ := reg.Session(ac.AccountID)
		return c.JSON(sess.Snapshot())
	})
}

func transition(reg *Registry, action string, fn func(*Session, *fiber.Ctx) (bool, error)) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ac, err := accountctx.Require(c)
		if err != nil {
			return err
		}
		sess, _ := reg.Session(ac.AccountID)
		state := sess.State()
		ok, err := fn(sess, c)
		if err != nil {
			return apperr.Fiber(err)
		}
		if !ok {
			return apperr.Fiber(invalidTransition(action, state))
		}
		return c.JSON(sess.Snapshot())
	}
}

func invalidTransition(action string, from State) error {
	return apperr.Tracking(fmt.Sprintf("cannot %s while %s", action, from))
}

func validatePoint(p geo.Point) error {
	if p.Lat < -90 || p.Lat > 90 {
		return apperr.ValidationError{Field: "lat", Message: "latitude must be within [-90, 90]"}
	}
	if p.Lng < -180 || p.Lng > 180 {
		return apperr.ValidationError{Field: "lng", Message: "longitude must be within [-180, 180]"}
	}
	return nil
}
