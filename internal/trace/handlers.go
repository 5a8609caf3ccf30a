package trace

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Get("/:id", authMiddleware, func(c *fiber.Ctx) error {
		t, err := ownedTrace(c, svc)
		if err != nil {
			return err
		}
		return c.JSON(t)
	})

	r.Get("/:id/gpx", authMiddleware, func(c *fiber.Ctx) error {
		t, err := ownedTrace(c, svc)
		if err != nil {
			return err
		}
		doc, err := ExportGPX(t)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		c.Set(fiber.HeaderContentType, "application/gpx+xml")
		c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+t.ActivityID+`.gpx"`)
		return c.Send(doc)
	})
}

func ownedTrace(c *fiber.Ctx, svc *Service) (Trace, error) {
	t, err := svc.Get(c.Context(), c.Params("id"))
	if err != nil {
		return Trace{}, httpError(err)
	}
	if userID, _ := c.Locals("user_id").(string); userID != t.UserID {
		return Trace{}, fiber.NewError(fiber.StatusNotFound, ErrNotFound.Error())
	}
	return t, nil
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidID), errors.Is(err, ErrEmptyBatch), errors.Is(err, ErrInvalidState):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrActivityNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, ErrNotRecording):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}
