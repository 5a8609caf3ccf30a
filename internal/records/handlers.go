package records

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Get("/", authMiddleware, func(c *fiber.Ctx) error {
		userID, _ := c.Locals("user_id").(string)
		recs, err := svc.List(c.Context(), userID)
		if err != nil {
			return httpError(err)
		}
		out := make([]RecordView, 0, len(recs))
		for _, rec := range recs {
			out = append(out, rec.View())
		}
		return c.JSON(out)
	})

	r.Get("/:distance/history", authMiddleware, func(c *fiber.Ctx) error {
		d, ok := ParseDistance(c.Params("distance"))
		if !ok {
			return httpError(ErrUnknownDistance)
		}
		userID, _ := c.Locals("user_id").(string)
		rec, err := svc.Get(c.Context(), userID, d.Meters)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(rec.HistoryView())
	})
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidID), errors.Is(err, ErrUnknownDistance):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}
