package activity

import (
	"errors"
	"log/slog"

	"backend-livetrack/internal/records"

	"github.com/gofiber/fiber/v2"
)

// RegisterRoutes mounts the activity REST surface. Created activities are run
// through analyzer to detect new personal bests.
func RegisterRoutes(r fiber.Router, svc *Service, analyzer *records.Analyzer, authMiddleware fiber.Handler) {
	r.Post("/", authMiddleware, func(c *fiber.Ctx) error {
		var req Activity
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
		}
		req.UserID, _ = c.Locals("user_id").(string)
		if req.Type == "" {
			req.Type = TypeRun
		}

		a, err := svc.Create(c.Context(), req)
		if err != nil {
			return httpError(err)
		}

		newRecords, err := analyzer.Check(c.Context(), records.Performance{
			UserID:          a.UserID,
			ActivityID:      a.ID,
			DistanceM:       a.DistanceM,
			MovingDurationS: a.MovingDurationS,
			Laps:            a.Laps,
		})
		if err != nil {
			slog.Error("activity: best performance check failed", "activity_id", a.ID, "error", err)
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"activity": a, "new_records": newRecords})
	})

	r.Get("/", authMiddleware, func(c *fiber.Ctx) error {
		userID, _ := c.Locals("user_id").(string)
		list, err := svc.List(c.Context(), userID, ListFilter{
			Type:   Type(c.Query("activity_type")),
			Limit:  c.QueryInt("limit", defaultListLimit),
			Offset: c.QueryInt("offset", 0),
		})
		if err != nil {
			return httpError(err)
		}
		return c.JSON(list)
	})

	r.Get("/stats", authMiddleware, func(c *fiber.Ctx) error {
		userID, _ := c.Locals("user_id").(string)
		st, err := svc.Stats(c.Context(), userID)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(st)
	})

	r.Get("/:id", authMiddleware, func(c *fiber.Ctx) error {
		a, err := svc.Get(c.Context(), c.Params("id"))
		if err != nil {
			return httpError(err)
		}
		if userID, _ := c.Locals("user_id").(string); userID != a.UserID {
			return fiber.NewError(fiber.StatusNotFound, ErrNotFound.Error())
		}
		return c.JSON(a)
	})
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidID), errors.Is(err, ErrInvalidType),
		errors.Is(err, ErrInvalidActivity), errors.Is(err, ErrEmptyUpdate):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}
