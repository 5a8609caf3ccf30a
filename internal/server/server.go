package server

import (
	"backend-livetrack/internal/activity"
	"backend-livetrack/internal/altitude"
	"backend-livetrack/internal/auth"
	"backend-livetrack/internal/config"
	"backend-livetrack/internal/records"
	"backend-livetrack/internal/stream"
	"backend-livetrack/internal/trace"
	"backend-livetrack/internal/tracking"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type Server struct {
	App      *fiber.App
	Cfg      config.Config
	DB       *pgxpool.Pool
	Redis    *redis.Client
	Stream   *stream.Hub
	Tracking *tracking.Service
}

func NewServer(cfg config.Config, db *pgxpool.Pool, redisClient *redis.Client) *Server {
	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())

	s := &Server{
		App:    app,
		Cfg:    cfg,
		DB:     db,
		Redis:  redisClient,
		Stream: stream.NewHub(redisClient),
	}

	registerRoutes(s)
	return s
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	jwtMiddleware := auth.JWTMiddleware(s.Cfg.JWTSecret)
	authSvc := auth.NewService(s.Cfg.JWTSecret)

	activities := activity.NewService(s.DB)
	traces := trace.NewService(s.DB)
	recordStore := records.NewService(s.DB)

	s.Tracking = tracking.NewService(activities, traces, newRegistry(s), newAltitude(s), s.Stream, tracking.Options{
		SaveInterval:       s.Cfg.SaveInterval,
		StoreTimeout:       s.Cfg.StoreTimeout,
		ElevationThreshold: s.Cfg.ElevationThreshold,
		WeightKg:           s.Cfg.DefaultWeightKg,
	})

	auth.RegisterRoutes(s.App.Group("/auth"), authSvc)
	activity.RegisterRoutes(s.App.Group("/activities"), activities, records.NewAnalyzer(recordStore), jwtMiddleware)
	records.RegisterRoutes(s.App.Group("/records"), recordStore, jwtMiddleware)
	trace.RegisterRoutes(s.App.Group("/traces"), traces, jwtMiddleware)
	tracking.RegisterRoutes(s.App.Group("/tracking"), s.Tracking, authSvc)
	stream.RegisterRoutes(s.App.Group("/stream"), s.Stream)
}

// newRegistry shares session ownership through Redis when it is configured.
func newRegistry(s *Server) tracking.Registry {
	if s.Redis == nil {
		return tracking.NewMemoryRegistry()
	}
	return tracking.NewRedisRegistry(s.Redis, s.Cfg.SessionLockTTL)
}

func newAltitude(s *Server) altitude.Provider {
	if s.Cfg.AltitudeURL == "" {
		return altitude.Nop{}
	}
	var p altitude.Provider = altitude.NewClient(s.Cfg.AltitudeURL, s.Cfg.StoreTimeout)
	if s.Redis != nil {
		p = altitude.NewCache(p, s.Redis, s.Cfg.AltitudeCacheTTL)
	}
	return p
}
