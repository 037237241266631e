package server

import (
	"context"
	"log"

	"backend-escapevim/internal/account"
	"backend-escapevim/internal/activity"
	"backend-escapevim/internal/auth"
	"backend-escapevim/internal/config"
	"backend-escapevim/internal/db"
	"backend-escapevim/internal/outbox"
	"backend-escapevim/internal/stream"
	"backend-escapevim/internal/tracking"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
)

type Server struct {
	App      *fiber.App
	Cfg      config.Config
	DB       db.TxQuerier
	Redis    *redis.Client
	Stream   *stream.Hub
	Tracking *tracking.Registry
	Saver    *tracking.AsyncSaver
	Outbox   *outbox.Worker

	activities *activity.Service
	accounts   *account.Service
	auth       *auth.Service
}

// NewServer wires every service onto one fiber app. ctx bounds background
// work started here, such as the Redis relay.
func NewServer(ctx context.Context, cfg config.Config, database db.TxQuerier, redisClient *redis.Client) *Server {
	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New())

	s := &Server{
		App:   app,
		Cfg:   cfg,
		DB:    database,
		Redis: redisClient,
	}

	s.activities = activity.NewService(database)
	s.accounts = account.NewService(database)
	s.auth = auth.NewService(cfg.JWTSecret, database, s.accounts)
	s.Outbox = outbox.NewWorker(outbox.NewQueue(redisClient), s.activities, cfg.RetryMaxAttempts, cfg.RetryInterval)
	s.Saver = tracking.NewAsyncSaver(s.activities, s.Outbox, cfg.SaveTimeout)
	s.Tracking = tracking.NewRegistry(cfg.ClockTick, s.Saver)
	s.Stream = stream.NewHub(ctx, redisClient)

	s.Tracking.Observe(func(accountID int64, snap tracking.Snapshot) {
		if err := s.Stream.Publish(stream.Topic(accountID), snap); err != nil {
			log.Printf("stream publish error: %v", err)
		}
	})

	registerRoutes(s)
	return s
}

// Close silences live sessions and waits for pending saves.
func (s *Server) Close() {
	s.Tracking.Close()
	s.Saver.Wait()
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	jwtMiddleware := auth.JWTMiddleware(s.Cfg.JWTSecret)

	auth.RegisterRoutes(s.App.Group("/auth"), s.auth)
	account.RegisterRoutes(s.App.Group("/accounts"), s.accounts, jwtMiddleware)
	activity.RegisterRoutes(s.App.Group("/activities"), s.activities, jwtMiddleware)
	tracking.RegisterRoutes(s.App.Group("/tracking"), s.Tracking, jwtMiddleware)
	stream.RegisterRoutes(s.App.Group("/stream"), s.Stream, s.auth.ValidateAccessToken, func(accountID int64) any {
		sess, _ := s.Tracking.Session(accountID)
		return sess.Snapshot()
	})
}
