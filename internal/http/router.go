// Package http exposes the REST API: task CRUD, run lifecycle, task
// import/export, health, and metrics. Handlers stay thin; request
// validation and persistence live in the services layer.
package http

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"dredge/internal/config"
	"dredge/internal/metrics"
	"dredge/internal/objstore"
	"dredge/internal/services"
	"dredge/internal/store"
	"dredge/internal/templates"
)

type Server struct {
	app    *fiber.App
	config *config.Config
}

func NewServer(cfg *config.Config, st *store.Store, blobs *objstore.Client) *Server {
	app := fiber.New(fiber.Config{
		ReadTimeout: time.Duration(cfg.Server.ReadTimeoutMs) * time.Millisecond,
	})

	resolver := templates.NewResolver(cfg.Templates.Dir)
	tasks := services.NewTaskService(st, resolver)
	runs := services.NewRunService(st, blobs)
	transfer := services.NewTransferService(st, tasks)

	// Redis client for rate limiting and health checks
	var rdb *redis.Client
	if cfg.Redis.URL != "" {
		if opt, err := redis.ParseURL(cfg.Redis.URL); err == nil {
			rdb = redis.NewClient(opt)
		} else {
			zap.L().Warn("invalid redis url, rate limiting disabled", zap.Error(err))
		}
	}

	// Inject services into context for handlers
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("tasks", tasks)
		c.Locals("runs", runs)
		c.Locals("transfer", transfer)
		return c.Next()
	})

	// Request ID + logging + metrics middleware
	app.Use(func(c *fiber.Ctx) error {
		start := time.Now()

		reqID := c.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.New().String()
		}
		c.Locals("request_id", reqID)
		c.Set("X-Request-Id", reqID)

		err := c.Next()

		latency := time.Since(start)
		status := c.Response().StatusCode()

		metrics.RecordRequest(c.Method(), c.Path(), status, latency.Milliseconds())
		zap.L().Info("request",
			zap.String("request_id", reqID),
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", status),
			zap.Int64("latency_ms", latency.Milliseconds()))

		return err
	})

	// Health endpoints
	app.Get("/healthz", healthHandler(st, blobs, rdb))

	// Prometheus-style metrics endpoint
	app.Get("/metrics", func(c *fiber.Ctx) error {
		c.Type("txt")
		return c.SendString(metrics.Export())
	})

	authMw := apiKeyMiddleware(cfg)
	var rateMw fiber.Handler
	if rdb != nil {
		rateMw = rateLimitMiddleware(cfg, rdb)
	} else {
		rateMw = func(c *fiber.Ctx) error { return c.Next() }
	}

	api := app.Group("/api", authMw, rateMw)
	registerAPIRoutes(api)

	return &Server{app: app, config: cfg}
}

func (s *Server) Listen() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	return s.app.Listen(addr)
}

func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func registerAPIRoutes(group fiber.Router) {
	group.Post("/tasks", tasksCreateHandler)
	group.Get("/tasks", tasksListHandler)
	group.Get("/tasks/:id", tasksGetHandler)
	group.Put("/tasks/:id", tasksUpdateHandler)
	group.Delete("/tasks/:id", tasksDeleteHandler)

	group.Post("/tasks/:id/run", taskRunStartHandler)
	group.Get("/tasks/:id/runs", taskRunsListHandler)

	group.Get("/tasks/:id/export", tasksExportHandler)
	group.Post("/tasks/import", tasksImportHandler)

	group.Get("/runs/:id", runsGetHandler)
	group.Get("/runs/:id/result", runsResultHandler)
	group.Get("/runs/:id/logs", runsLogsHandler)
}

// healthHandler reports process health. Without deep=true it only
// confirms the process is serving; with it, each backing service is
// pinged with a short timeout.
func healthHandler(st *store.Store, blobs *objstore.Client, rdb *redis.Client) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Query("deep") != "true" {
			return c.JSON(fiber.Map{"status": "ok"})
		}

		ctx, cancel := context.WithTimeout(c.Context(), 2*time.Second)
		defer cancel()

		dbStatus := "ok"
		if err := st.Ping(ctx); err != nil {
			dbStatus = "error"
		}

		redisStatus := "disabled"
		if rdb != nil {
			if err := rdb.Ping(ctx).Err(); err != nil {
				redisStatus = "error"
			} else {
				redisStatus = "ok"
			}
		}

		storageStatus := "ok"
		if err := blobs.Ping(ctx); err != nil {
			storageStatus = "error"
		}

		status := "ok"
		if dbStatus != "ok" || storageStatus != "ok" || redisStatus == "error" {
			status = "error"
		}

		return c.JSON(fiber.Map{
			"status":  status,
			"db":      dbStatus,
			"redis":   redisStatus,
			"storage": storageStatus,
		})
	}
}
