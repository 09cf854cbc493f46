package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"dredge/internal/config"
	server "dredge/internal/http"
	"dredge/internal/migrate"
	"dredge/internal/objstore"
	"dredge/internal/services"
	"dredge/internal/store"
	"dredge/internal/templates"
	"dredge/internal/worker"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	role := flag.String("role", "all", "process role: api|worker|all")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}
	if err := config.InitLogger(cfg.Log); err != nil {
		log.Fatalf("init logger failed: %v", err)
	}

	// Run migrations on a short-lived connection
	if err := migrate.Run(cfg.Database.DSN); err != nil {
		zap.L().Fatal("migrations failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.NewPostgres(ctx, cfg.Database.DSN, cfg.Database.Pool.MaxConns, cfg.Database.Pool.MinConns)
	if err != nil {
		zap.L().Fatal("connect to database failed", zap.Error(err))
	}
	defer st.Close()

	blobs, err := objstore.New(ctx, cfg.Storage)
	if err != nil {
		zap.L().Fatal("connect to object storage failed", zap.Error(err))
	}

	resolver := templates.NewResolver(cfg.Templates.Dir)

	if len(cfg.Seed.Tasks) > 0 {
		tasks := services.NewTaskService(st, resolver)
		if err := services.SeedTasks(ctx, cfg.Seed.Tasks, st, tasks); err != nil {
			zap.L().Fatal("seed tasks failed", zap.Error(err))
		}
	}

	startWorker := func() {
		defaults, err := services.LoadTaskDefaults(cfg.LLM, cfg.Templates, resolver)
		if err != nil {
			zap.L().Fatal("load task defaults failed", zap.Error(err))
		}
		driver := worker.NewDriver(cfg, st, blobs, defaults, resolver)
		go worker.NewRunner(cfg, st, driver).Start(ctx)
	}

	switch *role {
	case "api":
		serveAPI(ctx, cfg, st, blobs)
	case "worker":
		startWorker()
		<-ctx.Done()
	case "all":
		startWorker()
		serveAPI(ctx, cfg, st, blobs)
	default:
		zap.L().Fatal("invalid role (expected api|worker|all)", zap.String("role", *role))
	}
}

func serveAPI(ctx context.Context, cfg *config.Config, st *store.Store, blobs *objstore.Client) {
	srv := server.NewServer(cfg, st, blobs)

	go func() {
		<-ctx.Done()
		if err := srv.Shutdown(); err != nil {
			zap.L().Warn("server shutdown", zap.Error(err))
		}
	}()

	zap.L().Info("api listening",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port))
	if err := srv.Listen(); err != nil {
		zap.L().Fatal("server failed", zap.Error(err))
	}
}
