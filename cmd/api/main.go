package main

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/aegis-proxy/aegis/internal/api/routes"
	"github.com/aegis-proxy/aegis/internal/caddy"
	"github.com/aegis-proxy/aegis/internal/config"
	"github.com/aegis-proxy/aegis/internal/database"
	"github.com/aegis-proxy/aegis/internal/logger"
	"github.com/aegis-proxy/aegis/internal/server"
	"github.com/aegis-proxy/aegis/internal/services"
	"github.com/aegis-proxy/aegis/internal/snapshot"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Log to stdout and a rotated file.
	logDir := filepath.Join(cfg.DataDir, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		log.Fatalf("create log directory: %v", err)
	}
	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(logDir, "aegis.log"),
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}
	logger.Init(cfg.ApplyDebug, io.MultiWriter(os.Stdout, rotator))

	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("migrate database: %v", err)
	}

	client := caddy.NewClient(cfg.EngineAdmin)
	reloader := caddy.NewReloader(
		snapshot.NewReader(db),
		client,
		db,
		caddy.NewMaterializer(cfg.RulesetDir),
		caddy.AssembleOptions{
			ACMEEmail:   cfg.ACMEEmail,
			ACMEStaging: cfg.ACMEStaging,
			AccessLog:   cfg.AccessLogPath,
		},
		cfg.ApplyRetries,
		cfg.SnapshotDir,
	)
	reloader.SetNotifier(services.NewNotificationService(cfg.NotifyURLs))

	rulesets := services.NewRulesetService(db, reloader)
	if err := rulesets.StartSchedule(cfg.RefreshCron); err != nil {
		log.Fatalf("schedule ruleset refresh: %v", err)
	}
	defer rulesets.StopSchedule()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Converge the engine on startup so a restart never leaves it serving a
	// stale document.
	if err := reloader.Trigger(ctx); err != nil {
		logger.Log().WithError(err).Warn("initial configuration apply failed")
	}

	srv := server.New(cfg, routes.Deps{
		DB:       db,
		Reloader: reloader,
		Engine:   client,
		Rulesets: rulesets,
		Verbose:  cfg.ApplyDebug,
	})

	logger.WithFields(map[string]interface{}{
		"port":   cfg.HTTPPort,
		"engine": cfg.EngineAdmin,
	}).Info("aegis backend listening")

	if err := srv.Run(ctx); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
