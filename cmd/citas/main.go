package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/wolfman30/citas/internal/api/router"
	"github.com/wolfman30/citas/internal/app/bootstrap"
	"github.com/wolfman30/citas/internal/booking"
	appconfig "github.com/wolfman30/citas/internal/config"
	"github.com/wolfman30/citas/internal/terminal"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	resumeID := flag.String("resume", "", "resume a stored session by id")
	flag.Parse()

	cfg := appconfig.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *resumeID, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal(err)
	}
}

func run(ctx context.Context, cfg *appconfig.Config, resumeID string, in io.Reader, out io.Writer) error {
	logger := bootstrap.BuildLogger(cfg)
	logger.Info("starting citas client", "env", cfg.Env, "api", cfg.APIBaseURL, "session_store", cfg.SessionStore)

	m, metricsHandler := bootstrap.BuildMetrics()
	client := bootstrap.BuildAPIClient(cfg, logger, m)

	store, closeStore, err := bootstrap.BuildSessionStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	ops, err := bootstrap.StartOpsServer(cfg.MetricsAddr, &router.Config{
		Logger:         logger,
		Upstream:       client,
		MetricsHandler: metricsHandler,
	}, logger)
	if err != nil {
		return fmt.Errorf("start ops server: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := ops.Shutdown(shutdownCtx); err != nil {
			logger.Error("ops server forced to shutdown", "error", err)
		}
	}()

	renderer := terminal.NewRenderer(out)
	dispatcher := booking.NewDispatcher(client, booking.Config{
		Store:          store,
		Renderer:       renderer,
		Logger:         logger,
		Metrics:        m,
		CommandTimeout: cfg.CommandTimeout,
		CalendarDays:   cfg.CalendarDays,
	})

	loopCtx, cancelLoop := context.WithCancel(ctx)
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		_ = dispatcher.Run(loopCtx)
	}()
	defer func() {
		cancelLoop()
		<-loopDone
	}()

	renderer.Printf("citas: type help for commands\n")
	if resumeID != "" {
		v, err := dispatcher.Resume(ctx, resumeID)
		renderer.Render(v, err)
	}

	err = terminal.NewREPL(in, renderer, dispatcher, logger).Run(ctx)
	logger.Info("citas client stopped")
	return err
}
