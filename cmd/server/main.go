/*
main.go - Application entry point

PURPOSE:
  Starts the punchclock HTTP server and the alert scheduler. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Load config (TOML file, .env, PUNCHCLOCK_* environment)
  3. Build the App (store, services, notifiers)
  4. Configure HTTP router and start the alert scheduler
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  TOML config path (default: punchclock.toml, optional)
  -env     .env file path (default: .env, optional)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler (waits for an in-flight scan)
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection

EXAMPLES:
  ./server -config=/etc/punchclock.toml
  PUNCHCLOCK_DB_PATH=./data/punchclock.db ./server

SEE ALSO:
  - api/server.go: Router configuration
  - app/app.go: Wiring
  - config/config.go: Settings
*/
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/punchclock/api"
	"github.com/warp/punchclock/app"
	"github.com/warp/punchclock/config"
)

func main() {
	// Flags
	configPath := flag.String("config", "punchclock.toml", "TOML config path")
	envPath := flag.String("env", ".env", "dotenv file path")
	flag.Parse()

	cfg, err := config.Load(*configPath, *envPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	a, err := app.New(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}
	defer a.Close()

	router := api.NewRouter(api.NewHandler(a))

	scheduler := api.NewAlertScheduler(a.Scanner, cfg.Scheduler.Interval.Duration, a.Logger)
	scheduler.Enabled = cfg.Scheduler.Enabled
	scheduler.Start()

	server := &http.Server{
		Addr:         cfg.Server.Listen,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout.Duration,
		WriteTimeout: cfg.Server.WriteTimeout.Duration,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		a.Logger.Info("server starting", "addr", cfg.Server.Listen, "timezone", cfg.Timezone)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	a.Logger.Info("shutting down server")
	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		a.Logger.Error("server forced to shutdown", "error", err)
	}

	a.Logger.Info("server stopped")
}
