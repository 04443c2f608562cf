// Command todomagicd is the todomagic daemon. It watches the configured todo
// lists, schedules and repeats their items, and serves the REST API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/GoCodeAlone/todomagic/config"
	"github.com/GoCodeAlone/todomagic/internal/daemon"
	"github.com/GoCodeAlone/todomagic/internal/version"
)

var (
	configPath = flag.String("config", "todomagic.yaml", "path to config file (.yaml or .toml)")
	initConfig = flag.Bool("init", false, "write a default config if none exists")
	noWatch    = flag.Bool("no-watch", false, "do not reload the config file when it changes")
)

func main() {
	flag.Parse()

	var (
		cfg *config.Config
		err error
	)
	if *initConfig {
		cfg, err = config.LoadOrCreate(*configPath)
	} else {
		cfg, err = config.Load(*configPath)
	}
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	level := new(slog.LevelVar)
	lvl, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Invalid config: %v", err)
	}
	level.Set(lvl)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))

	logger.Info("starting todomagicd",
		slog.String("version", version.Version),
		slog.String("commit", version.Commit),
	)

	d, err := daemon.New(cfg, logger, daemon.Options{Level: level, Version: version.Version})
	if err != nil {
		log.Fatalf("Failed to build daemon: %v", err)
	}
	defer d.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !*noWatch {
		go func() {
			err := config.Watch(ctx, *configPath, 0, func(next *config.Config, err error) {
				if err != nil {
					logger.Error("config reload", slog.Any("err", err))
					return
				}
				if err := d.Apply(ctx, next); err != nil {
					logger.Error("apply config", slog.Any("err", err))
				}
			})
			if err != nil {
				logger.Error("config watch", slog.Any("err", err))
			}
		}()
	}

	fmt.Printf("todomagic server running on %s\n", cfg.Server.Addr)
	fmt.Println("todomagicd", version.String())

	if err := d.Run(ctx); err != nil {
		logger.Error("daemon stopped", slog.Any("err", err))
		os.Exit(1)
	}
	fmt.Println("Shutdown complete")
}
