package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/hakimkaamino/secun0c-bot/bot"
	"github.com/hakimkaamino/secun0c-bot/config"
	"github.com/hakimkaamino/secun0c-bot/utils/database"
	"github.com/hakimkaamino/secun0c-bot/utils/logging"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
)

var logger = logging.New("main")

func main() {
	app := cli.App{
		Name:  "secun0c",
		Usage: "anti-nuke protection for Discord guilds",
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Usage:   "path to a config file (yaml, toml or json)",
			Value:   "data/config.yaml",
			EnvVars: []string{"SECUN0C_CONFIG"},
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "override the configured log level",
		},
		&cli.BoolFlag{
			Name:  "json-logs",
			Usage: "write logs as JSON lines",
		},
	}

	app.Action = run

	if err := app.Run(os.Args); err != nil {
		logger.Fatal().Err(err).Msg("exiting")
	}
}

func run(cctx *cli.Context) error {
	if cctx.Bool("json-logs") {
		logging.SetJSON(os.Stderr)
	}

	cfg, err := config.Load(cctx.String("config"))
	if err != nil {
		return err
	}
	level := cfg.LogLevel
	if cctx.IsSet("log-level") {
		level = cctx.String("log-level")
	}
	logging.SetLevel(level)

	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), os.ModePerm); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	db, err := database.Init(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("error initializing database: %w", err)
	}
	defer db.Close()

	b, err := bot.New(cfg, db)
	if err != nil {
		return fmt.Errorf("error creating bot: %w", err)
	}
	if err := b.Load(); err != nil {
		return err
	}

	if cfg.MetricsListen != "" {
		srv := serveMetrics(cfg.MetricsListen)
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		}()
	}

	return b.Run(cctx.Context)
}

func serveMetrics(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/_health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info().Str("addr", addr).Msg("serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server failed")
		}
	}()
	return srv
}
