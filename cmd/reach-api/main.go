package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	reach "github.com/digineo/go-reach"
	"github.com/digineo/go-reach/internal/config"
	"github.com/digineo/go-reach/internal/httpapi"
	"github.com/digineo/go-reach/internal/logging"
	"github.com/digineo/go-reach/monitor"
	"github.com/digineo/go-reach/rules"
)

func main() {
	cfg := config.FromEnv()
	cfg.RegisterFlags(flag.CommandLine)

	var (
		rulesPath string
		interval  = 30 * time.Second
	)
	flag.StringVar(&cfg.APIAddr, "listen", cfg.APIAddr, "listen address")
	flag.IntVar(&cfg.Concurrency, "concurrency", cfg.Concurrency, "rules evaluated at once per request")
	flag.BoolVar(&cfg.AllowCommands, "commands", cfg.AllowCommands, "permit command and HTTP checks")
	flag.StringVar(&rulesPath, "rules", rulesPath, "rules file to monitor, served at /api/metrics")
	flag.DurationVar(&interval, "interval", interval, "monitoring interval")
	flag.Parse()

	logger, err := logging.NewLogger(cfg.LogDir, "reach-api")
	if err != nil {
		fmt.Fprintln(os.Stderr, "unable to set up logging:", err)
		os.Exit(2)
	}
	defer logger.Sync()

	if err := serve(cfg, logger, rulesPath, interval); err != nil {
		logger.Error("serve", zap.Error(err))
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
}

func serve(cfg config.Config, logger *zap.Logger, rulesPath string, interval time.Duration) error {
	srv, engine, err := setup(cfg, flag.CommandLine, logger, rulesPath, interval)
	if err != nil {
		return err
	}
	defer engine.Close()

	if srv.Monitor != nil {
		srv.Monitor.Start()
		defer srv.Monitor.Stop()
	}

	httpServer := &http.Server{
		Addr:              cfg.APIAddr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errs := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.APIAddr), zap.Bool("commands", cfg.AllowCommands))
		errs <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting_down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// setup builds the engine and the API server. A rules file at rulesPath
// is monitored, and its settings apply to the engine unless overridden
// by flags on fs.
func setup(cfg config.Config, fs *flag.FlagSet, logger *zap.Logger, rulesPath string, interval time.Duration) (*httpapi.Server, *reach.Engine, error) {
	var file *rules.File
	if rulesPath != "" {
		f, err := rules.Load(rulesPath)
		if err != nil {
			return nil, nil, err
		}
		cfg.ApplyRules(f, fs)
		file = f
	}

	engine := reach.NewEngine(cfg.EngineOptions())

	srv := httpapi.NewServer(logger, engine)
	srv.Timeouts = cfg.Timeouts
	srv.Concurrency = cfg.Concurrency
	srv.AllowCommands = cfg.AllowCommands
	srv.Literals = cfg.LiteralPolicy
	srv.WithLiterals = func(p reach.LiteralPolicy) reach.Evaluator {
		return engine.WithLiterals(p)
	}

	if file != nil {
		mon := monitor.New(engine, interval)
		if _, err := mon.AddRules(file, cfg.AllowCommands); err != nil {
			engine.Close()
			return nil, nil, err
		}
		srv.Monitor = mon
	}
	return srv, engine, nil
}
