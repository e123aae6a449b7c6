package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"
	"gopkg.in/cheggaaa/pb.v1"

	reach "github.com/digineo/go-reach"
	"github.com/digineo/go-reach/internal/config"
	"github.com/digineo/go-reach/internal/logging"
	"github.com/digineo/go-reach/rules"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.FromEnv()
	cfg.RegisterFlags(flag.CommandLine)

	rulesPath := "testdata/network-rules.yaml"
	verbose := false
	progress := true
	allowCommands := true
	var selected []string

	flag.StringVar(&rulesPath, "rules", rulesPath, "rules file (YAML or JSON)")
	flag.Func("rule", "run only this rule, group or name (repeatable)", func(s string) error {
		for _, name := range strings.Split(s, ",") {
			if name = strings.TrimSpace(name); name != "" {
				selected = append(selected, name)
			}
		}
		return nil
	})
	flag.IntVar(&cfg.Concurrency, "concurrency", cfg.Concurrency, "rules evaluated at once")
	flag.BoolVar(&verbose, "v", verbose, "list passed rules and durations")
	flag.BoolVar(&progress, "progress", progress, "show a progress bar on stderr")
	flag.BoolVar(&allowCommands, "commands", allowCommands, "run command and HTTP checks")
	flag.Parse()

	logger, err := logging.NewLogger(cfg.LogDir, "reach-check")
	if err != nil {
		fmt.Fprintln(os.Stderr, "unable to set up logging:", err)
		return rules.ExitError
	}
	defer logger.Sync()

	file, err := rules.Load(rulesPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return rules.ExitError
	}
	selection := file.Select(selected...)
	if len(selection) == 0 {
		fmt.Fprintln(os.Stderr, "no rule matches", strings.Join(selected, ", "))
		return rules.ExitError
	}

	cfg.ApplyRules(file, flag.CommandLine)
	opts := cfg.EngineOptions()
	engine := reach.NewEngine(opts)
	defer engine.Close()

	runner := rules.Runner{
		Evaluator:     engine,
		Concurrency:   cfg.Concurrency,
		Timeouts:      cfg.Timeouts,
		AllowCommands: allowCommands,
	}

	var bar *pb.ProgressBar
	if progress {
		bar = pb.New(len(selection))
		bar.Output = os.Stderr
		bar.ShowSpeed = false
		bar.Prefix("rules ")
		bar.Start()
		runner.Progress = func(o rules.Outcome) {
			bar.Increment()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("run_started",
		zap.String("rules", rulesPath),
		zap.Int("count", len(selection)),
		zap.Stringer("icmp_mode", opts.ICMPMode),
		zap.Stringer("literal_policy", opts.Literals),
	)

	report := runner.Run(ctx, selection)
	if bar != nil {
		bar.Finish()
	}

	if err := report.WriteText(os.Stdout, verbose); err != nil {
		logger.Error("write_report", zap.Error(err))
	}

	passed, failed, errored := report.Counts()
	logger.Info("run_finished",
		zap.Int("passed", passed),
		zap.Int("failed", failed),
		zap.Int("errored", errored),
		zap.Duration("duration", report.Duration),
	)
	if err := report.Err(); err != nil {
		logger.Warn("probe_errors", zap.Error(err))
	}

	return report.ExitCode()
}
