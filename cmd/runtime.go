package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/urfave/cli"
	"github.com/warpdl/warpbundle/common"
	"github.com/warpdl/warpbundle/pkg/bundlelib"
	"github.com/warpdl/warpbundle/pkg/logger"
)

const metaBuild = "build"

var (
	globalFlags = []cli.Flag{
		cli.BoolFlag{
			Name:   "json-logs",
			Usage:  "write logs to stderr as JSON lines",
			EnvVar: common.JSONLogsEnv,
		},
		cli.BoolFlag{
			Name:   "verbose, V",
			Usage:  "write informational logs to stderr",
			EnvVar: common.DebugEnv,
		},
		cli.StringFlag{
			Name:   "log-file",
			Usage:  "also append every log message to this file as JSON lines",
			EnvVar: common.LogFileEnv,
		},
	}

	configFlag = cli.StringFlag{
		Name:   "config, c",
		Usage:  "configuration file (toml, yaml or json)",
		EnvVar: common.ConfigPathEnv,
	}
	jsonFlag = cli.BoolFlag{
		Name:  "json",
		Usage: "print a JSON report instead of text",
	}
	timeoutFlag = cli.DurationFlag{
		Name:  "timeout",
		Usage: "give up after this long",
		Value: 5 * time.Minute,
	}
)

// newLogger returns the logger selected by the global flags. Without
// --verbose or --json-logs only warnings and errors reach stderr. With
// --log-file every message is also appended there as JSON lines.
func newLogger(ctx *cli.Context) logger.Logger {
	var l logger.Logger
	switch {
	case ctx.GlobalBool("json-logs"):
		l = logger.NewZerologLogger(struct{ io.Writer }{os.Stderr}, ctx.Command.Name)
	case ctx.GlobalBool("verbose"):
		l = logger.NewStandardLogger(log.New(os.Stderr, "", log.LstdFlags))
	default:
		l = logger.NewLevelFilter(logger.NewStandardLogger(log.New(os.Stderr, "", 0)), logger.LevelWarning)
	}
	path := ctx.GlobalString("log-file")
	if path == "" {
		return l
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		l.Warning("Opening log file %s: %v", path, err)
		return l
	}
	return logger.NewMultiLogger(l, logger.NewZerologLogger(f, ctx.Command.Name))
}

// loadConfig reads the --config file, or the first warpbundle config in
// the working directory when none is given.
func loadConfig(ctx *cli.Context) (bundlelib.Config, error) {
	path := ctx.String("config")
	if path == "" {
		path = common.FindConfig(".")
	}
	return bundlelib.LoadConfig(path)
}

// runContext is canceled on interrupt or after --timeout.
func runContext(ctx *cli.Context) (context.Context, context.CancelFunc) {
	sctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	timeout := ctx.Duration("timeout")
	if timeout <= 0 {
		return sctx, stop
	}
	tctx, cancel := context.WithTimeout(sctx, timeout)
	return tctx, func() {
		cancel()
		stop()
	}
}

// drive ticks m until done reports true, initialization fails or ctx ends.
func drive(ctx context.Context, m *bundlelib.Manager, done func() bool) error {
	t := time.NewTicker(common.TickInterval)
	defer t.Stop()
	for {
		m.Tick()
		if err := m.Err(); err != nil {
			return err
		}
		if done() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

// startManager creates a manager for cfg and ticks it until it is ready.
func startManager(rctx context.Context, cfg bundlelib.Config, l logger.Logger, h *bundlelib.Handlers) (*bundlelib.Manager, error) {
	m, err := bundlelib.New(cfg, bundlelib.WithLogger(l), bundlelib.WithHandlers(h))
	if err != nil {
		return nil, err
	}
	if err := m.Start(nil); err != nil {
		m.Close()
		return nil, err
	}
	if err := drive(rctx, m, m.Ready); err != nil {
		m.Close()
		return nil, err
	}
	return m, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}

func buildArgs(ctx *cli.Context) BuildArgs {
	b, _ := ctx.App.Metadata[metaBuild].(BuildArgs)
	return b
}
