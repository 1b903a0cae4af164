package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/urfave/cli"
	"github.com/vbauerster/mpb/v8"
	cmdcommon "github.com/warpdl/warpbundle/cmd/common"
	"github.com/warpdl/warpbundle/common"
	"github.com/warpdl/warpbundle/internal/cron"
	"github.com/warpdl/warpbundle/pkg/bundlelib"
)

var syncFlags = []cli.Flag{
	configFlag,
	cli.BoolFlag{
		Name:  "check-excluded",
		Usage: "also download excluded bundles that are out of date",
	},
	cli.BoolFlag{
		Name:  "clear-cache",
		Usage: "forget every downloaded bundle before comparing versions",
	},
	cli.BoolFlag{
		Name:  "no-progress",
		Usage: "do not render progress bars",
	},
	cli.StringFlag{
		Name:  "every",
		Usage: "keep running and sync again on this cron schedule, e.g. \"*/15 * * * *\"",
	},
	jsonFlag,
	timeoutFlag,
}

// syncTracker collects the outcome of a bootstrap and feeds the progress bars.
type syncTracker struct {
	report   common.SyncReport
	stale    map[string]bool
	showBars bool
	bars     *cmdcommon.Bars
}

func (s *syncTracker) handlers() *bundlelib.Handlers {
	return &bundlelib.Handlers{
		StartDownloadHandler: func(names []string) {
			s.report.Stale = append(s.report.Stale, names...)
			for _, n := range names {
				s.stale[n] = true
			}
			if s.showBars {
				s.bars = cmdcommon.InitBars(mpb.New(mpb.WithWidth(64)), len(names))
			}
		},
		BundleDownloadedHandler: func(name string, err error) {
			if !s.stale[name] {
				return
			}
			if err != nil {
				s.report.Failed[name] = err.Error()
			} else {
				s.report.Downloaded = append(s.report.Downloaded, name)
			}
			if s.bars != nil {
				s.bars.Done(name, err)
			}
		},
	}
}

func (s *syncTracker) render(m *bundlelib.Manager) {
	if s.bars == nil {
		return
	}
	for _, st := range m.Scheduler().Running() {
		if s.stale[st.Name] {
			s.bars.Update(st.Name, st.Progress)
		}
	}
}

func (s *syncTracker) finish() {
	if s.bars != nil {
		s.bars.Finish()
		s.bars = nil
	}
}

func syncBundles(ctx *cli.Context) error {
	if ctx.Args().First() == "help" {
		return cli.ShowCommandHelp(ctx, ctx.Command.Name)
	}
	var job cron.Job
	every := ctx.String("every")
	if every != "" {
		var err error
		if job, err = cron.Every("sync", every, time.Now()); err != nil {
			return cmdcommon.PrintErrWithCmdHelp(ctx, err)
		}
	}
	cfg, err := loadConfig(ctx)
	if err != nil {
		cmdcommon.PrintRuntimeErr(ctx, "sync", "load_config", err)
		return nil
	}
	if cfg.Mode != bundlelib.ModeServer {
		cmdcommon.PrintRuntimeErr(ctx, "sync", "check_mode", bundlelib.ErrNotServerMode)
		return nil
	}
	if ctx.Bool("check-excluded") {
		cfg.CheckVersionForExcludedBundles = true
	}
	if ctx.Bool("clear-cache") {
		cfg.ClearCacheOnStart = true
	}
	if err := syncOnce(ctx, cfg); err != nil || every == "" {
		return err
	}
	cfg.ClearCacheOnStart = false

	sctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	fires := make(chan struct{}, 1)
	tm := cron.New(sctx, func(string) {
		select {
		case fires <- struct{}{}:
		default:
		}
	})
	tm.Add(job)
	if !ctx.Bool("json") {
		fmt.Printf("%s: next sync at %s\n", ctx.App.HelpName, job.At.Format(time.RFC3339))
	}
	for {
		select {
		case <-sctx.Done():
			return nil
		case <-fires:
			if err := syncOnce(ctx, cfg); err != nil {
				return err
			}
		}
	}
}

// syncOnce bootstraps a manager against the server, downloading every
// stale bundle, and prints the outcome.
func syncOnce(ctx *cli.Context, cfg bundlelib.Config) error {
	asJSON := ctx.Bool("json")
	tracker := &syncTracker{
		report:   common.SyncReport{Platform: cfg.Platform, Failed: map[string]string{}},
		stale:    map[string]bool{},
		showBars: !asJSON && !ctx.Bool("no-progress"),
	}

	l := newLogger(ctx)
	defer l.Close()
	m, err := bundlelib.New(cfg, bundlelib.WithLogger(l), bundlelib.WithHandlers(tracker.handlers()))
	if err != nil {
		cmdcommon.PrintRuntimeErr(ctx, "sync", "new_manager", err)
		return nil
	}
	defer m.Close()
	if err := m.Start(nil); err != nil {
		cmdcommon.PrintRuntimeErr(ctx, "sync", "start", err)
		return nil
	}

	rctx, cancel := runContext(ctx)
	defer cancel()
	err = drive(rctx, m, func() bool {
		tracker.render(m)
		return m.Ready()
	})
	tracker.finish()

	report := tracker.report
	report.Ready = m.Ready()
	if err != nil {
		report.Error = err.Error()
	}
	if asJSON {
		return printJSON(report)
	}
	if err != nil {
		cmdcommon.PrintRuntimeErr(ctx, "sync", "bootstrap", err)
		return nil
	}
	if len(report.Stale) == 0 {
		fmt.Printf("%s: all bundles are up to date\n", ctx.App.HelpName)
		return nil
	}
	fmt.Printf("%s: %d bundle(s) downloaded, %d failed\n", ctx.App.HelpName, len(report.Downloaded), len(report.Failed))
	for name, msg := range report.Failed {
		fmt.Printf("  %s: %s\n", name, msg)
	}
	return nil
}
