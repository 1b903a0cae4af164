package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli"
	cmdcommon "github.com/warpdl/warpbundle/cmd/common"
	"github.com/warpdl/warpbundle/common"
	"github.com/warpdl/warpbundle/pkg/bundlelib"
)

var (
	variantsOverrideFlag = cli.StringFlag{
		Name:  "variants",
		Usage: "comma separated active variant tags, overriding the config",
	}

	loadFlags = []cli.Flag{
		configFlag,
		variantsOverrideFlag,
		cli.StringFlag{
			Name:  "output, o",
			Usage: "write the asset content to this file",
		},
		jsonFlag,
		timeoutFlag,
	}

	sceneFlags = []cli.Flag{
		configFlag,
		variantsOverrideFlag,
		cli.BoolFlag{
			Name:  "additive, a",
			Usage: "load the scene on top of the current one",
		},
		jsonFlag,
		timeoutFlag,
	}
)

// loadRun is one load or scene invocation: a ready manager plus the
// bundles read after initialization, in start order.
type loadRun struct {
	m          *bundlelib.Manager
	recording  bool
	originated []string
}

func openLoadRun(ctx *cli.Context, cmd string) (*loadRun, func(), bool) {
	cfg, err := loadConfig(ctx)
	if err != nil {
		cmdcommon.PrintRuntimeErr(ctx, cmd, "load_config", err)
		return nil, nil, false
	}
	if v := ctx.String("variants"); v != "" {
		cfg.ActiveVariants = strings.Split(v, ",")
	}
	run := &loadRun{}
	h := &bundlelib.Handlers{
		BundleOriginatedHandler: func(name string) {
			if run.recording {
				run.originated = append(run.originated, name)
			}
		},
	}
	l := newLogger(ctx)
	rctx, cancel := runContext(ctx)
	m, err := startManager(rctx, cfg, l, h)
	cancel()
	if err != nil {
		l.Close()
		cmdcommon.PrintRuntimeErr(ctx, cmd, "start_manager", err)
		return nil, nil, false
	}
	run.m = m
	run.recording = true
	return run, func() {
		m.Close()
		l.Close()
	}, true
}

// wait ticks until op is done.
func (r *loadRun) wait(ctx *cli.Context, op *bundlelib.Operation) error {
	rctx, cancel := runContext(ctx)
	defer cancel()
	if err := drive(rctx, r.m, op.Done); err != nil {
		return err
	}
	return op.Err()
}

func (r *loadRun) originatedList() []string {
	if r.originated == nil {
		return []string{}
	}
	return r.originated
}

func load(ctx *cli.Context) error {
	if ctx.Args().First() == "help" {
		return cli.ShowCommandHelp(ctx, ctx.Command.Name)
	}
	bundle, asset := ctx.Args().Get(0), ctx.Args().Get(1)
	if bundle == "" || asset == "" {
		return cmdcommon.PrintErrWithCmdHelp(ctx, errors.New("a bundle and an asset name are required"))
	}
	run, closeRun, ok := openLoadRun(ctx, "load")
	if !ok {
		return nil
	}
	defer closeRun()

	op, err := run.m.LoadAsset(bundle, asset)
	if err != nil {
		cmdcommon.PrintRuntimeErr(ctx, "load", "load_asset", err)
		return nil
	}
	if err := run.wait(ctx, op); err != nil {
		cmdcommon.PrintRuntimeErr(ctx, "load", "wait", err)
		return nil
	}
	data, _ := bundlelib.AssetResult[[]byte](op)
	if out := ctx.String("output"); out != "" {
		if err := os.WriteFile(out, data, 0644); err != nil {
			cmdcommon.PrintRuntimeErr(ctx, "load", "write_output", err)
			return nil
		}
	}
	report := common.LoadReport{
		Bundle:     bundle,
		Resolved:   op.Bundle(),
		Asset:      asset,
		Size:       len(data),
		Originated: run.originatedList(),
	}
	if ctx.Bool("json") {
		return printJSON(report)
	}
	fmt.Printf("%s: loaded %s from %s (%d bytes)\n", ctx.App.HelpName, asset, report.Resolved, report.Size)
	if len(report.Originated) > 0 {
		fmt.Printf("bundles read: %s\n", strings.Join(report.Originated, ", "))
	}
	return nil
}

func scene(ctx *cli.Context) error {
	if ctx.Args().First() == "help" {
		return cli.ShowCommandHelp(ctx, ctx.Command.Name)
	}
	bundle, name := ctx.Args().Get(0), ctx.Args().Get(1)
	if bundle == "" || name == "" {
		return cmdcommon.PrintErrWithCmdHelp(ctx, errors.New("a bundle and a scene name are required"))
	}
	run, closeRun, ok := openLoadRun(ctx, "scene")
	if !ok {
		return nil
	}
	defer closeRun()

	op, err := run.m.LoadScene(bundle, name, ctx.Bool("additive"))
	if err != nil {
		cmdcommon.PrintRuntimeErr(ctx, "scene", "load_scene", err)
		return nil
	}
	if err := run.wait(ctx, op); err != nil {
		cmdcommon.PrintRuntimeErr(ctx, "scene", "wait", err)
		return nil
	}
	var size int
	if sc, ok := bundlelib.AssetResult[*bundlelib.Scene](op); ok && sc != nil {
		size = len(sc.Data)
	}
	report := common.LoadReport{
		Bundle:     bundle,
		Resolved:   op.Bundle(),
		Asset:      name,
		Size:       size,
		Originated: run.originatedList(),
	}
	if ctx.Bool("json") {
		return printJSON(report)
	}
	mode := "single"
	if ctx.Bool("additive") {
		mode = "additive"
	}
	fmt.Printf("%s: scene %s from %s is ready (%s)\n", ctx.App.HelpName, name, report.Resolved, mode)
	if len(report.Originated) > 0 {
		fmt.Printf("bundles read: %s\n", strings.Join(report.Originated, ", "))
	}
	return nil
}
