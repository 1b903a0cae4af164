// Package common provides shared utilities for the warpbundle commands:
// progress bars and error and help printing.
package common

import (
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// VersionCmdStr holds the formatted version string displayed by the version command.
// It is populated by Execute with build-time information.
var VersionCmdStr string

var (
	showAppHelpAndExit = cli.ShowAppHelpAndExit
	showCommandHelp    = cli.ShowCommandHelp
)

// barScale is the resolution of a bundle bar; progress in [0, 1] maps onto it.
const barScale = 1000

var barStyle = mpb.BarStyle().Lbound("╢").Filler("█").Tip("█").Padding("░").Rbound("╟")

// Bars renders one bar per bundle transfer and a bar for the whole batch.
type Bars struct {
	p       *mpb.Progress
	total   *mpb.Bar
	bundles map[string]*mpb.Bar
}

// InitBars creates the batch bar for count bundles.
func InitBars(p *mpb.Progress, count int) *Bars {
	name := "Bundles"
	total := p.New(int64(count),
		barStyle,
		mpb.BarPriority(1<<30),
		mpb.PrependDecorators(
			decor.Name(name, decor.WC{W: len(name) + 1, C: decor.DindentRight}),
			decor.CountersNoUnit("%d / %d", decor.WC{W: 8}),
		),
		mpb.AppendDecorators(
			decor.OnComplete(
				decor.AverageETA(decor.ET_STYLE_GO, decor.WC{W: 4}), "Complete",
			),
		),
	)
	total.EnableTriggerComplete()
	return &Bars{p: p, total: total, bundles: make(map[string]*mpb.Bar)}
}

func (b *Bars) bar(name string) *mpb.Bar {
	if bar, ok := b.bundles[name]; ok {
		return bar
	}
	bar := b.p.New(barScale,
		barStyle,
		mpb.BarRemoveOnComplete(),
		mpb.PrependDecorators(
			decor.Name(name, decor.WC{W: len(name) + 1, C: decor.DindentRight}),
		),
		mpb.AppendDecorators(
			decor.OnAbort(decor.Percentage(decor.WC{W: 5}), "failed"),
		),
	)
	b.bundles[name] = bar
	return bar
}

// Update sets the transfer progress of name, in [0, 1].
func (b *Bars) Update(name string, progress float64) {
	b.bar(name).SetCurrent(int64(progress * barScale))
}

// Done completes the bar of name, or aborts it when err is set, and
// advances the batch bar.
func (b *Bars) Done(name string, err error) {
	bar := b.bar(name)
	if err != nil {
		bar.Abort(false)
	} else {
		bar.SetCurrent(barScale)
	}
	delete(b.bundles, name)
	b.total.Increment()
}

// Finish drops unfinished bars and waits for rendering to end.
func (b *Bars) Finish() {
	for name, bar := range b.bundles {
		bar.Abort(true)
		delete(b.bundles, name)
	}
	if !b.total.Completed() {
		b.total.Abort(false)
	}
	b.p.Wait()
}

// Help displays help information for the application or a specific command.
// If no argument is provided or the argument is "help", it displays the
// application-level help and exits.
func Help(ctx *cli.Context) error {
	arg := ctx.Args().First()
	if arg == "" || arg == "help" {
		fmt.Printf("%s %s\n", ctx.App.Name, ctx.App.Version)
		showAppHelpAndExit(ctx, 0)
		return nil
	}
	err := showCommandHelp(ctx, arg)
	if err != nil {
		return err
	}
	return nil
}

// GetVersion prints VersionCmdStr.
func GetVersion(ctx *cli.Context) error {
	fmt.Println(VersionCmdStr)
	return nil
}

// PrintRuntimeErr prints a runtime error as "app: cmd[action]: err".
// The ctx parameter may be nil, in which case the application name is
// derived from os.Args[0].
func PrintRuntimeErr(ctx *cli.Context, cmd, action string, err error) {
	if err == nil {
		fmt.Println("err is nil", "[", cmd, "|", action, "]")
		return
	}
	var name string
	if ctx != nil {
		name = ctx.App.HelpName
	} else {
		name = os.Args[0]
	}
	fmt.Printf("%s: %s[%s]: %s\n", name, cmd, action, err.Error())
}

// PrintErrWithCmdHelp prints the error message followed by the current
// command's help text.
func PrintErrWithCmdHelp(ctx *cli.Context, err error) error {
	return printErrWithCallback(
		ctx,
		err,
		func() {
			err := showCommandHelp(ctx, ctx.Command.Name)
			if err != nil {
				fmt.Println(err.Error())
			}
		},
	)
}

// PrintErrWithHelp prints the error message followed by the application-level
// help text and exits with status code 1.
func PrintErrWithHelp(ctx *cli.Context, err error) error {
	return printErrWithCallback(
		ctx,
		err,
		func() {
			showAppHelpAndExit(ctx, 1)
		},
	)
}

func printErrWithCallback(ctx *cli.Context, err error, callback func()) error {
	if err == nil {
		return nil
	}
	estr := strings.ToLower(err.Error())
	if estr == "flag: help requested" {
		return Help(ctx)
	}
	if strings.Contains(estr, "-version") {
		return GetVersion(ctx)
	}
	fmt.Printf("%s: %s\n\n", ctx.App.HelpName, err.Error())
	callback()
	return nil
}

// UsageErrorCallback is the OnUsageError callback of the app and its
// commands. It prints the error with the matching help text.
func UsageErrorCallback(ctx *cli.Context, err error, _ bool) error {
	if ctx.Command.Name != "" {
		return PrintErrWithCmdHelp(ctx, err)
	}
	return PrintErrWithHelp(ctx, err)
}
