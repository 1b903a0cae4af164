package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli"
	"github.com/warpdl/warpbundle/cmd/common"
	"github.com/warpdl/warpbundle/pkg/bundlelib"
)

var diffFlags = []cli.Flag{
	cli.StringFlag{
		Name:  "local, l",
		Usage: "local version file; missing means nothing is downloaded",
	},
	cli.StringFlag{
		Name:  "remote, r",
		Usage: "remote version file",
	},
	cli.StringFlag{
		Name:  "exclude, e",
		Usage: "exclude list, one bundle per line",
	},
	cli.StringFlag{
		Name:  "manifest, m",
		Usage: "manifest bundle name, never reported",
	},
	cli.BoolFlag{
		Name:  "check-excluded",
		Usage: "also version-check bundles on the exclude list",
	},
	jsonFlag,
}

func diff(ctx *cli.Context) error {
	if ctx.Args().First() == "help" {
		return cli.ShowCommandHelp(ctx, ctx.Command.Name)
	}
	remotePath := ctx.String("remote")
	if remotePath == "" {
		return common.PrintErrWithCmdHelp(ctx, errors.New("no remote version file provided"))
	}
	remote, err := readVersionFile(remotePath, false)
	if err != nil {
		common.PrintRuntimeErr(ctx, "diff", "read_remote", err)
		return nil
	}
	local, err := readVersionFile(ctx.String("local"), true)
	if err != nil {
		common.PrintRuntimeErr(ctx, "diff", "read_local", err)
		return nil
	}
	var excluded []string
	if p := ctx.String("exclude"); p != "" {
		excluded, err = readList(p)
		if err != nil {
			common.PrintRuntimeErr(ctx, "diff", "read_exclude", err)
			return nil
		}
	}
	stale := bundlelib.Diff(local, remote, excluded, bundlelib.DiffOptions{
		CheckExcluded: ctx.Bool("check-excluded"),
		ManifestName:  ctx.String("manifest"),
	})
	if ctx.Bool("json") {
		if stale == nil {
			stale = []string{}
		}
		return printJSON(stale)
	}
	for _, name := range stale {
		fmt.Println(name)
	}
	return nil
}

// readVersionFile parses a version file. With optional set, a missing file
// reads as an empty map.
func readVersionFile(path string, optional bool) (*bundlelib.VersionMap, error) {
	if path == "" && optional {
		return bundlelib.NewVersionMap(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		if optional && errors.Is(err, os.ErrNotExist) {
			return bundlelib.NewVersionMap(), nil
		}
		return nil, err
	}
	defer f.Close()
	return bundlelib.ParseVersionMap(f)
}

func readList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return bundlelib.ParseExcludeList(f)
}
