package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/urfave/cli"
	cmdcommon "github.com/warpdl/warpbundle/cmd/common"
	"github.com/warpdl/warpbundle/common"
	"github.com/warpdl/warpbundle/pkg/bundlelib"
)

var cacheFlags = []cli.Flag{
	configFlag,
	jsonFlag,
}

// openCache opens the bundle cache the manager would use for the config.
func openCache(ctx *cli.Context, action string) (*bundlelib.Cache, string, func(), bool) {
	cfg, err := loadConfig(ctx)
	if err != nil {
		cmdcommon.PrintRuntimeErr(ctx, "cache", action, err)
		return nil, "", nil, false
	}
	dir := filepath.Join(cfg.CacheDir, "bundles")
	fs := afero.NewOsFs()
	if err := fs.MkdirAll(dir, 0755); err != nil {
		cmdcommon.PrintRuntimeErr(ctx, "cache", action, err)
		return nil, "", nil, false
	}
	l := newLogger(ctx)
	c, err := bundlelib.OpenCache(fs, dir, bundlelib.DefaultIndexDSN(dir), l)
	if err != nil {
		l.Close()
		cmdcommon.PrintRuntimeErr(ctx, "cache", action, err)
		return nil, "", nil, false
	}
	return c, dir, func() {
		c.Close()
		l.Close()
	}, true
}

func printCacheReport(ctx *cli.Context, c *bundlelib.Cache, dir string) error {
	entries, size, err := c.Stats(context.Background())
	if err != nil {
		cmdcommon.PrintRuntimeErr(ctx, "cache", "stats", err)
		return nil
	}
	report := common.CacheReport{Dir: dir, Entries: entries, Size: size}
	if ctx.Bool("json") {
		return printJSON(report)
	}
	fmt.Printf("Cache: %s\nBundles: %d\nSize: %d bytes\n", report.Dir, report.Entries, report.Size)
	return nil
}

func cacheStats(ctx *cli.Context) error {
	c, dir, closeCache, ok := openCache(ctx, "open")
	if !ok {
		return nil
	}
	defer closeCache()
	return printCacheReport(ctx, c, dir)
}

func cacheClear(ctx *cli.Context) error {
	c, dir, closeCache, ok := openCache(ctx, "open")
	if !ok {
		return nil
	}
	defer closeCache()
	if err := c.Clear(context.Background()); err != nil {
		cmdcommon.PrintRuntimeErr(ctx, "cache", "clear", err)
		return nil
	}
	return printCacheReport(ctx, c, dir)
}
