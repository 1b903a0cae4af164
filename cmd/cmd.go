package cmd

import (
	"fmt"
	"runtime"

	"github.com/urfave/cli"
	"github.com/warpdl/warpbundle/cmd/common"
)

type BuildArgs struct {
	Version   string
	BuildType string
	Date      string
	Commit    string
}

func newApp(bArgs BuildArgs) *cli.App {
	app := cli.NewApp()
	app.Name = "warpbundle"
	app.HelpName = "warpbundle"
	app.Usage = "An asset bundle manager."
	app.Version = fmt.Sprintf("%s-%s", bArgs.Version, bArgs.BuildType)
	app.UsageText = "warpbundle [global options] <command> [arguments...]"
	app.Description = DESCRIPTION
	app.CustomAppHelpTemplate = HELP_TEMPL
	app.OnUsageError = common.UsageErrorCallback
	app.Flags = globalFlags
	app.HideHelp = true
	app.HideVersion = true
	app.Metadata = map[string]any{metaBuild: bArgs}
	app.Commands = []cli.Command{
		{
			Name:               "diff",
			Usage:              "list bundles that need downloading",
			Action:             diff,
			OnUsageError:       common.UsageErrorCallback,
			CustomHelpTemplate: CMD_HELP_TEMPL,
			Description:        DiffDescription,
			Flags:              diffFlags,
		},
		{
			Name:               "sync",
			Aliases:            []string{"s"},
			Usage:              "download stale bundles from the server",
			Action:             syncBundles,
			OnUsageError:       common.UsageErrorCallback,
			CustomHelpTemplate: CMD_HELP_TEMPL,
			Description:        SyncDescription,
			Flags:              syncFlags,
		},
		{
			Name:               "load",
			Aliases:            []string{"l"},
			Usage:              "load an asset and its bundle dependencies",
			UsageText:          "load [flags] <bundle> <asset>",
			Action:             load,
			OnUsageError:       common.UsageErrorCallback,
			CustomHelpTemplate: CMD_HELP_TEMPL,
			Description:        LoadDescription,
			Flags:              loadFlags,
		},
		{
			Name:               "scene",
			Usage:              "load a scene and its bundle dependencies",
			UsageText:          "scene [flags] <bundle> <scene>",
			Action:             scene,
			OnUsageError:       common.UsageErrorCallback,
			CustomHelpTemplate: CMD_HELP_TEMPL,
			Description:        SceneDescription,
			Flags:              sceneFlags,
		},
		{
			Name:               "variant",
			Usage:              "resolve a bundle name against variants",
			UsageText:          "variant --variants a.x,a.y --active y <name>",
			Action:             variant,
			OnUsageError:       common.UsageErrorCallback,
			CustomHelpTemplate: CMD_HELP_TEMPL,
			Description:        VariantDescription,
			Flags:              variantFlags,
		},
		{
			Name:               "cache",
			Usage:              "inspect or clear the bundle cache",
			OnUsageError:       common.UsageErrorCallback,
			CustomHelpTemplate: CMD_HELP_TEMPL,
			Description:        CacheDescription,
			Subcommands: []cli.Command{
				{
					Name:   "stats",
					Usage:  "print cache entry count and size",
					Action: cacheStats,
					Flags:  cacheFlags,
				},
				{
					Name:   "clear",
					Usage:  "remove every cached bundle",
					Action: cacheClear,
					Flags:  cacheFlags,
				},
			},
		},
		{
			Name:               "keyring",
			Usage:              "manage ftp and sftp passwords",
			OnUsageError:       common.UsageErrorCallback,
			CustomHelpTemplate: CMD_HELP_TEMPL,
			Description:        KeyringDescription,
			Subcommands: []cli.Command{
				{
					Name:   "set",
					Usage:  "store a password read from stdin",
					Action: keyringSet,
					Flags:  keyringFlags,
				},
				{
					Name:   "delete",
					Usage:  "remove a stored password",
					Action: keyringDelete,
					Flags:  keyringFlags,
				},
			},
		},
		{
			Name:               "serve",
			Usage:              "publish a bundle build directory",
			Action:             serve,
			OnUsageError:       common.UsageErrorCallback,
			CustomHelpTemplate: CMD_HELP_TEMPL,
			Description:        ServeDescription,
			Flags:              serveFlags,
		},
		{
			Name:    "help",
			Aliases: []string{"h"},
			Usage:   "prints the help message",
			Action:  common.Help,
		},
		{
			Name:               "version",
			Aliases:            []string{"v"},
			Usage:              "prints installed version of warpbundle",
			UsageText:          " ",
			CustomHelpTemplate: CMD_HELP_TEMPL,
			Action:             common.GetVersion,
		},
	}
	return app
}

// Execute runs the warpbundle command line.
func Execute(args []string, bArgs BuildArgs) error {
	app := newApp(bArgs)
	common.VersionCmdStr = fmt.Sprintf("%s %s (%s_%s)\nBuild: %s=%s\n",
		app.Name,
		app.Version,
		runtime.GOOS,
		runtime.GOARCH,
		bArgs.Date, bArgs.Commit,
	)
	return app.Run(args)
}
