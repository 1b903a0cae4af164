package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"runtime"
	"strconv"

	"github.com/spf13/afero"
	"github.com/urfave/cli"
	cmdcommon "github.com/warpdl/warpbundle/cmd/common"
	"github.com/warpdl/warpbundle/common"
	"github.com/warpdl/warpbundle/internal/server"
)

var serveFlags = []cli.Flag{
	cli.StringFlag{
		Name:  "dir, d",
		Usage: "bundle build directory to publish",
	},
	cli.StringFlag{
		Name:  "host",
		Usage: "address to listen on",
		Value: "0.0.0.0",
	},
	cli.IntFlag{
		Name:  "port, p",
		Usage: "HTTP port",
		Value: common.DefaultOriginPort,
	},
	cli.IntFlag{
		Name:  "ftp-port",
		Usage: "serve the directory read-only over FTP on this port (0 disables)",
	},
	cli.StringFlag{
		Name:  "ftp-user",
		Usage: "FTP user; anonymous logins are allowed when empty",
	},
	cli.StringFlag{
		Name:   "ftp-password",
		Usage:  "FTP password for --ftp-user",
		EnvVar: "WARPBUNDLE_FTP_PASSWORD",
	},
	cli.StringFlag{
		Name:   "rpc-secret",
		Usage:  "bearer token for the JSON-RPC endpoints",
		EnvVar: common.RPCSecretEnv,
	},
	cli.StringFlag{
		Name:  "platform",
		Usage: "default platform for catalog calls",
		Value: runtime.GOOS,
	},
}

// serveConfig maps the serve flags onto an origin configuration.
func serveConfig(ctx *cli.Context) (*server.Config, error) {
	dir := ctx.String("dir")
	if dir == "" {
		return nil, errors.New("no bundle directory provided")
	}
	port := ctx.Int("port")
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("invalid port: %d", port)
	}
	host := ctx.String("host")
	cfg := &server.Config{
		Dir:         dir,
		Platform:    ctx.String("platform"),
		Addr:        net.JoinHostPort(host, strconv.Itoa(port)),
		FTPUser:     ctx.String("ftp-user"),
		FTPPassword: ctx.String("ftp-password"),
	}
	if fp := ctx.Int("ftp-port"); fp > 0 {
		cfg.FTPAddr = net.JoinHostPort(host, strconv.Itoa(fp))
	}
	b := buildArgs(ctx)
	cfg.RPC = server.RPCConfig{
		Secret:    ctx.String("rpc-secret"),
		Version:   b.Version,
		Commit:    b.Commit,
		BuildType: b.BuildType,
	}
	return cfg, nil
}

func serve(ctx *cli.Context) error {
	if ctx.Args().First() == "help" {
		return cli.ShowCommandHelp(ctx, ctx.Command.Name)
	}
	cfg, err := serveConfig(ctx)
	if err != nil {
		return cmdcommon.PrintErrWithCmdHelp(ctx, err)
	}
	fi, err := os.Stat(cfg.Dir)
	if err != nil {
		cmdcommon.PrintRuntimeErr(ctx, "serve", "stat_dir", err)
		return nil
	}
	if !fi.IsDir() {
		cmdcommon.PrintRuntimeErr(ctx, "serve", "stat_dir", fmt.Errorf("%s is not a directory", cfg.Dir))
		return nil
	}
	l := newLogger(ctx)
	defer l.Close()
	if cfg.RPC.Secret == "" {
		l.Warning("No RPC secret set, JSON-RPC requests will be rejected")
	}
	s := server.NewServer(afero.NewOsFs(), cfg, l)
	defer s.Close()

	sctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	fmt.Printf("%s: serving %s on http://%s\n", ctx.App.HelpName, cfg.Dir, cfg.Addr)
	if err := s.Start(sctx); err != nil {
		cmdcommon.PrintRuntimeErr(ctx, "serve", "start", err)
	}
	return nil
}
