package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli"
	"github.com/warpdl/warpbundle/cmd/common"
	"github.com/warpdl/warpbundle/pkg/credman/keyring"
)

var keyringFlags = []cli.Flag{
	cli.StringFlag{
		Name:  "host",
		Usage: "ftp or sftp host, without port",
	},
	cli.StringFlag{
		Name:  "user, u",
		Usage: "account name on the host",
	},
}

// passwordInput is where "keyring set" reads the password from.
var passwordInput io.Reader = os.Stdin

func keyringTarget(ctx *cli.Context) (host, user string, err error) {
	host, user = ctx.String("host"), ctx.String("user")
	if host == "" || user == "" {
		return "", "", errors.New("both --host and --user are required")
	}
	return host, user, nil
}

func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	pw := strings.TrimRight(line, "\r\n")
	if pw == "" {
		return "", errors.New("empty password")
	}
	return pw, nil
}

func keyringSet(ctx *cli.Context) error {
	host, user, err := keyringTarget(ctx)
	if err != nil {
		return common.PrintErrWithCmdHelp(ctx, err)
	}
	pw, err := readPassword(passwordInput)
	if err != nil {
		common.PrintRuntimeErr(ctx, "keyring", "read_password", err)
		return nil
	}
	if err := keyring.NewKeyring().SetPassword(host, user, pw); err != nil {
		common.PrintRuntimeErr(ctx, "keyring", "set", err)
		return nil
	}
	fmt.Printf("%s: stored password for %s@%s\n", ctx.App.HelpName, user, host)
	return nil
}

func keyringDelete(ctx *cli.Context) error {
	host, user, err := keyringTarget(ctx)
	if err != nil {
		return common.PrintErrWithCmdHelp(ctx, err)
	}
	if err := keyring.NewKeyring().DeletePassword(host, user); err != nil {
		common.PrintRuntimeErr(ctx, "keyring", "delete", err)
		return nil
	}
	fmt.Printf("%s: removed password for %s@%s\n", ctx.App.HelpName, user, host)
	return nil
}
