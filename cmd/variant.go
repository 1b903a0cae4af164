package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/urfave/cli"
	"github.com/warpdl/warpbundle/cmd/common"
	"github.com/warpdl/warpbundle/pkg/bundlelib"
)

var variantFlags = []cli.Flag{
	cli.StringFlag{
		Name:  "variants",
		Usage: "comma separated variant bundle names, e.g. atlas.hd,atlas.sd",
	},
	cli.StringFlag{
		Name:  "active, a",
		Usage: "comma separated active tags in priority order",
	},
	jsonFlag,
}

type variantReport struct {
	Logical   string `json:"logical"`
	Resolved  string `json:"resolved"`
	Ambiguous bool   `json:"ambiguous"`
}

func splitList(s string) []string {
	var out []string
	for _, f := range strings.Split(s, ",") {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

func variant(ctx *cli.Context) error {
	if ctx.Args().First() == "help" {
		return cli.ShowCommandHelp(ctx, ctx.Command.Name)
	}
	name := ctx.Args().First()
	if name == "" {
		return common.PrintErrWithCmdHelp(ctx, errors.New("no bundle name provided"))
	}
	l := newLogger(ctx)
	defer l.Close()
	r := bundlelib.NewVariantResolver(l)
	r.SetVariants(splitList(ctx.String("variants")))
	r.SetActive(splitList(ctx.String("active")))
	resolved, ambiguous := r.Resolve(name)
	if ctx.Bool("json") {
		return printJSON(variantReport{Logical: name, Resolved: resolved, Ambiguous: ambiguous})
	}
	fmt.Println(resolved)
	if ambiguous {
		fmt.Printf("warning: no active variant of %s, picked %s\n", name, resolved)
	}
	return nil
}
