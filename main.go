package main

import (
	"fmt"
	"os"

	"github.com/warpdl/warpbundle/cmd"
)

var (
	version   string
	commit    string
	date      string
	buildType string = "unclassified"
)

var osExit = os.Exit

func runMain(args []string, execute func([]string) error) int {
	if err := execute(args); err != nil {
		fmt.Printf("warpbundle: %s\n", err.Error())
		return 1
	}
	return 0
}

func main() {
	bArgs := cmd.BuildArgs{
		Version:   version,
		Commit:    commit,
		Date:      date,
		BuildType: buildType,
	}
	osExit(runMain(os.Args, func(args []string) error {
		return cmd.Execute(args, bArgs)
	}))
}
