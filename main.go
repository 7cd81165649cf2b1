// Command guam is the command-line interface to the Guam virtual machine.
package main

import (
	"context"
	"os"

	"github.com/yokwe/guam-go/internal/cli"
	"github.com/yokwe/guam-go/internal/cli/cmd"
)

var (
	commands = []cli.Command{
		cmd.Run(),
	}
)

// Entry point.
func main() {
	result :=
		cli.New(context.Background()).
			WithLogger(os.Stderr).
			WithCommands(commands).
			WithHelp(cmd.Help(commands)).
			Execute(os.Args[1:])

	os.Exit(result)
}
