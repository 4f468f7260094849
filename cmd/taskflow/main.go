// Package main is the taskflow command: it serves both engines over HTTP and validates
// configuration and definition files.
package main

import (
	"context"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"
)

var version = "dev"

func main() {
	cmd := &cli.Command{
		Name:                  "taskflow",
		Usage:                 "Run and manage tasks and workflows",
		Version:               version,
		EnableShellCompletion: true,
		Commands: []*cli.Command{
			RunCommand(),
			ValidateCommand(),
			VersionCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func VersionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print the version",
		Action: func(context.Context, *cli.Command) error {
			fmt.Println(version)

			return nil
		},
	}
}
