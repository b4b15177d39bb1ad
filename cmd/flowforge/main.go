// Package main provides the flowforge command line for offline generation and validation.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/flowforge/flowforge/pkg/cmd"
	cli "github.com/urfave/cli/v3"
)

func main() {
	command := &cli.Command{
		Name:                  "flowforge",
		Usage:                 "Turn orchestration plans into validated workflows",
		EnableShellCompletion: true,
		Flags:                 cmd.CommonFlags(),
		Commands: []*cli.Command{
			GenerateCommand(),
			ValidateCommand(),
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
