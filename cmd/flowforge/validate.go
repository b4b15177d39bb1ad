package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/flowforge/flowforge/pkg/log"
	"github.com/flowforge/flowforge/pkg/models"
	"github.com/flowforge/flowforge/pkg/templates"
	"github.com/flowforge/flowforge/pkg/validator"
	cli "github.com/urfave/cli/v3"
)

var errInvalidWorkflow = errors.New("workflow is invalid")

func ValidateCommand() *cli.Command {
	return &cli.Command{
		Name:    "validate",
		Aliases: []string{"v"},
		Usage:   "Validate a workflow graph file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "graph",
				Usage:    "Workflow graph JSON file",
				Required: true,
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))
			logger := log.WithModule("flowforge-cli")

			data, err := os.ReadFile(filepath.Clean(command.String("graph")))
			if err != nil {
				return fmt.Errorf("failed to read graph: %w", err)
			}

			var graph models.WorkflowGraph
			if err := json.Unmarshal(data, &graph); err != nil {
				return fmt.Errorf("failed to parse graph: %w", err)
			}

			registry, err := templates.NewDefaultRegistry(logger)
			if err != nil {
				return err
			}

			result := validator.New(registry, logger).Validate(ctx, &graph)

			out := command.Root().Writer
			if result.Valid {
				_, _ = fmt.Fprintf(out, "%s: valid (%d nodes)\n", graph.Name, len(graph.Nodes))

				return nil
			}

			for _, message := range result.Errors {
				_, _ = fmt.Fprintln(out, "-", message)
			}

			return fmt.Errorf("%w: %d error(s)", errInvalidWorkflow, len(result.Errors))
		},
	}
}
