package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/flowforge/flowforge/pkg/cmd"
	"github.com/flowforge/flowforge/pkg/log"
	"github.com/flowforge/flowforge/pkg/models"
	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

var errJobFailed = errors.New("generation failed")

func GenerateCommand() *cli.Command {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:     "plan",
			Usage:    "Orchestration plan file (YAML or JSON)",
			Required: true,
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Write the artifact to this file instead of stdout",
		},
		&cli.StringFlag{
			Name:  "industry",
			Usage: "Business industry used by the complexity analysis",
		},
		&cli.IntFlag{
			Name:  "expected-volume",
			Usage: "Expected records or messages per day",
		},
		&cli.StringSliceFlag{
			Name:  "hint",
			Usage: "Complexity hints such as compliance or multi-region",
		},
		&cli.StringFlag{
			Name:  "database-url",
			Usage: "Keep the job in this store (file://<dir> or postgres://...); a temporary directory is used when empty",
		},
	}

	return &cli.Command{
		Name:    "generate",
		Aliases: []string{"g"},
		Usage:   "Generate a workflow from a plan file and print the artifact",
		Flags:   append(flags, cmd.PipelineFlags()...),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			plan, err := readPlan(command.String("plan"))
			if err != nil {
				return err
			}

			out := command.Root().Writer
			if path := command.String("output"); path != "" {
				file, err := os.OpenFile(filepath.Clean(path), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
				if err != nil {
					return fmt.Errorf("failed to open output: %w", err)
				}

				defer func() { _ = file.Close() }()

				out = file
			}

			submission := models.JobSubmission{
				ID:                 uuid.NewString(),
				ProcessDescription: plan.Description,
				BusinessContext: models.BusinessContext{
					Industry:        command.String("industry"),
					ExpectedVolume:  int(command.Int("expected-volume")),
					ComplexityHints: command.StringSlice("hint"),
				},
				Plan: plan,
			}

			return generate(ctx, command, submission, out)
		},
	}
}

func generate(ctx context.Context, command *cli.Command, submission models.JobSubmission, out io.Writer) error {
	logger := log.WithModule("flowforge-cli")

	databaseURL := command.String("database-url")
	if databaseURL == "" {
		dir, err := os.MkdirTemp("", "flowforge-*")
		if err != nil {
			return err
		}

		defer func() { _ = os.RemoveAll(dir) }()

		databaseURL = "file://" + dir
	}

	store, err := cmd.NewPersistence(ctx, logger, databaseURL)
	if err != nil {
		return err
	}

	defer func() { _ = store.Close(context.Background()) }()

	pipeline, err := cmd.NewPipeline(ctx, cmd.PipelineConfigFrom(command), logger)
	if err != nil {
		return err
	}

	defer func() { _ = pipeline.Close() }()

	job := &models.Job{ID: submission.ID, Status: models.JobStatusPending, Submission: submission}
	if err := store.SaveJob(ctx, job); err != nil {
		return err
	}

	job, err = pipeline.Processor(store, nil, nil, "cli").Run(ctx, job)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")

	if job.Status != models.JobStatusCompleted {
		if err := encoder.Encode(job.View()); err != nil {
			return err
		}

		return fmt.Errorf("%w: %s", errJobFailed, job.Error.Message)
	}

	return encoder.Encode(job.Result)
}

func readPlan(path string) (*models.OrchestrationPlan, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read plan: %w", err)
	}

	var plan models.OrchestrationPlan

	if strings.HasSuffix(strings.ToLower(path), ".json") {
		err = json.Unmarshal(data, &plan)
	} else {
		err = yaml.Unmarshal(data, &plan)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to parse plan %s: %w", path, err)
	}

	return &plan, nil
}
