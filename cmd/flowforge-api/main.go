package main

import (
	"context"
	"os"

	"github.com/flowforge/flowforge/pkg/cmd"
	"github.com/flowforge/flowforge/pkg/log"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9091

func main() {
	logger := log.WithModule("api")

	flags := []cli.Flag{
		&cli.IntFlag{
			Name:    "port",
			Aliases: []string{"p"},
			Usage:   "Port to run the API server on",
			Value:   defaultPort,
			Sources: cli.EnvVars("PORT"),
		},
		&cli.StringFlag{
			Name:     "database-url",
			Usage:    "Database connection URL for persistence (file://<dir> or postgres://...)",
			Required: true,
			Sources:  cli.EnvVars("DATABASE_URL"),
		},
		&cli.StringFlag{
			Name:    "event-bus",
			Usage:   "Event bus type (gochannel, kafka)",
			Value:   "gochannel",
			Sources: cli.EnvVars("EVENT_BUS_TYPE"),
		},
		&cli.StringFlag{
			Name:    "kafka-brokers",
			Usage:   "Comma-separated Kafka brokers",
			Value:   "localhost:9092",
			Sources: cli.EnvVars("KAFKA_BROKERS"),
		},
		&cli.BoolFlag{
			Name:    "embedded-worker",
			Usage:   "Process submitted jobs inside the API process",
			Sources: cli.EnvVars("EMBEDDED_WORKER"),
		},
	}

	flags = append(flags, cmd.CommonFlags()...)
	flags = append(flags, cmd.PipelineFlags()...)

	command := &cli.Command{
		Name:                  "flowforge-api",
		Usage:                 "Accept workflow generation jobs and report their status",
		EnableShellCompletion: true,
		Flags:                 flags,
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger.InfoContext(ctx, "Initializing FlowForge API")

			_, shutdownTracer := cmd.NewTracer(ctx, command.Bool("otel-enabled"), "flowforge-api", logger)
			defer shutdownTracer()

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				err := persistence.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus, err := cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), "flowforge-api", logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			pipeline, err := cmd.NewPipeline(ctx, cmd.PipelineConfigFrom(command), logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := pipeline.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close pipeline", "error", err)
				}
			}()

			api := NewAPI(logger, persistence, pipeline, eventBus)

			if command.Bool("embedded-worker") {
				if err := api.StartEmbeddedWorker(ctx, "api-embedded"); err != nil {
					return err
				}

				logger.InfoContext(ctx, "Embedded worker started")
			}

			err = api.Start(int(command.Int("port")))
			if err != nil {
				logger.ErrorContext(ctx, "Failed to start API server", "error", err)
			}

			return nil
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
