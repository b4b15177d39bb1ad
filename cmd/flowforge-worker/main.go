package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/flowforge/flowforge/pkg/cmd"
	"github.com/flowforge/flowforge/pkg/log"
	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
)

func main() {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:    "worker-id",
			Aliases: []string{"id"},
			Usage:   "Custom worker ID (auto-generated if not provided)",
			Value:   "",
			Sources: cli.EnvVars("WORKER_ID"),
		},
		&cli.StringFlag{
			Name:     "database-url",
			Usage:    "Database connection URL for persistence (file://<dir> or postgres://...)",
			Required: true,
			Sources:  cli.EnvVars("DATABASE_URL"),
		},
		&cli.StringFlag{
			Name:     "event-bus",
			Usage:    "Event bus type (gochannel, kafka)",
			Required: true,
			Sources:  cli.EnvVars("EVENT_BUS_TYPE"),
		},
		&cli.StringFlag{
			Name:    "kafka-brokers",
			Usage:   "Comma-separated Kafka brokers",
			Value:   "localhost:9092",
			Sources: cli.EnvVars("KAFKA_BROKERS"),
		},
		&cli.StringFlag{
			Name:    "cost-report-schedule",
			Usage:   "Cron expression for the periodic cost report (empty disables it)",
			Value:   "0 * * * *",
			Sources: cli.EnvVars("COST_REPORT_SCHEDULE"),
		},
	}

	flags = append(flags, cmd.CommonFlags()...)
	flags = append(flags, cmd.PipelineFlags()...)

	command := &cli.Command{
		Name:                  "flowforge-worker",
		EnableShellCompletion: true,
		Usage:                 "Start workers that turn orchestration plans into workflows",
		Flags:                 flags,
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "worker-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("flowforge-worker").With("workerId", workerID)

			logger.InfoContext(ctx, "Initializing FlowForge Worker")

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			tracer, shutdownTracer := cmd.NewTracer(ctx, command.Bool("otel-enabled"), "flowforge-worker", logger)
			defer shutdownTracer()

			eventBus, err := cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), "flowforge-worker", logger)
			if err != nil {
				return err
			}

			defer func() {
				err := eventBus.Close()
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				err := persistence.Close(context.Background())
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
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

			if err := pipeline.RestoreCosts(ctx); err != nil {
				logger.WarnContext(ctx, "Failed to restore cost records", "error", err)
			}

			var reporter *CostReporter
			if schedule := command.String("cost-report-schedule"); schedule != "" {
				reporter, err = NewCostReporter(schedule, pipeline.Monitor, logger)
				if err != nil {
					return err
				}
			}

			worker := NewWorkerManager(
				workerID,
				pipeline.Processor(persistence, eventBus, tracer, workerID),
				eventBus,
				reporter,
				logger,
			)

			err = worker.Start(ctx)
			if err != nil {
				logger.ErrorContext(ctx, "Failed to start event-driven worker", "error", err)
			}

			return nil
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
