//go:build integration

package web_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/flowforge/flowforge/pkg/blueprint"
	"github.com/flowforge/flowforge/pkg/channels/gochannel"
	"github.com/flowforge/flowforge/pkg/complexity"
	"github.com/flowforge/flowforge/pkg/cost"
	"github.com/flowforge/flowforge/pkg/eventbus"
	"github.com/flowforge/flowforge/pkg/events"
	"github.com/flowforge/flowforge/pkg/generator"
	"github.com/flowforge/flowforge/pkg/jobs"
	"github.com/flowforge/flowforge/pkg/models"
	"github.com/flowforge/flowforge/pkg/persistence/postgresql"
	"github.com/flowforge/flowforge/pkg/services"
	"github.com/flowforge/flowforge/pkg/templates"
	"github.com/flowforge/flowforge/pkg/testutil"
	"github.com/flowforge/flowforge/pkg/validator"
	"github.com/flowforge/flowforge/pkg/web"
	"github.com/gofiber/fiber/v3"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestDB(t *testing.T) string {
	t.Helper()

	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_DB":       "test_flowforge",
				"POSTGRES_USER":     "test_user",
				"POSTGRES_PASSWORD": "test_pass",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
		},
		Started: true,
	})
	require.NoError(t, err)

	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	return fmt.Sprintf("postgres://test_user:test_pass@%s:%s/test_flowforge?sslmode=disable", host, port.Port())
}

func TestIntegration_SubmitProcessAndQuery(t *testing.T) {
	ctx := t.Context()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := postgresql.NewPersistence(ctx, logger, setupTestDB(t))
	require.NoError(t, err)

	defer func() { _ = store.Close(context.Background()) }()

	pub, sub, err := gochannel.CreateChannel(watermill.NewSlogLogger(logger))
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)
	defer func() { _ = bus.Close() }()

	registry, err := templates.NewDefaultRegistry(logger)
	require.NoError(t, err)

	graphValidator := validator.New(registry, logger)
	monitor := cost.NewMonitor(cost.Config{}, logger)
	processor := jobs.NewProcessor(
		store,
		complexity.NewAnalyzer(0),
		generator.New(blueprint.NewAssembler(registry, logger), registry, logger, generator.WithCostMonitor(monitor)),
		graphValidator,
		logger,
		jobs.WithEventPublisher(bus),
	)

	require.NoError(t, bus.Handle(events.JobSubmittedEvent, func(ctx context.Context, event any) error {
		submitted := event.(*events.JobSubmitted)
		_, err := processor.Process(ctx, submitted.JobID)

		return err
	}))
	require.NoError(t, bus.Subscribe(ctx))

	handlers := web.NewAPIHandlers(
		services.NewJobs(store, bus, logger),
		services.NewCosts(cost.Config{}, monitor, nil, logger),
		graphValidator,
		registry,
		nil,
		logger,
	)

	app := fiber.New()
	app.Post("/jobs", handlers.SubmitJob)
	app.Get("/jobs/:id", handlers.GetJobStatus)
	app.Get("/jobs/:id/artifact", handlers.GetJobArtifact)

	api := &testApp{app: app, store: store}

	status, body := api.do(t, http.MethodPost, "/jobs", web.SubmitJobRequest{
		ProcessDescription: "Forward incoming leads to the CRM API",
		Plan:               testutil.CreateTestPlan(),
	})
	require.Equal(t, http.StatusAccepted, status)

	var accepted web.SubmitJobResponse
	require.NoError(t, json.Unmarshal(body, &accepted))

	var view models.JobStatusView

	require.Eventually(t, func() bool {
		_, body := api.do(t, http.MethodGet, "/jobs/"+accepted.ID, nil)
		if err := json.Unmarshal(body, &view); err != nil {
			return false
		}

		return view.Status.IsTerminal()
	}, 10*time.Second, 50*time.Millisecond)

	assert.Equal(t, models.JobStatusCompleted, view.Status)
	assert.Equal(t, 100, view.Progress)

	status, body = api.do(t, http.MethodGet, "/jobs/"+accepted.ID+"/artifact", nil)
	require.Equal(t, http.StatusOK, status)

	var artifact models.Artifact
	require.NoError(t, json.Unmarshal(body, &artifact))
	assert.Equal(t, models.StrategyFallback, artifact.Metadata.StrategyUsed)
	assert.True(t, artifact.Metadata.ValidationPassed)
}
