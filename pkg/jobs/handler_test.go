package jobs_test

import (
	"context"
	"testing"

	"github.com/flowforge/flowforge/pkg/events"
	"github.com/flowforge/flowforge/pkg/generator"
	"github.com/flowforge/flowforge/pkg/mocks"
	"github.com/flowforge/flowforge/pkg/models"
	"github.com/flowforge/flowforge/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestHandleSubmitted(t *testing.T) {
	f := newFixture(t)
	processor := f.processor(generator.New(f.assembler, f.registry, f.logger))

	job := f.submit(t, testutil.CreateTestSubmission())
	event := events.NewJobSubmitted(job)

	require.NoError(t, processor.HandleSubmitted(t.Context(), &event))

	stored, err := f.store.JobByID(t.Context(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, stored.Status)
}

func TestHandleSubmitted_RedeliveryFinishesInterruptedJob(t *testing.T) {
	f := newFixture(t)
	processor := f.processor(generator.New(f.assembler, f.registry, f.logger))

	job := testutil.CreateTestJob(testutil.CreateTestSubmission())
	job.Status = models.JobStatusGenerating
	job.Progress = 40
	require.NoError(t, f.store.SaveJob(t.Context(), job))

	event := events.NewJobSubmitted(job)

	for range 3 {
		require.NoError(t, processor.HandleSubmitted(t.Context(), &event))
	}

	stored, err := f.store.JobByID(t.Context(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, stored.Status)
	assert.Equal(t, []events.EventType{events.JobCompletedEvent}, f.bus.PublishedTypes())
}

func TestHandleSubmitted_UnknownJobIsDropped(t *testing.T) {
	f := newFixture(t)
	processor := f.processor(generator.New(f.assembler, f.registry, f.logger))

	event := events.JobSubmitted{BaseEvent: events.NewBaseEvent(events.JobSubmittedEvent, "ghost")}

	assert.NoError(t, processor.HandleSubmitted(t.Context(), &event))
	assert.Empty(t, f.bus.PublishedTypes())
}

func TestHandleSubmitted_WrongEventType(t *testing.T) {
	f := newFixture(t)
	processor := f.processor(generator.New(f.assembler, f.registry, f.logger))

	assert.NoError(t, processor.HandleSubmitted(t.Context(), &events.JobCompleted{}))
}

func TestHandleSubmitted_StorageErrorIsRetried(t *testing.T) {
	f := newFixture(t)

	store := &mocks.MockPersistence{}
	store.On("JobByID", mock.Anything, "job-1").Return(nil, context.DeadlineExceeded)

	f.store = store
	processor := f.processor(generator.New(f.assembler, f.registry, f.logger))

	event := events.JobSubmitted{BaseEvent: events.NewBaseEvent(events.JobSubmittedEvent, "job-1")}

	assert.ErrorIs(t, processor.HandleSubmitted(t.Context(), &event), context.DeadlineExceeded)
}
