package postgres_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/orcaci/internal/domain"
	"github.com/codeready-toolchain/orcaci/internal/storage/postgres"
	"github.com/codeready-toolchain/orcaci/internal/storage/postgres/postgrestest"
)

func TestRunRepository_CreateAndGet(t *testing.T) {
	store := postgrestest.NewTestStore(t)
	ctx := context.Background()

	pipelines := postgres.NewPipelineRepository(store)
	runs := postgres.NewRunRepository(store)

	pipeline := &domain.PipelineDefinition{Name: "build-and-test", Version: "1"}
	pid, err := pipelines.Create(ctx, pipeline)
	require.NoError(t, err)

	run := &domain.Run{
		ID:           domain.NewID(domain.KindRun),
		PipelineID:   pid,
		PipelineName: pipeline.Name,
		RunNumber:    1,
		Status:       domain.RunQueued,
	}
	require.NoError(t, runs.Create(ctx, run))

	got, err := runs.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.PipelineName, got.PipelineName)
	assert.Equal(t, domain.RunQueued, got.Status)
}

func TestRunRepository_NextRunNumber(t *testing.T) {
	store := postgrestest.NewTestStore(t)
	ctx := context.Background()

	pipelines := postgres.NewPipelineRepository(store)
	runs := postgres.NewRunRepository(store)

	pid, err := pipelines.Create(ctx, &domain.PipelineDefinition{Name: "release"})
	require.NoError(t, err)

	n1, err := runs.NextRunNumber(ctx, pid)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n1)

	require.NoError(t, runs.Create(ctx, &domain.Run{ID: domain.NewID(domain.KindRun), PipelineID: pid, PipelineName: "release", RunNumber: n1, Status: domain.RunQueued}))

	n2, err := runs.NextRunNumber(ctx, pid)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n2)
}

func TestRunRepository_GetQueued(t *testing.T) {
	store := postgrestest.NewTestStore(t)
	ctx := context.Background()

	pipelines := postgres.NewPipelineRepository(store)
	runs := postgres.NewRunRepository(store)

	pid, err := pipelines.Create(ctx, &domain.PipelineDefinition{Name: "nightly"})
	require.NoError(t, err)

	require.NoError(t, runs.Create(ctx, &domain.Run{ID: domain.NewID(domain.KindRun), PipelineID: pid, PipelineName: "nightly", RunNumber: 1, Status: domain.RunQueued}))
	require.NoError(t, runs.Create(ctx, &domain.Run{ID: domain.NewID(domain.KindRun), PipelineID: pid, PipelineName: "nightly", RunNumber: 2, Status: domain.RunSuccess}))

	queued, err := runs.GetQueued(ctx, 10)
	require.NoError(t, err)
	require.Len(t, queued, 1)
	assert.Equal(t, int64(1), queued[0].RunNumber)
}
