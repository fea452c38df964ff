package dag

import (
	"testing"

	"github.com/codeready-toolchain/orcaci/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stage(name string, dependsOn ...string) domain.StageDefinition {
	return domain.StageDefinition{Name: name, DependsOn: dependsOn}
}

func TestBuild_EmptyPipeline(t *testing.T) {
	_, err := Build(&domain.PipelineDefinition{})
	assert.ErrorAs(t, err, &EmptyPipeline{})
}

func TestBuild_UnknownDependency(t *testing.T) {
	p := &domain.PipelineDefinition{Stages: []domain.StageDefinition{
		stage("build", "does-not-exist"),
	}}
	_, err := Build(p)
	var want UnknownDependency
	require.ErrorAs(t, err, &want)
	assert.Equal(t, "build", want.Stage)
	assert.Equal(t, "does-not-exist", want.DependsOn)
}

func TestBuild_CycleDetected(t *testing.T) {
	p := &domain.PipelineDefinition{Stages: []domain.StageDefinition{
		stage("a", "b"),
		stage("b", "a"),
	}}
	_, err := Build(p)
	var want CycleDetected
	require.ErrorAs(t, err, &want)
	assert.ElementsMatch(t, []string{"a", "b"}, want.Stages)
}

func TestBuild_DiamondDAG(t *testing.T) {
	p := &domain.PipelineDefinition{Stages: []domain.StageDefinition{
		stage("a"),
		stage("b", "a"),
		stage("c", "a"),
		stage("d", "b", "c"),
	}}
	g, err := Build(p)
	require.NoError(t, err)

	roots := g.Roots()
	require.Len(t, roots, 1)
	assert.Equal(t, "a", roots[0].StageName)

	completed := map[string]bool{}
	assert.True(t, g.IsReady("a", completed))
	assert.False(t, g.IsReady("b", completed))
	assert.False(t, g.IsReady("d", completed))

	completed["a"] = true
	assert.True(t, g.IsReady("b", completed))
	assert.True(t, g.IsReady("c", completed))
	assert.False(t, g.IsReady("d", completed))

	completed["b"] = true
	assert.False(t, g.IsReady("d", completed))
	completed["c"] = true
	assert.True(t, g.IsReady("d", completed))

	order := g.TopologicalOrder()
	positions := make(map[string]int, len(order))
	for i, n := range order {
		positions[n.StageName] = i
	}
	assert.Less(t, positions["a"], positions["b"])
	assert.Less(t, positions["a"], positions["c"])
	assert.Less(t, positions["b"], positions["d"])
	assert.Less(t, positions["c"], positions["d"])
}

func TestBuild_MatrixWithExclude(t *testing.T) {
	p := &domain.PipelineDefinition{Stages: []domain.StageDefinition{
		{
			Name: "test",
			Matrix: &domain.Matrix{
				Dimensions: map[string][]string{
					"os":   {"linux", "macos"},
					"arch": {"amd64", "arm64"},
				},
				Exclude: []map[string]string{
					{"os": "macos", "arch": "amd64"},
				},
			},
		},
	}}
	g, err := Build(p)
	require.NoError(t, err)

	nodes := g.NodesForStage("test")
	require.Len(t, nodes, 3)

	var displayNames []string
	for _, n := range nodes {
		displayNames = append(displayNames, n.DisplayName)
	}
	assert.Contains(t, displayNames, "test (os=linux, arch=amd64)")
	assert.Contains(t, displayNames, "test (os=linux, arch=arm64)")
	assert.Contains(t, displayNames, "test (os=macos, arch=arm64)")
}

func TestBuild_MatrixZeroCombinationsIsHardError(t *testing.T) {
	p := &domain.PipelineDefinition{Stages: []domain.StageDefinition{
		{
			Name: "test",
			Matrix: &domain.Matrix{
				Dimensions: map[string][]string{"os": {"linux"}},
				Exclude:    []map[string]string{{"os": "linux"}},
			},
		},
	}}
	_, err := Build(p)
	var want ZeroCombinations
	require.ErrorAs(t, err, &want)
	assert.Equal(t, "test", want.Stage)
}

func TestBuild_MatrixToMatrixFullCrossProduct(t *testing.T) {
	p := &domain.PipelineDefinition{Stages: []domain.StageDefinition{
		{
			Name:   "build",
			Matrix: &domain.Matrix{Dimensions: map[string][]string{"os": {"linux", "macos"}}},
		},
		{
			Name:      "test",
			DependsOn: []string{"build"},
			Matrix:    &domain.Matrix{Dimensions: map[string][]string{"suite": {"unit", "e2e"}}},
		},
	}}
	g, err := Build(p)
	require.NoError(t, err)

	buildNodes := g.NodesForStage("build")
	testNodes := g.NodesForStage("test")
	require.Len(t, buildNodes, 2)
	require.Len(t, testNodes, 2)

	// every build variant must be a predecessor of every test variant
	preds := g.Predecessors("test")
	assert.Len(t, preds, 2)
	succs := g.Successors("build")
	assert.Len(t, succs, 2)
}

func TestMatrixInclude_AddsNewDimensionKeys(t *testing.T) {
	m := &domain.Matrix{
		Dimensions: map[string][]string{"os": {"linux"}},
		Include:    []map[string]string{{"os": "linux", "variant": "debug"}},
	}
	combos, keyOrder := expandMatrix(m)
	require.Len(t, combos, 2)
	assert.Contains(t, keyOrder, "variant")
}

func TestMatrixInclude_DeduplicatesAgainstProduct(t *testing.T) {
	m := &domain.Matrix{
		Dimensions: map[string][]string{"os": {"linux"}},
		Include:    []map[string]string{{"os": "linux"}},
	}
	combos, _ := expandMatrix(m)
	assert.Len(t, combos, 1)
}
