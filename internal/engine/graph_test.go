package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Conveyor/internal/domain"
)

func TestGraph_TopologicalOrder_Diamond(t *testing.T) {
	// A → B → D
	// A → C → D
	g := Graph{
		"A": nil,
		"B": ids("A"),
		"C": ids("A"),
		"D": ids("B", "C"),
	}

	order, err := g.TopologicalOrder()
	require.NoError(t, err)
	assert.Equal(t, ids("A", "B", "C", "D"), order)
}

func TestGraph_TopologicalOrder_Cycle(t *testing.T) {
	g := Graph{
		"A": ids("C"),
		"B": ids("A"),
		"C": ids("B"),
		"D": nil,
	}

	_, err := g.TopologicalOrder()
	require.ErrorIs(t, err, ErrCyclicDependency)
	assert.Contains(t, err.Error(), "A, B, C")
	assert.NotContains(t, err.Error(), "D")
}

func TestGraph_TopologicalOrder_CycleExcludesDownstream(t *testing.T) {
	g := Graph{
		"A":    ids("B"),
		"B":    ids("A"),
		"down": ids("A"),
		"tail": ids("down"),
	}

	_, err := g.TopologicalOrder()
	require.ErrorIs(t, err, ErrCyclicDependency)
	assert.Equal(t, ErrCyclicDependency.Error()+": A, B", err.Error())
}

func TestGraph_TopologicalOrder_CyclesJoinedByPath(t *testing.T) {
	// X зависит от цикла A-B, цикл C-D зависит от X: X ни на одном цикле.
	g := Graph{
		"A": ids("B"),
		"B": ids("A"),
		"X": ids("A"),
		"C": ids("D", "X"),
		"D": ids("C"),
	}

	_, err := g.TopologicalOrder()
	require.ErrorIs(t, err, ErrCyclicDependency)
	assert.Equal(t, ErrCyclicDependency.Error()+": A, B, C, D", err.Error())
}

func TestGraph_TopologicalOrder_SelfLoop(t *testing.T) {
	g := Graph{
		"A": ids("A"),
		"B": ids("A"),
	}

	_, err := g.TopologicalOrder()
	require.ErrorIs(t, err, ErrCyclicDependency)
	assert.Equal(t, ErrCyclicDependency.Error()+": A", err.Error())
}

func TestGraph_IgnoresUnknownAndDuplicateEdges(t *testing.T) {
	g := Graph{
		"A": ids("ghost"),
		"B": ids("A", "A"),
	}

	order, err := g.TopologicalOrder()
	require.NoError(t, err)
	assert.Equal(t, []domain.TaskID{"A", "B"}, order)
}
