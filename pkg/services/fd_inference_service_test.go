package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/relnorm/relnorm-engine/pkg/apperrors"
	"github.com/relnorm/relnorm-engine/pkg/config"
	"github.com/relnorm/relnorm-engine/pkg/models"
)

func testRelation(name string, attrs []string, rows [][]any) *models.Relation {
	rel := &models.Relation{Name: name}
	for _, a := range attrs {
		rel.Attributes = append(rel.Attributes, models.Attribute{Name: a, Domain: models.DomainText})
	}
	for _, raw := range rows {
		row := make([]models.Value, len(raw))
		for i, cell := range raw {
			row[i] = models.CoerceValue(cell)
		}
		rel.Rows = append(rel.Rows, row)
	}
	return rel
}

func fdKeys(fds []models.FunctionalDependency) []string {
	out := make([]string, len(fds))
	for i, fd := range fds {
		out[i] = fd.Key()
	}
	return out
}

func TestInferDependenciesEmployees(t *testing.T) {
	svc := NewFDInferenceService(config.Default().Analysis, zap.NewNop())
	rel := testRelation("Employees", []string{"EmpID", "DeptID", "DeptName"}, [][]any{
		{"E1", "D1", "Sales"},
		{"E2", "D1", "Sales"},
		{"E3", "D2", "Support"},
		{"E4", "D2", "Support"},
		{"E5", "D1", "Sales"},
	})

	err := svc.InferDependencies(context.Background(), rel, nil)
	require.NoError(t, err)

	// EmpID is unique, so nothing it determines has a repeated group to back
	// it; only the department pair survives, in both directions.
	require.Equal(t, []string{"DeptID->DeptName", "DeptName->DeptID"}, fdKeys(rel.FDs))
	for _, fd := range rel.FDs {
		assert.Equal(t, models.FDSourceInferred, fd.Source)
		assert.Equal(t, 3, fd.Support)
		assert.Equal(t, 0, fd.Violations)
	}

	require.Len(t, rel.Keys, 2)
	assert.Equal(t, []string{"EmpID", "DeptID"}, rel.Keys[0].Attributes)
	assert.Equal(t, []string{"EmpID", "DeptName"}, rel.Keys[1].Attributes)
	assert.False(t, rel.Keys[0].Declared)
}

func TestInferDependenciesOrders(t *testing.T) {
	svc := NewFDInferenceService(config.Default().Analysis, zap.NewNop())
	rel := testRelation("Orders",
		[]string{"OrderID", "CustomerID", "CustomerName", "ProductID", "ProductName", "Qty"},
		[][]any{
			{1, "C1", "Alice", "P1", "Widget", 5},
			{1, "C1", "Alice", "P1", "Widget", 5},
			{1, "C1", "Alice", "P2", "Gadget", 5},
			{2, "C2", "Bob", "P1", "Widget", 5},
			{2, "C2", "Bob", "P3", "Doohickey", 3},
			{3, "C3", "Alice", "P4", "Gadget", 4},
			{3, "C3", "Alice", "P1", "Widget", 2},
			{1, "C1", "Alice", "P4", "Gadget", 2},
			{4, "C1", "Alice", "P1", "Widget", 5},
		})

	var calls, lastCurrent, lastTotal int
	err := svc.InferDependencies(context.Background(), rel, func(current, total int, message string) {
		calls++
		lastCurrent, lastTotal = current, total
	})
	require.NoError(t, err)

	// 6 attributes at determinant sizes 1..3.
	assert.Equal(t, 41, calls)
	assert.Equal(t, 41, lastCurrent)
	assert.Equal(t, 41, lastTotal)

	all := rel.AttributeNames()
	assert.ElementsMatch(t, []string{"OrderID", "CustomerID", "CustomerName"}, ClosureOf([]string{"OrderID"}, rel.FDs))
	assert.ElementsMatch(t, []string{"CustomerID", "CustomerName"}, ClosureOf([]string{"CustomerID"}, rel.FDs))
	assert.ElementsMatch(t, []string{"ProductID", "ProductName"}, ClosureOf([]string{"ProductID"}, rel.FDs))
	assert.ElementsMatch(t, all, ClosureOf([]string{"OrderID", "ProductID"}, rel.FDs))

	for _, fd := range rel.FDs {
		assert.Equal(t, models.FDSourceInferred, fd.Source, fd.String())
		assert.GreaterOrEqual(t, fd.Support, 2, fd.String())
		assert.Equal(t, 0, fd.Violations, fd.String())
	}

	pk := rel.PrimaryKey()
	require.NotNil(t, pk)
	assert.ElementsMatch(t, []string{"OrderID", "ProductID"}, pk.Attributes)
	for _, k := range rel.Keys {
		assert.True(t, k.Contains("OrderID"), "every key needs OrderID: %s", k.String())
	}
}

func TestInferDependenciesInsufficientRows(t *testing.T) {
	svc := NewFDInferenceService(config.Default().Analysis, zap.NewNop())

	for _, rows := range [][][]any{nil, {{1, "x"}}} {
		rel := testRelation("Sparse", []string{"A", "B"}, rows)
		err := svc.InferDependencies(context.Background(), rel, nil)
		require.Error(t, err)
		assert.True(t, errors.Is(err, apperrors.ErrInsufficientData))
	}
}

func TestInferDependenciesSupportGate(t *testing.T) {
	svc := NewFDInferenceService(config.Default().Analysis, zap.NewNop())
	rel := testRelation("Unique", []string{"A", "B"}, [][]any{
		{1, "x"},
		{2, "y"},
		{3, "z"},
	})

	err := svc.InferDependencies(context.Background(), rel, nil)
	require.NoError(t, err)

	// Every determinant group is a single row: nothing is disproved, and
	// nothing is asserted either.
	assert.Empty(t, rel.FDs)
	require.Len(t, rel.Keys, 1)
	assert.ElementsMatch(t, []string{"A", "B"}, rel.Keys[0].Attributes)
}

func TestInferDependenciesNullHandling(t *testing.T) {
	rows := [][]any{
		{"A", "Alpha"},
		{"A", "Alpha"},
		{nil, "Beta"},
		{nil, "Gamma"},
	}

	t.Run("nulls skipped", func(t *testing.T) {
		cfg := config.Default().Analysis
		cfg.FDCheckNulls = false
		svc := NewFDInferenceService(cfg, zap.NewNop())
		rel := testRelation("Codes", []string{"Code", "Label"}, rows)

		require.NoError(t, svc.InferDependencies(context.Background(), rel, nil))
		assert.ElementsMatch(t, []string{"Code->Label", "Label->Code"}, fdKeys(rel.FDs))
	})

	t.Run("nulls compared", func(t *testing.T) {
		cfg := config.Default().Analysis
		cfg.FDCheckNulls = true
		svc := NewFDInferenceService(cfg, zap.NewNop())
		rel := testRelation("Codes", []string{"Code", "Label"}, rows)

		require.NoError(t, svc.InferDependencies(context.Background(), rel, nil))
		// The two null Code rows form one group with two different labels,
		// which disproves Code -> Label.
		assert.Equal(t, []string{"Label->Code"}, fdKeys(rel.FDs))
	})
}

func TestInferDependenciesCanceledContext(t *testing.T) {
	svc := NewFDInferenceService(config.Default().Analysis, zap.NewNop())
	rel := testRelation("Orders", []string{"A", "B"}, [][]any{
		{1, "x"},
		{1, "x"},
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := svc.InferDependencies(ctx, rel, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestInferDependenciesSingleColumnFlagOff(t *testing.T) {
	cfg := config.Default().Analysis
	cfg.InferSingleColumnFDs = false
	svc := NewFDInferenceService(cfg, zap.NewNop())

	rel := testRelation("Triples", []string{"A", "B", "C"}, [][]any{
		{1, "x", 9},
		{1, "x", 9},
		{2, "y", 8},
	})
	require.NoError(t, svc.InferDependencies(context.Background(), rel, nil))

	require.Len(t, rel.FDs, 3)
	for _, fd := range rel.FDs {
		assert.Len(t, fd.Determinant, 2, "single-attribute determinants are disabled: %s", fd.String())
	}
}

func TestInferDependenciesKeepsDeclaredKeys(t *testing.T) {
	svc := NewFDInferenceService(config.Default().Analysis, zap.NewNop())
	rel := testRelation("Employees", []string{"EmpID", "DeptID", "DeptName"}, [][]any{
		{"E1", "D1", "Sales"},
		{"E2", "D1", "Sales"},
		{"E3", "D2", "Support"},
	})
	rel.Keys = []models.CandidateKey{{Attributes: []string{"EmpID"}, Declared: true}}

	require.NoError(t, svc.InferDependencies(context.Background(), rel, nil))

	require.Len(t, rel.Keys, 1)
	assert.Equal(t, []string{"EmpID"}, rel.Keys[0].Attributes)
	assert.True(t, rel.Keys[0].Declared)
}

func TestApplyDeclaredDependencies(t *testing.T) {
	svc := NewFDInferenceService(config.Default().Analysis, zap.NewNop())
	rel := testRelation("Orders",
		[]string{"OrderID", "CustomerID", "CustomerName", "ProductID", "ProductName", "Qty"}, nil)

	declared := []models.FunctionalDependency{
		{Determinant: []string{"OrderID", "ProductID"}, Dependent: []string{"Qty"}},
		{Determinant: []string{"CustomerID"}, Dependent: []string{"CustomerName"}},
		{Determinant: []string{"ProductID"}, Dependent: []string{"ProductName"}},
		{Determinant: []string{"OrderID"}, Dependent: []string{"CustomerID"}},
		{Determinant: []string{"CustomerID"}, Dependent: []string{"CustomerName"}}, // duplicate
	}

	err := svc.ApplyDeclaredDependencies(rel, declared)
	require.NoError(t, err)

	require.Len(t, rel.FDs, 4)
	for _, fd := range rel.FDs {
		assert.Equal(t, models.FDSourceDeclared, fd.Source)
		assert.Equal(t, 0, fd.Support)
	}

	// Rows are not needed in trusted mode; the key falls out of the
	// declared dependencies alone.
	require.Len(t, rel.Keys, 1)
	assert.Equal(t, []string{"OrderID", "ProductID"}, rel.Keys[0].Attributes)
}

func TestApplyDeclaredDependenciesUnknownAttribute(t *testing.T) {
	svc := NewFDInferenceService(config.Default().Analysis, zap.NewNop())
	rel := testRelation("Orders", []string{"OrderID", "Qty"}, nil)

	err := svc.ApplyDeclaredDependencies(rel, []models.FunctionalDependency{
		{Determinant: []string{"OrderID"}, Dependent: []string{"Missing"}},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrMalformedInput))
	assert.Contains(t, err.Error(), "Missing")
}

func TestApplyDeclaredDependenciesDropsTrivial(t *testing.T) {
	svc := NewFDInferenceService(config.Default().Analysis, zap.NewNop())
	rel := testRelation("Orders", []string{"OrderID", "Qty"}, nil)

	err := svc.ApplyDeclaredDependencies(rel, []models.FunctionalDependency{
		{Determinant: []string{"OrderID"}, Dependent: []string{"OrderID"}},
	})
	require.NoError(t, err)
	assert.Empty(t, rel.FDs)
}

func TestMinimizeDependenciesIdempotent(t *testing.T) {
	svc := NewFDInferenceService(config.Default().Analysis, zap.NewNop())

	fds := []models.FunctionalDependency{
		{Determinant: []string{"A"}, Dependent: []string{"B"}},
		{Determinant: []string{"B"}, Dependent: []string{"C"}},
		{Determinant: []string{"A"}, Dependent: []string{"C"}},
		{Determinant: []string{"A", "B"}, Dependent: []string{"C"}},
	}

	minimized := svc.MinimizeDependencies(fds)
	assert.Equal(t, []string{"A->B", "B->C"}, fdKeys(minimized))

	again := svc.MinimizeDependencies(minimized)
	assert.Equal(t, fdKeys(minimized), fdKeys(again))
}
