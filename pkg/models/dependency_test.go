package models

import (
	"testing"
)

func TestNewFD(t *testing.T) {
	fd := NewFD([]string{"OrderID", "ProductID", "OrderID"}, []string{"Qty", "ProductID", "Qty"})

	if len(fd.Determinant) != 2 {
		t.Fatalf("expected deduplicated determinant of 2, got %v", fd.Determinant)
	}
	if len(fd.Dependent) != 1 || fd.Dependent[0] != "Qty" {
		t.Errorf("expected dependent side disjoint from determinant, got %v", fd.Dependent)
	}
}

func TestFDKey_OrderIndependent(t *testing.T) {
	a := NewFD([]string{"B", "A"}, []string{"D", "C"})
	b := NewFD([]string{"A", "B"}, []string{"C", "D"})

	if a.Key() != b.Key() {
		t.Errorf("keys should ignore attribute order: %q vs %q", a.Key(), b.Key())
	}

	c := NewFD([]string{"A"}, []string{"C"})
	if a.Key() == c.Key() {
		t.Errorf("different dependencies must have different keys")
	}
}

func TestFDString(t *testing.T) {
	fd := NewFD([]string{"CustomerID"}, []string{"CustomerName"})
	if got := fd.String(); got != "CustomerID -> CustomerName" {
		t.Errorf("String() = %q", got)
	}

	fd = NewFD([]string{"OrderID", "ProductID"}, []string{"Qty"})
	if got := fd.String(); got != "OrderID, ProductID -> Qty" {
		t.Errorf("String() = %q", got)
	}
}

func TestFDSideChecks(t *testing.T) {
	fd := NewFD([]string{"OrderID", "ProductID"}, []string{"Qty"})

	if !fd.DeterminantEquals([]string{"ProductID", "OrderID"}) {
		t.Errorf("DeterminantEquals should ignore order")
	}
	if fd.DeterminantEquals([]string{"OrderID"}) {
		t.Errorf("DeterminantEquals should reject a subset")
	}
	if !fd.DependsOn("Qty") || fd.DependsOn("OrderID") {
		t.Errorf("DependsOn misclassified a side")
	}
	if !fd.Determines("OrderID") || fd.Determines("Qty") {
		t.Errorf("Determines misclassified a side")
	}
}

func TestDedupeFDs(t *testing.T) {
	fds := []FunctionalDependency{
		NewFD([]string{"A"}, []string{"B"}),
		NewFD([]string{"A"}, []string{"B"}),
		{Determinant: []string{"B", "A"}, Dependent: []string{"C"}},
		{Determinant: []string{"A", "B"}, Dependent: []string{"C"}},
		{Determinant: []string{"A"}, Dependent: nil}, // dropped: empty side
		{Determinant: nil, Dependent: []string{"C"}}, // dropped: empty side
	}

	out := DedupeFDs(fds)
	if len(out) != 2 {
		t.Fatalf("expected 2 unique dependencies, got %d: %v", len(out), out)
	}
	if out[0].String() != "A -> B" {
		t.Errorf("first-seen order not preserved: %v", out[0])
	}
}
