package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/relnorm/relnorm-engine/pkg/apperrors"
	"github.com/relnorm/relnorm-engine/pkg/config"
	"github.com/relnorm/relnorm-engine/pkg/models"
)

func decompositionForTest(t *testing.T) DecompositionService {
	t.Helper()
	classifier := NewClassifierService(zap.NewNop())
	inference := NewFDInferenceService(config.Default().Analysis, zap.NewNop())
	return NewDecompositionService(classifier, inference, zap.NewNop())
}

func joined(attrs []string) string {
	return strings.Join(attrs, ",")
}

func TestNormalizeOrdersToThirdForm(t *testing.T) {
	svc := decompositionForTest(t)
	rel := ordersRelation(false)

	result, err := svc.Normalize(context.Background(), rel, models.Form3NF)
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}

	if got := joined(result.RelationNames()); got != "Customers,Products,Orders" {
		t.Fatalf("relations = %s, want Customers,Products,Orders", got)
	}

	orders := result.RelationByName("Orders")
	if got := joined(orders.AttributeNames()); got != "OrderID,CustomerID,ProductID,Qty" {
		t.Errorf("Orders attributes = %s", got)
	}
	if orders.NumRows() != 3 {
		t.Errorf("Orders rows = %d, want 3", orders.NumRows())
	}

	customers := result.RelationByName("Customers")
	if got := joined(customers.AttributeNames()); got != "CustomerID,CustomerName" {
		t.Errorf("Customers attributes = %s", got)
	}
	if customers.NumRows() != 2 {
		t.Errorf("Customers rows = %d, want 2", customers.NumRows())
	}
	if pk := customers.PrimaryKey(); pk == nil || joined(pk.Attributes) != "CustomerID" {
		t.Errorf("Customers key = %v", pk)
	}

	products := result.RelationByName("Products")
	if products == nil || products.NumRows() != 2 {
		t.Fatalf("Products relation missing or wrong: %+v", products)
	}

	if len(result.ForeignKeys) != 2 {
		t.Fatalf("foreign keys = %d, want 2", len(result.ForeignKeys))
	}
	for _, fk := range result.ForeignKeys {
		if fk.FromRelation != "Orders" {
			t.Errorf("foreign key from %s, want Orders", fk.FromRelation)
		}
	}

	if got := joined(result.AttributeMap["CustomerID"]); got != "Customers,Orders" {
		t.Errorf("CustomerID homes = %s", got)
	}
	if got := joined(result.AttributeMap["Qty"]); got != "Orders" {
		t.Errorf("Qty homes = %s", got)
	}

	if len(result.Steps) != 1 {
		t.Fatalf("steps = %d, want 1", len(result.Steps))
	}
	if s := result.Steps[0]; s.From != models.Form2NF || s.To != models.Form3NF || joined(s.Created) != "Customers,Products" {
		t.Errorf("step = %+v", s)
	}

	// The input relation must come through untouched.
	if len(rel.Attributes) != 6 || rel.NumRows() != 3 {
		t.Errorf("input relation was modified: %d attributes, %d rows", len(rel.Attributes), rel.NumRows())
	}
}

func TestNormalizeOrdersWithDeclaredKey(t *testing.T) {
	svc := decompositionForTest(t)
	rel := ordersRelation(true)

	result, err := svc.Normalize(context.Background(), rel, models.Form3NF)
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}

	// The declared composite key surfaces ProductName as a partial
	// dependency first, so the repair takes two passes.
	if len(result.Steps) != 2 {
		t.Fatalf("steps = %d, want 2", len(result.Steps))
	}
	if s := result.Steps[0]; s.From != models.Form1NF || s.To != models.Form2NF || joined(s.Created) != "Products" {
		t.Errorf("first step = %+v", s)
	}
	if s := result.Steps[1]; s.From != models.Form2NF || s.To != models.Form3NF || joined(s.Created) != "Customers" {
		t.Errorf("second step = %+v", s)
	}

	if got := joined(result.RelationNames()); got != "Products,Customers,Orders" {
		t.Fatalf("relations = %s, want Products,Customers,Orders", got)
	}
	orders := result.RelationByName("Orders")
	if got := joined(orders.AttributeNames()); got != "OrderID,CustomerID,ProductID,Qty" {
		t.Errorf("Orders attributes = %s", got)
	}
	if pk := orders.PrimaryKey(); pk == nil || !pk.Declared || joined(pk.Attributes) != "OrderID,ProductID" {
		t.Errorf("Orders key = %+v", pk)
	}
}

func TestNormalizePackedPhones(t *testing.T) {
	svc := decompositionForTest(t)
	rel := testRelation("Employees", []string{"EmpID", "Name", "Phones"}, [][]any{
		{"E1", "Alice", "555-0101, 555-0102"},
		{"E2", "Bob", "555-0103"},
	})
	rel.Keys = []models.CandidateKey{{Attributes: []string{"EmpID"}, Declared: true}}

	result, err := svc.Normalize(context.Background(), rel, models.Form3NF)
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}

	if got := joined(result.RelationNames()); got != "Employees,Phones" {
		t.Fatalf("relations = %s, want Employees,Phones", got)
	}

	phones := result.RelationByName("Phones")
	if got := joined(phones.AttributeNames()); got != "EmpID,Phone" {
		t.Errorf("Phones attributes = %s", got)
	}
	if phones.NumRows() != 3 {
		t.Fatalf("Phones rows = %d, want 3", phones.NumRows())
	}
	if got := phones.ValueAt(1, "Phone").String(); got != "555-0102" {
		t.Errorf("second phone = %q", got)
	}

	employees := result.RelationByName("Employees")
	if got := joined(employees.AttributeNames()); got != "EmpID,Name" {
		t.Errorf("Employees attributes = %s", got)
	}

	if len(result.ForeignKeys) != 1 {
		t.Fatalf("foreign keys = %d, want 1", len(result.ForeignKeys))
	}
	fk := result.ForeignKeys[0]
	if fk.FromRelation != "Phones" || fk.ToRelation != "Employees" || joined(fk.FromColumns) != "EmpID" {
		t.Errorf("foreign key = %+v", fk)
	}

	if got := joined(result.AttributeMap["Phones"]); got != "Phones" {
		t.Errorf("Phones attribute homes = %s", got)
	}

	schema := result.SchemaMap()
	if got := joined(schema["Phones"].Key); got != "EmpID,Phone" {
		t.Errorf("schema map key for Phones = %s", got)
	}
	if len(schema["Employees"].Rows) != 2 {
		t.Errorf("schema map rows for Employees = %d", len(schema["Employees"].Rows))
	}
}

func TestNormalizeRepeatingGroupSynthesizesKey(t *testing.T) {
	svc := decompositionForTest(t)
	rel := testRelation("Contacts", []string{"Name", "Phone1", "Phone2"}, [][]any{
		{"Alice", "555-0101", "555-0102"},
		{"Bob", "555-0103", nil},
	})

	result, err := svc.Normalize(context.Background(), rel, models.Form3NF)
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}

	if got := joined(result.RelationNames()); got != "Contacts,Phones" {
		t.Fatalf("relations = %s, want Contacts,Phones", got)
	}

	contacts := result.RelationByName("Contacts")
	if got := joined(contacts.AttributeNames()); got != "contact_id,Name" {
		t.Errorf("Contacts attributes = %s", got)
	}
	if pk := contacts.PrimaryKey(); pk == nil || joined(pk.Attributes) != "contact_id" {
		t.Errorf("Contacts key = %+v", pk)
	}
	if v := contacts.ValueAt(0, "contact_id"); v.IsNull() || v.Kind != models.ValueNumber {
		t.Errorf("surrogate key value = %+v", v)
	}

	phones := result.RelationByName("Phones")
	if got := joined(phones.AttributeNames()); got != "contact_id,Phone" {
		t.Errorf("Phones attributes = %s", got)
	}
	// Bob has no second phone, so the fold yields three rows, not four.
	if phones.NumRows() != 3 {
		t.Errorf("Phones rows = %d, want 3", phones.NumRows())
	}

	if len(result.AttributeMap) != 3 {
		t.Errorf("attribute map size = %d, want 3", len(result.AttributeMap))
	}
	if got := joined(result.AttributeMap["Phone1"]); got != "Phones" {
		t.Errorf("Phone1 homes = %s", got)
	}
}

func TestNormalizeTransitiveChain(t *testing.T) {
	svc := decompositionForTest(t)
	rel := testRelation("Assets", []string{"A", "B", "C", "D"}, [][]any{
		{1, "x", "m", "p"},
		{2, "x", "m", "p"},
		{3, "y", "n", "q"},
	})
	rel.FDs = []models.FunctionalDependency{
		models.NewFD([]string{"A"}, []string{"B"}),
		models.NewFD([]string{"B"}, []string{"C"}),
		models.NewFD([]string{"C"}, []string{"D"}),
	}
	rel.Keys = []models.CandidateKey{{Attributes: []string{"A"}}}

	result, err := svc.Normalize(context.Background(), rel, models.Form3NF)
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}

	// Cs holds no foreign keys, Bs references Cs, Assets references Bs.
	if got := joined(result.RelationNames()); got != "Cs,Bs,Assets" {
		t.Fatalf("relations = %s, want Cs,Bs,Assets", got)
	}

	targets := map[string]string{}
	for _, fk := range result.ForeignKeys {
		targets[fk.FromRelation] = fk.ToRelation
	}
	if targets["Assets"] != "Bs" || targets["Bs"] != "Cs" {
		t.Errorf("foreign keys = %+v", result.ForeignKeys)
	}

	if got := joined(result.RelationByName("Assets").AttributeNames()); got != "A,B" {
		t.Errorf("Assets attributes = %s", got)
	}
	if got := joined(result.AttributeMap["C"]); got != "Cs,Bs" {
		t.Errorf("C homes = %s", got)
	}
}

func TestNormalizeConflictingData(t *testing.T) {
	svc := decompositionForTest(t)
	rel := testRelation("Tickets", []string{"ID", "CustomerID", "CustomerName"}, [][]any{
		{1, "C1", "Alice"},
		{2, "C1", "Bob"},
	})
	rel.FDs = []models.FunctionalDependency{
		models.NewFD([]string{"CustomerID"}, []string{"CustomerName"}),
	}
	rel.Keys = []models.CandidateKey{{Attributes: []string{"ID"}}}

	_, err := svc.Normalize(context.Background(), rel, models.Form3NF)
	if !errors.Is(err, apperrors.ErrUnresolvableDecomposition) {
		t.Fatalf("err = %v, want ErrUnresolvableDecomposition", err)
	}
}

func TestNormalizeCleanRelationPassesThrough(t *testing.T) {
	svc := decompositionForTest(t)
	rel := testRelation("Widgets", []string{"ID", "Label"}, [][]any{
		{1, "alpha"},
		{2, "beta"},
	})
	rel.FDs = []models.FunctionalDependency{models.NewFD([]string{"ID"}, []string{"Label"})}
	rel.Keys = []models.CandidateKey{{Attributes: []string{"ID"}}}

	result, err := svc.Normalize(context.Background(), rel, "")
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if result.Target != models.Form3NF {
		t.Errorf("default target = %s, want 3NF", result.Target)
	}
	if len(result.Relations) != 1 || result.Relations[0].Name != "Widgets" {
		t.Fatalf("relations = %v", result.RelationNames())
	}
	if len(result.Steps) != 0 || len(result.ForeignKeys) != 0 {
		t.Errorf("clean relation produced steps %d, foreign keys %d", len(result.Steps), len(result.ForeignKeys))
	}
	if got := joined(result.AttributeMap["Label"]); got != "Widgets" {
		t.Errorf("Label homes = %s", got)
	}
}

func TestNormalizeRejectsBadInput(t *testing.T) {
	svc := decompositionForTest(t)

	if _, err := svc.Normalize(context.Background(), nil, models.Form3NF); !errors.Is(err, apperrors.ErrMalformedInput) {
		t.Errorf("nil relation: err = %v, want ErrMalformedInput", err)
	}
	if _, err := svc.Normalize(context.Background(), &models.Relation{Name: "Empty"}, models.Form3NF); !errors.Is(err, apperrors.ErrMalformedInput) {
		t.Errorf("no attributes: err = %v, want ErrMalformedInput", err)
	}

	rel := testRelation("Widgets", []string{"ID", "Label"}, [][]any{{1, "alpha"}})
	if _, err := svc.Normalize(context.Background(), rel, models.NormalForm("BCNF")); !errors.Is(err, apperrors.ErrMalformedInput) {
		t.Errorf("bad target: err = %v, want ErrMalformedInput", err)
	}
}

func TestNormalizeStopsAtTargetForm(t *testing.T) {
	svc := decompositionForTest(t)
	rel := testRelation("Orders", []string{"OrderID", "CustomerID", "CustomerName", "Tags"}, [][]any{
		{1, "C1", "Alice", "red, blue"},
		{2, "C1", "Alice", "green"},
		{3, "C2", "Bob", "red"},
	})
	rel.FDs = []models.FunctionalDependency{
		models.NewFD([]string{"CustomerID"}, []string{"CustomerName"}),
	}
	rel.Keys = []models.CandidateKey{{Attributes: []string{"OrderID"}, Declared: true}}

	result, err := svc.Normalize(context.Background(), rel, models.Form1NF)
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}

	if got := joined(result.RelationNames()); got != "Orders,Tags" {
		t.Fatalf("relations = %s, want Orders,Tags", got)
	}
	// Targeting 1NF leaves the transitive customer dependency in place.
	orders := result.RelationByName("Orders")
	if got := joined(orders.AttributeNames()); got != "OrderID,CustomerID,CustomerName" {
		t.Errorf("Orders attributes = %s", got)
	}
	if len(result.Steps) != 1 || result.Steps[0].To != models.Form1NF {
		t.Errorf("steps = %+v", result.Steps)
	}
	tags := result.RelationByName("Tags")
	if tags.NumRows() != 4 {
		t.Errorf("Tags rows = %d, want 4", tags.NumRows())
	}
}
