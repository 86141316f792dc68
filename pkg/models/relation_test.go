package models

import (
	"testing"
)

func testOrdersRelation() *Relation {
	return &Relation{
		Name: "Orders",
		Attributes: []Attribute{
			{Name: "OrderID", Domain: DomainNumber},
			{Name: "ProductID", Domain: DomainNumber},
			{Name: "Qty", Domain: DomainNumber},
			{Name: "ProductName", Domain: DomainText},
		},
		Rows: [][]Value{
			{NumberValue(1), NumberValue(10), NumberValue(2), TextValue("Widget")},
			{NumberValue(1), NumberValue(11), NumberValue(1), TextValue("Gadget")},
			{NumberValue(2), NumberValue(10), NumberValue(5), TextValue("Widget")},
		},
		Keys: []CandidateKey{
			{Attributes: []string{"OrderID", "ProductID"}},
		},
	}
}

func TestRelationAttributeLookup(t *testing.T) {
	r := testOrdersRelation()

	if got := r.AttributeIndex("Qty"); got != 2 {
		t.Errorf("AttributeIndex(Qty) = %d, want 2", got)
	}
	if got := r.AttributeIndex("Missing"); got != -1 {
		t.Errorf("AttributeIndex(Missing) = %d, want -1", got)
	}
	if !r.HasAttribute("OrderID") || r.HasAttribute("OrderDate") {
		t.Errorf("HasAttribute misreported")
	}

	attr := r.Attribute("ProductName")
	if attr == nil || attr.Domain != DomainText {
		t.Errorf("Attribute(ProductName) = %+v", attr)
	}
	if r.Attribute("Missing") != nil {
		t.Errorf("Attribute(Missing) should be nil")
	}

	names := r.AttributeNames()
	if len(names) != 4 || names[0] != "OrderID" || names[3] != "ProductName" {
		t.Errorf("AttributeNames() = %v", names)
	}
}

func TestRelationValueAt(t *testing.T) {
	r := testOrdersRelation()

	if got := r.ValueAt(1, "ProductName"); !got.Equal(TextValue("Gadget")) {
		t.Errorf("ValueAt(1, ProductName) = %+v", got)
	}
	if got := r.ValueAt(0, "Missing"); !got.IsNull() {
		t.Errorf("missing attribute should read as null, got %+v", got)
	}
	if got := r.ValueAt(99, "Qty"); !got.IsNull() {
		t.Errorf("out-of-range row should read as null, got %+v", got)
	}
}

func TestRelationForEachRow(t *testing.T) {
	r := testOrdersRelation()

	var visited int
	r.ForEachRow(func(i int, row []Value) bool {
		visited++
		return true
	})
	if visited != r.NumRows() {
		t.Errorf("visited %d rows, want %d", visited, r.NumRows())
	}

	visited = 0
	r.ForEachRow(func(i int, row []Value) bool {
		visited++
		return false
	})
	if visited != 1 {
		t.Errorf("early stop visited %d rows, want 1", visited)
	}
}

func TestRelationPrimeAttributes(t *testing.T) {
	r := testOrdersRelation()

	if !r.IsPrime("OrderID") || !r.IsPrime("ProductID") {
		t.Errorf("key attributes should be prime")
	}
	if r.IsPrime("Qty") {
		t.Errorf("Qty should not be prime")
	}

	nonKey := r.NonKeyAttributes()
	if len(nonKey) != 2 || nonKey[0] != "Qty" || nonKey[1] != "ProductName" {
		t.Errorf("NonKeyAttributes() = %v", nonKey)
	}

	pk := r.PrimaryKey()
	if pk == nil || !pk.Equal(CandidateKey{Attributes: []string{"ProductID", "OrderID"}}) {
		t.Errorf("PrimaryKey() = %+v", pk)
	}

	empty := &Relation{Name: "Empty"}
	if empty.PrimaryKey() != nil {
		t.Errorf("relation without keys should have nil primary key")
	}
}

func TestCandidateKey(t *testing.T) {
	k := CandidateKey{Attributes: []string{"OrderID", "ProductID"}}

	if !k.Contains("OrderID") || k.Contains("Qty") {
		t.Errorf("Contains misreported")
	}
	if !k.IsComposite() {
		t.Errorf("two-attribute key should be composite")
	}
	if (CandidateKey{Attributes: []string{"ID"}}).IsComposite() {
		t.Errorf("single-attribute key should not be composite")
	}
	if k.String() != "(OrderID, ProductID)" {
		t.Errorf("String() = %q", k.String())
	}
	if !k.Equal(CandidateKey{Attributes: []string{"ProductID", "OrderID"}}) {
		t.Errorf("Equal should ignore order")
	}
}

func TestNormalFormRanking(t *testing.T) {
	tests := []struct {
		name   string
		form   NormalForm
		target NormalForm
		meets  bool
	}{
		{"3NF meets 2NF", Form3NF, Form2NF, true},
		{"2NF meets 2NF", Form2NF, Form2NF, true},
		{"1NF fails 2NF", Form1NF, Form2NF, false},
		{"none fails 1NF", FormNone, Form1NF, false},
		{"none meets none", FormNone, FormNone, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.form.Meets(tt.target); got != tt.meets {
				t.Errorf("%s.Meets(%s) = %v, want %v", tt.form, tt.target, got, tt.meets)
			}
		})
	}

	if FormNone.Next() != Form1NF || Form1NF.Next() != Form2NF || Form2NF.Next() != Form3NF || Form3NF.Next() != Form3NF {
		t.Errorf("Next() progression broken")
	}
}

func TestIsValidNormalForm(t *testing.T) {
	for _, f := range ValidNormalForms {
		if !IsValidNormalForm(f) {
			t.Errorf("expected %s to be valid", f)
		}
	}
	if IsValidNormalForm(NormalForm("BCNF")) {
		t.Errorf("BCNF is outside the supported ladder")
	}
}

func TestClassificationViolationsFor(t *testing.T) {
	c := ClassificationResult{
		RelationName: "Orders",
		FormReached:  Form1NF,
		Violations: []Violation{
			{Form: Form2NF, Kind: ViolationPartialDependency},
			{Form: Form3NF, Kind: ViolationTransitiveDependency},
			{Form: Form2NF, Kind: ViolationPartialDependency},
		},
	}

	if got := c.ViolationsFor(Form2NF); len(got) != 2 {
		t.Errorf("ViolationsFor(2NF) returned %d, want 2", len(got))
	}
	if got := c.ViolationsFor(Form1NF); len(got) != 0 {
		t.Errorf("ViolationsFor(1NF) returned %d, want 0", len(got))
	}
}
