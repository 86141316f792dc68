package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jinzhu/inflection"
	"go.uber.org/zap"

	"github.com/relnorm/relnorm-engine/pkg/apperrors"
	"github.com/relnorm/relnorm-engine/pkg/models"
)

// maxRepairPasses bounds the repair loop. Forms only climb, so three passes
// reach 3NF from unnormalized input; the headroom guards against a repair
// that fails to advance.
const maxRepairPasses = 6

// DecompositionService rewrites a relation failing a normal form into a set
// of relations that satisfy it, without losing attributes or rows.
type DecompositionService interface {
	// Normalize runs repair passes until the relation meets the target form
	// (default 3NF). The input relation is never modified. The result lists
	// the new relations in dependency order: a relation always follows the
	// relations it holds foreign keys to.
	//
	// Returns ErrUnresolvableDecomposition when the output cannot be proven
	// sound: an attribute was lost, the natural join of the outputs does not
	// reproduce the input rows, or an output still fails the target form.
	Normalize(ctx context.Context, rel *models.Relation, target models.NormalForm) (*models.DecompositionResult, error)
}

type decompositionService struct {
	classifier ClassifierService
	inference  FDInferenceService
	logger     *zap.Logger
}

// NewDecompositionService creates a decomposition service. The classifier
// drives the repair loop; the inference service rebuilds dependencies after
// a first-form split invalidates them.
func NewDecompositionService(
	classifier ClassifierService,
	inference FDInferenceService,
	logger *zap.Logger,
) DecompositionService {
	return &decompositionService{
		classifier: classifier,
		inference:  inference,
		logger:     logger.Named("decomposition"),
	}
}

// pendingLink marks a dimension extract whose referencing relation is only
// known once all passes finish: a later extraction can move the determinant
// columns out of the base relation.
type pendingLink struct {
	toRelation string
	columns    []string
}

// relationSnapshot captures the base relation before the first dimension
// extraction, the state the lossless-join check reconstructs.
type relationSnapshot struct {
	attrs []string
	rows  [][]models.Value
}

func (s *decompositionService) Normalize(ctx context.Context, rel *models.Relation, target models.NormalForm) (*models.DecompositionResult, error) {
	if target == "" || target == models.FormNone {
		target = models.Form3NF
	}
	if !models.IsValidNormalForm(target) {
		return nil, fmt.Errorf("unknown target form %q: %w", target, apperrors.ErrMalformedInput)
	}
	if rel == nil || len(rel.Attributes) == 0 {
		return nil, fmt.Errorf("cannot normalize a relation without attributes: %w", apperrors.ErrMalformedInput)
	}

	startTime := time.Now()
	s.logger.Info("normalizing relation",
		zap.String("relation", rel.Name),
		zap.String("target", string(target)),
		zap.Int("attributes", len(rel.Attributes)),
		zap.Int("rows", rel.NumRows()))

	base := cloneRelation(rel)
	result := &models.DecompositionResult{
		SourceRelation: rel.Name,
		Target:         target,
	}

	used := map[string]struct{}{base.Name: {}}
	renamed := map[string]string{}

	var (
		children []*models.Relation
		extracts []*models.Relation
		links    []models.ForeignKeyLink
		pending  []pendingLink
		baseRefs []string
		snapshot *relationSnapshot
	)

	for pass := 0; pass < maxRepairPasses; pass++ {
		verdict := s.classifier.ClassifyWithReferences(base, baseRefs)
		if verdict.FormReached.Meets(target) {
			break
		}
		next := verdict.FormReached.Next()

		var created []string
		var note string
		switch next {
		case models.Form1NF:
			kids, kidLinks, err := s.repairFirstForm(base, used, renamed)
			if err != nil {
				return nil, err
			}
			children = append(children, kids...)
			links = append(links, kidLinks...)
			for _, c := range kids {
				created = append(created, c.Name)
			}
			note = "multi-valued attributes moved to child relations"
			// The split invalidated nothing that survives, but a packed
			// relation usually arrives without a usable dependency set.
			if len(base.FDs) == 0 && base.NumRows() >= 2 {
				if err := s.inference.InferDependencies(ctx, base, nil); err != nil {
					return nil, fmt.Errorf("re-inferring dependencies after first-form repair of %s: %w", base.Name, err)
				}
			}
		case models.Form2NF, models.Form3NF:
			if snapshot == nil {
				rows := make([][]models.Value, len(base.Rows))
				copy(rows, base.Rows)
				snapshot = &relationSnapshot{attrs: base.AttributeNames(), rows: rows}
			}
			dims, dimPending, err := s.extractDimensions(base, verdict.ViolationsFor(next), used)
			if err != nil {
				return nil, err
			}
			extracts = append(extracts, dims...)
			pending = append(pending, dimPending...)
			for _, d := range dims {
				created = append(created, d.Name)
			}
			for _, p := range dimPending {
				baseRefs = appendMissing(baseRefs, p.columns...)
			}
			if next == models.Form2NF {
				note = "partial dependencies extracted"
			} else {
				note = "transitive dependencies extracted"
			}
		}

		if len(created) == 0 {
			return nil, fmt.Errorf("relation %s: no repair applies to its %s violations: %w",
				base.Name, next, apperrors.ErrUnresolvableDecomposition)
		}
		s.logger.Debug("repair pass complete",
			zap.String("relation", base.Name),
			zap.String("from", string(verdict.FormReached)),
			zap.String("to", string(next)),
			zap.Strings("created", created))
		result.Steps = append(result.Steps, models.DecompositionStep{
			From:    verdict.FormReached,
			To:      next,
			Created: created,
			Note:    note,
		})
	}

	extracts, pending = dropContainedExtracts(extracts, base, children, pending)
	links = append(links, s.resolveLinks(pending, base, children, extracts)...)

	outputs := make([]*models.Relation, 0, len(extracts)+len(children)+1)
	outputs = append(outputs, extracts...)
	outputs = append(outputs, base)
	outputs = append(outputs, children...)
	result.Relations = orderByDependency(outputs, links)
	result.ForeignKeys = links

	attrMap, err := buildAttributeMap(rel, result.Relations, renamed)
	if err != nil {
		return nil, err
	}
	result.AttributeMap = attrMap

	if err := s.verifyLossless(snapshot, base, extracts, links); err != nil {
		return nil, err
	}
	if err := s.verifyOutputs(result, target); err != nil {
		return nil, err
	}

	s.logger.Info("normalization complete",
		zap.String("relation", rel.Name),
		zap.String("target", string(target)),
		zap.Int("relations", len(result.Relations)),
		zap.Int("steps", len(result.Steps)),
		zap.Duration("duration", time.Since(startTime)))
	return result, nil
}

// repairFirstForm moves packed and repeating-group attributes into child
// relations keyed by the parent key plus the value. The parent keeps its
// rows, minus the offending columns. A parent without any surviving
// candidate key gets a synthesized surrogate key so the children have
// something to reference.
func (s *decompositionService) repairFirstForm(base *models.Relation, used map[string]struct{}, renamed map[string]string) ([]*models.Relation, []models.ForeignKeyLink, error) {
	groups := FindRepeatingGroups(base.AttributeNames())
	grouped := map[string]struct{}{}
	for _, g := range groups {
		for _, m := range g.Attributes {
			grouped[m] = struct{}{}
		}
	}

	var packed []string
	for col, attr := range base.Attributes {
		if _, ok := grouped[attr.Name]; ok {
			continue
		}
		for _, row := range base.Rows {
			if !IsAtomicValue(row[col]) {
				packed = append(packed, attr.Name)
				break
			}
		}
	}
	if len(groups) == 0 && len(packed) == 0 {
		return nil, nil, nil
	}

	removing := map[string]struct{}{}
	for m := range grouped {
		removing[m] = struct{}{}
	}
	for _, a := range packed {
		removing[a] = struct{}{}
	}

	// Keys touching a removed column are no longer keys of the parent.
	var keys []models.CandidateKey
	for _, k := range base.Keys {
		ok := true
		for _, a := range k.Attributes {
			if _, gone := removing[a]; gone {
				ok = false
				break
			}
		}
		if ok {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		keys = []models.CandidateKey{{Attributes: []string{s.addSurrogateKey(base)}}}
	}
	base.Keys = keys
	pk := base.PrimaryKey().Attributes

	var children []*models.Relation
	var links []models.ForeignKeyLink

	for _, g := range groups {
		stem := repeatingGroupStem(g)
		child := s.newChildRelation(base, pk, stem, inflection.Plural(stem), used)
		memberIdx := make([]int, 0, len(g.Attributes))
		for _, m := range g.Attributes {
			memberIdx = append(memberIdx, base.AttributeIndex(m))
		}
		seen := map[string]struct{}{}
		pkIdx := attributeIndices(base, pk)
		for _, row := range base.Rows {
			for _, mi := range memberIdx {
				child.Rows = appendChildRows(child.Rows, seen, row, pkIdx, row[mi])
			}
		}
		for _, m := range g.Attributes {
			renamed[m] = child.Name
		}
		children = append(children, child)
		links = append(links, models.ForeignKeyLink{
			FromRelation: child.Name,
			FromColumns:  pk,
			ToRelation:   base.Name,
			ToColumns:    pk,
		})
	}

	for _, a := range packed {
		stem := ChildValueName(a)
		child := s.newChildRelation(base, pk, stem, inflection.Plural(stem), used)
		col := base.AttributeIndex(a)
		seen := map[string]struct{}{}
		pkIdx := attributeIndices(base, pk)
		for _, row := range base.Rows {
			child.Rows = appendChildRows(child.Rows, seen, row, pkIdx, row[col])
		}
		renamed[a] = child.Name
		children = append(children, child)
		links = append(links, models.ForeignKeyLink{
			FromRelation: child.Name,
			FromColumns:  pk,
			ToRelation:   base.Name,
			ToColumns:    pk,
		})
	}

	removeColumns(base, removing)
	base.FDs = restrictFDs(base.FDs, base)

	s.logger.Debug("first-form repair",
		zap.String("relation", base.Name),
		zap.Int("repeating_groups", len(groups)),
		zap.Int("packed_attributes", len(packed)),
		zap.Int("children", len(children)))
	return children, links, nil
}

// addSurrogateKey prepends a numbering attribute and returns its name.
func (s *decompositionService) addSurrogateKey(base *models.Relation) string {
	name := SurrogateKeyName(base.Name)
	for i := 2; base.HasAttribute(name); i++ {
		name = fmt.Sprintf("%s%d", SurrogateKeyName(base.Name), i)
	}
	attrs := make([]models.Attribute, 0, len(base.Attributes)+1)
	attrs = append(attrs, models.Attribute{Name: name, Domain: models.DomainNumber})
	attrs = append(attrs, base.Attributes...)
	base.Attributes = attrs
	for i, row := range base.Rows {
		nr := make([]models.Value, 0, len(row)+1)
		nr = append(nr, models.NumberValue(float64(i+1)))
		base.Rows[i] = append(nr, row...)
	}
	s.logger.Debug("synthesized surrogate key",
		zap.String("relation", base.Name),
		zap.String("attribute", name))
	return name
}

// newChildRelation builds an empty child holding the parent key columns plus
// one value attribute named valueAttr.
func (s *decompositionService) newChildRelation(base *models.Relation, pk []string, valueAttr, preferredName string, used map[string]struct{}) *models.Relation {
	name := uniqueName(preferredName, FallbackChildName(base.Name, valueAttr), used)
	used[name] = struct{}{}

	child := &models.Relation{Name: name}
	for _, a := range pk {
		child.Attributes = append(child.Attributes, *base.Attribute(a))
	}
	for child.HasAttribute(valueAttr) {
		valueAttr = valueAttr + "Value"
	}
	child.Attributes = append(child.Attributes, models.Attribute{Name: valueAttr, Domain: models.DomainText})
	child.Keys = []models.CandidateKey{{Attributes: child.AttributeNames()}}
	return child
}

// appendChildRows explodes one cell into child rows: parent key values plus
// one atomic part each. Null cells contribute nothing.
func appendChildRows(rows [][]models.Value, seen map[string]struct{}, parentRow []models.Value, pkIdx []int, cell models.Value) [][]models.Value {
	for _, part := range atomicParts(cell, 0) {
		row := make([]models.Value, 0, len(pkIdx)+1)
		for _, i := range pkIdx {
			row = append(row, parentRow[i])
		}
		row = append(row, part)
		k := joinRowKey(row)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		rows = append(rows, row)
	}
	return rows
}

// atomicParts splits a cell recursively until every part is atomic, so
// "a/b, c" yields three values rather than two.
func atomicParts(v models.Value, depth int) []models.Value {
	parts := CellValues(v)
	if depth >= 4 {
		return parts
	}
	var out []models.Value
	for _, p := range parts {
		if IsAtomicValue(p) {
			out = append(out, p)
			continue
		}
		if len(parts) == 1 && p.Equal(v) {
			// Unsplittable but still marked non-atomic, usually a stray
			// leading or trailing separator.
			if trimmed := strings.Trim(p.Text, ",;/| "); trimmed != "" && trimmed != p.Text {
				out = append(out, atomicParts(models.ParseValue(trimmed), depth+1)...)
			} else {
				out = append(out, p)
			}
			continue
		}
		out = append(out, atomicParts(p, depth+1)...)
	}
	return out
}

// extractDimensions pulls each violating dependency group out into its own
// relation keyed by the determinant. The base relation keeps the determinant
// columns as foreign keys and loses the dependents. Rows that disagree on a
// determinant value make the split lossy, which is reported rather than
// silently dropped.
func (s *decompositionService) extractDimensions(base *models.Relation, violations []models.Violation, used map[string]struct{}) ([]*models.Relation, []pendingLink, error) {
	type dimGroup struct {
		det  []string
		deps []string
	}
	var order []string
	index := map[string]*dimGroup{}
	for _, v := range violations {
		if v.FD == nil || v.Attribute == "" {
			continue
		}
		k := joinSorted(v.FD.Determinant)
		g, ok := index[k]
		if !ok {
			g = &dimGroup{det: v.FD.Determinant}
			index[k] = g
			order = append(order, k)
		}
		g.deps = appendMissing(g.deps, v.Attribute)
	}

	var dims []*models.Relation
	var pending []pendingLink
	removing := map[string]struct{}{}

	for _, k := range order {
		g := index[k]
		name := uniqueName(RelationNameFor(g.det), FallbackChildName(base.Name, RelationNameFor(g.det)), used)
		used[name] = struct{}{}

		dim := &models.Relation{Name: name}
		for _, a := range g.det {
			dim.Attributes = append(dim.Attributes, *base.Attribute(a))
		}
		for _, a := range g.deps {
			dim.Attributes = append(dim.Attributes, *base.Attribute(a))
		}

		detIdx := attributeIndices(base, g.det)
		depIdx := attributeIndices(base, g.deps)
		seen := map[string]int{}
		for _, row := range base.Rows {
			dk := rowKeyAt(row, detIdx)
			if at, ok := seen[dk]; ok {
				for j, di := range depIdx {
					if !dim.Rows[at][len(detIdx)+j].Equal(row[di]) {
						return nil, nil, fmt.Errorf(
							"relation %s: rows disagree on (%s) -> %s, the split would not be lossless: %w",
							base.Name, strings.Join(g.det, ", "), strings.Join(g.deps, ", "),
							apperrors.ErrUnresolvableDecomposition)
					}
				}
				continue
			}
			nr := make([]models.Value, 0, len(detIdx)+len(depIdx))
			for _, i := range detIdx {
				nr = append(nr, row[i])
			}
			for _, i := range depIdx {
				nr = append(nr, row[i])
			}
			seen[dk] = len(dim.Rows)
			dim.Rows = append(dim.Rows, nr)
		}

		fd := models.NewFD(g.det, g.deps)
		dim.FDs = []models.FunctionalDependency{fd}
		dim.Keys = []models.CandidateKey{{Attributes: append([]string(nil), g.det...)}}

		dims = append(dims, dim)
		pending = append(pending, pendingLink{toRelation: name, columns: append([]string(nil), g.det...)})
		for _, a := range g.deps {
			removing[a] = struct{}{}
		}
	}

	removeColumns(base, removing)
	base.FDs = restrictFDs(base.FDs, base)
	return dims, pending, nil
}

// dropContainedExtracts removes extracts whose attributes all live in some
// other output, re-pointing pending links at the container.
func dropContainedExtracts(extracts []*models.Relation, base *models.Relation, children []*models.Relation, pending []pendingLink) ([]*models.Relation, []pendingLink) {
	containerOf := map[string]string{}
	kept := extracts[:0]
	for i, e := range extracts {
		container := ""
		for j, other := range extracts {
			if i != j && containerOf[other.Name] == "" && containsAll(other.AttributeNames(), e.AttributeNames()) && !(j > i && sameHeading(e, other)) {
				container = other.Name
				break
			}
		}
		if container == "" && containsAll(base.AttributeNames(), e.AttributeNames()) {
			container = base.Name
		}
		if container == "" {
			for _, c := range children {
				if containsAll(c.AttributeNames(), e.AttributeNames()) {
					container = c.Name
					break
				}
			}
		}
		if container == "" {
			kept = append(kept, e)
			continue
		}
		containerOf[e.Name] = container
	}
	if len(containerOf) == 0 {
		return extracts, pending
	}
	for i := range pending {
		for c := containerOf[pending[i].toRelation]; c != ""; c = containerOf[pending[i].toRelation] {
			pending[i].toRelation = c
		}
	}
	return kept, dedupePending(pending)
}

func sameHeading(a, b *models.Relation) bool {
	return containsAll(a.AttributeNames(), b.AttributeNames()) &&
		containsAll(b.AttributeNames(), a.AttributeNames())
}

func dedupePending(pending []pendingLink) []pendingLink {
	seen := map[string]struct{}{}
	out := pending[:0]
	for _, p := range pending {
		k := p.toRelation + "\x1f" + joinSorted(p.columns)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, p)
	}
	return out
}

// resolveLinks finds, for each extract, the relation that still holds its
// determinant columns. The base is preferred; a chain extraction can leave
// the columns only in an earlier extract. No holder means no link.
func (s *decompositionService) resolveLinks(pending []pendingLink, base *models.Relation, children, extracts []*models.Relation) []models.ForeignKeyLink {
	var links []models.ForeignKeyLink
	for _, p := range pending {
		holder := ""
		if containsAll(base.AttributeNames(), p.columns) {
			holder = base.Name
		}
		if holder == "" {
			for _, c := range children {
				if containsAll(c.AttributeNames(), p.columns) {
					holder = c.Name
					break
				}
			}
		}
		if holder == "" {
			for _, e := range extracts {
				if e.Name != p.toRelation && containsAll(e.AttributeNames(), p.columns) {
					holder = e.Name
					break
				}
			}
		}
		if holder == "" || holder == p.toRelation {
			s.logger.Debug("determinant has no single home, skipping link",
				zap.String("to", p.toRelation),
				zap.Strings("columns", p.columns))
			continue
		}
		links = append(links, models.ForeignKeyLink{
			FromRelation: holder,
			FromColumns:  p.columns,
			ToRelation:   p.toRelation,
			ToColumns:    p.columns,
		})
	}
	return links
}

// orderByDependency emits relations so that every relation follows the
// relations it references. Ties keep the seed order; a reference cycle
// cannot happen with the repairs above, but leftovers flush rather than
// spin.
func orderByDependency(outputs []*models.Relation, links []models.ForeignKeyLink) []*models.Relation {
	refs := map[string][]string{}
	for _, l := range links {
		refs[l.FromRelation] = append(refs[l.FromRelation], l.ToRelation)
	}
	present := map[string]bool{}
	for _, r := range outputs {
		present[r.Name] = true
	}

	emitted := map[string]bool{}
	ordered := make([]*models.Relation, 0, len(outputs))
	for len(ordered) < len(outputs) {
		progressed := false
		for _, r := range outputs {
			if emitted[r.Name] {
				continue
			}
			ready := true
			for _, t := range refs[r.Name] {
				if t != r.Name && present[t] && !emitted[t] {
					ready = false
					break
				}
			}
			if ready {
				emitted[r.Name] = true
				ordered = append(ordered, r)
				progressed = true
			}
		}
		if !progressed {
			for _, r := range outputs {
				if !emitted[r.Name] {
					emitted[r.Name] = true
					ordered = append(ordered, r)
				}
			}
		}
	}
	return ordered
}

// buildAttributeMap locates every original attribute in the outputs.
// Attributes folded into a child relation under a new name map to that
// child. A homeless attribute fails the decomposition.
func buildAttributeMap(input *models.Relation, outputs []*models.Relation, renamed map[string]string) (map[string][]string, error) {
	attrMap := make(map[string][]string, len(input.Attributes))
	for _, a := range input.Attributes {
		var homes []string
		for _, r := range outputs {
			if r.HasAttribute(a.Name) {
				homes = append(homes, r.Name)
			}
		}
		if len(homes) == 0 {
			if child, ok := renamed[a.Name]; ok {
				for _, r := range outputs {
					if r.Name == child {
						homes = []string{child}
						break
					}
				}
			}
		}
		if len(homes) == 0 {
			return nil, fmt.Errorf("attribute %s of relation %s has no home in the decomposition: %w",
				a.Name, input.Name, apperrors.ErrUnresolvableDecomposition)
		}
		attrMap[a.Name] = homes
	}
	return attrMap, nil
}

// verifyLossless joins the base back with every extract over the recorded
// links and compares the result with the rows the base held before the
// first extraction. Both directions must match: no missing rows, no
// spurious ones.
func (s *decompositionService) verifyLossless(snap *relationSnapshot, base *models.Relation, extracts []*models.Relation, links []models.ForeignKeyLink) error {
	if snap == nil || len(snap.rows) == 0 {
		return nil
	}

	byName := map[string]*models.Relation{}
	for _, e := range extracts {
		byName[e.Name] = e
	}

	type joinedRow map[string]models.Value
	rows := make([]joinedRow, 0, base.NumRows())
	for _, row := range base.Rows {
		jr := make(joinedRow, len(snap.attrs))
		for i, a := range base.Attributes {
			jr[a.Name] = row[i]
		}
		rows = append(rows, jr)
	}

	joined := map[string]bool{base.Name: true}
	for changed := true; changed; {
		changed = false
		for _, l := range links {
			ex := byName[l.ToRelation]
			if ex == nil || joined[l.ToRelation] || !joined[l.FromRelation] {
				continue
			}
			lookup := make(map[string][]models.Value, ex.NumRows())
			keyIdx := attributeIndices(ex, l.ToColumns)
			for _, row := range ex.Rows {
				lookup[rowKeyAt(row, keyIdx)] = row
			}
			for _, jr := range rows {
				parts := make([]string, len(l.FromColumns))
				for i, c := range l.FromColumns {
					parts[i] = jr[c].Key()
				}
				match, ok := lookup[strings.Join(parts, "\x1f")]
				if !ok {
					return fmt.Errorf("relation %s: a row has no match in %s, the join loses it: %w",
						base.Name, ex.Name, apperrors.ErrUnresolvableDecomposition)
				}
				for i, a := range ex.Attributes {
					jr[a.Name] = match[i]
				}
			}
			joined[l.ToRelation] = true
			changed = true
		}
	}
	for _, e := range extracts {
		if !joined[e.Name] {
			return fmt.Errorf("relation %s is disconnected from %s, their join is a cross product: %w",
				e.Name, base.Name, apperrors.ErrUnresolvableDecomposition)
		}
	}

	want := map[string]struct{}{}
	for _, row := range snap.rows {
		want[joinRowKey(row)] = struct{}{}
	}
	got := map[string]struct{}{}
	for _, jr := range rows {
		parts := make([]string, len(snap.attrs))
		for i, a := range snap.attrs {
			v, ok := jr[a]
			if !ok {
				return fmt.Errorf("attribute %s of relation %s is unreachable from the join: %w",
					a, base.Name, apperrors.ErrUnresolvableDecomposition)
			}
			parts[i] = v.Key()
		}
		k := strings.Join(parts, "\x1f")
		if _, ok := want[k]; !ok {
			return fmt.Errorf("joining the outputs of %s produces a row the input never held: %w",
				base.Name, apperrors.ErrUnresolvableDecomposition)
		}
		got[k] = struct{}{}
	}
	if len(got) != len(want) {
		return fmt.Errorf("joining the outputs of %s reproduces %d of %d distinct rows: %w",
			base.Name, len(got), len(want), apperrors.ErrUnresolvableDecomposition)
	}
	return nil
}

// verifyOutputs re-classifies every output relation. Each must meet the
// target form, counting its recorded foreign keys as resolved references.
func (s *decompositionService) verifyOutputs(result *models.DecompositionResult, target models.NormalForm) error {
	for _, r := range result.Relations {
		var refs []string
		for _, l := range result.ForeignKeys {
			if l.FromRelation == r.Name {
				refs = appendMissing(refs, l.FromColumns...)
			}
		}
		verdict := s.classifier.ClassifyWithReferences(r, refs)
		if !verdict.FormReached.Meets(target) {
			return fmt.Errorf("output relation %s reaches %s, not the target %s: %w",
				r.Name, verdict.FormReached, target, apperrors.ErrUnresolvableDecomposition)
		}
	}
	return nil
}

func repeatingGroupStem(g RepeatingGroup) string {
	if m := numberedSuffix.FindStringSubmatch(g.Attributes[0]); m != nil {
		if stem := entityStem(strings.Trim(m[1], "_ ")); stem != "" {
			return stem
		}
	}
	return entityStem(g.Base)
}

func cloneRelation(rel *models.Relation) *models.Relation {
	out := &models.Relation{Name: rel.Name}
	out.Attributes = append([]models.Attribute(nil), rel.Attributes...)
	out.Rows = make([][]models.Value, len(rel.Rows))
	for i, row := range rel.Rows {
		out.Rows[i] = append([]models.Value(nil), row...)
	}
	out.FDs = append([]models.FunctionalDependency(nil), rel.FDs...)
	out.Keys = make([]models.CandidateKey, len(rel.Keys))
	for i, k := range rel.Keys {
		out.Keys[i] = models.CandidateKey{
			Attributes: append([]string(nil), k.Attributes...),
			Declared:   k.Declared,
		}
	}
	return out
}

// removeColumns drops the named columns from the heading and every row.
// Rows are rebuilt, not truncated, so snapshots taken earlier stay intact.
func removeColumns(rel *models.Relation, names map[string]struct{}) {
	if len(names) == 0 {
		return
	}
	keep := make([]int, 0, len(rel.Attributes))
	var attrs []models.Attribute
	for i, a := range rel.Attributes {
		if _, gone := names[a.Name]; gone {
			continue
		}
		keep = append(keep, i)
		attrs = append(attrs, a)
	}
	if len(keep) == len(rel.Attributes) {
		return
	}
	rel.Attributes = attrs
	for r, row := range rel.Rows {
		nr := make([]models.Value, len(keep))
		for j, i := range keep {
			nr[j] = row[i]
		}
		rel.Rows[r] = nr
	}
}

// restrictFDs keeps the dependencies expressible over the relation's
// remaining attributes. A dependency whose determinant lost a column is
// dropped outright.
func restrictFDs(fds []models.FunctionalDependency, rel *models.Relation) []models.FunctionalDependency {
	var out []models.FunctionalDependency
	for _, fd := range fds {
		ok := true
		for _, a := range fd.Determinant {
			if !rel.HasAttribute(a) {
				ok = false
				break
			}
		}
		if !ok {
			continue
		}
		var deps []string
		for _, a := range fd.Dependent {
			if rel.HasAttribute(a) {
				deps = append(deps, a)
			}
		}
		if len(deps) == 0 {
			continue
		}
		nf := models.NewFD(fd.Determinant, deps)
		nf.Source, nf.Support, nf.Violations = fd.Source, fd.Support, fd.Violations
		out = append(out, nf)
	}
	return out
}

func attributeIndices(rel *models.Relation, names []string) []int {
	idx := make([]int, len(names))
	for i, n := range names {
		idx[i] = rel.AttributeIndex(n)
	}
	return idx
}

func rowKeyAt(row []models.Value, idx []int) string {
	parts := make([]string, len(idx))
	for i, j := range idx {
		parts[i] = row[j].Key()
	}
	return strings.Join(parts, "\x1f")
}

func joinRowKey(row []models.Value) string {
	parts := make([]string, len(row))
	for i, v := range row {
		parts[i] = v.Key()
	}
	return strings.Join(parts, "\x1f")
}

func appendMissing(dst []string, values ...string) []string {
	for _, v := range values {
		found := false
		for _, d := range dst {
			if d == v {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, v)
		}
	}
	return dst
}

func uniqueName(preferred, fallback string, used map[string]struct{}) string {
	if _, taken := used[preferred]; !taken {
		return preferred
	}
	name := fallback
	for i := 2; ; i++ {
		if _, taken := used[name]; !taken {
			return name
		}
		name = fmt.Sprintf("%s%d", fallback, i)
	}
}

var _ DecompositionService = (*decompositionService)(nil)
