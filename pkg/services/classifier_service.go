package services

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/relnorm/relnorm-engine/pkg/models"
)

// ClassifierService evaluates a relation and its dependency set against the
// 1NF, 2NF and 3NF rules. Each rule is only evaluated once the previous form
// holds, so a result carries the violations of the first failing form.
type ClassifierService interface {
	// Classify reports the highest normal form the relation satisfies and
	// the violations blocking the next one.
	Classify(rel *models.Relation) models.ClassificationResult

	// ClassifyWithReferences behaves like Classify but treats the named
	// attributes as references to relations extracted earlier, so a
	// dependency that merely points a row at its dimension is not flagged
	// again.
	ClassifyWithReferences(rel *models.Relation, references []string) models.ClassificationResult
}

type classifierService struct {
	logger *zap.Logger
}

// NewClassifierService creates a new ClassifierService.
func NewClassifierService(logger *zap.Logger) ClassifierService {
	return &classifierService{logger: logger.Named("classifier")}
}

func (s *classifierService) Classify(rel *models.Relation) models.ClassificationResult {
	return s.ClassifyWithReferences(rel, nil)
}

func (s *classifierService) ClassifyWithReferences(rel *models.Relation, references []string) models.ClassificationResult {
	result := models.ClassificationResult{
		RelationName: rel.Name,
		FormReached:  models.FormNone,
	}

	if v := s.checkFirstForm(rel); len(v) > 0 {
		result.Violations = v
		s.logResult(rel, result)
		return result
	}
	result.FormReached = models.Form1NF

	cover := MinimalCover(rel.FDs)
	keys := rel.Keys
	if len(keys) == 0 && len(cover) > 0 {
		keys = CandidateKeys(rel.AttributeNames(), cover)
	}

	if v := s.checkSecondForm(rel, cover, keys, references); len(v) > 0 {
		result.Violations = v
		s.logResult(rel, result)
		return result
	}
	result.FormReached = models.Form2NF

	if v := s.checkThirdForm(rel, cover, keys, references); len(v) > 0 {
		result.Violations = v
		s.logResult(rel, result)
		return result
	}
	result.FormReached = models.Form3NF

	s.logResult(rel, result)
	return result
}

// checkFirstForm hunts non-atomic cells and repeating attribute groups. One
// violation per attribute, evidenced by the first offending cell.
func (s *classifierService) checkFirstForm(rel *models.Relation) []models.Violation {
	var out []models.Violation

	for idx, attr := range rel.Attributes {
		for i := 0; i < rel.NumRows(); i++ {
			cell := rel.Rows[i][idx]
			if IsAtomicValue(cell) {
				continue
			}
			row := i
			text := cell.String()
			out = append(out, models.Violation{
				RelationName: rel.Name,
				Form:         models.Form1NF,
				Kind:         models.ViolationMultiValuedCell,
				Attribute:    attr.Name,
				RowIndex:     &row,
				CellValue:    &text,
				Message:      fmt.Sprintf("attribute %s holds a multi-valued cell in row %d: %q", attr.Name, i, text),
			})
			break
		}
	}

	for _, g := range FindRepeatingGroups(rel.AttributeNames()) {
		out = append(out, models.Violation{
			RelationName: rel.Name,
			Form:         models.Form1NF,
			Kind:         models.ViolationRepeatingGroup,
			Attribute:    g.Base,
			Message:      fmt.Sprintf("attributes %s repeat the stem %q across numbered columns", strings.Join(g.Attributes, ", "), g.Base),
		})
	}

	return out
}

// checkSecondForm flags partial dependencies: a non-prime attribute hanging
// off a proper subset of a composite key. Only declared keys are trusted
// here; with inferred keys a sub-key dependency is indistinguishable from a
// transitive one and surfaces at the 3NF check instead.
func (s *classifierService) checkSecondForm(rel *models.Relation, cover []models.FunctionalDependency, keys []models.CandidateKey, references []string) []models.Violation {
	var out []models.Violation
	seen := make(map[string]struct{})

	for _, key := range keys {
		if !key.Declared || !key.IsComposite() {
			continue
		}
		for _, fd := range cover {
			if !properSubset(fd.Determinant, key.Attributes) {
				continue
			}
			if containsAnyKey(fd.Determinant, keys) {
				continue
			}
			for _, a := range fd.Dependent {
				if isPrimeIn(a, keys) {
					continue
				}
				if s.isResolvedReference(a, fd.Determinant, cover, keys, references) {
					continue
				}
				id := joinSorted(fd.Determinant) + "->" + a
				if _, ok := seen[id]; ok {
					continue
				}
				seen[id] = struct{}{}
				evidence := models.NewFD(fd.Determinant, []string{a})
				out = append(out, models.Violation{
					RelationName: rel.Name,
					Form:         models.Form2NF,
					Kind:         models.ViolationPartialDependency,
					Attribute:    a,
					FD:           &evidence,
					Message: fmt.Sprintf("%s depends on (%s), a proper subset of composite key %s",
						a, strings.Join(fd.Determinant, ", "), key.String()),
				})
			}
		}
	}

	return out
}

// checkThirdForm flags dependencies on determinants that are not superkeys.
// The evidence chain walks primary key -> determinant -> attribute.
func (s *classifierService) checkThirdForm(rel *models.Relation, cover []models.FunctionalDependency, keys []models.CandidateKey, references []string) []models.Violation {
	var out []models.Violation
	attrs := rel.AttributeNames()

	var primary *models.CandidateKey
	if len(keys) > 0 {
		primary = &keys[0]
	}

	for _, fd := range cover {
		if IsSuperkey(fd.Determinant, attrs, cover) || containsAnyKey(fd.Determinant, keys) {
			continue
		}
		for _, a := range fd.Dependent {
			if isPrimeIn(a, keys) {
				continue
			}
			if s.isResolvedReference(a, fd.Determinant, cover, keys, references) {
				continue
			}
			evidence := models.NewFD(fd.Determinant, []string{a})
			var chain []models.FunctionalDependency
			keyLabel := "the heading"
			if primary != nil {
				chain = append(chain, models.NewFD(primary.Attributes, fd.Determinant))
				keyLabel = primary.String()
			}
			chain = append(chain, evidence)
			out = append(out, models.Violation{
				RelationName: rel.Name,
				Form:         models.Form3NF,
				Kind:         models.ViolationTransitiveDependency,
				Attribute:    a,
				FD:           &evidence,
				Chain:        chain,
				Message: fmt.Sprintf("%s depends on key %s only through (%s)",
					a, keyLabel, strings.Join(fd.Determinant, ", ")),
			})
		}
	}

	return out
}

// isResolvedReference reports whether flagging determinant -> attr would be
// noise: attr is itself a determinant (or a known foreign key), so it stands
// in for a dimension others separate out, and the determinant is made of key
// attributes pointing at it.
func (s *classifierService) isResolvedReference(attr string, determinant []string, cover []models.FunctionalDependency, keys []models.CandidateKey, references []string) bool {
	for _, a := range determinant {
		if !isPrimeIn(a, keys) {
			return false
		}
	}
	for _, r := range references {
		if r == attr {
			return true
		}
	}
	for _, fd := range cover {
		if fd.Determines(attr) {
			return true
		}
	}
	return false
}

func (s *classifierService) logResult(rel *models.Relation, result models.ClassificationResult) {
	s.logger.Debug("Classified relation",
		zap.String("relation", rel.Name),
		zap.String("form_reached", string(result.FormReached)),
		zap.Int("violations", len(result.Violations)))
}

func isPrimeIn(attr string, keys []models.CandidateKey) bool {
	for _, k := range keys {
		if k.Contains(attr) {
			return true
		}
	}
	return false
}

// containsAnyKey reports whether the attribute set includes a whole
// candidate key. Such a set is a superkey even when the declared dependency
// list is too sparse for the closure to show it.
func containsAnyKey(attrs []string, keys []models.CandidateKey) bool {
	for _, k := range keys {
		if len(k.Attributes) > 0 && containsAll(attrs, k.Attributes) {
			return true
		}
	}
	return false
}

func properSubset(sub, set []string) bool {
	return len(sub) < len(set) && containsAll(set, sub)
}

var _ ClassifierService = (*classifierService)(nil)
