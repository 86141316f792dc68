package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/relnorm/relnorm-engine/pkg/apperrors"
	"github.com/relnorm/relnorm-engine/pkg/config"
	"github.com/relnorm/relnorm-engine/pkg/models"
)

// InferenceProgressCallback is called to report progress during dependency
// inference. Parameters: current (determinant candidates tested), total
// (total candidates), message (human-readable status).
type InferenceProgressCallback func(current, total int, message string)

// FDInferenceService discovers functional dependencies from relation rows,
// or normalizes a caller-declared dependency set, and derives candidate keys
// from the result.
type FDInferenceService interface {
	// InferDependencies tests every determinant subset up to the configured
	// maximum size against the relation's rows and stores the minimal cover
	// of the dependencies that hold on rel.FDs. Candidate keys are computed
	// and stored on rel.Keys unless declared keys are already present.
	// Fails with apperrors.ErrInsufficientData when the relation has fewer
	// than two rows. The progressCallback is called to report progress (can
	// be nil).
	InferDependencies(ctx context.Context, rel *models.Relation, progressCallback InferenceProgressCallback) error

	// ApplyDeclaredDependencies installs a trusted dependency set: each
	// dependency is normalized (disjoint sides, duplicates removed) but
	// never tested against rows. Dependencies naming attributes the
	// relation does not have fail with apperrors.ErrMalformedInput.
	ApplyDeclaredDependencies(rel *models.Relation, declared []models.FunctionalDependency) error

	// MinimizeDependencies returns the minimal cover of the given set. The
	// operation is idempotent: minimizing a minimal cover returns an
	// equivalent set.
	MinimizeDependencies(fds []models.FunctionalDependency) []models.FunctionalDependency
}

type fdInferenceService struct {
	cfg    config.AnalysisConfig
	logger *zap.Logger
}

// NewFDInferenceService creates a new FDInferenceService.
func NewFDInferenceService(cfg config.AnalysisConfig, logger *zap.Logger) FDInferenceService {
	return &fdInferenceService{
		cfg:    cfg,
		logger: logger.Named("fd-inference"),
	}
}

func (s *fdInferenceService) InferDependencies(ctx context.Context, rel *models.Relation, progressCallback InferenceProgressCallback) error {
	if rel.NumRows() < 2 {
		return fmt.Errorf("relation %s has %d rows, need at least 2: %w", rel.Name, rel.NumRows(), apperrors.ErrInsufficientData)
	}

	if timeout := s.cfg.InferenceTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	attrs := rel.AttributeNames()
	maxSize := s.cfg.MaxDeterminantSize
	if maxSize < 1 {
		maxSize = 1
	}
	if maxSize > len(attrs)-1 {
		maxSize = len(attrs) - 1
	}
	minSize := 1
	if !s.cfg.InferSingleColumnFDs {
		minSize = 2
	}

	startTime := time.Now()
	s.logger.Info("Starting dependency inference",
		zap.String("relation", rel.Name),
		zap.Int("attributes", len(attrs)),
		zap.Int("rows", rel.NumRows()),
		zap.Int("max_determinant_size", maxSize))

	// Precompute grouping keys and null flags per cell.
	cellKeys := make([][]string, len(attrs))
	cellNulls := make([][]bool, len(attrs))
	for c := range attrs {
		cellKeys[c] = make([]string, rel.NumRows())
		cellNulls[c] = make([]bool, rel.NumRows())
		for i, row := range rel.Rows {
			cellKeys[c][i] = row[c].Key()
			cellNulls[c][i] = row[c].IsNull()
		}
	}

	total := 0
	for size := minSize; size <= maxSize; size++ {
		total += binomial(len(attrs), size)
	}

	// Determinants already known to determine an attribute, used to skip
	// strict supersets: AB -> c adds nothing once A -> c holds.
	known := make(map[string][][]string)
	var found []models.FunctionalDependency
	tested := 0
	var walkErr error

	for size := minSize; size <= maxSize && walkErr == nil; size++ {
		combinations(attrs, size, func(det []string) {
			if walkErr != nil {
				return
			}
			if err := ctx.Err(); err != nil {
				walkErr = fmt.Errorf("dependency inference stopped after %d of %d candidates: %w", tested, total, err)
				return
			}
			tested++

			fds := s.testDeterminant(rel, attrs, det, cellKeys, cellNulls, known)
			for _, fd := range fds {
				known[fd.Dependent[0]] = append(known[fd.Dependent[0]], fd.Determinant)
			}
			found = append(found, fds...)

			if progressCallback != nil {
				msg := fmt.Sprintf("Testing determinant (%s) on %s (%d/%d)", strings.Join(det, ", "), rel.Name, tested, total)
				progressCallback(tested, total, msg)
			}
		})
	}
	if walkErr != nil {
		return walkErr
	}

	rel.FDs = MinimalCover(found)
	if len(rel.Keys) == 0 {
		rel.Keys = CandidateKeys(attrs, rel.FDs)
	}

	s.logger.Info("Dependency inference complete",
		zap.String("relation", rel.Name),
		zap.Int("candidates_tested", tested),
		zap.Int("dependencies", len(rel.FDs)),
		zap.Int("candidate_keys", len(rel.Keys)),
		zap.Duration("duration", time.Since(startTime)))
	return nil
}

// testDeterminant groups rows on the determinant's values and reports one
// singleton dependency for every other attribute whose value agrees within
// each group. A dependency is only asserted when at least one group holds
// two or more rows; with singleton groups nothing is disproved, so nothing
// is learned either.
func (s *fdInferenceService) testDeterminant(
	rel *models.Relation,
	attrs, det []string,
	cellKeys [][]string,
	cellNulls [][]bool,
	known map[string][][]string,
) []models.FunctionalDependency {
	detIdx := make([]int, len(det))
	for i, a := range det {
		detIdx[i] = rel.AttributeIndex(a)
	}

	// Attributes still worth testing against this determinant.
	var depIdx []int
	var depNames []string
	for c, a := range attrs {
		if containsAll(det, []string{a}) {
			continue
		}
		redundant := false
		for _, prior := range known[a] {
			if len(prior) < len(det) && containsAll(det, prior) {
				redundant = true
				break
			}
		}
		if !redundant {
			depIdx = append(depIdx, c)
			depNames = append(depNames, a)
		}
	}
	if len(depIdx) == 0 {
		return nil
	}

	type group struct {
		size    int
		depKeys []string
		depSeen []bool
		depBad  []bool
	}
	groups := make(map[string]*group)
	var keyParts []string

	for i := 0; i < rel.NumRows(); i++ {
		if !s.cfg.FDCheckNulls {
			skip := false
			for _, c := range detIdx {
				if cellNulls[c][i] {
					skip = true
					break
				}
			}
			if skip {
				continue
			}
		}

		keyParts = keyParts[:0]
		for _, c := range detIdx {
			keyParts = append(keyParts, cellKeys[c][i])
		}
		gk := strings.Join(keyParts, "\x1f")

		g, ok := groups[gk]
		if !ok {
			g = &group{
				depKeys: make([]string, len(depIdx)),
				depSeen: make([]bool, len(depIdx)),
				depBad:  make([]bool, len(depIdx)),
			}
			groups[gk] = g
		}
		g.size++

		for j, c := range depIdx {
			if g.depBad[j] {
				continue
			}
			if !s.cfg.FDCheckNulls && cellNulls[c][i] {
				// A null neither supports nor contradicts agreement.
				continue
			}
			if !g.depSeen[j] {
				g.depKeys[j] = cellKeys[c][i]
				g.depSeen[j] = true
				continue
			}
			if g.depKeys[j] != cellKeys[c][i] {
				g.depBad[j] = true
			}
		}
	}

	support := 0
	for _, g := range groups {
		if g.size > support {
			support = g.size
		}
	}
	if support < 2 {
		return nil
	}

	var out []models.FunctionalDependency
	for j := range depIdx {
		holds := true
		for _, g := range groups {
			if g.depBad[j] {
				holds = false
				break
			}
		}
		if !holds {
			continue
		}
		fd := models.NewFD(det, []string{depNames[j]})
		fd.Source = models.FDSourceInferred
		fd.Support = support
		out = append(out, fd)
	}
	return out
}

func (s *fdInferenceService) ApplyDeclaredDependencies(rel *models.Relation, declared []models.FunctionalDependency) error {
	var normalized []models.FunctionalDependency
	for _, fd := range declared {
		for _, a := range append(append([]string(nil), fd.Determinant...), fd.Dependent...) {
			if !rel.HasAttribute(a) {
				return fmt.Errorf("declared dependency %s names unknown attribute %q in relation %s: %w",
					fd.String(), a, rel.Name, apperrors.ErrMalformedInput)
			}
		}
		next := models.NewFD(fd.Determinant, fd.Dependent)
		if len(next.Determinant) == 0 || len(next.Dependent) == 0 {
			s.logger.Debug("Dropping trivial declared dependency",
				zap.String("relation", rel.Name),
				zap.String("fd", fd.String()))
			continue
		}
		next.Source = models.FDSourceDeclared
		normalized = append(normalized, next)
	}

	rel.FDs = models.DedupeFDs(normalized)
	if len(rel.Keys) == 0 {
		rel.Keys = CandidateKeys(rel.AttributeNames(), rel.FDs)
	}

	s.logger.Debug("Applied declared dependencies",
		zap.String("relation", rel.Name),
		zap.Int("declared", len(declared)),
		zap.Int("kept", len(rel.FDs)),
		zap.Int("candidate_keys", len(rel.Keys)))
	return nil
}

func (s *fdInferenceService) MinimizeDependencies(fds []models.FunctionalDependency) []models.FunctionalDependency {
	return MinimalCover(fds)
}

func binomial(n, k int) int {
	if k < 0 || k > n {
		return 0
	}
	if k > n-k {
		k = n - k
	}
	out := 1
	for i := 1; i <= k; i++ {
		out = out * (n - k + i) / i
	}
	return out
}

var _ FDInferenceService = (*fdInferenceService)(nil)
