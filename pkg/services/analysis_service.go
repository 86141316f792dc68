package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/relnorm/relnorm-engine/pkg/adapters/datasource"
	"github.com/relnorm/relnorm-engine/pkg/apperrors"
	"github.com/relnorm/relnorm-engine/pkg/config"
	"github.com/relnorm/relnorm-engine/pkg/models"
	"github.com/relnorm/relnorm-engine/pkg/services/workqueue"
)

// AnalyzeOptions tunes one analysis run.
type AnalyzeOptions struct {
	// Source labels the report; models.SourceDataset when empty.
	Source string
	// TargetForm for decomposition; empty uses the configured default.
	TargetForm models.NormalForm
	// Decompose normalizes the relation to the target form after
	// classification.
	Decompose bool
	// Sampled marks the rows as a sample even when nothing was truncated
	// here, for callers whose reader already sampled.
	Sampled bool
	// DeclaredFDs switches inference off: the dependencies are trusted and
	// applied without row checks.
	DeclaredFDs []models.FunctionalDependency
	// KeyHints seeds candidate keys from catalog metadata (declared primary
	// key, unique indexes).
	KeyHints []models.CandidateKey
	// Progress receives inference progress updates (may be nil).
	Progress InferenceProgressCallback
}

// AnalysisService runs the full pipeline: build a relation, find its
// dependencies, classify it, and optionally decompose it to the target
// normal form. Each run is independent; reports are never shared.
type AnalysisService interface {
	// AnalyzeDataset analyzes one in-memory dataset.
	AnalyzeDataset(ctx context.Context, name string, ds *datasource.Dataset, opts AnalyzeOptions) (*models.AnalysisReport, error)

	// AnalyzeDeclared analyzes a declared schema: trusted dependencies and
	// keys, no rows, so only structural checks apply.
	AnalyzeDeclared(ctx context.Context, table *models.DeclaredTable) (*models.AnalysisReport, error)

	// AnalyzeTables analyzes many tables from a reader through the work
	// queue, at most MaxConcurrentTables at a time. A failed table is
	// recorded in its slot and never aborts the rest; results keep request
	// order.
	AnalyzeTables(ctx context.Context, reader datasource.TableReader, tables []datasource.TableRef, opts AnalyzeOptions) (*models.BatchAnalysisReport, error)
}

type analysisService struct {
	cfg        config.AnalysisConfig
	builder    RelationBuilder
	inference  FDInferenceService
	classifier ClassifierService
	decomposer DecompositionService
	declared   DeclaredSchemaService
	logger     *zap.Logger
}

// NewAnalysisService creates the pipeline orchestrator.
func NewAnalysisService(
	cfg config.AnalysisConfig,
	builder RelationBuilder,
	inference FDInferenceService,
	classifier ClassifierService,
	decomposer DecompositionService,
	declared DeclaredSchemaService,
	logger *zap.Logger,
) AnalysisService {
	return &analysisService{
		cfg:        cfg,
		builder:    builder,
		inference:  inference,
		classifier: classifier,
		decomposer: decomposer,
		declared:   declared,
		logger:     logger.Named("analysis"),
	}
}

func (s *analysisService) AnalyzeDataset(ctx context.Context, name string, ds *datasource.Dataset, opts AnalyzeOptions) (*models.AnalysisReport, error) {
	start := time.Now()

	target, err := s.resolveTarget(opts.TargetForm)
	if err != nil {
		return nil, err
	}

	rel, err := s.builder.Build(name, ds)
	if err != nil {
		return nil, err
	}
	if len(opts.KeyHints) > 0 {
		rel.Keys = append(rel.Keys, opts.KeyHints...)
	}

	if len(opts.DeclaredFDs) > 0 {
		if err := s.inference.ApplyDeclaredDependencies(rel, opts.DeclaredFDs); err != nil {
			return nil, err
		}
	} else if err := s.inference.InferDependencies(ctx, rel, opts.Progress); err != nil {
		return nil, err
	}

	classification := s.classifier.Classify(rel)

	source := opts.Source
	if source == "" {
		source = models.SourceDataset
	}
	report := &models.AnalysisReport{
		ID:             uuid.New(),
		RelationName:   rel.Name,
		Source:         source,
		RowsAnalyzed:   rel.NumRows(),
		Sampled:        opts.Sampled || rel.NumRows() < ds.NumRows(),
		Attributes:     rel.Attributes,
		FDs:            rel.FDs,
		CandidateKeys:  rel.Keys,
		Classification: classification,
		StartedAt:      start,
	}

	if opts.Decompose {
		dec, err := s.decomposer.Normalize(ctx, rel, target)
		if err != nil {
			return nil, fmt.Errorf("decompose %s: %w", rel.Name, err)
		}
		report.Decomposition = dec
	}

	report.Duration = time.Since(start)
	s.logger.Info("Analysis complete",
		zap.String("relation", rel.Name),
		zap.String("source", source),
		zap.String("form_reached", string(classification.FormReached)),
		zap.Int("violations", len(classification.Violations)),
		zap.Bool("decomposed", report.Decomposition != nil),
		zap.Duration("duration", report.Duration))
	return report, nil
}

func (s *analysisService) AnalyzeDeclared(ctx context.Context, table *models.DeclaredTable) (*models.AnalysisReport, error) {
	start := time.Now()

	schema, err := s.declared.BuildRelation(table)
	if err != nil {
		return nil, err
	}

	rel := schema.Relation
	classification := s.classifier.ClassifyWithReferences(rel, schema.References)

	report := &models.AnalysisReport{
		ID:             uuid.New(),
		RelationName:   rel.Name,
		Source:         models.SourceDeclared,
		RowsAnalyzed:   0,
		Attributes:     rel.Attributes,
		FDs:            rel.FDs,
		CandidateKeys:  rel.Keys,
		Classification: classification,
		StartedAt:      start,
		Duration:       time.Since(start),
	}

	s.logger.Info("Declared schema analyzed",
		zap.String("relation", rel.Name),
		zap.String("form_reached", string(classification.FormReached)),
		zap.Int("violations", len(classification.Violations)),
		zap.Duration("duration", report.Duration))
	return report, nil
}

func (s *analysisService) AnalyzeTables(ctx context.Context, reader datasource.TableReader, tables []datasource.TableRef, opts AnalyzeOptions) (*models.BatchAnalysisReport, error) {
	if reader == nil {
		return nil, fmt.Errorf("nil table reader: %w", apperrors.ErrMalformedInput)
	}

	batch := &models.BatchAnalysisReport{ID: uuid.New()}
	if len(tables) == 0 {
		return batch, nil
	}

	queue := workqueue.New(s.logger,
		workqueue.WithStrategy(workqueue.NewBoundedStrategy(s.cfg.MaxConcurrentTables)))

	results := make([]models.BatchTableResult, len(tables))
	for i, ref := range tables {
		results[i].Table = qualifiedTableName(ref)
		queue.Enqueue(&tableAnalysisTask{
			BaseTask: workqueue.NewBaseTask("analyze " + results[i].Table),
			svc:      s,
			reader:   reader,
			ref:      ref,
			opts:     opts,
			out:      &results[i],
		})
	}

	if err := queue.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("batch analysis aborted: %w", err)
		}
		// Per-table failures live in their result slots; the first one also
		// surfaces here, which is only worth a log line.
		s.logger.Warn("Batch finished with failed tables", zap.Error(err))
	}

	batch.Results = results
	s.logger.Info("Batch analysis complete",
		zap.Int("tables", len(tables)),
		zap.Strings("failed", batch.Failed()))
	return batch, nil
}

// analyzeTable reads one table and runs the dataset pipeline on it.
func (s *analysisService) analyzeTable(ctx context.Context, reader datasource.TableReader, ref datasource.TableRef, opts AnalyzeOptions) (*models.AnalysisReport, error) {
	ds, err := reader.ReadTable(ctx, ref.Schema, ref.Name, s.cfg.SampleRows)
	if err != nil {
		return nil, fmt.Errorf("read table %s: %w", qualifiedTableName(ref), err)
	}

	keys, err := reader.TableKeys(ctx, ref.Schema, ref.Name)
	if err != nil {
		// Key metadata is a hint; analysis still works from the data alone.
		s.logger.Warn("Reading table keys failed, proceeding without hints",
			zap.String("table", qualifiedTableName(ref)),
			zap.Error(err))
	} else if hints := keyHintsFromCatalog(keys); len(hints) > 0 {
		opts.KeyHints = hints
	}

	// A read that filled the limit may have left rows behind.
	if s.cfg.SampleRows > 0 && ds.NumRows() >= s.cfg.SampleRows {
		opts.Sampled = true
	}

	return s.AnalyzeDataset(ctx, ref.Name, ds, opts)
}

type tableAnalysisTask struct {
	workqueue.BaseTask
	svc    *analysisService
	reader datasource.TableReader
	ref    datasource.TableRef
	opts   AnalyzeOptions
	out    *models.BatchTableResult
}

func (t *tableAnalysisTask) Execute(ctx context.Context, _ workqueue.TaskEnqueuer) error {
	report, err := t.svc.analyzeTable(ctx, t.reader, t.ref, t.opts)
	if err != nil {
		t.out.Error = err.Error()
		return err
	}
	t.out.Report = report
	return nil
}

func (s *analysisService) resolveTarget(t models.NormalForm) (models.NormalForm, error) {
	if t == "" {
		t = models.NormalForm(s.cfg.TargetForm)
	}
	if t == "" || t == models.FormNone {
		t = models.Form3NF
	}
	if !models.IsValidNormalForm(t) {
		return "", fmt.Errorf("target form %q is not supported: %w", t, apperrors.ErrMalformedInput)
	}
	return t, nil
}

// keyHintsFromCatalog converts catalog key metadata into declared candidate
// keys, primary key first.
func keyHintsFromCatalog(keys []datasource.DeclaredKey) []models.CandidateKey {
	var out []models.CandidateKey
	seen := map[string]struct{}{}
	add := func(k datasource.DeclaredKey) {
		if len(k.Columns) == 0 {
			return
		}
		id := strings.Join(k.Columns, "\x1f")
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}
		out = append(out, models.CandidateKey{
			Attributes: append([]string(nil), k.Columns...),
			Declared:   true,
		})
	}
	for _, k := range keys {
		if k.Primary {
			add(k)
		}
	}
	for _, k := range keys {
		if !k.Primary && k.Unique {
			add(k)
		}
	}
	return out
}

func qualifiedTableName(ref datasource.TableRef) string {
	if ref.Schema != "" {
		return ref.Schema + "." + ref.Name
	}
	return ref.Name
}

var _ AnalysisService = (*analysisService)(nil)
