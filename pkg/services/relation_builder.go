package services

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/relnorm/relnorm-engine/pkg/adapters/datasource"
	"github.com/relnorm/relnorm-engine/pkg/apperrors"
	"github.com/relnorm/relnorm-engine/pkg/config"
	"github.com/relnorm/relnorm-engine/pkg/models"
)

// RelationBuilder turns raw tabular input into a typed relation.
type RelationBuilder interface {
	// Build validates and coerces a dataset. Returns ErrMalformedInput for
	// structural defects: no columns, blank or duplicate column names, or
	// rows whose width disagrees with the heading.
	Build(name string, ds *datasource.Dataset) (*models.Relation, error)
}

type relationBuilder struct {
	cfg    config.AnalysisConfig
	logger *zap.Logger
}

// NewRelationBuilder creates a new RelationBuilder.
func NewRelationBuilder(cfg config.AnalysisConfig, logger *zap.Logger) RelationBuilder {
	return &relationBuilder{
		cfg:    cfg,
		logger: logger.Named("relation-builder"),
	}
}

func (b *relationBuilder) Build(name string, ds *datasource.Dataset) (*models.Relation, error) {
	if ds == nil || len(ds.Columns) == 0 {
		return nil, fmt.Errorf("%w: dataset has no columns", apperrors.ErrMalformedInput)
	}

	columns := make([]string, len(ds.Columns))
	seen := make(map[string]struct{}, len(ds.Columns))
	for i, c := range ds.Columns {
		c = strings.TrimSpace(c)
		if c == "" {
			return nil, fmt.Errorf("%w: column %d has a blank name", apperrors.ErrMalformedInput, i)
		}
		if _, ok := seen[c]; ok {
			return nil, fmt.Errorf("%w: duplicate column %q", apperrors.ErrMalformedInput, c)
		}
		seen[c] = struct{}{}
		columns[i] = c
	}

	rowLimit := len(ds.Rows)
	if b.cfg.SampleRows > 0 && rowLimit > b.cfg.SampleRows {
		rowLimit = b.cfg.SampleRows
	}

	rows := make([][]models.Value, 0, rowLimit)
	for i, raw := range ds.Rows[:rowLimit] {
		if len(raw) != len(columns) {
			return nil, fmt.Errorf("%w: row %d has %d cells, heading has %d",
				apperrors.ErrMalformedInput, i, len(raw), len(columns))
		}
		row := make([]models.Value, len(raw))
		for j, cell := range raw {
			row[j] = models.CoerceValue(cell)
		}
		rows = append(rows, row)
	}

	attrs := make([]models.Attribute, len(columns))
	for j, col := range columns {
		attrs[j] = b.profileAttribute(col, rows, j)
	}

	if rowLimit < len(ds.Rows) {
		b.logger.Info("Dataset sampled for analysis",
			zap.String("relation", name),
			zap.Int("rows_total", len(ds.Rows)),
			zap.Int("rows_kept", rowLimit))
	}
	b.logger.Debug("Relation built",
		zap.String("relation", name),
		zap.Int("attributes", len(attrs)),
		zap.Int("rows", len(rows)))

	return &models.Relation{
		Name:       name,
		Attributes: attrs,
		Rows:       rows,
	}, nil
}

// profileAttribute infers the domain of one attribute from its column of
// values. A column is numeric or date only when every non-null value is;
// low-cardinality text is reported as categorical.
func (b *relationBuilder) profileAttribute(name string, rows [][]models.Value, col int) models.Attribute {
	var nonNull int
	nullable := false
	allNumber, allDate := true, true
	distinct := make(map[string]struct{})

	for _, row := range rows {
		v := row[col]
		if v.IsNull() {
			nullable = true
			continue
		}
		nonNull++
		if v.Kind != models.ValueNumber {
			allNumber = false
		}
		if v.Kind != models.ValueDate {
			allDate = false
		}
		distinct[v.Key()] = struct{}{}
	}

	domain := models.DomainText
	switch {
	case nonNull == 0:
		domain = models.DomainText
	case allNumber:
		domain = models.DomainNumber
	case allDate:
		domain = models.DomainDate
	case len(distinct) <= b.cfg.CategoricalMaxDistinct && len(distinct)*2 < nonNull:
		domain = models.DomainCategorical
	}

	return models.Attribute{
		Name:     name,
		Domain:   domain,
		Nullable: nullable,
	}
}
