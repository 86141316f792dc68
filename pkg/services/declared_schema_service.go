package services

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/relnorm/relnorm-engine/pkg/apperrors"
	"github.com/relnorm/relnorm-engine/pkg/models"
)

var (
	charTypeRe    = regexp.MustCompile(`^N?(?:VAR)?CHAR\(\s*(?:\d+|MAX)\s*\)$`)
	decimalTypeRe = regexp.MustCompile(`^(?:DECIMAL|NUMERIC)\(\s*\d+\s*,\s*\d+\s*\)$`)
	fkTargetRe    = regexp.MustCompile(`^(?i:FK)\(\s*([A-Za-z0-9_]+)\.([A-Za-z0-9_]+)\s*\)$`)
	keyTokenRe    = regexp.MustCompile(`[;,]\s*`)
)

// plainSQLTypes maps parameterless SQL types to the engine's domains.
var plainSQLTypes = map[string]models.AttributeDomain{
	"INT":              models.DomainNumber,
	"BIGINT":           models.DomainNumber,
	"SMALLINT":         models.DomainNumber,
	"TINYINT":          models.DomainNumber,
	"FLOAT":            models.DomainNumber,
	"REAL":             models.DomainNumber,
	"MONEY":            models.DomainNumber,
	"SMALLMONEY":       models.DomainNumber,
	"DATE":             models.DomainDate,
	"DATETIME":         models.DomainDate,
	"DATETIME2":        models.DomainDate,
	"SMALLDATETIME":    models.DomainDate,
	"TIME":             models.DomainDate,
	"BIT":              models.DomainCategorical,
	"TEXT":             models.DomainText,
	"NTEXT":            models.DomainText,
	"UNIQUEIDENTIFIER": models.DomainText,
}

// DeclaredSchema is the engine-side form of a caller-declared table: a
// rowless relation ready for trusted-mode classification, plus the
// reference metadata the declaration carried.
type DeclaredSchema struct {
	Relation *models.Relation
	// References lists the FK-annotated columns, whether or not a target
	// was named.
	References []string
	// ForeignKeys holds the FK(Table.Column) targets that named one.
	ForeignKeys []models.ForeignKeyLink
}

// DeclaredSchemaService turns declared table schemas into relations.
type DeclaredSchemaService interface {
	// BuildRelation validates the declared columns, key tokens, and
	// dependency expressions, and produces the relation they describe.
	BuildRelation(table *models.DeclaredTable) (*DeclaredSchema, error)

	// ParseDependencies parses compact dependency text, "A,B -> C,D" with
	// multiple dependencies separated by ";", against the given columns.
	// Attribute names resolve case-insensitively to their declared casing.
	ParseDependencies(exprs string, columns []string) ([]models.FunctionalDependency, error)
}

type declaredSchemaService struct {
	logger *zap.Logger
}

// NewDeclaredSchemaService creates a declared schema ingestion service.
func NewDeclaredSchemaService(logger *zap.Logger) DeclaredSchemaService {
	return &declaredSchemaService{logger: logger.Named("declared-schema")}
}

func (s *declaredSchemaService) BuildRelation(table *models.DeclaredTable) (*DeclaredSchema, error) {
	if table == nil || strings.TrimSpace(table.Name) == "" {
		return nil, fmt.Errorf("declared table has no name: %w", apperrors.ErrMalformedInput)
	}
	if len(table.Columns) == 0 {
		return nil, fmt.Errorf("declared table %s has no columns: %w", table.Name, apperrors.ErrMalformedInput)
	}

	rel := &models.Relation{Name: table.Name}
	out := &DeclaredSchema{Relation: rel}

	var pk []string
	var alternates []models.CandidateKey
	seen := map[string]struct{}{}

	for _, col := range table.Columns {
		name := strings.TrimSpace(col.Name)
		if name == "" {
			return nil, fmt.Errorf("declared table %s has a blank column name: %w", table.Name, apperrors.ErrMalformedInput)
		}
		lower := strings.ToLower(name)
		if _, dup := seen[lower]; dup {
			return nil, fmt.Errorf("declared table %s repeats column %s: %w", table.Name, name, apperrors.ErrMalformedInput)
		}
		seen[lower] = struct{}{}

		domain, err := sqlTypeDomain(col.Type)
		if err != nil {
			return nil, fmt.Errorf("declared table %s column %s has invalid type %q: %v: %w",
				table.Name, name, col.Type, err, apperrors.ErrMalformedInput)
		}
		declared := strings.TrimSpace(col.Type)
		rel.Attributes = append(rel.Attributes, models.Attribute{
			Name:         name,
			Domain:       domain,
			DeclaredType: &declared,
		})

		specs, err := parseKeySpecs(col.Key)
		if err != nil {
			return nil, fmt.Errorf("declared table %s column %s has invalid key %q: %v: %w",
				table.Name, name, col.Key, err, apperrors.ErrMalformedInput)
		}
		for _, spec := range specs {
			switch spec.Role {
			case models.KeyRolePrimary:
				pk = appendMissing(pk, name)
			case models.KeyRoleNatural, models.KeyRoleUnique:
				alternates = append(alternates, models.CandidateKey{Attributes: []string{name}, Declared: true})
			case models.KeyRoleForeign:
				out.References = appendMissing(out.References, name)
				if spec.RefTable != "" {
					out.ForeignKeys = append(out.ForeignKeys, models.ForeignKeyLink{
						FromRelation: table.Name,
						FromColumns:  []string{name},
						ToRelation:   spec.RefTable,
						ToColumns:    []string{spec.RefColumn},
					})
				}
			}
		}
	}

	if len(pk) > 0 {
		rel.Keys = append(rel.Keys, models.CandidateKey{Attributes: pk, Declared: true})
	}
	for _, alt := range alternates {
		if len(pk) == 1 && alt.Attributes[0] == pk[0] {
			continue
		}
		rel.Keys = append(rel.Keys, alt)
	}

	fds, err := s.ParseDependencies(table.FDs, rel.AttributeNames())
	if err != nil {
		return nil, fmt.Errorf("declared table %s: %w", table.Name, err)
	}
	rel.FDs = fds

	s.logger.Info("Built relation from declared schema",
		zap.String("table", table.Name),
		zap.Int("columns", len(rel.Attributes)),
		zap.Int("dependencies", len(rel.FDs)),
		zap.Int("keys", len(rel.Keys)))
	return out, nil
}

func (s *declaredSchemaService) ParseDependencies(exprs string, columns []string) ([]models.FunctionalDependency, error) {
	if strings.TrimSpace(exprs) == "" {
		return nil, nil
	}

	canonical := make(map[string]string, len(columns))
	for _, c := range columns {
		canonical[strings.ToLower(c)] = c
	}
	resolve := func(raw, expr string) ([]string, error) {
		var out []string
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			name, ok := canonical[strings.ToLower(part)]
			if !ok {
				return nil, fmt.Errorf("dependency %q names unknown column %q: %w", expr, part, apperrors.ErrMalformedInput)
			}
			out = append(out, name)
		}
		return out, nil
	}

	var fds []models.FunctionalDependency
	for _, expr := range strings.Split(exprs, ";") {
		expr = strings.TrimSpace(expr)
		if expr == "" {
			continue
		}
		lhs, rhs, found := strings.Cut(expr, "->")
		if !found {
			return nil, fmt.Errorf("dependency %q is missing \"->\", expected \"A,B -> C,D\": %w", expr, apperrors.ErrMalformedInput)
		}
		det, err := resolve(lhs, expr)
		if err != nil {
			return nil, err
		}
		dep, err := resolve(rhs, expr)
		if err != nil {
			return nil, err
		}
		if len(det) == 0 || len(dep) == 0 {
			return nil, fmt.Errorf("dependency %q has an empty side, expected \"A,B -> C,D\": %w", expr, apperrors.ErrMalformedInput)
		}
		fd := models.NewFD(det, dep)
		if len(fd.Dependent) == 0 {
			s.logger.Debug("Dropping trivial declared dependency", zap.String("dependency", expr))
			continue
		}
		fd.Source = models.FDSourceDeclared
		fds = append(fds, fd)
	}
	return models.DedupeFDs(fds), nil
}

// sqlTypeDomain validates a declared SQL type and maps it to a domain.
// Length and precision arguments are required for the character and decimal
// families; every parameterless type accepts (and ignores) one.
func sqlTypeDomain(t string) (models.AttributeDomain, error) {
	up := strings.ToUpper(strings.TrimSpace(t))
	if up == "" {
		return "", errors.New("type is empty")
	}
	if charTypeRe.MatchString(up) {
		return models.DomainText, nil
	}
	if decimalTypeRe.MatchString(up) {
		return models.DomainNumber, nil
	}
	base, _, _ := strings.Cut(up, "(")
	if domain, ok := plainSQLTypes[base]; ok {
		return domain, nil
	}
	switch base {
	case "VARCHAR", "CHAR", "NVARCHAR", "NCHAR":
		return "", fmt.Errorf("length required, use %s(n)", base)
	case "DECIMAL", "NUMERIC":
		return "", fmt.Errorf("precision and scale required, use %s(p,s)", base)
	}
	return "", errors.New("unrecognized type")
}

// parseKeySpecs parses a key annotation cell: tokens separated by ";" or
// ",", each one of PK, PK(part), FK, FK(Table.Column), NK, UNIQUE.
func parseKeySpecs(key string) ([]models.KeySpec, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, nil
	}
	var specs []models.KeySpec
	for _, tok := range keyTokenRe.Split(key, -1) {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		switch strings.ToUpper(tok) {
		case "PK":
			specs = append(specs, models.KeySpec{Role: models.KeyRolePrimary})
			continue
		case "PK(PART)":
			specs = append(specs, models.KeySpec{Role: models.KeyRolePrimary, Composite: true})
			continue
		case "NK":
			specs = append(specs, models.KeySpec{Role: models.KeyRoleNatural})
			continue
		case "UNIQUE":
			specs = append(specs, models.KeySpec{Role: models.KeyRoleUnique})
			continue
		case "FK":
			specs = append(specs, models.KeySpec{Role: models.KeyRoleForeign})
			continue
		}
		if strings.HasPrefix(strings.ToUpper(tok), "FK(") {
			m := fkTargetRe.FindStringSubmatch(tok)
			if m == nil {
				return nil, errors.New("foreign key target must be FK(Table.Column)")
			}
			specs = append(specs, models.KeySpec{
				Role:      models.KeyRoleForeign,
				RefTable:  m[1],
				RefColumn: m[2],
			})
			continue
		}
		return nil, fmt.Errorf("unsupported key token %q", tok)
	}
	return specs, nil
}

var _ DeclaredSchemaService = (*declaredSchemaService)(nil)
