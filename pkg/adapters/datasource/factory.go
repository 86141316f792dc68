package datasource

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/relnorm/relnorm-engine/pkg/apperrors"
)

// TableReaderFactory creates readers from the registry.
type TableReaderFactory interface {
	// NewTableReader creates a table reader for the given datasource type.
	NewTableReader(ctx context.Context, dsType string, config map[string]any) (TableReader, error)

	// ListTypes returns info for all registered reader types.
	ListTypes() []ReaderInfo
}

type registryFactory struct {
	logger *zap.Logger
}

// NewTableReaderFactory returns a factory that uses the global registry.
func NewTableReaderFactory(logger *zap.Logger) TableReaderFactory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &registryFactory{logger: logger}
}

func (f *registryFactory) NewTableReader(ctx context.Context, dsType string, config map[string]any) (TableReader, error) {
	factory := GetFactory(dsType)
	if factory == nil {
		return nil, fmt.Errorf("%w: %s (not compiled in)", apperrors.ErrUnsupportedDatasource, dsType)
	}
	return factory(ctx, config, f.logger)
}

func (f *registryFactory) ListTypes() []ReaderInfo {
	return RegisteredReaders()
}

// Ensure registryFactory implements TableReaderFactory at compile time.
var _ TableReaderFactory = (*registryFactory)(nil)
