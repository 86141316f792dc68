//go:build mssql || all_adapters

package mssql

import (
	"context"

	"go.uber.org/zap"

	"github.com/relnorm/relnorm-engine/pkg/adapters/datasource"
)

func init() {
	datasource.Register(datasource.ReaderRegistration{
		Info: datasource.ReaderInfo{
			Type:        "mssql",
			DisplayName: "Microsoft SQL Server",
			Description: "Sample tables from SQL Server 2017+",
		},
		Factory: func(ctx context.Context, config map[string]any, logger *zap.Logger) (datasource.TableReader, error) {
			cfg, err := FromMap(config)
			if err != nil {
				return nil, err
			}
			return NewReader(ctx, cfg, logger)
		},
	})
}
