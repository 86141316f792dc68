package datasource

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// ReaderInfo describes a registered reader for caller discovery.
type ReaderInfo struct {
	Type        string `json:"type"`         // "postgres", "mssql"
	DisplayName string `json:"display_name"` // "PostgreSQL", "Microsoft SQL Server"
	Description string `json:"description"`  // "Read tables from PostgreSQL 12+"
}

// ReaderRegistration contains info + factory for creating a table reader.
type ReaderRegistration struct {
	Info    ReaderInfo
	Factory func(ctx context.Context, config map[string]any, logger *zap.Logger) (TableReader, error)
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]ReaderRegistration)
)

// Register is called by each reader's init() function.
// Thread-safe for concurrent init() calls.
func Register(reg ReaderRegistration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[reg.Info.Type] = reg
}

// RegisteredReaders returns info for all registered readers.
func RegisteredReaders() []ReaderInfo {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]ReaderInfo, 0, len(registry))
	for _, reg := range registry {
		result = append(result, reg.Info)
	}
	return result
}

// GetFactory returns the factory for a datasource type.
// Returns nil if type is not registered.
func GetFactory(dsType string) func(ctx context.Context, config map[string]any, logger *zap.Logger) (TableReader, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	if reg, ok := registry[dsType]; ok {
		return reg.Factory
	}
	return nil
}

// IsRegistered checks if a reader type is available.
func IsRegistered(dsType string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[dsType]
	return ok
}
