package backend

import (
	"context"
	"fmt"
	"log/slog"

	"spendly/internal/config"
	"spendly/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	backendType := BackendType(appConfig.Storage.Backend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.Storage.Backend)
	}

	return Config{
		Type:          backendType,
		DataDirectory: appConfig.Storage.Dir,
		SQLiteDBPath:  appConfig.Storage.SQLitePath,
	}, nil
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(_ context.Context, config Config) (*BackendResult, error) {
	switch config.Type {
	case MemoryBackend:
		f.logger.Info("Initialized memory backend")
		return &BackendResult{Backend: storage.NewMemory()}, nil

	case FileBackend:
		dataDir := config.DataDirectory
		if dataDir == "" {
			dataDir = "data"
		}
		fb, err := storage.NewFile(dataDir)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize file backend: %w", err)
		}
		f.logger.Info("Initialized file backend", "data_directory", dataDir)
		return &BackendResult{Backend: fb}, nil

	case SQLiteBackend:
		if config.SQLiteDBPath == "" {
			return nil, fmt.Errorf("SQLite database path is required for sqlite backend")
		}
		db, err := storage.NewSQLite(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite backend: %w", err)
		}
		f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
		return &BackendResult{Backend: db, Cleanup: db.Close}, nil

	default:
		return nil, fmt.Errorf("invalid backend type: %s", config.Type)
	}
}
