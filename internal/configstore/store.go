// Package configstore persists the set of active server descriptors so it can
// be restored when the process starts again.
package configstore

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/sirosfoundation/go-listener-manager/internal/domain"
	"github.com/sirosfoundation/go-listener-manager/pkg/config"
)

// Type defines the type of config store backend
type Type string

const (
	// TypeFile stores descriptors in a JSON or YAML file
	TypeFile Type = "file"
	// TypeSQLite stores descriptors in a SQLite database
	TypeSQLite Type = "sqlite"
	// TypeMongoDB stores descriptors in a MongoDB collection
	TypeMongoDB Type = "mongodb"
	// TypeMemory keeps descriptors in process memory (for testing)
	TypeMemory Type = "memory"
)

// Store saves and loads the ordered list of active descriptors.
//
// Load returns an empty list and a nil error when nothing has been saved yet.
// When the stored data cannot be decoded, Load returns an empty list together
// with a *MalformedError so callers can warn and continue.
type Store interface {
	Save(ctx context.Context, servers []domain.ServerDescriptor) error
	Load(ctx context.Context) ([]domain.ServerDescriptor, error)
	Close() error
}

// MalformedError reports persisted data that could not be decoded
type MalformedError struct {
	Source string
	Err    error
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed server config in %s: %v", e.Source, e.Err)
}

func (e *MalformedError) Unwrap() error { return e.Err }

// document is the persisted shape shared by the file formats
type document struct {
	Servers []domain.ServerDescriptor `json:"servers" yaml:"servers"`
}

// New creates a config store based on the configuration
func New(ctx context.Context, cfg *config.StoreConfig, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("configstore")

	storeType := Type(cfg.Type)
	switch storeType {
	case TypeFile, "":
		return NewFileStore(cfg.File.Path), nil

	case TypeSQLite:
		store, err := NewSQLiteStore(ctx, cfg.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite config store: %w", err)
		}
		return store, nil

	case TypeMongoDB:
		store, err := NewMongoStore(ctx, &cfg.MongoDB)
		if err != nil {
			return nil, fmt.Errorf("failed to create MongoDB config store: %w", err)
		}
		return store, nil

	case TypeMemory:
		logger.Warn("Using in-memory config store, servers will not survive a restart")
		return NewMemoryStore(), nil

	default:
		return nil, fmt.Errorf("unsupported store type: %s", storeType)
	}
}

func cloneServers(servers []domain.ServerDescriptor) []domain.ServerDescriptor {
	return append([]domain.ServerDescriptor{}, servers...)
}
