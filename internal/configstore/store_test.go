package configstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-listener-manager/internal/domain"
	"github.com/sirosfoundation/go-listener-manager/pkg/config"
)

func sampleServers() []domain.ServerDescriptor {
	return []domain.ServerDescriptor{
		{Name: "api", Port: 8080, Mode: domain.ModeSimple},
		{Name: "files", Port: 8081, Mode: domain.ModeStatic, StaticDir: "/srv/www"},
		{Name: "echo", Port: 3000, Mode: domain.ModeSimple},
	}
}

// roundTrip checks the save/load contract every backend shares
func roundTrip(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, loaded)

	require.NoError(t, store.Save(ctx, sampleServers()))
	loaded, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, sampleServers(), loaded)

	// Save replaces, it does not merge
	replacement := []domain.ServerDescriptor{{Name: "only", Port: 9000, Mode: domain.ModeSimple}}
	require.NoError(t, store.Save(ctx, replacement))
	loaded, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, replacement, loaded)

	require.NoError(t, store.Save(ctx, nil))
	loaded, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestMemoryStore(t *testing.T) {
	roundTrip(t, NewMemoryStore())
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	servers := sampleServers()
	require.NoError(t, store.Save(context.Background(), servers))

	servers[0].Name = "mutated"
	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "api", loaded[0].Name)
}

func TestFileStore_JSON(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "config.json"))
	roundTrip(t, store)
}

func TestFileStore_YAML(t *testing.T) {
	for _, name := range []string{"servers.yaml", "servers.yml"} {
		t.Run(name, func(t *testing.T) {
			store := NewFileStore(filepath.Join(t.TempDir(), name))
			roundTrip(t, store)

			require.NoError(t, store.Save(context.Background(), sampleServers()))
			data, err := os.ReadFile(store.Path())
			require.NoError(t, err)
			assert.Contains(t, string(data), "servers:")
			assert.Contains(t, string(data), "static_dir: /srv/www")
		})
	}
}

func TestFileStore_JSONDocumentShape(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, store.Save(context.Background(), sampleServers()[:2]))

	data, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	assert.JSONEq(t, `{"servers":[
		{"name":"api","port":8080,"mode":"simple"},
		{"name":"files","port":8081,"mode":"static","static_dir":"/srv/www"}
	]}`, string(data))

	_, err = os.Stat(store.Path() + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestFileStore_LoadsRecordsWrittenByHand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"servers": [
			{"name": "legacy", "port": 8000, "mode": "simple", "static_dir": null},
			{"port": 8001}
		]
	}`), 0644))

	loaded, err := NewFileStore(path).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, domain.ServerDescriptor{Name: "legacy", Port: 8000, Mode: domain.ModeSimple}, loaded[0])
	assert.Equal(t, domain.ServerDescriptor{Port: 8001}, loaded[1])

	// Defaults are the caller's job
	assert.Equal(t, domain.ServerDescriptor{Name: domain.DefaultServerName, Port: 8001, Mode: domain.ModeSimple}, loaded[1].Normalize())
}

func TestFileStore_MissingFile(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "absent.json"))
	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, loaded)
	assert.Empty(t, loaded)
}

func TestFileStore_EmptyObject(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0644))

	loaded, err := NewFileStore(path).Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestFileStore_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"broken json", "config.json", `{"servers": [`},
		{"wrong type", "config.json", `{"servers": [{"name": "x", "port": "eighty"}]}`},
		{"broken yaml", "config.yaml", "servers:\n  - name: x\n    port: [8080"},
		{"yaml wrong shape", "config.yml", "servers: not-a-list"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.file)
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0644))

			loaded, err := NewFileStore(path).Load(context.Background())
			require.Error(t, err)
			assert.Empty(t, loaded)

			var malformed *MalformedError
			require.True(t, errors.As(err, &malformed))
			assert.Equal(t, path, malformed.Source)
		})
	}
}

func TestFileStore_Ensure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	store := NewFileStore(path)

	created, err := store.Ensure()
	require.NoError(t, err)
	assert.True(t, created)

	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, loaded)

	// An existing record is left alone
	require.NoError(t, store.Save(context.Background(), sampleServers()))
	created, err = store.Ensure()
	require.NoError(t, err)
	assert.False(t, created)

	loaded, err = store.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, loaded, 3)
}

func TestSQLiteStore(t *testing.T) {
	store, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "db", "servers.db"))
	require.NoError(t, err)
	defer store.Close()

	roundTrip(t, store)
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "servers.db")
	ctx := context.Background()

	store, err := NewSQLiteStore(ctx, path)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, sampleServers()))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()

	loaded, err := reopened.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, sampleServers(), loaded)
}

func TestSQLiteStore_FailedSaveKeepsPreviousRows(t *testing.T) {
	ctx := context.Background()
	store, err := NewSQLiteStore(ctx, filepath.Join(t.TempDir(), "servers.db"))
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Save(ctx, sampleServers()))

	duplicate := []domain.ServerDescriptor{
		{Name: "a", Port: 7000, Mode: domain.ModeSimple},
		{Name: "b", Port: 7000, Mode: domain.ModeSimple},
	}
	assert.Error(t, store.Save(ctx, duplicate))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, sampleServers(), loaded)
}

func getTestMongoURI() string {
	uri := os.Getenv("MONGODB_TEST_URI")
	if uri == "" {
		uri = "mongodb://localhost:27017"
	}
	return uri
}

func skipIfNoMongo(t *testing.T) *MongoStore {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cfg := &config.MongoDBConfig{
		URI:        getTestMongoURI(),
		Database:   "listener_manager_test",
		Collection: "servers",
		Timeout:    5,
	}

	store, err := NewMongoStore(ctx, cfg)
	if err != nil {
		t.Skipf("MongoDB not available: %v", err)
		return nil
	}

	t.Cleanup(func() {
		ctx := context.Background()
		_ = store.collection.Database().Drop(ctx)
		_ = store.Close()
	})

	return store
}

func TestMongoStore(t *testing.T) {
	store := skipIfNoMongo(t)
	roundTrip(t, store)
}

func TestMongoStore_Ping(t *testing.T) {
	store := skipIfNoMongo(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, store.Ping(ctx))
}

func TestNew(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	t.Run("file", func(t *testing.T) {
		store, err := New(ctx, &config.StoreConfig{Type: "file", File: config.FileConfig{Path: filepath.Join(dir, "c.json")}}, zap.NewNop())
		require.NoError(t, err)
		defer store.Close()
		assert.IsType(t, &FileStore{}, store)
	})

	t.Run("empty type defaults to file", func(t *testing.T) {
		store, err := New(ctx, &config.StoreConfig{File: config.FileConfig{Path: filepath.Join(dir, "d.json")}}, nil)
		require.NoError(t, err)
		assert.IsType(t, &FileStore{}, store)
	})

	t.Run("sqlite", func(t *testing.T) {
		store, err := New(ctx, &config.StoreConfig{Type: "sqlite", SQLite: config.SQLiteConfig{Path: filepath.Join(dir, "s.db")}}, zap.NewNop())
		require.NoError(t, err)
		defer store.Close()
		assert.IsType(t, &SQLiteStore{}, store)
	})

	t.Run("memory", func(t *testing.T) {
		store, err := New(ctx, &config.StoreConfig{Type: "memory"}, zap.NewNop())
		require.NoError(t, err)
		assert.IsType(t, &MemoryStore{}, store)
	})

	t.Run("unsupported", func(t *testing.T) {
		_, err := New(ctx, &config.StoreConfig{Type: "etcd"}, zap.NewNop())
		assert.Error(t, err)
	})
}
