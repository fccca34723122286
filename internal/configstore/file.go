package configstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/sirosfoundation/go-listener-manager/internal/domain"
)

// FileStore keeps descriptors in a single file. Files ending in .yaml or .yml
// are YAML, anything else is JSON:
//
//	{"servers": [{"name": "api", "port": 8080, "mode": "simple"}]}
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a file store for path
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file path
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) isYAML() bool {
	ext := strings.ToLower(filepath.Ext(s.path))
	return ext == ".yaml" || ext == ".yml"
}

// Ensure creates an empty record when the file does not exist yet
func (s *FileStore) Ensure() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("failed to stat config file: %w", err)
	}

	if err := s.write(nil); err != nil {
		return false, err
	}
	return true, nil
}

// Save writes servers to the file, replacing its content
func (s *FileStore) Save(_ context.Context, servers []domain.ServerDescriptor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(servers)
}

func (s *FileStore) write(servers []domain.ServerDescriptor) error {
	doc := document{Servers: cloneServers(servers)}

	var data []byte
	var err error
	if s.isYAML() {
		data, err = yaml.Marshal(doc)
	} else {
		data, err = json.MarshalIndent(doc, "", "    ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal server config: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	// Write atomically using a temp file
	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp config file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename config file: %w", err)
	}
	return nil
}

// Load reads the file. A missing or empty file yields an empty list.
func (s *FileStore) Load(_ context.Context) ([]domain.ServerDescriptor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return []domain.ServerDescriptor{}, nil
	}
	if err != nil {
		return []domain.ServerDescriptor{}, fmt.Errorf("failed to read config file: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return []domain.ServerDescriptor{}, nil
	}

	var doc document
	if s.isYAML() {
		err = yaml.Unmarshal(data, &doc)
	} else {
		err = json.Unmarshal(data, &doc)
	}
	if err != nil {
		return []domain.ServerDescriptor{}, &MalformedError{Source: s.path, Err: err}
	}
	return cloneServers(doc.Servers), nil
}

// Close is a no-op for file stores
func (s *FileStore) Close() error {
	return nil
}
