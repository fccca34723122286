// Package logstore keeps the request log of every active port, both in memory
// and in a per-port file under the logs directory.
package logstore

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/sirosfoundation/go-listener-manager/internal/domain"
)

// FileName returns the log file name used for a port
func FileName(port int) string {
	return fmt.Sprintf("servidor_%d.log", port)
}

// portLog is the in-memory log of one port
type portLog struct {
	mu    sync.Mutex
	lines []string
}

// Store holds the per-port logs. The on-disk file of a port outlives its
// in-memory log: Drop frees memory only.
type Store struct {
	dir         string
	transferDir string
	logger      *zap.Logger

	mu   sync.RWMutex
	logs map[int]*portLog
}

// Option configures a Store
type Option func(*Store)

// WithTransferDir confines Export and ReplaceFromFile to dir. Relative paths
// are resolved against dir; paths leaving it fail with domain.ErrPathNotAllowed.
func WithTransferDir(dir string) Option {
	return func(s *Store) {
		s.transferDir = dir
	}
}

// New creates a log store rooted at dir
func New(dir string, logger *zap.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		dir:    dir,
		logger: logger.Named("logstore"),
		logs:   make(map[int]*portLog),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EnsureDir creates the logs directory if needed
func (s *Store) EnsureDir() error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}
	return nil
}

// EnsureTransferDir creates the transfer directory, if one is configured
func (s *Store) EnsureTransferDir() error {
	if s.transferDir == "" {
		return nil
	}
	if err := os.MkdirAll(s.transferDir, 0755); err != nil {
		return fmt.Errorf("failed to create log transfer directory: %w", err)
	}
	return nil
}

// Dir returns the logs directory
func (s *Store) Dir() string {
	return s.dir
}

// TransferDir returns the directory export and import are confined to, or
// "" when they are not restricted
func (s *Store) TransferDir() string {
	return s.transferDir
}

// ResolveTransferPath maps a requested export or import path to the file
// actually used
func (s *Store) ResolveTransferPath(p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("empty path: %w", domain.ErrPathNotAllowed)
	}
	if s.transferDir == "" {
		return p, nil
	}

	base, err := filepath.Abs(s.transferDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve transfer directory: %w", err)
	}
	target := p
	if !filepath.IsAbs(target) {
		target = filepath.Join(base, target)
	}
	target = filepath.Clean(target)

	rel, err := filepath.Rel(base, target)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%q: %w", p, domain.ErrPathNotAllowed)
	}
	return target, nil
}

// Path returns the on-disk log path of a port
func (s *Store) Path(port int) string {
	return filepath.Join(s.dir, FileName(port))
}

// Open creates an empty in-memory log for port. Opening an open port is a no-op.
func (s *Store) Open(port int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.logs[port]; !ok {
		s.logs[port] = &portLog{}
	}
}

// Drop releases the in-memory log of port
func (s *Store) Drop(port int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.logs, port)
}

// Has reports whether port has an in-memory log
func (s *Store) Has(port int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.logs[port]
	return ok
}

func (s *Store) get(port int) (*portLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.logs[port]
	if !ok {
		return nil, fmt.Errorf("port %d: %w", port, domain.ErrNotFound)
	}
	return l, nil
}

// Append adds line to the port's log. The line is kept in memory even when
// the disk write fails; the write error is returned.
func (s *Store) Append(port int, line string) error {
	l, err := s.get(port)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.lines = append(l.lines, line)

	if err := s.EnsureDir(); err != nil {
		return err
	}
	f, err := os.OpenFile(s.Path(port), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write([]byte(line + "\n")); err != nil {
		return fmt.Errorf("failed to write log file: %w", err)
	}
	return nil
}

// All returns a copy of the port's log, oldest first
func (s *Store) All(port int) ([]string, error) {
	l, err := s.get(port)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string{}, l.lines...), nil
}

// Filter returns the lines containing query, case-insensitively.
// An empty query returns every line.
func (s *Store) Filter(port int, query string) ([]string, error) {
	lines, err := s.All(port)
	if err != nil || query == "" {
		return lines, err
	}

	needle := strings.ToLower(query)
	matched := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.Contains(strings.ToLower(line), needle) {
			matched = append(matched, line)
		}
	}
	return matched, nil
}

// Clear empties the port's log in memory and on disk
func (s *Store) Clear(port int) error {
	l, err := s.get(port)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.lines = nil

	if err := s.EnsureDir(); err != nil {
		return err
	}
	if err := os.WriteFile(s.Path(port), nil, 0644); err != nil {
		return fmt.Errorf("failed to truncate log file: %w", err)
	}

	s.logger.Info("Log cleared", zap.Int("port", port))
	return nil
}

// Export copies the port's on-disk log verbatim to dest, resolved with
// ResolveTransferPath. A port that has not logged anything yet has no file
// and yields domain.ErrLogNotFound.
func (s *Store) Export(port int, dest string) error {
	l, err := s.get(port)
	if err != nil {
		return err
	}
	dest, err = s.ResolveTransferPath(dest)
	if err != nil {
		return err
	}

	// Hold the port lock so the copy never sees a half-written line
	l.mu.Lock()
	defer l.mu.Unlock()

	src, err := os.Open(s.Path(port))
	if os.IsNotExist(err) {
		return fmt.Errorf("port %d: %w", port, domain.ErrLogNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer src.Close()

	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dest)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := io.Copy(tmp, src); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to copy log file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close export file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to set export file mode: %w", err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename export file: %w", err)
	}

	s.logger.Info("Log exported", zap.Int("port", port), zap.String("dest", dest))
	return nil
}

// ReplaceFromFile replaces the port's in-memory log with the non-empty lines
// of src, trimmed. src is resolved with ResolveTransferPath. The on-disk log
// is left as it is.
func (s *Store) ReplaceFromFile(port int, src string) (int, error) {
	l, err := s.get(port)
	if err != nil {
		return 0, err
	}
	src, err = s.ResolveTransferPath(src)
	if err != nil {
		return 0, err
	}

	data, err := os.ReadFile(src)
	if err != nil {
		return 0, fmt.Errorf("failed to read log file: %w", err)
	}

	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), len(data)+1)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("failed to parse log file: %w", err)
	}

	l.mu.Lock()
	l.lines = lines
	l.mu.Unlock()

	s.logger.Info("Log loaded from file",
		zap.Int("port", port), zap.String("src", src), zap.Int("lines", len(lines)))
	return len(lines), nil
}
