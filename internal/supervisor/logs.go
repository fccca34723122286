package supervisor

import (
	"fmt"

	"github.com/sirosfoundation/go-listener-manager/internal/domain"
)

// Log operations are only available for active ports. The log store keeps a
// port's in-memory log exactly as long as the port is registered, so the
// registry lock is only taken to report a uniform ErrNotFound.

func (r *Registry) requireActive(port int) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.entries[port]; !ok {
		return fmt.Errorf("port %d: %w", port, domain.ErrNotFound)
	}
	return nil
}

// Logs returns every log line of port, oldest first
func (r *Registry) Logs(port int) ([]string, error) {
	if err := r.requireActive(port); err != nil {
		return nil, err
	}
	return r.logs.All(port)
}

// FilterLogs returns the log lines of port containing query, case-insensitively
func (r *Registry) FilterLogs(port int, query string) ([]string, error) {
	if err := r.requireActive(port); err != nil {
		return nil, err
	}
	return r.logs.Filter(port, query)
}

// ClearLogs empties the log of port in memory and on disk
func (r *Registry) ClearLogs(port int) error {
	if err := r.requireActive(port); err != nil {
		return err
	}
	return r.logs.Clear(port)
}

// ExportLogs copies the on-disk log of port to dest
func (r *Registry) ExportLogs(port int, dest string) error {
	if err := r.requireActive(port); err != nil {
		return err
	}
	return r.logs.Export(port, dest)
}

// ImportLogs replaces the in-memory log of port with the lines of src and
// returns how many lines were loaded
func (r *Registry) ImportLogs(port int, src string) (int, error) {
	if err := r.requireActive(port); err != nil {
		return 0, err
	}
	return r.logs.ReplaceFromFile(port, src)
}

// LogPath returns the on-disk log path of port
func (r *Registry) LogPath(port int) string {
	return r.logs.Path(port)
}
