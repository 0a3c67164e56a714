package license

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Store persists the single local license record as a JSON file.
// Writes go through a temp file and rename so a crash mid-write never
// leaves a corrupt record. The scheduler is the only writer after
// activation, so no file locking is needed.
type Store struct {
	path   string
	logger *slog.Logger
}

// NewStore creates a store backed by the given file path.
func NewStore(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		path:   path,
		logger: logger.With(slog.String("component", "license_store")),
	}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the persisted record. A missing file returns (nil, nil):
// the installation simply has no license yet.
func (s *Store) Load() (*Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Debug("no license file present", slog.String("path", s.path))
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read license file %s: %w", s.path, err)
	}

	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to parse license file %s: %w", s.path, err)
	}

	s.logger.Debug("license record loaded",
		slog.String("path", s.path),
		slog.String("license_key", MaskKey(record.LicenseKey)),
		slog.String("status", string(record.Status)),
	)
	return &record, nil
}

// Save atomically writes the record.
func (s *Store) Save(record Record) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal license record: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create license directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".license-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp license file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write license file: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to set license file permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp license file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace license file %s: %w", s.path, err)
	}

	s.logger.Info("license record saved",
		slog.String("path", s.path),
		slog.String("license_key", MaskKey(record.LicenseKey)),
		slog.String("status", string(record.Status)),
		slog.Int("size_bytes", len(data)),
	)
	return nil
}

// Clear removes the persisted record. Clearing an absent record is
// not an error.
func (s *Store) Clear() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove license file %s: %w", s.path, err)
	}
	s.logger.Info("license record cleared", slog.String("path", s.path))
	return nil
}
