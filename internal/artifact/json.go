package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// LoadJSON decodes the JSON file at path into v. A missing file yields
// ErrFileNotFound and malformed content yields ErrParse.
func (s *Store) LoadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Error().Str("path", path).Msg("File not found")
			return fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		s.logger.Error().Err(err).Str("path", path).Msg("Failed to parse JSON file")
		return fmt.Errorf("%w: %s: %v", ErrParse, path, err)
	}

	s.logger.Info().Str("path", path).Msg("JSON file loaded")
	return nil
}

// SaveJSON writes v as indented JSON, creating parent directories as needed
func (s *Store) SaveJSON(v any, path string) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if err := EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	s.logger.Info().Str("path", path).Msg("JSON file saved")
	return nil
}
