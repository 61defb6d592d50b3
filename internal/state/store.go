// Package state persists per-target crawl state as one JSON document.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/jfmartin/substack-archiver/internal/archive"
)

// FileName is the state document stored inside each target's
// output directory.
const FileName = ".crawl_state.json"

// Store reads and writes crawl state files. It is the only component
// that touches them.
type Store struct {
	logger *zap.Logger
}

// New returns a Store.
func New(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{logger: logger}
}

// Path returns the state file location for target.
func (s *Store) Path(target archive.Target) string {
	return filepath.Join(target.OutputDir, FileName)
}

// Load reads the target's state. A missing file is a normal empty
// state; a malformed file is a ConfigError so it is surfaced instead
// of silently reset.
func (s *Store) Load(target archive.Target) (archive.CrawlState, error) {
	path := s.Path(target)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return archive.CrawlState{}, nil
		}
		return archive.CrawlState{}, &archive.ConfigError{
			Reason: fmt.Sprintf("read state file %s", path),
			Err:    err,
		}
	}

	var st archive.CrawlState
	if err := json.Unmarshal(data, &st); err != nil {
		return archive.CrawlState{}, &archive.ConfigError{
			Reason: fmt.Sprintf("state file %s is corrupt", path),
			Err:    err,
		}
	}
	s.logger.Debug("state loaded",
		zap.String("target", target.Writer),
		zap.Int("highest_number", st.HighestNumber),
		zap.Int("seen_urls", len(st.SeenURLs)),
	)
	return st, nil
}

// Commit atomically replaces the target's state file: the document is
// written to a temporary file in the same directory and renamed into
// place, so a crash never leaves a half-written state.
func (s *Store) Commit(target archive.Target, st archive.CrawlState) error {
	if err := os.MkdirAll(target.OutputDir, 0o750); err != nil {
		return fmt.Errorf("create state dir %s: %w", target.OutputDir, err)
	}

	payload, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tmp, err := os.CreateTemp(target.OutputDir, FileName+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp state file: %w", err)
	}

	if err := os.Rename(tmpName, s.Path(target)); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}
