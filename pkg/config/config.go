// Package config persists the user-editable system configuration as a JSON
// file next to the database. Reads are served from an in-memory copy that
// is invalidated on every write.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/levenlabs/go-lflag"

	"github.com/robotnikz/sunflow/pkg/types"
)

type Store struct {
	path string

	mu     sync.RWMutex
	cached *types.Config
}

// Configured sets up the config store based on flags.
func Configured() *Store {
	s := &Store{}
	path := lflag.String("config-path", filepath.Join("data", "config.json"), "Path to the JSON config file")
	lflag.Do(func() {
		s.path = *path
	})
	return s
}

// New returns a store at the given path without going through flags.
// Used by tests.
func New(path string) *Store {
	return &Store{path: path}
}

// Get returns the current configuration with defaults applied. A missing
// file yields a default configuration rather than an error.
func (s *Store) Get() (types.Config, error) {
	s.mu.RLock()
	if s.cached != nil {
		c := *s.cached
		s.mu.RUnlock()
		return c, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cached != nil {
		return *s.cached, nil
	}

	var c types.Config
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		c.EnsureDefaults()
		s.cached = &c
		return c, nil
	} else if err != nil {
		return c, fmt.Errorf("reading config file: %w", err)
	}
	if err := json.Unmarshal(raw, &c); err != nil {
		return c, fmt.Errorf("parsing config file: %w", err)
	}
	c.EnsureDefaults()
	s.cached = &c
	return c, nil
}

// Save writes the full configuration and invalidates the cache.
func (s *Store) Save(c types.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(c)
}

func (s *Store) writeLocked(c types.Config) error {
	c.EnsureDefaults()
	raw, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}
	if err := os.WriteFile(s.path, raw, 0o644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	s.cached = &c
	return nil
}

// Merge applies a shallow JSON merge patch on top of the stored
// configuration: top-level keys present in the patch replace the stored
// values wholesale.
func (s *Store) Merge(patch json.RawMessage) (types.Config, error) {
	current, err := s.Get()
	if err != nil {
		return types.Config{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	base, err := json.Marshal(current)
	if err != nil {
		return types.Config{}, fmt.Errorf("encoding current config: %w", err)
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(base, &merged); err != nil {
		return types.Config{}, fmt.Errorf("decoding current config: %w", err)
	}
	var overlay map[string]json.RawMessage
	if err := json.Unmarshal(patch, &overlay); err != nil {
		return types.Config{}, fmt.Errorf("parsing config patch: %w", err)
	}
	for k, v := range overlay {
		merged[k] = v
	}
	raw, err := json.Marshal(merged)
	if err != nil {
		return types.Config{}, fmt.Errorf("encoding merged config: %w", err)
	}
	var c types.Config
	if err := json.Unmarshal(raw, &c); err != nil {
		return types.Config{}, fmt.Errorf("decoding merged config: %w", err)
	}
	if err := s.writeLocked(c); err != nil {
		return types.Config{}, err
	}
	return c, nil
}

// SetDBTotals updates the calibration totals computed from the database.
func (s *Store) SetDBTotals(t types.EnergyTotals) error {
	c, err := s.Get()
	if err != nil {
		return err
	}
	c.DBTotals = t
	return s.Save(c)
}
