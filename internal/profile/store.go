// Package profile persists named credential pairs in a single JSON document.
package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/commentbot/internal/apperr"
	"github.com/shehryarbajwa/commentbot/pkg/models"
)

// Store is a file-backed profile store. Reads are served from an in-memory
// copy that is refreshed whenever the file changes on disk.
type Store struct {
	path     string
	logger   *zap.Logger
	mu       sync.RWMutex
	profiles map[string]models.Credentials
	debounce time.Duration
}

// NewStore loads the profiles document at path. A missing file is an empty store.
func NewStore(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Store{
		path:     path,
		logger:   logger,
		profiles: make(map[string]models.Credentials),
		debounce: 100 * time.Millisecond,
	}

	if err := s.reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Get returns the profile with the given name
func (s *Store) Get(name string) (models.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	creds, ok := s.profiles[name]
	if !ok {
		return models.Profile{}, apperr.NotFound("profile %s not found", name)
	}
	return models.Profile{Name: name, Username: creds.Username, Password: creds.Password}, nil
}

// List returns a copy of all stored profiles keyed by name
func (s *Store) List() map[string]models.Credentials {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]models.Credentials, len(s.profiles))
	for name, creds := range s.profiles {
		out[name] = creds
	}
	return out
}

// Names returns the stored profile names in sorted order
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.profiles))
	for name := range s.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Put creates or replaces a profile
func (s *Store) Put(p models.Profile) error {
	if p.Name == "" || p.Username == "" || p.Password == "" {
		return apperr.Validation("all fields are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.copyLocked()
	next[p.Name] = models.Credentials{Username: p.Username, Password: p.Password}
	if err := s.writeLocked(next); err != nil {
		return err
	}
	s.profiles = next
	return nil
}

// Delete removes a profile
func (s *Store) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.profiles[name]; !ok {
		return apperr.NotFound("profile %s not found", name)
	}

	next := s.copyLocked()
	delete(next, name)
	if err := s.writeLocked(next); err != nil {
		return err
	}
	s.profiles = next
	return nil
}

// Watch reloads the store when the profiles file is edited externally. It
// blocks until ctx is done.
func (s *Store) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory; editors and our own writes replace the file.
	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch directory %s: %w", dir, err)
	}

	target := filepath.Clean(s.path)
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(s.debounce)
			} else {
				timer.Reset(s.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			if err := s.reload(); err != nil {
				s.logger.Warn("Failed to reload profiles", zap.String("path", s.path), zap.Error(err))
				continue
			}
			s.logger.Info("Profiles reloaded", zap.String("path", s.path), zap.Int("count", len(s.Names())))

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("Profile watcher error", zap.Error(err))
		}
	}
}

func (s *Store) reload() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.mu.Lock()
		s.profiles = make(map[string]models.Credentials)
		s.mu.Unlock()
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read profiles: %w", err)
	}

	profiles := make(map[string]models.Credentials)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &profiles); err != nil {
			return fmt.Errorf("failed to parse profiles: %w", err)
		}
	}

	s.mu.Lock()
	s.profiles = profiles
	s.mu.Unlock()
	return nil
}

func (s *Store) copyLocked() map[string]models.Credentials {
	next := make(map[string]models.Credentials, len(s.profiles)+1)
	for name, creds := range s.profiles {
		next[name] = creds
	}
	return next
}

// writeLocked replaces the file atomically
func (s *Store) writeLocked(profiles map[string]models.Credentials) error {
	data, err := json.MarshalIndent(profiles, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode profiles: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create profiles directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".profiles-*.json")
	if err != nil {
		return fmt.Errorf("failed to write profiles: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write profiles: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write profiles: %w", err)
	}
	if err := os.Chmod(tmpName, 0600); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write profiles: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write profiles: %w", err)
	}
	return nil
}
