// Package store persists each player's last known position to a
// human-readable YAML file, so a player who reconnects after a restart
// resumes near where they left off rather than at each backend's
// default spawn. Saves run on a ticker and once more on Close.
package store

import (
	"context"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/relaycraft/multimc/internal/logging"
	"github.com/relaycraft/multimc/internal/mapping"
)

// Position is one player's last known location, recorded on every
// disconnect, not only on shutdown.
type Position struct {
	Backend mapping.BackendID `yaml:"backend"`
	X       float64           `yaml:"x"`
	Y       float64           `yaml:"y"`
	Z       float64           `yaml:"z"`
	Yaw     float32           `yaml:"yaw"`
	Pitch   float32           `yaml:"pitch"`
}

type document struct {
	Players map[string]Position `yaml:"players"`
}

// Store is the in-memory, periodically-flushed position table.
type Store struct {
	mu       sync.RWMutex
	path     string
	dirty    bool
	players  map[string]Position
	cancel   context.CancelFunc
}

// Open loads path if it exists (a missing file is not an error, matching
// a first-ever run) and returns a ready Store.
func Open(path string) (*Store, error) {
	s := &Store{path: path, players: make(map[string]Position)}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Players != nil {
		s.players = doc.Players
	}
	return s, nil
}

// Get returns the saved position for a player name, if any.
func (s *Store) Get(name string) (Position, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.players[name]
	return p, ok
}

// Set records a player's position in memory; it is flushed to disk by
// the next periodic save or by Close.
func (s *Store) Set(name string, p Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.players[name] = p
	s.dirty = true
}

// Save writes the current table to disk unconditionally.
func (s *Store) Save() error {
	s.mu.Lock()
	doc := document{Players: make(map[string]Position, len(s.players))}
	for k, v := range s.players {
		doc.Players[k] = v
	}
	s.dirty = false
	s.mu.Unlock()

	data, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// StartAutoSave launches a periodic-save worker. interval <= 0 disables
// the worker (the store still saves on Close).
func (s *Store) StartAutoSave(interval time.Duration) {
	if interval <= 0 {
		logging.L().Infof("position store autosave disabled (no interval configured)")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.mu.RLock()
				dirty := s.dirty
				s.mu.RUnlock()
				if !dirty {
					continue
				}
				if err := s.Save(); err != nil {
					logging.L().Warningf("position store: periodic save failed: %v", err)
				} else {
					logging.L().Debugf("position store: periodic save completed")
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Close stops the autosave worker (if running) and saves one final time.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.mu.Unlock()
	return s.Save()
}
