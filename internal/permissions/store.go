package permissions

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/tembedos/runtime/internal/shared/errdefs"
)

// Store persists per-app grants in a dedicated JSON file, independent of the
// in-memory app registry, so grants survive a registry rebuild.
//
// Grant/Revoke are read-modify-write on a single scalar; concurrent callers
// for the SAME app id may lose an update. The store's mutex keeps the map and
// file consistent, but callers must not grant and revoke one app concurrently.
type Store struct {
	path   string
	mu     sync.Mutex
	grants map[string]Permission
	log    *zap.Logger
}

// NewStore opens (or creates) the grant file at path.
func NewStore(path string, log *zap.Logger) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("store path: %w", errdefs.ErrInvalidArgument)
	}
	if log == nil {
		log = zap.NewNop()
	}

	s := &Store{
		path:   path,
		grants: make(map[string]Permission),
		log:    log,
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &s.grants); err != nil {
			return nil, fmt.Errorf("parse grant file %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// First boot: empty store.
	default:
		return nil, fmt.Errorf("read grant file %s: %w", path, err)
	}

	return s, nil
}

// Load returns the stored grant for appID. A missing record means zero
// permissions, never an error.
func (s *Store) Load(appID string) Permission {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.grants[appID]
}

// Save replaces the stored grant for appID.
func (s *Store) Save(appID string, p Permission) error {
	if appID == "" {
		return errdefs.ErrInvalidArgument
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.grants[appID] = p
	if err := s.persist(); err != nil {
		return err
	}

	s.log.Info("saved permissions",
		zap.String("app_id", appID),
		zap.String("permissions", p.String()))
	return nil
}

// Grant widens the stored grant by the given bits.
func (s *Store) Grant(appID string, p Permission) error {
	if appID == "" {
		return errdefs.ErrInvalidArgument
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.grants[appID] |= p
	return s.persist()
}

// Revoke narrows the stored grant by the given bits.
func (s *Store) Revoke(appID string, p Permission) error {
	if appID == "" {
		return errdefs.ErrInvalidArgument
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.grants[appID] &^= p
	return s.persist()
}

// Delete removes the stored grant entirely. Used at uninstall, when the app
// identity itself ceases to exist.
func (s *Store) Delete(appID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.grants[appID]; !ok {
		return nil
	}
	delete(s.grants, appID)
	return s.persist()
}

// Check reports whether the stored grant contains ANY of the required bits.
// Callers pass a single bit when they mean "this exact capability" (the
// native bridge always does) and a composite mask when any one of a family
// suffices (the sandbox RF heuristic).
func (s *Store) Check(appID string, required Permission) bool {
	if appID == "" {
		return false
	}
	granted := s.Load(appID)
	ok := granted.Has(required)
	if !ok {
		s.log.Warn("permission denied",
			zap.String("app_id", appID),
			zap.String("required", required.String()),
			zap.String("granted", granted.String()))
	}
	return ok
}

// persist writes the grant map atomically. Caller holds s.mu.
func (s *Store) persist() error {
	data, err := json.MarshalIndent(s.grants, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal grants: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create grant dir: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write grants: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("commit grants: %w", err)
	}
	return nil
}
