// Package store implements the local state store (spec.md §4.3): two
// independent JSON-document tables, servers and snapshots, persisted in a
// fixed per-user directory alongside the reconcile TTL sentinel and the
// shared SSH key.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gsmc-io/gsmc/internal/model"
)

const (
	serversFile   = "servers.json"
	snapshotsFile = "snapshots.json"
	sentinelFile  = ".last_reconcile"
	keysDir       = "keys"
	keyFile       = "gsmc-key.pem"
)

// DefaultDir returns the fixed per-user state directory, ~/.gsmc by
// default, honoring $GSMC_HOME for tests and unusual deployments.
func DefaultDir() (string, error) {
	if d := os.Getenv("GSMC_HOME"); d != "" {
		return d, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: resolve home dir: %w", err)
	}
	return filepath.Join(home, ".gsmc"), nil
}

// Store is the facade the rest of the core depends on: servers, snapshots,
// and the reconcile TTL sentinel, all rooted at one directory.
type Store struct {
	dir       string
	servers   *table[model.Server]
	snapshots *table[model.Snapshot]
}

func Open(dir string) (*Store, error) {
	servers, err := newTable(dir, serversFile, func(s *model.Server) { s.WithDefaults() }, func(s model.Server) string { return s.ID })
	if err != nil {
		return nil, err
	}
	snapshots, err := newTable(dir, snapshotsFile, func(s *model.Snapshot) { s.WithDefaults() }, func(s model.Snapshot) string { return s.ID })
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Join(dir, keysDir), 0o700); err != nil {
		return nil, fmt.Errorf("store: create keys dir: %w", err)
	}
	return &Store{dir: dir, servers: servers, snapshots: snapshots}, nil
}

func (s *Store) KeyPath() string {
	return filepath.Join(s.dir, keysDir, keyFile)
}

// --- servers ---

func (s *Store) GetServer(id string) (model.Server, bool, error) {
	return s.servers.Get(id)
}

// GetServerByNameOrID implements spec.md's id-exact -> name-exact ->
// id-prefix lookup order.
func (s *Store) GetServerByNameOrID(nameOrID string) (model.Server, bool, error) {
	return s.servers.GetByNameOrID(nameOrID, func(r model.Server) string { return r.Name })
}

func (s *Store) SaveServer(rec model.Server) error {
	return s.servers.Save(rec)
}

func (s *Store) DeleteServer(id string) error {
	return s.servers.Delete(id)
}

func (s *Store) ListServers() ([]model.Server, error) {
	return s.servers.ListAll()
}

func (s *Store) UpdateServerStatus(id string, status model.Status) error {
	return s.servers.UpdateField(id, func(r *model.Server) { r.Status = status })
}

func (s *Store) UpdateServerField(id string, fn func(*model.Server)) error {
	return s.servers.UpdateField(id, fn)
}

func (s *Store) ServerNameExists(name string) (bool, error) {
	return s.servers.NameExists(name, func(r model.Server) string { return r.Name })
}

// --- snapshots ---

func (s *Store) GetSnapshot(id string) (model.Snapshot, bool, error) {
	return s.snapshots.Get(id)
}

func (s *Store) SaveSnapshot(rec model.Snapshot) error {
	return s.snapshots.Save(rec)
}

func (s *Store) DeleteSnapshot(id string) error {
	return s.snapshots.Delete(id)
}

func (s *Store) ListSnapshots() ([]model.Snapshot, error) {
	return s.snapshots.ListAll()
}

// --- reconcile TTL sentinel (spec.md §4.2 "Auto-reconcile") ---

func (s *Store) sentinelPath() string {
	return filepath.Join(s.dir, sentinelFile)
}

// TouchReconciled records that a reconcile just completed.
func (s *Store) TouchReconciled(at time.Time) error {
	b := []byte(at.UTC().Format(time.RFC3339Nano))
	return os.WriteFile(s.sentinelPath(), b, 0o600)
}

// ReconcileAge returns how long it's been since the last reconcile, or a
// very large duration if the sentinel is absent (so callers treat "never
// reconciled" the same as "stale").
func (s *Store) ReconcileAge() time.Duration {
	b, err := os.ReadFile(s.sentinelPath())
	if err != nil {
		return time.Duration(1<<63 - 1)
	}
	t, err := time.Parse(time.RFC3339Nano, string(b))
	if err != nil {
		return time.Duration(1<<63 - 1)
	}
	return time.Since(t)
}
