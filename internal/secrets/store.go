// Package secrets persists the draw controller's pending-draw secrets
// (spec §3's PendingDrawSecret, §6's "Persisted state"): a draw_id → secret
// mapping that exists locally exactly between a successful commit_draw and
// either a successful reveal_draw or an expire_draw for that id. The file
// is the single source of truth across restarts; it is rewritten in full on
// every change under an advisory process-owned lock (spec §5: "single
// writer, full-file rewrites").
package secrets

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
)

// Store is the in-memory, disk-backed map of pending draw secrets. All
// access goes through its methods, which hold an in-process mutex and an
// OS-level advisory lock around every read-modify-write, matching spec
// §6's "writes are full-file rewrites under the process's own lock" and
// §9's documented multi-process limitation (the lock protects this process
// against itself, not against a second operator instance sharing the same
// file).
type Store struct {
	mu      sync.Mutex
	path    string
	lock    *flock.Flock
	pending map[uint64][]byte
}

// Load reads the persisted secrets file at path, creating an empty store
// if the file does not yet exist.
func Load(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("secrets: create data dir: %w", err)
	}

	s := &Store{
		path:    path,
		lock:    flock.New(path + ".lock"),
		pending: make(map[uint64][]byte),
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("secrets: read %s: %w", path, err)
	}
	if len(raw) == 0 {
		return s, nil
	}

	var onDisk map[string]string
	if err := json.Unmarshal(raw, &onDisk); err != nil {
		return nil, fmt.Errorf("secrets: decode %s: %w", path, err)
	}
	for idStr, hexSecret := range onDisk {
		var id uint64
		if _, err := fmt.Sscanf(idStr, "%d", &id); err != nil {
			return nil, fmt.Errorf("secrets: invalid draw id %q in %s: %w", idStr, path, err)
		}
		secret, err := hex.DecodeString(hexSecret)
		if err != nil {
			return nil, fmt.Errorf("secrets: invalid secret hex for draw %s: %w", idStr, err)
		}
		s.pending[id] = secret
	}
	return s, nil
}

// Get returns the secret for drawID and whether it is present.
func (s *Store) Get(drawID uint64) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	secret, ok := s.pending[drawID]
	return secret, ok
}

// Put records secret for drawID and rewrites the file immediately.
func (s *Store) Put(drawID uint64, secret []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[drawID] = secret
	return s.flush()
}

// Delete removes drawID's secret (if present) and rewrites the file
// immediately. Deleting an absent id is a no-op, matching the "expire is
// best-effort" semantics of spec §4.7.
func (s *Store) Delete(drawID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[drawID]; !ok {
		return nil
	}
	delete(s.pending, drawID)
	return s.flush()
}

// flush serializes the full pending map to disk under the file lock.
// Caller must hold s.mu.
func (s *Store) flush() error {
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("secrets: acquire lock: %w", err)
	}
	defer s.lock.Unlock()

	onDisk := make(map[string]string, len(s.pending))
	for id, secret := range s.pending {
		onDisk[fmt.Sprintf("%d", id)] = hex.EncodeToString(secret)
	}

	raw, err := json.MarshalIndent(onDisk, "", "  ")
	if err != nil {
		return fmt.Errorf("secrets: encode: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("secrets: write temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("secrets: rename temp file: %w", err)
	}
	return nil
}
