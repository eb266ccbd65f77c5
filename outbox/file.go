package outbox

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileStore persists the queue as a JSON array in a single file, the
// desktop analog of the browser's local-storage key. Writes go through a
// temp file + rename so a crash mid-write cannot truncate the queue.
//
// The file is shared state: two processes flushing the same path can both
// attempt the same item. That matches the original's cross-tab behavior
// and is an accepted gap, not a guarantee.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a FileStore at path. The parent directory is
// created if missing.
func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create queue directory: %w", err)
	}
	return &FileStore{path: path}, nil
}

// Load returns every persisted item, oldest first. A missing file is an
// empty queue.
func (s *FileStore) Load() ([]Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

// Append adds item at the tail and persists immediately.
func (s *FileStore) Append(item Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.loadLocked()
	if err != nil {
		return err
	}
	return s.writeLocked(append(items, item))
}

// Remove deletes the items with the given IDs.
func (s *FileStore) Remove(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.loadLocked()
	if err != nil {
		return err
	}
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := items[:0]
	for _, it := range items {
		if !drop[it.ID] {
			kept = append(kept, it)
		}
	}
	return s.writeLocked(kept)
}

func (s *FileStore) loadLocked() ([]Item, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read queue file: %w", err)
	}
	var items []Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("corrupt queue file %s: %w", s.path, err)
	}
	return items, nil
}

func (s *FileStore) writeLocked(items []Item) error {
	if items == nil {
		items = []Item{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write queue file: %w", err)
	}
	return os.Rename(tmp, s.path)
}
