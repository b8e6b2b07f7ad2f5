package client

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/Skryldev/findmybuddy/models"
)

// SessionFile is the file name of the persisted snapshot.
const SessionFile = "find_my_buddy_auth_user.json"

// SessionStore persists the signed-in user. Load returns nil, nil when there
// is no session.
type SessionStore interface {
	Load() (*models.User, error)
	Save(u *models.User) error
	Clear() error
}

// FileSessionStore keeps the snapshot as one JSON file.
type FileSessionStore struct {
	path string
	mu   sync.Mutex
}

// NewFileSessionStore stores the snapshot in dir/find_my_buddy_auth_user.json.
func NewFileSessionStore(dir string) *FileSessionStore {
	return &FileSessionStore{path: filepath.Join(dir, SessionFile)}
}

// Path is the snapshot location.
func (s *FileSessionStore) Path() string { return s.path }

// Load reads the snapshot. A missing or unreadable snapshot means no session.
func (s *FileSessionStore) Load() (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var u models.User
	if err := json.Unmarshal(raw, &u); err != nil || u.ID == "" {
		return nil, nil
	}
	return &u, nil
}

// Save replaces the snapshot atomically.
func (s *FileSessionStore) Save(u *models.User) error {
	if u == nil {
		return s.Clear()
	}
	raw, err := json.Marshal(u)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".session-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

// Clear removes the snapshot.
func (s *FileSessionStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// MemorySessionStore keeps the snapshot in process memory.
type MemorySessionStore struct {
	mu sync.Mutex
	u  *models.User
}

func NewMemorySessionStore() *MemorySessionStore { return &MemorySessionStore{} }

func (s *MemorySessionStore) Load() (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.u == nil {
		return nil, nil
	}
	cp := *s.u
	return &cp, nil
}

func (s *MemorySessionStore) Save(u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u == nil {
		s.u = nil
		return nil
	}
	cp := *u
	s.u = &cp
	return nil
}

func (s *MemorySessionStore) Clear() error { return s.Save(nil) }

var (
	_ SessionStore = (*FileSessionStore)(nil)
	_ SessionStore = (*MemorySessionStore)(nil)
)
