package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// MemoryStore keeps users in a map. A file store is a MemoryStore that
// writes its map to YAML after every change.
type MemoryStore struct {
	mu    sync.Mutex
	users map[string]*User
	path  string
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: map[string]*User{}, now: time.Now}
}

type fileSnapshot struct {
	Users []*User `yaml:"users"`
}

// NewFileStore opens or creates a YAML-backed store at path.
func NewFileStore(path string) (*MemoryStore, error) {
	s := NewMemoryStore()
	s.path = path
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, err
	}
	var snap fileSnapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	for _, u := range snap.Users {
		if u == nil || u.ID == "" {
			continue
		}
		s.users[u.ID] = u
	}
	return s, nil
}

func (s *MemoryStore) FindOrCreateUser(_ context.Context, id Identity) (*User, error) {
	if err := validateIdentity(id); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	for _, u := range s.users {
		if u.NotionUserID == id.NotionUserID {
			u.AccessToken = id.AccessToken
			u.WorkspaceID = id.WorkspaceID
			u.WorkspaceName = id.WorkspaceName
			u.UpdatedAt = now
			if err := s.persistLocked(); err != nil {
				return nil, err
			}
			return u.clone(), nil
		}
	}

	u := &User{
		ID:            uuid.NewString(),
		NotionUserID:  id.NotionUserID,
		AccessToken:   id.AccessToken,
		WorkspaceID:   id.WorkspaceID,
		WorkspaceName: id.WorkspaceName,
		Classes:       []string{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.users[u.ID] = u
	if err := s.persistLocked(); err != nil {
		delete(s.users, u.ID)
		return nil, err
	}
	return u.clone(), nil
}

func (s *MemoryStore) UserByAccessToken(_ context.Context, token string) (*User, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.AccessToken == token {
			return u.clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) UpdateSettings(_ context.Context, userID string, upd SettingsUpdate) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, ErrNotFound
	}
	prev := u.clone()
	if upd.CalendarURL != nil {
		u.CalendarURL = *upd.CalendarURL
	}
	if upd.DatabaseID != nil {
		u.DatabaseID = *upd.DatabaseID
	}
	if upd.Classes != nil {
		u.Classes = NormalizeClasses(*upd.Classes)
	}
	u.UpdatedAt = s.now().UTC()
	if err := s.persistLocked(); err != nil {
		s.users[userID] = prev
		return nil, err
	}
	return u.clone(), nil
}

func (s *MemoryStore) Close() error { return nil }

// persistLocked writes the snapshot atomically when the store is file-backed.
func (s *MemoryStore) persistLocked() error {
	if s.path == "" {
		return nil
	}
	snap := fileSnapshot{Users: make([]*User, 0, len(s.users))}
	for _, u := range s.users {
		snap.Users = append(snap.Users, u)
	}
	sort.Slice(snap.Users, func(i, j int) bool { return snap.Users[i].CreatedAt.Before(snap.Users[j].CreatedAt) })
	data, err := yaml.Marshal(snap)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".notioncanvas-users-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, s.path)
}
