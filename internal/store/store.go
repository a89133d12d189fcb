package store

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/S1monlol/notionCanvas/internal/models"
)

var (
	ErrNotFound     = errors.New("user not found")
	ErrInvalidInput = errors.New("invalid input")
)

// User is one person's link to the page service plus their import settings.
type User struct {
	ID            string    `yaml:"id" json:"id"`
	NotionUserID  string    `yaml:"notion_user_id" json:"notionUserId"`
	AccessToken   string    `yaml:"access_token" json:"-"`
	WorkspaceID   string    `yaml:"workspace_id" json:"workspaceId"`
	WorkspaceName string    `yaml:"workspace_name" json:"workspaceName"`
	CalendarURL   string    `yaml:"calendar_url" json:"canvasCalendarUrl"`
	DatabaseID    string    `yaml:"database_id" json:"selectedDatabaseId"`
	Classes       []string  `yaml:"classes" json:"classes"`
	CreatedAt     time.Time `yaml:"created_at" json:"createdAt"`
	UpdatedAt     time.Time `yaml:"updated_at" json:"updatedAt"`
}

// Categories returns the user's classes in order, each named after itself.
func (u *User) Categories() []models.Category {
	return models.CategoriesFromNames(u.Classes)
}

func (u *User) clone() *User {
	c := *u
	c.Classes = append([]string{}, u.Classes...)
	return &c
}

// Identity is what a completed OAuth handshake tells us about a user.
type Identity struct {
	NotionUserID  string
	AccessToken   string
	WorkspaceID   string
	WorkspaceName string
}

// SettingsUpdate changes only the fields that are non-nil. Classes replaces
// the whole list.
type SettingsUpdate struct {
	CalendarURL *string
	DatabaseID  *string
	Classes     *[]string
}

// Store persists users. Implementations are safe for concurrent use.
type Store interface {
	// FindOrCreateUser refreshes the token and workspace of an existing user
	// or creates a new one.
	FindOrCreateUser(ctx context.Context, id Identity) (*User, error)
	UserByAccessToken(ctx context.Context, token string) (*User, error)
	UpdateSettings(ctx context.Context, userID string, upd SettingsUpdate) (*User, error)
	Close() error
}

// NormalizeClasses trims class names and drops blanks, keeping order.
func NormalizeClasses(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			out = append(out, n)
		}
	}
	return out
}

func validateIdentity(id Identity) error {
	if strings.TrimSpace(id.NotionUserID) == "" || strings.TrimSpace(id.AccessToken) == "" {
		return fmt.Errorf("%w: notion user id and access token are required", ErrInvalidInput)
	}
	return nil
}

// BuildFromDSN opens a store by DSN scheme: memory://, file:///path.yaml (or a
// bare path) and postgres://.
func BuildFromDSN(dsn string) (Store, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return NewMemoryStore(), nil
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(strings.TrimSpace(parsed.Scheme)) {
	case "memory", "mem", "inmem":
		return NewMemoryStore(), nil
	case "", "file":
		path, err := dsnPath(parsed, dsn)
		if err != nil {
			return nil, err
		}
		s, err := NewFileStore(path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgres", "postgresql":
		s, err := NewPostgresStore(dsn)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: unsupported store scheme %q", ErrInvalidInput, parsed.Scheme)
	}
}

func dsnPath(parsed *url.URL, raw string) (string, error) {
	if strings.TrimSpace(parsed.Scheme) == "" {
		return strings.TrimSpace(raw), nil
	}
	path := strings.TrimSpace(parsed.Path)
	if path == "" {
		path = strings.TrimSpace(parsed.Opaque)
	}
	if path == "" {
		path = strings.TrimSpace(parsed.Host)
	}
	if path == "" {
		return "", fmt.Errorf("%w: file store needs a path", ErrInvalidInput)
	}
	return path, nil
}
