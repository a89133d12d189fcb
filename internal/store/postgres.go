package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const (
	postgresUsersTableName   = "notioncanvas_users"
	postgresOperationTimeout = 5 * time.Second
)

type sqlOpenFunc func(driverName, dsn string) (*sql.DB, error)

// PostgresStore keeps one row per user; classes are an ordered TEXT[] column.
// The table is created on first use.
type PostgresStore struct {
	dsn       string
	tableName string
	openDB    sqlOpenFunc

	initOnce sync.Once
	initErr  error
	db       *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, ErrInvalidInput
	}
	return &PostgresStore{dsn: dsn, tableName: postgresUsersTableName, openDB: sql.Open}, nil
}

func (s *PostgresStore) FindOrCreateUser(ctx context.Context, id Identity) (*User, error) {
	if err := validateIdentity(id); err != nil {
		return nil, err
	}
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()

	query := fmt.Sprintf(`
		INSERT INTO %s (id, notion_user_id, access_token, workspace_id, workspace_name)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (notion_user_id)
		DO UPDATE SET access_token = EXCLUDED.access_token,
			workspace_id = EXCLUDED.workspace_id,
			workspace_name = EXCLUDED.workspace_name,
			updated_at = NOW()
		RETURNING `+userColumns, quoteIdentifier(s.tableName))
	row := s.db.QueryRowContext(ctx, query, uuid.NewString(), id.NotionUserID, id.AccessToken, id.WorkspaceID, id.WorkspaceName)
	return scanUser(row)
}

func (s *PostgresStore) UserByAccessToken(ctx context.Context, token string) (*User, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()

	query := fmt.Sprintf(`SELECT `+userColumns+` FROM %s WHERE access_token = $1 LIMIT 1`, quoteIdentifier(s.tableName))
	return scanUser(s.db.QueryRowContext(ctx, query, token))
}

func (s *PostgresStore) UpdateSettings(ctx context.Context, userID string, upd SettingsUpdate) (*User, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()

	var classes any
	if upd.Classes != nil {
		classes = pq.Array(NormalizeClasses(*upd.Classes))
	}
	query := fmt.Sprintf(`
		UPDATE %s SET
			calendar_url = COALESCE($2, calendar_url),
			database_id = COALESCE($3, database_id),
			classes = COALESCE($4, classes),
			updated_at = NOW()
		WHERE id = $1
		RETURNING `+userColumns, quoteIdentifier(s.tableName))
	row := s.db.QueryRowContext(ctx, query, userID, nullString(upd.CalendarURL), nullString(upd.DatabaseID), classes)
	return scanUser(row)
}

func (s *PostgresStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *PostgresStore) ensureReady() error {
	if s == nil {
		return ErrInvalidInput
	}
	s.initOnce.Do(func() {
		db, err := s.openDB("postgres", s.dsn)
		if err != nil {
			s.initErr = err
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), postgresOperationTimeout)
		defer cancel()

		query := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id TEXT PRIMARY KEY,
				notion_user_id TEXT NOT NULL UNIQUE,
				access_token TEXT NOT NULL,
				workspace_id TEXT NOT NULL DEFAULT '',
				workspace_name TEXT NOT NULL DEFAULT '',
				calendar_url TEXT NOT NULL DEFAULT '',
				database_id TEXT NOT NULL DEFAULT '',
				classes TEXT[] NOT NULL DEFAULT '{}',
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`, quoteIdentifier(s.tableName))
		if _, err := db.ExecContext(ctx, query); err != nil {
			_ = db.Close()
			s.initErr = err
			return
		}
		s.db = db
	})
	return s.initErr
}

const userColumns = `id, notion_user_id, access_token, workspace_id, workspace_name, calendar_url, database_id, classes, created_at, updated_at`

func scanUser(row *sql.Row) (*User, error) {
	var u User
	var classes pq.StringArray
	err := row.Scan(&u.ID, &u.NotionUserID, &u.AccessToken, &u.WorkspaceID, &u.WorkspaceName,
		&u.CalendarURL, &u.DatabaseID, &classes, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.Classes = append([]string{}, classes...)
	return &u, nil
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func quoteIdentifier(identifier string) string {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return `""`
	}
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}
