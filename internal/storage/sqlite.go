package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "github.com/filippgl/tagall-bot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

// Open initializes the SQLite store at cfg.Path and applies migrations.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	path := cfg.Path
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) ObserveMember(ctx context.Context, chatID int64, m Member, seenAt time.Time) error {
	if seenAt.IsZero() {
		seenAt = time.Now()
	}
	ms := seenAt.UnixMilli()
	// first_seen is written once; last_seen only ever advances.
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_members(chat_id, user_id, first_name, last_name, username, is_bot, first_seen, last_seen)
		 VALUES(?,?,?,?,?,?,?,?)
		 ON CONFLICT(chat_id, user_id) DO UPDATE SET
		   first_name = excluded.first_name,
		   last_name  = excluded.last_name,
		   username   = excluded.username,
		   is_bot     = excluded.is_bot,
		   last_seen  = max(last_seen, excluded.last_seen)`,
		chatID, m.UserID, m.FirstName, m.LastName, m.Username, boolInt(m.IsBot), ms, ms,
	)
	return err
}

const memberCols = `user_id, first_name, last_name, username, is_bot, first_seen, last_seen`

func (s *sqliteStore) FetchRoster(ctx context.Context, chatID int64, limit int) ([]Member, error) {
	if limit <= 0 {
		limit = -1 // sqlite: no limit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+memberCols+` FROM chat_members
		 WHERE chat_id = ? AND is_bot = 0
		 ORDER BY first_seen ASC, user_id ASC
		 LIMIT ?`,
		chatID, limit,
	)
	if err != nil {
		return nil, err
	}
	return scanMembers(rows)
}

func (s *sqliteStore) FetchTeamMembers(ctx context.Context, chatID int64, slug string) ([]Member, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT cm.user_id, cm.first_name, cm.last_name, cm.username, cm.is_bot, cm.first_seen, cm.last_seen
		 FROM team_members tm
		 JOIN chat_members cm ON cm.chat_id = tm.chat_id AND cm.user_id = tm.user_id
		 WHERE tm.chat_id = ? AND tm.slug = ?
		 ORDER BY cm.first_seen ASC, cm.user_id ASC`,
		chatID, slug,
	)
	if err != nil {
		return nil, err
	}
	return scanMembers(rows)
}

func (s *sqliteStore) FetchTeamCandidates(ctx context.Context, chatID int64, slug string, limit int) ([]Member, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+memberCols+` FROM chat_members
		 WHERE chat_id = ? AND is_bot = 0
		   AND user_id NOT IN (SELECT user_id FROM team_members WHERE chat_id = ? AND slug = ?)
		 ORDER BY first_seen ASC, user_id ASC
		 LIMIT ?`,
		chatID, chatID, slug, limit,
	)
	if err != nil {
		return nil, err
	}
	return scanMembers(rows)
}

func scanMembers(rows *sql.Rows) ([]Member, error) {
	defer rows.Close()
	var out []Member
	for rows.Next() {
		var m Member
		var isBot int
		var first, last int64
		if err := rows.Scan(&m.UserID, &m.FirstName, &m.LastName, &m.Username, &isBot, &first, &last); err != nil {
			return nil, err
		}
		m.IsBot = isBot != 0
		m.FirstSeen = time.UnixMilli(first)
		m.LastSeen = time.UnixMilli(last)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *sqliteStore) ResolveTeamSlug(ctx context.Context, chatID int64, token string) (string, bool, error) {
	var slug string
	err := s.db.QueryRowContext(ctx,
		`SELECT slug FROM teams WHERE chat_id = ? AND lower(slug) = lower(?)`,
		chatID, token,
	).Scan(&slug)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return slug, true, nil
}

func (s *sqliteStore) CreateTeam(ctx context.Context, chatID int64, slug string) error {
	if _, exists, err := s.ResolveTeamSlug(ctx, chatID, slug); err != nil {
		return err
	} else if exists {
		return ErrTeamExists
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO teams(chat_id, slug, created_at) VALUES(?,?,?)`,
		chatID, slug, time.Now().UnixMilli(),
	)
	return err
}

func (s *sqliteStore) RenameTeam(ctx context.Context, chatID int64, oldSlug, newSlug string) error {
	stored, exists, err := s.ResolveTeamSlug(ctx, chatID, oldSlug)
	if err != nil {
		return err
	}
	if !exists {
		return ErrTeamNotFound
	}
	// A pure case change renames the same team; anything else must not
	// collide with an existing slug.
	if !strings.EqualFold(oldSlug, newSlug) {
		if _, taken, err := s.ResolveTeamSlug(ctx, chatID, newSlug); err != nil {
			return err
		} else if taken {
			return ErrTeamExists
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE teams SET slug = ? WHERE chat_id = ? AND slug = ?`,
		newSlug, chatID, stored,
	); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE team_members SET slug = ? WHERE chat_id = ? AND slug = ?`,
		newSlug, chatID, stored,
	); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *sqliteStore) DeleteTeam(ctx context.Context, chatID int64, slug string) error {
	stored, exists, err := s.ResolveTeamSlug(ctx, chatID, slug)
	if err != nil {
		return err
	}
	if !exists {
		return ErrTeamNotFound
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM team_members WHERE chat_id = ? AND slug = ?`, chatID, stored,
	); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM teams WHERE chat_id = ? AND slug = ?`, chatID, stored,
	); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *sqliteStore) ListTeams(ctx context.Context, chatID int64) ([]TeamInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT t.slug, COUNT(tm.user_id)
		 FROM teams t
		 LEFT JOIN team_members tm ON tm.chat_id = t.chat_id AND tm.slug = t.slug
		 WHERE t.chat_id = ?
		 GROUP BY t.slug
		 ORDER BY lower(t.slug) ASC`,
		chatID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TeamInfo
	for rows.Next() {
		var ti TeamInfo
		if err := rows.Scan(&ti.Slug, &ti.Members); err != nil {
			return nil, err
		}
		out = append(out, ti)
	}
	return out, rows.Err()
}

func (s *sqliteStore) AddTeamMember(ctx context.Context, chatID int64, slug string, userID int64) error {
	stored, exists, err := s.ResolveTeamSlug(ctx, chatID, slug)
	if err != nil {
		return err
	}
	if !exists {
		return ErrTeamNotFound
	}

	var onRoster int
	err = s.db.QueryRowContext(ctx,
		`SELECT 1 FROM chat_members WHERE chat_id = ? AND user_id = ? AND is_bot = 0`,
		chatID, userID,
	).Scan(&onRoster)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotOnRoster
	}
	if err != nil {
		return err
	}

	// Duplicate add is a no-op.
	_, err = s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO team_members(chat_id, slug, user_id) VALUES(?,?,?)`,
		chatID, stored, userID,
	)
	return err
}

func (s *sqliteStore) RemoveTeamMember(ctx context.Context, chatID int64, slug string, userID int64) error {
	stored, exists, err := s.ResolveTeamSlug(ctx, chatID, slug)
	if err != nil {
		return err
	}
	if !exists {
		return ErrTeamNotFound
	}
	_, err = s.db.ExecContext(ctx,
		`DELETE FROM team_members WHERE chat_id = ? AND slug = ? AND user_id = ?`,
		chatID, stored, userID,
	)
	return err
}

func (s *sqliteStore) AdminOnly(ctx context.Context, chatID int64) (bool, error) {
	var v int
	err := s.db.QueryRowContext(ctx,
		`SELECT admin_only FROM chat_settings WHERE chat_id = ?`, chatID,
	).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		// Absence implies the restrictive default.
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

func (s *sqliteStore) SetAdminOnly(ctx context.Context, chatID int64, v bool) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_settings(chat_id, admin_only) VALUES(?,?)
		 ON CONFLICT(chat_id) DO UPDATE SET admin_only = excluded.admin_only`,
		chatID, boolInt(v),
	)
	return err
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
