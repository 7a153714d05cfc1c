// Copyright (c) 2025 Darkistan
// Routermaster - Telegram gateway for remote router script execution
// This source code is licensed under the MIT license found in the LICENSE file.

// package audit persists the durable audit trail: script executions,
// access-list edits, access requests, and rejected admin operations.
// Unlike the in-memory session state, this survives restarts.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/darkistan/routermaster/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS audit_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp TEXT NOT NULL,
	username TEXT NOT NULL,
	action TEXT NOT NULL,
	details TEXT NOT NULL
);`

// auditLogModel maps the audit_log table for Bun queries.
type auditLogModel struct {
	bun.BaseModel `bun:"table:audit_log"`
	ID            int64  `bun:"id,pk,autoincrement"`
	Timestamp     string `bun:"timestamp"`
	Username      string `bun:"username"`
	Action        string `bun:"action"`
	Details       string `bun:"details"`
}

// Store is the SQLite-backed audit log.
type Store struct {
	sqlDB *sql.DB
	bun   *bun.DB

	now func() time.Time // test seam
}

// Open opens (and if needed creates) the audit database at dsn.
func Open(dsn string) (*Store, error) {
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("create audit schema: %w", err)
	}
	return &Store{
		sqlDB: sqlDB,
		bun:   bun.NewDB(sqlDB, sqlitedialect.New()),
		now:   time.Now,
	}, nil
}

// LogAction appends one audit entry. The username is the acting chat
// user's identifier, not an OS account.
func (s *Store) LogAction(username, action, details string) error {
	ctx := context.Background()
	entry := &auditLogModel{
		Timestamp: s.now().UTC().Format(time.RFC3339),
		Username:  username,
		Action:    action,
		Details:   details,
	}
	_, err := s.bun.NewInsert().Model(entry).Exec(ctx)
	return err
}

// Entries returns all audit entries, newest first.
func (s *Store) Entries() ([]model.AuditLogEntry, error) {
	ctx := context.Background()
	var rows []auditLogModel
	if err := s.bun.NewSelect().Model(&rows).OrderExpr("timestamp DESC, id DESC").Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]model.AuditLogEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.AuditLogEntry{
			ID:        r.ID,
			Timestamp: r.Timestamp,
			Username:  r.Username,
			Action:    r.Action,
			Details:   r.Details,
		})
	}
	return out, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.sqlDB.Close()
}
