package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"churchsite/internal/models"
)

// SQLite stores rows in a single database file.
type SQLite struct {
	db  *sql.DB
	rev Revisioner
}

// NewSQLite opens (creating if needed) the database file at path.
func NewSQLite(path string, rev Revisioner) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}
	return &SQLite{db: db, rev: rev}, nil
}

func (s *SQLite) Close() {
	if s.db != nil {
		_ = s.db.Close()
	}
}

// RunMigrations creates missing tables and columns.
func (s *SQLite) RunMigrations(ctx context.Context) error {
	return runMigrations(ctx, "sqlite", func(ctx context.Context, stmt string) error {
		_, err := s.db.ExecContext(ctx, stmt)
		return err
	}, sqliteDuplicateColumn)
}

func sqliteDuplicateColumn(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.Code == sqlite3.ErrError && strings.Contains(sqliteErr.Error(), "duplicate column name")
}

func (s *SQLite) AppendAudit(ctx context.Context, prompt, promptContext, jobID string, status models.AuditStatus) error {
	rev := revision(ctx, s.rev)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO prompt_history (timestamp, prompt, context, git_hash_before, job_id, job_status)
		VALUES (?, ?, ?, ?, ?, ?)
	`, time.Now().UTC(), prompt, promptContext, rev, emptyToNil(jobID), string(status))
	if err != nil {
		return fmt.Errorf("insert prompt history: %w", err)
	}
	return nil
}

func (s *SQLite) UpdateAuditStatus(ctx context.Context, jobID string, status models.AuditStatus) error {
	_, err := s.db.ExecContext(ctx, `UPDATE prompt_history SET job_status = ? WHERE job_id = ?`, string(status), jobID)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	return nil
}

func (s *SQLite) UpdateAuditCommit(ctx context.Context, id int64, commitHash *string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE prompt_history SET git_hash_after = ? WHERE id = ?`, commitHash, id)
	if err != nil {
		return fmt.Errorf("update history commit: %w", err)
	}
	return nil
}

func (s *SQLite) ListAudit(ctx context.Context, limit, offset int) ([]models.AuditRecord, int64, error) {
	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM prompt_history`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count prompt history: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, timestamp, prompt, context, response, git_hash_before, git_hash_after, job_id, job_status
		FROM prompt_history
		ORDER BY timestamp DESC, id DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("query prompt history: %w", err)
	}
	defer rows.Close()

	records := []models.AuditRecord{}
	for rows.Next() {
		var (
			rec                          models.AuditRecord
			ts                           sql.NullTime
			prompt, pctx, before, status sql.NullString
			response, after, jobID       sql.NullString
		)
		if err := rows.Scan(&rec.ID, &ts, &prompt, &pctx, &response, &before, &after, &jobID, &status); err != nil {
			return nil, 0, fmt.Errorf("scan prompt history: %w", err)
		}
		rec.Timestamp = ts.Time
		rec.Prompt = prompt.String
		rec.Context = pctx.String
		rec.Response = nullStringPtr(response)
		rec.GitHashBefore = before.String
		rec.GitHashAfter = nullStringPtr(after)
		rec.JobID = nullStringPtr(jobID)
		rec.JobStatus = models.AuditStatus(status.String)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate prompt history: %w", err)
	}
	return records, total, nil
}

func (s *SQLite) CreateMessage(ctx context.Context, m models.Message) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (name, email, phone, message, timestamp) VALUES (?, ?, ?, ?, ?)
	`, m.Name, m.Email, m.Phone, m.Message, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("message id: %w", err)
	}
	return id, nil
}

func (s *SQLite) ListMessages(ctx context.Context, limit, offset int) ([]models.Message, int64, error) {
	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count messages: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, email, phone, message, timestamp
		FROM messages
		ORDER BY timestamp DESC, id DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		var (
			m                           models.Message
			name, email, phone, message sql.NullString
			ts                          sql.NullTime
		)
		if err := rows.Scan(&m.ID, &name, &email, &phone, &message, &ts); err != nil {
			return nil, 0, fmt.Errorf("scan message: %w", err)
		}
		m.Name, m.Email, m.Phone, m.Message = name.String, email.String, phone.String, message.String
		m.Timestamp = ts.Time
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, total, nil
}

func (s *SQLite) UpdateMessage(ctx context.Context, m models.Message) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE messages SET name = ?, email = ?, phone = ?, message = ? WHERE id = ?
	`, m.Name, m.Email, m.Phone, m.Message, m.ID)
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	return nil
}

func (s *SQLite) DeleteMessage(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

func revision(ctx context.Context, rev Revisioner) string {
	if rev == nil {
		return "unknown"
	}
	return rev.Short(ctx)
}

func nullStringPtr(v sql.NullString) *string {
	if v.Valid {
		return &v.String
	}
	return nil
}

func emptyToNil(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
