package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"churchsite/internal/models"
)

// Postgres wraps pgxpool for deployments that keep history in a shared database.
type Postgres struct {
	pool *pgxpool.Pool
	rev  Revisioner
}

// NewPostgres creates a pooled connection to Postgres.
func NewPostgres(ctx context.Context, dsn string, rev Revisioner) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Postgres{pool: pool, rev: rev}, nil
}

func (s *Postgres) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// RunMigrations executes the embedded Postgres migrations in order.
func (s *Postgres) RunMigrations(ctx context.Context) error {
	return runMigrations(ctx, "postgres", func(ctx context.Context, stmt string) error {
		_, err := s.pool.Exec(ctx, stmt)
		return err
	}, pgDuplicateObject)
}

func pgDuplicateObject(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	// duplicate_column, duplicate_table, duplicate_object
	return pgErr.Code == "42701" || pgErr.Code == "42P07" || pgErr.Code == "42710"
}

func (s *Postgres) AppendAudit(ctx context.Context, prompt, promptContext, jobID string, status models.AuditStatus) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO prompt_history (prompt, context, git_hash_before, job_id, job_status)
		VALUES ($1, $2, $3, $4, $5)
	`, prompt, promptContext, revision(ctx, s.rev), emptyToNil(jobID), string(status))
	if err != nil {
		return fmt.Errorf("insert prompt history: %w", err)
	}
	return nil
}

func (s *Postgres) UpdateAuditStatus(ctx context.Context, jobID string, status models.AuditStatus) error {
	_, err := s.pool.Exec(ctx, `UPDATE prompt_history SET job_status = $2 WHERE job_id = $1`, jobID, string(status))
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	return nil
}

func (s *Postgres) UpdateAuditCommit(ctx context.Context, id int64, commitHash *string) error {
	_, err := s.pool.Exec(ctx, `UPDATE prompt_history SET git_hash_after = $2 WHERE id = $1`, id, commitHash)
	if err != nil {
		return fmt.Errorf("update history commit: %w", err)
	}
	return nil
}

func (s *Postgres) ListAudit(ctx context.Context, limit, offset int) ([]models.AuditRecord, int64, error) {
	var total int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM prompt_history`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count prompt history: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, "timestamp", prompt, context, response, git_hash_before, git_hash_after, job_id, job_status
		FROM prompt_history
		ORDER BY "timestamp" DESC, id DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("query prompt history: %w", err)
	}
	defer rows.Close()

	records := []models.AuditRecord{}
	for rows.Next() {
		var (
			rec                          models.AuditRecord
			prompt, pctx, before, status pgtype.Text
			response, after, jobID       pgtype.Text
		)
		if err := rows.Scan(&rec.ID, &rec.Timestamp, &prompt, &pctx, &response, &before, &after, &jobID, &status); err != nil {
			return nil, 0, fmt.Errorf("scan prompt history: %w", err)
		}
		rec.Prompt = prompt.String
		rec.Context = pctx.String
		rec.Response = textPtr(response)
		rec.GitHashBefore = before.String
		rec.GitHashAfter = textPtr(after)
		rec.JobID = textPtr(jobID)
		rec.JobStatus = models.AuditStatus(status.String)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate prompt history: %w", err)
	}
	return records, total, nil
}

func (s *Postgres) CreateMessage(ctx context.Context, m models.Message) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO messages (name, email, phone, message) VALUES ($1, $2, $3, $4) RETURNING id
	`, m.Name, m.Email, m.Phone, m.Message).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert message: %w", err)
	}
	return id, nil
}

func (s *Postgres) ListMessages(ctx context.Context, limit, offset int) ([]models.Message, int64, error) {
	var total int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM messages`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count messages: %w", err)
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, email, phone, message, "timestamp"
		FROM messages
		ORDER BY "timestamp" DESC, id DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("query messages: %w", err)
	}

	messages, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Message, error) {
		var (
			m                           models.Message
			name, email, phone, message pgtype.Text
		)
		err := row.Scan(&m.ID, &name, &email, &phone, &message, &m.Timestamp)
		m.Name, m.Email, m.Phone, m.Message = name.String, email.String, phone.String, message.String
		return m, err
	})
	if err != nil {
		return nil, 0, fmt.Errorf("scan messages: %w", err)
	}
	if messages == nil {
		messages = []models.Message{}
	}
	return messages, total, nil
}

func (s *Postgres) UpdateMessage(ctx context.Context, m models.Message) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE messages SET name = $2, email = $3, phone = $4, message = $5 WHERE id = $1
	`, m.ID, m.Name, m.Email, m.Phone, m.Message)
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	return nil
}

func (s *Postgres) DeleteMessage(ctx context.Context, id int64) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM messages WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

func textPtr(t pgtype.Text) *string {
	if t.Valid {
		return &t.String
	}
	return nil
}
