// Package store persists the AI prompt history and contact messages in a
// relational database. SQLite is the default backend; PostgreSQL is used
// when a DSN is configured.
package store

import (
	"context"

	"churchsite/internal/config"
	"churchsite/internal/models"
)

// Revisioner reports the current source revision for new audit rows.
type Revisioner interface {
	Short(ctx context.Context) string
}

// Store is implemented by every backend.
type Store interface {
	// AppendAudit inserts a prompt_history row stamped with the current revision.
	AppendAudit(ctx context.Context, prompt, promptContext, jobID string, status models.AuditStatus) error
	// UpdateAuditStatus sets job_status on every row linked to jobID.
	UpdateAuditStatus(ctx context.Context, jobID string, status models.AuditStatus) error
	// UpdateAuditCommit sets git_hash_after on row id. The update is
	// unconditional: an unknown id is not an error.
	UpdateAuditCommit(ctx context.Context, id int64, commitHash *string) error
	// ListAudit returns a page of rows newest first plus the total row count.
	ListAudit(ctx context.Context, limit, offset int) ([]models.AuditRecord, int64, error)

	CreateMessage(ctx context.Context, m models.Message) (int64, error)
	ListMessages(ctx context.Context, limit, offset int) ([]models.Message, int64, error)
	UpdateMessage(ctx context.Context, m models.Message) error
	DeleteMessage(ctx context.Context, id int64) error

	RunMigrations(ctx context.Context) error
	Close()
}

// Open picks the backend from cfg and connects to it.
func Open(ctx context.Context, cfg config.Config, rev Revisioner) (Store, error) {
	if cfg.PostgresDSN != "" {
		pg, err := NewPostgres(ctx, cfg.PostgresDSN, rev)
		if err != nil {
			return nil, err
		}
		return pg, nil
	}
	lite, err := NewSQLite(cfg.DBFile, rev)
	if err != nil {
		return nil, err
	}
	return lite, nil
}
