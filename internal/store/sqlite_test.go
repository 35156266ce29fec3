package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"churchsite/internal/gitrev"
	"churchsite/internal/models"
)

func newTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	st, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"), gitrev.Static("abc1234"))
	require.NoError(t, err)
	t.Cleanup(st.Close)
	require.NoError(t, st.RunMigrations(context.Background()))
	return st
}

func TestSQLiteMigrationsAreRepeatable(t *testing.T) {
	st := newTestSQLite(t)
	require.NoError(t, st.RunMigrations(context.Background()))
	require.NoError(t, st.RunMigrations(context.Background()))
}

func TestSQLiteAppendAndUpdateStatus(t *testing.T) {
	ctx := context.Background()
	st := newTestSQLite(t)

	require.NoError(t, st.AppendAudit(ctx, "make it blue", "<p>hi</p>", "job-1", models.AuditProcessing))
	require.NoError(t, st.UpdateAuditStatus(ctx, "job-1", models.AuditFailed))

	records, total, err := st.ListAudit(ctx, 10, 0)
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, "make it blue", rec.Prompt)
	assert.Equal(t, "<p>hi</p>", rec.Context)
	assert.Equal(t, "abc1234", rec.GitHashBefore)
	assert.Equal(t, models.AuditFailed, rec.JobStatus)
	require.NotNil(t, rec.JobID)
	assert.Equal(t, "job-1", *rec.JobID)
	assert.Nil(t, rec.GitHashAfter)
	assert.Nil(t, rec.Response)
	assert.False(t, rec.Timestamp.IsZero())
}

func TestSQLiteAppendWithoutRevisioner(t *testing.T) {
	ctx := context.Background()
	st, err := NewSQLite(filepath.Join(t.TempDir(), "norev.db"), nil)
	require.NoError(t, err)
	defer st.Close()
	require.NoError(t, st.RunMigrations(ctx))

	require.NoError(t, st.AppendAudit(ctx, "p", "", "", models.AuditPending))
	records, _, err := st.ListAudit(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "unknown", records[0].GitHashBefore)
	assert.Nil(t, records[0].JobID)
}

func TestSQLiteListPagination(t *testing.T) {
	ctx := context.Background()
	st := newTestSQLite(t)

	for i := 1; i <= 25; i++ {
		require.NoError(t, st.AppendAudit(ctx, fmt.Sprintf("prompt %d", i), "", fmt.Sprintf("job-%d", i), models.AuditProcessing))
	}

	// page 2 with limit 10: the 11th..20th newest rows
	records, total, err := st.ListAudit(ctx, 10, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 25, total)
	require.Len(t, records, 10)
	assert.Equal(t, "prompt 15", records[0].Prompt)
	assert.Equal(t, "prompt 6", records[9].Prompt)

	records, total, err = st.ListAudit(ctx, 10, 20)
	require.NoError(t, err)
	assert.EqualValues(t, 25, total)
	assert.Len(t, records, 5)

	records, _, err = st.ListAudit(ctx, 10, 100)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestSQLiteUpdateCommit(t *testing.T) {
	ctx := context.Background()
	st := newTestSQLite(t)
	require.NoError(t, st.AppendAudit(ctx, "p", "c", "job-x", models.AuditCompleted))

	records, _, err := st.ListAudit(ctx, 1, 0)
	require.NoError(t, err)
	hash := "deadbee"
	require.NoError(t, st.UpdateAuditCommit(ctx, records[0].ID, &hash))

	records, _, err = st.ListAudit(ctx, 1, 0)
	require.NoError(t, err)
	require.NotNil(t, records[0].GitHashAfter)
	assert.Equal(t, "deadbee", *records[0].GitHashAfter)
}

func TestSQLiteUpdateCommitUnknownIDSucceeds(t *testing.T) {
	st := newTestSQLite(t)
	hash := "deadbee"
	// unconditional UPDATE: zero affected rows is not reported
	assert.NoError(t, st.UpdateAuditCommit(context.Background(), 9999, &hash))
}

func TestSQLiteClosedStoreFails(t *testing.T) {
	st := newTestSQLite(t)
	st.Close()
	hash := "deadbee"
	assert.Error(t, st.UpdateAuditCommit(context.Background(), 1, &hash))
	assert.Error(t, st.AppendAudit(context.Background(), "p", "c", "j", models.AuditProcessing))
}

func TestSQLiteMessages(t *testing.T) {
	ctx := context.Background()
	st := newTestSQLite(t)

	id1, err := st.CreateMessage(ctx, models.Message{Name: "Ann", Email: "ann@example.org", Message: "Hello"})
	require.NoError(t, err)
	_, err = st.CreateMessage(ctx, models.Message{Name: "Bob", Phone: "555", Message: "Hi"})
	require.NoError(t, err)

	msgs, total, err := st.ListMessages(ctx, 10, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, msgs, 2)
	assert.Equal(t, "Bob", msgs[0].Name)

	require.NoError(t, st.UpdateMessage(ctx, models.Message{ID: id1, Name: "Anne", Email: "anne@example.org", Message: "Hello again"}))
	require.NoError(t, st.DeleteMessage(ctx, msgs[0].ID))

	msgs, total, err = st.ListMessages(ctx, 10, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, msgs, 1)
	assert.Equal(t, "Anne", msgs[0].Name)
	assert.Equal(t, "Hello again", msgs[0].Message)
}

func TestSplitStatements(t *testing.T) {
	got := splitStatements("CREATE TABLE a (x INT);\n\n ALTER TABLE a ADD COLUMN y TEXT;\n")
	assert.Equal(t, []string{"CREATE TABLE a (x INT)", "ALTER TABLE a ADD COLUMN y TEXT"}, got)
}
