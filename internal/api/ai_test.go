package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"churchsite/internal/models"
)

func (e *testEnv) waitJob(t *testing.T, id string) models.Job {
	t.Helper()
	require.Eventually(t, func() bool {
		job, err := e.jobs.Get(id)
		return err == nil && job.Status.Terminal()
	}, 5*time.Second, 10*time.Millisecond)
	rec := e.do(t, http.MethodGet, "/api/ai-status/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	return decode[models.Job](t, rec)
}

func TestAskAIRunsJobInBackground(t *testing.T) {
	release := make(chan struct{})
	env := newTestEnv(t, withInvoker(invokeFunc(func(_ context.Context, req models.AIRequest) models.AIResult {
		<-release
		return models.AIResult{Success: true, Output: "<p>" + req.Prompt + "</p>"}
	})))

	rec := env.doJSON(t, http.MethodPost, "/api/ask-ai", models.AIRequest{Prompt: "Add a welcome line", Context: "<div></div>"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	resp := decode[askAIResponse](t, rec)
	assert.True(t, resp.Success)
	assert.Equal(t, models.JobProcessing, resp.Status)
	assert.Equal(t, "AI task started in background", resp.Message)
	require.NotEmpty(t, resp.JobID)

	rec = env.do(t, http.MethodGet, "/api/ai-status/"+resp.JobID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.JobProcessing, decode[models.Job](t, rec).Status)

	close(release)
	job := env.waitJob(t, resp.JobID)
	assert.Equal(t, models.JobCompleted, job.Status)
	require.NotNil(t, job.Result)
	assert.True(t, job.Result.Success)
	assert.Equal(t, "<p>Add a welcome line</p>", job.Result.Output)

	require.Eventually(t, func() bool {
		hist := decode[historyResponse](t, env.do(t, http.MethodGet, "/api/ai/history", nil))
		return len(hist.History) == 1 && hist.History[0].JobStatus == models.AuditCompleted
	}, 5*time.Second, 10*time.Millisecond)

	hist := decode[historyResponse](t, env.do(t, http.MethodGet, "/api/ai/history", nil))
	assert.Equal(t, "Add a welcome line", hist.History[0].Prompt)
	assert.Equal(t, "abc1234", hist.History[0].GitHashBefore)
	require.NotNil(t, hist.History[0].JobID)
	assert.Equal(t, resp.JobID, *hist.History[0].JobID)
}

func TestAskAIFailedRunIsCompletedJob(t *testing.T) {
	env := newTestEnv(t, withInvoker(invokeFunc(func(context.Context, models.AIRequest) models.AIResult {
		return models.AIResult{Success: false, Error: "AI request timed out (45s limit)."}
	})))

	resp := decode[askAIResponse](t, env.doJSON(t, http.MethodPost, "/api/ask-ai", models.AIRequest{Prompt: "x"}))
	job := env.waitJob(t, resp.JobID)
	assert.Equal(t, models.JobCompleted, job.Status)
	require.NotNil(t, job.Result)
	assert.False(t, job.Result.Success)
	assert.Equal(t, "AI request timed out (45s limit).", job.Result.Error)
}

func TestAskAIAcceptsMalformedBody(t *testing.T) {
	var got models.AIRequest
	env := newTestEnv(t, withInvoker(invokeFunc(func(_ context.Context, req models.AIRequest) models.AIResult {
		got = req
		return models.AIResult{Success: true, Output: "ok"}
	})))

	rec := env.do(t, http.MethodPost, "/api/ask-ai", strings.NewReader("{not json"))
	require.Equal(t, http.StatusAccepted, rec.Code)
	resp := decode[askAIResponse](t, rec)
	env.waitJob(t, resp.JobID)
	assert.Equal(t, models.AIRequest{}, got)

	rec = env.do(t, http.MethodPost, "/api/ask-ai", nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestAskAIDistinctIDs(t *testing.T) {
	env := newTestEnv(t)
	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		resp := decode[askAIResponse](t, env.doJSON(t, http.MethodPost, "/api/ask-ai", models.AIRequest{Prompt: fmt.Sprint(i)}))
		assert.False(t, seen[resp.JobID], "duplicate id %s", resp.JobID)
		seen[resp.JobID] = true
	}
}

func TestAskAIAfterShutdown(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.dispatcher.Close(context.Background()))

	rec := env.doJSON(t, http.MethodPost, "/api/ask-ai", models.AIRequest{Prompt: "late"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAIStatusUnknownJob(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/ai-status/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"Job not found"}`, rec.Body.String())
}

func TestAIHistoryPagination(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	for i := 1; i <= 25; i++ {
		require.NoError(t, env.store.AppendAudit(ctx, fmt.Sprintf("prompt %d", i), "", fmt.Sprintf("job-%d", i), models.AuditCompleted))
	}

	hist := decode[historyResponse](t, env.do(t, http.MethodGet, "/api/ai/history", nil))
	assert.True(t, hist.Success)
	assert.EqualValues(t, 25, hist.Total)
	require.Len(t, hist.History, 20)
	assert.Equal(t, "prompt 25", hist.History[0].Prompt)

	hist = decode[historyResponse](t, env.do(t, http.MethodGet, "/api/ai/history?page=2", nil))
	require.Len(t, hist.History, 5)
	assert.Equal(t, "prompt 5", hist.History[0].Prompt)

	hist = decode[historyResponse](t, env.do(t, http.MethodGet, "/api/ai/history?page=3&limit=10", nil))
	require.Len(t, hist.History, 5)
	assert.Equal(t, "prompt 5", hist.History[0].Prompt)
}

func TestAIHistoryStoreErrorStillSucceeds(t *testing.T) {
	env := newTestEnv(t)
	env.store.Close()

	rec := env.do(t, http.MethodGet, "/api/ai/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	hist := decode[historyResponse](t, rec)
	assert.True(t, hist.Success)
	assert.Empty(t, hist.History)
	assert.NotNil(t, hist.History)
	assert.Zero(t, hist.Total)
	assert.NotEmpty(t, hist.Error)
}

func TestLinkCommit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.store.AppendAudit(ctx, "p", "", "job-1", models.AuditCompleted))
	records, _, err := env.store.ListAudit(ctx, 1, 0)
	require.NoError(t, err)
	id := records[0].ID

	rec := env.doJSON(t, http.MethodPut, fmt.Sprintf("/api/ai/history/%d", id), map[string]string{"commit_hash": "deadbee"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())

	records, _, err = env.store.ListAudit(ctx, 1, 0)
	require.NoError(t, err)
	require.NotNil(t, records[0].GitHashAfter)
	assert.Equal(t, "deadbee", *records[0].GitHashAfter)

	// Unknown ids are accepted; the update simply touches no row.
	rec = env.doJSON(t, http.MethodPut, "/api/ai/history/99999", map[string]string{"commit_hash": "x"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLinkCommitFailures(t *testing.T) {
	env := newTestEnv(t)

	rec := env.doJSON(t, http.MethodPut, "/api/ai/history/abc", map[string]string{"commit_hash": "x"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":"Update failed"}`, rec.Body.String())

	env.store.Close()
	rec = env.doJSON(t, http.MethodPut, "/api/ai/history/1", map[string]string{"commit_hash": "x"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
