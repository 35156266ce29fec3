package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"churchsite/internal/captcha"
	"churchsite/internal/config"
	"churchsite/internal/dispatch"
	"churchsite/internal/gitrev"
	"churchsite/internal/models"
	"churchsite/internal/ratelimit"
	"churchsite/internal/registry"
	"churchsite/internal/session"
	"churchsite/internal/site"
	"churchsite/internal/store"
)

const testPassword = "s3cret"

type invokeFunc func(ctx context.Context, req models.AIRequest) models.AIResult

func (f invokeFunc) Invoke(ctx context.Context, req models.AIRequest) models.AIResult {
	return f(ctx, req)
}

type testEnv struct {
	cfg        config.Config
	store      *store.SQLite
	jobs       *registry.Memory
	dispatcher *dispatch.Dispatcher
	captchas   *captcha.Store
	handler    http.Handler
}

type envOption func(*config.Config, *Deps)

func withInvoker(inv dispatch.Invoker) envOption {
	return func(_ *config.Config, d *Deps) {
		d.Dispatcher = dispatch.New(d.Jobs, d.Store, inv, d.Logger, 2)
	}
}

func withLimiter(t *testing.T, capacity int) envOption {
	return func(_ *config.Config, d *Deps) {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { client.Close() })
		d.Limiter = ratelimit.NewTokenBucket(client, capacity, 0.001, time.Minute)
	}
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	root := t.TempDir()
	cfg := config.Defaults()
	cfg.WebDir = filepath.Join(root, "web")
	cfg.UploadDir = filepath.Join(root, "web", "upload")
	cfg.BackupDir = filepath.Join(root, "backups")
	cfg.DBFile = filepath.Join(root, "churchdata.db")
	cfg.AdminPassword = testPassword
	require.NoError(t, os.MkdirAll(filepath.Join(cfg.WebDir, "admin"), 0o755))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	st, err := store.NewSQLite(cfg.DBFile, gitrev.Static("abc1234"))
	require.NoError(t, err)
	require.NoError(t, st.RunMigrations(context.Background()))
	t.Cleanup(st.Close)

	pages, err := site.NewPages(cfg.WebDir, cfg.BackupDir)
	require.NoError(t, err)
	uploads, err := site.NewUploads(cfg.UploadDir, nil, nil, logger)
	require.NoError(t, err)

	jobs := registry.NewMemory()
	deps := Deps{
		Store:    st,
		Jobs:     jobs,
		Sessions: session.NewManager(cfg.AdminPassword, cfg.SessionTimeout),
		Captchas: captcha.NewStore(cfg.CaptchaTimeout),
		Pages:    pages,
		Uploads:  uploads,
		Logger:   logger,
	}
	for _, opt := range opts {
		opt(&cfg, &deps)
	}
	if deps.Dispatcher == nil {
		deps.Dispatcher = dispatch.New(jobs, st, invokeFunc(func(context.Context, models.AIRequest) models.AIResult {
			return models.AIResult{Success: true, Output: "ok"}
		}), logger, 2)
	}
	d := deps.Dispatcher.(*dispatch.Dispatcher)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = d.Close(ctx)
	})

	return &testEnv{
		cfg:        cfg,
		store:      st,
		jobs:       jobs,
		dispatcher: d,
		captchas:   deps.Captchas,
		handler:    New(cfg, deps).Router(),
	}
}

func (e *testEnv) do(t *testing.T, method, target string, body io.Reader, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) doJSON(t *testing.T, method, target string, payload any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(payload))
	return e.do(t, method, target, &buf, cookies...)
}

func (e *testEnv) login(t *testing.T) *http.Cookie {
	t.Helper()
	rec := e.doJSON(t, http.MethodPost, "/api/admin/login", map[string]string{"password": testPassword})
	require.Equal(t, http.StatusOK, rec.Code)
	for _, c := range rec.Result().Cookies() {
		if c.Name == session.CookieName {
			return c
		}
	}
	t.Fatalf("no %s cookie in login response", session.CookieName)
	return nil
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), "body: %s", rec.Body.String())
	return v
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestMetricsMounted(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitRejectsBurst(t *testing.T) {
	env := newTestEnv(t, withLimiter(t, 2))

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/captcha", nil).Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/captcha", nil).Code)
	rec := env.do(t, http.MethodGet, "/api/captcha", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.False(t, decode[errorResponse](t, rec).Success)

	// Unthrottled routes keep working.
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/ai/history", nil).Code)
}

func TestAskAINotRateLimited(t *testing.T) {
	env := newTestEnv(t, withLimiter(t, 1))

	for i := 0; i < 3; i++ {
		rec := env.doJSON(t, http.MethodPost, "/api/ask-ai", models.AIRequest{Prompt: "p"})
		assert.Equal(t, http.StatusAccepted, rec.Code, "submission %d", i)
	}
}

func TestPageParams(t *testing.T) {
	cases := []struct {
		query       string
		page, limit int
	}{
		{"", 1, 20},
		{"?page=3&limit=5", 3, 5},
		{"?page=0&limit=-1", 1, 20},
		{"?page=abc&limit=x", 1, 20},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/x"+tc.query, nil)
		page, limit := pageParams(req, 20)
		assert.Equal(t, tc.page, page, tc.query)
		assert.Equal(t, tc.limit, limit, tc.query)
	}
}
