package api

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeWebFile(t *testing.T, env *testEnv, rel, content string) {
	t.Helper()
	path := filepath.Join(env.cfg.WebDir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestStaticPages(t *testing.T) {
	env := newTestEnv(t)
	writeWebFile(t, env, "index.html", "home")
	writeWebFile(t, env, "about.html", "about")
	writeWebFile(t, env, "css/site.css", "body{}")
	writeWebFile(t, env, "upload/bulletin.txt", "notes")
	writeWebFile(t, env, ".env", "SECRET=1")
	writeWebFile(t, env, "churchdata.db", "sqlite")

	for path, want := range map[string]string{
		"/":                    "home",
		"/about.html":          "about",
		"/css/site.css":        "body{}",
		"/upload/bulletin.txt": "notes",
	} {
		rec := env.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, want, rec.Body.String(), path)
	}

	for _, path := range []string{"/missing.html", "/.env", "/churchdata.db", "/css", "/css/../.env"} {
		rec := env.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
}

func TestAdminPagesRedirectWithoutSession(t *testing.T) {
	env := newTestEnv(t)
	writeWebFile(t, env, "admin/login.html", "login form")
	writeWebFile(t, env, "admin/index.html", "dashboard")
	writeWebFile(t, env, "admin/editor.html", "editor")

	for _, path := range []string{"/admin", "/admin/", "/admin/editor.html"} {
		rec := env.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusFound, rec.Code, path)
		assert.Equal(t, "/admin/login.html", rec.Header().Get("Location"), path)
	}

	for _, path := range []string{"/admin/login", "/admin/login.html"} {
		rec := env.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, "login form", rec.Body.String())
	}

	cookie := env.login(t)
	rec := env.do(t, http.MethodGet, "/admin/", nil, cookie)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "dashboard", rec.Body.String())
	rec = env.do(t, http.MethodGet, "/admin/editor.html", nil, cookie)
	assert.Equal(t, "editor", rec.Body.String())
}
