package api

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
)

const adminLoginPage = "/admin/login.html"

func (s *Server) mountStatic(r chi.Router) {
	serveAdminLogin := func(w http.ResponseWriter, r *http.Request) {
		s.serveFile(w, r, filepath.Join(s.cfg.WebDir, "admin"), "login.html")
	}
	r.Get("/admin/login", serveAdminLogin)
	r.Get("/admin/login.html", serveAdminLogin)

	admin := func(w http.ResponseWriter, r *http.Request) {
		if !s.authenticated(r) {
			http.Redirect(w, r, adminLoginPage, http.StatusFound)
			return
		}
		rel := chi.URLParam(r, "*")
		if rel == "" {
			rel = "index.html"
		}
		s.serveFile(w, r, filepath.Join(s.cfg.WebDir, "admin"), rel)
	}
	r.Get("/admin", admin)
	r.Get("/admin/*", admin)

	r.Get("/upload/*", func(w http.ResponseWriter, r *http.Request) {
		s.serveFile(w, r, s.cfg.UploadDir, chi.URLParam(r, "*"))
	})
	r.Get("/*", func(w http.ResponseWriter, r *http.Request) {
		rel := chi.URLParam(r, "*")
		if rel == "" {
			rel = "index.html"
		}
		s.serveFile(w, r, s.cfg.WebDir, rel)
	})
}

// serveFile serves rel from root. Directories, dotfiles and database files
// are never served.
func (s *Server) serveFile(w http.ResponseWriter, r *http.Request, root, rel string) {
	clean := path.Clean("/" + rel)
	if hidden(clean) {
		http.NotFound(w, r)
		return
	}
	f, err := os.Open(filepath.Join(root, filepath.FromSlash(clean)))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

func hidden(clean string) bool {
	for _, seg := range strings.Split(clean, "/") {
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return strings.HasSuffix(clean, ".db")
}
