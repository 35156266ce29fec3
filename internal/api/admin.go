package api

import (
	"errors"
	"net/http"
	"net/url"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"

	"churchsite/internal/models"
	"churchsite/internal/session"
	"churchsite/internal/site"
	"churchsite/internal/telemetry"
)

const maxUploadMemory = 32 << 20

type loginRequest struct {
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	decodeBody(r, &req)

	token, valid := s.sessions.Login(req.Password)
	if !valid {
		s.logger.Warn("admin login failed", "ip", clientIP(r))
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "Invalid password"})
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     session.CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, okResponse)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(session.CookieName); err == nil {
		s.sessions.Logout(c.Value)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     session.CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
	writeJSON(w, http.StatusOK, okResponse)
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"authenticated": s.authenticated(r)})
}

type messagesResponse struct {
	Success  bool             `json:"success"`
	Messages []models.Message `json:"messages"`
	Total    int64            `json:"total"`
	Page     int              `json:"page"`
	Limit    int              `json:"limit"`
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r, 10)
	msgs, total, err := s.store.ListMessages(r.Context(), limit, (page-1)*limit)
	if err != nil {
		s.logger.Error("list messages", "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Failed to load messages"})
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	writeJSON(w, http.StatusOK, messagesResponse{Success: true, Messages: msgs, Total: total, Page: page, Limit: limit})
}

func messageID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil
}

func (s *Server) handleUpdateMessage(w http.ResponseWriter, r *http.Request) {
	id, valid := messageID(r)
	if !valid {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid message id"})
		return
	}
	var m models.Message
	decodeBody(r, &m)
	m.ID = id
	if err := s.store.UpdateMessage(r.Context(), m); err != nil {
		s.logger.Error("update message", "id", id, "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Update failed"})
		return
	}
	writeJSON(w, http.StatusOK, okResponse)
}

func (s *Server) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	id, valid := messageID(r)
	if !valid {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid message id"})
		return
	}
	if err := s.store.DeleteMessage(r.Context(), id); err != nil {
		s.logger.Error("delete message", "id", id, "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Delete failed"})
		return
	}
	writeJSON(w, http.StatusOK, okResponse)
}

type filesResponse struct {
	Success bool              `json:"success"`
	Files   []models.FileInfo `json:"files"`
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	files, err := s.uploads.List()
	if err != nil {
		s.logger.Error("list uploads", "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Failed to list files"})
		return
	}
	writeJSON(w, http.StatusOK, filesResponse{Success: true, Files: files})
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "*")
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}
	err := s.uploads.Delete(r.Context(), name)
	if errors.Is(err, site.ErrFileNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
		return
	}
	if err != nil {
		s.logger.Error("delete upload", "file", name, "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Delete failed"})
		return
	}
	s.logger.Info("deleted upload", "file", name)
	writeJSON(w, http.StatusOK, okResponse)
}

type uploadResponse struct {
	Success bool   `json:"success"`
	URL     string `json:"url"`
}

// handleUpload stores the first file of a multipart form. The "file" field
// wins; otherwise fields are taken in name order.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	noFile := errorResponse{Error: site.ErrNoFile.Error()}
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeJSON(w, http.StatusBadRequest, noFile)
		return
	}
	defer r.MultipartForm.RemoveAll()

	fields := make([]string, 0, len(r.MultipartForm.File))
	for k, v := range r.MultipartForm.File {
		if len(v) > 0 {
			fields = append(fields, k)
		}
	}
	if len(fields) == 0 {
		writeJSON(w, http.StatusBadRequest, noFile)
		return
	}
	sort.Strings(fields)
	field := fields[0]
	if len(r.MultipartForm.File["file"]) > 0 {
		field = "file"
	}
	header := r.MultipartForm.File[field][0]

	f, err := header.Open()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, noFile)
		return
	}
	defer f.Close()

	location, err := s.uploads.Save(r.Context(), header.Filename, f)
	if errors.Is(err, site.ErrNoFile) {
		writeJSON(w, http.StatusBadRequest, noFile)
		return
	}
	if err != nil {
		s.logger.Error("save upload", "file", header.Filename, "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Upload failed"})
		return
	}
	telemetry.Uploads.Inc()
	s.logger.Info("uploaded file", "url", location)
	writeJSON(w, http.StatusOK, uploadResponse{Success: true, URL: location})
}

type savePageRequest struct {
	Page    string `json:"page"`
	Content string `json:"content"`
}

func (s *Server) handleSavePage(w http.ResponseWriter, r *http.Request) {
	var req savePageRequest
	decodeBody(r, &req)

	backup, err := s.pages.Save(req.Page, req.Content)
	var backupErr *site.BackupError
	switch {
	case errors.Is(err, site.ErrMissingPage):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	case errors.Is(err, site.ErrNotHTML):
		writeJSON(w, http.StatusForbidden, errorResponse{Error: err.Error()})
		return
	case errors.As(err, &backupErr):
		s.logger.Warn("page backup failed", "page", backupErr.Page, "err", backupErr.Err)
	case err != nil:
		s.logger.Error("save page", "page", req.Page, "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Failed to save page"})
		return
	case backup != "":
		s.logger.Info("created page backup", "backup", backup)
	}
	telemetry.PageSaves.Inc()
	s.logger.Info("updated page", "page", req.Page)
	writeJSON(w, http.StatusOK, okResponse)
}
