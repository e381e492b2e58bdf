package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/commentbot/internal/apperr"
	"github.com/shehryarbajwa/commentbot/internal/bot"
	"github.com/shehryarbajwa/commentbot/pkg/models"
)

// maxUploadSize bounds session archive uploads
const maxUploadSize = 512 << 20

// Profiles is the credential store
type Profiles interface {
	List() map[string]models.Credentials
	Put(p models.Profile) error
	Delete(name string) error
}

// Sessions is the session directory store
type Sessions interface {
	Export(profile string, w io.Writer) error
	Import(profile string, archive io.ReaderAt, size int64) error
	Remove(profile string) error
	Exists(profile string) bool
}

// Jobs is the job registry
type Jobs interface {
	SubmitRun(profile string, params bot.RunParams, headless bool) (models.JobStatus, error)
	SubmitLogin(profile string, headless bool) (models.JobStatus, error)
	Query(profile string) models.JobStatus
	QueryAll() map[string]models.JobStatus
	Screenshot(ctx context.Context, profile string) ([]byte, error)
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	profiles Profiles
	sessions Sessions
	jobs     Jobs
	logger   *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(profiles Profiles, sessions Sessions, jobs Jobs, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		profiles: profiles,
		sessions: sessions,
		jobs:     jobs,
		logger:   logger,
	}
}

// ListProfiles handles GET /profiles
func (h *Handler) ListProfiles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.profiles.List())
}

// CreateProfile handles POST /profiles
func (h *Handler) CreateProfile(w http.ResponseWriter, r *http.Request) {
	var req models.CreateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, apperr.Validation("invalid request body: %v", err))
		return
	}

	if err := h.profiles.Put(models.Profile{Name: req.Name, Username: req.Username, Password: req.Password}); err != nil {
		h.writeError(w, err)
		return
	}

	writeMessage(w, http.StatusOK, fmt.Sprintf("Profile %s saved successfully", req.Name))
}

// DeleteProfile handles DELETE /profiles/{name}. The session directory is
// removed best effort.
func (h *Handler) DeleteProfile(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	if err := h.profiles.Delete(name); err != nil {
		h.writeError(w, err)
		return
	}

	if !h.sessions.Exists(name) {
		writeMessage(w, http.StatusOK, fmt.Sprintf("Profile %s credentials deleted", name))
		return
	}
	if err := h.sessions.Remove(name); err != nil {
		h.logger.Warn("Failed to remove session directory", zap.String("profile", name), zap.Error(err))
		writeMessage(w, http.StatusOK, fmt.Sprintf("Profile %s credentials deleted, but failed to remove session folder: %v", name, err))
		return
	}
	writeMessage(w, http.StatusOK, fmt.Sprintf("Profile %s and its session data deleted", name))
}

// StartLogin handles POST /login
func (h *Handler) StartLogin(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, apperr.Validation("invalid request body: %v", err))
		return
	}

	status, err := h.jobs.SubmitLogin(req.ProfileName, boolOr(req.Headless, false))
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Login session started",
		"status":  status,
	})
}

// StartRun handles POST /run
func (h *Handler) StartRun(w http.ResponseWriter, r *http.Request) {
	var req models.RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, apperr.Validation("invalid request body: %v", err))
		return
	}

	params := bot.RunParams{PostURL: req.PostURL, Comment: req.Comment, Count: req.Count}
	status, err := h.jobs.SubmitRun(req.ProfileName, params, boolOr(req.Headless, false))
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Bot started successfully",
		"status":  status,
	})
}

// Status handles GET /status and GET /status/{profile_name}
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	if name, ok := mux.Vars(r)["profile_name"]; ok {
		writeJSON(w, http.StatusOK, h.jobs.Query(name))
		return
	}
	writeJSON(w, http.StatusOK, h.jobs.QueryAll())
}

// ExportSession handles GET /export_session/{profile_name}
func (h *Handler) ExportSession(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["profile_name"]

	out := &attachmentWriter{w: w, filename: fmt.Sprintf("insta_session_%s.zip", name)}
	if err := h.sessions.Export(name, out); err != nil {
		if !out.started {
			h.writeError(w, err)
			return
		}
		h.logger.Error("Session export failed mid-stream", zap.String("profile", name), zap.Error(err))
		return
	}
	if !out.started {
		out.writeHeader()
	}
}

// ImportSession handles POST /import_session
func (h *Handler) ImportSession(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		h.writeError(w, apperr.Wrap(apperr.ErrValidation, err, "invalid upload"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(w, apperr.Validation("no file part"))
		return
	}
	defer file.Close()

	name := r.FormValue("profile_name")
	if header.Filename == "" || name == "" {
		h.writeError(w, apperr.Validation("no file or profile name selected"))
		return
	}
	if !strings.EqualFold(filepath.Ext(header.Filename), ".zip") {
		h.writeError(w, apperr.Validation("please upload a ZIP file"))
		return
	}

	if err := h.sessions.Import(name, file, header.Size); err != nil {
		h.writeError(w, err)
		return
	}

	writeMessage(w, http.StatusOK, fmt.Sprintf("Session for %s imported successfully", name))
}

// Screenshot handles GET /screenshot/{profile_name}
func (h *Handler) Screenshot(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["profile_name"]

	png, err := h.jobs.Screenshot(r.Context(), name)
	if err != nil {
		h.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Write(png)
}

// attachmentWriter sends download headers on the first write so that a
// refused export can still answer with a JSON error
type attachmentWriter struct {
	w        http.ResponseWriter
	filename string
	started  bool
}

func (a *attachmentWriter) writeHeader() {
	a.started = true
	a.w.Header().Set("Content-Type", "application/zip")
	a.w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", a.filename))
	a.w.WriteHeader(http.StatusOK)
}

func (a *attachmentWriter) Write(p []byte) (int, error) {
	if !a.started {
		a.writeHeader()
	}
	return a.w.Write(p)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", zap.Error(err))
	}

	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		status = http.StatusRequestEntityTooLarge
	}

	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}
