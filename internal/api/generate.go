package api

import (
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/avatargate/avatargate/internal/config"
	"github.com/avatargate/avatargate/internal/job"
	"github.com/avatargate/avatargate/internal/queue"
	"github.com/google/uuid"
)

// Parts above this size are spooled to temporary files by net/http.
const multipartMemory = 8 << 20

type upload struct {
	field    string
	name     string
	required bool
	dst      *string
	header   *multipart.FileHeader
}

// Generate handles POST /api/v1/generate and responds 202 with the job id.
// Authentication is checked before the body is read.
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	u, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes())
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll() //nolint:errcheck

	task := job.Task{
		ID:          uuid.NewString(),
		UserID:      u.ID,
		Query:       r.FormValue("rag_query"),
		Enhancer:    strings.TrimSpace(r.FormValue("enhancer")),
		CallbackURL: strings.TrimSpace(r.FormValue("callback_url")),
	}
	var err error
	if task.SourceLang, err = formLang(r, "source_lang", h.cfg.SourceLang); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if task.TargetLang, err = formLang(r, "target_lang", h.cfg.TargetLang); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	opts := job.Options{Enhancers: h.cfg.Enhancers, Languages: h.cfg.Languages}
	if err := task.ValidateParams(opts); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	uploads := []*upload{
		{field: "source_image", name: "image", required: true, dst: &task.ImagePath},
		{field: "rag_document", name: "doc", required: true, dst: &task.DocumentPath},
		{field: "reference_audio", name: "audio", dst: &task.AudioPath},
	}
	for _, up := range uploads {
		if fhs := r.MultipartForm.File[up.field]; len(fhs) > 0 {
			up.header = fhs[0]
		} else if up.required {
			writeError(w, http.StatusBadRequest, up.field+" is required")
			return
		}
	}

	dir, err := h.artifacts.NewWorkDir()
	if err != nil {
		slog.Error("staging failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to stage inputs")
		return
	}
	task.WorkDir = dir

	if err := h.stage(dir, uploads); err != nil {
		slog.Error("staging failed", "dir", dir, "error", err)
		h.discard(dir)
		writeError(w, http.StatusInternalServerError, "failed to stage inputs")
		return
	}
	for _, up := range uploads {
		if *up.dst != "" {
			task.StagedFiles = append(task.StagedFiles, *up.dst)
		}
	}

	if err := h.queue.Submit(task); err != nil {
		switch {
		case errors.Is(err, queue.ErrQueueFull):
			// The queue has already failed the job and applied cleanup.
			writeError(w, http.StatusServiceUnavailable, "too many pending jobs, try again later")
		case errors.Is(err, queue.ErrInvalidTask):
			h.discard(dir)
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			slog.Error("submit failed", "job_id", task.ID, "error", err)
			h.discard(dir)
			writeError(w, http.StatusInternalServerError, "failed to submit job")
		}
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": task.ID})
}

func (h *Handler) stage(dir string, uploads []*upload) error {
	for _, up := range uploads {
		if up.header == nil {
			continue
		}
		f, err := up.header.Open()
		if err != nil {
			return fmt.Errorf("open %s: %w", up.field, err)
		}
		p, err := h.artifacts.Stage(dir, up.name, up.header.Filename, f)
		f.Close()
		if err != nil {
			return err
		}
		*up.dst = p
	}
	return nil
}

func (h *Handler) discard(dir string) {
	if err := h.artifacts.RemoveAll(dir); err != nil {
		slog.Warn("remove work dir", "dir", dir, "error", err)
	}
}

// formLang returns the canonical form of a language field, or def when it is empty.
func formLang(r *http.Request, field, def string) (string, error) {
	v := strings.TrimSpace(r.FormValue(field))
	if v == "" {
		return def, nil
	}
	lang, err := config.CanonicalLang(v)
	if err != nil {
		return "", fmt.Errorf("invalid %s: %q", field, v)
	}
	return lang, nil
}
