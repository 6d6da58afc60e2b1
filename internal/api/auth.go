package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/avatargate/avatargate/internal/account"
	"github.com/avatargate/avatargate/internal/artifact"
	"github.com/avatargate/avatargate/internal/store"
)

const (
	sessionCookie = "avatargate_session"
	maxFormBytes  = 1 << 20
)

type videoView struct {
	ID        int64     `json:"id"`
	URL       string    `json:"url"`
	Query     string    `json:"query"`
	CreatedAt time.Time `json:"created_at"`
}

// Register handles POST /api/v1/register and responds 201 with the new user.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form body")
		return
	}

	u, err := h.accounts.Register(r.Context(), account.Registration{
		FirstName:       r.PostFormValue("first_name"),
		LastName:        r.PostFormValue("last_name"),
		Username:        r.PostFormValue("username"),
		Password:        r.PostFormValue("password"),
		ConfirmPassword: r.PostFormValue("confirm_password"),
	})
	switch {
	case errors.Is(err, account.ErrInvalidRegistration):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, store.ErrUsernameTaken):
		writeError(w, http.StatusConflict, "username already taken")
		return
	case err != nil:
		slog.Error("register failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create account")
		return
	}

	writeJSON(w, http.StatusCreated, u)
}

// Login handles POST /api/v1/login and sets the session cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form body")
		return
	}

	username := r.PostFormValue("username")
	sess, err := h.accounts.Login(r.Context(), username, r.PostFormValue("password"))
	if errors.Is(err, account.ErrInvalidCredentials) {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	if err != nil {
		slog.Error("login failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to log in")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    sess.Token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]string{"username": username})
}

// Logout handles POST /api/v1/logout and responds 204.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(sessionCookie); err == nil {
		if err := h.accounts.Logout(r.Context(), c.Value); err != nil {
			slog.Error("logout failed", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to log out")
			return
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

// Profile handles GET /api/v1/profile and lists the caller's videos, newest first.
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	u, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	videos, err := h.store.ListVideos(r.Context(), u.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list videos")
		return
	}

	// Return an empty array instead of null when there are no videos.
	views := make([]videoView, 0, len(videos))
	for _, v := range videos {
		views = append(views, videoView{
			ID:        v.ID,
			URL:       artifact.URL(v.Filename),
			Query:     v.Query,
			CreatedAt: v.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user":   u,
		"videos": views,
	})
}

// DeleteVideo handles DELETE /api/v1/videos/{id} and responds 204.
func (h *Handler) DeleteVideo(w http.ResponseWriter, r *http.Request) {
	u, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid video id")
		return
	}

	v, err := h.store.GetVideo(r.Context(), u.ID, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get video")
		return
	}
	if v == nil {
		writeError(w, http.StatusNotFound, "video not found")
		return
	}

	if err := h.artifacts.Remove(v.Filename); err != nil {
		slog.Error("remove video file", "video_id", v.ID, "file", v.Filename, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete video")
		return
	}
	if err := h.store.DeleteVideo(r.Context(), u.ID, id); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete video")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// currentUser resolves the session cookie. On failure it writes the error
// response and reports false.
func (h *Handler) currentUser(w http.ResponseWriter, r *http.Request) (*store.User, bool) {
	var token string
	if c, err := r.Cookie(sessionCookie); err == nil {
		token = c.Value
	}

	u, err := h.accounts.Resolve(r.Context(), token)
	switch {
	case errors.Is(err, account.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "login required")
		return nil, false
	case errors.Is(err, account.ErrUnknownUser):
		writeError(w, http.StatusForbidden, "unknown user")
		return nil, false
	case err != nil:
		slog.Error("resolve session", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to resolve session")
		return nil, false
	}
	return u, true
}
