package handlers

import (
	"net/http"
	"strconv"

	"ridematch/internal/avatar"
	"ridematch/internal/models"
	"ridematch/internal/services"
	"ridematch/pkg/logger"

	"github.com/go-chi/chi/v5"
)

type AvatarHandlers struct {
	avatarService *services.AvatarService
	store         avatar.Store
}

func NewAvatarHandlers(avatarService *services.AvatarService, store avatar.Store) *AvatarHandlers {
	return &AvatarHandlers{avatarService: avatarService, store: store}
}

// Upload handles POST /users/{id}/avatar.
func (h *AvatarHandlers) Upload(w http.ResponseWriter, r *http.Request) {
	id, ok := selfOnly(w, r)
	if !ok {
		return
	}

	var req models.AvatarUploadRequest
	if !decodeLimit(w, r, &req, h.avatarService.MaxEncodedBytes()) {
		return
	}

	user, err := h.avatarService.Upload(r.Context(), id, req.AvatarBase64)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *AvatarHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := selfOnly(w, r)
	if !ok {
		return
	}

	if err := h.avatarService.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Avatar deleted"})
}

// Serve handles GET /avatars/{filename}.
func (h *AvatarHandlers) Serve(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "filename")
	if !avatar.ValidName(name) {
		writeDetail(w, http.StatusBadRequest, "invalid filename")
		return
	}

	data, info, err := h.store.Get(r.Context(), name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", info.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		logger.Debug().Err(err).Str("name", name).Msg("avatar write interrupted")
	}
}
