package handlers

import (
	"net/http"

	"ridematch/internal/services"

	"github.com/go-chi/chi/v5"
)

type RoomHandlers struct {
	roomService *services.RoomService
}

func NewRoomHandlers(roomService *services.RoomService) *RoomHandlers {
	return &RoomHandlers{roomService: roomService}
}

// History handles GET /chat_history/{room_id}?limit&offset.
func (h *RoomHandlers) History(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit", services.DefaultHistoryLimit)
	if !ok {
		return
	}
	offset, ok := queryInt(w, r, "offset", 0)
	if !ok {
		return
	}

	history, err := h.roomService.History(r.Context(), chi.URLParam(r, "room_id"), limit, offset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (h *RoomHandlers) GetActiveUsers(w http.ResponseWriter, r *http.Request) {
	active, err := h.roomService.ActiveUsers(r.Context(), chi.URLParam(r, "room_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, active)
}
