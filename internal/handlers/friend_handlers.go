package handlers

import (
	"net/http"

	"ridematch/internal/models"
	"ridematch/internal/services"
)

type FriendHandlers struct {
	friendService *services.FriendService
}

func NewFriendHandlers(friendService *services.FriendService) *FriendHandlers {
	return &FriendHandlers{friendService: friendService}
}

func (h *FriendHandlers) AddFriend(w http.ResponseWriter, r *http.Request) {
	var req models.FriendRequest
	if !decode(w, r, &req) {
		return
	}

	added, err := h.friendService.AddFriend(r.Context(), req.UserID, req.FriendID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, added)
}

func (h *FriendHandlers) RemoveFriend(w http.ResponseWriter, r *http.Request) {
	var req models.FriendRequest
	if !decode(w, r, &req) {
		return
	}

	if err := h.friendService.RemoveFriend(r.Context(), req.UserID, req.FriendID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Friend removed successfully"})
}

func (h *FriendHandlers) ListFriends(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathInt(w, r, "user_id")
	if !ok {
		return
	}

	list, err := h.friendService.ListFriends(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}
