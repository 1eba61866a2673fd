package main

import (
	"encoding/json"
	"net/http"

	"github.com/mahaj/dupahar-dm/pkg/auth"
)

type ReadRequest struct {
	OtherUserID string `json:"other_user_id" validate:"required,userid"`
}

type ReadResponse struct {
	Updated int64 `json:"updated"`
}

// MarkRead flags every message from other_user_id to the caller as read.
func (a *API) MarkRead(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.ClaimsFrom(r.Context())

	var req ReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := a.validate.Struct(req); err != nil {
		http.Error(w, "other_user_id must be a valid user id", http.StatusBadRequest)
		return
	}

	n, err := a.store.MarkRead(r.Context(), claims.UserID, req.OtherUserID)
	if err != nil {
		a.log.Error().Err(err).Str("user", claims.UserID).Str("other", req.OtherUserID).Msg("Failed to mark read")
		http.Error(w, "Failed to reset unread count", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, ReadResponse{Updated: n})
}
