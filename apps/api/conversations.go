package main

import (
	"net/http"

	"github.com/mahaj/dupahar-dm/pkg/auth"
	"github.com/mahaj/dupahar-dm/pkg/model"
)

// Conversations lists the caller's conversations, most recent first.
func (a *API) Conversations(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.ClaimsFrom(r.Context())

	conversations, err := a.store.Conversations(r.Context(), claims.UserID)
	if err != nil {
		a.log.Error().Err(err).Str("user", claims.UserID).Msg("Failed to list conversations")
		http.Error(w, "Failed to list conversations", http.StatusInternalServerError)
		return
	}
	if conversations == nil {
		conversations = []model.ConversationSummary{}
	}
	writeJSON(w, http.StatusOK, conversations)
}
