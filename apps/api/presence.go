package main

import (
	"net/http"
	"sort"
	"time"

	"github.com/mahaj/dupahar-dm/pkg/presence"
)

type PresenceResponse struct {
	Online []string `json:"online"`
}

// Presence reads the online set mirrored by the gateway. It may lag the
// gateway briefly.
func (a *API) Presence(w http.ResponseWriter, r *http.Request) {
	if a.presence == nil {
		http.Error(w, "Presence is not available", http.StatusServiceUnavailable)
		return
	}
	users, err := presence.Members(r.Context(), a.presence)
	if err != nil {
		a.log.Error().Err(err).Msg("Failed to fetch presence")
		http.Error(w, "Failed to fetch presence", http.StatusInternalServerError)
		return
	}
	sort.Strings(users)
	writeJSON(w, http.StatusOK, PresenceResponse{Online: users})
}

type ActivityResponse struct {
	UserID     string    `json:"user_id"`
	LastActive time.Time `json:"last_active"`
}

func (a *API) Activity(w http.ResponseWriter, r *http.Request) {
	if a.activity == nil {
		http.Error(w, "Activity is not available", http.StatusServiceUnavailable)
		return
	}
	user := r.PathValue("id")
	if err := a.validate.Var(user, "required,userid"); err != nil {
		http.Error(w, "Invalid user id", http.StatusBadRequest)
		return
	}

	at, ok, err := a.activity.LastActive(r.Context(), user)
	if err != nil {
		a.log.Error().Err(err).Str("user", user).Msg("Failed to fetch activity")
		http.Error(w, "Failed to fetch activity", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "No activity recorded", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, ActivityResponse{UserID: user, LastActive: at})
}
