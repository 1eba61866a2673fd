package main

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/mahaj/dupahar-dm/pkg/auth"
	"github.com/mahaj/dupahar-dm/pkg/model"
)

const maxHistoryLimit = 500

// History returns the messages between the caller and ?with=, oldest first.
// before and after are RFC 3339 timestamps; limit keeps the newest N.
func (a *API) History(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.ClaimsFrom(r.Context())
	q := r.URL.Query()

	with := q.Get("with")
	if err := a.validate.Var(with, "required,userid"); err != nil {
		http.Error(w, "with must be a valid user id", http.StatusBadRequest)
		return
	}

	var rng model.Range
	var err error
	if rng.Before, err = parseTime(q.Get("before")); err != nil {
		http.Error(w, "before must be an RFC 3339 timestamp", http.StatusBadRequest)
		return
	}
	if rng.After, err = parseTime(q.Get("after")); err != nil {
		http.Error(w, "after must be an RFC 3339 timestamp", http.StatusBadRequest)
		return
	}
	if s := q.Get("limit"); s != "" {
		rng.Limit, err = strconv.Atoi(s)
		if err != nil || rng.Limit < 0 || rng.Limit > maxHistoryLimit {
			http.Error(w, "limit must be between 0 and 500", http.StatusBadRequest)
			return
		}
	}

	messages, err := a.store.QueryMessages(r.Context(), claims.UserID, with, rng)
	if err != nil {
		a.log.Error().Err(err).Str("user", claims.UserID).Str("with", with).Msg("Failed to query history")
		http.Error(w, "Failed to retrieve history", http.StatusInternalServerError)
		return
	}
	if messages == nil {
		messages = []model.Message{}
	}
	writeJSON(w, http.StatusOK, messages)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

type LoginRequest struct {
	UserID string `json:"user_id" validate:"required,userid"`
}

type LoginResponse struct {
	Token string `json:"token"`
}

// Login issues a token for any syntactically valid user id. There is no
// password; this is a development login.
func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := a.validate.Struct(req); err != nil {
		http.Error(w, "user_id is required and must be a valid user id", http.StatusBadRequest)
		return
	}

	token, err := a.signer.GenerateToken(req.UserID)
	if err != nil {
		a.log.Error().Err(err).Msg("Failed to generate token")
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, LoginResponse{Token: token})
}

func (a *API) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := auth.StripBearer(r.Header.Get("Authorization"))
		if tokenString == "" {
			http.Error(w, "Authorization header required", http.StatusUnauthorized)
			return
		}

		claims, err := a.signer.ValidateToken(tokenString)
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.WithClaims(r.Context(), claims)))
	})
}
