package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"io"
	"net/http"
	"os"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

type LoginResponse struct {
	Token string `json:"token"`
}

func main() {
	apiAddr := flag.String("api", "http://localhost:8081", "api service address")
	user := flag.String("user", "test_user", "user to log in as")
	with := flag.String("with", "userB", "peer whose history is fetched")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	// 1. Login
	token, err := login(*apiAddr, *user)
	if err != nil {
		log.Fatal().Err(err).Msg("Login failed")
	}
	log.Info().Str("token", token[:10]+"...").Msg("Logged in")

	// 2. Read endpoints
	for _, path := range []string{
		"/history?with=" + *with + "&limit=20",
		"/conversations",
		"/presence",
	} {
		status, body, err := get(*apiAddr+path, token)
		if err != nil {
			log.Fatal().Err(err).Str("path", path).Msg("Request failed")
		}
		log.Info().Str("path", path).Int("status", status).RawJSON("body", jsonOrQuoted(body)).Msg("Response")
	}
}

func login(apiAddr, user string) (string, error) {
	reqBody, _ := json.Marshal(map[string]string{"user_id": user})
	resp, err := http.Post(apiAddr+"/login", "application/json", bytes.NewBuffer(reqBody))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", errors.Errorf("status %s: %s", resp.Status, bytes.TrimSpace(body))
	}

	var loginResp LoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&loginResp); err != nil {
		return "", errors.Wrap(err, "decode login response")
	}
	if len(loginResp.Token) < 10 {
		return "", errors.New("login returned a short token")
	}
	return loginResp.Token, nil
}

func get(url, token string) (int, []byte, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Add("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	return resp.StatusCode, body, err
}

func jsonOrQuoted(b []byte) []byte {
	if json.Valid(b) {
		return b
	}
	q, _ := json.Marshal(string(bytes.TrimSpace(b)))
	return q
}
