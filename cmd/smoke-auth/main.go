// Command smoke-auth exercises the full session lifecycle against a running
// API: login, whoami, logout, and a replay of the revoked session.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"time"
)

func main() {
	base := os.Getenv("STUDYHUB_API_URL")
	if base == "" {
		base = "http://localhost:8080"
	}
	username := os.Getenv("STUDYHUB_SMOKE_USER")
	if username == "" {
		username = "smoke"
	}
	password := os.Getenv("STUDYHUB_SMOKE_PASSWORD")
	if password == "" {
		log.Fatal("STUDYHUB_SMOKE_PASSWORD is required")
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		log.Fatalf("cookie jar: %v", err)
	}
	client := &http.Client{Jar: jar, Timeout: 10 * time.Second}

	// Login with a wrong password first: must answer 401 without a cookie.
	resp := postJSON(client, base+"/v1/auth/login", map[string]string{
		"username": username,
		"password": password + "-wrong",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		log.Fatalf("wrong-password login: expected 401, got %d", resp.StatusCode)
	}
	resp.Body.Close()
	for _, c := range jar.Cookies(mustURL(base)) {
		if c.Name == "sid" {
			log.Fatal("failed login set a session cookie")
		}
	}

	resp = postJSON(client, base+"/v1/auth/login", map[string]string{
		"username": username,
		"password": password,
	})
	if resp.StatusCode != http.StatusOK {
		log.Fatalf("login: expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	var token string
	for _, c := range jar.Cookies(mustURL(base)) {
		if c.Name == "sid" {
			token = c.Value
		}
	}
	if token == "" {
		log.Fatal("login did not set a session cookie")
	}

	resp, err = client.Get(base + "/v1/auth/session")
	if err != nil {
		log.Fatalf("whoami: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		log.Fatalf("whoami: expected 200, got %d", resp.StatusCode)
	}
	var me struct {
		UserID   string   `json:"user_id"`
		Username string   `json:"username"`
		Roles    []string `json:"roles"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&me); err != nil {
		log.Fatalf("decode whoami: %v", err)
	}
	resp.Body.Close()
	if me.Username != username {
		log.Fatalf("whoami returned %q, expected %q", me.Username, username)
	}

	resp = postJSON(client, base+"/v1/auth/logout", nil)
	if resp.StatusCode != http.StatusOK {
		log.Fatalf("logout: expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Replay the revoked token explicitly; the jar has already dropped it.
	req, err := http.NewRequest(http.MethodGet, base+"/v1/auth/session", nil)
	if err != nil {
		log.Fatalf("replay request: %v", err)
	}
	req.AddCookie(&http.Cookie{Name: "sid", Value: token})
	replay, err := client.Do(req)
	if err != nil {
		log.Fatalf("replay: %v", err)
	}
	defer replay.Body.Close()
	if replay.StatusCode != http.StatusUnauthorized {
		log.Fatalf("replay of revoked session: expected 401, got %d", replay.StatusCode)
	}

	fmt.Printf("✅ auth smoke test passed: user=%s roles=%v\n", me.UserID, me.Roles)
}

func postJSON(client *http.Client, url string, body any) *http.Response {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			log.Fatalf("marshal body: %v", err)
		}
	}
	resp, err := client.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		log.Fatalf("post %s: %v", url, err)
	}
	return resp
}

func mustURL(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		log.Fatalf("parse url: %v", err)
	}
	return u
}
