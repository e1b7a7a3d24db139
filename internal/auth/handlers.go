package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/pixelproof/pixelproof/internal/quiz"

	"golang.org/x/crypto/bcrypt"
)

type tokenResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// LoginHandler authenticates a taker by (employee_id, name), creating the
// taker record on first login. Login is rejected while the taker still has a
// session in progress.
//
// POST /auth/login  { "employee_id": "...", "name": "..." }
func LoginHandler(a *AuthService, store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			EmployeeID string `json:"employee_id"`
			Name       string `json:"name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if req.EmployeeID == "" || req.Name == "" {
			http.Error(w, "employee_id and name required", http.StatusBadRequest)
			return
		}
		taker, err := store.UpsertTaker(r.Context(), req.EmployeeID, req.Name)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		open, err := store.ActiveSessionFor(r.Context(), taker.ID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if open != nil {
			http.Error(w, "active session in progress", http.StatusConflict)
			return
		}
		tok, exp, err := a.IssueJWT(taker.ID, taker.Role)
		if err != nil {
			http.Error(w, "issue token", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(tokenResponse{AccessToken: tok, ExpiresAt: exp})
	}
}

// AdminCreds holds the operator credentials and the settings seeded on first
// admin login.
type AdminCreds struct {
	User         string
	PassHash     string // bcrypt
	SeedSettings quiz.Settings
}

// AdminLoginHandler checks the env-configured operator credentials and seeds
// the settings row when none exists yet, so a fresh deployment is usable
// right after the first admin login.
//
// POST /auth/admin/login  { "username": "...", "password": "..." }
func AdminLoginHandler(a *AuthService, store quiz.Store, creds AdminCreds) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if req.Username != creds.User ||
			bcrypt.CompareHashAndPassword([]byte(creds.PassHash), []byte(req.Password)) != nil {
			http.Error(w, "invalid credentials", http.StatusUnauthorized)
			return
		}

		if _, err := store.ActiveSettings(r.Context()); errors.Is(err, quiz.ErrConfigMissing) {
			if err := store.SaveSettings(r.Context(), creds.SeedSettings); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
		} else if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		tok, exp, err := a.IssueJWT("admin:"+req.Username, "admin")
		if err != nil {
			http.Error(w, "issue token", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(tokenResponse{AccessToken: tok, ExpiresAt: exp})
	}
}
