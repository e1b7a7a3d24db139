package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pixelproof/pixelproof/internal/quiz"
)

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeErr maps core errors to HTTP status codes in one place so every
// handler surfaces the same reason class for the same failure.
func writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, quiz.ErrInsufficientPool),
		errors.Is(err, quiz.ErrDuplicateAnswer):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, quiz.ErrRetakeNotAllowed):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, quiz.ErrUnknownSession),
		errors.Is(err, quiz.ErrNotOwner):
		// not-owner is reported as not-found: the session id is not guessable
		http.Error(w, quiz.ErrUnknownSession.Error(), http.StatusNotFound)
	case errors.Is(err, quiz.ErrActiveSession),
		errors.Is(err, quiz.ErrAlreadySubmitted),
		errors.Is(err, quiz.ErrPoolConflict):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, quiz.ErrUnknownTaker):
		http.Error(w, err.Error(), http.StatusUnauthorized)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
