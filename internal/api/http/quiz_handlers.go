package http

import (
	"encoding/json"
	"net/http"

	"github.com/pixelproof/pixelproof/internal/quiz"
	"github.com/pixelproof/pixelproof/internal/rbac"
)

type questionView struct {
	QuestionID string        `json:"question_id"`
	Options    []quiz.Option `json:"options"`
}

type quizResponse struct {
	SessionID string         `json:"session_id"`
	Questions []questionView `json:"questions"`
}

// RequestQuizHandler allocates a new session for the authenticated taker.
// The response carries option lists only; the correct image id stays
// server-side.
//
// GET /quiz
func RequestQuizHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		takerID := rbac.SubjectFromContext(r.Context())
		if takerID == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		s, err := svc.Start(r.Context(), takerID)
		if err != nil {
			writeErr(w, err)
			return
		}
		resp := quizResponse{SessionID: s.ID}
		for _, q := range s.Questions {
			resp.Questions = append(resp.Questions, questionView{QuestionID: q.ID, Options: q.Options})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

type submitRequest struct {
	SessionID string        `json:"session_id"`
	Answers   []quiz.Answer `json:"answers"`
}

type submitResponse struct {
	SessionID string `json:"session_id"`
	Score     int    `json:"score"`
	Passed    bool   `json:"passed"`
}

// SubmitQuizHandler scores the submission and closes the session.
//
// POST /quiz/submit
func SubmitQuizHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		takerID := rbac.SubjectFromContext(r.Context())
		if takerID == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		var req submitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if req.SessionID == "" {
			http.Error(w, "session_id required", http.StatusBadRequest)
			return
		}
		res, err := svc.Submit(r.Context(), takerID, req.SessionID, req.Answers)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, submitResponse{
			SessionID: req.SessionID,
			Score:     res.Score,
			Passed:    res.Passed,
		})
	}
}
