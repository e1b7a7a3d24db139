package http

import (
	"encoding/csv"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/pixelproof/pixelproof/internal/quiz"
)

// GET /admin/settings
func GetSettingsHandler(store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg, err := store.ActiveSettings(r.Context())
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, cfg)
	}
}

// POST /admin/settings
func UpdateSettingsHandler(store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var cfg quiz.Settings
		if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if cfg.NumQuestions < 1 {
			http.Error(w, "num_questions must be at least 1", http.StatusBadRequest)
			return
		}
		if cfg.NumOptions < 2 {
			http.Error(w, "num_options must be at least 2", http.StatusBadRequest)
			return
		}
		if cfg.PassingScore < 0 || cfg.PassingScore > 100 {
			http.Error(w, "passing_score must be 0-100", http.StatusBadRequest)
			return
		}
		if err := store.SaveSettings(r.Context(), cfg); err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, cfg)
	}
}

type imageUpload struct {
	FileURL string          `json:"file_url"`
	Label   quiz.ImageLabel `json:"label"`
}

// POST /admin/images — bulk registration of pool images.
func UploadImagesHandler(store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var uploads []imageUpload
		if err := json.NewDecoder(r.Body).Decode(&uploads); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		imgs := make([]quiz.Image, 0, len(uploads))
		for _, u := range uploads {
			if u.FileURL == "" {
				http.Error(w, "file_url required", http.StatusBadRequest)
				return
			}
			if u.Label != quiz.LabelCorrect && u.Label != quiz.LabelIncorrect {
				http.Error(w, "label must be correct or incorrect", http.StatusBadRequest)
				return
			}
			imgs = append(imgs, quiz.Image{FileURL: u.FileURL, Label: u.Label})
		}
		stored, err := store.AddImages(r.Context(), imgs)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, stored)
	}
}

// GET /admin/images — operator view of the pool with reservation state.
func ListImagesHandler(store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		imgs, err := store.ListImages(r.Context())
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, imgs)
	}
}

// POST /admin/images/reset — force-clear every reservation system-wide.
// Escape hatch for operator error recovery: open sessions keep their embedded
// question sets and still close normally afterwards.
func ResetImagesHandler(store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := store.ResetReservations(r.Context()); err != nil {
			writeErr(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// GET /admin/results?status=pass|fail|retest
func ListResultsHandler(store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := quiz.ResultFilter(r.URL.Query().Get("status"))
		switch filter {
		case quiz.FilterNone, quiz.FilterPass, quiz.FilterFail, quiz.FilterRetest:
		default:
			http.Error(w, "status must be pass, fail or retest", http.StatusBadRequest)
			return
		}
		results, err := store.ListResults(r.Context(), filter)
		if err != nil {
			writeErr(w, err)
			return
		}
		if results == nil {
			results = []quiz.SessionResult{}
		}
		writeJSON(w, http.StatusOK, results)
	}
}

// GET /admin/results/csv
func ExportResultsCSVHandler(store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		results, err := store.ListResults(r.Context(), quiz.FilterNone)
		if err != nil {
			writeErr(w, err)
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename=quiz_results.csv`)
		cw := csv.NewWriter(w)
		_ = cw.Write([]string{"employee_id", "name", "score", "passed", "taken_at", "submitted_at", "retest"})
		for _, res := range results {
			score := ""
			if res.Score != nil {
				score = strconv.Itoa(*res.Score)
			}
			submitted := ""
			if res.SubmittedAt != nil {
				submitted = res.SubmittedAt.Format("2006-01-02 15:04:05")
			}
			passed := "N"
			if res.Passed {
				passed = "Y"
			}
			retest := "N"
			if res.Retest {
				retest = "Y"
			}
			_ = cw.Write([]string{
				res.EmployeeID,
				res.Name,
				score,
				passed,
				res.CreatedAt.Format("2006-01-02 15:04:05"),
				submitted,
				retest,
			})
		}
		cw.Flush()
	}
}

// POST /admin/retest — grant retake eligibility to every taker whose most
// recent submitted session failed.
func ApproveRetestHandler(store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		granted, err := store.GrantRetakes(r.Context())
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"granted": granted})
	}
}
