package quiz

import "time"

type ImageLabel string

const (
	LabelCorrect   ImageLabel = "correct"
	LabelIncorrect ImageLabel = "incorrect"
)

// Image is one entry in the shared pool. Reserved means some open session
// holds it in its question set; at most one open session may reference a
// reserved image.
type Image struct {
	ID        string     `json:"id"`
	FileURL   string     `json:"file_url"`
	Label     ImageLabel `json:"label"`
	Reserved  bool       `json:"reserved"`
	CreatedAt int64      `json:"created_at,omitempty"`
}

type Option struct {
	ImageID string `json:"image_id"`
	FileURL string `json:"file_url"`
}

// Question binds one correct image to a shuffled option list. AnswerID is
// stripped before a question is served to a taker; only the evaluator and
// admin exports may see it.
type Question struct {
	ID       string   `json:"question_id"`
	AnswerID string   `json:"answer_id"`
	Options  []Option `json:"options"`
}

type SessionState string

const (
	StateOpen   SessionState = "open"
	StateClosed SessionState = "closed"
)

type Session struct {
	ID          string       `json:"id"`
	TakerID     string       `json:"taker_id"`
	Questions   []Question   `json:"questions"`
	State       SessionState `json:"state"`
	Score       *int         `json:"score,omitempty"`
	Passed      bool         `json:"passed"`
	Retest      bool         `json:"retest"`
	CreatedAt   time.Time    `json:"created_at"`
	SubmittedAt *time.Time   `json:"submitted_at,omitempty"`
}

// ImageIDs returns every image id referenced by the session's option lists,
// i.e. the full reservation made at allocation time.
func (s Session) ImageIDs() []string {
	ids := make([]string, 0, len(s.Questions)*4)
	for _, q := range s.Questions {
		for _, o := range q.Options {
			ids = append(ids, o.ImageID)
		}
	}
	return ids
}

// Settings is the quiz shape read at allocation/evaluation time. Changing it
// never touches already-generated sessions: the question set is embedded in
// the session, not recomputed.
type Settings struct {
	NumQuestions int `json:"num_questions"`
	NumOptions   int `json:"num_options"`
	PassingScore int `json:"passing_score"`
}

type Taker struct {
	ID         string    `json:"id"`
	EmployeeID string    `json:"employee_id"`
	Name       string    `json:"name"`
	Role       string    `json:"role"` // "user" or "admin"
	CanRetake  bool      `json:"can_retake"`
	CreatedAt  time.Time `json:"created_at"`
}

type Answer struct {
	QuestionID      string `json:"question_id"`
	SelectedImageID string `json:"selected_image_id"`
}

// Result is the outcome of evaluating one submission. Released lists the
// image ids to hand back to the pool when the session closes.
type Result struct {
	Score    int
	Passed   bool
	Released []string
}
