package quiz

import "fmt"

// Evaluate scores a submission against the session's stored question set.
// Pure: it mutates nothing, so identical inputs always yield the identical
// score and verdict. The returned Result carries every image id the session
// had reserved; the caller releases them when it closes the session.
//
// Answers referencing unknown question ids are ignored. Two answers for the
// same question id reject the whole submission with ErrDuplicateAnswer.
func Evaluate(s Session, answers []Answer, passingScore int) (Result, error) {
	if s.State != StateOpen {
		return Result{}, ErrAlreadySubmitted
	}

	byID := make(map[string]Question, len(s.Questions))
	for _, q := range s.Questions {
		byID[q.ID] = q
	}

	seen := make(map[string]struct{}, len(answers))
	correct := 0
	for _, a := range answers {
		if _, dup := seen[a.QuestionID]; dup {
			return Result{}, fmt.Errorf("%w: %s", ErrDuplicateAnswer, a.QuestionID)
		}
		seen[a.QuestionID] = struct{}{}
		q, ok := byID[a.QuestionID]
		if !ok {
			continue
		}
		if a.SelectedImageID == q.AnswerID {
			correct++
		}
	}

	score := 0
	if len(s.Questions) > 0 {
		score = correct * 100 / len(s.Questions)
	}
	return Result{
		Score:    score,
		Passed:   score >= passingScore,
		Released: s.ImageIDs(),
	}, nil
}
