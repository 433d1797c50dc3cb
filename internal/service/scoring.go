package service

import (
	"github.com/google/uuid"
	"github.com/stemsi/exstem-attempt/internal/model"
)

// GradeResult is the outcome of grading one attempt.
type GradeResult struct {
	Score        int
	MaxScore     int
	CorrectCount int
	// Correct holds the verdict for every question that has an answer row.
	Correct map[uuid.UUID]bool
}

// Grade scores answers against the answer key. A question without an answer
// row, or with a cleared selection, counts as incorrect. Each question is
// worth its Weight; answers to questions outside the exam are ignored.
func Grade(questions []model.Question, answers []model.Answer) GradeResult {
	byQuestion := make(map[uuid.UUID]model.Answer, len(answers))
	for _, a := range answers {
		byQuestion[a.QuestionID] = a
	}

	res := GradeResult{Correct: make(map[uuid.UUID]bool, len(answers))}
	for i := range questions {
		q := &questions[i]
		weight := q.Weight()
		res.MaxScore += weight

		ans, ok := byQuestion[q.ID]
		if !ok {
			continue
		}
		correct := ans.SelectedOption != nil && *ans.SelectedOption == q.CorrectOption
		res.Correct[q.ID] = correct
		if correct {
			res.Score += weight
			res.CorrectCount++
		}
	}
	return res
}
