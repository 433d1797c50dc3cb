package service

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stretchr/testify/assert"
)

func questionSet(n int) []model.Question {
	qs := make([]model.Question, n)
	for i := range qs {
		qs[i] = model.Question{ID: uuid.New(), Position: i + 1, CorrectOption: model.Options[i%4]}
	}
	return qs
}

func answerFor(q model.Question, o model.Option) model.Answer {
	return model.Answer{QuestionID: q.ID, SelectedOption: &o}
}

func TestGrade_SevenOfTen(t *testing.T) {
	qs := questionSet(10)
	var answers []model.Answer
	for i := 0; i < 7; i++ {
		answers = append(answers, answerFor(qs[i], qs[i].CorrectOption))
	}
	answers = append(answers, answerFor(qs[7], model.Options[(7+1)%4]))
	answers = append(answers, model.Answer{QuestionID: qs[8].ID, IsFlagged: true})

	res := Grade(qs, answers)

	assert.Equal(t, 7, res.Score)
	assert.Equal(t, 10, res.MaxScore)
	assert.Equal(t, 7, res.CorrectCount)
	assert.Len(t, res.Correct, 9, "only existing answer rows get a verdict")

	correct := 0
	for _, ok := range res.Correct {
		if ok {
			correct++
		}
	}
	assert.Equal(t, 7, correct)
	assert.False(t, res.Correct[qs[8].ID])
	_, graded := res.Correct[qs[9].ID]
	assert.False(t, graded)
}

func TestGrade_WeightedQuestions(t *testing.T) {
	qs := questionSet(3)
	qs[0].Points = 5
	qs[1].Points = 2

	res := Grade(qs, []model.Answer{
		answerFor(qs[0], qs[0].CorrectOption),
		answerFor(qs[2], qs[2].CorrectOption),
	})

	assert.Equal(t, 6, res.Score)
	assert.Equal(t, 8, res.MaxScore)
}

func TestGrade_IgnoresAnswersOutsideExam(t *testing.T) {
	qs := questionSet(2)
	stray := model.Question{ID: uuid.New(), CorrectOption: model.OptionA}

	res := Grade(qs, []model.Answer{answerFor(stray, model.OptionA)})

	assert.Zero(t, res.Score)
	assert.Equal(t, 2, res.MaxScore)
	assert.Empty(t, res.Correct)
}

func TestGrade_EmptyExam(t *testing.T) {
	res := Grade(nil, nil)
	assert.Zero(t, res.Score)
	assert.Zero(t, res.MaxScore)
}
