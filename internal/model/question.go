package model

import (
	"github.com/google/uuid"
)

// Option is one of the four answer choices of a question.
type Option string

const (
	OptionA Option = "A"
	OptionB Option = "B"
	OptionC Option = "C"
	OptionD Option = "D"
)

// Options lists the answer choices in display order.
var Options = []Option{OptionA, OptionB, OptionC, OptionD}

// Valid reports whether o is one of A, B, C or D.
func (o Option) Valid() bool {
	switch o {
	case OptionA, OptionB, OptionC, OptionD:
		return true
	}
	return false
}

// Question represents a single multiple-choice exam question, including its
// answer key. It never leaves the server in this form.
type Question struct {
	ID            uuid.UUID `json:"id"`
	ExamID        uuid.UUID `json:"exam_id"`
	Position      int       `json:"position"`
	Section       string    `json:"section"`
	RawNumber     *string   `json:"raw_number,omitempty"`
	Content       string    `json:"content"`
	OptionA       string    `json:"option_a"`
	OptionB       string    `json:"option_b"`
	OptionC       string    `json:"option_c"`
	OptionD       string    `json:"option_d"`
	CorrectOption Option    `json:"correct_option"`
	Points        int       `json:"points"`
}

// Weight returns the question's scoring weight. Questions without an explicit
// weight count as one point.
func (q *Question) Weight() int {
	if q.Points > 0 {
		return q.Points
	}
	return 1
}

// OptionText returns the text of the given choice.
func (q *Question) OptionText(o Option) string {
	switch o {
	case OptionA:
		return q.OptionA
	case OptionB:
		return q.OptionB
	case OptionC:
		return q.OptionC
	case OptionD:
		return q.OptionD
	}
	return ""
}

// QuestionOption is a single answer choice as shown to students.
type QuestionOption struct {
	Choice Option `json:"choice"`
	Text   string `json:"text"`
}

// QuestionForStudent is a question without the correct answer, sent to students.
type QuestionForStudent struct {
	ID        uuid.UUID        `json:"id"`
	Position  int              `json:"position"`
	Section   string           `json:"section"`
	RawNumber *string          `json:"raw_number,omitempty"`
	Content   string           `json:"content"`
	Points    int              `json:"points"`
	Options   []QuestionOption `json:"options"`
}

// ForStudent strips the answer key.
func (q *Question) ForStudent() QuestionForStudent {
	opts := make([]QuestionOption, 0, len(Options))
	for _, o := range Options {
		opts = append(opts, QuestionOption{Choice: o, Text: q.OptionText(o)})
	}
	return QuestionForStudent{
		ID:        q.ID,
		Position:  q.Position,
		Section:   q.Section,
		RawNumber: q.RawNumber,
		Content:   q.Content,
		Points:    q.Weight(),
		Options:   opts,
	}
}
