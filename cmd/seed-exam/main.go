package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stemsi/exstem-attempt/internal/config"
	"github.com/stemsi/exstem-attempt/internal/database"
	"github.com/stemsi/exstem-attempt/internal/logger"
	"github.com/stemsi/exstem-attempt/internal/model"
)

type seedQuestion struct {
	section string
	content string
	options [4]string
	correct model.Option
}

var questions = []seedQuestion{
	{"Reading", "What is the main idea of the passage?", [4]string{"Farming", "Urban growth", "River trade", "Climate"}, model.OptionB},
	{"Reading", "The word \"scarce\" most nearly means", [4]string{"plentiful", "rare", "expensive", "hidden"}, model.OptionB},
	{"Reading", "Which choice best supports the previous answer?", [4]string{"Lines 1-3", "Lines 10-12", "Lines 21-24", "Lines 30-32"}, model.OptionC},
	{"Writing", "Which choice completes the text with correct punctuation?", [4]string{"however,", "however;", "; however,", ", however"}, model.OptionC},
	{"Writing", "Which transition is most logical?", [4]string{"Therefore", "Meanwhile", "For example", "Nevertheless"}, model.OptionD},
	{"Math", "If 3x + 5 = 20, what is x?", [4]string{"3", "5", "15/3", "25/3"}, model.OptionB},
	{"Math", "What is the slope of y = -2x + 7?", [4]string{"-2", "2", "7", "-7"}, model.OptionA},
	{"Math", "How many solutions does x^2 = -4 have over the reals?", [4]string{"0", "1", "2", "Infinitely many"}, model.OptionA},
	{"Math", "A circle has radius 3. What is its area?", [4]string{"6π", "9π", "3π", "12π"}, model.OptionB},
	{"Math", "What is 15% of 80?", [4]string{"8", "10", "12", "15"}, model.OptionC},
}

func main() {
	var (
		classID       int
		teacherID     int
		firstStudent  int
		studentCount  int
		duration      int
		maxViolations int
		title         string
	)
	flag.IntVar(&classID, "class", 1, "Class the exam is assigned to")
	flag.IntVar(&teacherID, "teacher", 1, "Owning teacher ID")
	flag.IntVar(&firstStudent, "first-student", 1, "First student ID to enroll")
	flag.IntVar(&studentCount, "students", 50, "Number of consecutive student IDs to enroll")
	flag.IntVar(&duration, "duration", 60, "Exam duration in minutes")
	flag.IntVar(&maxViolations, "max-violations", 3, "Violation threshold (0 uses the server default)")
	flag.StringVar(&title, "title", "Practice Test", "Exam title")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	fmt.Printf("=== Seeding exam %q for class %d ===\n", title, classID)

	examID := uuid.New()
	err = pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		start := time.Now().Add(-time.Minute)
		end := start.Add(24 * time.Hour)
		if _, err := tx.Exec(ctx,
			`INSERT INTO exams (id, class_id, teacher_id, title, description, duration_minutes,
			                    max_violations, start_time, end_time, status)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			examID, classID, teacherID, title, "Seeded for local testing", duration,
			maxViolations, start, end, model.ExamStatusActive); err != nil {
			return fmt.Errorf("insert exam: %w", err)
		}

		rows := make([][]any, 0, len(questions))
		for i, q := range questions {
			rows = append(rows, []any{
				uuid.New(), examID, i + 1, q.section, q.content,
				q.options[0], q.options[1], q.options[2], q.options[3], string(q.correct), 1,
			})
		}
		if _, err := tx.CopyFrom(ctx,
			pgx.Identifier{"questions"},
			[]string{"id", "exam_id", "position", "section", "content",
				"option_a", "option_b", "option_c", "option_d", "correct_option", "points"},
			pgx.CopyFromRows(rows),
		); err != nil {
			return fmt.Errorf("insert questions: %w", err)
		}

		b := &pgx.Batch{}
		for i := 0; i < studentCount; i++ {
			b.Queue(`INSERT INTO class_students (class_id, student_id) VALUES ($1, $2)
			         ON CONFLICT DO NOTHING`, classID, firstStudent+i)
		}
		if err := tx.SendBatch(ctx, b).Close(); err != nil {
			return fmt.Errorf("enroll students: %w", err)
		}
		return nil
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Seed failed")
	}

	fmt.Printf("\nSeed completed! Exam %s with %d questions, students %d..%d enrolled.\n",
		examID, len(questions), firstStudent, firstStudent+studentCount-1)
}
