package service

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitorService_Snapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	catalog := NewExamCatalog(f.store, f.store, nil, 0, zerolog.Nop())
	monitor := NewMonitorService(f.store, catalog, 3, zerolog.Nop())

	a := f.start(t, studentA)
	b := f.start(t, studentB)
	_, err := f.svc.ReportViolation(ctx, studentA, a.AttemptID, a.SessionToken,
		&model.ReportViolationRequest{Type: model.ViolationTabSwitch})
	require.NoError(t, err)
	_, err = f.svc.Submit(ctx, studentB, b.AttemptID, b.SessionToken,
		&model.SubmitRequest{Answers: f.sevenOfTen()}, model.ClientMeta{})
	require.NoError(t, err)

	exam, err := monitor.Authorize(ctx, teacherID, f.exam.ID)
	require.NoError(t, err)

	snap, err := monitor.Snapshot(ctx, exam)
	require.NoError(t, err)
	assert.Equal(t, 10, snap.Exam.TotalQuestions)
	assert.Equal(t, MonitorStats{
		TotalJoined:     2,
		TotalInProgress: 1,
		TotalSubmitted:  1,
		TotalViolations: 1,
		Completed:       1,
		AverageScore:    7,
		HighestScore:    7,
		LowestScore:     7,
	}, snap.Stats)
	require.Len(t, snap.Students, 2)

	_, err = monitor.Authorize(ctx, teacherID+1, f.exam.ID)
	assert.ErrorIs(t, err, ErrNotExamOwner)
}

func TestMonitorService_ScoreStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	catalog := NewExamCatalog(f.store, f.store, nil, 0, zerolog.Nop())
	monitor := NewMonitorService(f.store, catalog, 3, zerolog.Nop())

	exam, err := monitor.Authorize(ctx, teacherID, f.exam.ID)
	require.NoError(t, err)

	snap, err := monitor.Snapshot(ctx, exam)
	require.NoError(t, err)
	assert.Zero(t, snap.Stats.Completed)
	assert.Zero(t, snap.Stats.AverageScore)

	a := f.start(t, studentA)
	b := f.start(t, studentB)
	_, err = f.svc.Submit(ctx, studentA, a.AttemptID, a.SessionToken, &model.SubmitRequest{}, model.ClientMeta{})
	require.NoError(t, err)
	_, err = f.svc.Submit(ctx, studentB, b.AttemptID, b.SessionToken,
		&model.SubmitRequest{Answers: f.sevenOfTen()}, model.ClientMeta{})
	require.NoError(t, err)
	_, err = f.svc.MarkGraded(ctx, teacherID, b.AttemptID)
	require.NoError(t, err)

	snap, err = monitor.Snapshot(ctx, exam)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Stats.Completed)
	assert.Equal(t, 1, snap.Stats.TotalGraded)
	assert.InDelta(t, 3.5, snap.Stats.AverageScore, 0.001)
	assert.Equal(t, 7, snap.Stats.HighestScore)
	assert.Equal(t, 0, snap.Stats.LowestScore)
}

type brokenQuestions struct {
	Catalog
}

func (brokenQuestions) ListQuestions(context.Context, uuid.UUID) ([]model.Question, error) {
	return nil, errors.New("connection reset")
}

func TestMonitorService_QuestionLookupFailureIsLogged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	var logs bytes.Buffer
	catalog := brokenQuestions{NewExamCatalog(f.store, f.store, nil, 0, zerolog.Nop())}
	monitor := NewMonitorService(f.store, catalog, 3, zerolog.New(&logs))

	exam, err := monitor.Authorize(ctx, teacherID, f.exam.ID)
	require.NoError(t, err)

	snap, err := monitor.Snapshot(ctx, exam)
	require.NoError(t, err)
	assert.Zero(t, snap.Exam.TotalQuestions)
	assert.Contains(t, logs.String(), "connection reset")
	assert.Contains(t, logs.String(), "monitor_service")
}
