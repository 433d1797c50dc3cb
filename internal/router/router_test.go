package router

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt/internal/config"
	"github.com/stemsi/exstem-attempt/internal/handler"
	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/repository/repotest"
	"github.com/stemsi/exstem-attempt/internal/service"
	"github.com/stemsi/exstem-attempt/internal/validator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	classID      = 7
	teacherID    = 42
	otherTeacher = 43
	studentID    = 100
	outsiderID   = 200
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	validator.Setup()
	os.Exit(m.Run())
}

type apiFixture struct {
	engine    *gin.Engine
	auth      *service.AuthService
	store     *repotest.Store
	exam      model.Exam
	questions []model.Question
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	cfg := &config.Config{
		GinMode:              gin.TestMode,
		JWTSecret:            "router-test-secret-0123456789",
		JWTExpiry:            time.Hour,
		HeartbeatInterval:    10 * time.Second,
		AutosaveInterval:     5 * time.Second,
		AutosaveDebounce:     2 * time.Second,
		DefaultMaxViolations: 3,
		ElapsedSkew:          5 * time.Second,
	}

	f := &apiFixture{
		auth:  service.NewAuthService(cfg),
		store: repotest.New(),
		exam: model.Exam{
			ID:              uuid.New(),
			ClassID:         classID,
			TeacherID:       teacherID,
			Title:           "Try Out",
			DurationMinutes: 60,
			MaxViolations:   3,
			Status:          model.ExamStatusActive,
		},
	}
	for i := 0; i < 4; i++ {
		f.questions = append(f.questions, model.Question{
			ID:            uuid.New(),
			ExamID:        f.exam.ID,
			Position:      i + 1,
			Content:       "Soal",
			CorrectOption: model.Options[i],
			Points:        1,
		})
	}
	f.store.AddExam(f.exam, f.questions...)
	f.store.Enroll(classID, studentID)

	log := zerolog.Nop()
	catalog := service.NewExamCatalog(f.store, f.store, nil, 0, log)
	arbiter := service.NewSessionArbiter(f.store.Attempts(), nil, log)
	attempts := service.NewAttemptService(f.store.Attempts(), catalog, arbiter, nil, cfg, log)
	monitor := service.NewMonitorService(f.store, catalog, cfg.DefaultMaxViolations, log)

	f.engine = SetupRouter(f.auth, &Handlers{
		StudentPortal: handler.NewStudentPortalHandler(attempts, log),
		Exam:          handler.NewExamHandler(attempts, catalog, monitor, log),
		Monitor:       handler.NewMonitorHandler(nil, monitor, log),
		WS:            handler.NewWSHandler(attempts, log, nil),
		System:        handler.NewSystemHandler(nil, nil, log),
	}, nil, cfg)
	return f
}

func (f *apiFixture) token(t *testing.T, userID int, role service.Role) string {
	t.Helper()
	tok, err := f.auth.GenerateToken(userID, role)
	require.NoError(t, err)
	return tok
}

type apiResponse struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code string `json:"code"`
	} `json:"error"`
}

func (f *apiFixture) call(t *testing.T, method, path string, body any, token, session string) (int, apiResponse) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if session != "" {
		req.Header.Set(handler.HeaderSessionToken, session)
	}

	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)

	var res apiResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res), w.Body.String())
	return w.Code, res
}

func errCode(res apiResponse) string {
	if res.Error == nil {
		return ""
	}
	return res.Error.Code
}

func decode[T any](t *testing.T, res apiResponse) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(res.Data, &v))
	return v
}

func (f *apiFixture) startAttempt(t *testing.T, token string) service.StartResult {
	t.Helper()
	status, res := f.call(t, http.MethodPost, "/api/v1/student/exams/"+f.exam.ID.String()+"/attempts", nil, token, "")
	require.Contains(t, []int{http.StatusOK, http.StatusCreated}, status, errCode(res))
	return decode[service.StartResult](t, res)
}

func TestHealth(t *testing.T) {
	f := newAPIFixture(t)

	status, res := f.call(t, http.MethodGet, "/health", nil, "", "")

	assert.Equal(t, http.StatusOK, status)
	report := decode[map[string]any](t, res)
	assert.Equal(t, "ok", report["status"])
}

func TestAuthGuards(t *testing.T) {
	f := newAPIFixture(t)
	student := f.token(t, studentID, service.RoleStudent)
	teacher := f.token(t, teacherID, service.RoleTeacher)
	examPath := "/api/v1/student/exams/" + f.exam.ID.String()

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		status int
		code   string
	}{
		{"missing token", http.MethodGet, examPath, "", http.StatusUnauthorized, "TOKEN_REQUIRED"},
		{"garbage token", http.MethodGet, examPath, "nope", http.StatusUnauthorized, "TOKEN_INVALID"},
		{"teacher on student route", http.MethodGet, examPath, teacher, http.StatusForbidden, "STUDENT_ACCESS_ONLY"},
		{"student on teacher route", http.MethodPost, "/api/v1/teacher/attempts/" + uuid.NewString() + "/grade", student, http.StatusForbidden, "TEACHER_ACCESS_ONLY"},
		{"malformed attempt id", http.MethodGet, "/api/v1/student/attempts/not-a-uuid", student, http.StatusBadRequest, "INVALID_ID"},
		{"unknown exam", http.MethodGet, "/api/v1/student/exams/" + uuid.NewString(), student, http.StatusNotFound, "NOT_FOUND"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, res := f.call(t, tt.method, tt.path, nil, tt.token, "")
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, errCode(res))
		})
	}
}

func TestStartRejectsUnenrolledStudent(t *testing.T) {
	f := newAPIFixture(t)

	status, res := f.call(t, http.MethodPost, "/api/v1/student/exams/"+f.exam.ID.String()+"/attempts",
		nil, f.token(t, outsiderID, service.RoleStudent), "")

	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "NOT_ENROLLED", errCode(res))
}

func TestAttemptLifecycleOverHTTP(t *testing.T) {
	f := newAPIFixture(t)
	student := f.token(t, studentID, service.RoleStudent)

	first := f.startAttempt(t, student)
	base := "/api/v1/student/attempts/" + first.AttemptID.String()

	// The exam page never sees the answer key.
	status, res := f.call(t, http.MethodGet, base, nil, student, first.SessionToken)
	require.Equal(t, http.StatusOK, status)
	assert.NotContains(t, string(res.Data), "correct_option")

	save := map[string]any{
		"answers":         map[string]string{f.questions[0].ID.String(): "A"},
		"elapsed_seconds": 3,
	}
	status, res = f.call(t, http.MethodPut, base+"/progress", save, student, first.SessionToken)
	require.Equal(t, http.StatusOK, status, errCode(res))
	assert.True(t, decode[service.SaveResult](t, res).OK)

	// A second device takes over the attempt.
	second := f.startAttempt(t, student)
	require.True(t, second.Resumed)
	require.NotEqual(t, first.SessionToken, second.SessionToken)

	status, res = f.call(t, http.MethodPost, base+"/heartbeat", nil, student, first.SessionToken)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, decode[service.HeartbeatResult](t, res).Kicked)

	status, res = f.call(t, http.MethodPut, base+"/progress", save, student, first.SessionToken)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "SESSION_REPLACED", errCode(res))

	status, res = f.call(t, http.MethodPost, base+"/violations",
		map[string]string{"type": "tab switch!"}, student, second.SessionToken)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", errCode(res))

	status, res = f.call(t, http.MethodPost, base+"/violations",
		map[string]string{"type": "tab_switch"}, student, second.SessionToken)
	require.Equal(t, http.StatusOK, status, errCode(res))
	assert.Equal(t, 1, decode[model.ViolationResult](t, res).ViolationCount)

	// Result is hidden until submission.
	status, res = f.call(t, http.MethodGet, base+"/result", nil, student, "")
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "RESULT_NOT_AVAILABLE", errCode(res))

	submit := map[string]any{
		"answers":         map[string]string{f.questions[1].ID.String(): "B"},
		"elapsed_seconds": 4,
	}
	status, res = f.call(t, http.MethodPost, base+"/submit", submit, student, second.SessionToken)
	require.Equal(t, http.StatusOK, status, errCode(res))
	sub := decode[service.SubmitResult](t, res)
	assert.Equal(t, 2, sub.Score)
	assert.Equal(t, 4, sub.MaxScore)

	// An empty-body retry returns the frozen result.
	status, res = f.call(t, http.MethodPost, base+"/submit", nil, student, second.SessionToken)
	require.Equal(t, http.StatusOK, status)
	again := decode[service.SubmitResult](t, res)
	assert.True(t, again.AlreadySubmitted)
	assert.Equal(t, sub.Score, again.Score)

	status, res = f.call(t, http.MethodGet, base+"/result", nil, student, "")
	require.Equal(t, http.StatusOK, status)
	result := decode[service.AttemptResult](t, res)
	assert.Equal(t, 2, result.CorrectCount)
	assert.Len(t, result.Questions, 4)

	status, res = f.call(t, http.MethodGet, "/api/v1/student/attempts", nil, student, "")
	require.Equal(t, http.StatusOK, status)
	history := decode[struct {
		Attempts []model.AttemptSummary `json:"attempts"`
	}](t, res)
	assert.Len(t, history.Attempts, 1)
}

func TestSaveProgressRejectsUnknownOption(t *testing.T) {
	f := newAPIFixture(t)
	student := f.token(t, studentID, service.RoleStudent)
	start := f.startAttempt(t, student)

	body := map[string]any{"answers": map[string]string{f.questions[0].ID.String(): "E"}}
	status, res := f.call(t, http.MethodPut, "/api/v1/student/attempts/"+start.AttemptID.String()+"/progress",
		body, student, start.SessionToken)

	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID_OPTION", errCode(res))
}

func TestGradeAttempt(t *testing.T) {
	f := newAPIFixture(t)
	student := f.token(t, studentID, service.RoleStudent)
	start := f.startAttempt(t, student)
	gradePath := "/api/v1/teacher/attempts/" + start.AttemptID.String() + "/grade"
	owner := f.token(t, teacherID, service.RoleTeacher)

	status, res := f.call(t, http.MethodPost, gradePath, nil, owner, "")
	assert.Equal(t, http.StatusConflict, status, "in-progress attempts cannot be graded")
	assert.Equal(t, "INVALID_STATE", errCode(res))

	status, _ = f.call(t, http.MethodPost, "/api/v1/student/attempts/"+start.AttemptID.String()+"/submit",
		nil, student, start.SessionToken)
	require.Equal(t, http.StatusOK, status)

	status, res = f.call(t, http.MethodPost, gradePath, nil, f.token(t, otherTeacher, service.RoleTeacher), "")
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "NOT_EXAM_OWNER", errCode(res))

	status, res = f.call(t, http.MethodPost, gradePath, nil, owner, "")
	require.Equal(t, http.StatusOK, status)
	graded := decode[struct {
		Attempt model.Attempt `json:"attempt"`
	}](t, res)
	assert.Equal(t, model.AttemptStatusGraded, graded.Attempt.Status)
}

func TestTeacherReviewsAttemptResult(t *testing.T) {
	f := newAPIFixture(t)
	student := f.token(t, studentID, service.RoleStudent)
	start := f.startAttempt(t, student)
	resultPath := "/api/v1/teacher/attempts/" + start.AttemptID.String() + "/result"
	owner := f.token(t, teacherID, service.RoleTeacher)

	status, res := f.call(t, http.MethodGet, resultPath, nil, owner, "")
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "RESULT_NOT_AVAILABLE", errCode(res))

	submit := map[string]any{"answers": map[string]string{f.questions[0].ID.String(): "A"}}
	status, _ = f.call(t, http.MethodPost, "/api/v1/student/attempts/"+start.AttemptID.String()+"/submit",
		submit, student, start.SessionToken)
	require.Equal(t, http.StatusOK, status)

	status, res = f.call(t, http.MethodGet, resultPath, nil, f.token(t, otherTeacher, service.RoleTeacher), "")
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "NOT_EXAM_OWNER", errCode(res))

	status, res = f.call(t, http.MethodGet, resultPath, nil, student, "")
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "TEACHER_ACCESS_ONLY", errCode(res))

	status, res = f.call(t, http.MethodGet, resultPath, nil, owner, "")
	require.Equal(t, http.StatusOK, status, errCode(res))
	result := decode[service.AttemptResult](t, res)
	assert.Equal(t, studentID, result.StudentID)
	assert.Equal(t, 1, result.Score)
	require.Len(t, result.Questions, 4)
	assert.Nil(t, result.Questions[3].SelectedOption)
	assert.Equal(t, f.questions[3].CorrectOption, result.Questions[3].CorrectOption)
}

func TestRefreshExamCacheRequiresOwner(t *testing.T) {
	f := newAPIFixture(t)
	path := "/api/v1/teacher/exams/" + f.exam.ID.String() + "/refresh-cache"

	status, res := f.call(t, http.MethodPost, path, nil, f.token(t, otherTeacher, service.RoleTeacher), "")
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "NOT_EXAM_OWNER", errCode(res))

	status, _ = f.call(t, http.MethodPost, path, nil, f.token(t, teacherID, service.RoleTeacher), "")
	assert.Equal(t, http.StatusOK, status)
}

func TestMonitorStreamsSnapshot(t *testing.T) {
	f := newAPIFixture(t)
	f.startAttempt(t, f.token(t, studentID, service.RoleStudent))

	srv := httptest.NewServer(f.engine)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		srv.URL+"/api/v1/teacher/exams/"+f.exam.ID.String()+"/monitor", nil)
	require.NoError(t, err)
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", "Bearer "+f.token(t, teacherID, service.RoleTeacher))

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	reader := bufio.NewReader(resp.Body)
	var data string
	for data == "" {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "data:") {
			data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}

	var msg struct {
		Type string                  `json:"type"`
		Data service.MonitorSnapshot `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(data), &msg))
	assert.Equal(t, "snapshot", msg.Type)
	assert.Equal(t, 1, msg.Data.Stats.TotalJoined)
	assert.Equal(t, 1, msg.Data.Stats.TotalInProgress)

	cancel()
}

func TestMonitorRejectsOtherTeacher(t *testing.T) {
	f := newAPIFixture(t)

	status, res := f.call(t, http.MethodGet, "/api/v1/teacher/exams/"+f.exam.ID.String()+"/monitor",
		nil, f.token(t, otherTeacher, service.RoleTeacher), "")

	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "NOT_EXAM_OWNER", errCode(res))
}

// ─── WebSocket ─────────────────────────────────────────────────────────

func dialStream(t *testing.T, srv *httptest.Server, f *apiFixture, attemptID uuid.UUID, session string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") +
		"/ws/v1/student/attempts/" + attemptID.String() + "/stream" +
		"?token=" + f.token(t, studentID, service.RoleStudent) +
		"&session=" + session
	return websocket.DefaultDialer.Dial(url, nil)
}

type wsReply struct {
	Event string          `json:"event"`
	ID    string          `json:"id"`
	Code  string          `json:"code"`
	Data  json.RawMessage `json:"data"`
}

func roundTrip(t *testing.T, conn *websocket.Conn, msg any) wsReply {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, conn.WriteJSON(msg))
	var reply wsReply
	require.NoError(t, conn.ReadJSON(&reply))
	return reply
}

func TestAttemptStreamWebSocket(t *testing.T) {
	f := newAPIFixture(t)
	start := f.startAttempt(t, f.token(t, studentID, service.RoleStudent))

	srv := httptest.NewServer(f.engine)
	defer srv.Close()

	conn, _, err := dialStream(t, srv, f, start.AttemptID, start.SessionToken)
	require.NoError(t, err)
	defer conn.Close()

	reply := roundTrip(t, conn, map[string]string{"action": "ping", "id": "p1"})
	assert.Equal(t, "pong", reply.Event)
	assert.Equal(t, "p1", reply.ID)

	reply = roundTrip(t, conn, map[string]any{
		"action":          "autosave",
		"id":              "s1",
		"answers":         map[string]string{f.questions[2].ID.String(): "C"},
		"elapsed_seconds": 2,
	})
	require.Equal(t, "saved", reply.Event, reply.Code)

	reply = roundTrip(t, conn, map[string]string{"action": "violation", "type": "blur"})
	require.Equal(t, "violation", reply.Event, reply.Code)

	reply = roundTrip(t, conn, map[string]string{"action": "teleport"})
	assert.Equal(t, "error", reply.Event)
	assert.Equal(t, "INVALID_PAYLOAD", reply.Code)

	reply = roundTrip(t, conn, map[string]string{"action": "heartbeat"})
	require.Equal(t, "heartbeat", reply.Event)

	reply = roundTrip(t, conn, map[string]string{"action": "submit", "trigger": "MANUAL"})
	require.Equal(t, "submitted", reply.Event, reply.Code)
	var sub service.SubmitResult
	require.NoError(t, json.Unmarshal(reply.Data, &sub))
	assert.Equal(t, 1, sub.Score)

	// The server closes the stream after a submission.
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestAttemptStreamKicksReplacedSession(t *testing.T) {
	f := newAPIFixture(t)
	student := f.token(t, studentID, service.RoleStudent)
	first := f.startAttempt(t, student)

	srv := httptest.NewServer(f.engine)
	defer srv.Close()

	conn, _, err := dialStream(t, srv, f, first.AttemptID, first.SessionToken)
	require.NoError(t, err)
	defer conn.Close()

	second := f.startAttempt(t, student)

	reply := roundTrip(t, conn, map[string]string{"action": "heartbeat"})
	assert.Equal(t, "kicked", reply.Event)

	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "got %v", err)

	// A stale token cannot open a new stream either.
	_, resp, err := dialStream(t, srv, f, first.AttemptID, first.SessionToken)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	conn2, _, err := dialStream(t, srv, f, first.AttemptID, second.SessionToken)
	require.NoError(t, err)
	conn2.Close()
}

func TestAttemptStreamRejectsSubmittedAttempt(t *testing.T) {
	f := newAPIFixture(t)
	student := f.token(t, studentID, service.RoleStudent)
	start := f.startAttempt(t, student)

	status, _ := f.call(t, http.MethodPost, "/api/v1/student/attempts/"+start.AttemptID.String()+"/submit",
		nil, student, start.SessionToken)
	require.Equal(t, http.StatusOK, status)

	srv := httptest.NewServer(f.engine)
	defer srv.Close()

	_, resp, err := dialStream(t, srv, f, start.AttemptID, start.SessionToken)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	var body apiResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ALREADY_SUBMITTED", errCode(body))
}
