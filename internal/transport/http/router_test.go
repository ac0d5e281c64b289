package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"
	"live-quiz-service/internal/realtime"
	"live-quiz-service/internal/security"
)

type fixture struct {
	server    *httptest.Server
	hub       *realtime.Hub
	admin     string
	student   string
	studentID string
}

func newFixture(t *testing.T, push bool) *fixture {
	t.Helper()
	ctx := context.Background()

	store := memory.NewQuizStore()
	bank := memory.NewQuestionBank(
		domain.Question{ID: "q1", Text: "2 + 2?", OptionA: "4", OptionB: "5", OptionC: "6", OptionD: "7", Correct: domain.LabelA, Difficulty: domain.DifficultyEasy},
		domain.Question{ID: "q2", Text: "Capital of France?", OptionA: "Rome", OptionB: "Paris", OptionC: "Lyon", OptionD: "Nice", Correct: domain.LabelB, Difficulty: domain.DifficultyMedium},
	)
	accountStore := memory.NewAccountStore()
	accounts := app.NewAccountService(accountStore, security.NewBcryptHasher(bcrypt.MinCost))
	tokens := security.NewJWTService("test-secret", "live-quiz-test", time.Hour)

	feed := app.NewFeed()
	var hub *realtime.Hub
	notifier := app.Notifiers{feed}
	if push {
		hub = realtime.NewHub(realtime.HeartbeatConfig{}, nil)
		t.Cleanup(hub.Close)
		notifier = append(notifier, hub)
	}
	quiz := app.NewQuizService(store, bank, accountStore, notifier, app.QuizOptions{})
	t.Cleanup(quiz.Close)

	_, err := accounts.Create(ctx, app.AccountInput{Username: "root", Password: "rootpass", DisplayName: "Root", Role: domain.RoleSuperAdmin})
	require.NoError(t, err)
	student, err := accounts.Create(ctx, app.AccountInput{Username: "alice", Password: "alicepass", DisplayName: "Alice", Role: domain.RoleStudent, School: "North High"})
	require.NoError(t, err)

	server := httptest.NewServer(NewRouter(Deps{
		Quiz:      quiz,
		Questions: app.NewQuestionService(bank, quiz),
		Accounts:  accounts,
		Tokens:    tokens,
		Feed:      feed,
		Hub:       hub,
	}))
	t.Cleanup(server.Close)

	f := &fixture{server: server, hub: hub, studentID: student.ID}
	f.admin = f.login(t, "root", "rootpass")
	f.student = f.login(t, "alice", "alicepass")
	return f
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, f.server.URL+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := f.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func (f *fixture) login(t *testing.T, username, password string) string {
	t.Helper()
	status, body := f.do(t, http.MethodPost, "/api/auth/login", "", loginRequest{Username: username, Password: password})
	require.Equal(t, http.StatusOK, status, string(body))
	var resp loginResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	return resp.Token
}

func decode[T any](t *testing.T, body []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(body, &v), string(body))
	return v
}

func TestLoginRejectsBadPassword(t *testing.T) {
	f := newFixture(t, false)

	status, body := f.do(t, http.MethodPost, "/api/auth/login", "", loginRequest{Username: "alice", Password: "nope"})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, domain.ErrInvalidCredentials.Error(), decode[errorBody](t, body).Error)

	status, body = f.do(t, http.MethodGet, "/api/auth/me", f.student, nil)
	require.Equal(t, http.StatusOK, status)
	me := decode[map[string]any](t, body)
	assert.Equal(t, "alice", me["username"])
	assert.NotContains(t, me, "passwordHash")
}

func TestStateRequiresSession(t *testing.T) {
	f := newFixture(t, false)

	status, _ := f.do(t, http.MethodGet, "/api/quiz/state", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = f.do(t, http.MethodGet, "/api/quiz/state", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body := f.do(t, http.MethodGet, "/api/quiz/state", f.student, nil)
	require.Equal(t, http.StatusOK, status)
	snap := decode[domain.QuizSnapshot](t, body)
	assert.Equal(t, domain.PhaseWaiting, snap.Phase)
	assert.Equal(t, 2, snap.QuestionCount)
}

func TestStartIsStaffOnlyAndNotRepeatable(t *testing.T) {
	f := newFixture(t, false)

	status, _ := f.do(t, http.MethodPost, "/api/quiz/start", f.student, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, body := f.do(t, http.MethodPost, "/api/quiz/start", f.admin, nil)
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Equal(t, domain.PhaseStarted, decode[domain.QuizSnapshot](t, body).Phase)

	status, _ = f.do(t, http.MethodPost, "/api/quiz/start", f.admin, nil)
	assert.Equal(t, http.StatusConflict, status)

	_, body = f.do(t, http.MethodGet, "/api/quiz/state", f.student, nil)
	assert.Equal(t, domain.PhaseStarted, decode[domain.QuizSnapshot](t, body).Phase)
}

func TestStudentRoundTrip(t *testing.T) {
	f := newFixture(t, false)

	status, _ := f.do(t, http.MethodGet, "/api/questions", f.student, nil)
	assert.Equal(t, http.StatusConflict, status, "questions are hidden before start")

	status, _ = f.do(t, http.MethodPost, "/api/quiz/start", f.admin, nil)
	require.Equal(t, http.StatusOK, status)

	status, body := f.do(t, http.MethodGet, "/api/questions", f.student, nil)
	require.Equal(t, http.StatusOK, status)
	questions := decode[[]map[string]any](t, body)
	require.Len(t, questions, 2)
	assert.NotContains(t, questions[0], "correct")

	a, c := domain.LabelA, domain.LabelC
	status, body = f.do(t, http.MethodPost, "/api/answers", f.student, domain.AnswerSubmission{QuestionID: "q1", Value: &a, ResponseTime: 4})
	require.Equal(t, http.StatusCreated, status, string(body))
	assert.True(t, decode[answerResponse](t, body).Stored)

	status, body = f.do(t, http.MethodPost, "/api/answers", f.student, domain.AnswerSubmission{QuestionID: "q1", Value: &a, ResponseTime: 4})
	require.Equal(t, http.StatusOK, status)
	assert.False(t, decode[answerResponse](t, body).Stored)

	status, _ = f.do(t, http.MethodPost, "/api/answers", f.student, domain.AnswerSubmission{QuestionID: "q2", Value: &c, ResponseTime: 6})
	require.Equal(t, http.StatusCreated, status)

	status, _ = f.do(t, http.MethodPost, "/api/answers", f.student, domain.AnswerSubmission{QuestionID: "q9", Value: &c})
	assert.Equal(t, http.StatusUnprocessableEntity, status)

	status, _ = f.do(t, http.MethodPost, "/api/answers", f.admin, domain.AnswerSubmission{QuestionID: "q1", Value: &a})
	assert.Equal(t, http.StatusForbidden, status)

	status, body = f.do(t, http.MethodPost, "/api/results", f.student, map[string]any{"completionTime": 30})
	require.Equal(t, http.StatusCreated, status, string(body))
	result := decode[domain.Result](t, body)
	assert.Equal(t, 1, result.Score)
	assert.Equal(t, 1, result.Correct)
	assert.Equal(t, 1, result.Incorrect)
	assert.Equal(t, 0, result.Skipped)
	assert.Equal(t, 5, result.AvgResponseTime)
	require.NotNil(t, result.Rank)
	assert.Equal(t, 1, *result.Rank)

	status, body = f.do(t, http.MethodPost, "/api/results", f.student, map[string]any{"completionTime": 30, "score": 99})
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, 1, decode[domain.Result](t, body).Score, "client scores are ignored")

	status, body = f.do(t, http.MethodGet, "/api/results", f.student, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]domain.Result](t, body), 1)

	status, _ = f.do(t, http.MethodGet, "/api/results/"+f.studentID, f.student, nil)
	assert.Equal(t, http.StatusOK, status)
	status, _ = f.do(t, http.MethodGet, "/api/results/someone-else", f.student, nil)
	assert.Equal(t, http.StatusForbidden, status)
}

func TestResetRequiresConfirmation(t *testing.T) {
	f := newFixture(t, false)
	status, _ := f.do(t, http.MethodPost, "/api/quiz/start", f.admin, nil)
	require.Equal(t, http.StatusOK, status)

	status, _ = f.do(t, http.MethodPost, "/api/quiz/reset", f.admin, resetRequest{})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = f.do(t, http.MethodPost, "/api/quiz/reset", f.student, resetRequest{Confirm: true})
	assert.Equal(t, http.StatusForbidden, status)

	status, body := f.do(t, http.MethodPost, "/api/quiz/reset", f.admin, resetRequest{Confirm: true})
	require.Equal(t, http.StatusOK, status)
	snap := decode[domain.QuizSnapshot](t, body)
	assert.Equal(t, domain.PhaseWaiting, snap.Phase)
	assert.Equal(t, uint64(2), snap.Cycle)
}

func TestQuestionEditsLockedWhileRunning(t *testing.T) {
	f := newFixture(t, false)
	q := domain.Question{Text: "3 + 3?", OptionA: "6", OptionB: "7", OptionC: "8", OptionD: "9", Correct: domain.LabelA}

	status, _ := f.do(t, http.MethodPost, "/api/questions", f.student, q)
	assert.Equal(t, http.StatusForbidden, status)

	status, body := f.do(t, http.MethodPost, "/api/questions", f.admin, q)
	require.Equal(t, http.StatusCreated, status, string(body))
	created := decode[domain.Question](t, body)
	assert.Equal(t, domain.DifficultyMedium, created.Difficulty)

	status, _ = f.do(t, http.MethodPost, "/api/quiz/start", f.admin, nil)
	require.Equal(t, http.StatusOK, status)

	status, _ = f.do(t, http.MethodDelete, "/api/questions/"+created.ID, f.admin, nil)
	assert.Equal(t, http.StatusConflict, status)
}

func TestAccountAdministration(t *testing.T) {
	f := newFixture(t, false)
	in := app.AccountInput{Username: "bob", Password: "bobpass", DisplayName: "Bob", Role: domain.RoleStudent, School: "South High"}

	status, _ := f.do(t, http.MethodPost, "/api/accounts", f.student, in)
	assert.Equal(t, http.StatusForbidden, status)

	status, body := f.do(t, http.MethodPost, "/api/accounts", f.admin, in)
	require.Equal(t, http.StatusCreated, status, string(body))

	status, _ = f.do(t, http.MethodPost, "/api/accounts", f.admin, in)
	assert.Equal(t, http.StatusConflict, status)

	in.Username, in.School = "carol", ""
	status, _ = f.do(t, http.MethodPost, "/api/accounts", f.admin, in)
	assert.Equal(t, http.StatusBadRequest, status, "students need a school")

	status, body = f.do(t, http.MethodGet, "/api/accounts", f.admin, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]domain.Account](t, body), 3)
}

func TestLongPollReturnsOnTransition(t *testing.T) {
	f := newFixture(t, false)

	type reply struct {
		status int
		body   []byte
	}
	done := make(chan reply, 1)
	go func() {
		status, body := f.do(t, http.MethodGet, "/api/quiz/state?since=1&wait=10s", f.student, nil)
		done <- reply{status, body}
	}()

	time.Sleep(100 * time.Millisecond)
	status, _ := f.do(t, http.MethodPost, "/api/quiz/start", f.admin, nil)
	require.Equal(t, http.StatusOK, status)

	select {
	case r := <-done:
		require.Equal(t, http.StatusOK, r.status)
		snap := decode[domain.QuizSnapshot](t, r.body)
		assert.Equal(t, domain.PhaseStarted, snap.Phase)
		assert.Equal(t, uint64(2), snap.Version)
	case <-time.After(5 * time.Second):
		t.Fatalf("long poll did not return after start")
	}

	status, _ = f.do(t, http.MethodGet, "/api/quiz/state?wait=soon", f.student, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestStatusMapping(t *testing.T) {
	cases := map[error]int{
		domain.ErrInvalidStateTransition: http.StatusConflict,
		domain.ErrStaleCycle:             http.StatusConflict,
		domain.ErrDeadlinePassed:         http.StatusConflict,
		domain.ErrForbidden:              http.StatusForbidden,
		domain.ErrUnknownAccount:         http.StatusUnprocessableEntity,
		domain.ErrResultNotFound:         http.StatusNotFound,
		domain.ErrInvalidInput:           http.StatusBadRequest,
		io.ErrUnexpectedEOF:              http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, statusFor(err), err.Error())
	}
}
