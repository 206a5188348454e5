package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"exam-engine/internal/config"
	"exam-engine/internal/domain"
	"exam-engine/internal/dto"
	"exam-engine/internal/handler"
	"exam-engine/internal/logger"
	"exam-engine/internal/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "handler-secret"

func TestMain(m *testing.M) {
	if err := logger.Initialize(config.LoggerConfig{Env: "test", Level: "debug"}); err != nil {
		panic("Failed to initialize logger for tests: " + err.Error())
	}
	exitVal := m.Run()
	_ = logger.Sync()
	os.Exit(exitVal)
}

// --- Manual Mocks ---

// MockExamService
type MockExamService struct {
	ListExamsFunc        func(ctx context.Context, query dto.ExamListQuery) (*dto.ExamListResponse, error)
	GetExamDetailFunc    func(ctx context.Context, examID int64, userID string) (*dto.ExamDetailResponse, error)
	GetSectionDetailFunc func(ctx context.Context, examID, sectionID int64, includeAnswers bool) (*dto.SectionResponse, error)
	ImportExamFunc       func(ctx context.Context, req *dto.ImportExamRequest) (*dto.ExamDetailResponse, error)
	ImportExamsFunc      func(ctx context.Context, reqs []dto.ImportExamRequest) ([]*dto.ExamDetailResponse, error)
	UpdateExamFunc       func(ctx context.Context, examID int64, req *dto.UpdateExamRequest) (*dto.ExamDetailResponse, error)
	DeleteExamFunc       func(ctx context.Context, examID int64) error
}

func (m *MockExamService) ListExams(ctx context.Context, query dto.ExamListQuery) (*dto.ExamListResponse, error) {
	if m.ListExamsFunc != nil {
		return m.ListExamsFunc(ctx, query)
	}
	panic("MockExamService.ListExamsFunc not implemented")
}
func (m *MockExamService) GetExamDetail(ctx context.Context, examID int64, userID string) (*dto.ExamDetailResponse, error) {
	if m.GetExamDetailFunc != nil {
		return m.GetExamDetailFunc(ctx, examID, userID)
	}
	panic("MockExamService.GetExamDetailFunc not implemented")
}
func (m *MockExamService) GetSectionDetail(ctx context.Context, examID, sectionID int64, includeAnswers bool) (*dto.SectionResponse, error) {
	if m.GetSectionDetailFunc != nil {
		return m.GetSectionDetailFunc(ctx, examID, sectionID, includeAnswers)
	}
	panic("MockExamService.GetSectionDetailFunc not implemented")
}
func (m *MockExamService) ImportExam(ctx context.Context, req *dto.ImportExamRequest) (*dto.ExamDetailResponse, error) {
	if m.ImportExamFunc != nil {
		return m.ImportExamFunc(ctx, req)
	}
	panic("MockExamService.ImportExamFunc not implemented")
}
func (m *MockExamService) ImportExams(ctx context.Context, reqs []dto.ImportExamRequest) ([]*dto.ExamDetailResponse, error) {
	if m.ImportExamsFunc != nil {
		return m.ImportExamsFunc(ctx, reqs)
	}
	panic("MockExamService.ImportExamsFunc not implemented")
}
func (m *MockExamService) UpdateExam(ctx context.Context, examID int64, req *dto.UpdateExamRequest) (*dto.ExamDetailResponse, error) {
	if m.UpdateExamFunc != nil {
		return m.UpdateExamFunc(ctx, examID, req)
	}
	panic("MockExamService.UpdateExamFunc not implemented")
}
func (m *MockExamService) DeleteExam(ctx context.Context, examID int64) error {
	if m.DeleteExamFunc != nil {
		return m.DeleteExamFunc(ctx, examID)
	}
	panic("MockExamService.DeleteExamFunc not implemented")
}

// MockAttemptService
type MockAttemptService struct {
	StartAttemptFunc      func(ctx context.Context, userID string, examID int64, req *dto.StartAttemptRequest) (*dto.AttemptResponse, error)
	SubmitSectionFunc     func(ctx context.Context, attemptID, sectionID int64, userID string, req *dto.SubmitSectionRequest) (*dto.SectionSubmissionResponse, error)
	FinalizeAttemptFunc   func(ctx context.Context, attemptID int64, userID string) (*dto.FinalizeAttemptResponse, error)
	ListAttemptsFunc      func(ctx context.Context, userID string, page, limit int) (*dto.AttemptListResponse, error)
	GetAttemptDetailFunc  func(ctx context.Context, attemptID int64, userID string) (*dto.AttemptDetailResponse, error)
	AdminListAttemptsFunc func(ctx context.Context, query dto.AttemptListQuery) (*dto.AttemptListResponse, error)
	ExportAttemptsFunc    func(ctx context.Context, query dto.AttemptListQuery, w io.Writer) (int, error)
}

func (m *MockAttemptService) StartAttempt(ctx context.Context, userID string, examID int64, req *dto.StartAttemptRequest) (*dto.AttemptResponse, error) {
	if m.StartAttemptFunc != nil {
		return m.StartAttemptFunc(ctx, userID, examID, req)
	}
	panic("MockAttemptService.StartAttemptFunc not implemented")
}
func (m *MockAttemptService) SubmitSection(ctx context.Context, attemptID, sectionID int64, userID string, req *dto.SubmitSectionRequest) (*dto.SectionSubmissionResponse, error) {
	if m.SubmitSectionFunc != nil {
		return m.SubmitSectionFunc(ctx, attemptID, sectionID, userID, req)
	}
	panic("MockAttemptService.SubmitSectionFunc not implemented")
}
func (m *MockAttemptService) FinalizeAttempt(ctx context.Context, attemptID int64, userID string) (*dto.FinalizeAttemptResponse, error) {
	if m.FinalizeAttemptFunc != nil {
		return m.FinalizeAttemptFunc(ctx, attemptID, userID)
	}
	panic("MockAttemptService.FinalizeAttemptFunc not implemented")
}
func (m *MockAttemptService) ListAttempts(ctx context.Context, userID string, page, limit int) (*dto.AttemptListResponse, error) {
	if m.ListAttemptsFunc != nil {
		return m.ListAttemptsFunc(ctx, userID, page, limit)
	}
	panic("MockAttemptService.ListAttemptsFunc not implemented")
}
func (m *MockAttemptService) GetAttemptDetail(ctx context.Context, attemptID int64, userID string) (*dto.AttemptDetailResponse, error) {
	if m.GetAttemptDetailFunc != nil {
		return m.GetAttemptDetailFunc(ctx, attemptID, userID)
	}
	panic("MockAttemptService.GetAttemptDetailFunc not implemented")
}
func (m *MockAttemptService) AdminListAttempts(ctx context.Context, query dto.AttemptListQuery) (*dto.AttemptListResponse, error) {
	if m.AdminListAttemptsFunc != nil {
		return m.AdminListAttemptsFunc(ctx, query)
	}
	panic("MockAttemptService.AdminListAttemptsFunc not implemented")
}
func (m *MockAttemptService) ExportAttempts(ctx context.Context, query dto.AttemptListQuery, w io.Writer) (int, error) {
	if m.ExportAttemptsFunc != nil {
		return m.ExportAttemptsFunc(ctx, query, w)
	}
	panic("MockAttemptService.ExportAttemptsFunc not implemented")
}

func setupApp(exams *MockExamService, attempts *MockAttemptService) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler()})
	handler.RegisterRoutes(app, handler.Handlers{
		Exams:    handler.NewExamHandler(exams),
		Attempts: handler.NewAttemptHandler(attempts),
		Admin:    handler.NewAdminHandler(exams, attempts),
	}, middleware.NewJWTVerifier(testSecret, ""))
	return app
}

func bearer(t *testing.T, userID, role string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, dto.AuthClaims{
		UserID:           userID,
		Role:             role,
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return "Bearer " + token
}

func doRequest(t *testing.T, app *fiber.App, method, path, auth string, body interface{}) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = bytes.NewBufferString(b)
		default:
			data, err := json.Marshal(b)
			require.NoError(t, err)
			reader = bytes.NewReader(data)
		}
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set(middleware.AuthorizationHeader, auth)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decodeError(t *testing.T, resp *http.Response) middleware.ErrorResponse {
	t.Helper()
	var body middleware.ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestExamHandler_ListExams(t *testing.T) {
	exams := &MockExamService{
		ListExamsFunc: func(ctx context.Context, query dto.ExamListQuery) (*dto.ExamListResponse, error) {
			assert.Equal(t, "ielts", query.ExamType)
			assert.Equal(t, 2, query.Page)
			require.NotNil(t, query.IsPublished)
			assert.True(t, *query.IsPublished)
			return &dto.ExamListResponse{CurrentPage: 2, Total: 11, TotalPages: 2}, nil
		},
	}
	app := setupApp(exams, &MockAttemptService{})

	resp := doRequest(t, app, "GET", "/api/exams?examType=ielts&isPublished=true&page=2", "", nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	var body dto.ExamListResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 11, body.Total)

	resp = doRequest(t, app, "GET", "/api/exams?isPublished=maybe", "", nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestExamHandler_GetExamDetail(t *testing.T) {
	var seenUser string
	exams := &MockExamService{
		GetExamDetailFunc: func(ctx context.Context, examID int64, userID string) (*dto.ExamDetailResponse, error) {
			seenUser = userID
			if examID == 404 {
				return nil, domain.NewExamNotFoundError(examID)
			}
			return &dto.ExamDetailResponse{ExamSummaryResponse: dto.ExamSummaryResponse{ID: examID}}, nil
		},
	}
	app := setupApp(exams, &MockAttemptService{})

	resp := doRequest(t, app, "GET", "/api/exams/7", "", nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Empty(t, seenUser)

	resp = doRequest(t, app, "GET", "/api/exams/7", bearer(t, "u1", "USER"), nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "u1", seenUser)

	resp = doRequest(t, app, "GET", "/api/exams/404", "", nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Equal(t, string(domain.ErrExamNotFound), decodeError(t, resp).Code)

	resp = doRequest(t, app, "GET", "/api/exams/abc", "", nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestExamHandler_SectionDetailHidesAnswers(t *testing.T) {
	exams := &MockExamService{
		GetSectionDetailFunc: func(ctx context.Context, examID, sectionID int64, includeAnswers bool) (*dto.SectionResponse, error) {
			return &dto.SectionResponse{ID: sectionID, Instructions: map[bool]string{true: "with answers", false: "public"}[includeAnswers]}, nil
		},
	}
	app := setupApp(exams, &MockAttemptService{})

	resp := doRequest(t, app, "GET", "/api/exams/1/sections/2", "", nil)
	var public dto.SectionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&public))
	assert.Equal(t, "public", public.Instructions)

	resp = doRequest(t, app, "GET", "/api/admin/exams/1/sections/2", bearer(t, "admin", "ADMIN"), nil)
	var admin dto.SectionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&admin))
	assert.Equal(t, "with answers", admin.Instructions)
}

func TestAttemptHandler_Lifecycle(t *testing.T) {
	attempts := &MockAttemptService{
		StartAttemptFunc: func(ctx context.Context, userID string, examID int64, req *dto.StartAttemptRequest) (*dto.AttemptResponse, error) {
			assert.Equal(t, "u1", userID)
			assert.Equal(t, int64(3), examID)
			assert.Equal(t, "FULL", req.Mode)
			return &dto.AttemptResponse{ID: 10, UserID: userID, ExamID: examID, Mode: req.Mode, Status: "IN_PROGRESS"}, nil
		},
		SubmitSectionFunc: func(ctx context.Context, attemptID, sectionID int64, userID string, req *dto.SubmitSectionRequest) (*dto.SectionSubmissionResponse, error) {
			assert.Equal(t, int64(10), attemptID)
			assert.Equal(t, int64(4), sectionID)
			require.Len(t, req.Answers, 2)
			assert.Equal(t, "cat", req.Answers[0].Answer)
			assert.Nil(t, req.Answers[1].Answer)
			return &dto.SectionSubmissionResponse{SectionID: sectionID, AnsweredCount: 1, CorrectCount: 1, TotalQuestions: 2}, nil
		},
		FinalizeAttemptFunc: func(ctx context.Context, attemptID int64, userID string) (*dto.FinalizeAttemptResponse, error) {
			return nil, domain.NewAttemptIncompleteError([]int64{5})
		},
	}
	app := setupApp(&MockExamService{}, attempts)
	auth := bearer(t, "u1", "USER")

	resp := doRequest(t, app, "POST", "/api/exams/3/start", "", map[string]interface{}{"mode": "FULL"})
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp = doRequest(t, app, "POST", "/api/exams/3/start", auth, map[string]interface{}{"mode": "FULL"})
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)

	resp = doRequest(t, app, "POST", "/api/exam-attempts/10/sections/4/submit", auth,
		`{"answers":[{"questionId":1,"answer":"cat"},{"questionId":2,"answer":null}]}`)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	var progress dto.SectionSubmissionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&progress))
	assert.Equal(t, 1, progress.CorrectCount)

	resp = doRequest(t, app, "POST", "/api/exam-attempts/10/sections/4/submit", auth, `{"answers": [`)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, string(domain.ErrInvalidInput), decodeError(t, resp).Code)

	resp = doRequest(t, app, "POST", "/api/exam-attempts/10/submit", auth, nil)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	errBody := decodeError(t, resp)
	assert.Equal(t, string(domain.ErrAttemptIncomplete), errBody.Code)
	assert.Equal(t, []interface{}{float64(5)}, errBody.Details["missingSectionIds"])
}

func TestAttemptHandler_ListAndDetail(t *testing.T) {
	attempts := &MockAttemptService{
		ListAttemptsFunc: func(ctx context.Context, userID string, page, limit int) (*dto.AttemptListResponse, error) {
			assert.Equal(t, "u1", userID)
			assert.Equal(t, 1, page)
			assert.Equal(t, 5, limit)
			return &dto.AttemptListResponse{CurrentPage: page, Attempts: []dto.AttemptListItem{}}, nil
		},
		GetAttemptDetailFunc: func(ctx context.Context, attemptID int64, userID string) (*dto.AttemptDetailResponse, error) {
			if userID == "u2" {
				return nil, domain.NewNotAttemptOwnerError(attemptID)
			}
			return &dto.AttemptDetailResponse{Attempt: dto.AttemptResponse{ID: attemptID, UserID: "u1"}}, nil
		},
	}
	app := setupApp(&MockExamService{}, attempts)

	resp := doRequest(t, app, "GET", "/api/exam-attempts?limit=5", bearer(t, "u1", "USER"), nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp = doRequest(t, app, "GET", "/api/exam-attempts/9", bearer(t, "u2", "USER"), nil)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestAdminHandler_RequiresAdmin(t *testing.T) {
	app := setupApp(&MockExamService{}, &MockAttemptService{})

	resp := doRequest(t, app, "GET", "/api/admin/exam-attempts", "", nil)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp = doRequest(t, app, "GET", "/api/admin/exam-attempts", bearer(t, "u1", "USER"), nil)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestAdminHandler_Import(t *testing.T) {
	exams := &MockExamService{
		ImportExamFunc: func(ctx context.Context, req *dto.ImportExamRequest) (*dto.ExamDetailResponse, error) {
			return &dto.ExamDetailResponse{ExamSummaryResponse: dto.ExamSummaryResponse{ID: 1, Code: req.Code}}, nil
		},
		ImportExamsFunc: func(ctx context.Context, reqs []dto.ImportExamRequest) ([]*dto.ExamDetailResponse, error) {
			if reqs[0].Code == "DUP" {
				return nil, domain.NewDuplicateExamCodeError("DUP")
			}
			out := make([]*dto.ExamDetailResponse, 0, len(reqs))
			for i, r := range reqs {
				out = append(out, &dto.ExamDetailResponse{ExamSummaryResponse: dto.ExamSummaryResponse{ID: int64(i + 1), Code: r.Code}})
			}
			return out, nil
		},
	}
	app := setupApp(exams, &MockAttemptService{})
	auth := bearer(t, "admin", "ADMIN")

	resp := doRequest(t, app, "POST", "/api/admin/exams/import", auth, dto.ImportExamRequest{Code: "ONE", Title: "One"})
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)
	var single dto.ExamDetailResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&single))
	assert.Equal(t, "ONE", single.Code)

	resp = doRequest(t, app, "POST", "/api/admin/exams/import", auth, []dto.ImportExamRequest{{Code: "A"}, {Code: "B"}})
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)
	var many []dto.ExamDetailResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&many))
	assert.Len(t, many, 2)

	resp = doRequest(t, app, "POST", "/api/admin/exams/import", auth, []dto.ImportExamRequest{{Code: "DUP"}})
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)

	resp = doRequest(t, app, "POST", "/api/admin/exams/import", auth, "")
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestAdminHandler_UpdateAndDelete(t *testing.T) {
	exams := &MockExamService{
		UpdateExamFunc: func(ctx context.Context, examID int64, req *dto.UpdateExamRequest) (*dto.ExamDetailResponse, error) {
			require.NotNil(t, req.Title)
			assert.Nil(t, req.Code)
			return &dto.ExamDetailResponse{ExamSummaryResponse: dto.ExamSummaryResponse{ID: examID, Title: *req.Title}}, nil
		},
		DeleteExamFunc: func(ctx context.Context, examID int64) error {
			if examID == 99 {
				return domain.NewExamNotFoundError(examID)
			}
			return nil
		},
	}
	app := setupApp(exams, &MockAttemptService{})
	auth := bearer(t, "admin", "ADMIN")

	resp := doRequest(t, app, "PATCH", "/api/admin/exams/3", auth, map[string]interface{}{"title": "New title"})
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp = doRequest(t, app, "DELETE", "/api/admin/exams/3", auth, nil)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)

	resp = doRequest(t, app, "DELETE", "/api/admin/exams/99", auth, nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestAdminHandler_AttemptQueries(t *testing.T) {
	attempts := &MockAttemptService{
		AdminListAttemptsFunc: func(ctx context.Context, query dto.AttemptListQuery) (*dto.AttemptListResponse, error) {
			require.NotNil(t, query.ExamID)
			assert.Equal(t, int64(4), *query.ExamID)
			assert.Equal(t, "SUBMITTED", query.Status)
			require.NotNil(t, query.MinScore)
			assert.Equal(t, 2.5, *query.MinScore)
			require.NotNil(t, query.EndDate)
			assert.Equal(t, 23, query.EndDate.Hour())
			return &dto.AttemptListResponse{Total: 1}, nil
		},
		ExportAttemptsFunc: func(ctx context.Context, query dto.AttemptListQuery, w io.Writer) (int, error) {
			_, err := w.Write([]byte("xlsx-bytes"))
			return 1, err
		},
		GetAttemptDetailFunc: func(ctx context.Context, attemptID int64, userID string) (*dto.AttemptDetailResponse, error) {
			assert.Empty(t, userID)
			return &dto.AttemptDetailResponse{Attempt: dto.AttemptResponse{ID: attemptID}}, nil
		},
	}
	app := setupApp(&MockExamService{}, attempts)
	auth := bearer(t, "admin", "ADMIN")

	resp := doRequest(t, app, "GET", "/api/admin/exam-attempts?examId=4&status=SUBMITTED&minScore=2.5&endDate=2026-01-31", auth, nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp = doRequest(t, app, "GET", "/api/admin/exam-attempts?startDate=yesterday", auth, nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp = doRequest(t, app, "GET", "/api/admin/exam-attempts/export", auth, nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get(fiber.HeaderContentType), "spreadsheetml")
	assert.Contains(t, resp.Header.Get(fiber.HeaderContentDisposition), "attachment")
	data, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "xlsx-bytes", string(data))

	resp = doRequest(t, app, "GET", "/api/admin/exam-attempts/12", auth, nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
