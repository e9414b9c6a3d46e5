package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campus-systems/enroll-api/internal/models"
	"github.com/campus-systems/enroll-api/internal/service"
	"github.com/campus-systems/enroll-api/pkg/config"
	appErrors "github.com/campus-systems/enroll-api/pkg/errors"
)

const (
	handlerSubjectID  = "7b9f2f4e-0f7c-4a3c-9a49-1a2b3c4d5e6f"
	handlerSemesterID = "3c1d2e3f-4a5b-6c7d-8e9f-0a1b2c3d4e5f"
)

type stubUserRepo struct {
	users map[string]*models.User
}

func (s *stubUserRepo) Create(_ context.Context, user *models.User) error {
	if s.users == nil {
		s.users = make(map[string]*models.User)
	}
	s.users[user.Email] = user
	return nil
}

func (s *stubUserRepo) FindByEmail(_ context.Context, email string) (*models.User, error) {
	if user, ok := s.users[email]; ok {
		return user, nil
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
}

func (s *stubUserRepo) FindByID(_ context.Context, id string) (*models.User, error) {
	for _, user := range s.users {
		if user.ID == id {
			return user, nil
		}
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
}

type stubEnrollmentRepo struct {
	enrollErr error
}

func (s *stubEnrollmentRepo) Enroll(_ context.Context, studentID, subjectID, semesterID string) (*models.Enrollment, error) {
	if s.enrollErr != nil {
		return nil, s.enrollErr
	}
	return &models.Enrollment{
		ID:         "enr-1",
		StudentID:  studentID,
		SubjectID:  subjectID,
		SemesterID: semesterID,
		Status:     models.EnrollmentStatusActive,
		EnrolledAt: time.Now().UTC(),
	}, nil
}

func (s *stubEnrollmentRepo) Withdraw(_ context.Context, enrollmentID, studentID string) (*models.Enrollment, error) {
	return &models.Enrollment{ID: enrollmentID, StudentID: studentID, Status: models.EnrollmentStatusDropped}, nil
}

func (s *stubEnrollmentRepo) FindDetailByID(_ context.Context, id string) (*models.EnrollmentDetail, error) {
	return &models.EnrollmentDetail{
		Enrollment:  models.Enrollment{ID: id, Status: models.EnrollmentStatusActive},
		SubjectName: "Intro to CS",
		SubjectCode: "CS101",
	}, nil
}

func (s *stubEnrollmentRepo) ListActiveByStudent(_ context.Context, studentID string) ([]models.EnrollmentDetail, error) {
	return nil, nil
}

func (s *stubEnrollmentRepo) CheckEligibility(_ context.Context, studentID, subjectID, semesterID string) error {
	return nil
}

type stubHistoryRepo struct{}

func (s *stubHistoryRepo) ListByStudent(_ context.Context, studentID string) ([]models.HistoryDetail, error) {
	return nil, nil
}

func buildEnrollmentRouter(t *testing.T, repo *stubEnrollmentRepo) (*gin.Engine, string, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := zap.NewNop()
	jwtCfg := config.JWTConfig{Secret: "test-secret", Expiration: time.Hour, Issuer: "enroll-api"}
	authService := service.NewAuthService(&stubUserRepo{}, jwtCfg, nil, logger)

	metrics := service.NewMetricsService()
	cacheSvc := service.NewCacheService(nil, metrics, time.Minute, logger, false)
	eligibility := service.NewEligibilityChecker(repo, logger)
	enrollmentService := service.NewEnrollmentService(repo, eligibility, &stubHistoryRepo{}, cacheSvc, metrics, nil, logger)

	router := gin.New()
	RegisterRoutes(router, "/api/v1", Handlers{
		Auth:       NewAuthHandler(authService),
		Enrollment: NewEnrollmentHandler(enrollmentService),
	}, authService)

	studentRes, err := authService.Register(context.Background(), models.RegisterRequest{
		Email: "student@example.com", Password: "hunter22", FullName: "Stu Dent", Role: "student", RollNumber: "R-1",
	})
	require.NoError(t, err)
	teacherRes, err := authService.Register(context.Background(), models.RegisterRequest{
		Email: "teacher@example.com", Password: "hunter22", FullName: "Tea Cher", Role: "teacher",
	})
	require.NoError(t, err)

	return router, studentRes.AccessToken, teacherRes.AccessToken
}

func enrollPayload() *bytes.Buffer {
	body, _ := json.Marshal(map[string]string{
		"subject_id":  handlerSubjectID,
		"semester_id": handlerSemesterID,
	})
	return bytes.NewBuffer(body)
}

func performEnroll(router *gin.Engine, token string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(http.MethodPost, "/api/v1/enrollments", enrollPayload())
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestEnrollmentRoutes(t *testing.T) {
	router, studentToken, teacherToken := buildEnrollmentRouter(t, &stubEnrollmentRepo{})

	t.Run("requires token", func(t *testing.T) {
		resp := performEnroll(router, "")
		require.Equal(t, http.StatusUnauthorized, resp.Code)
	})

	t.Run("teachers cannot enroll", func(t *testing.T) {
		resp := performEnroll(router, teacherToken)
		require.Equal(t, http.StatusForbidden, resp.Code)
	})

	t.Run("student enrolls", func(t *testing.T) {
		resp := performEnroll(router, studentToken)
		require.Equal(t, http.StatusCreated, resp.Code)
		require.Contains(t, resp.Body.String(), `"subject_code":"CS101"`)
	})

	t.Run("list mine", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, "/api/v1/enrollments/me", nil)
		req.Header.Set("Authorization", "Bearer "+studentToken)
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)
		require.Equal(t, http.StatusOK, resp.Code)
	})
}

func TestEnrollmentRoutesRetryableConflict(t *testing.T) {
	repo := &stubEnrollmentRepo{enrollErr: appErrors.Clone(appErrors.ErrConflict, "")}
	router, studentToken, _ := buildEnrollmentRouter(t, repo)

	resp := performEnroll(router, studentToken)
	require.Equal(t, http.StatusConflict, resp.Code)
	require.Equal(t, "1", resp.Header().Get("Retry-After"))
	require.Contains(t, resp.Body.String(), `"retryable":true`)
}

func TestEnrollmentRoutesPermanentConflict(t *testing.T) {
	conflict := appErrors.Clone(appErrors.ErrConflict, "you are already enrolled in this subject")
	conflict.Retryable = false
	repo := &stubEnrollmentRepo{enrollErr: conflict}
	router, studentToken, _ := buildEnrollmentRouter(t, repo)

	resp := performEnroll(router, studentToken)
	require.Equal(t, http.StatusConflict, resp.Code)
	require.Empty(t, resp.Header().Get("Retry-After"))
	require.NotContains(t, resp.Body.String(), `"retryable":true`)

	var envelope struct {
		Error *appErrors.Error `json:"error"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))
	require.Equal(t, appErrors.ErrConflict.Code, envelope.Error.Code)
	require.Contains(t, envelope.Error.Message, "already enrolled")
}
