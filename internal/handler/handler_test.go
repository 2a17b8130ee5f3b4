package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/marksheet-ocr-api/internal/dto"
	"github.com/noah-isme/marksheet-ocr-api/internal/models"
	"github.com/noah-isme/marksheet-ocr-api/internal/service"
	appErrors "github.com/noah-isme/marksheet-ocr-api/pkg/errors"
)

type studentServiceMock struct {
	filter models.StudentFilter
}

func (m *studentServiceMock) List(_ context.Context, filter models.StudentFilter) ([]dto.StudentResult, *models.Pagination, error) {
	m.filter = filter
	return []dto.StudentResult{{RollNumber: "1"}}, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: 1}, nil
}

func (m *studentServiceMock) Get(_ context.Context, id string) (*dto.StudentResult, error) {
	if id != "s1" {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}
	return &dto.StudentResult{ID: "s1"}, nil
}

func TestStudentHandlerList(t *testing.T) {
	svc := &studentServiceMock{}
	h := NewStudentHandler(svc)

	c, w := newGinContext(http.MethodGet, "/students?search=kumar&upload_id=u1&page=2&limit=5", nil)
	h.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.StudentFilter{Search: "kumar", UploadID: "u1", Page: 2, PageSize: 5}, svc.filter)
	env := decodeEnvelope(t, w)
	require.NotNil(t, env.Pagination)
	assert.Equal(t, 1, env.Pagination.TotalCount)
}

func TestStudentHandlerGet(t *testing.T) {
	h := NewStudentHandler(&studentServiceMock{})

	c, w := newGinContext(http.MethodGet, "/students/s2", nil)
	c.Params = gin.Params{{Key: "id", Value: "s2"}}
	h.Get(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

type subjectServiceMock struct {
	filter models.SubjectFilter
}

func (m *subjectServiceMock) List(_ context.Context, filter models.SubjectFilter) ([]models.Subject, *models.Pagination, error) {
	m.filter = filter
	return []models.Subject{{Code: "01", Name: "HINDI"}}, &models.Pagination{Page: 1, PageSize: 50, TotalCount: 1}, nil
}

func TestSubjectHandlerList(t *testing.T) {
	svc := &subjectServiceMock{}
	h := NewSubjectHandler(svc)

	c, w := newGinContext(http.MethodGet, "/subjects?search=hin", nil)
	h.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hin", svc.filter.Search)
	assert.Equal(t, 50, svc.filter.PageSize)
}

type authServiceMock struct{}

func (authServiceMock) Login(_ context.Context, req dto.LoginRequest) (*dto.LoginResponse, error) {
	if req.Password != "s3cret" {
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "")
	}
	return &dto.LoginResponse{AccessToken: "token", TokenType: "Bearer"}, nil
}

func TestAuthHandlerLogin(t *testing.T) {
	h := NewAuthHandler(authServiceMock{})

	c, w := newGinContext(http.MethodPost, "/auth/login", []byte(`{"username":"admin","password":"s3cret"}`))
	h.Login(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(decodeEnvelope(t, w).Data), `"access_token":"token"`)

	c, w = newGinContext(http.MethodPost, "/auth/login", []byte(`{"username":"admin","password":"nope"}`))
	h.Login(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	c, w = newGinContext(http.MethodPost, "/auth/login", []byte(`not json`))
	h.Login(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMetricsHandlerReady(t *testing.T) {
	healthy := PingFunc(func(context.Context) error { return nil })
	down := PingFunc(func(context.Context) error { return errors.New("dial tcp: refused") })

	h := NewMetricsHandler(service.NewMetricsService(), map[string]Pinger{"database": healthy})
	c, w := newGinContext(http.MethodGet, "/ready", nil)
	h.Ready(c)
	assert.Equal(t, http.StatusOK, w.Code)

	h = NewMetricsHandler(nil, map[string]Pinger{"database": healthy, "redis": down})
	c, w = newGinContext(http.MethodGet, "/ready", nil)
	h.Ready(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "redis is unavailable", decodeEnvelope(t, w).Error.Message)

	c, w = newGinContext(http.MethodGet, "/metrics", nil)
	h.Prometheus(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	c, w = newGinContext(http.MethodGet, "/health", nil)
	h.Health(c)
	assert.Equal(t, http.StatusOK, w.Code)
}
