package handler_test

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"kicomport/internal/errs"
	"kicomport/internal/handler"
	"kicomport/internal/importer"
	"kicomport/internal/model"
	"kicomport/internal/server"
	"kicomport/test/mocks"
)

var mockLogger = &mocks.MockLogger{}

// stubJobService returns canned results per method.
type stubJobService struct {
	job     *model.Job
	plan    *model.Plan
	applyFn func() (*importer.ApplyResult, error)
	err     error
}

func (s *stubJobService) Upload(ctx context.Context, name string, content []byte) (*model.Job, error) {
	return s.job, s.err
}

func (s *stubJobService) Analyze(ctx context.Context, jobID string) (*model.Job, error) {
	return s.job, s.err
}

func (s *stubJobService) GetJob(jobID string) (*model.Job, error) {
	return s.job, s.err
}

func (s *stubJobService) ListJobs() ([]*model.Job, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []*model.Job{s.job}, nil
}

func (s *stubJobService) GetPlan(jobID string) (*model.Plan, error) {
	return s.plan, s.err
}

func (s *stubJobService) SetSelection(jobID, componentKey string, kind model.CandidateKind, candidateID string) (*model.Plan, error) {
	return s.plan, s.err
}

func (s *stubJobService) Review(jobID string, approved bool, notes string) (*model.Job, error) {
	return s.job, s.err
}

func (s *stubJobService) Apply(ctx context.Context, jobID string) (*importer.ApplyResult, error) {
	if s.applyFn != nil {
		return s.applyFn()
	}
	return nil, s.err
}

func (s *stubJobService) Rollback(ctx context.Context, jobID string, backupID int64) (*model.Job, error) {
	return s.job, s.err
}

func (s *stubJobService) Diff(jobID string, table model.TableKind) (*model.Diff, error) {
	return nil, s.err
}

func (s *stubJobService) AuditHistory(jobID string, sinceID int64, limit int) ([]*model.AuditEvent, error) {
	return nil, s.err
}

func newTestRouter(svc *stubJobService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	h := handler.NewImportHandler(svc, mockLogger)
	server.SetupImportRoutes(router, h, mockLogger)
	return router
}

func uploadRequest(t *testing.T, fieldName string) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile(fieldName, "parts.zip")
	assert.NoError(t, err)
	_, err = part.Write([]byte("not a real archive"))
	assert.NoError(t, err)
	assert.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/kicomport/api/v1/jobs/upload", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestUpload_ReturnsJob(t *testing.T) {
	svc := &stubJobService{job: &model.Job{ID: "job-1", Status: model.StatusUploaded}}
	router := newTestRouter(svc)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, uploadRequest(t, "file"))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "job-1")
}

func TestUpload_MissingFileField(t *testing.T) {
	router := newTestRouter(&stubJobService{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, uploadRequest(t, "wrongfield"))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestErrorStatusMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"record not found", errs.NewRecordNotFoundErr("job", "missing"), http.StatusNotFound},
		{"rollback target not found", errs.ErrRollbackTargetNotFound, http.StatusNotFound},
		{"resource limit", errs.ErrResourceLimitExceeded, http.StatusRequestEntityTooLarge},
		{"apply conflict", errs.ErrApplyConflict, http.StatusConflict},
		{"not approved", errs.ErrNotApproved, http.StatusConflict},
		{"plan incomplete", errs.ErrPlanIncomplete, http.StatusConflict},
		{"duplicate entry", errs.ErrDuplicateEntry, http.StatusConflict},
		{"other", errs.NewInvalidParamErr("kind", "bogus"), http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(&stubJobService{err: tt.err})

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/kicomport/api/v1/jobs/some-id", nil)
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestApply_ReturnsResult(t *testing.T) {
	svc := &stubJobService{applyFn: func() (*importer.ApplyResult, error) {
		return &importer.ApplyResult{Placed: []string{"symbols/ne555.kicad_sym"}}, nil
	}}
	router := newTestRouter(svc)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/kicomport/api/v1/jobs/job-1/apply", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ne555.kicad_sym")
}

func TestReview_RequiresApprovedField(t *testing.T) {
	router := newTestRouter(&stubJobService{job: &model.Job{ID: "job-1"}})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/kicomport/api/v1/jobs/job-1/review",
		strings.NewReader(`{"notes":"missing approved"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSetSelection_BindsRequest(t *testing.T) {
	svc := &stubJobService{plan: &model.Plan{Complete: true}}
	router := newTestRouter(svc)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/kicomport/api/v1/jobs/job-1/selection",
		strings.NewReader(`{"componentKey":"ne555","kind":"symbol","candidateId":"c1"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestUnknownRouteReturns404(t *testing.T) {
	router := newTestRouter(&stubJobService{})
	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"success": false})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/kicomport/api/v1/nope", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
