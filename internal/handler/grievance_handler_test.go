package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/grievance-api/internal/dto"
	"github.com/noah-isme/grievance-api/internal/middleware"
	"github.com/noah-isme/grievance-api/internal/models"
	appErrors "github.com/noah-isme/grievance-api/pkg/errors"
)

type grievanceServiceStub struct {
	createResult     *dto.CreateGrievanceResult
	createErr        error
	transitionResult *models.Grievance
	transitionErr    error
	view             *models.GrievanceView
	viewErr          error

	gotSubmitter  string
	gotActor      models.Actor
	gotGrievance  string
	gotTransition dto.TransitionRequest
}

func (s *grievanceServiceStub) Create(ctx context.Context, submitterID string, req dto.CreateGrievanceRequest) (*dto.CreateGrievanceResult, error) {
	s.gotSubmitter = submitterID
	return s.createResult, s.createErr
}

func (s *grievanceServiceStub) Transition(ctx context.Context, actor models.Actor, grievanceID string, req dto.TransitionRequest) (*models.Grievance, error) {
	s.gotActor = actor
	s.gotGrievance = grievanceID
	s.gotTransition = req
	return s.transitionResult, s.transitionErr
}

func (s *grievanceServiceStub) View(ctx context.Context, grievanceID string) (*models.GrievanceView, error) {
	return s.view, s.viewErr
}

func (s *grievanceServiceStub) History(ctx context.Context, grievanceID string) ([]models.TrackingEntry, error) {
	return nil, nil
}

func (s *grievanceServiceStub) ClaimAttachments(ctx context.Context, actorID, grievanceID string, ids []string) (*models.ClaimResult, error) {
	return &models.ClaimResult{LinkedCount: len(ids)}, nil
}

func (s *grievanceServiceStub) ListFor(ctx context.Context, actor models.Actor, query dto.GrievanceListQuery) ([]models.Grievance, *models.Pagination, error) {
	return nil, &models.Pagination{Page: 1, PageSize: 50}, nil
}

func authAs(claims *models.JWTClaims) gin.HandlerFunc {
	return func(c *gin.Context) {
		if claims != nil {
			c.Set(middleware.ContextUserKey, claims)
		}
		c.Next()
	}
}

func newHandlerRouter(svc *grievanceServiceStub, claims *models.JWTClaims) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(authAs(claims))
	h := NewGrievanceHandler(svc)
	r.POST("/grievances", h.Create)
	r.GET("/grievances/:id", h.Get)
	r.POST("/grievances/:id/transition", h.Transition)
	return r
}

func studentClaims(id string) *models.JWTClaims {
	return &models.JWTClaims{ActorID: id, Role: models.RoleStudent, Campus: "NORTH"}
}

func doJSON(t *testing.T, r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestGrievanceHandlerCreate(t *testing.T) {
	svc := &grievanceServiceStub{
		createResult: &dto.CreateGrievanceResult{
			Grievance: models.Grievance{ID: "grv-1", TicketCode: "GRV-2026-000042", Status: models.StatusSubmitted},
		},
	}
	r := newHandlerRouter(svc, studentClaims("roll-1001"))

	w := doJSON(t, r, http.MethodPost, "/grievances",
		`{"campus":"NORTH","category":"HOSTEL","subject":"Broken heater","description":"details"}`)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "roll-1001", svc.gotSubmitter)

	var envelope struct {
		Data dto.CreateGrievanceResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, "GRV-2026-000042", envelope.Data.Grievance.TicketCode)
}

func TestGrievanceHandlerCreateRequiresAuth(t *testing.T) {
	svc := &grievanceServiceStub{}
	r := newHandlerRouter(svc, nil)

	w := doJSON(t, r, http.MethodPost, "/grievances", `{"campus":"NORTH"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGrievanceHandlerCreateBadPayload(t *testing.T) {
	svc := &grievanceServiceStub{}
	r := newHandlerRouter(svc, studentClaims("roll-1001"))

	w := doJSON(t, r, http.MethodPost, "/grievances", `{"campus":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGrievanceHandlerCreatePropagatesServiceError(t *testing.T) {
	svc := &grievanceServiceStub{
		createErr: appErrors.Clone(appErrors.ErrValidation, "attachment precheck failed"),
	}
	r := newHandlerRouter(svc, studentClaims("roll-1001"))

	w := doJSON(t, r, http.MethodPost, "/grievances",
		`{"campus":"NORTH","category":"HOSTEL","subject":"s","description":"d","attachment_ids":["att-bad"]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "attachment precheck failed")
}

func TestGrievanceHandlerGetHidesForeignGrievanceFromStudents(t *testing.T) {
	svc := &grievanceServiceStub{
		view: &models.GrievanceView{
			Grievance: models.Grievance{ID: "grv-1", SubmitterID: "roll-2002", Status: models.StatusSubmitted},
		},
	}
	r := newHandlerRouter(svc, studentClaims("roll-1001"))

	// Another student's grievance reads as absent, not as forbidden.
	w := doJSON(t, r, http.MethodGet, "/grievances/grv-1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	own := newHandlerRouter(svc, studentClaims("roll-2002"))
	w = doJSON(t, own, http.MethodGet, "/grievances/grv-1", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGrievanceHandlerTransition(t *testing.T) {
	svc := &grievanceServiceStub{
		transitionResult: &models.Grievance{ID: "grv-1", Status: models.StatusInProgress},
	}
	claims := &models.JWTClaims{ActorID: "admin-1", Role: models.RoleDeptAdmin, Campus: "NORTH", Department: models.CategoryAcademic}
	r := newHandlerRouter(svc, claims)

	w := doJSON(t, r, http.MethodPost, "/grievances/grv-1/transition",
		`{"status":"IN_PROGRESS","note":"picked up"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "grv-1", svc.gotGrievance)
	assert.Equal(t, models.RoleDeptAdmin, svc.gotActor.Role)
	assert.Equal(t, "IN_PROGRESS", svc.gotTransition.Status)
}

func TestGrievanceHandlerTransitionConflict(t *testing.T) {
	svc := &grievanceServiceStub{
		transitionErr: appErrors.Clone(appErrors.ErrConflict, "grievance status changed concurrently"),
	}
	claims := &models.JWTClaims{ActorID: "admin-1", Role: models.RoleDeptAdmin, Campus: "NORTH", Department: models.CategoryAcademic}
	r := newHandlerRouter(svc, claims)

	w := doJSON(t, r, http.MethodPost, "/grievances/grv-1/transition", `{"status":"RESOLVED"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
}
