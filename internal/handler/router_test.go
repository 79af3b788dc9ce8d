package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/grievance-api/internal/dto"
	"github.com/noah-isme/grievance-api/internal/middleware"
	"github.com/noah-isme/grievance-api/internal/models"
	"github.com/noah-isme/grievance-api/internal/service"
)

type attachmentServiceStub struct{}

func (s *attachmentServiceStub) Upload(ctx context.Context, in service.UploadInput, uploaderID string) (*models.Attachment, error) {
	return &models.Attachment{ID: "att-1"}, nil
}

func (s *attachmentServiceStub) DownloadLink(ctx context.Context, attachmentID string) (*dto.DownloadLink, error) {
	return &dto.DownloadLink{}, nil
}

func (s *attachmentServiceStub) OpenByToken(token string) (*os.File, error) {
	return nil, os.ErrNotExist
}

func (s *attachmentServiceStub) SweepExpired(ctx context.Context) (int, error) {
	return 0, nil
}

type statsServiceStub struct{}

func (s *statsServiceStub) Overview(ctx context.Context) (*dto.GrievanceStats, error) {
	return &dto.GrievanceStats{}, nil
}

// limiterSpy stands in for the rate limiter and records what identity was
// visible in the context when it ran.
type limiterSpy struct {
	invoked  bool
	actorID  string
	hadActor bool
}

func (s *limiterSpy) handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		s.invoked = true
		if value, exists := c.Get(middleware.ContextUserKey); exists {
			if claims, ok := value.(*models.JWTClaims); ok {
				s.hadActor = true
				s.actorID = claims.ActorID
			}
		}
		c.AbortWithStatus(http.StatusTooManyRequests)
	}
}

func newRegisteredRouter(auth *service.AuthService, spy *limiterSpy) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	rt := &Router{
		Grievances:  NewGrievanceHandler(&grievanceServiceStub{}),
		Attachments: NewAttachmentHandler(&attachmentServiceStub{}),
		Stats:       NewStatsHandler(&statsServiceStub{}),
		Auth:        auth,
		RateLimit:   spy.handler(),
	}
	rt.Register(r, "/api/v1")
	return r
}

func TestRouterLimiterSeesAuthenticatedActor(t *testing.T) {
	auth := service.NewAuthService(service.AuthConfig{Secret: "router-test-secret"})
	token, err := auth.IssueToken(models.Actor{ID: "roll-1001", Role: models.RoleStudent, Campus: "NORTH"}, time.Hour)
	require.NoError(t, err)

	spy := &limiterSpy{}
	r := newRegisteredRouter(auth, spy)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/grievances", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.True(t, spy.invoked)
	require.True(t, spy.hadActor, "limiter must run after JWT so it can key by actor")
	require.Equal(t, "roll-1001", spy.actorID)
}

func TestRouterLimiterRunsAfterAuthRejection(t *testing.T) {
	auth := service.NewAuthService(service.AuthConfig{Secret: "router-test-secret"})
	spy := &limiterSpy{}
	r := newRegisteredRouter(auth, spy)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/grievances", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.False(t, spy.invoked, "unauthenticated traffic is rejected before it reaches the limiter")
}

func TestRouterLimiterKeysDownloadByIP(t *testing.T) {
	auth := service.NewAuthService(service.AuthConfig{Secret: "router-test-secret"})
	spy := &limiterSpy{}
	r := newRegisteredRouter(auth, spy)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/attachments/download?token=x", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.True(t, spy.invoked)
	require.False(t, spy.hadActor, "signed downloads carry no JWT claims for the limiter")
}
