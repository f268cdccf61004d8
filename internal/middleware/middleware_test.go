package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tuition-api/internal/models"
	"github.com/noah-isme/tuition-api/internal/service"
	appErrors "github.com/noah-isme/tuition-api/pkg/errors"
)

type stubValidator struct {
	claims map[string]*models.JWTClaims
}

func (s stubValidator) ValidateToken(token string) (*models.JWTClaims, error) {
	if claims, ok := s.claims[token]; ok {
		return claims, nil
	}
	return nil, appErrors.Wrap(errors.New("bad token"), appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
}

func newAuthRouter(roles ...string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	validator := stubValidator{claims: map[string]*models.JWTClaims{
		"admin":   {UserID: "u-admin", Role: models.RoleAdmin},
		"teacher": {UserID: "t1", Role: models.RoleTeacher},
	}}
	router := gin.New()
	router.GET("/teachers/:id/schedules", JWT(validator), RBAC(roles...), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return router
}

func doRequest(router http.Handler, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestJWTAndRBAC(t *testing.T) {
	router := newAuthRouter(string(models.RoleAdmin), string(models.RoleSuperAdmin), RoleSelf)

	assert.Equal(t, http.StatusUnauthorized, doRequest(router, http.MethodGet, "/teachers/t1/schedules", "").Code)
	assert.Equal(t, http.StatusUnauthorized, doRequest(router, http.MethodGet, "/teachers/t1/schedules", "forged").Code)
	assert.Equal(t, http.StatusNoContent, doRequest(router, http.MethodGet, "/teachers/t1/schedules", "admin").Code)
	assert.Equal(t, http.StatusNoContent, doRequest(router, http.MethodGet, "/teachers/t1/schedules", "teacher").Code)
	assert.Equal(t, http.StatusForbidden, doRequest(router, http.MethodGet, "/teachers/t2/schedules", "teacher").Code)
}

func TestRateLimiterPerClient(t *testing.T) {
	gin.SetMode(gin.TestMode)
	limiter := NewRateLimiter(60, 2, nil)
	now := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	router := gin.New()
	router.Use(limiter.Middleware())
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	assert.Equal(t, http.StatusNoContent, doRequest(router, http.MethodGet, "/", "").Code)
	assert.Equal(t, http.StatusNoContent, doRequest(router, http.MethodGet, "/", "").Code)
	rec := doRequest(router, http.MethodGet, "/", "")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), appErrors.ErrRateLimited.Code)
}

func TestMetricsMiddlewareRecordsRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics := service.NewMetricsService()
	router := gin.New()
	router.Use(Metrics(metrics))
	router.GET("/rooms/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	doRequest(router, http.MethodGet, "/rooms/r1", "")
	assert.Equal(t, uint64(1), metrics.Snapshot().RequestsTotal)
}

func TestSetCacheHit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)

	assert.Nil(t, ExtractMeta(c))
	SetCacheHit(c, true)
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))
	assert.Equal(t, true, ExtractMeta(c)["cache_hit"])
}

func TestMetricsMiddlewareSkipsScrapePath(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics := service.NewMetricsService()
	router := gin.New()
	router.Use(Metrics(metrics, "/metrics"))
	router.GET("/metrics", func(c *gin.Context) { c.Status(http.StatusOK) })

	doRequest(router, http.MethodGet, "/metrics", "")
	doRequest(router, http.MethodGet, "/nowhere", "")
	assert.Equal(t, uint64(1), metrics.Snapshot().RequestsTotal)
}

func TestRBACWithoutClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/rooms", RequireRoles(models.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	assert.Equal(t, http.StatusUnauthorized, doRequest(router, http.MethodGet, "/rooms", "").Code)
}

func TestOptionalJWTKeysLimiterOnUser(t *testing.T) {
	gin.SetMode(gin.TestMode)
	validator := stubValidator{claims: map[string]*models.JWTClaims{
		"admin": {UserID: "u-admin", Role: models.RoleAdmin},
	}}
	limiter := NewRateLimiter(60, 1, nil)
	now := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	router := gin.New()
	router.Use(OptionalJWT(validator), limiter.Middleware())
	router.GET("/metrics", func(c *gin.Context) {
		if _, ok := c.Get(ContextUserKey); ok {
			c.Status(http.StatusOK)
			return
		}
		c.Status(http.StatusNoContent)
	})

	// Anonymous and forged tokens pass through without claims and share the ip bucket.
	assert.Equal(t, http.StatusNoContent, doRequest(router, http.MethodGet, "/metrics", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, doRequest(router, http.MethodGet, "/metrics", "forged").Code)

	// A valid token gets claims and its own bucket.
	assert.Equal(t, http.StatusOK, doRequest(router, http.MethodGet, "/metrics", "admin").Code)
	assert.Equal(t, http.StatusTooManyRequests, doRequest(router, http.MethodGet, "/metrics", "admin").Code)
}
