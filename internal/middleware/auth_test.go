package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"chargeslot/internal/domain"
	"chargeslot/internal/pkg/jwt"
	"chargeslot/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(router *gin.Engine, method, path, token string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	router.ServeHTTP(w, req)
	return w
}

func TestJWTAuth_ValidToken(t *testing.T) {
	jwtService := jwt.New("test-secret-123", time.Hour)
	token, err := jwtService.GenerateToken(42, "client")
	require.NoError(t, err)

	router := gin.New()
	router.Use(JWTAuth(jwtService))
	router.GET("/protected", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": c.GetInt64("user_id"), "role": c.GetString("role")})
	})

	w := serve(router, http.MethodGet, "/protected", "Bearer "+token)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user_id":42,"role":"client"}`, w.Body.String())
}

func TestJWTAuth_Rejections(t *testing.T) {
	jwtService := jwt.New("secret", time.Hour)
	expired, err := jwt.New("secret", -time.Hour).GenerateToken(1, "client")
	require.NoError(t, err)
	foreign, err := jwt.New("other-secret", time.Hour).GenerateToken(1, "client")
	require.NoError(t, err)

	router := gin.New()
	router.Use(JWTAuth(jwtService))
	router.GET("/protected", func(c *gin.Context) {
		t.Fatal("handler must not be reached")
	})

	cases := []struct {
		name   string
		header string
		code   string
	}{
		{"missing", "", "AUTH_HEADER_MISSING"},
		{"basic scheme", "Basic dGVzdA==", "INVALID_AUTH_FORMAT"},
		{"empty bearer", "Bearer ", "INVALID_AUTH_FORMAT"},
		{"garbage", "Bearer invalid-jwt-here", "INVALID_TOKEN"},
		{"expired", "Bearer " + expired, "INVALID_TOKEN"},
		{"wrong secret", "Bearer " + foreign, "INVALID_TOKEN"},
	}
	for _, tc := range cases {
		w := serve(router, http.MethodGet, "/protected", tc.header)
		assert.Equal(t, http.StatusUnauthorized, w.Code, tc.name)
		assert.Contains(t, w.Body.String(), tc.code, tc.name)
	}
}

func withRole(userID int64, role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if userID != 0 {
			c.Set("user_id", userID)
		}
		if role != "" {
			c.Set("role", role)
		}
		c.Next()
	}
}

func TestRequireRole(t *testing.T) {
	build := func(role string) *gin.Engine {
		router := gin.New()
		router.Use(withRole(1, role), RequireRole("owner", "admin"))
		router.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })
		return router
	}

	assert.Equal(t, http.StatusOK, serve(build("owner"), http.MethodGet, "/x", "").Code)
	assert.Equal(t, http.StatusOK, serve(build("admin"), http.MethodGet, "/x", "").Code)
	assert.Equal(t, http.StatusForbidden, serve(build("client"), http.MethodGet, "/x", "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(build(""), http.MethodGet, "/x", "").Code)
}

type stationsStub map[int64]*domain.Station

func (s stationsStub) GetByID(_ context.Context, id int64) (*domain.Station, error) {
	if st, ok := s[id]; ok {
		return st, nil
	}
	return nil, repository.ErrNotFound
}

func TestCheckStationOwnership(t *testing.T) {
	checker := NewOwnershipChecker(stationsStub{3: {ID: 3, OwnerID: 10}})
	build := func(userID int64, role string) *gin.Engine {
		router := gin.New()
		router.Use(withRole(userID, role))
		router.GET("/stations/:id", checker.CheckStationOwnership(), func(c *gin.Context) { c.Status(http.StatusOK) })
		return router
	}

	assert.Equal(t, http.StatusOK, serve(build(10, "owner"), http.MethodGet, "/stations/3", "").Code)
	assert.Equal(t, http.StatusForbidden, serve(build(11, "owner"), http.MethodGet, "/stations/3", "").Code)
	assert.Equal(t, http.StatusOK, serve(build(99, "admin"), http.MethodGet, "/stations/3", "").Code)
	assert.Equal(t, http.StatusNotFound, serve(build(10, "owner"), http.MethodGet, "/stations/4", "").Code)
	assert.Equal(t, http.StatusBadRequest, serve(build(10, "owner"), http.MethodGet, "/stations/abc", "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(build(0, ""), http.MethodGet, "/stations/3", "").Code)
}

func TestErrorLoggerRecoversPanics(t *testing.T) {
	log, hook := logtest.NewNullLogger()

	router := gin.New()
	router.Use(ErrorLogger(log))
	router.GET("/boom", func(c *gin.Context) { panic("kaboom") })
	router.GET("/fail", func(c *gin.Context) {
		_ = c.Error(assert.AnError)
		c.Status(http.StatusInternalServerError)
	})

	w := serve(router, http.MethodGet, "/boom", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "INTERNAL_SERVER_ERROR")
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
	assert.Contains(t, hook.LastEntry().Message, "kaboom")

	hook.Reset()
	serve(router, http.MethodGet, "/fail", "")
	require.Len(t, hook.Entries, 1)
	assert.Equal(t, "/fail", hook.LastEntry().Data["path"])
}

func TestCORSPreflight(t *testing.T) {
	router := gin.New()
	router.Use(CORS([]string{"https://app.example.com"}))
	router.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "https://app.example.com")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
}
