package middlewares

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/3Eeeecho/go-securedisk/internal/identity"
	"github.com/3Eeeecho/go-securedisk/internal/pkg/utils"
	"github.com/3Eeeecho/go-securedisk/internal/pkg/xerr"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type stubOracle map[string]*identity.Identity

func (s stubOracle) Authenticate(_ context.Context, bearer string) (*identity.Identity, error) {
	if id, ok := s[bearer]; ok {
		return id, nil
	}
	return nil, xerr.ErrTokenInvalid
}

type stubRegistrar struct {
	seen []string
	err  error
}

func (r *stubRegistrar) Register(_ context.Context, id *identity.Identity) error {
	r.seen = append(r.seen, id.ID)
	return r.err
}

func newEngine(oracle identity.Oracle, reg Registrar) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	who := func(c *gin.Context) {
		id, ok := utils.GetIdentityFromContext(c)
		if !ok {
			c.String(http.StatusOK, "anonymous")
			return
		}
		c.String(http.StatusOK, id.ID)
	}
	r.GET("/private", AuthMiddleware(oracle, reg), who)
	r.GET("/public", OptionalAuth(oracle, reg), who)
	r.GET("/admin", AuthMiddleware(oracle, reg), RequireAdmin(), who)
	return r
}

func get(r http.Handler, path, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddlewares(t *testing.T) {
	oracle := stubOracle{
		"alice-token": {ID: "alice", Roles: []string{identity.RoleUser}},
		"root-token":  {ID: "root", Roles: []string{identity.RoleAdmin}},
	}
	reg := &stubRegistrar{}
	r := newEngine(oracle, reg)

	assert.Equal(t, http.StatusUnauthorized, get(r, "/private", "").Code)
	assert.Equal(t, http.StatusUnauthorized, get(r, "/private", "Bearer bogus").Code)
	w := get(r, "/private", "bearer alice-token")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice", w.Body.String())
	assert.Equal(t, []string{"alice"}, reg.seen)

	assert.Equal(t, "anonymous", get(r, "/public", "").Body.String())
	assert.Equal(t, "alice", get(r, "/public", "Bearer alice-token").Body.String())
	assert.Equal(t, http.StatusUnauthorized, get(r, "/public", "Token alice-token").Code)
	assert.Equal(t, http.StatusUnauthorized, get(r, "/public", "Bearer bogus").Code)

	assert.Equal(t, http.StatusForbidden, get(r, "/admin", "Bearer alice-token").Code)
	assert.Equal(t, http.StatusOK, get(r, "/admin", "Bearer root-token").Code)
}

func TestRegistrarFailureRejectsRequest(t *testing.T) {
	r := newEngine(stubOracle{"t": {ID: "alice"}}, &stubRegistrar{err: errors.New("db down")})
	assert.Equal(t, http.StatusInternalServerError, get(r, "/private", "Bearer t").Code)
}

func TestRequestID(t *testing.T) {
	r := newEngine(stubOracle{}, &stubRegistrar{})

	w := get(r, "/public", "")
	assert.Len(t, w.Header().Get("X-Request-Id"), 32)

	req := httptest.NewRequest(http.MethodGet, "/public", nil)
	req.Header.Set("X-Request-Id", "trace-123")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "trace-123", w.Header().Get("X-Request-Id"))
}
