package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"content-distributor/domain/dto"
	"content-distributor/domain/model"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func sign(t *testing.T, claims model.UserClaims, key string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	require.NoError(t, err)
	return s
}

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", Auth(secret), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString("user_id"))
	})
	r.GET("/admin", Auth(secret), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"is_admin": c.GetBool("is_admin")})
	})
	return r
}

func TestAuth(t *testing.T) {
	valid := sign(t, model.UserClaims{StandardClaims: jwt.StandardClaims{Issuer: "u-1", ExpiresAt: time.Now().Add(time.Hour).Unix()}, UserName: "gopher"}, secret)
	expired := sign(t, model.UserClaims{StandardClaims: jwt.StandardClaims{Issuer: "u-1", ExpiresAt: time.Now().Add(-time.Hour).Unix()}}, secret)
	foreign := sign(t, model.UserClaims{StandardClaims: jwt.StandardClaims{Issuer: "u-1"}}, "other")
	anonymous := sign(t, model.UserClaims{UserName: "nobody"}, secret)

	tests := []struct {
		name    string
		url     string
		header  string
		code    int
		body    string
		message string
	}{
		{name: "header", url: "/me", header: "Bearer " + valid, code: http.StatusOK, body: "u-1"},
		{name: "query", url: "/me?access_token=" + valid, code: http.StatusOK, body: "u-1"},
		{name: "missing", url: "/me", code: http.StatusUnauthorized, message: "Unauthorized"},
		{name: "malformed", url: "/me", header: "Bearer nope", code: http.StatusUnauthorized, message: "That's not even a token"},
		{name: "expired", url: "/me", header: "Bearer " + expired, code: http.StatusUnauthorized, message: "Timing is everything"},
		{name: "wrong key", url: "/me", header: "Bearer " + foreign, code: http.StatusUnauthorized},
		{name: "no subject", url: "/me", header: "Bearer " + anonymous, code: http.StatusUnauthorized, message: "Token has no subject"},
	}
	r := newRouter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.url, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.code, w.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, w.Body.String())
			}
			if tt.message != "" {
				var res dto.Res
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
				assert.Equal(t, "401", res.ResponseCode)
				assert.Equal(t, tt.message, res.ResponseMessage)
			}
		})
	}
}

func TestAuthAdminRole(t *testing.T) {
	r := newRouter()
	for role, want := range map[string]string{model.RoleAdmin: `{"is_admin":true}`, "": `{"is_admin":false}`, "editor": `{"is_admin":false}`} {
		token := sign(t, model.UserClaims{StandardClaims: jwt.StandardClaims{Issuer: "u-1"}, Role: role}, secret)
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code, role)
		assert.JSONEq(t, want, w.Body.String(), role)
	}
}
