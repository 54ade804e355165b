package httpkit

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"broker_portal_backend/platform/apperr"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type testJWTConfig struct{ secret string }

func (c testJWTConfig) GetJWTAccessSecret() string { return c.secret }

func init() {
	gin.SetMode(gin.TestMode)
}

func TestHandleErrorWritesCodeForWrappedConflict(t *testing.T) {
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)

	err := fmt.Errorf("accept: %w", apperr.Conflict("this referral was already handled").WithCode("already_handled"))
	if !HandleError(c, err) {
		t.Fatal("expected error to be handled")
	}
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}

	var body ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Code != "already_handled" {
		t.Fatalf("expected code already_handled, got %q", body.Code)
	}
}

func TestHandleErrorHidesUntypedErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)

	HandleError(c, errors.New("pq: password authentication failed"))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}

	var body ErrorResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Error != "internal server error" {
		t.Fatalf("expected generic message, got %q", body.Error)
	}
}

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestAuthRequiredAndRequireRole(t *testing.T) {
	cfg := testJWTConfig{secret: "test-secret"}
	userID := uuid.New()

	r := gin.New()
	r.GET("/broker", AuthRequired(cfg), RequireRole(RoleBroker), func(c *gin.Context) {
		id := MustGetIdentity(c)
		c.String(http.StatusOK, id.UserID().String())
	})

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing token", "", http.StatusUnauthorized},
		{"wrong role", "Bearer " + signToken(t, cfg.secret, jwt.MapClaims{
			"sub": userID.String(), "type": "access", "roles": []string{RoleAdmin},
			"exp": time.Now().Add(time.Hour).Unix(),
		}), http.StatusForbidden},
		{"refresh token", "Bearer " + signToken(t, cfg.secret, jwt.MapClaims{
			"sub": userID.String(), "type": "refresh", "roles": []string{RoleBroker},
			"exp": time.Now().Add(time.Hour).Unix(),
		}), http.StatusUnauthorized},
		{"broker", "Bearer " + signToken(t, cfg.secret, jwt.MapClaims{
			"sub": userID.String(), "type": "access", "roles": []string{RoleBroker},
			"exp": time.Now().Add(time.Hour).Unix(),
		}), http.StatusOK},
	}

	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/broker", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		if rec.Code != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.want, rec.Code)
		}
		if tc.want == http.StatusOK && rec.Body.String() != userID.String() {
			t.Fatalf("%s: expected user id in body, got %q", tc.name, rec.Body.String())
		}
	}
}

func TestIdentityRoleHelpers(t *testing.T) {
	userID := uuid.New()
	cases := []struct {
		name      string
		set       func(c *gin.Context)
		admin     bool
		broker    bool
		anonymous bool
	}{
		{"anonymous", func(c *gin.Context) {}, false, false, true},
		{"nil user id", func(c *gin.Context) { c.Set(ContextUserIDKey, uuid.Nil) }, false, false, true},
		{"broker", func(c *gin.Context) {
			c.Set(ContextUserIDKey, userID)
			c.Set(ContextRolesKey, []string{RoleBroker})
		}, false, true, false},
		{"admin and broker", func(c *gin.Context) {
			c.Set(ContextUserIDKey, userID)
			c.Set(ContextRolesKey, []string{RoleAdmin, RoleBroker})
		}, true, true, false},
		{"no roles", func(c *gin.Context) { c.Set(ContextUserIDKey, userID) }, false, false, false},
	}

	for _, tc := range cases {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		tc.set(c)
		id := GetIdentity(c)

		if (id == nil) != tc.anonymous {
			t.Fatalf("%s: expected anonymous=%v, got %+v", tc.name, tc.anonymous, id)
		}
		if id.IsAdmin() != tc.admin || id.IsBroker() != tc.broker {
			t.Fatalf("%s: expected admin=%v broker=%v, got admin=%v broker=%v",
				tc.name, tc.admin, tc.broker, id.IsAdmin(), id.IsBroker())
		}
		if !tc.anonymous && id.UserID() != userID {
			t.Fatalf("%s: expected user id %s, got %s", tc.name, userID, id.UserID())
		}
	}
}
