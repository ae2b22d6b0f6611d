package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"ROLLCALL-backend/internal/persistence"
	"ROLLCALL-backend/internal/persistence/memory"
	"ROLLCALL-backend/internal/platform/apperr"
	"ROLLCALL-backend/internal/platform/logging"
)

var secret = []byte("test-secret")

type fixedClock struct{ t time.Time }

func (f fixedClock) Now() time.Time { return f.t }

func newStore(t *testing.T) *memory.Store {
	t.Helper()
	s := memory.New()
	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	require.NoError(t, err)
	s.AddAccount("s.kato", string(hash), persistence.RoleStudent)
	s.AddAccount("t.sato", string(hash), persistence.RoleTeacher)
	s.AddAccount("t.ghost", string(hash), persistence.RoleTeacher)
	s.AddStudent("S1", "s.kato", "C1")
	s.AddTeacher("T1", "t.sato", "C1")
	return s
}

func TestLogin(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	svc := NewService(newStore(t), secret, time.Hour, fixedClock{now}, logging.Discard())
	ctx := context.Background()

	res, err := svc.Login(ctx, "t.sato", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, persistence.RoleTeacher, res.Role)
	assert.Equal(t, now.Add(time.Hour), res.ExpiresAt)

	parsed, err := jwt.Parse(res.Token, func(*jwt.Token) (any, error) { return secret, nil })
	require.NoError(t, err)
	sub, err := parsed.Claims.GetSubject()
	require.NoError(t, err)
	assert.Equal(t, "t.sato", sub)

	_, err = svc.Login(ctx, "t.sato", "wrong")
	assert.True(t, apperr.Is(err, apperr.CodeUnauthenticated))

	_, err = svc.Login(ctx, "nobody", "correct horse")
	assert.True(t, apperr.Is(err, apperr.CodeUnauthenticated))
}

func router(store persistence.Store) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	g := r.Group("/", RequireAuth(secret, nil), ResolveIdentity(store))
	g.GET("/student", RequireRole(persistence.RoleStudent), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"student_id": StudentID(c)})
	})
	g.GET("/teacher", RequireRole(persistence.RoleTeacher), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"teacher_id": TeacherID(c)})
	})
	return r
}

func call(t *testing.T, r http.Handler, path, token string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w.Code, body
}

func token(t *testing.T, user, role string) string {
	t.Helper()
	tok, err := IssueToken(secret, user, role, time.Now(), time.Hour)
	require.NoError(t, err)
	return tok
}

func TestMiddlewareResolvesIdentity(t *testing.T) {
	r := router(newStore(t))

	code, body := call(t, r, "/student", token(t, "s.kato", persistence.RoleStudent))
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "S1", body["student_id"])

	code, body = call(t, r, "/teacher", token(t, "t.sato", persistence.RoleTeacher))
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "T1", body["teacher_id"])
}

func TestMiddlewareRejections(t *testing.T) {
	r := router(newStore(t))

	code, body := call(t, r, "/student", "")
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, false, body["success"])

	code, _ = call(t, r, "/teacher", token(t, "s.kato", persistence.RoleStudent))
	assert.Equal(t, http.StatusForbidden, code)

	// teacher ロールだが teachers に行がない
	code, _ = call(t, r, "/teacher", token(t, "t.ghost", persistence.RoleTeacher))
	assert.Equal(t, http.StatusForbidden, code)

	expired, err := IssueToken(secret, "s.kato", persistence.RoleStudent, time.Now().Add(-2*time.Hour), time.Hour)
	require.NoError(t, err)
	code, _ = call(t, r, "/student", expired)
	assert.Equal(t, http.StatusUnauthorized, code)

	forged, err := IssueToken([]byte("other"), "s.kato", persistence.RoleStudent, time.Now(), time.Hour)
	require.NoError(t, err)
	code, _ = call(t, r, "/student", forged)
	assert.Equal(t, http.StatusUnauthorized, code)
}
