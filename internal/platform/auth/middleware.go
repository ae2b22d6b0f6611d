package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"ROLLCALL-backend/internal/persistence"
	"ROLLCALL-backend/internal/platform/apperr"
	"ROLLCALL-backend/internal/platform/clock"
	"ROLLCALL-backend/internal/platform/respond"
)

const (
	CtxUserIDKey    = "user_id"
	CtxRoleKey      = "role"
	CtxStudentIDKey = "student_id"
	CtxTeacherIDKey = "teacher_id"
)

// RequireAuth: Authorization: Bearer <token> を検証して context に sub/role を詰める。
// 有効期限は発行側と同じ時計で判定する（nil なら実時間）
func RequireAuth(secret []byte, clk clock.Clock) gin.HandlerFunc {
	if clk == nil {
		clk = clock.Real()
	}
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if h == "" {
			respond.Abort(c, apperr.Unauthenticated("missing Authorization header"))
			return
		}

		parts := strings.SplitN(h, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			respond.Abort(c, apperr.Unauthenticated("invalid Authorization header"))
			return
		}

		tokenStr := strings.TrimSpace(parts[1])
		if tokenStr == "" {
			respond.Abort(c, apperr.Unauthenticated("empty token"))
			return
		}

		token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
			// alg 固定（none攻撃とか回避）
			if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, jwt.ErrTokenSignatureInvalid
			}
			return secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired(), jwt.WithTimeFunc(clk.Now))
		if err != nil || token == nil || !token.Valid {
			respond.Abort(c, apperr.Unauthenticated("invalid token"))
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			respond.Abort(c, apperr.Unauthenticated("invalid claims"))
			return
		}

		sub, err := claims.GetSubject()
		if err != nil || sub == "" {
			respond.Abort(c, apperr.Unauthenticated("invalid sub"))
			return
		}

		role, _ := claims["role"].(string)

		c.Set(CtxUserIDKey, sub)
		c.Set(CtxRoleKey, role)
		c.Next()
	}
}

// RequireRole: 例) teacher のみ許可したい時に追加
func RequireRole(roles ...string) gin.HandlerFunc {
	roleSet := make(map[string]struct{})
	for _, r := range roles {
		if r == "" {
			continue
		}
		roleSet[r] = struct{}{}
	}

	return func(c *gin.Context) {
		role := c.GetString(CtxRoleKey)
		if role == "" {
			respond.Abort(c, apperr.Forbidden("missing role"))
			return
		}
		if _, allowed := roleSet[role]; !allowed {
			respond.Abort(c, apperr.Forbidden("forbidden"))
			return
		}
		c.Next()
	}
}

// ResolveIdentity はログインユーザーを student_id / teacher_id に引き当てる
func ResolveIdentity(store persistence.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString(CtxUserIDKey)
		role := c.GetString(CtxRoleKey)

		var (
			key string
			id  string
		)
		err := store.ReadOnly(c.Request.Context(), func(ctx context.Context, tx persistence.Tx) error {
			var err error
			switch role {
			case persistence.RoleStudent:
				key = CtxStudentIDKey
				id, err = tx.StudentIDForUser(ctx, userID)
			case persistence.RoleTeacher:
				key = CtxTeacherIDKey
				id, err = tx.TeacherIDForUser(ctx, userID)
			}
			return err
		})
		if errors.Is(err, persistence.ErrNotFound) {
			respond.Abort(c, apperr.Forbidden("no "+role+" profile for this account"))
			return
		}
		if err != nil {
			respond.Abort(c, err)
			return
		}
		if key != "" {
			c.Set(key, id)
		}
		c.Next()
	}
}

func StudentID(c *gin.Context) string { return c.GetString(CtxStudentIDKey) }
func TeacherID(c *gin.Context) string { return c.GetString(CtxTeacherIDKey) }
