package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"ROLLCALL-backend/internal/persistence"
	"ROLLCALL-backend/internal/platform/apperr"
	"ROLLCALL-backend/internal/platform/clock"
	"ROLLCALL-backend/internal/platform/logging"
)

var (
	ErrAuthFailed = apperr.Unauthenticated("invalid id or password")
	ErrDisabled   = apperr.Forbidden("account disabled")
)

type Service struct {
	store  persistence.Store
	secret []byte
	ttl    time.Duration
	clock  clock.Clock
	logger *slog.Logger
}

func NewService(store persistence.Store, secret []byte, ttl time.Duration, c clock.Clock, logger *slog.Logger) *Service {
	if c == nil {
		c = clock.Real()
	}
	return &Service{store: store, secret: secret, ttl: ttl, clock: c, logger: logger}
}

type LoginResult struct {
	Token     string    `json:"token"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Service) Login(ctx context.Context, id, password string) (LoginResult, error) {
	logger := logging.Service(ctx, s.logger, "AuthService", "Login", "user_id", id)

	var acct persistence.Account
	err := s.store.ReadOnly(ctx, func(ctx context.Context, tx persistence.Tx) error {
		var err error
		acct, err = tx.GetAccount(ctx, id)
		return err
	})
	if errors.Is(err, persistence.ErrNotFound) {
		// 存在しないIDでも比較コストを揃える
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		logger.InfoContext(ctx, "login rejected", "error_kind", apperr.Kind(ErrAuthFailed))
		return LoginResult{}, ErrAuthFailed
	}
	if err != nil {
		return LoginResult{}, err
	}
	if acct.IsDisabled {
		logger.InfoContext(ctx, "login rejected", "error_kind", apperr.Kind(ErrDisabled))
		return LoginResult{}, ErrDisabled
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)); err != nil {
		logger.InfoContext(ctx, "login rejected", "error_kind", apperr.Kind(ErrAuthFailed))
		return LoginResult{}, ErrAuthFailed
	}

	now := s.clock.Now()
	token, err := IssueToken(s.secret, acct.UserID, acct.Role, now, s.ttl)
	if err != nil {
		return LoginResult{}, err
	}
	logger.InfoContext(ctx, "login succeeded", "role", acct.Role)
	return LoginResult{Token: token, Role: acct.Role, ExpiresAt: now.Add(s.ttl)}, nil
}

// IssueToken は HS256 で sub/role/exp を署名する
func IssueToken(secret []byte, userID, role string, now time.Time, ttl time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  userID,
		"role": role,
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
	})
	return token.SignedString(secret)
}

func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("rollcall-dummy"), bcrypt.MinCost)
