// Package server は設定とストアからサービス群とルーターを組み立てる
package server

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "ROLLCALL-backend/docs"
	"ROLLCALL-backend/internal/attendance"
	"ROLLCALL-backend/internal/compliance"
	"ROLLCALL-backend/internal/persistence"
	"ROLLCALL-backend/internal/platform/apperr"
	"ROLLCALL-backend/internal/platform/auth"
	"ROLLCALL-backend/internal/platform/clock"
	"ROLLCALL-backend/internal/platform/config"
	"ROLLCALL-backend/internal/platform/ids"
	"ROLLCALL-backend/internal/platform/logging"
	"ROLLCALL-backend/internal/platform/respond"
	"ROLLCALL-backend/internal/platform/validation"
	"ROLLCALL-backend/internal/sessions"
)

// Overrides はテストで時計・ID・コード生成を差し替えるため
type Overrides struct {
	Clock clock.Clock
	IDs   ids.Generator
	Codes sessions.CodeGenerator
}

type Services struct {
	Clock      clock.Clock
	Auth       *auth.Service
	Compliance *compliance.Service
	Sessions   *sessions.Service
	Attendance *attendance.Service
}

func NewServices(cfg *config.Config, store persistence.Store, logger *slog.Logger, o Overrides) *Services {
	if o.Clock == nil {
		o.Clock = clock.Real()
	}
	if o.IDs == nil {
		o.IDs = ids.ULID()
	}
	if o.Codes == nil {
		o.Codes = sessions.RandomCodes()
	}

	registry := compliance.NewRegistry(cfg.Policy, o.Clock, o.IDs)
	return &Services{
		Clock:      o.Clock,
		Auth:       auth.NewService(store, cfg.Secret(), cfg.Auth.TokenTTL, o.Clock, logger),
		Compliance: compliance.NewService(store, registry, logger),
		Sessions: sessions.NewService(store, registry, sessions.Options{
			DefaultDurationMinutes: cfg.Sessions.DefaultDurationMinutes,
			MaxDurationMinutes:     cfg.Sessions.MaxDurationMinutes,
			CodeAttempts:           cfg.Sessions.CodeAttempts,
			DefaultRoom:            cfg.Sessions.DefaultRoom,
		}, logger,
			sessions.WithClock(o.Clock),
			sessions.WithIDGenerator(o.IDs),
			sessions.WithCodeGenerator(o.Codes),
		),
		Attendance: attendance.NewService(store, registry, logger,
			attendance.WithClock(o.Clock),
			attendance.WithIDGenerator(o.IDs),
		),
	}
}

// NewRouter
// @title        ROLLCALL API
// @version      1.0
// @BasePath     /api/v1
// @securityDefinitions.apikey BearerAuth
// @in           header
// @name         Authorization
func NewRouter(cfg *config.Config, store persistence.Store, svcs *Services, logger *slog.Logger) (*gin.Engine, error) {
	if err := validation.Install(sessions.CodeRule, attendance.AbsenceKindRule, attendance.MarkStatusRule); err != nil {
		return nil, err
	}

	r := gin.New()
	r.Use(gin.Recovery(), logging.RequestLogger(logger))
	_ = r.SetTrustedProxies(nil)

	if len(cfg.Server.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.Server.CORSOrigins,
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", logging.RequestIDHeader},
			ExposeHeaders:    []string{"Content-Length", "Location", logging.RequestIDHeader},
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	// ヘルス
	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// /api/v1
	api := r.Group("/api/v1")
	auth.RegisterRoutes(api, svcs.Auth)

	authed := api.Group("", auth.RequireAuth(cfg.Secret(), svcs.Clock), auth.ResolveIdentity(store))
	student := authed.Group("", auth.RequireRole(persistence.RoleStudent))
	teacher := authed.Group("", auth.RequireRole(persistence.RoleTeacher))

	sessions.RegisterRoutes(student, teacher, svcs.Sessions)
	attendance.RegisterRoutes(student, teacher, svcs.Attendance)
	compliance.RegisterRoutes(student, teacher, svcs.Compliance)

	r.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			respond.Fail(c, apperr.NotFound("route not found"))
			return
		}
		c.Status(http.StatusNotFound)
	})
	return r, nil
}
