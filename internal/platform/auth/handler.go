package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ROLLCALL-backend/internal/platform/apperr"
	"ROLLCALL-backend/internal/platform/respond"
	"ROLLCALL-backend/internal/platform/validation"
)

type AuthHandler struct{ svc *Service }

func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &AuthHandler{svc: svc}
	r.POST("/login", h.Login)
}

type LoginRequest struct {
	ID       string `json:"id" binding:"required,notblank"`
	Password string `json:"password" binding:"required"`
}

// Login godoc
// @Summary  ログインしてアクセストークンを得る
// @Tags     auth
// @Accept   json
// @Produce  json
// @Param    body  body      LoginRequest  true  "credentials"
// @Success  200   {object}  respond.Envelope{data=LoginResult}
// @Failure  401   {object}  respond.Envelope
// @Router   /login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Fail(c, apperr.Invalid(validation.Message(err)))
		return
	}

	res, err := h.svc.Login(c.Request.Context(), req.ID, req.Password)
	if err != nil {
		respond.Fail(c, err)
		return
	}
	respond.OK(c, http.StatusOK, "Login successful", res)
}
