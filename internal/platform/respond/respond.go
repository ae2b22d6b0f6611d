package respond

import (
	"github.com/gin-gonic/gin"

	"ROLLCALL-backend/internal/platform/apperr"
	"ROLLCALL-backend/internal/platform/logging"
)

// 全エンドポイント共通のレスポンス形
type Envelope struct {
	Success bool       `json:"success"`
	Warning bool       `json:"warning,omitempty"`
	Message string     `json:"message"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
}

type ErrorBody struct {
	Code    apperr.Code `json:"code"`
	Message string      `json:"message"`
}

func OK(c *gin.Context, status int, msg string, data any) {
	c.JSON(status, Envelope{Success: true, Message: msg, Data: data})
}

// Advisory は処理自体は成功したが注意喚起（Warning/Excluded）を伴う場合
func Advisory(c *gin.Context, status int, msg string, data any) {
	c.JSON(status, Envelope{Success: true, Warning: true, Message: msg, Data: data})
}

func Fail(c *gin.Context, err error) {
	FailWithData(c, err, nil)
}

// FailWithData は失敗応答にデータを添える（記録は残ったが拒否扱いにするケースなど）
func FailWithData(c *gin.Context, err error, data any) {
	status := apperr.HTTPStatus(err)
	code := apperr.CodeOf(err)
	msg := apperr.PublicMessage(err)
	if code == apperr.CodeInternal {
		logging.FromContext(c.Request.Context(), nil).ErrorContext(c.Request.Context(), "request failed",
			"error", err, "error_kind", string(code), "path", c.FullPath())
	}
	c.JSON(status, Envelope{
		Success: false,
		Message: msg,
		Data:    data,
		Error:   &ErrorBody{Code: code, Message: msg},
	})
}

// Abort はミドルウェア用。後続ハンドラを止める
func Abort(c *gin.Context, err error) {
	FailWithData(c, err, nil)
	c.Abort()
}
