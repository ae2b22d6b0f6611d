package sessions

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ROLLCALL-backend/internal/compliance"
	"ROLLCALL-backend/internal/platform/apperr"
	"ROLLCALL-backend/internal/platform/auth"
	"ROLLCALL-backend/internal/platform/respond"
	"ROLLCALL-backend/internal/platform/validation"
)

type Handler struct{ svc *Service }

// RegisterRoutes: student / teacher はそれぞれロール制限済みのグループ
func RegisterRoutes(student, teacher gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}

	// POST /attendance/redeem (学生のコード入力)
	student.POST("/attendance/redeem", h.Redeem)

	teacher.POST("/sessions", h.Create)
	teacher.POST("/sessions/scheduled", h.Schedule)
	teacher.POST("/sessions/:session_id/start", h.Start)
	teacher.POST("/sessions/:session_id/close", h.Close)
	teacher.GET("/sessions/active", h.ListActive)
	teacher.GET("/sessions/:session_id/roster", h.Roster)
	teacher.GET("/sessions/:session_id/non-submitters", h.NonSubmitters)
}

// Create godoc
// @Summary  出席受付を開始する（コード発行）
// @Tags     sessions
// @Accept   json
// @Produce  json
// @Param    body  body  CreateSessionRequest  true  "session"
// @Success  201  {object}  respond.Envelope{data=SessionResponse}
// @Failure  400  {object}  respond.Envelope
// @Failure  403  {object}  respond.Envelope
// @Security BearerAuth
// @Router   /sessions [post]
func (h *Handler) Create(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Fail(c, apperr.Invalid(validation.Message(err)))
		return
	}
	res, err := h.svc.Create(c.Request.Context(), CreateSessionInput{
		CourseID:        req.CourseID,
		TeacherID:       auth.TeacherID(c),
		DurationMinutes: req.DurationMinutes,
		Room:            req.Room,
	})
	if err != nil {
		respond.Fail(c, err)
		return
	}
	c.Header("Location", "/api/v1/sessions/"+res.SessionID)
	respond.OK(c, http.StatusCreated, "session opened", res)
}

// Schedule godoc
// @Summary  セッションを予定として登録する
// @Tags     sessions
// @Accept   json
// @Produce  json
// @Param    body  body  ScheduleSessionRequest  true  "session"
// @Success  201  {object}  respond.Envelope{data=SessionResponse}
// @Failure  403  {object}  respond.Envelope
// @Security BearerAuth
// @Router   /sessions/scheduled [post]
func (h *Handler) Schedule(c *gin.Context) {
	var req ScheduleSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Fail(c, apperr.Invalid(validation.Message(err)))
		return
	}
	res, err := h.svc.Schedule(c.Request.Context(), ScheduleSessionInput{
		CourseID:  req.CourseID,
		TeacherID: auth.TeacherID(c),
		StartTime: req.StartTime,
		Room:      req.Room,
	})
	if err != nil {
		respond.Fail(c, err)
		return
	}
	respond.OK(c, http.StatusCreated, "session scheduled", res)
}

// Start godoc
// @Summary  予定済みセッションの受付を開始する
// @Tags     sessions
// @Accept   json
// @Produce  json
// @Param    session_id  path  string               true   "session id"
// @Param    body        body  StartSessionRequest  false  "duration"
// @Success  200  {object}  respond.Envelope{data=SessionResponse}
// @Failure  409  {object}  respond.Envelope
// @Security BearerAuth
// @Router   /sessions/{session_id}/start [post]
func (h *Handler) Start(c *gin.Context) {
	var p sessionParams
	if err := c.ShouldBindUri(&p); err != nil {
		respond.Fail(c, apperr.Invalid(validation.Message(err)))
		return
	}
	var req StartSessionRequest
	// body は省略可
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respond.Fail(c, apperr.Invalid(validation.Message(err)))
			return
		}
	}
	res, err := h.svc.Start(c.Request.Context(), StartSessionInput{
		SessionID:       p.SessionID,
		TeacherID:       auth.TeacherID(c),
		DurationMinutes: req.DurationMinutes,
	})
	if err != nil {
		respond.Fail(c, err)
		return
	}
	respond.OK(c, http.StatusOK, "session started", res)
}

// Close godoc
// @Summary  受付を終了する
// @Tags     sessions
// @Produce  json
// @Param    session_id  path  string  true  "session id"
// @Success  200  {object}  respond.Envelope{data=SessionResponse}
// @Failure  404  {object}  respond.Envelope
// @Security BearerAuth
// @Router   /sessions/{session_id}/close [post]
func (h *Handler) Close(c *gin.Context) {
	var p sessionParams
	if err := c.ShouldBindUri(&p); err != nil {
		respond.Fail(c, apperr.Invalid(validation.Message(err)))
		return
	}
	res, err := h.svc.Close(c.Request.Context(), p.SessionID, auth.TeacherID(c))
	if err != nil {
		respond.Fail(c, err)
		return
	}
	respond.OK(c, http.StatusOK, "session closed", res)
}

// ListActive godoc
// @Summary  開催中・予定済みのセッション一覧
// @Tags     sessions
// @Produce  json
// @Success  200  {object}  respond.Envelope{data=[]SessionResponse}
// @Security BearerAuth
// @Router   /sessions/active [get]
func (h *Handler) ListActive(c *gin.Context) {
	res, err := h.svc.ListActive(c.Request.Context(), auth.TeacherID(c))
	if err != nil {
		respond.Fail(c, err)
		return
	}
	respond.OK(c, http.StatusOK, "sessions", res)
}

// Roster godoc
// @Summary  セッションの出席簿
// @Tags     sessions
// @Produce  json
// @Param    session_id  path  string  true  "session id"
// @Success  200  {object}  respond.Envelope{data=RosterResponse}
// @Failure  403  {object}  respond.Envelope
// @Security BearerAuth
// @Router   /sessions/{session_id}/roster [get]
func (h *Handler) Roster(c *gin.Context) {
	var p sessionParams
	if err := c.ShouldBindUri(&p); err != nil {
		respond.Fail(c, apperr.Invalid(validation.Message(err)))
		return
	}
	res, err := h.svc.Roster(c.Request.Context(), auth.TeacherID(c), p.SessionID)
	if err != nil {
		respond.Fail(c, err)
		return
	}
	respond.OK(c, http.StatusOK, "roster", res)
}

// NonSubmitters godoc
// @Summary  未提出の履修者
// @Tags     sessions
// @Produce  json
// @Param    session_id  path  string  true  "session id"
// @Success  200  {object}  respond.Envelope{data=[]StudentResponse}
// @Security BearerAuth
// @Router   /sessions/{session_id}/non-submitters [get]
func (h *Handler) NonSubmitters(c *gin.Context) {
	var p sessionParams
	if err := c.ShouldBindUri(&p); err != nil {
		respond.Fail(c, apperr.Invalid(validation.Message(err)))
		return
	}
	res, err := h.svc.NonSubmitters(c.Request.Context(), auth.TeacherID(c), p.SessionID)
	if err != nil {
		respond.Fail(c, err)
		return
	}
	respond.OK(c, http.StatusOK, "non-submitters", res)
}

// Redeem godoc
// @Summary  出席コードを入力する
// @Tags     attendance
// @Accept   json
// @Produce  json
// @Param    body  body  RedeemRequest  true  "code"
// @Success  200  {object}  respond.Envelope{data=RedeemResponse}
// @Failure  400  {object}  respond.Envelope
// @Failure  403  {object}  respond.Envelope
// @Failure  404  {object}  respond.Envelope
// @Failure  409  {object}  respond.Envelope
// @Security BearerAuth
// @Router   /attendance/redeem [post]
func (h *Handler) Redeem(c *gin.Context) {
	var req RedeemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Fail(c, apperr.Invalid(validation.Message(err)))
		return
	}
	res, err := h.svc.Redeem(c.Request.Context(), req.Code, auth.StudentID(c))
	if err != nil {
		respond.Fail(c, err)
		return
	}
	switch res.ComplianceStatus {
	case compliance.StatusExcluded:
		// 記録は残るが、応答は拒否として返す
		respond.FailWithData(c, apperr.Forbidden("attendance recorded, but you are excluded from this course"), res)
	case compliance.StatusWarning:
		respond.Advisory(c, http.StatusOK, "attendance recorded; you have an absence warning for this course", res)
	default:
		respond.OK(c, http.StatusOK, "attendance recorded", res)
	}
}
