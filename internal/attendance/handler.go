package attendance

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

	// GET /me/history?course_id=
	student.GET("/me/history", h.History)

	// POST /sessions/:session_id/absences
	teacher.POST("/sessions/:session_id/absences", h.MarkAbsence)
	// PUT /sessions/:session_id/attendance/:student_id
	teacher.PUT("/sessions/:session_id/attendance/:student_id", h.UpdateAttendance)
}

func advise(c *gin.Context, status compliance.Status, msg string, data any) {
	if status != compliance.StatusNormal {
		respond.Advisory(c, http.StatusOK, msg+"; student is in "+string(status)+" status", data)
		return
	}
	respond.OK(c, http.StatusOK, msg, data)
}

// MarkAbsence godoc
// @Summary  欠席（公認 / 無断）を登録する
// @Tags     attendance
// @Accept   json
// @Produce  json
// @Param    session_id  path  string              true  "session id"
// @Param    body        body  MarkAbsenceRequest  true  "absence"
// @Success  200  {object}  respond.Envelope{data=MarkResponse}
// @Failure  403  {object}  respond.Envelope
// @Failure  404  {object}  respond.Envelope
// @Failure  409  {object}  respond.Envelope
// @Security BearerAuth
// @Router   /sessions/{session_id}/absences [post]
func (h *Handler) MarkAbsence(c *gin.Context) {
	var p sessionParams
	if err := c.ShouldBindUri(&p); err != nil {
		respond.Fail(c, apperr.Invalid(validation.Message(err)))
		return
	}
	var req MarkAbsenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Fail(c, apperr.Invalid(validation.Message(err)))
		return
	}
	res, err := h.svc.MarkAbsence(c.Request.Context(), MarkAbsenceInput{
		TeacherID: auth.TeacherID(c),
		SessionID: p.SessionID,
		StudentID: req.StudentID,
		Kind:      req.Kind,
	})
	if err != nil {
		respond.Fail(c, err)
		return
	}
	advise(c, res.ComplianceStatus, "absence recorded", res)
}

// UpdateAttendance godoc
// @Summary  出席記録を付け替える
// @Tags     attendance
// @Accept   json
// @Produce  json
// @Param    session_id  path  string                   true  "session id"
// @Param    student_id  path  string                   true  "student id"
// @Param    body        body  UpdateAttendanceRequest  true  "new status"
// @Success  200  {object}  respond.Envelope{data=UpdateResponse}
// @Failure  404  {object}  respond.Envelope
// @Security BearerAuth
// @Router   /sessions/{session_id}/attendance/{student_id} [put]
func (h *Handler) UpdateAttendance(c *gin.Context) {
	var p markParams
	if err := c.ShouldBindUri(&p); err != nil {
		respond.Fail(c, apperr.Invalid(validation.Message(err)))
		return
	}
	var req UpdateAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Fail(c, apperr.Invalid(validation.Message(err)))
		return
	}
	res, err := h.svc.UpdateAttendance(c.Request.Context(), UpdateAttendanceInput{
		TeacherID: auth.TeacherID(c),
		SessionID: p.SessionID,
		StudentID: p.StudentID,
		Status:    req.Status,
	})
	if err != nil {
		respond.Fail(c, err)
		return
	}
	advise(c, res.ComplianceStatus, "attendance updated", res)
}

// History godoc
// @Summary  自分の出席履歴
// @Tags     attendance
// @Produce  json
// @Param    course_id  query  string  false  "course id"
// @Success  200  {object}  respond.Envelope{data=HistoryResponse}
// @Security BearerAuth
// @Router   /me/history [get]
func (h *Handler) History(c *gin.Context) {
	var q historyQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respond.Fail(c, apperr.Invalid(validation.Message(err)))
		return
	}
	res, err := h.svc.History(c.Request.Context(), auth.StudentID(c), q.CourseID)
	if err != nil {
		respond.Fail(c, err)
		return
	}
	respond.OK(c, http.StatusOK, "attendance history", res)
}
