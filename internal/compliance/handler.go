package compliance

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ROLLCALL-backend/internal/platform/apperr"
	"ROLLCALL-backend/internal/platform/auth"
	"ROLLCALL-backend/internal/platform/respond"
	"ROLLCALL-backend/internal/platform/validation"
)

type Handler struct{ svc *Service }

// RegisterRoutes: student / teacher はそれぞれロール制限済みのグループ
func RegisterRoutes(student, teacher gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}

	// GET /me/courses/:course_id/compliance
	student.GET("/me/courses/:course_id/compliance", h.MyStatus)

	// GET /courses/:course_id/students/:student_id/compliance
	teacher.GET("/courses/:course_id/students/:student_id/compliance", h.StudentStatus)
	// GET /courses/:course_id/markers (有効な警告・除籍の一覧)
	teacher.GET("/courses/:course_id/markers", h.CourseMarkers)
	// POST /courses/:course_id/students/:student_id/recompute
	teacher.POST("/courses/:course_id/students/:student_id/recompute", h.Recheck)
}

// MyStatus godoc
// @Summary  自分の出席状況（Normal / Warning / Excluded）
// @Tags     compliance
// @Produce  json
// @Param    course_id  path  string  true  "course id"
// @Success  200  {object}  respond.Envelope{data=StatusResponse}
// @Security BearerAuth
// @Router   /me/courses/{course_id}/compliance [get]
func (h *Handler) MyStatus(c *gin.Context) {
	var p courseParams
	if err := c.ShouldBindUri(&p); err != nil {
		respond.Fail(c, apperr.Invalid(validation.Message(err)))
		return
	}
	res, err := h.svc.Status(c.Request.Context(), auth.StudentID(c), p.CourseID)
	if err != nil {
		respond.Fail(c, err)
		return
	}
	respond.OK(c, http.StatusOK, "compliance status", res)
}

// StudentStatus godoc
// @Summary  担当科目の学生の出席状況
// @Tags     compliance
// @Produce  json
// @Param    course_id   path  string  true  "course id"
// @Param    student_id  path  string  true  "student id"
// @Success  200  {object}  respond.Envelope{data=StatusResponse}
// @Failure  403  {object}  respond.Envelope
// @Security BearerAuth
// @Router   /courses/{course_id}/students/{student_id}/compliance [get]
func (h *Handler) StudentStatus(c *gin.Context) {
	var p studentCourseParams
	if err := c.ShouldBindUri(&p); err != nil {
		respond.Fail(c, apperr.Invalid(validation.Message(err)))
		return
	}
	res, err := h.svc.StatusForTeacher(c.Request.Context(), auth.TeacherID(c), p.StudentID, p.CourseID)
	if err != nil {
		respond.Fail(c, err)
		return
	}
	respond.OK(c, http.StatusOK, "compliance status", res)
}

// CourseMarkers godoc
// @Summary  科目内の有効な警告・除籍
// @Tags     compliance
// @Produce  json
// @Param    course_id  path  string  true  "course id"
// @Success  200  {object}  respond.Envelope{data=CourseMarkersResponse}
// @Failure  403  {object}  respond.Envelope
// @Security BearerAuth
// @Router   /courses/{course_id}/markers [get]
func (h *Handler) CourseMarkers(c *gin.Context) {
	var p courseParams
	if err := c.ShouldBindUri(&p); err != nil {
		respond.Fail(c, apperr.Invalid(validation.Message(err)))
		return
	}
	res, err := h.svc.CourseMarkers(c.Request.Context(), auth.TeacherID(c), p.CourseID)
	if err != nil {
		respond.Fail(c, err)
		return
	}
	respond.OK(c, http.StatusOK, "active markers", res)
}

// Recheck godoc
// @Summary  学生の出席状況を再計算する
// @Tags     compliance
// @Produce  json
// @Param    course_id   path  string  true  "course id"
// @Param    student_id  path  string  true  "student id"
// @Success  200  {object}  respond.Envelope{data=StatusResponse}
// @Failure  403  {object}  respond.Envelope
// @Security BearerAuth
// @Router   /courses/{course_id}/students/{student_id}/recompute [post]
func (h *Handler) Recheck(c *gin.Context) {
	var p studentCourseParams
	if err := c.ShouldBindUri(&p); err != nil {
		respond.Fail(c, apperr.Invalid(validation.Message(err)))
		return
	}
	res, err := h.svc.Recheck(c.Request.Context(), auth.TeacherID(c), p.StudentID, p.CourseID)
	if err != nil {
		respond.Fail(c, err)
		return
	}
	if res.Status != StatusNormal {
		respond.Advisory(c, http.StatusOK, "student is in "+string(res.Status)+" status", res)
		return
	}
	respond.OK(c, http.StatusOK, "compliance rechecked", res)
}
