package attendance

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"ROLLCALL-backend/internal/compliance"
	"ROLLCALL-backend/internal/persistence"
	"ROLLCALL-backend/internal/platform/validation"
)

// Absent は Unjustified の別名として受け付ける
const StatusAbsent = "Absent"

// ParseAbsenceKind: 教員の欠席登録は Justified / Unjustified のみ（大文字小文字は問わない）
func ParseAbsenceKind(s string) (persistence.MarkStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "justified":
		return persistence.MarkJustified, true
	case "unjustified", "absent":
		return persistence.MarkUnjustified, true
	}
	return "", false
}

// ParseStatus は記録の付け替え用。Present も許す
func ParseStatus(s string) (persistence.MarkStatus, bool) {
	if strings.EqualFold(strings.TrimSpace(s), string(persistence.MarkPresent)) {
		return persistence.MarkPresent, true
	}
	return ParseAbsenceKind(s)
}

// AbsenceKindRule は binding タグ `absencekind`
var AbsenceKindRule = validation.Rule{
	Tag: "absencekind",
	Fn: func(fl validator.FieldLevel) bool {
		_, ok := ParseAbsenceKind(fl.Field().String())
		return ok
	},
	Message: "{0} must be Justified or Unjustified",
}

// MarkStatusRule は binding タグ `markstatus`
var MarkStatusRule = validation.Rule{
	Tag: "markstatus",
	Fn: func(fl validator.FieldLevel) bool {
		_, ok := ParseStatus(fl.Field().String())
		return ok
	},
	Message: "{0} must be one of Present, Absent, Justified, Unjustified",
}

// ===== Requests =====

type MarkAbsenceRequest struct {
	StudentID string `json:"student_id" binding:"required,notblank"`
	Kind      string `json:"kind" binding:"required,absencekind"`
}

type UpdateAttendanceRequest struct {
	Status string `json:"status" binding:"required,markstatus"`
}

type sessionParams struct {
	SessionID string `uri:"session_id" binding:"required,notblank"`
}

type markParams struct {
	SessionID string `uri:"session_id" binding:"required,notblank"`
	StudentID string `uri:"student_id" binding:"required,notblank"`
}

type historyQuery struct {
	CourseID string `form:"course_id"`
}

// ===== Service inputs =====

type MarkAbsenceInput struct {
	TeacherID string
	SessionID string
	StudentID string
	Kind      string
}

type UpdateAttendanceInput struct {
	TeacherID string
	SessionID string
	StudentID string
	Status    string
}

// ===== Responses =====

type MarkResponse struct {
	SessionID        string                    `json:"session_id"`
	CourseID         string                    `json:"course_id"`
	StudentID        string                    `json:"student_id"`
	Status           persistence.MarkStatus    `json:"status"`
	MarkedBy         string                    `json:"marked_by"`
	ComplianceStatus compliance.Status         `json:"compliance_status"`
	Counts           compliance.CountsResponse `json:"counts"`
}

type UpdateResponse struct {
	SessionID        string                    `json:"session_id"`
	CourseID         string                    `json:"course_id"`
	StudentID        string                    `json:"student_id"`
	OldStatus        persistence.MarkStatus    `json:"old_status"`
	NewStatus        persistence.MarkStatus    `json:"new_status"`
	ComplianceStatus compliance.Status         `json:"compliance_status"`
	Counts           compliance.CountsResponse `json:"counts"`
}

type HistoryEntryResponse struct {
	RecordID       string                 `json:"record_id"`
	SessionID      string                 `json:"session_id"`
	CourseID       string                 `json:"course_id"`
	StartTime      time.Time              `json:"start_time"`
	Room           string                 `json:"room"`
	Status         persistence.MarkStatus `json:"status"`
	SubmissionTime *time.Time             `json:"submission_time,omitempty"`
	MarkedBy       *string                `json:"marked_by,omitempty"`
}

func toHistoryDTO(h persistence.HistoryEntry) HistoryEntryResponse {
	out := HistoryEntryResponse{
		RecordID:  h.Mark.RecordID,
		SessionID: h.Mark.SessionID,
		CourseID:  h.CourseID,
		StartTime: h.StartTime.UTC(),
		Room:      h.Room,
		Status:    h.Mark.Status,
		MarkedBy:  h.Mark.MarkedBy,
	}
	if h.Mark.SubmissionTime != nil {
		t := h.Mark.SubmissionTime.UTC()
		out.SubmissionTime = &t
	}
	return out
}

type HistoryResponse struct {
	StudentID  string                      `json:"student_id"`
	CourseID   string                      `json:"course_id,omitempty"`
	Records    []HistoryEntryResponse      `json:"records"`
	Counts     compliance.CountsResponse   `json:"counts"`
	Warnings   []compliance.MarkerResponse `json:"warnings"`
	Exclusions []compliance.MarkerResponse `json:"exclusions"`
}
