package sessions

import (
	"time"

	"ROLLCALL-backend/internal/compliance"
	"ROLLCALL-backend/internal/persistence"
)

// ===== Requests =====

type CreateSessionRequest struct {
	CourseID        string `json:"course_id" binding:"required,notblank"`
	DurationMinutes *int   `json:"duration_minutes,omitempty"`
	Room            string `json:"room,omitempty"`
}

type ScheduleSessionRequest struct {
	CourseID  string    `json:"course_id" binding:"required,notblank"`
	StartTime time.Time `json:"start_time" binding:"required"`
	Room      string    `json:"room,omitempty"`
}

type StartSessionRequest struct {
	DurationMinutes *int `json:"duration_minutes,omitempty"`
}

type RedeemRequest struct {
	Code string `json:"code" binding:"required,sessioncode"`
}

type sessionParams struct {
	SessionID string `uri:"session_id" binding:"required,notblank"`
}

// ===== Service inputs =====

type CreateSessionInput struct {
	CourseID        string
	TeacherID       string
	DurationMinutes *int
	Room            string
}

type ScheduleSessionInput struct {
	CourseID  string
	TeacherID string
	StartTime time.Time
	Room      string
}

type StartSessionInput struct {
	SessionID       string
	TeacherID       string
	DurationMinutes *int
}

// ===== Responses =====

type SessionResponse struct {
	SessionID      string                    `json:"session_id"`
	CourseID       string                    `json:"course_id"`
	TeacherID      string                    `json:"teacher_id"`
	Code           *string                   `json:"attendance_code,omitempty"`
	StartTime      time.Time                 `json:"start_time"`
	ExpirationTime *time.Time                `json:"expiration_time,omitempty"`
	Status         persistence.SessionStatus `json:"status"`
	Room           string                    `json:"room"`
	Redeemable     bool                      `json:"redeemable"`
}

func toSessionDTO(s persistence.Session, now time.Time) SessionResponse {
	out := SessionResponse{
		SessionID: s.SessionID,
		CourseID:  s.CourseID,
		TeacherID: s.TeacherID,
		Code:      s.Code,
		StartTime: s.StartTime.UTC(),
		Status:    s.Status,
		Room:      s.Room,
	}
	if s.ExpirationTime != nil {
		exp := s.ExpirationTime.UTC()
		out.ExpirationTime = &exp
	}
	out.Redeemable = s.Redeemable(now)
	return out
}

type RedeemResponse struct {
	SessionID        string                    `json:"session_id"`
	CourseID         string                    `json:"course_id"`
	Status           persistence.MarkStatus    `json:"status"`
	SubmissionTime   time.Time                 `json:"submission_time"`
	ComplianceStatus compliance.Status         `json:"compliance_status"`
	Counts           compliance.CountsResponse `json:"counts"`
}

type RosterEntry struct {
	StudentID string  `json:"student_id"`
	FullName  string  `json:"full_name,omitempty"`
	Status    string  `json:"status"` // 未記録は "Absent"
	MarkedBy  *string `json:"marked_by,omitempty"`
	Enrolled  bool    `json:"enrolled"`
}

type RosterResponse struct {
	Session  SessionResponse `json:"session"`
	Students []RosterEntry   `json:"students"`
	Summary  RosterSummary   `json:"summary"`
}

type RosterSummary struct {
	Present     int `json:"present"`
	Justified   int `json:"justified"`
	Unjustified int `json:"unjustified"`
	NotRecorded int `json:"not_recorded"`
}

type StudentResponse struct {
	StudentID string `json:"student_id"`
	FullName  string `json:"full_name,omitempty"`
}

type SweepResult struct {
	Closed []string `json:"closed_session_ids"`
}
