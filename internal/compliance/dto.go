package compliance

import (
	"time"

	"ROLLCALL-backend/internal/persistence"
)

type CountsResponse struct {
	Present     int `json:"present"`
	Justified   int `json:"justified"`
	Unjustified int `json:"unjustified"`
	Absences    int `json:"total_absences"`
}

func CountsDTO(c persistence.MarkCounts) CountsResponse {
	return CountsResponse{Present: c.Present, Justified: c.Justified, Unjustified: c.Unjustified, Absences: c.Absences()}
}

type MarkerResponse struct {
	MarkerID    string    `json:"marker_id"`
	Kind        string    `json:"kind"`
	StudentID   string    `json:"student_id"`
	CourseID    string    `json:"course_id"`
	ReasonCount int       `json:"absence_count"`
	Message     string    `json:"message"`
	IssuedAt    time.Time `json:"issue_date"`
}

func MarkerDTO(m persistence.Marker) MarkerResponse {
	return MarkerResponse{
		MarkerID:    m.MarkerID,
		Kind:        string(m.Kind),
		StudentID:   m.StudentID,
		CourseID:    m.CourseID,
		ReasonCount: m.ReasonCount,
		Message:     m.Message,
		IssuedAt:    m.IssuedAt.UTC(),
	}
}

type StatusResponse struct {
	StudentID string          `json:"student_id"`
	CourseID  string          `json:"course_id"`
	Status    Status          `json:"status"`
	Counts    CountsResponse  `json:"counts"`
	Warning   *MarkerResponse `json:"warning,omitempty"`
	Exclusion *MarkerResponse `json:"exclusion,omitempty"`
}

type CourseMarkersResponse struct {
	CourseID   string           `json:"course_id"`
	Warnings   []MarkerResponse `json:"warnings"`
	Exclusions []MarkerResponse `json:"exclusions"`
}

// SplitMarkers は種別ごとに分ける
func SplitMarkers(ms []persistence.Marker) (warnings, exclusions []MarkerResponse) {
	warnings, exclusions = []MarkerResponse{}, []MarkerResponse{}
	for _, m := range ms {
		if m.Kind == persistence.MarkerExclusion {
			exclusions = append(exclusions, MarkerDTO(m))
		} else {
			warnings = append(warnings, MarkerDTO(m))
		}
	}
	return warnings, exclusions
}

type courseParams struct {
	CourseID string `uri:"course_id" binding:"required,notblank"`
}

type studentCourseParams struct {
	CourseID  string `uri:"course_id" binding:"required,notblank"`
	StudentID string `uri:"student_id" binding:"required,notblank"`
}
