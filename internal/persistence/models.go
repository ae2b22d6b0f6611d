package persistence

import "time"

type SessionStatus string

const (
	SessionScheduled SessionStatus = "Scheduled"
	SessionActive    SessionStatus = "Active"
	SessionCompleted SessionStatus = "Completed"
)

// Session は授業1コマ分の出席受付
type Session struct {
	SessionID      string
	CourseID       string
	TeacherID      string
	Code           *string // Scheduled の間は nil
	StartTime      time.Time
	ExpirationTime *time.Time
	Status         SessionStatus
	Room           string
	CreatedAt      time.Time
}

// Redeemable: Active かつ期限内。status が Active のままでも期限切れなら不可
func (s Session) Redeemable(now time.Time) bool {
	return s.Status == SessionActive && s.ExpirationTime != nil && !now.After(*s.ExpirationTime)
}

type MarkStatus string

const (
	MarkPresent     MarkStatus = "Present"
	MarkJustified   MarkStatus = "Justified"
	MarkUnjustified MarkStatus = "Unjustified"
)

func (m MarkStatus) Valid() bool {
	switch m {
	case MarkPresent, MarkJustified, MarkUnjustified:
		return true
	}
	return false
}

// AttendanceMark は (session, student) ごとに1件
type AttendanceMark struct {
	RecordID       string
	SessionID      string
	StudentID      string
	Status         MarkStatus
	SubmissionTime *time.Time // 学生自身のコード入力時のみ
	MarkedBy       *string    // 教員が付けた場合の teacher_id
	LastModified   time.Time
}

type MarkCounts struct {
	Present     int
	Justified   int
	Unjustified int
}

func (c MarkCounts) Absences() int { return c.Justified + c.Unjustified }

func (c *MarkCounts) Add(s MarkStatus) {
	switch s {
	case MarkPresent:
		c.Present++
	case MarkJustified:
		c.Justified++
	case MarkUnjustified:
		c.Unjustified++
	}
}

type MarkerKind string

const (
	MarkerWarning   MarkerKind = "warning"
	MarkerExclusion MarkerKind = "exclusion"
)

// Marker は警告・除籍の記録。取り消しは is_active を落とすだけで削除しない
type Marker struct {
	MarkerID      string
	Kind          MarkerKind
	StudentID     string
	CourseID      string
	ReasonCount   int
	Message       string
	IsActive      bool
	IssuedAt      time.Time
	DeactivatedAt *time.Time
}

type MarkerFilter struct {
	StudentID string
	CourseID  string
}

type Account struct {
	UserID       string
	PasswordHash string
	Role         string
	IsDisabled   bool
}

const (
	RoleStudent = "student"
	RoleTeacher = "teacher"
	RoleAdmin   = "admin"
)

type Student struct {
	StudentID string
	UserID    string
	FullName  string
}

type Teacher struct {
	TeacherID string
	UserID    string
	FullName  string
}

// HistoryEntry は学生の出席履歴1行（セッション情報付き）
type HistoryEntry struct {
	Mark      AttendanceMark
	CourseID  string
	StartTime time.Time
	Room      string
}
