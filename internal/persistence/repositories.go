package persistence

import (
	"context"
	"time"
)

type SessionRepository interface {
	CreateSession(ctx context.Context, s Session) error
	GetSession(ctx context.Context, sessionID string) (Session, error)
	// LockSession は更新前提で行ロックを取る
	LockSession(ctx context.Context, sessionID string) (Session, error)
	UpdateSession(ctx context.Context, s Session) error
	FindSessionByCode(ctx context.Context, code string) (Session, error)
	// ReserveCode は code を sessionID に割り当てる。引き換え可能なセッションが
	// 保持している場合は ErrDuplicate。期限切れ・終了済みの保持者からは引き継ぐ
	ReserveCode(ctx context.Context, code, sessionID string, expiresAt, now time.Time) error
	ReleaseCode(ctx context.Context, sessionID string) error
	ListSessionsByTeacher(ctx context.Context, teacherID string, statuses ...SessionStatus) ([]Session, error)
	ListExpiredActive(ctx context.Context, now time.Time) ([]Session, error)
}

// LedgerRepository は出席簿。(session, student) の一意制約が最終判定
type LedgerRepository interface {
	GetMark(ctx context.Context, sessionID, studentID string) (AttendanceMark, error)
	InsertMark(ctx context.Context, m AttendanceMark) error
	UpsertMark(ctx context.Context, m AttendanceMark) error
	UpdateMarkStatus(ctx context.Context, sessionID, studentID string, status MarkStatus, markedBy string, at time.Time) error
	CountMarks(ctx context.Context, studentID, courseID string) (MarkCounts, error)
	ListMarksBySession(ctx context.Context, sessionID string) ([]AttendanceMark, error)
	ListHistory(ctx context.Context, studentID, courseID string) ([]HistoryEntry, error)
}

type MarkerRepository interface {
	// LockPair は (student, course) 単位の排他。Tx 終了まで保持される
	LockPair(ctx context.Context, studentID, courseID string) error
	ActiveMarker(ctx context.Context, kind MarkerKind, studentID, courseID string) (Marker, error)
	InsertMarker(ctx context.Context, m Marker) error
	DeactivateMarker(ctx context.Context, kind MarkerKind, studentID, courseID string, at time.Time) (bool, error)
	ListActiveMarkers(ctx context.Context, f MarkerFilter) ([]Marker, error)
}

// Directory は履修・担当・アカウントの参照（管理系は外部）
type Directory interface {
	GetAccount(ctx context.Context, userID string) (Account, error)
	StudentIDForUser(ctx context.Context, userID string) (string, error)
	TeacherIDForUser(ctx context.Context, userID string) (string, error)
	IsEnrolled(ctx context.Context, studentID, courseID string) (bool, error)
	TeachesCourse(ctx context.Context, teacherID, courseID string) (bool, error)
	RemoveEnrollment(ctx context.Context, studentID, courseID string) error
	RestoreEnrollment(ctx context.Context, studentID, courseID string) error
	ListEnrolled(ctx context.Context, courseID string) ([]Student, error)
}

type Tx interface {
	SessionRepository
	LedgerRepository
	MarkerRepository
	Directory
}

// Store はトランザクション境界。fn がエラーを返せば全て巻き戻る
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	ReadOnly(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
