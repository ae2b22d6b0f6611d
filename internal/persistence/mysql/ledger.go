package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"ROLLCALL-backend/internal/persistence"
)

const markColumns = `record_id, session_id, student_id, attendance_status, submission_time, marked_by, last_modified`

func scanMark(r rowScanner, extra ...any) (persistence.AttendanceMark, error) {
	var (
		m         persistence.AttendanceMark
		submitted sql.NullTime
		markedBy  sql.NullString
	)
	dest := append([]any{&m.RecordID, &m.SessionID, &m.StudentID, &m.Status, &submitted, &markedBy, &m.LastModified}, extra...)
	if err := r.Scan(dest...); err != nil {
		return persistence.AttendanceMark{}, err
	}
	if submitted.Valid {
		t := submitted.Time
		m.SubmissionTime = &t
	}
	m.MarkedBy = stringPtr(markedBy)
	return m, nil
}

func (r *repo) GetMark(ctx context.Context, sessionID, studentID string) (persistence.AttendanceMark, error) {
	const q = `SELECT ` + markColumns + ` FROM attendance_records WHERE session_id = ? AND student_id = ?`
	m, err := scanMark(r.q.QueryRowContext(ctx, q, sessionID, studentID))
	return m, mapErr(err)
}

// InsertMark: 一意制約 (session_id, student_id) 違反は ErrDuplicate
func (r *repo) InsertMark(ctx context.Context, m persistence.AttendanceMark) error {
	const q = `INSERT INTO attendance_records (` + markColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := r.q.ExecContext(ctx, q, m.RecordID, m.SessionID, m.StudentID, m.Status,
		nullTime(m.SubmissionTime), nullString(m.MarkedBy), m.LastModified)
	return mapErr(err)
}

func (r *repo) UpsertMark(ctx context.Context, m persistence.AttendanceMark) error {
	const q = `
	INSERT INTO attendance_records (` + markColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON DUPLICATE KEY UPDATE
	  attendance_status = VALUES(attendance_status),
	  marked_by         = VALUES(marked_by),
	  last_modified     = VALUES(last_modified)`
	_, err := r.q.ExecContext(ctx, q, m.RecordID, m.SessionID, m.StudentID, m.Status,
		nullTime(m.SubmissionTime), nullString(m.MarkedBy), m.LastModified)
	return mapErr(err)
}

func (r *repo) UpdateMarkStatus(ctx context.Context, sessionID, studentID string, status persistence.MarkStatus, markedBy string, at time.Time) error {
	const q = `
	UPDATE attendance_records
	SET attendance_status = ?, marked_by = ?, last_modified = ?
	WHERE session_id = ? AND student_id = ?`
	res, err := r.q.ExecContext(ctx, q, status, markedBy, at, sessionID, studentID)
	if err != nil {
		return mapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := r.GetMark(ctx, sessionID, studentID); err != nil {
			return err
		}
	}
	return nil
}

func (r *repo) CountMarks(ctx context.Context, studentID, courseID string) (persistence.MarkCounts, error) {
	const q = `
	SELECT
	  COALESCE(SUM(ar.attendance_status = 'Present'), 0),
	  COALESCE(SUM(ar.attendance_status = 'Justified'), 0),
	  COALESCE(SUM(ar.attendance_status = 'Unjustified'), 0)
	FROM attendance_records ar
	JOIN sessions s ON s.session_id = ar.session_id
	WHERE ar.student_id = ? AND s.course_id = ?`
	var c persistence.MarkCounts
	if err := r.q.QueryRowContext(ctx, q, studentID, courseID).Scan(&c.Present, &c.Justified, &c.Unjustified); err != nil {
		return persistence.MarkCounts{}, fmt.Errorf("count marks: %w", err)
	}
	return c, nil
}

func (r *repo) ListMarksBySession(ctx context.Context, sessionID string) ([]persistence.AttendanceMark, error) {
	const q = `SELECT ` + markColumns + ` FROM attendance_records WHERE session_id = ? ORDER BY student_id`
	rows, err := r.q.QueryContext(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list marks: %w", err)
	}
	defer rows.Close()

	var out []persistence.AttendanceMark
	for rows.Next() {
		m, err := scanMark(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *repo) ListHistory(ctx context.Context, studentID, courseID string) ([]persistence.HistoryEntry, error) {
	q := `
	SELECT ar.record_id, ar.session_id, ar.student_id, ar.attendance_status, ar.submission_time,
	       ar.marked_by, ar.last_modified, s.course_id, s.start_time, s.room
	FROM attendance_records ar
	JOIN sessions s ON s.session_id = ar.session_id
	WHERE ar.student_id = ?`
	args := []any{studentID}
	if courseID != "" {
		q += ` AND s.course_id = ?`
		args = append(args, courseID)
	}
	q += ` ORDER BY s.start_time DESC, ar.session_id ASC`

	rows, err := r.q.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var out []persistence.HistoryEntry
	for rows.Next() {
		var e persistence.HistoryEntry
		m, err := scanMark(rows, &e.CourseID, &e.StartTime, &e.Room)
		if err != nil {
			return nil, err
		}
		e.Mark = m
		out = append(out, e)
	}
	return out, rows.Err()
}
