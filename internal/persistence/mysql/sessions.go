package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"ROLLCALL-backend/internal/persistence"
	"ROLLCALL-backend/internal/platform/db"
)

const sessionColumns = `session_id, course_id, teacher_id, attendance_code, start_time, expiration_time, status, room, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(r rowScanner) (persistence.Session, error) {
	var (
		s    persistence.Session
		code sql.NullString
		exp  sql.NullTime
	)
	if err := r.Scan(&s.SessionID, &s.CourseID, &s.TeacherID, &code, &s.StartTime, &exp, &s.Status, &s.Room, &s.CreatedAt); err != nil {
		return persistence.Session{}, err
	}
	s.Code = stringPtr(code)
	if exp.Valid {
		t := exp.Time
		s.ExpirationTime = &t
	}
	return s, nil
}

func nullTime(p *time.Time) sql.NullTime {
	if p == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *p, Valid: true}
}

func (r *repo) CreateSession(ctx context.Context, s persistence.Session) error {
	const q = `
	INSERT INTO sessions (` + sessionColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.q.ExecContext(ctx, q,
		s.SessionID, s.CourseID, s.TeacherID, nullString(s.Code), s.StartTime,
		nullTime(s.ExpirationTime), s.Status, s.Room, s.CreatedAt)
	return mapErr(err)
}

func (r *repo) GetSession(ctx context.Context, sessionID string) (persistence.Session, error) {
	const q = `SELECT ` + sessionColumns + ` FROM sessions WHERE session_id = ?`
	s, err := scanSession(r.q.QueryRowContext(ctx, q, sessionID))
	return s, mapErr(err)
}

func (r *repo) LockSession(ctx context.Context, sessionID string) (persistence.Session, error) {
	const q = `SELECT ` + sessionColumns + ` FROM sessions WHERE session_id = ? FOR UPDATE`
	s, err := scanSession(r.q.QueryRowContext(ctx, q, sessionID))
	return s, mapErr(err)
}

func (r *repo) UpdateSession(ctx context.Context, s persistence.Session) error {
	const q = `
	UPDATE sessions
	SET attendance_code = ?, start_time = ?, expiration_time = ?, status = ?, room = ?
	WHERE session_id = ?`
	res, err := r.q.ExecContext(ctx, q, nullString(s.Code), s.StartTime, nullTime(s.ExpirationTime), s.Status, s.Room, s.SessionID)
	if err != nil {
		return mapErr(err)
	}
	// 値が同じだと affected=0 になるので存在確認は別にする
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := r.GetSession(ctx, s.SessionID); err != nil {
			return err
		}
	}
	return nil
}

func (r *repo) FindSessionByCode(ctx context.Context, code string) (persistence.Session, error) {
	const q = `
	SELECT s.session_id, s.course_id, s.teacher_id, s.attendance_code, s.start_time,
	       s.expiration_time, s.status, s.room, s.created_at
	FROM session_codes sc
	JOIN sessions s ON s.session_id = sc.session_id
	WHERE sc.code = ?`
	s, err := scanSession(r.q.QueryRowContext(ctx, q, code))
	return s, mapErr(err)
}

func (r *repo) ReserveCode(ctx context.Context, code, sessionID string, expiresAt, now time.Time) error {
	const ins = `INSERT INTO session_codes (code, session_id, expires_at) VALUES (?, ?, ?)`
	_, err := r.q.ExecContext(ctx, ins, code, sessionID, expiresAt)
	if err == nil {
		return nil
	}
	if !db.IsDuplicateKey(err) {
		return mapErr(err)
	}

	// 保持しているセッションが引き換え不能（終了 or 期限切れ）なら引き継ぐ
	const takeover = `
	UPDATE session_codes sc
	JOIN sessions s ON s.session_id = sc.session_id
	SET sc.session_id = ?, sc.expires_at = ?
	WHERE sc.code = ? AND (s.status <> 'Active' OR s.expiration_time IS NULL OR s.expiration_time < ?)`
	res, err := r.q.ExecContext(ctx, takeover, sessionID, expiresAt, code, now)
	if err != nil {
		return mapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return persistence.ErrDuplicate
	}

	// 旧保持者の表示用コードも消す
	const detach = `UPDATE sessions SET attendance_code = NULL WHERE attendance_code = ? AND session_id <> ?`
	_, err = r.q.ExecContext(ctx, detach, code, sessionID)
	return mapErr(err)
}

func (r *repo) ReleaseCode(ctx context.Context, sessionID string) error {
	const q = `DELETE FROM session_codes WHERE session_id = ?`
	_, err := r.q.ExecContext(ctx, q, sessionID)
	return mapErr(err)
}

func (r *repo) ListSessionsByTeacher(ctx context.Context, teacherID string, statuses ...persistence.SessionStatus) ([]persistence.Session, error) {
	var (
		sb   strings.Builder
		args = []any{teacherID}
	)
	sb.WriteString(`SELECT ` + sessionColumns + ` FROM sessions WHERE teacher_id = ?`)
	if len(statuses) > 0 {
		sb.WriteString(` AND status IN (?` + strings.Repeat(", ?", len(statuses)-1) + `)`)
		for _, st := range statuses {
			args = append(args, st)
		}
	}
	sb.WriteString(` ORDER BY start_time DESC, session_id ASC`)
	return r.querySessions(ctx, sb.String(), args...)
}

func (r *repo) ListExpiredActive(ctx context.Context, now time.Time) ([]persistence.Session, error) {
	const q = `
	SELECT ` + sessionColumns + `
	FROM sessions
	WHERE status = 'Active' AND expiration_time < ?
	ORDER BY start_time DESC, session_id ASC
	FOR UPDATE`
	return r.querySessions(ctx, q, now)
}

func (r *repo) querySessions(ctx context.Context, q string, args ...any) ([]persistence.Session, error) {
	rows, err := r.q.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []persistence.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
