package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"ROLLCALL-backend/internal/persistence"
)

// 種別ごとのテーブルと主キー列。ユーザー入力からは決まらない
type markerTable struct {
	name string
	id   string
}

func tableFor(kind persistence.MarkerKind) (markerTable, error) {
	switch kind {
	case persistence.MarkerWarning:
		return markerTable{name: "warnings", id: "warning_id"}, nil
	case persistence.MarkerExclusion:
		return markerTable{name: "exclusions", id: "exclusion_id"}, nil
	}
	return markerTable{}, fmt.Errorf("unknown marker kind %q", kind)
}

func (r *repo) LockPair(ctx context.Context, studentID, courseID string) error {
	const upsert = `
	INSERT INTO compliance_locks (student_id, course_id) VALUES (?, ?)
	ON DUPLICATE KEY UPDATE student_id = student_id`
	if _, err := r.q.ExecContext(ctx, upsert, studentID, courseID); err != nil {
		return fmt.Errorf("lock pair: %w", err)
	}
	const lock = `SELECT 1 FROM compliance_locks WHERE student_id = ? AND course_id = ? FOR UPDATE`
	var one int
	if err := r.q.QueryRowContext(ctx, lock, studentID, courseID).Scan(&one); err != nil {
		return fmt.Errorf("lock pair: %w", err)
	}
	return nil
}

func scanMarker(r rowScanner, kind persistence.MarkerKind) (persistence.Marker, error) {
	m := persistence.Marker{Kind: kind}
	var deact sql.NullTime
	if err := r.Scan(&m.MarkerID, &m.StudentID, &m.CourseID, &m.ReasonCount, &m.Message, &m.IsActive, &m.IssuedAt, &deact); err != nil {
		return persistence.Marker{}, err
	}
	if deact.Valid {
		t := deact.Time
		m.DeactivatedAt = &t
	}
	return m, nil
}

func (r *repo) ActiveMarker(ctx context.Context, kind persistence.MarkerKind, studentID, courseID string) (persistence.Marker, error) {
	t, err := tableFor(kind)
	if err != nil {
		return persistence.Marker{}, err
	}
	q := `SELECT ` + t.id + `, student_id, course_id, absence_count, message, is_active, issue_date, deactivated_at
	FROM ` + t.name + ` WHERE student_id = ? AND course_id = ? AND is_active = 1`
	m, err := scanMarker(r.q.QueryRowContext(ctx, q, studentID, courseID), kind)
	return m, mapErr(err)
}

// InsertMarker: 有効な同種マーカーが既にあれば active_key の一意制約で ErrDuplicate
func (r *repo) InsertMarker(ctx context.Context, m persistence.Marker) error {
	t, err := tableFor(m.Kind)
	if err != nil {
		return err
	}
	q := `INSERT INTO ` + t.name + ` (` + t.id + `, student_id, course_id, absence_count, message, is_active, issue_date)
	VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err = r.q.ExecContext(ctx, q, m.MarkerID, m.StudentID, m.CourseID, m.ReasonCount, m.Message, m.IsActive, m.IssuedAt)
	return mapErr(err)
}

func (r *repo) DeactivateMarker(ctx context.Context, kind persistence.MarkerKind, studentID, courseID string, at time.Time) (bool, error) {
	t, err := tableFor(kind)
	if err != nil {
		return false, err
	}
	q := `UPDATE ` + t.name + ` SET is_active = 0, deactivated_at = ?
	WHERE student_id = ? AND course_id = ? AND is_active = 1`
	res, err := r.q.ExecContext(ctx, q, at, studentID, courseID)
	if err != nil {
		return false, mapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *repo) ListActiveMarkers(ctx context.Context, f persistence.MarkerFilter) ([]persistence.Marker, error) {
	var out []persistence.Marker
	for _, kind := range []persistence.MarkerKind{persistence.MarkerWarning, persistence.MarkerExclusion} {
		t, _ := tableFor(kind)
		var (
			where = []string{"is_active = 1"}
			args  []any
		)
		if f.StudentID != "" {
			where = append(where, "student_id = ?")
			args = append(args, f.StudentID)
		}
		if f.CourseID != "" {
			where = append(where, "course_id = ?")
			args = append(args, f.CourseID)
		}
		q := `SELECT ` + t.id + `, student_id, course_id, absence_count, message, is_active, issue_date, deactivated_at
		FROM ` + t.name + ` WHERE ` + strings.Join(where, " AND ") + ` ORDER BY issue_date, ` + t.id

		rows, err := r.q.QueryContext(ctx, q, args...)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", t.name, err)
		}
		for rows.Next() {
			m, err := scanMarker(rows, kind)
			if err != nil {
				rows.Close()
				return nil, err
			}
			out = append(out, m)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
