package mysql

import (
	"context"
	"fmt"

	"ROLLCALL-backend/internal/persistence"
)

func (r *repo) GetAccount(ctx context.Context, userID string) (persistence.Account, error) {
	const q = `SELECT user_id, password_hash, role, is_disabled FROM accounts WHERE user_id = ?`
	var a persistence.Account
	err := r.q.QueryRowContext(ctx, q, userID).Scan(&a.UserID, &a.PasswordHash, &a.Role, &a.IsDisabled)
	return a, mapErr(err)
}

func (r *repo) StudentIDForUser(ctx context.Context, userID string) (string, error) {
	const q = `SELECT student_id FROM students WHERE user_id = ?`
	var id string
	err := r.q.QueryRowContext(ctx, q, userID).Scan(&id)
	return id, mapErr(err)
}

func (r *repo) TeacherIDForUser(ctx context.Context, userID string) (string, error) {
	const q = `SELECT teacher_id FROM teachers WHERE user_id = ?`
	var id string
	err := r.q.QueryRowContext(ctx, q, userID).Scan(&id)
	return id, mapErr(err)
}

func (r *repo) IsEnrolled(ctx context.Context, studentID, courseID string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM course_students WHERE student_id = ? AND course_id = ?)`
	var ok bool
	if err := r.q.QueryRowContext(ctx, q, studentID, courseID).Scan(&ok); err != nil {
		return false, fmt.Errorf("is enrolled: %w", err)
	}
	return ok, nil
}

func (r *repo) TeachesCourse(ctx context.Context, teacherID, courseID string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM teacher_courses WHERE teacher_id = ? AND course_id = ?)`
	var ok bool
	if err := r.q.QueryRowContext(ctx, q, teacherID, courseID).Scan(&ok); err != nil {
		return false, fmt.Errorf("teaches course: %w", err)
	}
	return ok, nil
}

func (r *repo) RemoveEnrollment(ctx context.Context, studentID, courseID string) error {
	const q = `DELETE FROM course_students WHERE student_id = ? AND course_id = ?`
	_, err := r.q.ExecContext(ctx, q, studentID, courseID)
	return mapErr(err)
}

func (r *repo) RestoreEnrollment(ctx context.Context, studentID, courseID string) error {
	const q = `INSERT IGNORE INTO course_students (student_id, course_id, enrolled_at) VALUES (?, ?, UTC_TIMESTAMP(6))`
	_, err := r.q.ExecContext(ctx, q, studentID, courseID)
	return mapErr(err)
}

func (r *repo) ListEnrolled(ctx context.Context, courseID string) ([]persistence.Student, error) {
	const q = `
	SELECT st.student_id, st.user_id, st.full_name
	FROM course_students cs
	JOIN students st ON st.student_id = cs.student_id
	WHERE cs.course_id = ?
	ORDER BY st.student_id`
	rows, err := r.q.QueryContext(ctx, q, courseID)
	if err != nil {
		return nil, fmt.Errorf("list enrolled: %w", err)
	}
	defer rows.Close()

	var out []persistence.Student
	for rows.Next() {
		var s persistence.Student
		if err := rows.Scan(&s.StudentID, &s.UserID, &s.FullName); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
