package memory

import (
	"context"
	"sort"

	"ROLLCALL-backend/internal/persistence"
)

func (t *tx) GetAccount(_ context.Context, userID string) (persistence.Account, error) {
	a, ok := t.st.accounts[userID]
	if !ok {
		return persistence.Account{}, persistence.ErrNotFound
	}
	return a, nil
}

func (t *tx) StudentIDForUser(_ context.Context, userID string) (string, error) {
	for _, s := range t.st.students {
		if s.UserID == userID {
			return s.StudentID, nil
		}
	}
	return "", persistence.ErrNotFound
}

func (t *tx) TeacherIDForUser(_ context.Context, userID string) (string, error) {
	for _, tc := range t.st.teachers {
		if tc.UserID == userID {
			return tc.TeacherID, nil
		}
	}
	return "", persistence.ErrNotFound
}

func (t *tx) IsEnrolled(_ context.Context, studentID, courseID string) (bool, error) {
	_, ok := t.st.enrolled[pair{studentID, courseID}]
	return ok, nil
}

func (t *tx) TeachesCourse(_ context.Context, teacherID, courseID string) (bool, error) {
	_, ok := t.st.teaching[pair{teacherID, courseID}]
	return ok, nil
}

func (t *tx) RemoveEnrollment(_ context.Context, studentID, courseID string) error {
	if err := t.writable(); err != nil {
		return err
	}
	delete(t.st.enrolled, pair{studentID, courseID})
	return nil
}

func (t *tx) RestoreEnrollment(_ context.Context, studentID, courseID string) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.st.students[studentID]; !ok {
		return persistence.ErrForeignKey
	}
	t.st.enrolled[pair{studentID, courseID}] = struct{}{}
	return nil
}

func (t *tx) ListEnrolled(_ context.Context, courseID string) ([]persistence.Student, error) {
	var out []persistence.Student
	for k := range t.st.enrolled {
		if k.b != courseID {
			continue
		}
		if s, ok := t.st.students[k.a]; ok {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StudentID < out[j].StudentID })
	return out, nil
}
