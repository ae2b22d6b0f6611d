package memory

import (
	"context"
	"sort"
	"time"

	"ROLLCALL-backend/internal/persistence"
)

func (t *tx) GetMark(_ context.Context, sessionID, studentID string) (persistence.AttendanceMark, error) {
	m, ok := t.st.marks[pair{sessionID, studentID}]
	if !ok {
		return persistence.AttendanceMark{}, persistence.ErrNotFound
	}
	return m, nil
}

func (t *tx) checkMarkRefs(m persistence.AttendanceMark) error {
	if _, ok := t.st.sessions[m.SessionID]; !ok {
		return persistence.ErrForeignKey
	}
	if _, ok := t.st.students[m.StudentID]; !ok {
		return persistence.ErrForeignKey
	}
	return nil
}

func (t *tx) InsertMark(_ context.Context, m persistence.AttendanceMark) error {
	if err := t.writable(); err != nil {
		return err
	}
	if err := t.checkMarkRefs(m); err != nil {
		return err
	}
	k := pair{m.SessionID, m.StudentID}
	if _, ok := t.st.marks[k]; ok {
		return persistence.ErrDuplicate
	}
	t.st.marks[k] = m
	return nil
}

func (t *tx) UpsertMark(_ context.Context, m persistence.AttendanceMark) error {
	if err := t.writable(); err != nil {
		return err
	}
	if err := t.checkMarkRefs(m); err != nil {
		return err
	}
	k := pair{m.SessionID, m.StudentID}
	if cur, ok := t.st.marks[k]; ok {
		// 既存行は record_id と submission_time を保ったまま上書き
		cur.Status = m.Status
		cur.MarkedBy = m.MarkedBy
		cur.LastModified = m.LastModified
		t.st.marks[k] = cur
		return nil
	}
	t.st.marks[k] = m
	return nil
}

func (t *tx) UpdateMarkStatus(_ context.Context, sessionID, studentID string, status persistence.MarkStatus, markedBy string, at time.Time) error {
	if err := t.writable(); err != nil {
		return err
	}
	k := pair{sessionID, studentID}
	cur, ok := t.st.marks[k]
	if !ok {
		return persistence.ErrNotFound
	}
	cur.Status = status
	by := markedBy
	cur.MarkedBy = &by
	cur.LastModified = at
	t.st.marks[k] = cur
	return nil
}

func (t *tx) CountMarks(_ context.Context, studentID, courseID string) (persistence.MarkCounts, error) {
	var c persistence.MarkCounts
	for k, m := range t.st.marks {
		if k.b != studentID {
			continue
		}
		if s, ok := t.st.sessions[k.a]; ok && s.CourseID == courseID {
			c.Add(m.Status)
		}
	}
	return c, nil
}

func (t *tx) ListMarksBySession(_ context.Context, sessionID string) ([]persistence.AttendanceMark, error) {
	var out []persistence.AttendanceMark
	for k, m := range t.st.marks {
		if k.a == sessionID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StudentID < out[j].StudentID })
	return out, nil
}

func (t *tx) ListHistory(_ context.Context, studentID, courseID string) ([]persistence.HistoryEntry, error) {
	var out []persistence.HistoryEntry
	for k, m := range t.st.marks {
		if k.b != studentID {
			continue
		}
		s, ok := t.st.sessions[k.a]
		if !ok || (courseID != "" && s.CourseID != courseID) {
			continue
		}
		out = append(out, persistence.HistoryEntry{Mark: m, CourseID: s.CourseID, StartTime: s.StartTime, Room: s.Room})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.After(out[j].StartTime)
		}
		return out[i].Mark.SessionID < out[j].Mark.SessionID
	})
	return out, nil
}
