package memory

import (
	"context"
	"time"

	"ROLLCALL-backend/internal/persistence"
)

// Store 全体が直列化されているので追加のロックは不要
func (t *tx) LockPair(_ context.Context, _, _ string) error {
	return t.writable()
}

func (t *tx) ActiveMarker(_ context.Context, kind persistence.MarkerKind, studentID, courseID string) (persistence.Marker, error) {
	for _, id := range t.st.order {
		m := t.st.markers[id]
		if m.IsActive && m.Kind == kind && m.StudentID == studentID && m.CourseID == courseID {
			return m, nil
		}
	}
	return persistence.Marker{}, persistence.ErrNotFound
}

func (t *tx) InsertMarker(ctx context.Context, m persistence.Marker) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.st.markers[m.MarkerID]; ok {
		return persistence.ErrDuplicate
	}
	if m.IsActive {
		if _, err := t.ActiveMarker(ctx, m.Kind, m.StudentID, m.CourseID); err == nil {
			return persistence.ErrDuplicate
		}
	}
	t.st.markers[m.MarkerID] = m
	t.st.order = append(t.st.order, m.MarkerID)
	return nil
}

func (t *tx) DeactivateMarker(_ context.Context, kind persistence.MarkerKind, studentID, courseID string, at time.Time) (bool, error) {
	if err := t.writable(); err != nil {
		return false, err
	}
	changed := false
	for _, id := range t.st.order {
		m := t.st.markers[id]
		if !m.IsActive || m.Kind != kind || m.StudentID != studentID || m.CourseID != courseID {
			continue
		}
		m.IsActive = false
		when := at
		m.DeactivatedAt = &when
		t.st.markers[id] = m
		changed = true
	}
	return changed, nil
}

func (t *tx) ListActiveMarkers(_ context.Context, f persistence.MarkerFilter) ([]persistence.Marker, error) {
	var out []persistence.Marker
	for _, id := range t.st.order {
		m := t.st.markers[id]
		if !m.IsActive {
			continue
		}
		if f.StudentID != "" && m.StudentID != f.StudentID {
			continue
		}
		if f.CourseID != "" && m.CourseID != f.CourseID {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}
