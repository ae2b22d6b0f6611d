package memory

import (
	"context"
	"sort"
	"time"

	"ROLLCALL-backend/internal/persistence"
)

func (t *tx) CreateSession(_ context.Context, s persistence.Session) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.st.sessions[s.SessionID]; ok {
		return persistence.ErrDuplicate
	}
	if _, ok := t.st.teachers[s.TeacherID]; !ok {
		return persistence.ErrForeignKey
	}
	t.st.sessions[s.SessionID] = s
	return nil
}

func (t *tx) GetSession(_ context.Context, sessionID string) (persistence.Session, error) {
	s, ok := t.st.sessions[sessionID]
	if !ok {
		return persistence.Session{}, persistence.ErrNotFound
	}
	return s, nil
}

func (t *tx) LockSession(ctx context.Context, sessionID string) (persistence.Session, error) {
	return t.GetSession(ctx, sessionID)
}

func (t *tx) UpdateSession(_ context.Context, s persistence.Session) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.st.sessions[s.SessionID]; !ok {
		return persistence.ErrNotFound
	}
	t.st.sessions[s.SessionID] = s
	return nil
}

func (t *tx) FindSessionByCode(_ context.Context, code string) (persistence.Session, error) {
	h, ok := t.st.codes[code]
	if !ok {
		return persistence.Session{}, persistence.ErrNotFound
	}
	s, ok := t.st.sessions[h.sessionID]
	if !ok {
		return persistence.Session{}, persistence.ErrNotFound
	}
	return s, nil
}

func (t *tx) ReserveCode(_ context.Context, code, sessionID string, expiresAt, now time.Time) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.st.sessions[sessionID]; !ok {
		return persistence.ErrForeignKey
	}
	for c, h := range t.st.codes {
		if h.sessionID == sessionID && c != code {
			return persistence.ErrDuplicate
		}
	}
	if h, ok := t.st.codes[code]; ok && h.sessionID != sessionID {
		holder := t.st.sessions[h.sessionID]
		if holder.Redeemable(now) {
			return persistence.ErrDuplicate
		}
		// 旧保持者の表示用コードも消す
		holder.Code = nil
		t.st.sessions[h.sessionID] = holder
	}
	t.st.codes[code] = codeHold{sessionID: sessionID, expiresAt: expiresAt}
	return nil
}

func (t *tx) ReleaseCode(_ context.Context, sessionID string) error {
	if err := t.writable(); err != nil {
		return err
	}
	for c, h := range t.st.codes {
		if h.sessionID == sessionID {
			delete(t.st.codes, c)
		}
	}
	return nil
}

func (t *tx) ListSessionsByTeacher(_ context.Context, teacherID string, statuses ...persistence.SessionStatus) ([]persistence.Session, error) {
	want := map[persistence.SessionStatus]bool{}
	for _, st := range statuses {
		want[st] = true
	}
	var out []persistence.Session
	for _, s := range t.st.sessions {
		if s.TeacherID != teacherID {
			continue
		}
		if len(want) > 0 && !want[s.Status] {
			continue
		}
		out = append(out, s)
	}
	sortSessions(out)
	return out, nil
}

func (t *tx) ListExpiredActive(_ context.Context, now time.Time) ([]persistence.Session, error) {
	var out []persistence.Session
	for _, s := range t.st.sessions {
		if s.Status == persistence.SessionActive && s.ExpirationTime != nil && now.After(*s.ExpirationTime) {
			out = append(out, s)
		}
	}
	sortSessions(out)
	return out, nil
}

// 開始時刻の新しい順、同時刻は ID 順
func sortSessions(ss []persistence.Session) {
	sort.Slice(ss, func(i, j int) bool {
		if !ss[i].StartTime.Equal(ss[j].StartTime) {
			return ss[i].StartTime.After(ss[j].StartTime)
		}
		return ss[i].SessionID < ss[j].SessionID
	})
}
