package attendance

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ROLLCALL-backend/internal/compliance"
	"ROLLCALL-backend/internal/persistence"
	"ROLLCALL-backend/internal/persistence/memory"
	"ROLLCALL-backend/internal/platform/apperr"
	"ROLLCALL-backend/internal/platform/logging"
	"ROLLCALL-backend/internal/testfixtures"
)

type env struct {
	store    *memory.Store
	clock    *testfixtures.Clock
	svc      *Service
	sessions int
}

func newEnv() *env {
	clk := testfixtures.NewClock(time.Time{})
	store := testfixtures.Campus()
	reg := compliance.NewRegistry(compliance.DefaultPolicy(), clk, testfixtures.NewIDGenerator("mk"))
	return &env{
		store: store,
		clock: clk,
		svc:   NewService(store, reg, logging.Discard(), WithClock(clk), WithIDGenerator(testfixtures.NewIDGenerator("rec"))),
	}
}

// session は Course に授業を1コマ作る
func (e *env) session(t *testing.T, course string) string {
	t.Helper()
	e.sessions++
	sid := fmt.Sprintf("sess-%02d", e.sessions)
	now := e.clock.Advance(time.Hour)
	teacher := testfixtures.Teacher
	if course == testfixtures.OtherCourse {
		teacher = testfixtures.Outsider
	}
	require.NoError(t, e.store.WithinTx(context.Background(), func(ctx context.Context, tx persistence.Tx) error {
		exp := now.Add(15 * time.Minute)
		return tx.CreateSession(ctx, persistence.Session{
			SessionID: sid, CourseID: course, TeacherID: teacher, StartTime: now,
			ExpirationTime: &exp, Status: persistence.SessionActive, Room: "A-101", CreatedAt: now,
		})
	}))
	return sid
}

func (e *env) absent(t *testing.T, sid, student, kind string) MarkResponse {
	t.Helper()
	res, err := e.svc.MarkAbsence(context.Background(), MarkAbsenceInput{
		TeacherID: testfixtures.Teacher, SessionID: sid, StudentID: student, Kind: kind,
	})
	require.NoError(t, err)
	return res
}

func (e *env) enrolled(t *testing.T, student string) bool {
	t.Helper()
	var ok bool
	require.NoError(t, e.store.ReadOnly(context.Background(), func(ctx context.Context, tx persistence.Tx) error {
		var err error
		ok, err = tx.IsEnrolled(ctx, student, testfixtures.Course)
		return err
	}))
	return ok
}

func TestThirdUnjustifiedAbsenceExcludes(t *testing.T) {
	e := newEnv()
	ctx := context.Background()

	res := e.absent(t, e.session(t, testfixtures.Course), testfixtures.Student, "Unjustified")
	assert.Equal(t, compliance.StatusNormal, res.ComplianceStatus)
	res = e.absent(t, e.session(t, testfixtures.Course), testfixtures.Student, "unjustified")
	assert.Equal(t, compliance.StatusWarning, res.ComplianceStatus)

	h, err := e.svc.History(ctx, testfixtures.Student, testfixtures.Course)
	require.NoError(t, err)
	require.Len(t, h.Warnings, 1)
	assert.Empty(t, h.Exclusions)

	res = e.absent(t, e.session(t, testfixtures.Course), testfixtures.Student, "Unjustified")
	assert.Equal(t, compliance.StatusExcluded, res.ComplianceStatus)
	assert.Equal(t, 3, res.Counts.Unjustified)

	h, err = e.svc.History(ctx, testfixtures.Student, testfixtures.Course)
	require.NoError(t, err)
	assert.Empty(t, h.Warnings)
	require.Len(t, h.Exclusions, 1)
	assert.Equal(t, 3, h.Exclusions[0].ReasonCount)
	assert.False(t, e.enrolled(t, testfixtures.Student))

	// 除籍後の欠席登録は拒否
	_, err = e.svc.MarkAbsence(ctx, MarkAbsenceInput{
		TeacherID: testfixtures.Teacher, SessionID: e.session(t, testfixtures.Course),
		StudentID: testfixtures.Student, Kind: "Justified",
	})
	assert.True(t, apperr.Is(err, apperr.CodeForbidden))
}

func TestReclassifyingLiftsExclusion(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	var sids []string
	for i := 0; i < 3; i++ {
		sid := e.session(t, testfixtures.Course)
		sids = append(sids, sid)
		e.absent(t, sid, testfixtures.Student, "Unjustified")
	}
	require.False(t, e.enrolled(t, testfixtures.Student))

	res, err := e.svc.UpdateAttendance(ctx, UpdateAttendanceInput{
		TeacherID: testfixtures.Teacher, SessionID: sids[0], StudentID: testfixtures.Student, Status: "Justified",
	})
	require.NoError(t, err)
	assert.Equal(t, persistence.MarkUnjustified, res.OldStatus)
	assert.Equal(t, persistence.MarkJustified, res.NewStatus)
	// U=2, J=1 は一度の再計算で Warning
	assert.Equal(t, compliance.StatusWarning, res.ComplianceStatus)
	assert.Equal(t, compliance.CountsResponse{Justified: 1, Unjustified: 2, Absences: 3}, res.Counts)
	assert.True(t, e.enrolled(t, testfixtures.Student))

	h, err := e.svc.History(ctx, testfixtures.Student, testfixtures.Course)
	require.NoError(t, err)
	assert.Len(t, h.Warnings, 1)
	assert.Empty(t, h.Exclusions)

	for _, sid := range sids[1:] {
		res, err = e.svc.UpdateAttendance(ctx, UpdateAttendanceInput{
			TeacherID: testfixtures.Teacher, SessionID: sid, StudentID: testfixtures.Student, Status: "Present",
		})
		require.NoError(t, err)
	}
	assert.Equal(t, compliance.StatusNormal, res.ComplianceStatus)

	h, err = e.svc.History(ctx, testfixtures.Student, testfixtures.Course)
	require.NoError(t, err)
	assert.Empty(t, h.Warnings)
	assert.Empty(t, h.Exclusions)
}

func TestMarkAbsenceGates(t *testing.T) {
	ctx := context.Background()
	in := func(sid, student string) MarkAbsenceInput {
		return MarkAbsenceInput{TeacherID: testfixtures.Teacher, SessionID: sid, StudentID: student, Kind: "Unjustified"}
	}

	t.Run("bad kind", func(t *testing.T) {
		e := newEnv()
		req := in(e.session(t, testfixtures.Course), testfixtures.Student)
		req.Kind = "Present"
		_, err := e.svc.MarkAbsence(ctx, req)
		assert.True(t, apperr.Is(err, apperr.CodeInvalidArgument))
	})
	t.Run("unknown session", func(t *testing.T) {
		e := newEnv()
		_, err := e.svc.MarkAbsence(ctx, in("nope", testfixtures.Student))
		assert.True(t, apperr.Is(err, apperr.CodeNotFound))
	})
	t.Run("unassigned teacher", func(t *testing.T) {
		e := newEnv()
		req := in(e.session(t, testfixtures.Course), testfixtures.Student)
		req.TeacherID = testfixtures.Outsider
		_, err := e.svc.MarkAbsence(ctx, req)
		assert.True(t, apperr.Is(err, apperr.CodeForbidden))
	})
	t.Run("already present", func(t *testing.T) {
		e := newEnv()
		sid := e.session(t, testfixtures.Course)
		require.NoError(t, e.store.WithinTx(ctx, func(ctx context.Context, tx persistence.Tx) error {
			now := e.clock.Now()
			return tx.InsertMark(ctx, persistence.AttendanceMark{
				RecordID: "r1", SessionID: sid, StudentID: testfixtures.Student,
				Status: persistence.MarkPresent, SubmissionTime: &now, LastModified: now,
			})
		}))
		_, err := e.svc.MarkAbsence(ctx, in(sid, testfixtures.Student))
		assert.True(t, apperr.Is(err, apperr.CodeConflict))
	})
	t.Run("not enrolled", func(t *testing.T) {
		e := newEnv()
		_, err := e.svc.MarkAbsence(ctx, in(e.session(t, testfixtures.Course), testfixtures.Stranger))
		assert.True(t, apperr.Is(err, apperr.CodeNotFound))
	})
}

func TestMarkAbsenceOverwritesEarlierAbsence(t *testing.T) {
	e := newEnv()
	sid := e.session(t, testfixtures.Course)

	e.absent(t, sid, testfixtures.Student, "Unjustified")
	res := e.absent(t, sid, testfixtures.Student, "Justified")

	assert.Equal(t, compliance.CountsResponse{Justified: 1, Absences: 1}, res.Counts)
	h, err := e.svc.History(context.Background(), testfixtures.Student, "")
	require.NoError(t, err)
	require.Len(t, h.Records, 1)
	assert.Equal(t, "rec-0001", h.Records[0].RecordID)
	require.NotNil(t, h.Records[0].MarkedBy)
	assert.Equal(t, testfixtures.Teacher, *h.Records[0].MarkedBy)
}

func TestUpdateAttendanceRequiresRecord(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	sid := e.session(t, testfixtures.Course)

	_, err := e.svc.UpdateAttendance(ctx, UpdateAttendanceInput{
		TeacherID: testfixtures.Teacher, SessionID: sid, StudentID: testfixtures.Student, Status: "Absent",
	})
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))

	e.absent(t, sid, testfixtures.Student, "Justified")
	_, err = e.svc.UpdateAttendance(ctx, UpdateAttendanceInput{
		TeacherID: testfixtures.Teacher, SessionID: sid, StudentID: testfixtures.Student, Status: "Late",
	})
	assert.True(t, apperr.Is(err, apperr.CodeInvalidArgument))

	res, err := e.svc.UpdateAttendance(ctx, UpdateAttendanceInput{
		TeacherID: testfixtures.Teacher, SessionID: sid, StudentID: testfixtures.Student, Status: "absent",
	})
	require.NoError(t, err)
	assert.Equal(t, persistence.MarkUnjustified, res.NewStatus)
}

func TestHistoryAcrossCourses(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	e.absent(t, e.session(t, testfixtures.Course), testfixtures.Student, "Justified")
	e.absent(t, e.session(t, testfixtures.Course), testfixtures.Student, "Unjustified")

	h, err := e.svc.History(ctx, testfixtures.Student, "")
	require.NoError(t, err)
	require.Len(t, h.Records, 2)
	// 新しい順
	assert.Equal(t, "sess-02", h.Records[0].SessionID)
	assert.Equal(t, "A-101", h.Records[0].Room)
	assert.Equal(t, 2, h.Counts.Absences)

	h, err = e.svc.History(ctx, testfixtures.Student, testfixtures.OtherCourse)
	require.NoError(t, err)
	assert.Empty(t, h.Records)
	assert.Empty(t, h.Warnings)
}

func TestParseStatus(t *testing.T) {
	for in, want := range map[string]persistence.MarkStatus{
		"Present":      persistence.MarkPresent,
		"absent":       persistence.MarkUnjustified,
		"JUSTIFIED":    persistence.MarkJustified,
		" Unjustified": persistence.MarkUnjustified,
	} {
		got, ok := ParseStatus(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := ParseAbsenceKind("Present")
	assert.False(t, ok)
}
