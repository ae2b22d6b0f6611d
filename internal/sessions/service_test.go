package sessions

import (
	"context"
	"fmt"
	"sync"
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
	codes    *testfixtures.Codes
	registry *compliance.Registry
	svc      *Service
}

func newEnv(opts Options, codes ...string) *env {
	return newPolicyEnv(compliance.DefaultPolicy(), opts, codes...)
}

func newPolicyEnv(p compliance.Policy, opts Options, codes ...string) *env {
	clk := testfixtures.NewClock(time.Time{})
	store := testfixtures.Campus()
	reg := compliance.NewRegistry(p, clk, testfixtures.NewIDGenerator("mk"))
	e := &env{store: store, clock: clk, registry: reg, codes: testfixtures.NewCodes(codes...)}
	e.svc = NewService(store, reg, opts, logging.Discard(),
		WithClock(clk),
		WithIDGenerator(testfixtures.NewIDGenerator("id")),
		WithCodeGenerator(e.codes),
	)
	return e
}

func (e *env) open(t *testing.T, course string) SessionResponse {
	t.Helper()
	res, err := e.svc.Create(context.Background(), CreateSessionInput{CourseID: course, TeacherID: testfixtures.Teacher})
	require.NoError(t, err)
	return res
}

func (e *env) mark(t *testing.T, sessionID, studentID string) (persistence.AttendanceMark, error) {
	t.Helper()
	var m persistence.AttendanceMark
	err := e.store.ReadOnly(context.Background(), func(ctx context.Context, tx persistence.Tx) error {
		var err error
		m, err = tx.GetMark(ctx, sessionID, studentID)
		return err
	})
	return m, err
}

// absences は過去セッションに無断欠席を n 件積む。マーカーは再計算しない
func (e *env) absences(t *testing.T, studentID string, n int) {
	t.Helper()
	require.NoError(t, e.store.WithinTx(context.Background(), func(ctx context.Context, tx persistence.Tx) error {
		return seedAbsences(ctx, tx, studentID, n)
	}))
}

// exclude は過去セッションに無断欠席を3件積んで除籍状態にする
func (e *env) exclude(t *testing.T, studentID string) {
	t.Helper()
	require.NoError(t, e.store.WithinTx(context.Background(), func(ctx context.Context, tx persistence.Tx) error {
		if err := seedAbsences(ctx, tx, studentID, 3); err != nil {
			return err
		}
		out, err := e.registry.Recompute(ctx, tx, studentID, testfixtures.Course)
		if err != nil {
			return err
		}
		require.Equal(t, compliance.StatusExcluded, out.Status)
		return nil
	}))
}

func seedAbsences(ctx context.Context, tx persistence.Tx, studentID string, n int) error {
	by := testfixtures.Teacher
	for i := 1; i <= n; i++ {
		sid := fmt.Sprintf("past-%02d", i)
		at := testfixtures.ReferenceTime().Add(-time.Duration(i) * 24 * time.Hour)
		if err := tx.CreateSession(ctx, persistence.Session{
			SessionID: sid, CourseID: testfixtures.Course, TeacherID: testfixtures.Teacher,
			StartTime: at, Status: persistence.SessionCompleted, Room: "TBD", CreatedAt: at,
		}); err != nil {
			return err
		}
		if err := tx.UpsertMark(ctx, persistence.AttendanceMark{
			RecordID: "rec-" + sid, SessionID: sid, StudentID: studentID,
			Status: persistence.MarkUnjustified, MarkedBy: &by, LastModified: at,
		}); err != nil {
			return err
		}
	}
	return nil
}

func TestCreateIssuesCodeAndExpiry(t *testing.T) {
	e := newEnv(DefaultOptions(), "ABC123")

	res := e.open(t, testfixtures.Course)

	require.NotNil(t, res.Code)
	assert.Equal(t, "ABC123", *res.Code)
	assert.Equal(t, persistence.SessionActive, res.Status)
	assert.Equal(t, "TBD", res.Room)
	require.NotNil(t, res.ExpirationTime)
	assert.Equal(t, testfixtures.ReferenceTime().Add(15*time.Minute), *res.ExpirationTime)
	assert.True(t, res.Redeemable)
}

func TestCreateRejectsBadDuration(t *testing.T) {
	e := newEnv(DefaultOptions(), "ABC123")
	for _, m := range []int{0, -5, 601} {
		m := m
		_, err := e.svc.Create(context.Background(), CreateSessionInput{
			CourseID: testfixtures.Course, TeacherID: testfixtures.Teacher, DurationMinutes: &m,
		})
		assert.True(t, apperr.Is(err, apperr.CodeInvalidArgument), "duration %d", m)
	}
	assert.Equal(t, 0, e.codes.Calls())
}

func TestCreateByUnassignedTeacherIsForbidden(t *testing.T) {
	e := newEnv(DefaultOptions(), "ABC123")
	ctx := context.Background()

	_, err := e.svc.Create(ctx, CreateSessionInput{CourseID: testfixtures.Course, TeacherID: testfixtures.Outsider})
	assert.True(t, apperr.Is(err, apperr.CodeForbidden))

	// セッションもコードも残らない
	list, err := e.svc.ListActive(ctx, testfixtures.Outsider)
	require.NoError(t, err)
	assert.Empty(t, list)
	_, err = e.svc.Redeem(ctx, "ABC123", testfixtures.Student)
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))
}

func TestCreateRetriesOnCodeCollision(t *testing.T) {
	e := newEnv(DefaultOptions(), "AAAAAA", "AAAAAA", "BBBBBB")

	first := e.open(t, testfixtures.Course)
	second := e.open(t, testfixtures.Course)

	assert.Equal(t, "AAAAAA", *first.Code)
	assert.Equal(t, "BBBBBB", *second.Code)
	assert.Equal(t, 3, e.codes.Calls())
}

func TestCreateGivesUpAfterConfiguredAttempts(t *testing.T) {
	opts := DefaultOptions()
	opts.CodeAttempts = 3
	e := newEnv(opts, "AAAAAA")
	ctx := context.Background()

	e.open(t, testfixtures.Course)
	_, err := e.svc.Create(ctx, CreateSessionInput{CourseID: testfixtures.Course, TeacherID: testfixtures.Teacher})
	assert.True(t, apperr.Is(err, apperr.CodeInternal))
	assert.Equal(t, 4, e.codes.Calls())

	list, err := e.svc.ListActive(ctx, testfixtures.Teacher)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestExpiredCodeCanBeReissued(t *testing.T) {
	e := newEnv(DefaultOptions(), "AAAAAA")
	ctx := context.Background()

	old := e.open(t, testfixtures.Course)
	e.clock.Advance(16 * time.Minute)
	fresh := e.open(t, testfixtures.Course)
	assert.Equal(t, "AAAAAA", *fresh.Code)

	res, err := e.svc.Redeem(ctx, "AAAAAA", testfixtures.Student)
	require.NoError(t, err)
	assert.Equal(t, fresh.SessionID, res.SessionID)
	_, err = e.mark(t, old.SessionID, testfixtures.Student)
	assert.ErrorIs(t, err, persistence.ErrNotFound)

	// 同じコードが二つのセッションに表示されない
	list, err := e.svc.ListActive(ctx, testfixtures.Teacher)
	require.NoError(t, err)
	require.Len(t, list, 2)
	for _, row := range list {
		if row.SessionID == old.SessionID {
			assert.Nil(t, row.Code)
		} else {
			assert.Equal(t, "AAAAAA", *row.Code)
		}
	}
}

func TestClosedSessionCodeCanBeReissued(t *testing.T) {
	e := newEnv(DefaultOptions(), "AAAAAA", "AAAAAA")
	ctx := context.Background()

	old := e.open(t, testfixtures.Course)
	_, err := e.svc.Close(ctx, old.SessionID, testfixtures.Teacher)
	require.NoError(t, err)
	fresh := e.open(t, testfixtures.Course)
	assert.Equal(t, "AAAAAA", *fresh.Code)
	assert.Equal(t, 2, e.codes.Calls())

	res, err := e.svc.Redeem(ctx, "AAAAAA", testfixtures.Student)
	require.NoError(t, err)
	assert.Equal(t, fresh.SessionID, res.SessionID)
}

func TestRedeemOnceThenConflict(t *testing.T) {
	e := newEnv(DefaultOptions(), "QX7P2M")
	ctx := context.Background()
	sess := e.open(t, testfixtures.Course)
	e.clock.Advance(2 * time.Minute)

	res, err := e.svc.Redeem(ctx, "QX7P2M", testfixtures.Student)
	require.NoError(t, err)
	assert.Equal(t, persistence.MarkPresent, res.Status)
	assert.Equal(t, compliance.StatusNormal, res.ComplianceStatus)
	assert.Equal(t, 1, res.Counts.Present)
	assert.Equal(t, e.clock.Now(), res.SubmissionTime)

	m, err := e.mark(t, sess.SessionID, testfixtures.Student)
	require.NoError(t, err)
	assert.Equal(t, persistence.MarkPresent, m.Status)
	require.NotNil(t, m.SubmissionTime)
	assert.Nil(t, m.MarkedBy)

	_, err = e.svc.Redeem(ctx, "QX7P2M", testfixtures.Student)
	assert.True(t, apperr.Is(err, apperr.CodeConflict))
}

func TestRedeemNormalizesInput(t *testing.T) {
	e := newEnv(DefaultOptions(), "ABC123")
	e.open(t, testfixtures.Course)

	res, err := e.svc.Redeem(context.Background(), "  ａｂｃ１２３ ", testfixtures.Student)
	require.NoError(t, err)
	assert.Equal(t, testfixtures.Course, res.CourseID)
}

func TestRedeemAfterExpiry(t *testing.T) {
	e := newEnv(DefaultOptions(), "ABC123")
	sess := e.open(t, testfixtures.Course)

	// 期限ちょうどは受け付ける
	e.clock.Advance(15 * time.Minute)
	_, err := e.svc.Redeem(context.Background(), "ABC123", testfixtures.Student2)
	require.NoError(t, err)

	e.clock.Advance(time.Second)
	_, err = e.svc.Redeem(context.Background(), "ABC123", testfixtures.Student)
	assert.True(t, apperr.Is(err, apperr.CodeExpired))
	_, err = e.mark(t, sess.SessionID, testfixtures.Student)
	assert.ErrorIs(t, err, persistence.ErrNotFound)
}

func TestRedeemGates(t *testing.T) {
	ctx := context.Background()

	t.Run("malformed", func(t *testing.T) {
		e := newEnv(DefaultOptions(), "ABC123")
		_, err := e.svc.Redeem(ctx, "AB-12", testfixtures.Student)
		assert.True(t, apperr.Is(err, apperr.CodeInvalidArgument))
	})
	t.Run("unknown code", func(t *testing.T) {
		e := newEnv(DefaultOptions(), "ABC123")
		e.open(t, testfixtures.Course)
		_, err := e.svc.Redeem(ctx, "ZZZ999", testfixtures.Student)
		assert.True(t, apperr.Is(err, apperr.CodeNotFound))
	})
	t.Run("not enrolled", func(t *testing.T) {
		e := newEnv(DefaultOptions(), "ABC123")
		e.open(t, testfixtures.Course)
		_, err := e.svc.Redeem(ctx, "ABC123", testfixtures.Stranger)
		assert.True(t, apperr.Is(err, apperr.CodeForbidden))
	})
	t.Run("excluded", func(t *testing.T) {
		e := newEnv(DefaultOptions(), "ABC123")
		e.exclude(t, testfixtures.Student)
		sess := e.open(t, testfixtures.Course)
		_, err := e.svc.Redeem(ctx, "ABC123", testfixtures.Student)
		assert.True(t, apperr.Is(err, apperr.CodeForbidden))
		_, err = e.mark(t, sess.SessionID, testfixtures.Student)
		assert.ErrorIs(t, err, persistence.ErrNotFound)
	})
	t.Run("closed", func(t *testing.T) {
		e := newEnv(DefaultOptions(), "ABC123")
		sess := e.open(t, testfixtures.Course)
		_, err := e.svc.Close(ctx, sess.SessionID, testfixtures.Teacher)
		require.NoError(t, err)
		_, err = e.svc.Redeem(ctx, "ABC123", testfixtures.Student)
		assert.True(t, apperr.Is(err, apperr.CodeConflict))
		_, err = e.mark(t, sess.SessionID, testfixtures.Student)
		assert.ErrorIs(t, err, persistence.ErrNotFound)
	})
	t.Run("swept", func(t *testing.T) {
		e := newEnv(DefaultOptions(), "ABC123")
		e.open(t, testfixtures.Course)
		e.clock.Advance(16 * time.Minute)
		_, err := e.svc.Sweep(ctx)
		require.NoError(t, err)
		_, err = e.svc.Redeem(ctx, "ABC123", testfixtures.Student)
		assert.True(t, apperr.Is(err, apperr.CodeConflict))
	})
}

// 終了と提出が競合しても、終了後に記録が増えることはない
func TestCloseAndRedeemSerialize(t *testing.T) {
	for i := 0; i < 20; i++ {
		e := newEnv(DefaultOptions(), "ABC123")
		sess := e.open(t, testfixtures.Course)

		var (
			wg        sync.WaitGroup
			redeemErr error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, redeemErr = e.svc.Redeem(context.Background(), "ABC123", testfixtures.Student)
		}()
		go func() {
			defer wg.Done()
			_, err := e.svc.Close(context.Background(), sess.SessionID, testfixtures.Teacher)
			assert.NoError(t, err)
		}()
		wg.Wait()

		_, markErr := e.mark(t, sess.SessionID, testfixtures.Student)
		if redeemErr == nil {
			assert.NoError(t, markErr)
		} else {
			assert.True(t, apperr.Is(redeemErr, apperr.CodeConflict), "got %v", redeemErr)
			assert.ErrorIs(t, markErr, persistence.ErrNotFound)
		}
	}
}

// dupTx は事前チェックをすり抜けた同時提出を再現する
type dupTx struct {
	persistence.Tx
}

func (dupTx) GetMark(context.Context, string, string) (persistence.AttendanceMark, error) {
	return persistence.AttendanceMark{}, persistence.ErrNotFound
}

func (dupTx) InsertMark(context.Context, persistence.AttendanceMark) error {
	return persistence.ErrDuplicate
}

type dupStore struct {
	persistence.Store
}

func (s dupStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx persistence.Tx) error) error {
	return s.Store.WithinTx(ctx, func(ctx context.Context, tx persistence.Tx) error {
		return fn(ctx, dupTx{tx})
	})
}

func TestRedeemInsertConflictIsConflict(t *testing.T) {
	e := newEnv(DefaultOptions(), "ABC123")
	e.open(t, testfixtures.Course)
	svc := NewService(dupStore{e.store}, e.registry, DefaultOptions(), logging.Discard(), WithClock(e.clock))

	_, err := svc.Redeem(context.Background(), "ABC123", testfixtures.Student)
	assert.True(t, apperr.Is(err, apperr.CodeConflict), "got %v", err)
}

// しきい値を厳しくした後の提出で除籍に達しても、出席は残る
func TestRedeemThatTipsIntoExclusionKeepsMark(t *testing.T) {
	strict := compliance.Policy{WarnUnjustified: 1, WarnTotal: 1, ExcludeUnjustified: 1, ExcludeJustified: 5}
	e := newPolicyEnv(strict, DefaultOptions(), "ABC123")
	ctx := context.Background()
	e.absences(t, testfixtures.Student, 1)
	sess := e.open(t, testfixtures.Course)

	res, err := e.svc.Redeem(ctx, "ABC123", testfixtures.Student)
	require.NoError(t, err)
	assert.Equal(t, compliance.StatusExcluded, res.ComplianceStatus)
	assert.Equal(t, 1, res.Counts.Present)

	m, err := e.mark(t, sess.SessionID, testfixtures.Student)
	require.NoError(t, err)
	assert.Equal(t, persistence.MarkPresent, m.Status)

	require.NoError(t, e.store.ReadOnly(ctx, func(ctx context.Context, tx persistence.Tx) error {
		_, err := tx.ActiveMarker(ctx, persistence.MarkerExclusion, testfixtures.Student, testfixtures.Course)
		require.NoError(t, err)
		enrolled, err := tx.IsEnrolled(ctx, testfixtures.Student, testfixtures.Course)
		require.NoError(t, err)
		assert.False(t, enrolled)
		return nil
	}))
}

func TestConcurrentRedeemRecordsOnce(t *testing.T) {
	e := newEnv(DefaultOptions(), "ABC123")
	sess := e.open(t, testfixtures.Course)

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.svc.Redeem(context.Background(), "ABC123", testfixtures.Student)
		}(i)
	}
	wg.Wait()

	ok, conflicts := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case apperr.Is(err, apperr.CodeConflict):
			conflicts++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, conflicts)
	_, err := e.mark(t, sess.SessionID, testfixtures.Student)
	assert.NoError(t, err)
}

func TestScheduleThenStart(t *testing.T) {
	e := newEnv(DefaultOptions(), "SCH001", "SCH002")
	ctx := context.Background()
	at := testfixtures.ReferenceTime().Add(24 * time.Hour)

	sched, err := e.svc.Schedule(ctx, ScheduleSessionInput{CourseID: testfixtures.Course, TeacherID: testfixtures.Teacher, StartTime: at, Room: "B-201"})
	require.NoError(t, err)
	assert.Equal(t, persistence.SessionScheduled, sched.Status)
	assert.Nil(t, sched.Code)
	assert.False(t, sched.Redeemable)

	_, err = e.svc.Start(ctx, StartSessionInput{SessionID: sched.SessionID, TeacherID: testfixtures.Outsider})
	assert.True(t, apperr.Is(err, apperr.CodeForbidden))

	ten := 10
	started, err := e.svc.Start(ctx, StartSessionInput{SessionID: sched.SessionID, TeacherID: testfixtures.Teacher, DurationMinutes: &ten})
	require.NoError(t, err)
	assert.Equal(t, persistence.SessionActive, started.Status)
	assert.Equal(t, "SCH001", *started.Code)
	assert.Equal(t, "B-201", started.Room)
	assert.Equal(t, e.clock.Now().Add(10*time.Minute), *started.ExpirationTime)

	// 再開始するとコードが差し替わる
	restarted, err := e.svc.Start(ctx, StartSessionInput{SessionID: sched.SessionID, TeacherID: testfixtures.Teacher})
	require.NoError(t, err)
	assert.Equal(t, "SCH002", *restarted.Code)
	_, err = e.svc.Redeem(ctx, "SCH001", testfixtures.Student)
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))

	_, err = e.svc.Close(ctx, sched.SessionID, testfixtures.Teacher)
	require.NoError(t, err)
	_, err = e.svc.Start(ctx, StartSessionInput{SessionID: sched.SessionID, TeacherID: testfixtures.Teacher})
	assert.True(t, apperr.Is(err, apperr.CodeConflict))
}

func TestCloseChecksAssignment(t *testing.T) {
	e := newEnv(DefaultOptions(), "ABC123")
	ctx := context.Background()
	sess := e.open(t, testfixtures.Course)

	_, err := e.svc.Close(ctx, "missing", testfixtures.Teacher)
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))
	_, err = e.svc.Close(ctx, sess.SessionID, testfixtures.Outsider)
	assert.True(t, apperr.Is(err, apperr.CodeForbidden))

	res, err := e.svc.Close(ctx, sess.SessionID, testfixtures.Teacher)
	require.NoError(t, err)
	assert.Equal(t, persistence.SessionCompleted, res.Status)
	assert.False(t, res.Redeemable)

	// 二度目も成功扱い
	_, err = e.svc.Close(ctx, sess.SessionID, testfixtures.Teacher)
	assert.NoError(t, err)
}

func TestRosterAndNonSubmitters(t *testing.T) {
	e := newEnv(DefaultOptions(), "ABC123")
	ctx := context.Background()
	sess := e.open(t, testfixtures.Course)
	_, err := e.svc.Redeem(ctx, "ABC123", testfixtures.Student)
	require.NoError(t, err)

	roster, err := e.svc.Roster(ctx, testfixtures.Teacher, sess.SessionID)
	require.NoError(t, err)
	require.Len(t, roster.Students, 2)
	byID := map[string]RosterEntry{}
	for _, s := range roster.Students {
		byID[s.StudentID] = s
	}
	assert.Equal(t, "Present", byID[testfixtures.Student].Status)
	assert.Equal(t, "Absent", byID[testfixtures.Student2].Status)
	assert.Equal(t, RosterSummary{Present: 1, NotRecorded: 1}, roster.Summary)

	missing, err := e.svc.NonSubmitters(ctx, testfixtures.Teacher, sess.SessionID)
	require.NoError(t, err)
	require.Len(t, missing, 1)
	assert.Equal(t, testfixtures.Student2, missing[0].StudentID)

	_, err = e.svc.Roster(ctx, testfixtures.Outsider, sess.SessionID)
	assert.True(t, apperr.Is(err, apperr.CodeForbidden))
}

func TestSweepClosesExpiredSessions(t *testing.T) {
	e := newEnv(DefaultOptions(), "AAAAAA", "BBBBBB")
	ctx := context.Background()

	stale := e.open(t, testfixtures.Course)
	e.clock.Advance(10 * time.Minute)
	live := e.open(t, testfixtures.Course)
	e.clock.Advance(6 * time.Minute)

	res, err := e.svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{stale.SessionID}, res.Closed)

	list, err := e.svc.ListActive(ctx, testfixtures.Teacher)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, live.SessionID, list[0].SessionID)
}
