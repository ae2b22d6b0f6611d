package sessions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"ROLLCALL-backend/internal/authz"
	"ROLLCALL-backend/internal/compliance"
	"ROLLCALL-backend/internal/persistence"
	"ROLLCALL-backend/internal/platform/apperr"
	"ROLLCALL-backend/internal/platform/clock"
	"ROLLCALL-backend/internal/platform/ids"
	"ROLLCALL-backend/internal/platform/logging"
)

type Options struct {
	DefaultDurationMinutes int
	MaxDurationMinutes     int
	CodeAttempts           int // 衝突時の再抽選上限
	DefaultRoom            string
}

func DefaultOptions() Options {
	return Options{DefaultDurationMinutes: 15, MaxDurationMinutes: 600, CodeAttempts: 10, DefaultRoom: "TBD"}
}

// ===== Service本体 =====

type Service struct {
	store    persistence.Store
	registry *compliance.Registry
	opts     Options
	clock    clock.Clock
	ids      ids.Generator
	codes    CodeGenerator
	logger   *slog.Logger
}

type Option func(*Service)

func WithClock(c clock.Clock) Option { return func(s *Service) { s.clock = c } }
func WithIDGenerator(g ids.Generator) Option { return func(s *Service) { s.ids = g } }
func WithCodeGenerator(g CodeGenerator) Option { return func(s *Service) { s.codes = g } }

func NewService(store persistence.Store, registry *compliance.Registry, opts Options, logger *slog.Logger, options ...Option) *Service {
	s := &Service{
		store:    store,
		registry: registry,
		opts:     opts,
		clock:    clock.Real(),
		ids:      ids.ULID(),
		codes:    RandomCodes(),
		logger:   logger,
	}
	for _, o := range options {
		o(s)
	}
	return s
}

func (s *Service) log(ctx context.Context, op string, attrs ...any) *slog.Logger {
	return logging.Service(ctx, s.logger, "SessionService", op, attrs...)
}

func (s *Service) duration(minutes *int) (time.Duration, error) {
	m := s.opts.DefaultDurationMinutes
	if minutes != nil {
		m = *minutes
	}
	if m <= 0 || m > s.opts.MaxDurationMinutes {
		return 0, apperr.Invalid(fmt.Sprintf("duration_minutes must be between 1 and %d", s.opts.MaxDurationMinutes))
	}
	return time.Duration(m) * time.Minute, nil
}

func (s *Service) room(r string) string {
	if r = strings.TrimSpace(r); r != "" {
		return r
	}
	return s.opts.DefaultRoom
}

// issueCode はコードを引いて予約する。予約の一意制約が最終判定で、衝突したら引き直す
func (s *Service) issueCode(ctx context.Context, tx persistence.Tx, sessionID string, expiresAt, now time.Time) (string, error) {
	for attempt := 1; attempt <= s.opts.CodeAttempts; attempt++ {
		code, err := s.codes.Generate()
		if err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		err = tx.ReserveCode(ctx, code, sessionID, expiresAt, now)
		if err == nil {
			return code, nil
		}
		if !errors.Is(err, persistence.ErrDuplicate) {
			return "", fmt.Errorf("reserve code: %w", err)
		}
		s.log(ctx, "issueCode", "session_id", sessionID).DebugContext(ctx, "session code collision", "attempt", attempt)
	}
	return "", apperr.Internal("could not allocate a unique session code")
}

func notFound(err error, msg string) error {
	if errors.Is(err, persistence.ErrNotFound) {
		return apperr.NotFound(msg)
	}
	return err
}

// Create は授業を開いてすぐ Active にし、コードと期限を返す
func (s *Service) Create(ctx context.Context, in CreateSessionInput) (SessionResponse, error) {
	logger := s.log(ctx, "Create", "teacher_id", in.TeacherID, "course_id", in.CourseID)

	if strings.TrimSpace(in.CourseID) == "" {
		return SessionResponse{}, apperr.Invalid("course_id is required")
	}
	d, err := s.duration(in.DurationMinutes)
	if err != nil {
		return SessionResponse{}, err
	}
	id, err := s.ids.New()
	if err != nil {
		return SessionResponse{}, err
	}

	var sess persistence.Session
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx persistence.Tx) error {
		if err := authz.Teacher(ctx, tx, in.TeacherID, in.CourseID); err != nil {
			return err
		}
		now := s.clock.Now()
		exp := now.Add(d)
		sess = persistence.Session{
			SessionID:      id,
			CourseID:       in.CourseID,
			TeacherID:      in.TeacherID,
			StartTime:      now,
			ExpirationTime: &exp,
			Status:         persistence.SessionActive,
			Room:           s.room(in.Room),
			CreatedAt:      now,
		}
		if err := tx.CreateSession(ctx, sess); err != nil {
			return fmt.Errorf("create session: %w", err)
		}
		code, err := s.issueCode(ctx, tx, id, exp, now)
		if err != nil {
			return err
		}
		sess.Code = &code
		return tx.UpdateSession(ctx, sess)
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to create session", "error", err, "error_kind", apperr.Kind(err))
		return SessionResponse{}, err
	}
	logger.InfoContext(ctx, "session opened", "session_id", sess.SessionID, "expires_at", sess.ExpirationTime)
	return toSessionDTO(sess, s.clock.Now()), nil
}

// Schedule はコードを発行せずに予定だけ登録する
func (s *Service) Schedule(ctx context.Context, in ScheduleSessionInput) (SessionResponse, error) {
	logger := s.log(ctx, "Schedule", "teacher_id", in.TeacherID, "course_id", in.CourseID)

	if strings.TrimSpace(in.CourseID) == "" {
		return SessionResponse{}, apperr.Invalid("course_id is required")
	}
	if in.StartTime.IsZero() {
		return SessionResponse{}, apperr.Invalid("start_time is required")
	}
	id, err := s.ids.New()
	if err != nil {
		return SessionResponse{}, err
	}

	var sess persistence.Session
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx persistence.Tx) error {
		if err := authz.Teacher(ctx, tx, in.TeacherID, in.CourseID); err != nil {
			return err
		}
		sess = persistence.Session{
			SessionID: id,
			CourseID:  in.CourseID,
			TeacherID: in.TeacherID,
			StartTime: in.StartTime.UTC(),
			Status:    persistence.SessionScheduled,
			Room:      s.room(in.Room),
			CreatedAt: s.clock.Now(),
		}
		return tx.CreateSession(ctx, sess)
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to schedule session", "error", err, "error_kind", apperr.Kind(err))
		return SessionResponse{}, err
	}
	logger.InfoContext(ctx, "session scheduled", "session_id", sess.SessionID)
	return toSessionDTO(sess, s.clock.Now()), nil
}

// Start は予定済み（または開催中）のセッションに新しいコードと期限を発行する
func (s *Service) Start(ctx context.Context, in StartSessionInput) (SessionResponse, error) {
	logger := s.log(ctx, "Start", "teacher_id", in.TeacherID, "session_id", in.SessionID)

	d, err := s.duration(in.DurationMinutes)
	if err != nil {
		return SessionResponse{}, err
	}

	var sess persistence.Session
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx persistence.Tx) error {
		var err error
		sess, err = tx.LockSession(ctx, in.SessionID)
		if err != nil {
			return notFound(err, "session not found")
		}
		if err := authz.Teacher(ctx, tx, in.TeacherID, sess.CourseID); err != nil {
			return err
		}
		if sess.Status == persistence.SessionCompleted {
			return apperr.Conflict("session already completed")
		}
		if err := tx.ReleaseCode(ctx, sess.SessionID); err != nil {
			return err
		}
		now := s.clock.Now()
		exp := now.Add(d)
		code, err := s.issueCode(ctx, tx, sess.SessionID, exp, now)
		if err != nil {
			return err
		}
		sess.Code = &code
		sess.StartTime = now
		sess.ExpirationTime = &exp
		sess.Status = persistence.SessionActive
		return tx.UpdateSession(ctx, sess)
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to start session", "error", err, "error_kind", apperr.Kind(err))
		return SessionResponse{}, err
	}
	logger.InfoContext(ctx, "session started", "expires_at", sess.ExpirationTime)
	return toSessionDTO(sess, s.clock.Now()), nil
}

// Close は Completed にする。コードは残すので、以後の引き換えは開催中チェックで弾かれる。
// teacherID が空ならシステム操作として担当確認を省く
func (s *Service) Close(ctx context.Context, sessionID, teacherID string) (SessionResponse, error) {
	logger := s.log(ctx, "Close", "teacher_id", teacherID, "session_id", sessionID)

	var sess persistence.Session
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx persistence.Tx) error {
		var err error
		sess, err = tx.LockSession(ctx, sessionID)
		if err != nil {
			return notFound(err, "session not found")
		}
		if teacherID != "" {
			if err := authz.Teacher(ctx, tx, teacherID, sess.CourseID); err != nil {
				return err
			}
		}
		if sess.Status == persistence.SessionCompleted {
			return nil
		}
		sess.Status = persistence.SessionCompleted
		return tx.UpdateSession(ctx, sess)
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to close session", "error", err, "error_kind", apperr.Kind(err))
		return SessionResponse{}, err
	}
	logger.InfoContext(ctx, "session closed")
	return toSessionDTO(sess, s.clock.Now()), nil
}

// Redeem は学生のコード入力。ゲートは順に判定し、最初の失敗で止める
func (s *Service) Redeem(ctx context.Context, rawCode, studentID string) (RedeemResponse, error) {
	logger := s.log(ctx, "Redeem", "student_id", studentID)

	code := NormalizeCode(rawCode)
	if !ValidCode(code) {
		return RedeemResponse{}, apperr.Invalid("code must be 6 alphanumeric characters")
	}

	var out RedeemResponse
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx persistence.Tx) error {
		found, err := tx.FindSessionByCode(ctx, code)
		if err != nil {
			return notFound(err, "invalid attendance code")
		}
		// 終了・再発行と直列化するため行ロックを取り直す
		sess, err := tx.LockSession(ctx, found.SessionID)
		if err != nil {
			return notFound(err, "invalid attendance code")
		}
		if sess.Code == nil || *sess.Code != code {
			return apperr.NotFound("invalid attendance code")
		}
		now := s.clock.Now()

		// 1. 開催中か
		if sess.Status != persistence.SessionActive {
			return apperr.Conflict("session is not open for attendance")
		}
		// 2. 期限内か
		if sess.ExpirationTime == nil || now.After(*sess.ExpirationTime) {
			return apperr.Expired("attendance code has expired")
		}
		if err := tx.LockPair(ctx, studentID, sess.CourseID); err != nil {
			return err
		}
		// 3. 履修しているか
		if err := authz.Enrolled(ctx, tx, studentID, sess.CourseID); err != nil {
			return err
		}
		// 4. 未提出か
		if _, err := tx.GetMark(ctx, sess.SessionID, studentID); err == nil {
			return apperr.Conflict("attendance already submitted for this session")
		} else if !errors.Is(err, persistence.ErrNotFound) {
			return err
		}
		// 5. 除籍されていないか
		if _, err := tx.ActiveMarker(ctx, persistence.MarkerExclusion, studentID, sess.CourseID); err == nil {
			return apperr.Forbidden("you are excluded from this course")
		} else if !errors.Is(err, persistence.ErrNotFound) {
			return err
		}

		recordID, err := s.ids.New()
		if err != nil {
			return err
		}
		submitted := now
		err = tx.InsertMark(ctx, persistence.AttendanceMark{
			RecordID:       recordID,
			SessionID:      sess.SessionID,
			StudentID:      studentID,
			Status:         persistence.MarkPresent,
			SubmissionTime: &submitted,
			LastModified:   now,
		})
		if errors.Is(err, persistence.ErrDuplicate) {
			return apperr.Conflict("attendance already submitted for this session")
		}
		if err != nil {
			return fmt.Errorf("insert mark: %w", err)
		}

		outcome, err := s.registry.Recompute(ctx, tx, studentID, sess.CourseID)
		if err != nil {
			return fmt.Errorf("recompute: %w", err)
		}
		out = RedeemResponse{
			SessionID:        sess.SessionID,
			CourseID:         sess.CourseID,
			Status:           persistence.MarkPresent,
			SubmissionTime:   submitted,
			ComplianceStatus: outcome.Status,
			Counts:           compliance.CountsDTO(outcome.Counts),
		}
		return nil
	})
	if err != nil {
		logger.InfoContext(ctx, "redeem rejected", "error", err, "error_kind", apperr.Kind(err))
		return RedeemResponse{}, err
	}
	logger.InfoContext(ctx, "attendance submitted", "session_id", out.SessionID, "compliance_status", out.ComplianceStatus)
	return out, nil
}

// ListActive は教員の開催中・予定済みセッション
func (s *Service) ListActive(ctx context.Context, teacherID string) ([]SessionResponse, error) {
	var rows []persistence.Session
	err := s.store.ReadOnly(ctx, func(ctx context.Context, tx persistence.Tx) error {
		var err error
		rows, err = tx.ListSessionsByTeacher(ctx, teacherID, persistence.SessionActive, persistence.SessionScheduled)
		return err
	})
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	out := make([]SessionResponse, 0, len(rows))
	for i := 0; i < len(rows); i++ {
		out = append(out, toSessionDTO(rows[i], now))
	}
	return out, nil
}

// Roster は履修者全員とその記録。未記録は Absent として返す
func (s *Service) Roster(ctx context.Context, teacherID, sessionID string) (RosterResponse, error) {
	var out RosterResponse
	err := s.store.ReadOnly(ctx, func(ctx context.Context, tx persistence.Tx) error {
		sess, students, marks, err := s.sessionData(ctx, tx, teacherID, sessionID)
		if err != nil {
			return err
		}
		out.Session = toSessionDTO(sess, s.clock.Now())
		out.Students = make([]RosterEntry, 0, len(students))

		byStudent := make(map[string]persistence.AttendanceMark, len(marks))
		for _, m := range marks {
			byStudent[m.StudentID] = m
		}
		seen := make(map[string]bool, len(students))
		for _, st := range students {
			seen[st.StudentID] = true
			entry := RosterEntry{StudentID: st.StudentID, FullName: st.FullName, Status: "Absent", Enrolled: true}
			if m, ok := byStudent[st.StudentID]; ok {
				entry.Status = string(m.Status)
				entry.MarkedBy = m.MarkedBy
			} else {
				out.Summary.NotRecorded++
			}
			out.Students = append(out.Students, entry)
		}
		// 除籍などで履修から外れた学生の記録も残す
		for _, m := range marks {
			if !seen[m.StudentID] {
				out.Students = append(out.Students, RosterEntry{StudentID: m.StudentID, Status: string(m.Status), MarkedBy: m.MarkedBy})
			}
		}
		for _, m := range marks {
			switch m.Status {
			case persistence.MarkPresent:
				out.Summary.Present++
			case persistence.MarkJustified:
				out.Summary.Justified++
			case persistence.MarkUnjustified:
				out.Summary.Unjustified++
			}
		}
		return nil
	})
	return out, err
}

// NonSubmitters は履修者のうち記録がない学生
func (s *Service) NonSubmitters(ctx context.Context, teacherID, sessionID string) ([]StudentResponse, error) {
	out := []StudentResponse{}
	err := s.store.ReadOnly(ctx, func(ctx context.Context, tx persistence.Tx) error {
		_, students, marks, err := s.sessionData(ctx, tx, teacherID, sessionID)
		if err != nil {
			return err
		}
		recorded := make(map[string]bool, len(marks))
		for _, m := range marks {
			recorded[m.StudentID] = true
		}
		for _, st := range students {
			if !recorded[st.StudentID] {
				out = append(out, StudentResponse{StudentID: st.StudentID, FullName: st.FullName})
			}
		}
		return nil
	})
	return out, err
}

func (s *Service) sessionData(ctx context.Context, tx persistence.Tx, teacherID, sessionID string) (persistence.Session, []persistence.Student, []persistence.AttendanceMark, error) {
	sess, err := tx.GetSession(ctx, sessionID)
	if err != nil {
		return persistence.Session{}, nil, nil, notFound(err, "session not found")
	}
	if err := authz.Teacher(ctx, tx, teacherID, sess.CourseID); err != nil {
		return persistence.Session{}, nil, nil, err
	}
	students, err := tx.ListEnrolled(ctx, sess.CourseID)
	if err != nil {
		return persistence.Session{}, nil, nil, err
	}
	marks, err := tx.ListMarksBySession(ctx, sess.SessionID)
	if err != nil {
		return persistence.Session{}, nil, nil, err
	}
	return sess, students, marks, nil
}

// Sweep は期限切れのまま Active になっているセッションを Completed にする。
// 引き換え可否は常に時刻で判定するので、これは表示上の整理
func (s *Service) Sweep(ctx context.Context) (SweepResult, error) {
	logger := s.log(ctx, "Sweep")
	out := SweepResult{Closed: []string{}}
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx persistence.Tx) error {
		expired, err := tx.ListExpiredActive(ctx, s.clock.Now())
		if err != nil {
			return err
		}
		for _, sess := range expired {
			sess.Status = persistence.SessionCompleted
			if err := tx.UpdateSession(ctx, sess); err != nil {
				return err
			}
			out.Closed = append(out.Closed, sess.SessionID)
		}
		return nil
	})
	if err != nil {
		logger.ErrorContext(ctx, "sweep failed", "error", err, "error_kind", apperr.Kind(err))
		return SweepResult{}, err
	}
	logger.InfoContext(ctx, "expired sessions closed", "count", len(out.Closed))
	return out, nil
}
