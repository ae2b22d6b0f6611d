package attendance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"ROLLCALL-backend/internal/authz"
	"ROLLCALL-backend/internal/compliance"
	"ROLLCALL-backend/internal/persistence"
	"ROLLCALL-backend/internal/platform/apperr"
	"ROLLCALL-backend/internal/platform/clock"
	"ROLLCALL-backend/internal/platform/ids"
	"ROLLCALL-backend/internal/platform/logging"
)

// ===== Service =====

type Service struct {
	store    persistence.Store
	registry *compliance.Registry
	clock    clock.Clock
	ids      ids.Generator
	logger   *slog.Logger
}

type Option func(*Service)

func WithClock(c clock.Clock) Option { return func(s *Service) { s.clock = c } }

func WithIDGenerator(g ids.Generator) Option { return func(s *Service) { s.ids = g } }

func NewService(store persistence.Store, registry *compliance.Registry, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{store: store, registry: registry, clock: clock.Real(), ids: ids.ULID(), logger: logger}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) log(ctx context.Context, op string, attrs ...any) *slog.Logger {
	return logging.Service(ctx, s.logger, "AttendanceService", op, attrs...)
}

func (s *Service) session(ctx context.Context, tx persistence.Tx, teacherID, sessionID string) (persistence.Session, error) {
	sess, err := tx.GetSession(ctx, sessionID)
	if errors.Is(err, persistence.ErrNotFound) {
		return persistence.Session{}, apperr.NotFound("session not found")
	}
	if err != nil {
		return persistence.Session{}, err
	}
	if err := authz.Teacher(ctx, tx, teacherID, sess.CourseID); err != nil {
		return persistence.Session{}, err
	}
	return sess, nil
}

// POST /sessions/:session_id/absences
// 出席済みの記録は上書きしない。除籍済み・未履修の学生は登録できない
func (s *Service) MarkAbsence(ctx context.Context, in MarkAbsenceInput) (MarkResponse, error) {
	logger := s.log(ctx, "MarkAbsence", "teacher_id", in.TeacherID, "session_id", in.SessionID, "student_id", in.StudentID)

	kind, ok := ParseAbsenceKind(in.Kind)
	if !ok {
		return MarkResponse{}, apperr.Invalid("kind must be Justified or Unjustified")
	}

	var out MarkResponse
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx persistence.Tx) error {
		sess, err := s.session(ctx, tx, in.TeacherID, in.SessionID)
		if err != nil {
			return err
		}
		if err := tx.LockPair(ctx, in.StudentID, sess.CourseID); err != nil {
			return err
		}

		existing, err := tx.GetMark(ctx, sess.SessionID, in.StudentID)
		switch {
		case err == nil:
			if existing.Status == persistence.MarkPresent {
				return apperr.Conflict("student already marked present for this session")
			}
		case errors.Is(err, persistence.ErrNotFound):
			existing = persistence.AttendanceMark{}
		default:
			return err
		}

		if _, err := tx.ActiveMarker(ctx, persistence.MarkerExclusion, in.StudentID, sess.CourseID); err == nil {
			return apperr.Forbidden("student is excluded from this course")
		} else if !errors.Is(err, persistence.ErrNotFound) {
			return err
		}
		enrolled, err := tx.IsEnrolled(ctx, in.StudentID, sess.CourseID)
		if err != nil {
			return err
		}
		if !enrolled {
			return apperr.NotFound("student is not enrolled in this course")
		}

		recordID := existing.RecordID
		if recordID == "" {
			if recordID, err = s.ids.New(); err != nil {
				return err
			}
		}
		by := in.TeacherID
		if err := tx.UpsertMark(ctx, persistence.AttendanceMark{
			RecordID:     recordID,
			SessionID:    sess.SessionID,
			StudentID:    in.StudentID,
			Status:       kind,
			MarkedBy:     &by,
			LastModified: s.clock.Now(),
		}); err != nil {
			return fmt.Errorf("upsert mark: %w", err)
		}

		outcome, err := s.registry.Recompute(ctx, tx, in.StudentID, sess.CourseID)
		if err != nil {
			return fmt.Errorf("recompute: %w", err)
		}
		out = MarkResponse{
			SessionID:        sess.SessionID,
			CourseID:         sess.CourseID,
			StudentID:        in.StudentID,
			Status:           kind,
			MarkedBy:         by,
			ComplianceStatus: outcome.Status,
			Counts:           compliance.CountsDTO(outcome.Counts),
		}
		return nil
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to mark absence", "error", err, "error_kind", apperr.Kind(err))
		return MarkResponse{}, err
	}
	logger.InfoContext(ctx, "absence recorded", "kind", kind, "compliance_status", out.ComplianceStatus)
	return out, nil
}

// PUT /sessions/:session_id/attendance/:student_id
// 既存記録の付け替え。件数が減る方向の変更で警告・除籍が外れる
func (s *Service) UpdateAttendance(ctx context.Context, in UpdateAttendanceInput) (UpdateResponse, error) {
	logger := s.log(ctx, "UpdateAttendance", "teacher_id", in.TeacherID, "session_id", in.SessionID, "student_id", in.StudentID)

	status, ok := ParseStatus(in.Status)
	if !ok {
		return UpdateResponse{}, apperr.Invalid("status must be one of Present, Absent, Justified, Unjustified")
	}

	var out UpdateResponse
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx persistence.Tx) error {
		sess, err := s.session(ctx, tx, in.TeacherID, in.SessionID)
		if err != nil {
			return err
		}
		if err := tx.LockPair(ctx, in.StudentID, sess.CourseID); err != nil {
			return err
		}
		existing, err := tx.GetMark(ctx, sess.SessionID, in.StudentID)
		if errors.Is(err, persistence.ErrNotFound) {
			return apperr.NotFound("attendance record not found")
		}
		if err != nil {
			return err
		}
		if err := tx.UpdateMarkStatus(ctx, sess.SessionID, in.StudentID, status, in.TeacherID, s.clock.Now()); err != nil {
			return fmt.Errorf("update mark: %w", err)
		}
		outcome, err := s.registry.Recompute(ctx, tx, in.StudentID, sess.CourseID)
		if err != nil {
			return fmt.Errorf("recompute: %w", err)
		}
		out = UpdateResponse{
			SessionID:        sess.SessionID,
			CourseID:         sess.CourseID,
			StudentID:        in.StudentID,
			OldStatus:        existing.Status,
			NewStatus:        status,
			ComplianceStatus: outcome.Status,
			Counts:           compliance.CountsDTO(outcome.Counts),
		}
		return nil
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to update attendance", "error", err, "error_kind", apperr.Kind(err))
		return UpdateResponse{}, err
	}
	logger.InfoContext(ctx, "attendance updated",
		"old_status", out.OldStatus, "new_status", out.NewStatus, "compliance_status", out.ComplianceStatus)
	return out, nil
}

// GET /me/history?course_id=
// courseID が空なら全科目
func (s *Service) History(ctx context.Context, studentID, courseID string) (HistoryResponse, error) {
	out := HistoryResponse{StudentID: studentID, CourseID: courseID, Records: []HistoryEntryResponse{}}
	err := s.store.ReadOnly(ctx, func(ctx context.Context, tx persistence.Tx) error {
		rows, err := tx.ListHistory(ctx, studentID, courseID)
		if err != nil {
			return err
		}
		var counts persistence.MarkCounts
		for _, h := range rows {
			counts.Add(h.Mark.Status)
			out.Records = append(out.Records, toHistoryDTO(h))
		}
		out.Counts = compliance.CountsDTO(counts)

		ms, err := tx.ListActiveMarkers(ctx, persistence.MarkerFilter{StudentID: studentID, CourseID: courseID})
		if err != nil {
			return err
		}
		out.Warnings, out.Exclusions = compliance.SplitMarkers(ms)
		return nil
	})
	if err != nil {
		return HistoryResponse{}, err
	}
	return out, nil
}
