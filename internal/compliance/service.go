package compliance

import (
	"context"
	"errors"
	"log/slog"

	"ROLLCALL-backend/internal/authz"
	"ROLLCALL-backend/internal/persistence"
	"ROLLCALL-backend/internal/platform/apperr"
	"ROLLCALL-backend/internal/platform/logging"
)

type Service struct {
	store    persistence.Store
	registry *Registry
	logger   *slog.Logger
}

func NewService(store persistence.Store, registry *Registry, logger *slog.Logger) *Service {
	return &Service{store: store, registry: registry, logger: logger}
}

// Status は学生本人の現在の状態（件数から評価し、有効なマーカーを添える）
func (s *Service) Status(ctx context.Context, studentID, courseID string) (StatusResponse, error) {
	var out StatusResponse
	err := s.store.ReadOnly(ctx, func(ctx context.Context, tx persistence.Tx) error {
		var err error
		out, err = s.report(ctx, tx, studentID, courseID)
		return err
	})
	return out, err
}

// StatusForTeacher は担当教員から見た学生の状態
func (s *Service) StatusForTeacher(ctx context.Context, teacherID, studentID, courseID string) (StatusResponse, error) {
	var out StatusResponse
	err := s.store.ReadOnly(ctx, func(ctx context.Context, tx persistence.Tx) error {
		if err := authz.Teacher(ctx, tx, teacherID, courseID); err != nil {
			return err
		}
		var err error
		out, err = s.report(ctx, tx, studentID, courseID)
		return err
	})
	return out, err
}

func (s *Service) CourseMarkers(ctx context.Context, teacherID, courseID string) (CourseMarkersResponse, error) {
	out := CourseMarkersResponse{CourseID: courseID}
	err := s.store.ReadOnly(ctx, func(ctx context.Context, tx persistence.Tx) error {
		if err := authz.Teacher(ctx, tx, teacherID, courseID); err != nil {
			return err
		}
		ms, err := tx.ListActiveMarkers(ctx, persistence.MarkerFilter{CourseID: courseID})
		if err != nil {
			return err
		}
		out.Warnings, out.Exclusions = SplitMarkers(ms)
		return nil
	})
	return out, err
}

// Recheck は担当教員による手動の再計算
func (s *Service) Recheck(ctx context.Context, teacherID, studentID, courseID string) (StatusResponse, error) {
	logger := logging.Service(ctx, s.logger, "ComplianceService", "Recheck",
		"teacher_id", teacherID, "student_id", studentID, "course_id", courseID)

	var (
		out     StatusResponse
		outcome Outcome
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx persistence.Tx) error {
		if err := authz.Teacher(ctx, tx, teacherID, courseID); err != nil {
			return err
		}
		var err error
		if outcome, err = s.registry.Recompute(ctx, tx, studentID, courseID); err != nil {
			return err
		}
		out, err = s.report(ctx, tx, studentID, courseID)
		return err
	})
	if err != nil {
		logger.ErrorContext(ctx, "recheck failed", "error", err, "error_kind", apperr.Kind(err))
		return StatusResponse{}, err
	}
	logger.InfoContext(ctx, "compliance rechecked", "status", outcome.Status, "changed", outcome.Changed)
	return out, nil
}

func (s *Service) report(ctx context.Context, tx persistence.Tx, studentID, courseID string) (StatusResponse, error) {
	counts, err := tx.CountMarks(ctx, studentID, courseID)
	if err != nil {
		return StatusResponse{}, err
	}
	out := StatusResponse{
		StudentID: studentID,
		CourseID:  courseID,
		Status:    Evaluate(counts, s.registry.Policy()),
		Counts:    CountsDTO(counts),
	}
	for _, kind := range []persistence.MarkerKind{persistence.MarkerWarning, persistence.MarkerExclusion} {
		m, err := tx.ActiveMarker(ctx, kind, studentID, courseID)
		if errors.Is(err, persistence.ErrNotFound) {
			continue
		}
		if err != nil {
			return StatusResponse{}, err
		}
		dto := MarkerDTO(m)
		if kind == persistence.MarkerWarning {
			out.Warning = &dto
		} else {
			out.Exclusion = &dto
		}
	}
	return out, nil
}
