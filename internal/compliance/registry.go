package compliance

import (
	"context"
	"errors"
	"fmt"

	"ROLLCALL-backend/internal/persistence"
	"ROLLCALL-backend/internal/platform/clock"
	"ROLLCALL-backend/internal/platform/ids"
)

// Outcome は再計算の結果
type Outcome struct {
	Status  Status
	Counts  persistence.MarkCounts
	Changed bool // マーカーか履修に変更があったか
}

// Registry は評価結果に合わせて警告・除籍マーカーを付け外しする
type Registry struct {
	policy Policy
	clock  clock.Clock
	ids    ids.Generator
}

func NewRegistry(p Policy, c clock.Clock, g ids.Generator) *Registry {
	if c == nil {
		c = clock.Real()
	}
	if g == nil {
		g = ids.ULID()
	}
	return &Registry{policy: p, clock: c, ids: g}
}

func (r *Registry) Policy() Policy { return r.policy }

// Recompute は出席簿を変更した同じ Tx の中で呼ぶ。
// (student, course) のロックを取ってから件数を読み、評価してマーカーに反映する
func (r *Registry) Recompute(ctx context.Context, tx persistence.Tx, studentID, courseID string) (Outcome, error) {
	if err := tx.LockPair(ctx, studentID, courseID); err != nil {
		return Outcome{}, err
	}
	counts, err := tx.CountMarks(ctx, studentID, courseID)
	if err != nil {
		return Outcome{}, err
	}
	status := Evaluate(counts, r.policy)
	changed, err := r.Apply(ctx, tx, studentID, courseID, status, counts)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Status: status, Counts: counts, Changed: changed}, nil
}

// Apply は status に対応するマーカー状態へ冪等に寄せる
func (r *Registry) Apply(ctx context.Context, tx persistence.Tx, studentID, courseID string, status Status, counts persistence.MarkCounts) (bool, error) {
	now := r.clock.Now()
	switch status {
	case StatusExcluded:
		activated, err := r.activate(ctx, tx, persistence.MarkerExclusion, studentID, courseID, status, counts)
		if err != nil {
			return false, err
		}
		// 除籍は警告を置き換える
		dropped, err := tx.DeactivateMarker(ctx, persistence.MarkerWarning, studentID, courseID, now)
		if err != nil {
			return false, err
		}
		enrolled, err := tx.IsEnrolled(ctx, studentID, courseID)
		if err != nil {
			return false, err
		}
		if enrolled {
			if err := tx.RemoveEnrollment(ctx, studentID, courseID); err != nil {
				return false, fmt.Errorf("remove enrollment: %w", err)
			}
		}
		return activated || dropped || enrolled, nil

	case StatusWarning:
		lifted, err := r.lift(ctx, tx, studentID, courseID)
		if err != nil {
			return false, err
		}
		activated, err := r.activate(ctx, tx, persistence.MarkerWarning, studentID, courseID, status, counts)
		if err != nil {
			return false, err
		}
		return lifted || activated, nil

	case StatusNormal:
		lifted, err := r.lift(ctx, tx, studentID, courseID)
		if err != nil {
			return false, err
		}
		dropped, err := tx.DeactivateMarker(ctx, persistence.MarkerWarning, studentID, courseID, now)
		if err != nil {
			return false, err
		}
		return lifted || dropped, nil
	}
	return false, fmt.Errorf("unknown compliance status %q", status)
}

func (r *Registry) activate(ctx context.Context, tx persistence.Tx, kind persistence.MarkerKind, studentID, courseID string, status Status, counts persistence.MarkCounts) (bool, error) {
	_, err := tx.ActiveMarker(ctx, kind, studentID, courseID)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, persistence.ErrNotFound) {
		return false, err
	}

	id, err := r.ids.New()
	if err != nil {
		return false, fmt.Errorf("marker id: %w", err)
	}
	err = tx.InsertMarker(ctx, persistence.Marker{
		MarkerID:    id,
		Kind:        kind,
		StudentID:   studentID,
		CourseID:    courseID,
		ReasonCount: counts.Absences(),
		Message:     Reason(status, counts),
		IsActive:    true,
		IssuedAt:    r.clock.Now(),
	})
	if errors.Is(err, persistence.ErrDuplicate) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// lift は有効な除籍を取り消し、除籍時に外した履修を戻す
func (r *Registry) lift(ctx context.Context, tx persistence.Tx, studentID, courseID string) (bool, error) {
	lifted, err := tx.DeactivateMarker(ctx, persistence.MarkerExclusion, studentID, courseID, r.clock.Now())
	if err != nil || !lifted {
		return false, err
	}
	if err := tx.RestoreEnrollment(ctx, studentID, courseID); err != nil {
		return false, fmt.Errorf("restore enrollment: %w", err)
	}
	return true, nil
}
