// Package authz は担当・履修に基づく権限判定
package authz

import (
	"context"
	"fmt"

	"ROLLCALL-backend/internal/persistence"
	"ROLLCALL-backend/internal/platform/apperr"
)

// Teacher: teacherID が courseID を担当していなければ FORBIDDEN
func Teacher(ctx context.Context, dir persistence.Directory, teacherID, courseID string) error {
	if teacherID == "" {
		return apperr.Forbidden("teacher identity required")
	}
	ok, err := dir.TeachesCourse(ctx, teacherID, courseID)
	if err != nil {
		return fmt.Errorf("teaches course: %w", err)
	}
	if !ok {
		return apperr.Forbidden("you are not assigned to this course")
	}
	return nil
}

// Enrolled: 履修していなければ FORBIDDEN
func Enrolled(ctx context.Context, dir persistence.Directory, studentID, courseID string) error {
	ok, err := dir.IsEnrolled(ctx, studentID, courseID)
	if err != nil {
		return fmt.Errorf("is enrolled: %w", err)
	}
	if !ok {
		return apperr.Forbidden("you are not enrolled in this course")
	}
	return nil
}
