package compliance

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ROLLCALL-backend/internal/persistence"
	"ROLLCALL-backend/internal/platform/apperr"
	"ROLLCALL-backend/internal/platform/logging"
	"ROLLCALL-backend/internal/testfixtures"
)

func TestStatusReportsCountsAndMarkers(t *testing.T) {
	e := newRegistryEnv()
	svc := NewService(e.store, e.registry, logging.Discard())
	ctx := context.Background()

	res, err := svc.Status(ctx, testfixtures.Student, testfixtures.Course)
	require.NoError(t, err)
	assert.Equal(t, StatusNormal, res.Status)
	assert.Nil(t, res.Warning)

	e.mark(t, testfixtures.Student, persistence.MarkUnjustified)
	e.mark(t, testfixtures.Student, persistence.MarkJustified)
	e.mark(t, testfixtures.Student, persistence.MarkPresent)
	e.mark(t, testfixtures.Student, persistence.MarkJustified)

	res, err = svc.Status(ctx, testfixtures.Student, testfixtures.Course)
	require.NoError(t, err)
	assert.Equal(t, StatusWarning, res.Status)
	assert.Equal(t, CountsResponse{Present: 1, Justified: 2, Unjustified: 1, Absences: 3}, res.Counts)
	require.NotNil(t, res.Warning)
	assert.Equal(t, "warning", res.Warning.Kind)
	assert.Nil(t, res.Exclusion)
}

func TestTeacherViewsRequireAssignment(t *testing.T) {
	e := newRegistryEnv()
	svc := NewService(e.store, e.registry, logging.Discard())
	ctx := context.Background()

	_, err := svc.StatusForTeacher(ctx, testfixtures.Outsider, testfixtures.Student, testfixtures.Course)
	assert.True(t, apperr.Is(err, apperr.CodeForbidden))

	_, err = svc.CourseMarkers(ctx, testfixtures.Outsider, testfixtures.Course)
	assert.True(t, apperr.Is(err, apperr.CodeForbidden))

	_, err = svc.Recheck(ctx, testfixtures.Outsider, testfixtures.Student, testfixtures.Course)
	assert.True(t, apperr.Is(err, apperr.CodeForbidden))
}

func TestCourseMarkersSplitsByKind(t *testing.T) {
	e := newRegistryEnv()
	svc := NewService(e.store, e.registry, logging.Discard())

	for i := 0; i < 2; i++ {
		e.mark(t, testfixtures.Student, persistence.MarkUnjustified)
	}
	for i := 0; i < 3; i++ {
		e.mark(t, testfixtures.Student2, persistence.MarkUnjustified)
	}

	res, err := svc.CourseMarkers(context.Background(), testfixtures.Teacher, testfixtures.Course)
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	require.Len(t, res.Exclusions, 1)
	assert.Equal(t, testfixtures.Student, res.Warnings[0].StudentID)
	assert.Equal(t, testfixtures.Student2, res.Exclusions[0].StudentID)
}

func TestRecheckRepairsMissingMarker(t *testing.T) {
	e := newRegistryEnv()
	svc := NewService(e.store, e.registry, logging.Discard())
	e.mark(t, testfixtures.Student, persistence.MarkUnjustified)
	e.mark(t, testfixtures.Student, persistence.MarkUnjustified)

	// マーカーだけ外れた状態を作る
	require.NoError(t, e.store.WithinTx(context.Background(), func(ctx context.Context, tx persistence.Tx) error {
		_, err := tx.DeactivateMarker(ctx, persistence.MarkerWarning, testfixtures.Student, testfixtures.Course, e.clock.Now())
		return err
	}))

	res, err := svc.Recheck(context.Background(), testfixtures.Teacher, testfixtures.Student, testfixtures.Course)
	require.NoError(t, err)
	assert.Equal(t, StatusWarning, res.Status)
	assert.NotNil(t, res.Warning)
}
