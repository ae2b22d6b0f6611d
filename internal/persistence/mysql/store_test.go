package mysql

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ROLLCALL-backend/internal/persistence"
)

func TestMapErr(t *testing.T) {
	dup := &mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'sess-1-S1' for key 'uq_attendance_session_student'"}
	fk := &mysql.MySQLError{Number: 1452, Message: "Cannot add or update a child row"}
	other := errors.New("driver: bad connection")

	assert.NoError(t, mapErr(nil))
	assert.ErrorIs(t, mapErr(sql.ErrNoRows), persistence.ErrNotFound)
	assert.ErrorIs(t, mapErr(fmt.Errorf("exec: %w", dup)), persistence.ErrDuplicate)
	assert.ErrorIs(t, mapErr(fk), persistence.ErrForeignKey)
	assert.Same(t, other, mapErr(other))

	// 元のドライバエラーも辿れる
	var me *mysql.MySQLError
	require.True(t, errors.As(mapErr(dup), &me))
	assert.Equal(t, uint16(1062), me.Number)
}

func TestTableForRejectsUnknownKinds(t *testing.T) {
	w, err := tableFor(persistence.MarkerWarning)
	require.NoError(t, err)
	assert.Equal(t, "warnings", w.name)

	e, err := tableFor(persistence.MarkerExclusion)
	require.NoError(t, err)
	assert.Equal(t, "exclusion_id", e.id)

	_, err = tableFor("probation")
	assert.Error(t, err)
}

func TestNullHelpers(t *testing.T) {
	assert.False(t, nullString(nil).Valid)
	s := "T1"
	assert.Equal(t, sql.NullString{String: "T1", Valid: true}, nullString(&s))
	assert.Nil(t, stringPtr(sql.NullString{}))
	assert.Equal(t, "x", *stringPtr(sql.NullString{String: "x", Valid: true}))
	assert.False(t, nullTime(nil).Valid)
}
