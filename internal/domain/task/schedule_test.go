package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/study-planner/planner-core/internal/domain/shared"
)

func TestParseIntervalTable(t *testing.T) {
	table, err := ParseIntervalTable("study:1,7,30; review:2,5,14 ;default:4")
	require.NoError(t, err)

	assert.Equal(t, 1, table.IntervalDays(TypeStudy, 1))
	assert.Equal(t, 7, table.IntervalDays(TypeStudy, 2))
	assert.Equal(t, 30, table.IntervalDays(TypeStudy, 3))
	assert.Equal(t, 30, table.IntervalDays(TypeStudy, 10), "cycles past the list reuse the last interval")
	assert.Equal(t, 2, table.IntervalDays(TypeReview, 1))
	assert.Equal(t, 4, table.IntervalDays(TypeExercise, 3), "unlisted types use the default list")

	assert.Equal(t, "review:2,5,14;study:1,7,30;default:4", table.String())
}

func TestParseIntervalTableErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"unknown type", "reading:1,2"},
		{"missing colon", "study"},
		{"not a number", "study:1,x"},
		{"zero interval", "study:0,3"},
		{"empty list", "study:"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseIntervalTable(tt.input)
			require.Error(t, err)
			assert.True(t, shared.IsValidation(err))
		})
	}
}

func TestDefaultIntervalTable(t *testing.T) {
	table, err := ParseIntervalTable("")
	require.NoError(t, err)

	for i, days := range DefaultIntervals {
		assert.Equal(t, days, table.IntervalDays(TypeLawStudy, i+1))
	}
}

func TestNextPlannedDate(t *testing.T) {
	table, err := ParseIntervalTable("study:3")
	require.NoError(t, err)

	next := NextPlannedDate(table, shared.MustParseCalendarDate("2024-01-30"), TypeStudy, 1)
	assert.Equal(t, "2024-02-02", next.String())
}
