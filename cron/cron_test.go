package cron

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// utc builds an instant on 2025-06-02 (a Monday) unless overridden.
func utc(year int, month time.Month, day, hour, minute int) time.Time {
	return time.Date(year, month, day, hour, minute, 0, 0, time.UTC)
}

func TestMatches_Wildcard(t *testing.T) {
	instants := []time.Time{
		utc(2025, time.January, 1, 0, 0),
		utc(2025, time.June, 2, 9, 30),
		utc(2025, time.December, 31, 23, 59),
	}
	for _, instant := range instants {
		assert.True(t, Matches("* * * * *", instant), "wildcard should match %v", instant)
	}
}

func TestMatches_FieldCount(t *testing.T) {
	instant := utc(2025, time.June, 2, 9, 30)

	tests := []struct {
		name string
		expr string
	}{
		{"empty", ""},
		{"one_field", "*"},
		{"four_fields", "* * * *"},
		{"six_fields", "* * * * * *"},
		{"whitespace_only", "   "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, Matches(tt.expr, instant))
		})
	}
}

func TestMatches_MinuteHour(t *testing.T) {
	tests := []struct {
		name     string
		expr     string
		instant  time.Time
		expected bool
	}{
		{"exact_time_match", "30 9 * * *", utc(2025, time.June, 2, 9, 30), true},
		{"exact_time_minute_off", "30 9 * * *", utc(2025, time.June, 2, 9, 31), false},
		{"exact_time_hour_off", "30 9 * * *", utc(2025, time.June, 2, 10, 30), false},
		{"range_inside", "0-30 * * * *", utc(2025, time.June, 2, 12, 15), true},
		{"range_boundary_low", "0-30 * * * *", utc(2025, time.June, 2, 12, 0), true},
		{"range_boundary_high", "0-30 * * * *", utc(2025, time.June, 2, 12, 30), true},
		{"range_outside", "0-30 * * * *", utc(2025, time.June, 2, 12, 31), false},
		{"step_zero", "*/15 * * * *", utc(2025, time.June, 2, 3, 0), true},
		{"step_fifteen", "*/15 * * * *", utc(2025, time.June, 2, 3, 15), true},
		{"step_thirty", "*/15 * * * *", utc(2025, time.June, 2, 3, 30), true},
		{"step_fortyfive", "*/15 * * * *", utc(2025, time.June, 2, 3, 45), true},
		{"step_off", "*/15 * * * *", utc(2025, time.June, 2, 3, 7), false},
		{"range_step_match", "10-50/10 * * * *", utc(2025, time.June, 2, 3, 30), true},
		{"range_step_offset", "10-50/10 * * * *", utc(2025, time.June, 2, 3, 35), false},
		{"range_step_below", "10-50/10 * * * *", utc(2025, time.June, 2, 3, 0), false},
		{"list", "5,10,15 * * * *", utc(2025, time.June, 2, 3, 10), true},
		{"list_miss", "5,10,15 * * * *", utc(2025, time.June, 2, 3, 11), false},
		{"list_of_ranges", "0-5,55-59 * * * *", utc(2025, time.June, 2, 3, 57), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Matches(tt.expr, tt.instant))
		})
	}
}

func TestMatches_Weekday(t *testing.T) {
	monday := utc(2025, time.June, 2, 9, 0)
	friday := utc(2025, time.June, 6, 9, 0)
	sunday := utc(2025, time.June, 1, 9, 0)

	assert.True(t, Matches("0 9 * * 1", monday))
	assert.False(t, Matches("0 9 * * 1", friday))

	// Both 0 and 7 denote Sunday.
	assert.True(t, Matches("0 9 * * 0", sunday))
	assert.True(t, Matches("0 9 * * 7", sunday))
	assert.False(t, Matches("0 9 * * 7", monday))
}

func TestMatches_DayAndMonth(t *testing.T) {
	tests := []struct {
		name     string
		expr     string
		instant  time.Time
		expected bool
	}{
		{"dom_match", "0 0 15 * *", utc(2025, time.March, 15, 0, 0), true},
		{"dom_miss", "0 0 15 * *", utc(2025, time.March, 14, 0, 0), false},
		{"month_match", "0 0 * 6 *", utc(2025, time.June, 10, 0, 0), true},
		{"month_miss", "0 0 * 6 *", utc(2025, time.July, 10, 0, 0), false},
		{"fields_are_conjunction", "30 9 2 6 1", utc(2025, time.June, 2, 9, 30), true},
		{"conjunction_one_field_off", "30 9 2 6 2", utc(2025, time.June, 2, 9, 30), false},
		// Stepped wildcards count from zero even in the 1-based fields.
		{"dom_step_ten", "* * */10 * *", utc(2025, time.March, 10, 0, 0), true},
		{"dom_step_twenty", "* * */10 * *", utc(2025, time.March, 20, 0, 0), true},
		{"dom_step_thirty", "* * */10 * *", utc(2025, time.March, 30, 0, 0), true},
		{"dom_step_first", "* * */10 * *", utc(2025, time.March, 1, 0, 0), false},
		{"dom_step_off", "* * */10 * *", utc(2025, time.March, 11, 0, 0), false},
		{"month_step_divisible", "0 0 1 */3 *", utc(2025, time.June, 1, 0, 0), true},
		{"month_step_off", "0 0 1 */3 *", utc(2025, time.May, 1, 0, 0), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Matches(tt.expr, tt.instant))
		})
	}
}

func TestMatches_Malformed(t *testing.T) {
	instant := utc(2025, time.June, 2, 9, 30)

	tests := []struct {
		name string
		expr string
	}{
		{"letters", "a * * * *"},
		{"named_weekday", "0 9 * * MON"},
		{"minute_out_of_range", "60 * * * *"},
		{"hour_out_of_range", "* 24 * * *"},
		{"month_zero", "* * * 0 *"},
		{"weekday_eight", "* * * * 8"},
		{"inverted_range", "30-10 * * * *"},
		{"zero_step", "*/0 * * * *"},
		{"negative_step", "*/-5 * * * *"},
		{"step_on_bare_integer", "5/2 * * * *"},
		{"dangling_comma", "5, * * * *"},
		{"dangling_slash", "*/ * * * *"},
		{"bare_dash", "- * * * *"},
		{"question_mark", "* * ? * *"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, Matches(tt.expr, instant), "malformed expression must fail closed")
		})
	}
}

func TestValid(t *testing.T) {
	assert.True(t, Valid("* * * * *"))
	assert.True(t, Valid("*/15 9-17 * * 1-5"))
	assert.True(t, Valid("0 9 * * 7"))
	assert.False(t, Valid("* * * *"))
	assert.False(t, Valid("61 * * * *"))
	assert.False(t, Valid("5/2 * * * *"))
	assert.False(t, Valid("not a cron"))
}
