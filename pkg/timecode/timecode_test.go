package timecode

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromTime(t *testing.T) {
	tests := []struct {
		name string
		at   time.Time
		fps  int
		want string
	}{
		{"midnight", time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), 30, "00:00:00:00"},
		{"last frame of the day", time.Date(2024, 5, 1, 23, 59, 59, 999*int(time.Millisecond), time.UTC), 30, "23:59:59:29"},
		{"33ms is frame 0", time.Date(2024, 5, 1, 12, 0, 0, 33*int(time.Millisecond), time.UTC), 30, "12:00:00:00"},
		{"34ms is frame 1", time.Date(2024, 5, 1, 12, 0, 0, 34*int(time.Millisecond), time.UTC), 30, "12:00:00:01"},
		{"half second", time.Date(2024, 5, 1, 9, 5, 7, 500*int(time.Millisecond), time.UTC), 30, "09:05:07:15"},
		{"25 fps", time.Date(2024, 5, 1, 9, 5, 7, 999*int(time.Millisecond), time.UTC), 25, "09:05:07:24"},
		{"zero fps falls back", time.Date(2024, 5, 1, 9, 5, 7, 500*int(time.Millisecond), time.UTC), 0, "09:05:07:15"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FromTime(tt.at, tt.fps).String())
		})
	}
}

func TestFromTimeFrameFormula(t *testing.T) {
	base := time.Date(2024, 5, 1, 14, 30, 10, 0, time.UTC)
	for ms := 0; ms < 1000; ms++ {
		tc := FromTime(base.Add(time.Duration(ms)*time.Millisecond), 30)
		require.Equal(t, ms*30/1000, tc.Frames, "ms=%d", ms)
		require.Len(t, tc.String(), 11)
	}
}

func TestParse(t *testing.T) {
	valid := []string{"00:00:00:00", "23:59:59:29", "12:34:56:07"}
	for _, s := range valid {
		tc, err := Parse(s, 30)
		require.NoError(t, err, s)
		assert.Equal(t, s, tc.String())
	}

	invalid := []struct {
		in    string
		field string
	}{
		{"25:00:00:00", "hours"},
		{"24:00:00:00", "hours"},
		{"12:60:00:00", "minutes"},
		{"12:00:60:00", "seconds"},
		{"12:00:00:30", "frames"},
		{"12:00:00:31", "frames"},
		{"1:00:00:00", ""},
		{"12:0:00:00", ""},
		{"12:00:00", ""},
		{"12-00-00-00", ""},
		{"ab:cd:ef:gh", ""},
		{"", ""},
		{" 12:00:00:00", ""},
	}
	for _, tt := range invalid {
		_, err := Parse(tt.in, 30)
		require.Error(t, err, tt.in)
		assert.True(t, errors.Is(err, ErrInvalidTimecode), tt.in)

		var pe *ParseError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, tt.in, pe.Input)
		assert.Equal(t, tt.field, pe.Field, tt.in)
	}
}

func TestParseRespectsFrameRate(t *testing.T) {
	_, err := Parse("00:00:00:24", 25)
	require.NoError(t, err)

	_, err = Parse("00:00:00:25", 25)
	require.Error(t, err)
}

func TestTimecodeJSON(t *testing.T) {
	tc := MustParse("01:02:03:04")
	data, err := tc.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"01:02:03:04"`, string(data))

	var back Timecode
	require.NoError(t, back.UnmarshalJSON(data))
	assert.Equal(t, tc, back)

	require.Error(t, back.UnmarshalJSON([]byte(`"99:00:00:00"`)))
}

func TestTimecodeScan(t *testing.T) {
	var tc Timecode
	require.NoError(t, tc.Scan("10:20:30:15"))
	assert.Equal(t, "10:20:30:15", tc.String())

	require.NoError(t, tc.Scan([]byte("00:00:01:00")))
	assert.Equal(t, 1, tc.Seconds)

	require.Error(t, tc.Scan(42))

	v, err := tc.Value()
	require.NoError(t, err)
	assert.Equal(t, "00:00:01:00", v)
}
