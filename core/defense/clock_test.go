package defense

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{in: "00:00", want: 0},
		{in: "09:15", want: 555},
		{in: "9:15", want: 555},
		{in: " 23:59 ", want: 1439},
		{in: "24:00", wantErr: true},
		{in: "12:60", wantErr: true},
		{in: "12:5", wantErr: true},
		{in: "123:00", wantErr: true},
		{in: ":30", wantErr: true},
		{in: "ab:cd", wantErr: true},
		{in: "12-30", wantErr: true},
		{in: "+9:00", wantErr: true},
		{in: "-0:30", wantErr: true},
		{in: "09:+5", wantErr: true},
		{in: "1 :00", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseClock(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want, mustParse(t, FormatClock(got)))
		})
	}
}

func mustParse(t *testing.T, s string) int {
	t.Helper()
	m, err := ParseClock(s)
	if err != nil {
		t.Fatalf("ParseClock(%q): %v", s, err)
	}
	return m
}

func TestInterval_Overlaps(t *testing.T) {
	iv := func(start, end string) Interval {
		return Interval{Start: mustParse(t, start), End: mustParse(t, end)}
	}
	tests := []struct {
		name string
		a, b Interval
		want bool
	}{
		{name: "same", a: iv("09:00", "09:30"), b: iv("09:00", "09:30"), want: true},
		{name: "partial", a: iv("09:00", "09:30"), b: iv("09:15", "09:45"), want: true},
		{name: "contained", a: iv("09:00", "10:00"), b: iv("09:10", "09:20"), want: true},
		{name: "one minute", a: iv("09:00", "09:31"), b: iv("09:30", "10:00"), want: true},
		{name: "back to back", a: iv("09:00", "09:30"), b: iv("09:30", "10:00"), want: false},
		{name: "disjoint", a: iv("08:00", "08:30"), b: iv("14:00", "15:00"), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Overlaps(tt.b))
			assert.Equal(t, tt.want, tt.b.Overlaps(tt.a), "symmetric")
		})
	}
}

func TestInterval_Valid(t *testing.T) {
	assert.True(t, Interval{Start: 540, End: 570}.Valid())
	assert.False(t, Interval{Start: 570, End: 570}.Valid())
	assert.False(t, Interval{Start: 600, End: 570}.Valid())
	assert.Equal(t, "09:00-09:30", Interval{Start: 540, End: 570}.String())
}
