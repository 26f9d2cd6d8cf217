package report

import (
	"errors"
	"testing"
	"time"

	"github.com/oszuidwest/zwfm-noisemeter/internal/level"
)

func TestBuildAndText(t *testing.T) {
	s := level.NewSession()
	for _, r := range []level.Reading{83, 90, 70} {
		s.Record(r)
	}
	st := s.Snapshot()

	rep, err := Build("main", "abc", &st, 2*time.Minute+5*time.Second, "Middelburg")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	want := "Noise Report\n" +
		"-------------------\n" +
		"Min dB: 70 dB\n" +
		"Max dB: 90 dB\n" +
		"Avg dB: 81 dB\n" +
		"Duration: 02 min, 05 sec\n" +
		"Location: Middelburg"
	if got := rep.Text(); got != want {
		t.Errorf("Text() =\n%s\nwant\n%s", got, want)
	}
	if rep.Readings != 3 {
		t.Errorf("Readings = %d", rep.Readings)
	}
}

func TestBuildEmptySession(t *testing.T) {
	st := level.NewSession().Snapshot()
	if _, err := Build("main", "", &st, 0, ""); !errors.Is(err, ErrNoData) {
		t.Errorf("Build(empty) = %v, want ErrNoData", err)
	}
}

func TestAverageTruncatesTowardZero(t *testing.T) {
	st := level.Stats{Min: -7, Max: -4, History: []level.Reading{-4, -7}}
	rep, err := Build("main", "", &st, 0, "")
	if err != nil {
		t.Fatal(err)
	}
	if rep.AvgDB != -5 {
		t.Errorf("AvgDB = %d, want -5", rep.AvgDB)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "00 min, 00 sec"},
		{59 * time.Second, "00 min, 59 sec"},
		{61*time.Second + 900*time.Millisecond, "01 min, 01 sec"},
		{125 * time.Minute, "125 min, 00 sec"},
		{-time.Second, "00 min, 00 sec"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.d); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
