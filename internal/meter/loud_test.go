package meter

import (
	"testing"
	"time"
)

var testLoudCfg = LoudConfig{ThresholdDB: 50, DurationMs: 5000, RecoveryMs: 3000}

func TestIsLoudIsStrict(t *testing.T) {
	if IsLoud(50, testLoudCfg) {
		t.Error("50 dB must not count as loud at a 50 dB threshold")
	}
	if !IsLoud(51, testLoudCfg) {
		t.Error("51 dB must count as loud")
	}
}

func TestLoudDetectorEntersAfterDuration(t *testing.T) {
	d := NewLoudDetector()
	t0 := time.Unix(1_700_000_000, 0)

	if ev := d.Update(70, testLoudCfg, t0); ev.InLoud || ev.JustEntered {
		t.Fatalf("entered loud state immediately: %+v", ev)
	}
	if ev := d.Update(70, testLoudCfg, t0.Add(4999*time.Millisecond)); ev.InLoud {
		t.Fatalf("entered loud state before duration: %+v", ev)
	}

	ev := d.Update(70, testLoudCfg, t0.Add(5*time.Second))
	if !ev.JustEntered || !ev.InLoud || ev.DurationMs != 5000 {
		t.Fatalf("at 5s: %+v", ev)
	}

	ev = d.Update(75, testLoudCfg, t0.Add(6*time.Second))
	if ev.JustEntered || !ev.InLoud || ev.DurationMs != 6000 {
		t.Errorf("at 6s: %+v", ev)
	}
}

func TestLoudDetectorShortBurstDoesNotTrigger(t *testing.T) {
	d := NewLoudDetector()
	t0 := time.Unix(1_700_000_000, 0)

	d.Update(80, testLoudCfg, t0)
	d.Update(40, testLoudCfg, t0.Add(2*time.Second))
	if ev := d.Update(80, testLoudCfg, t0.Add(6*time.Second)); ev.InLoud {
		t.Errorf("burst timer was not reset by a quiet reading: %+v", ev)
	}
}

func TestLoudDetectorRecovers(t *testing.T) {
	d := NewLoudDetector()
	t0 := time.Unix(1_700_000_000, 0)

	d.Update(70, testLoudCfg, t0)
	d.Update(70, testLoudCfg, t0.Add(8*time.Second))
	if !d.InLoud() {
		t.Fatal("not in loud state after 8s")
	}

	if ev := d.Update(40, testLoudCfg, t0.Add(9*time.Second)); !ev.InLoud || ev.JustRecovered {
		t.Fatalf("recovered too early: %+v", ev)
	}
	// A loud reading during recovery restarts the recovery timer.
	d.Update(70, testLoudCfg, t0.Add(10*time.Second))
	if ev := d.Update(40, testLoudCfg, t0.Add(11*time.Second)); ev.JustRecovered {
		t.Fatalf("recovery timer not restarted: %+v", ev)
	}

	ev := d.Update(40, testLoudCfg, t0.Add(14*time.Second))
	if !ev.JustRecovered || ev.InLoud {
		t.Fatalf("at 14s: %+v", ev)
	}
	if ev.TotalDurationMs != 10000 {
		t.Errorf("TotalDurationMs = %d, want 10000", ev.TotalDurationMs)
	}
	if d.InLoud() {
		t.Error("still in loud state after recovery")
	}
}

func TestLoudDetectorReset(t *testing.T) {
	d := NewLoudDetector()
	t0 := time.Unix(1_700_000_000, 0)
	d.Update(90, testLoudCfg, t0)
	d.Update(90, testLoudCfg, t0.Add(10*time.Second))
	d.Reset()

	if d.InLoud() {
		t.Error("InLoud after Reset")
	}
	if ev := d.Update(90, testLoudCfg, t0.Add(11*time.Second)); ev.InLoud {
		t.Errorf("Reset did not clear the loud start: %+v", ev)
	}
}
