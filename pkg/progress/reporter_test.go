package progress

import "testing"

func TestReporterStartsQueued(t *testing.T) {
	r := NewReporter()
	cur := r.Current()
	if cur.Stage != "queued" || cur.Percent != 0 {
		t.Errorf("new reporter = %+v, want stage queued at 0", cur)
	}
}

func TestSetPercentClampsAndNeverDecreases(t *testing.T) {
	r := NewReporter()

	r.SetPercent(150)
	if got := r.Current().Percent; got != 100 {
		t.Errorf("percent after 150 = %d, want 100", got)
	}

	r.SetPercent(40)
	if got := r.Current().Percent; got != 100 {
		t.Errorf("percent went backward to %d", got)
	}

	r2 := NewReporter()
	r2.SetPercent(-5)
	if got := r2.Current().Percent; got != 0 {
		t.Errorf("percent after -5 = %d, want 0", got)
	}
	r2.SetPercent(30)
	r2.SetPercent(10)
	if got := r2.Current().Percent; got != 30 {
		t.Errorf("percent after stale update = %d, want 30", got)
	}
}

func TestStageHistory(t *testing.T) {
	r := NewReporter()
	r.SetPercent(25)
	r.SetStage("transferring")
	r.SetStage("transferring") // no-op, same label
	r.SetPercent(90)
	r.SetStage("finishing")

	hist := r.History()
	want := []string{"queued", "transferring", "finishing"}
	if len(hist) != len(want) {
		t.Fatalf("history length = %d, want %d", len(hist), len(want))
	}
	for i, stage := range want {
		if hist[i].Stage != stage {
			t.Errorf("history[%d].Stage = %q, want %q", i, hist[i].Stage, stage)
		}
	}
	if hist[1].Percent != 25 {
		t.Errorf("transferring recorded at %d%%, want 25", hist[1].Percent)
	}
	if hist[2].Percent != 90 {
		t.Errorf("finishing recorded at %d%%, want 90", hist[2].Percent)
	}
}
