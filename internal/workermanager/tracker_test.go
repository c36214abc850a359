package workermanager

import "testing"

func TestDeployTrackerAdvancesThroughSteps(t *testing.T) {
	tr := NewDeployTracker()
	s := tr.Start("worker-a", 100)

	if s.StepNumber != 1 || s.Status != StepRunning {
		t.Fatalf("expected step 1 running, got %+v", s)
	}

	tr.Advance(s.Key, 4)
	got, ok := tr.Get(s.Key)
	if !ok || got.StepNumber != 4 {
		t.Fatalf("expected step 4, got %+v ok=%v", got, ok)
	}

	tr.Finish(s.Key)
	got, _ = tr.Get(s.Key)
	if got.Status != StepDone || got.StepNumber != TotalDeploySteps {
		t.Fatalf("expected done at final step, got %+v", got)
	}
}

func TestDeployTrackerFail(t *testing.T) {
	tr := NewDeployTracker()
	s := tr.Start("worker-b", 1)

	tr.Fail(s.Key, "ssh dial refused")
	got, ok := tr.Get(s.Key)
	if !ok || got.Status != StepFailed || got.Error != "ssh dial refused" {
		t.Fatalf("expected failed status, got %+v", got)
	}
}

func TestDeployTrackerUnknownKey(t *testing.T) {
	tr := NewDeployTracker()
	if _, ok := tr.Get("missing_1"); ok {
		t.Fatalf("expected missing key to report not-found")
	}
}

func TestDeployKeyFormat(t *testing.T) {
	if got := deployKey("worker-a", 1690000000); got != "worker-a_1690000000" {
		t.Fatalf("unexpected deploy key: %s", got)
	}
}
