package job

import "testing"

func TestCanTransition(t *testing.T) {
	allowed := map[Status][]Status{
		StatusPending: {StatusRunning, StatusCancelled},
		StatusRunning: {StatusCompleted, StatusFailed, StatusCancelled},
	}

	all := []Status{StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusCancelled}

	for _, from := range all {
		for _, to := range all {
			want := false
			for _, allowedTo := range allowed[from] {
				if allowedTo == to {
					want = true
					break
				}
			}

			if got := CanTransition(from, to); got != want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestCanTransitionSameState(t *testing.T) {
	for _, s := range []Status{StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusCancelled} {
		if CanTransition(s, s) {
			t.Errorf("CanTransition(%s, %s) = true, want false", s, s)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	terminal := map[Status]bool{
		StatusPending:   false,
		StatusRunning:   false,
		StatusCompleted: true,
		StatusFailed:    true,
		StatusCancelled: true,
	}

	for s, want := range terminal {
		if got := s.IsTerminal(); got != want {
			t.Errorf("%s.IsTerminal() = %v, want %v", s, got, want)
		}
	}
}

func TestClampProgress(t *testing.T) {
	cases := map[int]int{
		-10: 0,
		0:   0,
		50:  50,
		100: 100,
		150: 100,
	}

	for in, want := range cases {
		if got := ClampProgress(in); got != want {
			t.Errorf("ClampProgress(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestNewClampsMaxRetries(t *testing.T) {
	j := New(CreateRequest{Name: "demo", MaxRetries: 0})
	if j.MaxRetries != 3 {
		t.Fatalf("MaxRetries = %d, want default of 3", j.MaxRetries)
	}
	if j.Status != StatusPending {
		t.Fatalf("Status = %s, want pending", j.Status)
	}
}
