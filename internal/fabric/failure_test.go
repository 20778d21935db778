package fabric

import "testing"

func TestFailureTracker_AlertsOnceOnThresholdCrossing(t *testing.T) {
	ft := NewFailureTracker(10, 0.2)

	alerts := 0
	for i := 0; i < 3; i++ {
		if _, justAlerted := ft.Record(true); justAlerted {
			alerts++
		}
	}
	if alerts != 1 {
		t.Fatalf("expected exactly one alert crossing the threshold, got %d", alerts)
	}
}

func TestFailureTracker_ResetsAfterRecovery(t *testing.T) {
	ft := NewFailureTracker(4, 0.2)

	if _, alerted := ft.Record(true); !alerted {
		t.Fatalf("expected alert on first failure: rate 1/1 exceeds 0.2")
	}
	ft.Record(true)
	ft.Record(true)

	for i := 0; i < 4; i++ {
		ft.Record(false)
	}

	// Window is now four successes; one failure gives 1/4 = 0.25 > 0.2.
	if _, alerted := ft.Record(true); !alerted {
		t.Fatalf("expected a fresh alert after the rate dropped and rose again")
	}
	ft.Record(true)
	ft.Record(true)
}

func TestFailureTracker_WindowEvictsOldEntries(t *testing.T) {
	ft := NewFailureTracker(3, 0.5)

	ft.Record(true)
	ft.Record(true)
	rate, _ := ft.Record(false)
	if rate < 0.6 {
		t.Fatalf("expected high failure rate early, got %f", rate)
	}

	rate, _ = ft.Record(false)
	rate2, _ := ft.Record(false)
	_ = rate
	if rate2 != 0 {
		t.Fatalf("expected failures to have scrolled out of the window, got rate %f", rate2)
	}
}
