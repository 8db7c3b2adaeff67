package breaker

import (
	"testing"
	"time"
)

func testConfig() Config {
	return Config{
		WindowSize:            10,
		FailureRateThreshold:  0.5,
		OpenStateWait:         100 * time.Millisecond,
		MinCallsBeforeEval:    10,
		HalfOpenPermittedCall: 3,
		SlowCallRateThreshold: 0.5,
		SlowCallDuration:      time.Second,
	}
}

func TestMachine_TripsOnFailureRate(t *testing.T) {
	m := NewMachine(testConfig())
	now := time.Now()

	for i := 0; i < 10; i++ {
		if err := m.Admit(now); err != nil {
			t.Fatalf("call %d: unexpected admit error: %v", i, err)
		}
		success := i < 4 // 6/10 failures >= 0.5 threshold
		m.RecordOutcome(success, now)
	}

	if m.State() != Open {
		t.Fatalf("expected Open after breaching failure rate, got %s", m.State())
	}
}

func TestMachine_StaysClosedBelowMinCalls(t *testing.T) {
	m := NewMachine(testConfig())
	now := time.Now()

	for i := 0; i < 9; i++ {
		_ = m.Admit(now)
		m.RecordOutcome(false, now)
	}

	if m.State() != Closed {
		t.Fatalf("expected Closed below min_calls_before_eval, got %s", m.State())
	}
}

func TestMachine_OpenRejectsUntilDeadline(t *testing.T) {
	m := NewMachine(testConfig())
	now := time.Now()
	for i := 0; i < 10; i++ {
		_ = m.Admit(now)
		m.RecordOutcome(false, now)
	}
	if m.State() != Open {
		t.Fatalf("setup: expected Open, got %s", m.State())
	}

	if err := m.Admit(now.Add(50 * time.Millisecond)); err != ErrOpen {
		t.Fatalf("expected ErrOpen before deadline, got %v", err)
	}
}

func TestMachine_HalfOpenAllSucceedCloses(t *testing.T) {
	m := NewMachine(testConfig())
	now := time.Now()
	for i := 0; i < 10; i++ {
		_ = m.Admit(now)
		m.RecordOutcome(false, now)
	}

	afterDeadline := now.Add(200 * time.Millisecond)
	for i := 0; i < 3; i++ {
		if err := m.Admit(afterDeadline); err != nil {
			t.Fatalf("half-open trial %d: unexpected admit error: %v", i, err)
		}
	}
	if m.State() != HalfOpen {
		t.Fatalf("expected HalfOpen after deadline, got %s", m.State())
	}

	for i := 0; i < 3; i++ {
		m.RecordOutcome(true, afterDeadline)
	}

	if m.State() != Closed {
		t.Fatalf("expected Closed after all half-open trials succeed, got %s", m.State())
	}
}

func TestMachine_HalfOpenAnyFailureReopens(t *testing.T) {
	m := NewMachine(testConfig())
	now := time.Now()
	for i := 0; i < 10; i++ {
		_ = m.Admit(now)
		m.RecordOutcome(false, now)
	}

	afterDeadline := now.Add(200 * time.Millisecond)
	for i := 0; i < 3; i++ {
		_ = m.Admit(afterDeadline)
	}

	m.RecordOutcome(true, afterDeadline)
	m.RecordOutcome(false, afterDeadline)
	m.RecordOutcome(true, afterDeadline)

	if m.State() != Open {
		t.Fatalf("expected Open after a half-open trial fails, got %s", m.State())
	}
}

func TestMachine_HalfOpenLimitsConcurrentTrials(t *testing.T) {
	m := NewMachine(testConfig())
	now := time.Now()
	for i := 0; i < 10; i++ {
		_ = m.Admit(now)
		m.RecordOutcome(false, now)
	}

	afterDeadline := now.Add(200 * time.Millisecond)
	for i := 0; i < 3; i++ {
		if err := m.Admit(afterDeadline); err != nil {
			t.Fatalf("trial %d should be admitted: %v", i, err)
		}
	}
	if err := m.Admit(afterDeadline); err != ErrOpen {
		t.Fatalf("expected 4th concurrent half-open call to be rejected, got %v", err)
	}
}

func TestMachine_ReplacePreservesOpenDeadline(t *testing.T) {
	m := NewMachine(testConfig())
	now := time.Now()
	for i := 0; i < 10; i++ {
		_ = m.Admit(now)
		m.RecordOutcome(false, now)
	}
	deadline := m.Deadline()

	newCfg := testConfig()
	newCfg.OpenStateWait = 10 * time.Second
	next := m.Replace(newCfg)

	if next.State() != Open {
		t.Fatalf("expected replacement to preserve Open, got %s", next.State())
	}
	if !next.Deadline().Equal(deadline) {
		t.Fatalf("expected replacement to preserve the in-progress deadline, got %s want %s", next.Deadline(), deadline)
	}
}

func TestMachine_ReplacePreservesClosedBuffer(t *testing.T) {
	m := NewMachine(testConfig())
	now := time.Now()
	for i := 0; i < 5; i++ {
		_ = m.Admit(now)
		m.RecordOutcome(false, now)
	}

	next := m.Replace(testConfig())
	for i := 0; i < 5; i++ {
		_ = next.Admit(now)
		next.RecordOutcome(false, now)
	}

	if next.State() != Open {
		t.Fatalf("expected the 5 pre-replacement failures to carry forward and trip after 5 more, got %s", next.State())
	}
}

func TestConfig_ClampBoundsKnobs(t *testing.T) {
	c := Config{WindowSize: 1000, FailureRateThreshold: 5, OpenStateWait: time.Hour}
	clamped := c.Clamp()

	if clamped.WindowSize != MaxWindowSize {
		t.Errorf("window_size = %d, want %d", clamped.WindowSize, MaxWindowSize)
	}
	if clamped.FailureRateThreshold != MaxFailureRateThreshold {
		t.Errorf("failure_rate_threshold = %v, want %v", clamped.FailureRateThreshold, MaxFailureRateThreshold)
	}
	if clamped.OpenStateWait != MaxOpenStateWait {
		t.Errorf("open_state_wait = %v, want %v", clamped.OpenStateWait, MaxOpenStateWait)
	}
}
