package vad

import "testing"

func defaultMachineConfig() MachineConfig {
	return MachineConfig{
		FrameMs:      20,
		VoiceBeginMs: 250,
		VoiceStopMs:  600,
		MaxSilenceMs: 15000,
	}
}

func advanceN(m *Machine, active bool, n int) Action {
	var last Action
	for i := 0; i < n; i++ {
		last = m.Advance(active)
	}
	return last
}

func TestMachine_OnsetTiming(t *testing.T) {
	m := NewMachine(defaultMachineConfig())

	// 12 active frames accumulate 240 ms, still below the onset bar.
	for i := 0; i < 12; i++ {
		if action := m.Advance(true); action != ActionNone {
			t.Fatalf("frame %d: expected no action, got %v", i, action)
		}
	}
	if m.State() != StateInactivity {
		t.Fatalf("expected Inactivity, got %v", m.State())
	}

	// The 13th active frame crosses 250 ms: transition armed, no event.
	if action := m.Advance(true); action != ActionNone {
		t.Fatalf("expected no action on the arming frame, got %v", action)
	}
	if m.State() != StateInactivityTransition {
		t.Fatalf("expected InactivityTransition, got %v", m.State())
	}

	// The next frame opens the segment.
	if action := m.Advance(true); action != ActionBegin {
		t.Fatalf("expected ActionBegin, got %v", action)
	}
	if m.State() != StateActivity {
		t.Fatalf("expected Activity, got %v", m.State())
	}
}

func TestMachine_ShortClickDecays(t *testing.T) {
	m := NewMachine(defaultMachineConfig())

	// 200 ms of speech does not arm the transition.
	advanceN(m, true, 10)
	if m.State() != StateInactivity {
		t.Fatalf("expected Inactivity after 200ms burst, got %v", m.State())
	}
	if m.RecognitionMs() != 200 {
		t.Fatalf("expected recognition 200, got %v", m.RecognitionMs())
	}

	// Two seconds of silence decays the accumulator at the 10 ms step.
	advanceN(m, false, 100)
	if m.State() != StateInactivity {
		t.Fatalf("expected Inactivity, got %v", m.State())
	}
	// The decay stops once the accumulator drops below one frame.
	if m.RecognitionMs() > 10 {
		t.Errorf("expected recognition decayed below a frame, got %v", m.RecognitionMs())
	}
	if m.RecognitionMs() < 0 {
		t.Errorf("recognition must stay non-negative, got %v", m.RecognitionMs())
	}
}

func TestMachine_OffsetHangover(t *testing.T) {
	m := NewMachine(defaultMachineConfig())

	advanceN(m, true, 14) // arm + begin
	if m.State() != StateActivity {
		t.Fatalf("expected Activity, got %v", m.State())
	}

	// 29 silent frames keep the segment open (580 ms of hangover).
	for i := 0; i < 29; i++ {
		if action := m.Advance(false); action != ActionSpeaking {
			t.Fatalf("silent frame %d: expected ActionSpeaking, got %v", i, action)
		}
	}

	// The 30th silent frame crosses 600 ms and closes the segment.
	if action := m.Advance(false); action != ActionEnd {
		t.Fatalf("expected ActionEnd, got %v", action)
	}
	if m.State() != StateInactivity {
		t.Fatalf("expected Inactivity after end, got %v", m.State())
	}
	if m.SilenceMs() != 0 || m.RecognitionMs() != 0 {
		t.Errorf("counters must be zeroed on transition: silence=%v recognition=%v",
			m.SilenceMs(), m.RecognitionMs())
	}
}

func TestMachine_BriefPauseDoesNotEnd(t *testing.T) {
	m := NewMachine(defaultMachineConfig())

	advanceN(m, true, 14)

	// 300 ms pause: silence accumulates but stays below 600 ms.
	advanceN(m, false, 15)
	if m.State() != StateActivity {
		t.Fatalf("expected Activity through a 300ms pause, got %v", m.State())
	}
	if m.SilenceMs() != 300 {
		t.Fatalf("expected silence 300, got %v", m.SilenceMs())
	}

	// Resumed speech pays the silence back down to the floor.
	advanceN(m, true, 40)
	if m.SilenceMs() != 0 {
		t.Errorf("expected silence clamped to 0, got %v", m.SilenceMs())
	}
}

func TestMachine_SilenceClampedAtZero(t *testing.T) {
	m := NewMachine(defaultMachineConfig())
	advanceN(m, true, 14)

	// Active frames in Activity must never drive silence negative.
	advanceN(m, true, 5)
	if m.SilenceMs() != 0 {
		t.Errorf("silence must be clamped at 0, got %v", m.SilenceMs())
	}
}

func TestMachine_MaxSilenceHeartbeat(t *testing.T) {
	m := NewMachine(defaultMachineConfig())

	// 749 silent frames stay under the 15 s bar.
	for i := 0; i < 749; i++ {
		if action := m.Advance(false); action != ActionNone {
			t.Fatalf("frame %d: expected no action, got %v", i, action)
		}
	}

	// Frame 750 crosses 15000 ms.
	if action := m.Advance(false); action != ActionSilence {
		t.Fatalf("expected ActionSilence, got %v", action)
	}

	// Counters remain, so the machine keeps reporting; dedup is the
	// emission layer's job.
	if action := m.Advance(false); action != ActionSilence {
		t.Fatalf("expected repeated ActionSilence, got %v", action)
	}
	if m.State() != StateInactivity {
		t.Errorf("heartbeat must not leave Inactivity, got %v", m.State())
	}
}

func TestMachine_MaxSegmentCutoff(t *testing.T) {
	cfg := defaultMachineConfig()
	cfg.MaxSegmentMs = 1000
	m := NewMachine(cfg)

	advanceN(m, true, 14)

	// Continuous speech hits the cutoff after 1000 ms of activity.
	var ended bool
	for i := 0; i < 50; i++ {
		if m.Advance(true) == ActionEnd {
			ended = true
			break
		}
	}
	if !ended {
		t.Fatal("expected forced ActionEnd at the segment cutoff")
	}
	if m.State() != StateInactivity {
		t.Errorf("expected Inactivity after cutoff, got %v", m.State())
	}
}

func TestMachine_ForceEnd(t *testing.T) {
	m := NewMachine(defaultMachineConfig())

	if m.ForceEnd() {
		t.Error("ForceEnd in Inactivity must report no open segment")
	}

	advanceN(m, true, 14)
	if !m.ForceEnd() {
		t.Error("ForceEnd in Activity must report an open segment")
	}
	if m.State() != StateInactivity {
		t.Errorf("expected Inactivity after ForceEnd, got %v", m.State())
	}
}

func TestMachine_CountersNonNegative(t *testing.T) {
	m := NewMachine(defaultMachineConfig())

	pattern := []bool{true, true, false, true, false, false, true}
	for i := 0; i < 2000; i++ {
		m.Advance(pattern[i%len(pattern)])
		if m.SilenceMs() < 0 {
			t.Fatalf("silence went negative at frame %d", i)
		}
		if m.RecognitionMs() < 0 {
			t.Fatalf("recognition went negative at frame %d", i)
		}
	}
}
