package vad

import (
	"testing"
)

const (
	testFrameSamples = 320
	testFrameBytes   = testFrameSamples * 2
)

func testSessionConfig() SessionConfig {
	return SessionConfig{
		FrameSamples:         testFrameSamples,
		FrameMs:              20,
		VoiceBeginMs:         250,
		VoiceStopMs:          600,
		MaxSilenceMs:         15000,
		PrerollCapacityBytes: 32000,
	}
}

// script builds a probability sequence: count frames at each probability.
func script(steps ...struct {
	prob  float32
	count int
}) []float32 {
	var out []float32
	for _, s := range steps {
		for i := 0; i < s.count; i++ {
			out = append(out, s.prob)
		}
	}
	return out
}

func step(prob float32, count int) struct {
	prob  float32
	count int
} {
	return struct {
		prob  float32
		count int
	}{prob, count}
}

// feedFrames pushes one chunk per frame and collects the emitted events
// in order.
func feedFrames(t *testing.T, s *Session, frames int) []*Event {
	t.Helper()
	var events []*Event
	chunk := make([]byte, testFrameBytes)
	for i := 0; i < frames; i++ {
		ev, err := s.ProcessChunk(chunk)
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if ev != nil {
			events = append(events, ev)
		}
	}
	return events
}

func eventTypes(events []*Event) []EventType {
	out := make([]EventType, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}

func TestSession_PureSilence(t *testing.T) {
	detector := NewMockDetector(0.5, nil)
	s := NewSession("test", detector, testSessionConfig())

	// 16 seconds of zeros in a single chunk.
	chunk := make([]byte, 800*testFrameBytes)
	ev, err := s.ProcessChunk(chunk)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if ev == nil || ev.Type != EventSilence {
		t.Fatalf("expected one SILENCE event, got %+v", ev)
	}
	if len(ev.Audio) != 0 {
		t.Errorf("SILENCE must carry no audio, got %d bytes", len(ev.Audio))
	}
	if s.State() != StateInactivity {
		t.Errorf("expected Inactivity, got %v", s.State())
	}
	if s.Accumulator().SegmentLen() != 0 {
		t.Errorf("segment buffer must be empty, got %d bytes", s.Accumulator().SegmentLen())
	}

	// Continued silence is deduplicated at the emission layer.
	ev, err = s.ProcessChunk(make([]byte, 10*testFrameBytes))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if ev != nil {
		t.Errorf("expected deduplicated silence, got %v", ev.Type)
	}
}

func TestSession_SilenceHeartbeatRoundTrip(t *testing.T) {
	detector := NewMockDetector(0.5, nil)
	s := NewSession("test", detector, testSessionConfig())

	// MAX_SILENCE_MS + 2 frames of zeros, one chunk per frame.
	events := feedFrames(t, s, 752)

	silences := 0
	for _, ev := range events {
		switch ev.Type {
		case EventSilence:
			silences++
		case EventVadBegin:
			t.Fatal("silence must never produce VAD_BEGIN")
		}
	}
	if silences != 1 {
		t.Errorf("expected exactly one SILENCE, got %d", silences)
	}
}

func TestSession_ShortClick(t *testing.T) {
	// 200 ms of speech followed by 2 s of silence.
	detector := NewMockDetector(0.5, script(step(0.9, 10), step(0.1, 100)))
	s := NewSession("test", detector, testSessionConfig())

	events := feedFrames(t, s, 110)
	for _, ev := range events {
		if ev.Type == EventVadBegin {
			t.Fatal("a sub-threshold click must not open a segment")
		}
	}
	if s.State() != StateInactivity {
		t.Errorf("expected Inactivity, got %v", s.State())
	}
	if s.Machine().RecognitionMs() > 10 {
		t.Errorf("expected recognition decayed below a frame, got %v", s.Machine().RecognitionMs())
	}
}

func TestSession_CleanUtterance(t *testing.T) {
	// 100 ms silence, 1200 ms speech, 1000 ms silence.
	detector := NewMockDetector(0.5, script(step(0.1, 5), step(0.9, 60), step(0.1, 50)))
	s := NewSession("test", detector, testSessionConfig())

	events := feedFrames(t, s, 115)

	var begin, end *Event
	speaking := 0
	for _, ev := range events {
		switch ev.Type {
		case EventVadBegin:
			if begin != nil {
				t.Fatal("second VAD_BEGIN in a single utterance")
			}
			begin = ev
		case EventSpeaking:
			speaking++
		case EventVadEnd:
			if end != nil {
				t.Fatal("second VAD_END in a single utterance")
			}
			end = ev
		case EventSilence:
			t.Fatal("SILENCE during an utterance")
		}
	}

	if begin == nil {
		t.Fatal("expected VAD_BEGIN")
	}
	if begin.NewSession == "" {
		t.Error("VAD_BEGIN must carry a new_session token")
	}
	if len(begin.Audio) != testFrameBytes {
		t.Errorf("VAD_BEGIN payload must be the current chunk, got %d bytes", len(begin.Audio))
	}
	if speaking == 0 {
		t.Error("expected SPEAKING events between the boundaries")
	}
	if end == nil {
		t.Fatal("expected VAD_END")
	}

	// Every frame fed until the offset lands in the payload: the 5
	// leading silent frames and the 14 arming frames through the
	// pre-roll, the rest through the active segment. Offset fires on
	// the 30th trailing silent frame: frames 1..95 in total.
	wantBytes := 95 * testFrameBytes
	if len(end.Audio) != wantBytes {
		t.Errorf("VAD_END payload = %d bytes, want %d", len(end.Audio), wantBytes)
	}
	if s.Accumulator().SegmentLen() != 0 {
		t.Error("segment buffer must be cleared after VAD_END")
	}
	if s.State() != StateInactivity {
		t.Errorf("expected Inactivity after the utterance, got %v", s.State())
	}
}

func TestSession_SpeechWithBriefPause(t *testing.T) {
	// 800 ms speech, 300 ms pause, 800 ms speech, 700 ms silence.
	detector := NewMockDetector(0.5, script(
		step(0.9, 40), step(0.1, 15), step(0.9, 40), step(0.1, 35)))
	s := NewSession("test", detector, testSessionConfig())

	events := feedFrames(t, s, 130)

	begins, ends := 0, 0
	for _, ev := range events {
		switch ev.Type {
		case EventVadBegin:
			begins++
		case EventVadEnd:
			ends++
		}
	}
	if begins != 1 || ends != 1 {
		t.Errorf("expected a single VAD_BEGIN/VAD_END pair, got %d/%d (events: %v)",
			begins, ends, eventTypes(events))
	}
}

func TestSession_BackToBackUtterances(t *testing.T) {
	// Two utterances separated by 700 ms of silence.
	detector := NewMockDetector(0.5, script(
		step(0.9, 40), step(0.1, 35), step(0.9, 40), step(0.1, 35)))
	s := NewSession("test", detector, testSessionConfig())

	events := feedFrames(t, s, 150)

	var sequence []EventType
	var endPayloads []int
	for _, ev := range events {
		if ev.Type == EventVadBegin || ev.Type == EventVadEnd {
			sequence = append(sequence, ev.Type)
		}
		if ev.Type == EventVadEnd {
			endPayloads = append(endPayloads, len(ev.Audio))
		}
	}

	want := []EventType{EventVadBegin, EventVadEnd, EventVadBegin, EventVadEnd}
	if len(sequence) != len(want) {
		t.Fatalf("expected %v, got %v", want, sequence)
	}
	for i := range want {
		if sequence[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, sequence)
		}
	}

	// The second payload covers only its own pre-roll and segment: the
	// pre-roll is drained on the first onset, so nothing from the first
	// utterance leaks into the second.
	// First: frames 1..70 (14 arming + 26 speech + 30 hangover).
	// Second: frames 71..145 (5 idle + 14 arming + 26 speech + 30 hangover).
	if endPayloads[0] != 70*testFrameBytes {
		t.Errorf("first VAD_END payload = %d bytes, want %d", endPayloads[0], 70*testFrameBytes)
	}
	if endPayloads[1] != 75*testFrameBytes {
		t.Errorf("second VAD_END payload = %d bytes, want %d", endPayloads[1], 75*testFrameBytes)
	}
}

func TestSession_PrerollCoversLeadingSilence(t *testing.T) {
	// 500 ms silence immediately followed by 500 ms speech.
	detector := NewMockDetector(0.5, script(step(0.1, 25), step(0.9, 25)))
	s := NewSession("test", detector, testSessionConfig())

	// Feed one frame per chunk and stop at the onset.
	chunk := make([]byte, testFrameBytes)
	var begin *Event
	for i := 0; i < 50 && begin == nil; i++ {
		ev, err := s.ProcessChunk(chunk)
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if ev != nil && ev.Type == EventVadBegin {
			begin = ev
		}
	}
	if begin == nil {
		t.Fatal("expected VAD_BEGIN")
	}

	// At the onset the open segment holds the full pre-roll: all 25
	// leading silent frames plus the arming frames.
	if got := s.Accumulator().SegmentLen(); got < 25*testFrameBytes {
		t.Errorf("segment holds %d bytes at onset, want at least %d of leading silence",
			got, 25*testFrameBytes)
	}
}

func TestSession_SingleChunkUtterance(t *testing.T) {
	// A full utterance inside one chunk: the boundary event wins and
	// VAD_BEGIN beats VAD_END.
	detector := NewMockDetector(0.5, script(step(0.9, 40), step(0.1, 35)))
	s := NewSession("test", detector, testSessionConfig())

	chunk := make([]byte, 75*testFrameBytes)
	ev, err := s.ProcessChunk(chunk)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if ev == nil || ev.Type != EventVadBegin {
		t.Fatalf("expected VAD_BEGIN to win the chunk, got %+v", ev)
	}
	if s.State() != StateInactivity {
		t.Errorf("machine must still have processed the offset, state %v", s.State())
	}
}

func TestSession_OddChunkRejected(t *testing.T) {
	detector := NewMockDetector(0.5, nil)
	s := NewSession("test", detector, testSessionConfig())

	_, err := s.ProcessChunk(make([]byte, 641))
	if err == nil {
		t.Fatal("expected a decode error for odd-length PCM")
	}
}

func TestSession_SampleConservation(t *testing.T) {
	detector := NewMockDetector(0.5, nil)
	s := NewSession("test", detector, testSessionConfig())

	sizes := []int{640, 100, 642, 1280, 2, 998}
	total := 0
	for _, n := range sizes {
		if _, err := s.ProcessChunk(make([]byte, n)); err != nil {
			t.Fatalf("chunk %d: %v", n, err)
		}
		total += n
	}

	consumed := int(s.Machine().FrameIndex()) * testFrameBytes
	if consumed+s.ResidualBytes() != total {
		t.Errorf("conservation violated: consumed %d + residual %d != %d",
			consumed, s.ResidualBytes(), total)
	}
	if s.ResidualBytes() >= testFrameBytes {
		t.Errorf("residual %d not below one frame", s.ResidualBytes())
	}
}

func TestSession_PrerollBoundedAcrossChunks(t *testing.T) {
	detector := NewMockDetector(0.5, nil)
	cfg := testSessionConfig()
	cfg.PrerollCapacityBytes = 6400
	s := NewSession("test", detector, cfg)

	for i := 0; i < 100; i++ {
		if _, err := s.ProcessChunk(make([]byte, testFrameBytes)); err != nil {
			t.Fatalf("chunk %d: %v", i, err)
		}
		if got := s.Accumulator().PrerollLen(); got > 6400 {
			t.Fatalf("pre-roll exceeded capacity at chunk %d: %d", i, got)
		}
	}
}

func TestSession_ForceEnd(t *testing.T) {
	detector := NewMockDetector(0.5, script(step(0.9, 200)))
	s := NewSession("test", detector, testSessionConfig())

	feedFrames(t, s, 20)
	if s.State() != StateActivity {
		t.Fatalf("expected Activity, got %v", s.State())
	}

	ev := s.ForceEnd()
	if ev == nil || ev.Type != EventVadEnd {
		t.Fatalf("expected terminal VAD_END, got %+v", ev)
	}
	if len(ev.Audio) == 0 {
		t.Error("terminal VAD_END must carry the open segment")
	}
	if s.State() != StateInactivity {
		t.Errorf("expected Inactivity after ForceEnd, got %v", s.State())
	}

	if again := s.ForceEnd(); again != nil {
		t.Errorf("idle ForceEnd must emit nothing, got %v", again.Type)
	}
}

func TestSession_Reset(t *testing.T) {
	detector := NewMockDetector(0.5, script(step(0.9, 200)))
	s := NewSession("test", detector, testSessionConfig())

	feedFrames(t, s, 20)
	if err := s.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}

	if s.State() != StateInactivity {
		t.Errorf("expected Inactivity after reset, got %v", s.State())
	}
	if s.Accumulator().SegmentLen() != 0 || s.Accumulator().PrerollLen() != 0 {
		t.Error("buffers must be empty after reset")
	}
	if s.ResidualBytes() != 0 {
		t.Error("residual must be empty after reset")
	}
}

func TestSession_EventOrderInvariant(t *testing.T) {
	// Alternating utterances: after every VAD_BEGIN the next boundary
	// event must be VAD_END.
	detector := NewMockDetector(0.5, script(
		step(0.9, 50), step(0.1, 40),
		step(0.9, 50), step(0.1, 40),
		step(0.9, 50), step(0.1, 40)))
	s := NewSession("test", detector, testSessionConfig())

	events := feedFrames(t, s, 270)

	inSegment := false
	for i, ev := range events {
		switch ev.Type {
		case EventVadBegin:
			if inSegment {
				t.Fatalf("event %d: VAD_BEGIN while a segment is open", i)
			}
			inSegment = true
		case EventVadEnd:
			if !inSegment {
				t.Fatalf("event %d: VAD_END without a segment", i)
			}
			inSegment = false
		case EventSilence:
			if inSegment {
				t.Fatalf("event %d: SILENCE while a segment is open", i)
			}
		}
	}
}
