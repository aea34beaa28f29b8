package vad

import (
	"strconv"
	"time"

	platformerrors "vad-server-go/internal/platform/errors"

	"vad-server-go/internal/domain/vad/inter"
)

// EventType discriminates the events a session can emit.
type EventType string

const (
	EventVadBegin EventType = "VAD_BEGIN"
	EventSpeaking EventType = "SPEAKING"
	EventVadEnd   EventType = "VAD_END"
	EventSilence  EventType = "SILENCE"
)

// Event is the outcome of processing one input chunk. Audio carries the
// current chunk for VAD_BEGIN and SPEAKING, the full accumulated segment
// for VAD_END, and nothing for SILENCE. NewSession is set on VAD_BEGIN
// only.
type Event struct {
	Type       EventType
	Audio      []byte
	NewSession string
}

// SessionConfig bundles the per-session tunables.
type SessionConfig struct {
	FrameSamples         int
	FrameMs              float32
	VoiceBeginMs         float32
	VoiceStopMs          float32
	MaxSilenceMs         float32
	MaxSegmentMs         float32
	PrerollCapacityBytes int
}

// Session is the per-connection façade over the frame buffer, the
// detector, the state machine and the segment accumulator. It is not safe
// for concurrent use; callers serialize ProcessChunk per session.
type Session struct {
	id       string
	detector inter.Detector
	frames   *FrameBuffer
	machine  *Machine
	acc      *Accumulator

	lastEvent EventType
}

// NewSession wires a session around its exclusively owned detector.
func NewSession(id string, detector inter.Detector, cfg SessionConfig) *Session {
	return &Session{
		id:       id,
		detector: detector,
		frames:   NewFrameBuffer(cfg.FrameSamples),
		machine: NewMachine(MachineConfig{
			FrameMs:      cfg.FrameMs,
			VoiceBeginMs: cfg.VoiceBeginMs,
			VoiceStopMs:  cfg.VoiceStopMs,
			MaxSilenceMs: cfg.MaxSilenceMs,
			MaxSegmentMs: cfg.MaxSegmentMs,
		}),
		acc: NewAccumulator(cfg.PrerollCapacityBytes),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// ProcessChunk runs one chunk of little-endian 16-bit PCM through the
// pipeline and returns at most one event. Boundary events supersede
// ongoing events produced by other frames of the same chunk, and
// VAD_BEGIN wins over VAD_END when a single chunk produces both.
func (s *Session) ProcessChunk(chunk []byte) (*Event, error) {
	if len(chunk)%2 != 0 {
		return nil, platformerrors.New(platformerrors.KindDecode, "chunk", "odd PCM byte count")
	}
	if len(chunk) == 0 {
		return nil, nil
	}

	s.frames.Push(chunk)

	best := ActionNone
	var endPayload []byte
	sawActive := false

	for {
		frame, raw, ok := s.frames.Next()
		if !ok {
			break
		}

		result, err := s.detector.ProcessFrame(frame)
		if err != nil {
			return nil, platformerrors.Wrap(platformerrors.KindInference, "predict", "detector failure", err)
		}
		if result.Active {
			sawActive = true
		}

		// The frame joins whichever buffer its pre-advance state owns:
		// pre-roll before the onset, the open segment after it. The
		// onset frame itself lands in the pre-roll and reaches the
		// segment through the Begin snapshot.
		switch s.machine.State() {
		case StateInactivity, StateInactivityTransition:
			s.acc.AppendPreroll(raw)
		case StateActivity:
			s.acc.AppendSegment(raw)
		}

		action := s.machine.Advance(result.Active)
		switch action {
		case ActionBegin:
			s.acc.Begin()
		case ActionEnd:
			endPayload = s.acc.Finish()
		}

		if action > best {
			best = action
		}
	}

	// Speech resets the silence heartbeat dedup even when no event fires.
	if sawActive && s.lastEvent == EventSilence {
		s.lastEvent = ""
	}

	return s.emit(best, chunk, endPayload), nil
}

func (s *Session) emit(action Action, chunk []byte, endPayload []byte) *Event {
	switch action {
	case ActionBegin:
		s.lastEvent = EventVadBegin
		return &Event{
			Type:       EventVadBegin,
			Audio:      cloneBytes(chunk),
			NewSession: strconv.FormatInt(time.Now().UnixMicro(), 10),
		}
	case ActionEnd:
		s.lastEvent = EventVadEnd
		return &Event{Type: EventVadEnd, Audio: endPayload}
	case ActionSpeaking:
		s.lastEvent = EventSpeaking
		return &Event{Type: EventSpeaking, Audio: cloneBytes(chunk)}
	case ActionSilence:
		if s.lastEvent == EventSilence {
			return nil
		}
		s.lastEvent = EventSilence
		return &Event{Type: EventSilence}
	}
	return nil
}

// ForceEnd finalizes an open segment without further audio, emitting the
// terminal VAD_END a closing client would otherwise never receive. It
// returns nil when no segment is open.
func (s *Session) ForceEnd() *Event {
	if !s.machine.ForceEnd() {
		s.acc.Reset()
		return nil
	}
	s.lastEvent = EventVadEnd
	return &Event{Type: EventVadEnd, Audio: s.acc.Finish()}
}

// Reset restores the session to its initial state, including the detector
// hidden state.
func (s *Session) Reset() error {
	s.frames.Reset()
	s.machine.Reset()
	s.acc.Reset()
	s.lastEvent = ""
	return s.detector.Reset()
}

// Close releases the detector.
func (s *Session) Close() error {
	return s.detector.Close()
}

// State exposes the automaton state for inspection.
func (s *Session) State() State {
	return s.machine.State()
}

// Machine exposes the state machine for tests and diagnostics.
func (s *Session) Machine() *Machine {
	return s.machine
}

// Accumulator exposes the segment accumulator for tests and diagnostics.
func (s *Session) Accumulator() *Accumulator {
	return s.acc
}

// ResidualBytes reports the buffered partial frame size.
func (s *Session) ResidualBytes() int {
	return s.frames.ResidualBytes()
}

func cloneBytes(p []byte) []byte {
	out := make([]byte, len(p))
	copy(out, p)
	return out
}
