package vad

// State is the debouncing automaton state.
type State int

const (
	// StateInactivity waits for enough weighted speech to arm a segment.
	StateInactivity State = iota
	// StateInactivityTransition is the single-frame hop between arming
	// and an open segment.
	StateInactivityTransition
	// StateActivity holds an open speech segment.
	StateActivity
)

func (s State) String() string {
	switch s {
	case StateInactivity:
		return "Inactivity"
	case StateInactivityTransition:
		return "InactivityTransition"
	case StateActivity:
		return "Activity"
	}
	return "Unknown"
}

// Action is the per-frame decision produced by the machine.
type Action int

const (
	ActionNone Action = iota
	ActionSilence
	ActionSpeaking
	ActionEnd
	ActionBegin
)

func (a Action) String() string {
	switch a {
	case ActionBegin:
		return "begin"
	case ActionSpeaking:
		return "speaking"
	case ActionEnd:
		return "end"
	case ActionSilence:
		return "silence"
	}
	return "none"
}

// recognitionDecayMs is the constant decay step applied to the speech
// accumulator on silent frames while inactive. It is a fixed 10 ms
// regardless of the configured frame duration.
const recognitionDecayMs = 10

// MachineConfig carries the duration tunables, all in milliseconds.
type MachineConfig struct {
	FrameMs      float32
	VoiceBeginMs float32
	VoiceStopMs  float32
	MaxSilenceMs float32
	// MaxSegmentMs force-ends a segment that stays open too long.
	// Zero disables the cutoff.
	MaxSegmentMs float32
}

// Machine debounces the per-frame speech decision into segment boundaries.
// The onset side accumulates weighted speech time against VoiceBeginMs; the
// offset side accumulates weighted silence time against VoiceStopMs, giving
// a fast attach and a generous hangover tail.
type Machine struct {
	cfg MachineConfig

	state         State
	recognitionMs float32
	silenceMs     float32
	activityMs    float32
	frameIndex    int64
}

// NewMachine creates a machine in StateInactivity.
func NewMachine(cfg MachineConfig) *Machine {
	return &Machine{cfg: cfg}
}

// Advance consumes one frame decision and returns the machine's action for
// that frame. At most one state transition happens per call.
func (m *Machine) Advance(frameActive bool) Action {
	m.frameIndex++

	switch m.state {
	case StateInactivity:
		if frameActive {
			m.recognitionMs += m.cfg.FrameMs
		} else {
			if m.recognitionMs >= m.cfg.FrameMs {
				m.recognitionMs -= recognitionDecayMs
			}
			m.silenceMs += m.cfg.FrameMs
		}

		if m.recognitionMs >= m.cfg.VoiceBeginMs {
			m.setState(StateInactivityTransition)
			return ActionNone
		}
		if m.silenceMs >= m.cfg.MaxSilenceMs {
			// Counters stay put; the emission layer deduplicates
			// repeated silence reports.
			return ActionSilence
		}
		return ActionNone

	case StateInactivityTransition:
		m.setState(StateActivity)
		if !frameActive {
			m.silenceMs += m.cfg.FrameMs
		}
		return ActionBegin

	case StateActivity:
		m.activityMs += m.cfg.FrameMs
		if frameActive {
			m.silenceMs -= m.cfg.FrameMs
		} else {
			m.silenceMs += m.cfg.FrameMs
		}
		if m.silenceMs < 0 {
			m.silenceMs = 0
		}

		if m.silenceMs >= m.cfg.VoiceStopMs {
			m.setState(StateInactivity)
			return ActionEnd
		}
		if m.cfg.MaxSegmentMs > 0 && m.activityMs >= m.cfg.MaxSegmentMs {
			m.setState(StateInactivity)
			return ActionEnd
		}
		return ActionSpeaking
	}

	return ActionNone
}

// ForceEnd drops the machine back to StateInactivity. It reports whether a
// segment was open (StateActivity), so the caller knows to finalize it.
func (m *Machine) ForceEnd() bool {
	open := m.state == StateActivity
	if m.state != StateInactivity {
		m.setState(StateInactivity)
	}
	return open
}

// Reset restores the initial state.
func (m *Machine) Reset() {
	m.setState(StateInactivity)
	m.frameIndex = 0
}

// State returns the current automaton state.
func (m *Machine) State() State {
	return m.state
}

// RecognitionMs exposes the onset accumulator.
func (m *Machine) RecognitionMs() float32 {
	return m.recognitionMs
}

// SilenceMs exposes the silence accumulator.
func (m *Machine) SilenceMs() float32 {
	return m.silenceMs
}

// FrameIndex returns the number of frames consumed since the last reset.
func (m *Machine) FrameIndex() int64 {
	return m.frameIndex
}

func (m *Machine) setState(state State) {
	m.recognitionMs = 0
	m.silenceMs = 0
	m.activityMs = 0
	m.state = state
}
