package vad

import (
	"github.com/smallnest/ringbuffer"
)

// Accumulator owns the two audio buffers behind segment payloads: a bounded
// circular pre-roll of the most recent audio heard before an onset, and the
// unbounded buffer of the currently open segment. The pre-roll keeps the
// leading phonemes that the onset debounce would otherwise clip.
type Accumulator struct {
	preroll    *ringbuffer.RingBuffer
	prerollCap int
	segment    []byte
	open       bool
	scratch    []byte
}

// NewAccumulator creates an accumulator with the given pre-roll capacity
// in bytes.
func NewAccumulator(prerollCapacity int) *Accumulator {
	return &Accumulator{
		preroll:    ringbuffer.New(prerollCapacity).SetBlocking(false),
		prerollCap: prerollCapacity,
	}
}

// AppendPreroll adds raw frame bytes to the pre-roll, evicting the oldest
// bytes once the capacity is reached.
func (a *Accumulator) AppendPreroll(p []byte) {
	if len(p) >= a.prerollCap {
		a.preroll.Reset()
		p = p[len(p)-a.prerollCap:]
	}
	if free := a.preroll.Free(); free < len(p) {
		need := len(p) - free
		if cap(a.scratch) < need {
			a.scratch = make([]byte, need)
		}
		_, _ = a.preroll.Read(a.scratch[:need])
	}
	_, _ = a.preroll.Write(p)
}

// Begin opens a segment seeded with the current pre-roll contents. The
// pre-roll is drained, so a later segment only ever carries audio heard
// after this onset's offset.
func (a *Accumulator) Begin() {
	a.segment = a.segment[:0]
	a.segment = append(a.segment, a.preroll.Bytes(nil)...)
	a.preroll.Reset()
	a.open = true
}

// AppendSegment adds raw frame bytes to the open segment.
func (a *Accumulator) AppendSegment(p []byte) {
	if !a.open {
		return
	}
	a.segment = append(a.segment, p...)
}

// Finish closes the segment and returns its full contents. The returned
// slice is owned by the caller; the accumulator forgets the segment.
func (a *Accumulator) Finish() []byte {
	out := make([]byte, len(a.segment))
	copy(out, a.segment)
	a.segment = a.segment[:0]
	a.open = false
	return out
}

// Open reports whether a segment is currently accumulating.
func (a *Accumulator) Open() bool {
	return a.open
}

// PrerollLen returns the buffered pre-roll size in bytes.
func (a *Accumulator) PrerollLen() int {
	return a.preroll.Length()
}

// SegmentLen returns the open segment size in bytes.
func (a *Accumulator) SegmentLen() int {
	return len(a.segment)
}

// Reset drops both buffers.
func (a *Accumulator) Reset() {
	a.preroll.Reset()
	a.segment = a.segment[:0]
	a.open = false
}
