package vad

// FrameBuffer bridges arbitrary-sized PCM chunks to fixed-size frames. It
// keeps both the raw byte view and the normalized float view of each frame
// so downstream buffering never re-encodes audio. The residual after
// draining is always smaller than one frame.
type FrameBuffer struct {
	frameBytes int
	residual   []byte
	floats     []float32
}

// NewFrameBuffer creates a buffer dispensing frames of frameSamples
// 16-bit samples.
func NewFrameBuffer(frameSamples int) *FrameBuffer {
	return &FrameBuffer{
		frameBytes: frameSamples * 2,
		floats:     make([]float32, frameSamples),
	}
}

// Push appends little-endian 16-bit PCM bytes. The length must be even;
// the caller validates before decoding.
func (b *FrameBuffer) Push(pcm []byte) {
	b.residual = append(b.residual, pcm...)
}

// Next pops one frame. The returned slices are valid until the next Push
// or Next call. ok is false when less than a full frame remains buffered.
func (b *FrameBuffer) Next() (frame []float32, raw []byte, ok bool) {
	if len(b.residual) < b.frameBytes {
		return nil, nil, false
	}

	raw = b.residual[:b.frameBytes]
	for i := 0; i < len(b.floats); i++ {
		u := uint16(raw[2*i]) | uint16(raw[2*i+1])<<8
		// Divide by 32768 so the full int16 range stays inside [-1, 1].
		b.floats[i] = float32(int16(u)) / 32768.0
	}
	b.residual = b.residual[b.frameBytes:]
	return b.floats, raw, true
}

// ResidualBytes reports how many buffered bytes are waiting for the next
// frame boundary.
func (b *FrameBuffer) ResidualBytes() int {
	return len(b.residual)
}

// Reset discards the residual.
func (b *FrameBuffer) Reset() {
	b.residual = nil
}
