package audio

// DefaultFrameLength is the number of samples in one outbound frame
// (200 ms at 8 kHz)
const DefaultFrameLength = 1600

// Framer accumulates captured samples of arbitrary chunk size into
// fixed-length frames. The buffer holds at most two frames; when a burst
// overflows it the oldest samples are dropped.
//
// Framer is not safe for concurrent use.
type Framer struct {
	frameLen int
	capacity int
	buf      []int16
	dropped  uint64
}

// NewFramer creates a framer emitting frames of frameLen samples. A
// non-positive length uses DefaultFrameLength.
func NewFramer(frameLen int) *Framer {
	if frameLen <= 0 {
		frameLen = DefaultFrameLength
	}
	return &Framer{
		frameLen: frameLen,
		capacity: frameLen * 2,
		buf:      make([]int16, 0, frameLen*2),
	}
}

// Push appends samples and returns one complete frame if available, or
// nil. At most one frame is returned per call; any remainder stays
// buffered for the next push.
func (f *Framer) Push(samples []int16) []int16 {
	f.buf = append(f.buf, samples...)

	if over := len(f.buf) - f.capacity; over > 0 {
		f.dropped += uint64(over)
		f.buf = append(f.buf[:0], f.buf[over:]...)
	}

	if len(f.buf) < f.frameLen {
		return nil
	}

	frame := make([]int16, f.frameLen)
	copy(frame, f.buf)
	f.buf = append(f.buf[:0], f.buf[f.frameLen:]...)
	return frame
}

// Flush discards buffered samples
func (f *Framer) Flush() {
	f.buf = f.buf[:0]
}

// Buffered returns the number of samples waiting for a full frame
func (f *Framer) Buffered() int {
	return len(f.buf)
}

// Dropped returns the total number of samples discarded on overflow
func (f *Framer) Dropped() uint64 {
	return f.dropped
}

// FrameLength returns the configured frame size in samples
func (f *Framer) FrameLength() int {
	return f.frameLen
}
