package audio

import "time"

// BytesPerSample is the width of one signed 16-bit little-endian PCM sample.
const BytesPerSample = 2

// AudioFrame is one fixed-length block of captured PCM audio. Frames are the
// atomic unit the capture source hands to the segmentation stage and are
// treated as immutable once produced.
type AudioFrame struct {
	// Data holds 16-bit signed little-endian PCM, channels interleaved.
	Data []byte

	// SampleRate in Hz (16000 for the recognition pipeline).
	SampleRate int

	// Channels is 1 for mono, 2 for stereo.
	Channels int

	// Timestamp is the capture offset of the first sample relative to
	// stream start. It is monotonic across the frames of one source.
	Timestamp time.Duration
}

// Samples returns the number of samples per channel in the frame.
func (f AudioFrame) Samples() int {
	if f.Channels <= 0 {
		return 0
	}
	return len(f.Data) / (BytesPerSample * f.Channels)
}

// Duration returns the playback length of the frame.
func (f AudioFrame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(f.Samples()) * time.Second / time.Duration(f.SampleRate)
}

// End returns the capture offset just past the last sample of the frame.
func (f AudioFrame) End() time.Duration {
	return f.Timestamp + f.Duration()
}

// BytesFor returns the byte length of d worth of PCM in the given format.
func BytesFor(d time.Duration, sampleRate, channels int) int {
	samples := int(d * time.Duration(sampleRate) / time.Second)
	return samples * channels * BytesPerSample
}

// DurationOf returns the playback length of n bytes of PCM in the given format.
func DurationOf(n, sampleRate, channels int) time.Duration {
	if sampleRate <= 0 || channels <= 0 {
		return 0
	}
	samples := n / (BytesPerSample * channels)
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}
