package audio

import (
	"encoding/binary"
	"math"
)

// minRMS keeps DBFS finite for digital silence.
const minRMS = 1e-9

// RMS computes the root-mean-square energy of 16-bit PCM normalised to [0, 1],
// where 1.0 is a full-scale square wave. Channels are not separated.
func RMS(pcm []byte) float64 {
	n := len(pcm) / BytesPerSample
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		s := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / 32768.0
		sum += s * s
	}
	return math.Sqrt(sum / float64(n))
}

// DBFS converts a normalised RMS value to decibels relative to full scale.
func DBFS(rms float64) float64 {
	return 20 * math.Log10(math.Max(rms, minRMS))
}

// FromDBFS converts decibels relative to full scale back to a normalised RMS.
func FromDBFS(db float64) float64 {
	return math.Pow(10, db/20)
}

// PCMToFloat32 converts 16-bit PCM to float32 samples in [-1, 1]. When
// channels is 2 the result is downmixed to mono by averaging each pair.
func PCMToFloat32(pcm []byte, channels int) []float32 {
	n := len(pcm) / BytesPerSample
	if channels == 2 {
		frames := n / 2
		out := make([]float32, frames)
		for i := range frames {
			l := int16(binary.LittleEndian.Uint16(pcm[i*4:]))
			r := int16(binary.LittleEndian.Uint16(pcm[i*4+2:]))
			out[i] = float32(int32(l)+int32(r)) / 65536.0
		}
		return out
	}
	out := make([]float32, n)
	for i := range n {
		out[i] = float32(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / 32768.0
	}
	return out
}
