package vad

import (
	"encoding/binary"
	"time"

	"github.com/MrWong99/voxbridge/pkg/audio"
)

const frameDur = 20 * time.Millisecond

// squareFrame returns the i-th 20 ms mono 16 kHz frame of a square wave.
func squareFrame(i int, amplitude int16) audio.AudioFrame {
	buf := make([]byte, 640)
	for n := range 320 {
		s := amplitude
		if n%2 == 1 {
			s = -amplitude
		}
		binary.LittleEndian.PutUint16(buf[n*2:], uint16(s))
	}
	return audio.AudioFrame{
		Data:       buf,
		SampleRate: 16000,
		Channels:   1,
		Timestamp:  time.Duration(i) * frameDur,
	}
}

// framesIn returns the number of 20 ms frames in d.
func framesIn(d time.Duration) int { return int(d / frameDur) }
