package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-audio/wav"
)

// DefaultFrameDuration is the capture block length used when none is set.
const DefaultFrameDuration = 20 * time.Millisecond

// Source produces capture frames. ReadFrame blocks until a frame is available
// and returns io.EOF once the input is exhausted. Implementations must be safe
// to call from a single goroutine; callers that need to abandon a blocked read
// do so by cancelling ctx or closing the source.
type Source interface {
	ReadFrame(ctx context.Context) (AudioFrame, error)
	Format() Format
	Close() error
}

// SourceOption configures a [ReaderSource].
type SourceOption func(*ReaderSource)

// WithFrameDuration sets the length of each produced frame.
func WithFrameDuration(d time.Duration) SourceOption {
	return func(s *ReaderSource) {
		if d > 0 {
			s.frameDur = d
		}
	}
}

// WithPacing makes ReadFrame wait until the wall clock catches up with the
// frame timestamp, emulating a live capture device.
func WithPacing(enabled bool) SourceOption {
	return func(s *ReaderSource) { s.paced = enabled }
}

// ReaderSource reads 16-bit PCM from an [io.Reader] and slices it into
// fixed-length frames.
type ReaderSource struct {
	r        io.Reader
	closer   io.Closer
	format   Format
	frameDur time.Duration
	paced    bool

	offset  time.Duration
	started time.Time
	eof     bool
}

var _ Source = (*ReaderSource)(nil)

// NewRawSource returns a source reading headerless PCM in the given format.
func NewRawSource(r io.Reader, format Format, opts ...SourceOption) (*ReaderSource, error) {
	if format.SampleRate <= 0 || format.Channels <= 0 {
		return nil, fmt.Errorf("audio: invalid raw format %s", format)
	}
	s := &ReaderSource{r: r, format: format, frameDur: DefaultFrameDuration}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// NewWAVSource returns a source reading the PCM data chunk of a WAV stream.
// Only uncompressed 16-bit PCM is accepted.
func NewWAVSource(r io.ReadSeeker, opts ...SourceOption) (*ReaderSource, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, errors.New("audio: not a valid WAV stream")
	}
	if dec.WavAudioFormat != 1 || dec.BitDepth != 16 {
		return nil, fmt.Errorf("audio: unsupported WAV encoding (format %d, %d bit); want 16-bit PCM",
			dec.WavAudioFormat, dec.BitDepth)
	}
	if err := dec.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("audio: locate WAV data chunk: %w", err)
	}
	format := Format{SampleRate: int(dec.SampleRate), Channels: int(dec.NumChans)}
	s, err := NewRawSource(io.LimitReader(dec.PCMChunk, dec.PCMLen()), format, opts...)
	if err != nil {
		return nil, err
	}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}
	return s, nil
}

// Container names how a source encodes its samples.
type Container string

const (
	// ContainerAuto picks WAV for files ending in .wav and raw otherwise.
	ContainerAuto Container = ""
	ContainerRaw  Container = "raw"
	ContainerWAV  Container = "wav"
)

// OpenSource opens path as a capture source. "-" reads stdin, which only
// supports raw PCM since WAV decoding needs to seek. Raw input uses the
// given format; WAV headers carry their own.
func OpenSource(path string, container Container, raw Format, opts ...SourceOption) (*ReaderSource, error) {
	if container == ContainerAuto {
		container = ContainerRaw
		if strings.EqualFold(filepath.Ext(path), ".wav") {
			container = ContainerWAV
		}
	}
	if path == "-" {
		if container == ContainerWAV {
			return nil, errors.New("audio: wav input needs a seekable file, use raw for stdin")
		}
		return NewRawSource(io.NopCloser(os.Stdin), raw, opts...)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("audio: open source: %w", err)
	}
	var s *ReaderSource
	if container == ContainerWAV {
		s, err = NewWAVSource(f, opts...)
	} else {
		s, err = NewRawSource(f, raw, opts...)
	}
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return s, nil
}

// Realtime reports whether frames are paced to the wall clock. Unpaced
// sources are read as fast as the consumer allows and never lose frames.
func (s *ReaderSource) Realtime() bool { return s.paced }

// Format returns the native format of the frames this source produces.
func (s *ReaderSource) Format() Format { return s.format }

// ReadFrame returns the next frame. A short trailing read is returned as a
// final partial frame trimmed to whole samples; the call after it returns
// io.EOF.
func (s *ReaderSource) ReadFrame(ctx context.Context) (AudioFrame, error) {
	if err := ctx.Err(); err != nil {
		return AudioFrame{}, err
	}
	if s.eof {
		return AudioFrame{}, io.EOF
	}
	if s.paced {
		if err := s.waitForOffset(ctx); err != nil {
			return AudioFrame{}, err
		}
	}

	buf := make([]byte, BytesFor(s.frameDur, s.format.SampleRate, s.format.Channels))
	n, err := io.ReadFull(s.r, buf)
	switch {
	case errors.Is(err, io.EOF):
		s.eof = true
		return AudioFrame{}, io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		s.eof = true
		stride := BytesPerSample * s.format.Channels
		n -= n % stride
		if n == 0 {
			return AudioFrame{}, io.EOF
		}
	case err != nil:
		return AudioFrame{}, fmt.Errorf("audio: read frame: %w", err)
	}

	f := AudioFrame{
		Data:       buf[:n],
		SampleRate: s.format.SampleRate,
		Channels:   s.format.Channels,
		Timestamp:  s.offset,
	}
	s.offset += f.Duration()
	return f, nil
}

func (s *ReaderSource) waitForOffset(ctx context.Context) error {
	if s.started.IsZero() {
		s.started = time.Now()
		return nil
	}
	wait := time.Until(s.started.Add(s.offset))
	if wait <= 0 {
		return nil
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Close releases the underlying reader if it is closable. It also unblocks a
// pending ReadFrame on readers that support concurrent Close, such as files
// and pipes.
func (s *ReaderSource) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
