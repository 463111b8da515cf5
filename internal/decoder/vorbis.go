package decoder

import (
	"fmt"
	"io"
	"time"

	"github.com/jfreymuth/oggvorbis"
)

// VorbisDecoder decodes an Ogg Vorbis byte stream. oggvorbis consumes whole
// Ogg packets and hands back interleaved float32 samples directly, so no
// conversion pass is needed.
type VorbisDecoder struct {
	reader *oggvorbis.Reader
	format Format
	eof    bool
}

// NewVorbisDecoder reads the stream far enough to parse the three Vorbis
// header packets. It blocks until the reader has delivered those bytes.
func NewVorbisDecoder(r io.Reader) (*VorbisDecoder, error) {
	reader, err := oggvorbis.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vorbis decoder: %w", err)
	}

	return &VorbisDecoder{
		reader: reader,
		format: Format{
			SampleRate: reader.SampleRate(),
			Channels:   reader.Channels(),
		},
	}, nil
}

func (d *VorbisDecoder) Format() Format {
	return d.format
}

func (d *VorbisDecoder) Decode(buf []float32) (int, error) {
	if d.eof {
		return 0, ErrEndOfStream
	}
	if len(buf) == 0 {
		return 0, nil
	}

	// Trim to whole frames; oggvorbis fills multiples of the channel count.
	usable := len(buf) - len(buf)%d.format.Channels
	n, err := d.reader.Read(buf[:usable])
	if err != nil && err != io.EOF {
		return 0, fmt.Errorf("failed to decode Vorbis: %w", err)
	}
	if n == 0 {
		d.eof = true
		return 0, ErrEndOfStream
	}

	return n / d.format.Channels, nil
}

// Duration is only known when the underlying reader is seekable, which a
// network stream is not; 0 means unknown.
func (d *VorbisDecoder) Duration() time.Duration {
	frames := d.TotalFrames()
	if frames <= 0 {
		return 0
	}
	return time.Duration(frames) * time.Second / time.Duration(d.format.SampleRate)
}

func (d *VorbisDecoder) TotalFrames() int64 {
	return d.reader.Length()
}

func (d *VorbisDecoder) Close() error {
	return nil
}
