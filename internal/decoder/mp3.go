package decoder

import (
	"fmt"
	"io"
	"time"

	"github.com/hajimehoshi/go-mp3"
)

// MP3Decoder decodes an MP3 byte stream. The go-mp3 decoder always outputs
// 16-bit stereo at the source sample rate.
type MP3Decoder struct {
	decoder *mp3.Decoder
	format  Format
	buf     []byte
	eof     bool
}

// NewMP3Decoder reads the stream far enough to parse the first frame header.
// It blocks until the reader has delivered those bytes.
func NewMP3Decoder(r io.Reader) (*MP3Decoder, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create MP3 decoder: %w", err)
	}

	return &MP3Decoder{
		decoder: dec,
		format: Format{
			SampleRate: dec.SampleRate(),
			Channels:   2,
		},
		buf: make([]byte, 8192),
	}, nil
}

func (d *MP3Decoder) Format() Format {
	return d.format
}

func (d *MP3Decoder) Decode(buf []float32) (int, error) {
	if d.eof {
		return 0, ErrEndOfStream
	}
	if len(buf) == 0 {
		return 0, nil
	}

	bytesWanted := len(buf) * 2 // 16-bit source samples
	if bytesWanted > len(d.buf) {
		bytesWanted = len(d.buf)
	}

	n, err := d.decoder.Read(d.buf[:bytesWanted])
	if err != nil && err != io.EOF {
		return 0, fmt.Errorf("failed to decode MP3: %w", err)
	}
	if n == 0 {
		d.eof = true
		return 0, ErrEndOfStream
	}

	samples := n / 2
	if samples > len(buf) {
		samples = len(buf)
	}
	for i := 0; i < samples; i++ {
		s := int16(d.buf[i*2]) | int16(d.buf[i*2+1])<<8
		buf[i] = float32(s) / 32768.0
	}

	return samples / d.format.Channels, nil
}

// Duration is only known when the underlying reader is seekable, which a
// network stream is not; 0 means unknown.
func (d *MP3Decoder) Duration() time.Duration {
	frames := d.TotalFrames()
	if frames <= 0 {
		return 0
	}
	return time.Duration(frames) * time.Second / time.Duration(d.format.SampleRate)
}

func (d *MP3Decoder) TotalFrames() int64 {
	length := d.decoder.Length()
	if length <= 0 {
		return 0
	}
	return length / 4 // 2 channels, 2 bytes per sample
}

func (d *MP3Decoder) Close() error {
	return nil
}
