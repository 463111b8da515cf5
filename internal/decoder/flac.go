package decoder

import (
	"fmt"
	"io"
	"time"

	"github.com/mewkiz/flac"
)

// FLACDecoder decodes a FLAC byte stream using mewkiz/flac. Parsed frames
// rarely line up with the caller's buffer, so leftover samples are carried
// between Decode calls.
type FLACDecoder struct {
	stream   *flac.Stream
	format   Format
	scale    float32
	pending  []float32
	totalFr  int64
	eof      bool
}

func NewFLACDecoder(r io.Reader) (*FLACDecoder, error) {
	stream, err := flac.New(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create FLAC decoder: %w", err)
	}

	info := stream.Info
	return &FLACDecoder{
		stream: stream,
		format: Format{
			SampleRate: int(info.SampleRate),
			Channels:   int(info.NChannels),
		},
		scale:   float32(int64(1) << (info.BitsPerSample - 1)),
		totalFr: int64(info.NSamples),
	}, nil
}

func (d *FLACDecoder) Format() Format {
	return d.format
}

func (d *FLACDecoder) Decode(buf []float32) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}

	ch := d.format.Channels
	written := 0

	for written < len(buf) {
		if len(d.pending) > 0 {
			n := copy(buf[written:], d.pending)
			d.pending = d.pending[n:]
			written += n
			continue
		}
		if d.eof {
			break
		}

		frame, err := d.stream.ParseNext()
		if err == io.EOF {
			d.eof = true
			break
		}
		if err != nil {
			return written / ch, fmt.Errorf("failed to parse FLAC frame: %w", err)
		}

		samples := len(frame.Subframes[0].Samples)
		interleaved := make([]float32, samples*ch)
		for c := 0; c < ch; c++ {
			sub := frame.Subframes[c].Samples
			for i := 0; i < samples; i++ {
				interleaved[i*ch+c] = float32(sub[i]) / d.scale
			}
		}
		d.pending = interleaved
	}

	if written == 0 && d.eof {
		return 0, ErrEndOfStream
	}
	return written / ch, nil
}

func (d *FLACDecoder) Duration() time.Duration {
	if d.totalFr <= 0 {
		return 0
	}
	return time.Duration(d.totalFr) * time.Second / time.Duration(d.format.SampleRate)
}

func (d *FLACDecoder) TotalFrames() int64 {
	return d.totalFr
}

func (d *FLACDecoder) Close() error {
	return d.stream.Close()
}
