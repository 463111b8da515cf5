package decoder

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/dhowden/tag"
)

const sniffSize = 512

// NewStreamDecoder creates a decoder for a forward-only byte stream. The
// content type hint (from HTTP headers) is tried first; when it is absent or
// unrecognized, the first bytes of the stream are sniffed. Either way the
// consumed prefix is replayed into the decoder.
func NewStreamDecoder(contentType string, r io.Reader) (StreamDecoder, error) {
	format := contentTypeToFormat(contentType)

	if format == "" {
		prefix := make([]byte, sniffSize)
		n, err := io.ReadFull(r, prefix)
		if n == 0 {
			if err != nil {
				return nil, fmt.Errorf("failed to sniff stream: %w", err)
			}
			return nil, ErrInvalidData
		}
		prefix = prefix[:n]
		format = sniffFormat(prefix)
		r = io.MultiReader(bytes.NewReader(prefix), r)
	}

	switch format {
	case "mp3":
		return NewMP3Decoder(r)
	case "flac":
		return NewFLACDecoder(r)
	case "vorbis":
		return NewVorbisDecoder(r)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, contentType)
	}
}

func contentTypeToFormat(contentType string) string {
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	switch strings.ToLower(strings.TrimSpace(contentType)) {
	case "audio/mpeg", "audio/mp3":
		return "mp3"
	case "audio/flac", "audio/x-flac":
		return "flac"
	case "audio/ogg", "application/ogg", "audio/vorbis":
		return "vorbis"
	default:
		return ""
	}
}

// sniffFormat classifies a stream prefix. tag.Identify recognizes tagged
// containers (ID3 headers, fLaC markers, Ogg pages); bare MP3 frame sync is
// checked by hand since live streams usually start mid-frame with no tag at
// all.
func sniffFormat(prefix []byte) string {
	if _, fileType, err := tag.Identify(bytes.NewReader(prefix)); err == nil {
		switch fileType {
		case tag.MP3:
			return "mp3"
		case tag.FLAC:
			return "flac"
		case tag.OGG:
			return "vorbis"
		}
	}

	if bytes.HasPrefix(prefix, []byte("fLaC")) {
		return "flac"
	}
	if bytes.HasPrefix(prefix, []byte("OggS")) {
		return "vorbis"
	}
	if bytes.HasPrefix(prefix, []byte("ID3")) {
		return "mp3"
	}
	for i := 0; i+1 < len(prefix); i++ {
		if prefix[i] == 0xFF && prefix[i+1]&0xE0 == 0xE0 {
			return "mp3"
		}
	}
	return ""
}
